package dag

import (
	"bytes"
	"sort"

	json "github.com/goccy/go-json"
)

// CanonicalJSON produces a deterministic JSON encoding with sorted keys and
// no insignificant whitespace. Numbers are carried through as their literal
// text, so millisecond timestamps survive without float rounding.
func CanonicalJSON(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return canonicalEncode(nil, raw)
}

func canonicalEncode(buf []byte, v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf = append(buf, '{')
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			keyBytes, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf = append(buf, keyBytes...)
			buf = append(buf, ':')
			if buf, err = canonicalEncode(buf, val[k]); err != nil {
				return nil, err
			}
		}
		return append(buf, '}'), nil

	case []interface{}:
		buf = append(buf, '[')
		for i, item := range val {
			if i > 0 {
				buf = append(buf, ',')
			}
			var err error
			if buf, err = canonicalEncode(buf, item); err != nil {
				return nil, err
			}
		}
		return append(buf, ']'), nil

	case json.Number:
		return append(buf, val.String()...), nil

	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return append(buf, b...), nil
	}
}
