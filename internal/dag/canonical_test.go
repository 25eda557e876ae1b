package dag

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalJSON_SortedKeys(t *testing.T) {
	got, err := CanonicalJSON(map[string]interface{}{"b": 1, "a": 2})
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"b":1}`, string(got))
}

func TestCanonicalJSON_NestedObjects(t *testing.T) {
	input := map[string]interface{}{
		"z": map[string]interface{}{"b": 1, "a": 2},
		"a": "first",
	}
	got, err := CanonicalJSON(input)
	require.NoError(t, err)
	assert.Equal(t, `{"a":"first","z":{"a":2,"b":1}}`, string(got))
}

func TestCanonicalJSON_ArraysPreserved(t *testing.T) {
	got, err := CanonicalJSON(map[string]interface{}{"arr": []interface{}{3, 1, 2}})
	require.NoError(t, err)
	assert.Equal(t, `{"arr":[3,1,2]}`, string(got))
}

func TestCanonicalJSON_StructFieldOrderIrrelevant(t *testing.T) {
	type ab struct {
		B int `json:"b"`
		A int `json:"a"`
	}
	got, err := CanonicalJSON(ab{B: 1, A: 2})
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"b":1}`, string(got))
}

func TestCanonicalJSON_LargeIntegersExact(t *testing.T) {
	// 2^53 + 1 is not representable as float64.
	got, err := CanonicalJSON(map[string]interface{}{"ts": int64(9007199254740993)})
	require.NoError(t, err)
	assert.Equal(t, `{"ts":9007199254740993}`, string(got))
}

func TestCanonicalJSON_Deterministic(t *testing.T) {
	input := map[string]interface{}{
		"c": 3, "a": 1, "b": 2,
		"nested": map[string]interface{}{"z": true, "a": false},
	}
	first, err := CanonicalJSON(input)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		got, _ := CanonicalJSON(input)
		require.Equal(t, string(first), string(got), "iteration %d", i)
	}
}

func TestCanonicalJSON_SpecialCharacters(t *testing.T) {
	got, err := CanonicalJSON(map[string]interface{}{"msg": "hello \"world\"\nnewline"})
	require.NoError(t, err)

	var check map[string]interface{}
	require.NoError(t, json.Unmarshal(got, &check))
	assert.Equal(t, "hello \"world\"\nnewline", check["msg"])
}
