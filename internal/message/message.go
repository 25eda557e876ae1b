// Package message defines the channel message and its binary envelope.
//
// The envelope is protobuf-compatible:
//
//	1: id        string
//	2: timestamp uint64 (milliseconds since epoch)
//	3: content   bytes
//	4: signature string
//
// Known fields are always written in field-number order with zero values
// omitted, so the same logical message always encodes to the same bytes.
// Fields with numbers this version does not know are preserved verbatim and
// written back after the known fields, which lets a message authored by a
// newer peer pass through an older one unchanged.
package message

import (
	"bytes"
	"errors"
	"fmt"
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	fieldID        protowire.Number = 1
	fieldTimestamp protowire.Number = 2
	fieldContent   protowire.Number = 3
	fieldSignature protowire.Number = 4
)

var (
	// ErrMalformedMessage is returned by Decode for truncated or
	// schema-violating input.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrEmptyID is returned by Validate for a message without an id.
	ErrEmptyID = errors.New("message id is empty")
)

// ChannelMessage is the atomic unit of channel history.
type ChannelMessage struct {
	ID        string
	Timestamp int64 // ms since epoch, author supplied
	Content   []byte
	Signature string // opaque to this package

	// Unknown holds raw fields from a newer envelope version.
	Unknown []byte
}

// Validate reports whether m can be appended to a channel.
func (m ChannelMessage) Validate() error {
	if m.ID == "" {
		return ErrEmptyID
	}
	return nil
}

// Equal compares two messages field by field. Nil and empty byte slices
// are treated as equal.
func (m ChannelMessage) Equal(o ChannelMessage) bool {
	return m.ID == o.ID &&
		m.Timestamp == o.Timestamp &&
		bytes.Equal(m.Content, o.Content) &&
		m.Signature == o.Signature &&
		bytes.Equal(m.Unknown, o.Unknown)
}

// Encode returns the deterministic binary envelope for m.
func Encode(m ChannelMessage) []byte {
	b := make([]byte, 0, len(m.ID)+len(m.Content)+len(m.Signature)+len(m.Unknown)+24)
	if m.ID != "" {
		b = protowire.AppendTag(b, fieldID, protowire.BytesType)
		b = protowire.AppendString(b, m.ID)
	}
	if m.Timestamp != 0 {
		b = protowire.AppendTag(b, fieldTimestamp, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.Timestamp))
	}
	if len(m.Content) > 0 {
		b = protowire.AppendTag(b, fieldContent, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Content)
	}
	if m.Signature != "" {
		b = protowire.AppendTag(b, fieldSignature, protowire.BytesType)
		b = protowire.AppendString(b, m.Signature)
	}
	return append(b, m.Unknown...)
}

// Decode parses an envelope produced by Encode (or any compatible encoder).
// For repeated occurrences of a known field the last one wins.
func Decode(b []byte) (ChannelMessage, error) {
	var m ChannelMessage
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return ChannelMessage{}, malformed("tag", protowire.ParseError(n))
		}
		field := b
		b = b[n:]

		switch num {
		case fieldID, fieldSignature:
			if typ != protowire.BytesType {
				return ChannelMessage{}, wrongType(num, typ)
			}
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return ChannelMessage{}, malformed(fieldName(num), protowire.ParseError(n))
			}
			if !utf8.Valid(v) {
				return ChannelMessage{}, fmt.Errorf("%w: %s is not valid UTF-8", ErrMalformedMessage, fieldName(num))
			}
			if num == fieldID {
				m.ID = string(v)
			} else {
				m.Signature = string(v)
			}
			b = b[n:]
		case fieldTimestamp:
			if typ != protowire.VarintType {
				return ChannelMessage{}, wrongType(num, typ)
			}
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return ChannelMessage{}, malformed("timestamp", protowire.ParseError(n))
			}
			m.Timestamp = int64(v)
			b = b[n:]
		case fieldContent:
			if typ != protowire.BytesType {
				return ChannelMessage{}, wrongType(num, typ)
			}
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return ChannelMessage{}, malformed("content", protowire.ParseError(n))
			}
			m.Content = nil
			if len(v) > 0 {
				m.Content = bytes.Clone(v)
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return ChannelMessage{}, malformed(fmt.Sprintf("field %d", num), protowire.ParseError(n))
			}
			consumed := len(field) - len(b) + n
			m.Unknown = append(m.Unknown, field[:consumed]...)
			b = b[n:]
		}
	}
	return m, nil
}

func fieldName(num protowire.Number) string {
	switch num {
	case fieldID:
		return "id"
	case fieldTimestamp:
		return "timestamp"
	case fieldContent:
		return "content"
	case fieldSignature:
		return "signature"
	}
	return fmt.Sprintf("field %d", num)
}

func malformed(what string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrMalformedMessage, what, err)
}

func wrongType(num protowire.Number, typ protowire.Type) error {
	return fmt.Errorf("%w: %s has wire type %d", ErrMalformedMessage, fieldName(num), typ)
}
