// Package codec implements the dynamic CBOR value model: a run-time
// encoder/decoder pair that dispatches on value kind rather than on
// compile-time type information, built on top of the runtime package's
// wire-level primitives.
package codec

import (
	"math/big"
	"net/mail"
	"regexp"
)

// Array is an ordered CBOR array (major type 4). It is always handled
// through a pointer so that two references to the same array are the
// same Go pointer, which is what makes tag 28/29 sharing and cyclic
// structures observable.
type Array struct {
	Items []any
}

// Pair is one key/value entry of a Map, in wire order.
type Pair struct {
	Key   any
	Value any
}

// Map is an ordered CBOR map (major type 5). Unlike a Go map, it
// preserves insertion/wire order; canonical-mode encoding re-sorts a
// copy of Pairs rather than mutating the original.
type Map struct {
	Pairs []Pair
}

// Get returns the value for key and whether it was found, using CBOR
// value equality (not identity).
func (m *Map) Get(key any) (any, bool) {
	for _, p := range m.Pairs {
		if valuesEqual(p.Key, key) {
			return p.Value, true
		}
	}
	return nil, false
}

// Set is a CBOR set (tag 258, RFC 8949 §3.4.5 style extension). Members
// are kept in encounter order; canonical mode sorts a copy by encoded
// bytes.
type Set struct {
	Members []any
}

// Tagged is a semantic tag (major type 6) for which no built-in or
// user-registered handler claimed the tag number. Content is whatever
// the inner item decoded to.
type Tagged struct {
	Number  uint64
	Content any
}

// SimpleValue is a CBOR simple value (major type 7, subtype 0..19 or
// 32..255) with no more specific Go representation.
type SimpleValue uint8

// Undefined represents the CBOR "undefined" simple value (0xf7).
type Undefined struct{}

// Rational is a tag-30 rational number: [numerator, denominator].
type Rational struct {
	Num   *big.Int
	Denom *big.Int
}

// DecimalFraction is a tag-4 value: mantissa * 10^exponent.
type DecimalFraction struct {
	Exponent int64
	Mantissa *big.Int
}

// BigFloat is a tag-5 value: mantissa * 2^exponent.
type BigFloat struct {
	Exponent int64
	Mantissa *big.Int
}

// Mail wraps a tag-36 MIME message, parsed with net/mail (the only MIME
// parser exercised anywhere in the reference corpus; see DESIGN.md).
type Mail struct {
	Raw     string
	Message *mail.Message
}

// Regexp wraps a tag-35 regular expression. A dedicated type (rather
// than bare *regexp.Regexp) lets the encoder recover the original
// pattern text even for patterns regexp itself normalizes.
type Regexp struct {
	Pattern string
	Regexp  *regexp.Regexp
}

// breakMarker is the internal sentinel for the CBOR break byte (0xff).
// It must never be returned to a caller of Decoder.Decode.
type breakMarker struct{}

var theBreakMarker = breakMarker{}

// valuesEqual reports CBOR value equality between two decoded/encodable
// values, used by Map.Get.
// It intentionally does not attempt deep cyclic-safe comparison for
// container types beyond what Map.Get needs (key lookup never compares
// containers against containers in practice).
func valuesEqual(a, b any) bool {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case int64:
		bv, ok := b.(int64)
		return ok && av == bv
	case uint64:
		bv, ok := b.(uint64)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case []byte:
		bv, ok := b.([]byte)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
		return true
	case nil:
		return b == nil
	default:
		return false
	}
}
