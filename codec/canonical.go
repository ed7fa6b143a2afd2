package codec

import (
	"sort"

	"github.com/x448/float16"

	rt "github.com/synadia-labs/cbor-go/runtime"
)

// canonMode mirrors spec.md §3's encoder "canonical flag".
type canonMode uint8

const (
	canonOff    canonMode = iota // 0: regular
	canonOn                      // 1: canonical
	canonCustom                  // 2: custom (caller-supplied key/member order, no re-sort)
)

// encodeFloatCanonical appends the shortest of half/single/double that
// round-trips f exactly, per spec.md §4.7. f is always finite here:
// appendFloat intercepts NaN/±Inf before reaching this path, since
// those encode as half-floats unconditionally, not just canonically.
// The half-width decision is made by a round trip through
// github.com/x448/float16 (already an indirect dependency of this
// module via tinylib/msgp, used directly here); runtime's own
// half-float conversion is not consulted for the decision, it only
// writes the bytes once the width is chosen.
func encodeFloatCanonical(b []byte, f float64) []byte {
	f32 := float32(f)
	if float64(f32) == f {
		h := float16.Fromfloat32(f32)
		if float64(h.Float32()) == f {
			return rt.AppendFloat16(b, f32)
		}
		return rt.AppendFloat32(b, f32)
	}
	return rt.AppendFloat64(b, f)
}

// canonicalPairKey pre-encodes a map key for canonical sorting, per
// spec.md §4.7: "(len(enc_key), enc_key, key, value)".
type canonicalPairKey struct {
	encKey []byte
	pair   Pair
}

func (e *Encoder) canonicalizeMap(m *Map) ([]canonicalPairKey, error) {
	out := make([]canonicalPairKey, len(m.Pairs))
	for i, p := range m.Pairs {
		bb := rt.GetByteBuffer()
		if err := e.encodeValueInto(bb, p.Key); err != nil {
			rt.PutByteBuffer(bb)
			return nil, err
		}
		encKey := make([]byte, bb.Len())
		copy(encKey, bb.Bytes())
		rt.PutByteBuffer(bb)
		out[i] = canonicalPairKey{encKey: encKey, pair: p}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].encKey, out[j].encKey
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		for k := range a {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return false
	})
	return out, nil
}

type canonicalMember struct {
	enc   []byte
	value any
}

func (e *Encoder) canonicalizeSet(s *Set) ([]canonicalMember, error) {
	out := make([]canonicalMember, len(s.Members))
	for i, m := range s.Members {
		bb := rt.GetByteBuffer()
		if err := e.encodeValueInto(bb, m); err != nil {
			rt.PutByteBuffer(bb)
			return nil, err
		}
		enc := make([]byte, bb.Len())
		copy(enc, bb.Bytes())
		rt.PutByteBuffer(bb)
		out[i] = canonicalMember{enc: enc, value: m}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].enc, out[j].enc
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		for k := range a {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return false
	})
	return out, nil
}
