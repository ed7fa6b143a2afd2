package codec

import (
	"bytes"
	"encoding/hex"
	"errors"
	"math"
	"math/big"
	"reflect"
	"testing"
	"time"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex %q: %v", s, err)
	}
	return b
}

func encode(t *testing.T, v any, opts ...EncOption) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := NewEncoder(&buf, opts...).Encode(v); err != nil {
		t.Fatalf("encode %#v: %v", v, err)
	}
	return buf.Bytes()
}

func decode(t *testing.T, b []byte, opts ...DecOption) any {
	t.Helper()
	v, err := NewDecoder(bytes.NewReader(b), opts...).Decode()
	if err != nil {
		t.Fatalf("decode %x: %v", b, err)
	}
	return v
}

// TestEncodeWireExamples checks the exact wire bytes spec.md §8 calls
// out for simple scalars.
func TestEncodeWireExamples(t *testing.T) {
	cases := []struct {
		v    any
		want string
	}{
		{int64(0), "00"},
		{int64(1), "01"},
		{int64(-1), "20"},
		{int64(23), "17"},
		{int64(24), "1818"},
		{true, "f5"},
		{false, "f4"},
		{nil, "f6"},
		{"", "60"},
		{"a", "6161"},
		{[]byte{}, "40"},
	}
	for _, c := range cases {
		got := encode(t, c.v)
		want := mustHex(t, c.want)
		if !bytes.Equal(got, want) {
			t.Errorf("encode(%#v) = %x, want %x", c.v, got, want)
		}
	}
}

// TestRoundTripScalars checks decode(encode(v)) reproduces v for the
// basic scalar kinds. Non-negative integers decode as uint64 (major
// type 0) and negative ones as int64 (major type 1), matching the
// wire format's own split — there is no ambiguity to resolve, but
// callers comparing against a signed literal must account for it.
func TestRoundTripScalars(t *testing.T) {
	cases := []struct {
		in   any
		want any
	}{
		{int64(42), uint64(42)},
		{int64(-1000), int64(-1000)},
		{uint64(1) << 40, uint64(1) << 40},
		{"hello", "hello"},
		{true, true},
		{false, false},
		{nil, nil},
		{3.5, 3.5},
		{float64(1) / 3, float64(1) / 3},
	}
	for _, c := range cases {
		got := decode(t, encode(t, c.in))
		if got != c.want {
			t.Errorf("round trip %#v: got %#v, want %#v", c.in, got, c.want)
		}
	}

	bs := []byte{1, 2, 3}
	got := decode(t, encode(t, bs)).([]byte)
	if !bytes.Equal(got, bs) {
		t.Errorf("round trip bytes: got %#v", got)
	}
}

// TestRoundTripArrayMap checks container round-tripping preserves
// order and nested structure.
func TestRoundTripArrayMap(t *testing.T) {
	a := &Array{Items: []any{int64(1), "two", &Array{Items: []any{int64(3)}}}}
	got := decode(t, encode(t, a)).(*Array)
	if len(got.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(got.Items))
	}
	if got.Items[0] != uint64(1) || got.Items[1] != "two" {
		t.Fatalf("unexpected items: %#v", got.Items)
	}
	inner, ok := got.Items[2].(*Array)
	if !ok || len(inner.Items) != 1 || inner.Items[0] != uint64(3) {
		t.Fatalf("unexpected nested array: %#v", got.Items[2])
	}

	m := &Map{Pairs: []Pair{{Key: "a", Value: int64(1)}, {Key: "b", Value: int64(2)}}}
	gotM := decode(t, encode(t, m)).(*Map)
	if v, ok := gotM.Get("a"); !ok || v != uint64(1) {
		t.Fatalf("map lookup failed: %#v", gotM)
	}
}

// TestCanonicalMapKeyOrdering verifies spec.md §4.7's deterministic
// sort: shorter encoded keys first, then lexicographic.
func TestCanonicalMapKeyOrdering(t *testing.T) {
	m := &Map{Pairs: []Pair{
		{Key: "b", Value: int64(1)},
		{Key: "aa", Value: int64(2)},
		{Key: "a", Value: int64(3)},
	}}
	got := encode(t, m, WithCanonical(true))
	// "a" (1 byte key) < "b" (1 byte key, lexicographically after "a") < "aa" (2 byte key)
	want := mustHex(t, "a3"+"6161"+"03"+"6162"+"01"+"626161"+"02")
	if !bytes.Equal(got, want) {
		t.Fatalf("canonical map = %x, want %x", got, want)
	}
}

// TestCanonicalFloatWidth checks minimal-width float selection.
func TestCanonicalFloatWidth(t *testing.T) {
	got := encode(t, 1.0, WithCanonical(true))
	want := mustHex(t, "f93c00") // half-float 1.0
	if !bytes.Equal(got, want) {
		t.Fatalf("canonical float(1.0) = %x, want %x", got, want)
	}

	third := 1.0 / 3.0
	got = encode(t, third, WithCanonical(true))
	if got[0] != 0xfb {
		t.Fatalf("canonical float(1/3) should need float64, got lead byte %x", got[0])
	}
}

// TestValueSharingRoundTrip checks that two references to the same
// array round-trip as two references to the same pointer.
func TestValueSharingRoundTrip(t *testing.T) {
	inner := &Array{Items: []any{int64(1)}}
	outer := &Array{Items: []any{inner, inner}}

	b := encode(t, outer, WithValueSharing(true))
	got := decode(t, b).(*Array)

	p0, ok0 := got.Items[0].(*Array)
	p1, ok1 := got.Items[1].(*Array)
	if !ok0 || !ok1 {
		t.Fatalf("expected both items to be *Array, got %#v", got.Items)
	}
	if p0 != p1 {
		t.Fatalf("shared reference did not round-trip to the same pointer")
	}
}

// TestCyclicRequiresSharing checks that encoding a self-referential
// array fails when sharing is disabled and succeeds (producing the
// spec's documented byte sequence) when enabled.
func TestCyclicRequiresSharing(t *testing.T) {
	a := &Array{}
	a.Items = []any{int64(1), a}

	var buf bytes.Buffer
	err := NewEncoder(&buf).Encode(a)
	if !errors.Is(err, errCyclicNoSharing) {
		t.Fatalf("expected errCyclicNoSharing, got %v", err)
	}

	buf.Reset()
	if err := NewEncoder(&buf, WithValueSharing(true)).Encode(a); err != nil {
		t.Fatalf("encode with sharing: %v", err)
	}
	// tag 28, array(2), 1, tag 29 -> index 0
	want := mustHex(t, "d81c8201d81d00")
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("cyclic encode = %x, want %x", buf.Bytes(), want)
	}

	got := decode(t, buf.Bytes()).(*Array)
	if len(got.Items) != 2 || got.Items[0] != uint64(1) {
		t.Fatalf("unexpected decode: %#v", got.Items)
	}
	self, ok := got.Items[1].(*Array)
	if !ok || self != got {
		t.Fatalf("expected self-reference, got %#v", got.Items[1])
	}
}

// TestSetCanonicalAndRoundTrip checks tag-258 encode/decode and that
// canonical mode sorts members by encoded bytes.
func TestSetCanonicalAndRoundTrip(t *testing.T) {
	s := &Set{Members: []any{int64(2), int64(1), int64(10)}}
	got := decode(t, encode(t, s)).(*Set)
	if len(got.Members) != 3 {
		t.Fatalf("expected 3 members, got %d", len(got.Members))
	}

	b := encode(t, s, WithCanonical(true))
	want := mustHex(t, "d9010283"+"01"+"02"+"0a")
	if !bytes.Equal(b, want) {
		t.Fatalf("canonical set = %x, want %x", b, want)
	}
}

// TestDatetimeTagZero checks tag-0 ISO-8601 string round-tripping.
func TestDatetimeTagZero(t *testing.T) {
	want := time.Date(2013, 3, 21, 20, 4, 0, 0, time.UTC)
	b := encode(t, want)
	if b[0] != 0xc0 {
		t.Fatalf("expected tag 0 lead byte 0xc0, got %x", b[0])
	}
	got := decode(t, b).(time.Time)
	if !got.Equal(want) {
		t.Fatalf("datetime round trip: got %v want %v", got, want)
	}
}

// TestDatetimeTagOne checks tag-1 numeric epoch encoding.
func TestDatetimeTagOne(t *testing.T) {
	want := time.Unix(1363896240, 0).UTC()
	b := encode(t, want, WithDatetimeAsTimestamp(true))
	if b[0] != 0xc1 {
		t.Fatalf("expected tag 1 lead byte 0xc1, got %x", b[0])
	}
	got := decode(t, b).(time.Time)
	if !got.Equal(want) {
		t.Fatalf("datetime round trip: got %v want %v", got, want)
	}
}

// TestIndefiniteTextChunks checks that chunked indefinite-length text
// strings are assembled chunk-by-chunk.
func TestIndefiniteTextChunks(t *testing.T) {
	// (_ "ab", "cd") per RFC 8949 §3.2.3 style example.
	b := mustHex(t, "7f626162626364ff")
	got := decode(t, b)
	if got != "abcd" {
		t.Fatalf("indefinite text = %q, want %q", got, "abcd")
	}
}

// TestBigIntFallback checks that a *big.Int too large for a native
// 64-bit integer falls back to the tag-2/3 bignum encoding.
func TestBigIntFallback(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 100)
	b := encode(t, huge)
	if b[0] != 0xc2 { // tag 2: positive bignum
		t.Fatalf("expected tag 2 lead byte, got %x", b[0])
	}
	got := decode(t, b).(*big.Int)
	if got.Cmp(huge) != 0 {
		t.Fatalf("bignum round trip: got %v want %v", got, huge)
	}
}

// TestRegexpRoundTrip checks tag-35.
func TestRegexpRoundTrip(t *testing.T) {
	re := &Regexp{Pattern: "^[a-z]+$"}
	b := encode(t, re)
	if b[0] != 0xd8 || b[1] != 35 {
		t.Fatalf("expected tag 35, got %x", b[:2])
	}
	got := decode(t, b).(*Regexp)
	if got.Pattern != re.Pattern {
		t.Fatalf("regexp round trip: got %q want %q", got.Pattern, re.Pattern)
	}
}

// TestUUIDRoundTrip checks tag-37.
func TestUUIDRoundTrip(t *testing.T) {
	var u [16]byte
	for i := range u {
		u[i] = byte(i)
	}
	got := decode(t, encode(t, u)).([16]byte)
	if got != u {
		t.Fatalf("uuid round trip: got %x want %x", got, u)
	}
}

// TestFloatSpecialsRegularMode checks that NaN/+Inf/-Inf always encode
// as the half-float bit patterns spec.md §4.2/§6 mandate, independent
// of canonical mode.
func TestFloatSpecialsRegularMode(t *testing.T) {
	cases := []struct {
		v    float64
		want string
	}{
		{math.NaN(), "f97e00"},
		{math.Inf(1), "f97c00"},
		{math.Inf(-1), "f9fc00"},
	}
	for _, c := range cases {
		got := encode(t, c.v)
		want := mustHex(t, c.want)
		if !bytes.Equal(got, want) {
			t.Errorf("encode(%v) = %x, want %x", c.v, got, want)
		}
	}
}

// TestFloatSpecialsCanonicalMode checks the same wire bytes still come
// out when canonical mode is also enabled.
func TestFloatSpecialsCanonicalMode(t *testing.T) {
	got := encode(t, math.NaN(), WithCanonical(true))
	want := mustHex(t, "f97e00")
	if !bytes.Equal(got, want) {
		t.Fatalf("canonical NaN = %x, want %x", got, want)
	}
}

// TestSimpleValueBoundary checks spec.md §4.2's simple-value split at
// 19/20, which sits below runtime's generic major-7 boundary at 23
// (20..23 there collide with false/true/null/undefined).
func TestSimpleValueBoundary(t *testing.T) {
	cases := []struct {
		v    SimpleValue
		want string
	}{
		{SimpleValue(0), "e0"},
		{SimpleValue(19), "f3"},
		{SimpleValue(20), "f814"},
		{SimpleValue(255), "f8ff"},
	}
	for _, c := range cases {
		got := encode(t, c.v)
		want := mustHex(t, c.want)
		if !bytes.Equal(got, want) {
			t.Errorf("encode(SimpleValue(%d)) = %x, want %x", c.v, got, want)
		}
		back := decode(t, got)
		sv, ok := back.(SimpleValue)
		if !ok || sv != c.v {
			t.Errorf("round trip SimpleValue(%d): got %#v", c.v, back)
		}
	}
}

// TestNegativeBigIntBeyondInt64 checks that a well-formed plain
// major-1 integer whose argument falls in [2^63, 2^64-1] — valid per
// spec.md §3 without needing tag 3 — decodes to *big.Int instead of
// erroring, since it doesn't fit in an int64.
func TestNegativeBigIntBeyondInt64(t *testing.T) {
	// major 1, 8-byte argument, argument = 2^63 (value = -1-2^63).
	b := mustHex(t, "3b8000000000000000")
	got := decode(t, b)
	z, ok := got.(*big.Int)
	if !ok {
		t.Fatalf("expected *big.Int, got %#v", got)
	}
	want := new(big.Int).SetUint64(1 << 63)
	want.Add(want, big.NewInt(1))
	want.Neg(want)
	if z.Cmp(want) != 0 {
		t.Fatalf("negative bigint = %v, want %v", z, want)
	}
}

// custom types used to exercise the tag registry below; none of the
// fast-path switch cases in appendValue match a named type like these.
type celsius float64
type kelvin float64

// TestRegisterEncoderInsertionOrderAndMemo checks that RegisterEncoder
// dispatches by exact concrete type (not insertion position alone),
// and that a match is memoized so repeat encodes skip the scan.
func TestRegisterEncoderInsertionOrderAndMemo(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	var calledKelvin, calledCelsius int
	enc.RegisterEncoder(kelvin(0), func(e *Encoder, b []byte, v any) ([]byte, error) {
		calledKelvin++
		return e.appendValue(b, float64(v.(kelvin)))
	})
	enc.RegisterEncoder(celsius(0), func(e *Encoder, b []byte, v any) ([]byte, error) {
		calledCelsius++
		return e.appendValue(b, float64(v.(celsius)))
	})

	if err := enc.Encode(celsius(100)); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if calledCelsius != 1 || calledKelvin != 0 {
		t.Fatalf("expected only the celsius handler to fire, got kelvin=%d celsius=%d", calledKelvin, calledCelsius)
	}

	if err := enc.Encode(celsius(0)); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if calledCelsius != 2 {
		t.Fatalf("expected celsius handler to fire again via the memoized entry, got %d", calledCelsius)
	}
	if _, ok := enc.memo[reflect.TypeOf(celsius(0))]; !ok {
		t.Fatalf("expected celsius's concrete type to be memoized after its first match")
	}
}

// TestRegisterDeferredEncoder checks that a deferred handler's loader
// runs once, on first use, and not again on a second encode.
func TestRegisterDeferredEncoder(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	loads := 0
	enc.RegisterDeferredEncoder(
		func() any { return celsius(0) },
		func() EncodeFunc {
			loads++
			return func(e *Encoder, b []byte, v any) ([]byte, error) {
				return e.appendValue(b, float64(v.(celsius)))
			}
		},
	)

	if err := enc.Encode(celsius(212)); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if loads != 1 {
		t.Fatalf("expected loader invoked once, got %d", loads)
	}

	buf.Reset()
	if err := enc.Encode(celsius(0)); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if loads != 1 {
		t.Fatalf("expected loader still invoked once after a second encode, got %d", loads)
	}
}
