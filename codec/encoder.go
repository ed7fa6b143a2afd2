package codec

import (
	"io"
	"math"
	"math/big"
	"reflect"
	"time"

	rt "github.com/synadia-labs/cbor-go/runtime"
)

// defaultMaxDepth is the encoder's recursion guard (spec.md §5:
// "Recursion is bounded by a configurable maximum depth").
const defaultMaxDepth = 10000

// Encoder serializes Go values to CBOR following spec.md §3's encoder
// state and §4.2's dispatch contract. An Encoder is not safe for
// concurrent use; create one per top-level Encode call, or reuse one
// sequentially (Encode resets the per-call shared-reference table
// itself, per spec.md's "shared table is cleared between top-level
// encode calls").
type Encoder struct {
	w io.Writer

	handlers       []*tagHandlerEntry
	memo           map[reflect.Type]EncodeFunc
	defaultHandler EncodeFunc

	shared          map[any]int
	nextSharedIndex int
	valueSharing    bool

	datetimeAsTimestamp bool
	timezone            *time.Location

	canonical canonMode

	maxDepth int
	depth    int
}

// EncOption configures an Encoder at construction time, per spec.md
// §6's encoder configuration surface.
type EncOption func(*Encoder)

// WithValueSharing enables emission of tags 28/29 for repeated or
// cyclic container references. Default: false (cycles are an error).
func WithValueSharing(enabled bool) EncOption {
	return func(e *Encoder) { e.valueSharing = enabled }
}

// WithDatetimeAsTimestamp selects tag-1 (numeric epoch) encoding for
// time.Time values instead of the tag-0 ISO-8601 string default.
func WithDatetimeAsTimestamp(enabled bool) EncOption {
	return func(e *Encoder) { e.datetimeAsTimestamp = enabled }
}

// WithTimezone sets the timezone applied to a naive datetime (the zero
// time.Time value) before encoding. Without one, encoding a naive
// datetime fails with a *CBOREncodeError wrapping errNaiveDatetime.
func WithTimezone(loc *time.Location) EncOption {
	return func(e *Encoder) { e.timezone = loc }
}

// WithCanonical selects RFC 8949 §4.2-style deterministic encoding
// (spec.md §4.7): sorted map keys/set members and minimal-width floats.
func WithCanonical(enabled bool) EncOption {
	return func(e *Encoder) {
		if enabled {
			e.canonical = canonOn
		} else {
			e.canonical = canonOff
		}
	}
}

// WithDefaultHandler installs the handler invoked when no fast-path or
// registered kind matches a value (spec.md §4.2's "default_handler").
func WithDefaultHandler(fn EncodeFunc) EncOption {
	return func(e *Encoder) { e.defaultHandler = fn }
}

// WithMaxDepth overrides the recursion guard's limit.
func WithMaxDepth(n int) EncOption {
	return func(e *Encoder) { e.maxDepth = n }
}

// NewEncoder constructs an Encoder writing to w.
func NewEncoder(w io.Writer, opts ...EncOption) *Encoder {
	e := &Encoder{w: w, maxDepth: defaultMaxDepth}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Encode serializes v and writes it to the underlying writer as a
// single CBOR data item. Each call is a fresh "top-level encode" per
// spec.md §3: the shared-reference table is reset first.
func (e *Encoder) Encode(v any) error {
	e.shared = make(map[any]int)
	e.nextSharedIndex = 0
	e.depth = 0

	b, err := e.appendValue(nil, v)
	if err != nil {
		return err
	}
	if _, err := e.w.Write(b); err != nil {
		return newEncodeError("write", err)
	}
	return nil
}

// encodeValueInto is used by the canonical path (§4.7) to pre-encode a
// map key or set member into a scratch buffer for sorting, without
// touching the top-level output or the recursion/shared state of the
// enclosing call (those are inherited: a key that contains a shared
// reference to an ancestor still resolves correctly).
func (e *Encoder) encodeValueInto(bb *rt.ByteBuffer, v any) error {
	out, err := e.appendValue(nil, v)
	if err != nil {
		return err
	}
	bb.Write(out)
	return nil
}

// appendValue is the dispatch contract from spec.md §4.2: fast path
// for common kinds, then the ordered tag-handler table, then the
// default handler.
func (e *Encoder) appendValue(b []byte, v any) ([]byte, error) {
	e.depth++
	if e.depth > e.effectiveMaxDepth() {
		e.depth--
		return b, newEncodeError("recursion", errRecursionExceeded)
	}
	defer func() { e.depth-- }()

	switch val := v.(type) {
	case nil:
		return rt.AppendNil(b), nil
	case bool:
		return rt.AppendBool(b, val), nil
	case string:
		return rt.AppendString(b, val), nil
	case []byte:
		return rt.AppendBytes(b, val), nil
	case int:
		return rt.AppendInt64(b, int64(val)), nil
	case int8:
		return rt.AppendInt64(b, int64(val)), nil
	case int16:
		return rt.AppendInt64(b, int64(val)), nil
	case int32:
		return rt.AppendInt64(b, int64(val)), nil
	case int64:
		return rt.AppendInt64(b, val), nil
	case uint:
		return rt.AppendUint64(b, uint64(val)), nil
	case uint8:
		return rt.AppendUint64(b, uint64(val)), nil
	case uint16:
		return rt.AppendUint64(b, uint64(val)), nil
	case uint32:
		return rt.AppendUint64(b, uint64(val)), nil
	case uint64:
		return rt.AppendUint64(b, val), nil
	case float32:
		return e.appendFloat(b, float64(val)), nil
	case float64:
		return e.appendFloat(b, val), nil
	case *big.Int:
		return e.appendBigInt(b, val), nil
	case SimpleValue:
		return appendSimpleValue(b, uint8(val)), nil
	case Undefined:
		return rt.AppendUndefined(b), nil
	case time.Time:
		return e.appendDatetime(b, val)
	case [16]byte:
		return rt.AppendUUID(b, val), nil
	case *Regexp:
		return rt.AppendRegexpString(b, val.Pattern), nil
	case *Mail:
		return rt.AppendMIMEString(b, val.Raw), nil
	case *DecimalFraction:
		return e.appendDecimalFraction(b, val)
	case *BigFloat:
		return e.appendBigFloat(b, val)
	case *Rational:
		return e.appendRational(b, val)
	case *Array:
		return e.appendArray(b, val)
	case *Map:
		return e.appendMap(b, val)
	case *Set:
		return e.appendSet(b, val)
	case *Tagged:
		return e.appendTagged(b, val)
	default:
		if fn, ok := e.lookupHandler(v); ok {
			return fn(e, b, v)
		}
		if e.defaultHandler != nil {
			return e.defaultHandler(e, b, v)
		}
		return b, newEncodeError("dispatch", errNoHandler)
	}
}

func (e *Encoder) effectiveMaxDepth() int {
	if e.maxDepth <= 0 {
		return defaultMaxDepth
	}
	return e.maxDepth
}

// appendFloat implements spec.md §4.2/§6's float serializer. NaN and
// ±Inf always encode as half-floats (0xF9 0x7E 0x00, 0xF9 0x7C 0x00,
// 0xF9 0xFC 0x00) regardless of canonical mode; canonical mode then
// additionally narrows finite values to their shortest round-tripping
// width, while regular mode always uses 64 bits for the rest.
func (e *Encoder) appendFloat(b []byte, f float64) []byte {
	if math.IsNaN(f) {
		return rt.AppendFloat16(b, float32(math.NaN()))
	}
	if math.IsInf(f, 0) {
		return rt.AppendFloat16(b, float32(f))
	}
	if e.canonical == canonOn {
		return encodeFloatCanonical(b, f)
	}
	return rt.AppendFloat64(b, f)
}

// appendSimpleValue implements spec.md §4.2's simple-value serializer:
// 0..19 inline in the lead byte, 20..255 as 0xF8 followed by the byte.
// This boundary sits below runtime.AppendSimpleValue's (which inlines
// up to 23, the generic major-7 additional-info limit), because 20..23
// are already claimed by false/true/null/undefined; reusing the
// generic helper here would make SimpleValue(20) indistinguishable
// from false on the wire.
func appendSimpleValue(b []byte, val uint8) []byte {
	if val <= 19 {
		return append(b, 0xE0|val)
	}
	return append(b, 0xF8, val)
}

// appendBigInt implements spec.md §4.2's integer serializer for
// arbitrary-precision values: emit a plain major-0/1 integer when it
// fits 64 bits, else fall back to the tag-2/3 bignum encoding.
func (e *Encoder) appendBigInt(b []byte, z *big.Int) []byte {
	if z.Sign() >= 0 {
		if z.BitLen() <= 64 {
			return rt.AppendUint64(b, z.Uint64())
		}
		return rt.AppendBigInt(b, z)
	}
	n := new(big.Int).Neg(z)
	n.Sub(n, big.NewInt(1)) // n = -z-1
	if n.BitLen() <= 63 {   // fits int64's representable negative range
		return rt.AppendInt64(b, z.Int64())
	}
	if n.BitLen() <= 64 { // n in [2^63, 2^64): major 1 with an 8-byte argument
		u := n.Uint64()
		return append(b, 0x3b, byte(u>>56), byte(u>>48), byte(u>>40), byte(u>>32),
			byte(u>>24), byte(u>>16), byte(u>>8), byte(u))
	}
	return rt.AppendBigInt(b, z)
}

// appendDatetime implements spec.md §4.2's datetime serializer.
func (e *Encoder) appendDatetime(b []byte, t time.Time) ([]byte, error) {
	// Go's time.Time is always "aware" (it has a Location, defaulting
	// to UTC), so the naive-datetime ValueError from spec.md only
	// applies to the zero time.Time{} value, which callers use as the
	// "naive" sentinel; we honor the configured default timezone for it.
	if t.IsZero() && e.timezone == nil {
		return b, newEncodeError("datetime", errNaiveDatetime)
	}
	if t.IsZero() && e.timezone != nil {
		t = t.In(e.timezone)
	}

	if e.datetimeAsTimestamp {
		b = rt.AppendTag(b, 1)
		sec := t.Unix()
		nsec := t.Nanosecond()
		if nsec == 0 {
			return rt.AppendInt64(b, sec), nil
		}
		return rt.AppendFloat64(b, float64(sec)+float64(nsec)/1e9), nil
	}

	b = rt.AppendTag(b, 0)
	s := t.Format("2006-01-02T15:04:05.999999Z07:00")
	if len(s) >= 6 && s[len(s)-6:] == "+00:00" {
		s = s[:len(s)-6] + "Z"
	}
	return rt.AppendString(b, s), nil
}

// appendDecimalFraction, appendBigFloat, and appendRational all emit a
// tag followed by a 2-element array whose sharing is suppressed
// (spec.md §4.2: "Value sharing for this nested array is suppressed").
func (e *Encoder) appendDecimalFraction(b []byte, v *DecimalFraction) ([]byte, error) {
	b = rt.AppendTag(b, 4)
	b = rt.AppendArrayHeader(b, 2)
	b = rt.AppendInt64(b, v.Exponent)
	return e.appendMantissa(b, v.Mantissa)
}

func (e *Encoder) appendBigFloat(b []byte, v *BigFloat) ([]byte, error) {
	b = rt.AppendTag(b, 5)
	b = rt.AppendArrayHeader(b, 2)
	b = rt.AppendInt64(b, v.Exponent)
	return e.appendMantissa(b, v.Mantissa)
}

func (e *Encoder) appendRational(b []byte, v *Rational) ([]byte, error) {
	b = rt.AppendTag(b, 30)
	b = rt.AppendArrayHeader(b, 2)
	b = e.appendBigInt(b, v.Num)
	return e.appendBigInt(b, v.Denom), nil
}

func (e *Encoder) appendMantissa(b []byte, m *big.Int) ([]byte, error) {
	if m == nil {
		return b, encodeErrorf("decimal", "nil mantissa")
	}
	return e.appendBigInt(b, m), nil
}

func (e *Encoder) appendArray(b []byte, a *Array) ([]byte, error) {
	return e.shareWrap(b, a, func(b []byte) ([]byte, error) {
		b = rt.AppendArrayHeader(b, uint32(len(a.Items)))
		var err error
		for _, item := range a.Items {
			b, err = e.appendValue(b, item)
			if err != nil {
				return b, err
			}
		}
		return b, nil
	})
}

func (e *Encoder) appendMap(b []byte, m *Map) ([]byte, error) {
	return e.shareWrap(b, m, func(b []byte) ([]byte, error) {
		b = rt.AppendMapHeader(b, uint32(len(m.Pairs)))
		if e.canonical == canonOn {
			sorted, err := e.canonicalizeMap(m)
			if err != nil {
				return b, err
			}
			for _, s := range sorted {
				b = append(b, s.encKey...)
				b, err = e.appendValue(b, s.pair.Value)
				if err != nil {
					return b, err
				}
			}
			return b, nil
		}
		var err error
		for _, p := range m.Pairs {
			b, err = e.appendValue(b, p.Key)
			if err != nil {
				return b, err
			}
			b, err = e.appendValue(b, p.Value)
			if err != nil {
				return b, err
			}
		}
		return b, nil
	})
}

func (e *Encoder) appendSet(b []byte, s *Set) ([]byte, error) {
	return e.shareWrap(b, s, func(b []byte) ([]byte, error) {
		b = rt.AppendTag(b, 258)
		if e.canonical == canonOn {
			sorted, err := e.canonicalizeSet(s)
			if err != nil {
				return b, err
			}
			b = rt.AppendArrayHeader(b, uint32(len(sorted)))
			for _, m := range sorted {
				b = append(b, m.enc...)
			}
			return b, nil
		}
		b = rt.AppendArrayHeader(b, uint32(len(s.Members)))
		var err error
		for _, m := range s.Members {
			b, err = e.appendValue(b, m)
			if err != nil {
				return b, err
			}
		}
		return b, nil
	})
}

func (e *Encoder) appendTagged(b []byte, t *Tagged) ([]byte, error) {
	return e.shareWrap(b, t, func(b []byte) ([]byte, error) {
		b = rt.AppendTag(b, t.Number)
		return e.appendValue(b, t.Content)
	})
}
