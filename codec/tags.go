package codec

import (
	"math/big"
	"net/mail"
	"reflect"
	"regexp"
	"strings"
	"sync"
)

// This file is the tag registry (spec.md §4.6): an ordered,
// insertion-order encoder-side table with deferred-entry support, and
// a fixed decoder-side switch table, grounded on
// original_source/cboar/source/tags.c.

// EncodeFunc serializes v (guaranteed assignable to the type the
// handler was registered for) by appending its CBOR encoding to b and
// returning the extended slice, matching the runtime package's
// Append-style idiom.
type EncodeFunc func(e *Encoder, b []byte, v any) ([]byte, error)

type tagHandlerEntry struct {
	rtype reflect.Type
	fn    EncodeFunc

	once    *sync.Once
	example func() any
	loader  func() EncodeFunc
}

func (h *tagHandlerEntry) resolve() {
	if h.once == nil {
		return
	}
	h.once.Do(func() {
		h.rtype = reflect.TypeOf(h.example())
		h.fn = h.loader()
	})
}

// RegisterEncoder adds fn as the handler for exactly kindExample's
// type, and for any type assignable to it (e.g. a named interface),
// appended after all previously registered handlers. Later,
// subkind-matching lookups search in this insertion order, per
// spec.md §4.2.
func (e *Encoder) RegisterEncoder(kindExample any, fn EncodeFunc) {
	e.handlers = append(e.handlers, &tagHandlerEntry{
		rtype: reflect.TypeOf(kindExample),
		fn:    fn,
	})
}

// RegisterDeferredEncoder registers a handler whose concrete type and
// implementation are not resolved until the first time the encoder
// fails to find a fast-path or already-resolved match — the Go analog
// of spec.md §4.6's "(module, name)" lazily-imported entries. example
// and loader are invoked at most once, under a once-init guard.
func (e *Encoder) RegisterDeferredEncoder(example func() any, loader func() EncodeFunc) {
	e.handlers = append(e.handlers, &tagHandlerEntry{
		once:    new(sync.Once),
		example: example,
		loader:  loader,
	})
}

// lookupHandler implements the §4.2 "consult the ordered tag-handler
// map" fallback: exact match by concrete type first (memoized), else
// linear search for a registered type the value's type is assignable
// to, memoizing the concrete type on a positive match so subsequent
// lookups for that same concrete type are O(1).
func (e *Encoder) lookupHandler(v any) (EncodeFunc, bool) {
	rt := reflect.TypeOf(v)
	if rt == nil {
		return nil, false
	}
	if fn, ok := e.memo[rt]; ok {
		return fn, true
	}
	for _, h := range e.handlers {
		if h.rtype == rt {
			if e.memo == nil {
				e.memo = make(map[reflect.Type]EncodeFunc)
			}
			e.memo[rt] = h.fn
			return h.fn, true
		}
	}
	for _, h := range e.handlers {
		h.resolve()
		if h.rtype != nil && rt.AssignableTo(h.rtype) {
			if e.memo == nil {
				e.memo = make(map[reflect.Type]EncodeFunc)
			}
			e.memo[rt] = h.fn
			return h.fn, true
		}
	}
	return nil, false
}

// --- decoder-side fixed tag table (spec.md §4.4) -----------------------

// tagDecodeFunc transforms an already-decoded inner value into the
// semantic type the tag represents.
type tagDecodeFunc func(d *Decoder, inner any) (any, error)

// sharingSuppressedTags lists the semantic tags whose inner array must
// not participate in the shared-reference subsystem (spec.md §9).
var sharingSuppressedTags = map[uint64]bool{4: true, 5: true, 30: true}

var decoderTagTable map[uint64]tagDecodeFunc

func init() {
	decoderTagTable = map[uint64]tagDecodeFunc{
		0:   decodeTagDateTimeString,
		1:   decodeTagEpochDateTime,
		2:   decodeTagPosBignum,
		3:   decodeTagNegBignum,
		4:   decodeTagDecimalFraction,
		5:   decodeTagBigfloat,
		30:  decodeTagRational,
		35:  decodeTagRegexpValue,
		36:  decodeTagMIME,
		37:  decodeTagUUID,
		// 28, 29, and 258 are handled specially by decodeTagged: 28/29
		// manipulate the shared-reference cursor directly, and 258
		// (set) must publish its *Set, not the intermediate *Array,
		// into the shareables slot (spec.md §9).
	}
}

func asBigInt(v any) (*big.Int, bool) {
	switch n := v.(type) {
	case int64:
		return big.NewInt(n), true
	case uint64:
		return new(big.Int).SetUint64(n), true
	case *big.Int:
		return n, true
	default:
		return nil, false
	}
}

func decodeTagPosBignum(d *Decoder, inner any) (any, error) {
	bs, ok := inner.([]byte)
	if !ok {
		return nil, newDecodeError("tag-2", errBigIntNonBytes)
	}
	return new(big.Int).SetBytes(bs), nil
}

func decodeTagNegBignum(d *Decoder, inner any) (any, error) {
	bs, ok := inner.([]byte)
	if !ok {
		return nil, newDecodeError("tag-3", errBigIntNonBytes)
	}
	z := new(big.Int).SetBytes(bs)
	z.Neg(z)
	z.Sub(z, big.NewInt(1))
	return z, nil
}

func decodeTwoElementArray(op string, inner any) (a, b *big.Int, err error) {
	arr, ok := inner.(*Array)
	if !ok || len(arr.Items) != 2 {
		return nil, nil, decodeErrorf(op, "expected a 2-element array, got %T", inner)
	}
	a, ok1 := asBigInt(arr.Items[0])
	b, ok2 := asBigInt(arr.Items[1])
	if !ok1 || !ok2 {
		return nil, nil, decodeErrorf(op, "array elements must be integers")
	}
	return a, b, nil
}

func decodeTagDecimalFraction(d *Decoder, inner any) (any, error) {
	exp, mant, err := decodeTwoElementArray("tag-4", inner)
	if err != nil {
		return nil, err
	}
	return &DecimalFraction{Exponent: exp.Int64(), Mantissa: mant}, nil
}

func decodeTagBigfloat(d *Decoder, inner any) (any, error) {
	exp, mant, err := decodeTwoElementArray("tag-5", inner)
	if err != nil {
		return nil, err
	}
	return &BigFloat{Exponent: exp.Int64(), Mantissa: mant}, nil
}

func decodeTagRational(d *Decoder, inner any) (any, error) {
	num, den, err := decodeTwoElementArray("tag-30", inner)
	if err != nil {
		return nil, err
	}
	return &Rational{Num: num, Denom: den}, nil
}

func decodeTagRegexpValue(d *Decoder, inner any) (any, error) {
	s, ok := inner.(string)
	if !ok {
		return nil, decodeErrorf("tag-35", "expected a text string, got %T", inner)
	}
	re, err := regexp.Compile(s)
	if err != nil {
		return nil, newDecodeError("tag-35", err)
	}
	return &Regexp{Pattern: s, Regexp: re}, nil
}

func decodeTagMIME(d *Decoder, inner any) (any, error) {
	s, ok := inner.(string)
	if !ok {
		return nil, decodeErrorf("tag-36", "expected a text string, got %T", inner)
	}
	msg, err := mail.ReadMessage(strings.NewReader(s))
	if err != nil {
		return nil, newDecodeError("tag-36", err)
	}
	return &Mail{Raw: s, Message: msg}, nil
}

func decodeTagUUID(d *Decoder, inner any) (any, error) {
	bs, ok := inner.([]byte)
	if !ok || len(bs) != 16 {
		return nil, decodeErrorf("tag-37", "expected a 16-byte string, got %T", inner)
	}
	var u [16]byte
	copy(u[:], bs)
	return u, nil
}

