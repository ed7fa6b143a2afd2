package codec

import (
	"encoding/binary"
	"errors"
	"io"
	"math/big"
	"time"

	rt "github.com/synadia-labs/cbor-go/runtime"
)

// This file is the decoder core (spec.md §4.3/§4.4/§4.5), structured
// as a major-type switch over the lead byte, grounded on
// runtime/diag.go's diagOneBuf (the teacher's own "decode one item and
// recurse" traversal, which already walks every major type including
// indefinite-length chunking) and on original_source/cboar's decoder.c
// for the shared-reference and tag-dispatch semantics diag.go doesn't
// need.

// CBOR lead-byte layout: major type in the top 3 bits, additional info
// in the bottom 5 (RFC 8949 §3). These two helpers split a lead byte,
// since runtime keeps the equivalent getMajorType/getAddInfo pair
// unexported.
func peekMajor(lead byte) uint8   { return lead >> 5 }
func peekAddInfo(lead byte) uint8 { return lead & 0x1f }

const (
	majorUint  = 0
	majorNeg   = 1
	majorBytes = 2
	majorText  = 3
	majorArray = 4
	majorMap   = 5
	majorTag   = 6
	majorSeven = 7
)

const (
	addIndefinite = 31
	leadBreak     = 0xff
	leadFloat16   = 0xf9
	leadFloat32   = 0xfa
	leadFloat64   = 0xfb
	leadFalse     = 0xf4
	leadTrue      = 0xf5
	leadNull      = 0xf6
	leadUndefined = 0xf7
)

// StrErrorsPolicy selects how invalid UTF-8 in text strings is
// handled, per spec.md §4.5.
type StrErrorsPolicy uint8

const (
	StrErrorsStrict  StrErrorsPolicy = iota // reject (default)
	StrErrorsError                          // same as strict; named for parity with the python str_errors="error"
	StrErrorsReplace                        // substitute U+FFFD for invalid sequences
)

// TagHook lets a caller post-process a *Tagged value for an
// unrecognized tag number, per spec.md §4.6's "tag_hook" extension
// point.
type TagHook func(d *Decoder, t *Tagged) (any, error)

// ObjectHook lets a caller post-process every decoded *Map, per
// spec.md §4.6's "object_hook" extension point (e.g. turning maps with
// string keys into a caller-defined struct).
type ObjectHook func(d *Decoder, m *Map) (any, error)

// Decoder deserializes CBOR from an io.Reader into Go values following
// spec.md §3's decoder state and §4.3-§4.6's dispatch contract.
type Decoder struct {
	r   io.Reader
	buf []byte // the full remaining input for this Decode call

	shareables []any
	sharedIndex int

	strErrors StrErrorsPolicy
	tagHook   TagHook
	objectHook ObjectHook

	maxDepth int
	depth    int
}

// DecOption configures a Decoder at construction time.
type DecOption func(*Decoder)

// WithStrErrors selects the UTF-8 error policy for text strings.
func WithStrErrors(p StrErrorsPolicy) DecOption {
	return func(d *Decoder) { d.strErrors = p }
}

// WithTagHook installs the fallback handler for unrecognized tags.
func WithTagHook(fn TagHook) DecOption {
	return func(d *Decoder) { d.tagHook = fn }
}

// WithObjectHook installs the post-decode map transformer.
func WithObjectHook(fn ObjectHook) DecOption {
	return func(d *Decoder) { d.objectHook = fn }
}

// WithDecodeMaxDepth overrides the decoder's recursion guard.
func WithDecodeMaxDepth(n int) DecOption {
	return func(d *Decoder) { d.maxDepth = n }
}

// NewDecoder constructs a Decoder reading from r.
func NewDecoder(r io.Reader, opts ...DecOption) *Decoder {
	d := &Decoder{r: r, maxDepth: defaultMaxDepth, sharedIndex: noSharedIndex}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Decode reads and returns exactly one top-level CBOR data item.
func (d *Decoder) Decode() (any, error) {
	if d.buf == nil {
		raw, err := io.ReadAll(d.r)
		if err != nil {
			return nil, newDecodeError("read", err)
		}
		d.buf = raw
	}
	d.resetShareables()
	d.depth = 0

	v, rest, err := d.decodeValue(d.buf)
	if err != nil {
		return nil, err
	}
	d.buf = rest
	return v, nil
}

func (d *Decoder) effectiveMaxDepth() int {
	if d.maxDepth <= 0 {
		return defaultMaxDepth
	}
	return d.maxDepth
}

// decodeValue decodes exactly one data item from the front of b,
// returning the value and the unconsumed remainder.
func (d *Decoder) decodeValue(b []byte) (any, []byte, error) {
	d.depth++
	if d.depth > d.effectiveMaxDepth() {
		d.depth--
		return nil, b, newDecodeError("recursion", errRecursionExceeded)
	}
	defer func() { d.depth-- }()

	if len(b) < 1 {
		return nil, b, newDecodeError("read", errPrematureEOF)
	}
	lead := b[0]

	switch lead {
	case leadFalse:
		return false, b[1:], nil
	case leadTrue:
		return true, b[1:], nil
	case leadNull:
		return nil, b[1:], nil
	case leadUndefined:
		return Undefined{}, b[1:], nil
	case leadFloat16:
		f, o, err := rt.ReadFloat16Bytes(b)
		if err != nil {
			return nil, b, newDecodeError("float16", err)
		}
		return float64(f), o, nil
	case leadFloat32:
		f, o, err := rt.ReadFloat32Bytes(b)
		if err != nil {
			return nil, b, newDecodeError("float32", err)
		}
		return float64(f), o, nil
	case leadFloat64:
		f, o, err := rt.ReadFloat64Bytes(b)
		if err != nil {
			return nil, b, newDecodeError("float64", err)
		}
		return f, o, nil
	case leadBreak:
		return nil, b, newDecodeError("read", errBreakOutsideOpen)
	}

	switch peekMajor(lead) {
	case majorUint:
		u, o, err := rt.ReadUint64Bytes(b)
		if err != nil {
			return nil, b, newDecodeError("uint", err)
		}
		return u, o, nil
	case majorNeg:
		i, o, err := rt.ReadInt64Bytes(b)
		if err != nil {
			var overflow rt.IntOverflow
			if errors.As(err, &overflow) && len(b) >= 9 {
				// A plain (non-tag-3) major-1 integer whose 8-byte
				// argument n is in [2^63, 2^64-1] is still well-formed
				// per spec.md §3 ("negative-int <= 64 bits after
				// negation-minus-one"); ReadInt64Bytes only covers the
				// int64-representable band, so fall back to *big.Int
				// for the rest: value = -1-n.
				n := binary.BigEndian.Uint64(b[1:9])
				z := new(big.Int).SetUint64(n)
				z.Add(z, big.NewInt(1))
				z.Neg(z)
				return z, b[9:], nil
			}
			return nil, b, newDecodeError("negint", err)
		}
		return i, o, nil
	case majorBytes:
		return d.decodeBytesOrText(b, false)
	case majorText:
		return d.decodeBytesOrText(b, true)
	case majorArray:
		return d.decodeArray(b)
	case majorMap:
		return d.decodeMap(b)
	case majorTag:
		return d.decodeTagged(b)
	case majorSeven:
		// Any additional-info value not already special-cased above:
		// reserved subtypes 28-30, or a plain simple(n) literal.
		if ai := peekAddInfo(lead); ai == 28 || ai == 29 || ai == 30 {
			return nil, b, newDecodeError("simple", errReservedSubtype)
		}
		val, o, err := rt.ReadSimpleValue(b)
		if err != nil {
			return nil, b, newDecodeError("simple", err)
		}
		return SimpleValue(val), o, nil
	}
	return nil, b, decodeErrorf("read", "unreachable major type")
}

// decodeBytesOrText handles both definite-length strings and the
// indefinite chunked form, per spec.md §4.5: "chunks of an indefinite
// text string are each individually validated/decoded, never
// concatenated as raw bytes first".
func (d *Decoder) decodeBytesOrText(b []byte, text bool) (any, []byte, error) {
	if peekAddInfo(b[0]) == addIndefinite {
		p := b[1:]
		var byteChunks [][]byte
		var strBuilder []string
		for {
			rest, isBreak, err := rt.ReadBreakBytes(p)
			if err != nil {
				return nil, b, newDecodeError("chunk", err)
			}
			if isBreak {
				p = rest
				break
			}
			if len(p) < 1 {
				return nil, b, newDecodeError("chunk", errPrematureEOF)
			}
			if peekMajor(p[0]) != peekMajor(b[0]) {
				return nil, b, newDecodeError("chunk", errChunkMajorMismatch)
			}
			if text {
				s, o, err := d.readStringChunk(p)
				if err != nil {
					return nil, b, err
				}
				strBuilder = append(strBuilder, s)
				p = o
			} else {
				bs, o, err := rt.ReadBytesBytes(p, nil)
				if err != nil {
					return nil, b, newDecodeError("chunk", err)
				}
				byteChunks = append(byteChunks, bs)
				p = o
			}
		}
		if text {
			total := ""
			for _, s := range strBuilder {
				total += s
			}
			return total, p, nil
		}
		var total []byte
		for _, c := range byteChunks {
			total = append(total, c...)
		}
		return total, p, nil
	}

	if text {
		return d.readStringChunk(b)
	}
	bs, o, err := rt.ReadBytesBytes(b, nil)
	if err != nil {
		return nil, b, newDecodeError("bytes", err)
	}
	return bs, o, nil
}

func (d *Decoder) readStringChunk(b []byte) (string, []byte, error) {
	if d.strErrors == StrErrorsReplace {
		raw, o, err := rt.ReadStringZC(b)
		if err != nil {
			return "", b, newDecodeError("text", err)
		}
		return sanitizeUTF8(raw), o, nil
	}
	s, o, err := rt.ReadStringBytes(b)
	if err != nil {
		return "", b, newDecodeError("text", errNonUTF8Strict)
	}
	return s, o, nil
}

// sanitizeUTF8 implements the "replace" str_errors policy by round
// tripping through Go's built-in invalid-sequence substitution (a rune
// conversion of any []byte already replaces ill-formed sequences with
// U+FFFD, per the Go spec for "range over string" and string(rune
// slice) conversions).
func sanitizeUTF8(raw []byte) string {
	return string([]rune(string(raw)))
}

// decodeArray publishes its handle into the enclosing tag-28 slot (if
// any) before decoding any elements, per spec.md §9's "mutable
// containers publish early" rule — this is what lets an array contain
// a reference to itself. setShareable is a no-op when no tag-28 is
// currently open.
func (d *Decoder) decodeArray(b []byte) (any, []byte, error) {
	a := &Array{}
	d.setShareable(a)

	sz, indefinite, p, err := rt.ReadArrayStartBytes(b)
	if err != nil {
		return nil, b, newDecodeError("array", err)
	}

	if indefinite {
		for {
			rest, isBreak, berr := rt.ReadBreakBytes(p)
			if berr != nil {
				return nil, b, newDecodeError("array", berr)
			}
			if isBreak {
				p = rest
				break
			}
			var item any
			item, p, err = d.decodeValue(p)
			if err != nil {
				return nil, b, err
			}
			a.Items = append(a.Items, item)
		}
	} else {
		for i := uint32(0); i < sz; i++ {
			var item any
			item, p, err = d.decodeValue(p)
			if err != nil {
				return nil, b, err
			}
			a.Items = append(a.Items, item)
		}
	}

	return a, p, nil
}

// decodeMap publishes its handle into the enclosing tag-28 slot (if
// any) before decoding any pairs, for the same self-reference reason
// as decodeArray. Map keys have sharing suppressed while they decode
// (spec.md §9): a key may not itself be the target of a later tag-29.
func (d *Decoder) decodeMap(b []byte) (any, []byte, error) {
	m := &Map{}
	d.setShareable(m)

	sz, indefinite, p, err := rt.ReadMapStartBytes(b)
	if err != nil {
		return nil, b, newDecodeError("map", err)
	}

	decodePair := func(p []byte) ([]byte, error) {
		restoreKey := d.suppressSharing()
		key, p2, kerr := d.decodeValue(p)
		restoreKey()
		if kerr != nil {
			return p, kerr
		}
		val, p3, verr := d.decodeValue(p2)
		if verr != nil {
			return p, verr
		}
		m.Pairs = append(m.Pairs, Pair{Key: key, Value: val})
		return p3, nil
	}

	if indefinite {
		for {
			rest, isBreak, berr := rt.ReadBreakBytes(p)
			if berr != nil {
				return nil, b, newDecodeError("map", berr)
			}
			if isBreak {
				p = rest
				break
			}
			p, err = decodePair(p)
			if err != nil {
				return nil, b, err
			}
		}
	} else {
		for i := uint32(0); i < sz; i++ {
			p, err = decodePair(p)
			if err != nil {
				return nil, b, err
			}
		}
	}

	if d.objectHook != nil {
		out, herr := d.objectHook(d, m)
		if herr != nil {
			return nil, b, newDecodeError("object-hook", herr)
		}
		return out, p, nil
	}
	return m, p, nil
}

// decodeTagged dispatches a tag number to its handler. Tags 28/29
// manipulate the shared-reference cursor directly; tag 258 (set) must
// suppress sharing for its inner array and publish only the resulting
// *Set (spec.md §9); every other recognized tag decodes its inner item
// normally (suppressing sharing first for tags 4/5/30, per
// sharingSuppressedTags) and then transforms it via decoderTagTable.
func (d *Decoder) decodeTagged(b []byte) (any, []byte, error) {
	tag, p, err := rt.ReadTagBytes(b)
	if err != nil {
		return nil, b, newDecodeError("tag", err)
	}

	switch tag {
	case 28:
		slot, saved := d.beginShareable()
		v, rest, derr := d.decodeValue(p)
		if derr != nil {
			d.sharedIndex = saved
			return nil, b, derr
		}
		d.endShareable(slot, saved, v)
		return v, rest, nil
	case 29:
		idx, rest, derr := rt.ReadInt64Bytes(p)
		if derr != nil {
			return nil, b, newDecodeError("tag-29", errSharedIndexType)
		}
		v, rerr := d.sharedRef(idx)
		if rerr != nil {
			return nil, b, rerr
		}
		return v, rest, nil
	case 258:
		return d.decodeTagSet(p)
	}

	if sharingSuppressedTags[tag] {
		restore := d.suppressSharing()
		inner, rest, derr := d.decodeValue(p)
		restore()
		if derr != nil {
			return nil, b, derr
		}
		return d.finishTag(tag, inner, rest, b)
	}

	inner, rest, derr := d.decodeValue(p)
	if derr != nil {
		return nil, b, derr
	}
	return d.finishTag(tag, inner, rest, b)
}

func (d *Decoder) finishTag(tag uint64, inner any, rest, orig []byte) (any, []byte, error) {
	if fn, ok := decoderTagTable[tag]; ok {
		v, err := fn(d, inner)
		if err != nil {
			return nil, orig, err
		}
		return v, rest, nil
	}
	t := &Tagged{Number: tag, Content: inner}
	if d.tagHook != nil {
		v, err := d.tagHook(d, t)
		if err != nil {
			return nil, orig, newDecodeError("tag-hook", err)
		}
		return v, rest, nil
	}
	return t, rest, nil
}

// decodeTagSet decodes the inner array of a tag-258 value with sharing
// suppressed (so the intermediate *Array never itself gets published
// into an enclosing tag-28 slot), then publishes only the finished
// *Set — the immutable-container "publish after full construction"
// rule from spec.md §9.
func (d *Decoder) decodeTagSet(p []byte) (any, []byte, error) {
	restore := d.suppressSharing()
	inner, rest, err := d.decodeValue(p)
	restore()
	if err != nil {
		return nil, p, err
	}
	arr, ok := inner.(*Array)
	if !ok {
		return nil, p, newDecodeError("tag-258", errSetNonArray)
	}
	s := &Set{Members: arr.Items}
	d.setShareable(s)
	return s, rest, nil
}

func decodeTagDateTimeString(d *Decoder, inner any) (any, error) {
	s, ok := inner.(string)
	if !ok {
		return nil, decodeErrorf("tag-0", "expected a text string, got %T", inner)
	}
	t, err := parseRFC3339Relaxed(s)
	if err != nil {
		return nil, newDecodeError("tag-0", errInvalidDatetime)
	}
	return t, nil
}

func decodeTagEpochDateTime(d *Decoder, inner any) (any, error) {
	switch n := inner.(type) {
	case int64:
		return secondsToTime(float64(n)), nil
	case uint64:
		return secondsToTime(float64(n)), nil
	case float64:
		return secondsToTime(n), nil
	default:
		return nil, decodeErrorf("tag-1", "expected a number, got %T", inner)
	}
}

// rfc3339Layouts covers the tag-0 variants spec.md §4.4 requires
// accepting: with or without fractional seconds, "Z" or a numeric
// offset.
var rfc3339Layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
}

func parseRFC3339Relaxed(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range rfc3339Layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, lastErr
}

func secondsToTime(secs float64) time.Time {
	whole := int64(secs)
	frac := secs - float64(whole)
	return time.Unix(whole, int64(frac*1e9)).UTC()
}
