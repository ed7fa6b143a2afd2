package codec

import rt "github.com/synadia-labs/cbor-go/runtime"

// This file implements the shared-reference subsystem described in
// spec.md §4.3: encoder-side identity tracking that emits tags 28/29,
// and decoder-side shareables list + cursor that reconstructs cyclic
// graphs. Grounded on original_source/cboar's encoder.c "shared" dict
// and decoder.c "shareables" list.

// --- encoder side -----------------------------------------------------

// shareableKey reports whether v is one of the container kinds the
// spec routes through the shared-reference wrapper (array, map, set,
// tagged) and, if so, returns a comparable identity key for it. Go
// pointers are already comparable and unique per allocation, so the
// pointer value itself is the identity key.
func shareableKey(v any) (key any, ok bool) {
	switch v.(type) {
	case *Array, *Map, *Set, *Tagged:
		return v, true
	default:
		return nil, false
	}
}

// shareWrap is the entry point every container serializer calls before
// emitting its major-type bytes. inner performs the actual major-type
// serialization (length header + elements), appending to b.
func (e *Encoder) shareWrap(b []byte, v any, inner func([]byte) ([]byte, error)) ([]byte, error) {
	key, ok := shareableKey(v)
	if !ok {
		return inner(b)
	}

	if e.valueSharing {
		if idx, seen := e.shared[key]; seen {
			return rtAppendTag29(b, idx), nil
		}
		idx := e.nextSharedIndex
		e.nextSharedIndex++
		e.shared[key] = idx
		b = rtAppendTag28(b)
		return inner(b)
	}

	// Sharing disabled: the shared map is used purely for cycle
	// detection for the lifetime of this recursive call.
	if _, seen := e.shared[key]; seen {
		return b, newEncodeError("shared-ref", errCyclicNoSharing)
	}
	e.shared[key] = -1
	out, err := inner(b)
	delete(e.shared, key)
	return out, err
}

func rtAppendTag28(b []byte) []byte { return rt.AppendTag(b, 28) }

func rtAppendTag29(b []byte, idx int) []byte {
	b = rt.AppendTag(b, 29)
	return rt.AppendInt64(b, int64(idx))
}

// --- decoder side -------------------------------------------------------

// noSharedIndex is the "not currently under a tag-28" sentinel cursor
// value (spec.md §3: "shared_index cursor ... -1 when not under tag 28").
const noSharedIndex = -1

// beginShareable allocates the next shareables slot, saving the
// current cursor so it can be restored by the caller via
// endShareable. It is called when a tag-28 lead byte is encountered.
func (d *Decoder) beginShareable() (slot int, saved int) {
	saved = d.sharedIndex
	d.shareables = append(d.shareables, nil)
	slot = len(d.shareables) - 1
	d.sharedIndex = slot
	return slot, saved
}

// endShareable restores the cursor saved by beginShareable and, if
// nothing proactively published into the slot while it was current
// (true of every scalar kind, and of any future kind that doesn't
// implement early publication), fills it in with the fully-decoded
// value so tag-29 references to it still resolve.
func (d *Decoder) endShareable(slot, saved int, v any) {
	if d.shareables[slot] == nil {
		d.shareables[slot] = v
	}
	d.sharedIndex = saved
}

// setShareable publishes v into the slot the current cursor points
// at, if any. Mutable container constructors (array, map) call this
// as soon as they have a handle, before decoding children, so that
// cyclic back-references resolve. Immutable containers (set) call it
// only once all children have been decoded (spec.md §9).
func (d *Decoder) setShareable(v any) {
	if d.sharedIndex != noSharedIndex && d.shareables[d.sharedIndex] == nil {
		d.shareables[d.sharedIndex] = v
	}
}

// suppressSharing saves the current cursor, sets it to the "not under
// tag 28" sentinel, and returns a restore function. Used for the
// recursive sites spec.md §9 calls out as must-not-participate: map
// keys and the internal arrays of tag 4 (decimal fraction), tag 5
// (bigfloat), and tag 30 (rational).
func (d *Decoder) suppressSharing() (restore func()) {
	saved := d.sharedIndex
	d.sharedIndex = noSharedIndex
	return func() { d.sharedIndex = saved }
}

// sharedRef dereferences a tag-29 index against the shareables list.
func (d *Decoder) sharedRef(idx int64) (any, error) {
	if idx < 0 || idx >= int64(len(d.shareables)) {
		return nil, newDecodeError("shared-ref", errSharedIndexRange)
	}
	v := d.shareables[idx]
	if v == nil {
		return nil, newDecodeError("shared-ref", errSharedIndexRange)
	}
	return v, nil
}

// resetShareables clears decode-side sharing state; called at the
// start of every top-level Decode call (spec.md §3: "encoder's shared
// table is cleared between top-level encode calls" — the decoder-side
// equivalent is that shareables is scoped to a single top-level decode).
func (d *Decoder) resetShareables() {
	d.shareables = d.shareables[:0]
	d.sharedIndex = noSharedIndex
}
