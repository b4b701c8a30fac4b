//go:build nanbox

package machine

import "math"

// nanValue is the compact, optional register-slot encoding described in §3's
// value-encoding caveat and §9: a single uint64 that is either a live IEEE
// 754 double (the common case, since every sarrazin number already is one),
// or — when its bits fall inside the quiet-NaN space — a tagged immediate or
// a boxed heap reference. Quiet NaNs whose tag bits are zero decode as the
// number NaN.
//
// Layout, most to least significant bit:
//
//	63..52  exponent: all ones (0x7ff) marks the value as "not a plain
//	        float"; any other pattern means nanValue IS the float, bit for
//	        bit, with no further decoding.
//	51      quiet-NaN bit, always set for our tagged forms, so the payload
//	        never collides with a signalling NaN a real computation could
//	        produce.
//	50..48  tag: selects which of the payload interpretations below applies.
//	47..0   payload: immediate bits, or an index into boxedPtrs for heap
//	        kinds.
type nanValue uint64

const (
	nanQuietBit  = uint64(1) << 51
	nanExpMask   = uint64(0x7ff) << 52
	nanTagShift  = 48
	nanTagMask   = uint64(0x7) << nanTagShift
	nanPayload48 = uint64(1)<<48 - 1
)

const (
	tagNaN nanTag = iota // an ordinary quiet NaN, including the canonical one boxIface normalizes to
	tagNil
	tagFalse
	tagTrue
	tagSmallInt // payload is a sign-extended 48-bit integer, for integral numbers too large for an immediate flag but still boxable without allocation
	tagHeap     // payload is an index into boxedPtrs
)

type nanTag uint64

// isBoxedForm reports whether bits represents one of our tagged encodings
// rather than a plain float64 bit pattern.
func isBoxedForm(bits uint64) bool {
	return bits&nanExpMask == nanExpMask && bits&nanQuietBit != 0
}

func makeTagged(tag nanTag, payload uint64) nanValue {
	return nanValue(nanExpMask | nanQuietBit | (uint64(tag) << nanTagShift) | (payload & nanPayload48))
}

// boxIface converts a canonical Value into its nanValue encoding. Heap kinds
// (everything but Nil/Bool/Numbers) are boxed by boxPointer as a tagged
// index into boxedPtrs, which unboxIface returns as the original Value —
// nanValue carries no independent Kind tag for pointer forms.
func boxIface(v Value) nanValue {
	switch x := v.(type) {
	case NilType:
		return makeTagged(tagNil, 0)
	case Bool:
		if x {
			return makeTagged(tagTrue, 0)
		}
		return makeTagged(tagFalse, 0)
	case Number:
		f := float64(x)
		bits := math.Float64bits(f)
		if !isBoxedForm(bits) {
			return nanValue(bits)
		}
		// f's own bit pattern happens to look like one of our tagged forms
		// (a signalling NaN with the quiet bit set) — box it as a pointer
		// is wrong here, so fall through to the small-int encoding when
		// integral, else normalize to the canonical quiet NaN.
		if x.IsInteger() {
			if i, err := x.Int(); err == nil && i >= -(1<<47) && i < 1<<47 {
				return makeTagged(tagSmallInt, uint64(int64(i)))
			}
		}
		return nanValue(math.Float64bits(math.NaN()))
	default:
		return boxPointer(v)
	}
}

// boxedPtrs backs the heap-kind boxing path: a 48-bit payload cannot hold a
// real pointer bit-for-bit on all platforms, so boxPointer/unboxPointer
// round-trip through an index into this table rather than truncating a raw
// uintptr — correct on every platform at the cost of an allocation-bearing
// side table instead of "free" pointer packing. Entries are never removed;
// Value GC, not this table, owns object lifetime, and the interpreter's own
// gcHeader machinery keeps boxed Values reachable for as long as a nanValue
// referencing them is live on some fiber's register stack.
var boxedPtrs []Value

func boxPointer(v Value) nanValue {
	idx := len(boxedPtrs)
	boxedPtrs = append(boxedPtrs, v)
	return makeTagged(tagHeap, uint64(idx))
}

// unboxIface converts a nanValue back into its canonical Value form.
func unboxIface(n nanValue) Value {
	bits := uint64(n)
	if !isBoxedForm(bits) {
		return Number(math.Float64frombits(bits))
	}
	tag := nanTag((bits & nanTagMask) >> nanTagShift)
	payload := bits & nanPayload48
	switch tag {
	case tagNaN:
		return Number(math.NaN())
	case tagNil:
		return Nil
	case tagFalse:
		return False
	case tagTrue:
		return True
	case tagSmallInt:
		// sign-extend the 48-bit payload
		shifted := int64(payload << 16)
		return Number(float64(shifted >> 16))
	case tagHeap:
		return boxedPtrs[int(payload)]
	default:
		panicKind(ErrBadBytecode, "corrupt nanValue tag %d", tag)
		return Nil
	}
}
