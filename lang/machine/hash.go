package machine

import (
	"math"
	"unsafe"

	"github.com/dolthub/maphash"
)

// KeyedHash, when set on a VM's Options, switches Hash from the default
// non-cryptographic mixer to a seeded (keyed) hash, defeating hash-flooding
// attacks against tables keyed by untrusted input (§4.1). The seed is
// generated once per process, when this package is initialized, is shared
// by every VM, and is never exposed to sarrazin code.
var keyedHasher = maphash.NewHasher[string]()

// djb2Mix is the default 32-bit, allocation-free, non-cryptographic mixer
// (§4.1: "(h<<5)+h+byte"). It is applied byte-by-byte over the value's
// canonical byte representation.
func djb2Mix(seed uint32, b []byte) uint32 {
	h := seed
	for _, c := range b {
		h = (h << 5) + h + uint32(c)
	}
	return h
}

// Hash returns the stable 32-bit hash of v. Hashing never allocates: for
// immutable aggregates (string, symbol, keyword, tuple, struct) it returns
// the hash cached in the value's header at construction time; for mutable
// heap values (array, table, buffer) and for function/fiber/abstract values
// it derives the hash from the object's pointer identity, since those
// compare by identity (§4.1).
func Hash(v Value) (uint32, error) {
	switch x := v.(type) {
	case NilType:
		return 0, nil
	case Bool:
		if x {
			return 1, nil
		}
		return 2, nil
	case Number:
		bits := math.Float64bits(float64(x))
		return djb2Mix(0x811c9dc5, []byte{
			byte(bits), byte(bits >> 8), byte(bits >> 16), byte(bits >> 24),
			byte(bits >> 32), byte(bits >> 40), byte(bits >> 48), byte(bits >> 56),
		}), nil
	case *String:
		return x.hash, nil
	case *Symbol:
		return x.hash, nil
	case *Keyword:
		return x.hash, nil
	case *Tuple:
		return x.hash, nil
	case *Struct:
		return x.hash, nil
	case *Array:
		return pointerHash(x), nil
	case *Table:
		return pointerHash(x), nil
	case *Buffer:
		return pointerHash(x), nil
	case *Function:
		return pointerHash(x), nil
	case *NativeFunction:
		return pointerHash(x), nil
	case *Fiber:
		return pointerHash(x), nil
	case *Abstract:
		return pointerHash(x), nil
	default:
		return 0, &TypeError{Want: KindNil, Got: v} // unreachable for well-formed kinds
	}
}

// pointerHash derives a hash from an object's address. It is stable for the
// lifetime of the object (this package's GC is non-moving, and so is Go's
// own allocator) and never allocates.
func pointerHash(p gcObject) uint32 {
	addr := uintptr(unsafe.Pointer(p.header()))
	h := uint32(addr) ^ uint32(addr>>32)
	return djb2Mix(0x01000193, []byte{byte(h), byte(h >> 8), byte(h >> 16), byte(h >> 24)})
}

// hashBytes computes the cached-at-construction hash for strings, symbols
// and keywords, selecting the keyed variant when the owning VM has
// KeyedHash enabled.
func hashBytes(b []byte, keyed bool) uint32 {
	if keyed {
		return uint32(keyedHasher.Hash(string(b)))
	}
	return djb2Mix(0x811c9dc5, b)
}
