package machine

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Buffer is a mutable, growable byte sequence (§3). A foreign-backed buffer
// wraps host-owned memory; any capacity-changing operation on it fails
// rather than reallocating or freeing memory the GC does not own (§3, §4.3).
type Buffer struct {
	gcHeader
	bytes []byte
}

var _ Value = (*Buffer)(nil)

func (b *Buffer) String() string { return fmt.Sprintf("%q", b.bytes) }
func (b *Buffer) Kind() Kind     { return KindBuffer }
func (b *Buffer) Truth() Bool    { return True }
func (b *Buffer) Len() int       { return len(b.bytes) }
func (b *Buffer) Cap() int       { return cap(b.bytes) }
func (b *Buffer) Bytes() []byte  { return b.bytes } // caller must not mutate for foreign buffers
func (b *Buffer) Foreign() bool  { return b.foreign }
func (b *Buffer) gcChildren(func(Value)) {} // leaf: raw bytes, no Value references

// NewBuffer constructs an empty Buffer with room for at least capacity
// bytes (§4.3 "construct(capacity)").
func (vm *VM) NewBuffer(capacity int) *Buffer {
	b := &Buffer{bytes: make([]byte, 0, capacity)}
	vm.gc.alloc(KindBuffer, 24+capacity, b)
	return b
}

// NewForeignBuffer wraps host-owned memory as a Buffer. Capacity-changing
// operations on the result fail (§3 "foreign-backed: no realloc/free").
func (vm *VM) NewForeignBuffer(data []byte) *Buffer {
	b := &Buffer{bytes: data}
	b.foreign = true
	vm.gc.alloc(KindBuffer, 24, b)
	return b
}

func (b *Buffer) checkGrowable(extra int) error {
	if b.foreign && len(b.bytes)+extra > cap(b.bytes) {
		return fmt.Errorf("cannot grow foreign-backed buffer")
	}
	return nil
}

// Ensure grows capacity to at least n bytes, doubling each step (§4.3).
func (b *Buffer) Ensure(n int) error {
	if cap(b.bytes) >= n {
		return nil
	}
	if b.foreign {
		return fmt.Errorf("cannot grow foreign-backed buffer")
	}
	newCap := cap(b.bytes)
	if newCap == 0 {
		newCap = 8
	}
	for newCap < n {
		if newCap > maxGrowCapacity/2 {
			panic(fmt.Sprintf("buffer capacity overflow (requested %d)", n))
		}
		newCap *= 2
	}
	grown := make([]byte, len(b.bytes), newCap)
	copy(grown, b.bytes)
	b.bytes = grown
	return nil
}

// Push appends raw bytes to the buffer.
func (b *Buffer) Push(p []byte) error {
	if err := b.checkGrowable(len(p)); err != nil {
		return err
	}
	if err := b.Ensure(len(b.bytes) + len(p)); err != nil {
		return err
	}
	b.bytes = append(b.bytes, p...)
	return nil
}

// Pop removes and returns the last byte.
func (b *Buffer) Pop() (byte, error) {
	if len(b.bytes) == 0 {
		return 0, fmt.Errorf("pop from empty buffer")
	}
	n := len(b.bytes) - 1
	v := b.bytes[n]
	b.bytes = b.bytes[:n]
	return v, nil
}

func (b *Buffer) Peek() (byte, error) {
	if len(b.bytes) == 0 {
		return 0, fmt.Errorf("peek at empty buffer")
	}
	return b.bytes[len(b.bytes)-1], nil
}

func (b *Buffer) Get(i int) (byte, error) {
	if i < 0 || i >= len(b.bytes) {
		return 0, fmt.Errorf("buffer index %d out of range [0, %d)", i, len(b.bytes))
	}
	return b.bytes[i], nil
}

func (b *Buffer) Put(i int, v byte) error {
	if i < 0 || i >= len(b.bytes) {
		return fmt.Errorf("buffer index %d out of range [0, %d)", i, len(b.bytes))
	}
	b.bytes[i] = v
	return nil
}

func (b *Buffer) SetCount(n int) error {
	if n <= len(b.bytes) {
		b.bytes = b.bytes[:n]
		return nil
	}
	if err := b.Ensure(n); err != nil {
		return err
	}
	for len(b.bytes) < n {
		b.bytes = append(b.bytes, 0)
	}
	return nil
}

func (b *Buffer) Clear() error {
	if b.foreign {
		b.bytes = b.bytes[:0]
		return nil
	}
	b.bytes = b.bytes[:0]
	return nil
}

// Endianness selects the byte order for the typed push/read operations.
type Endianness uint8

const (
	NativeEndian Endianness = iota
	LittleEndian
	BigEndian
)

func byteOrder(e Endianness) binary.ByteOrder {
	switch e {
	case BigEndian:
		return binary.BigEndian
	default:
		// NativeEndian and LittleEndian: sarrazin targets little-endian
		// hosts exclusively for its bytecode word format (§6), so native
		// and explicit little-endian coincide in this implementation.
		return binary.LittleEndian
	}
}

// PushUint pushes an unsigned integer of the given bit width (16, 32, 64)
// in the given byte order (§4.3 "push of native-endian or explicitly
// little/big-endian 16/32/64-bit integer").
func (b *Buffer) PushUint(bits int, v uint64, e Endianness) error {
	var buf [8]byte
	order := byteOrder(e)
	switch bits {
	case 16:
		order.PutUint16(buf[:2], uint16(v))
		return b.Push(buf[:2])
	case 32:
		order.PutUint32(buf[:4], uint32(v))
		return b.Push(buf[:4])
	case 64:
		order.PutUint64(buf[:8], v)
		return b.Push(buf[:8])
	default:
		return fmt.Errorf("unsupported integer width %d", bits)
	}
}

// PushFloat pushes a 32- or 64-bit IEEE float.
func (b *Buffer) PushFloat(bits int, v float64, e Endianness) error {
	order := byteOrder(e)
	var buf [8]byte
	switch bits {
	case 32:
		order.PutUint32(buf[:4], math.Float32bits(float32(v)))
		return b.Push(buf[:4])
	case 64:
		order.PutUint64(buf[:8], math.Float64bits(v))
		return b.Push(buf[:8])
	default:
		return fmt.Errorf("unsupported float width %d", bits)
	}
}

// BitGet reports the bit at the given bit index (§4.3 "bit-get/set/clear/
// toggle addressed by bit index").
func (b *Buffer) BitGet(bitIndex int) (bool, error) {
	byteIdx, mask, err := b.bitAddr(bitIndex)
	if err != nil {
		return false, err
	}
	return b.bytes[byteIdx]&mask != 0, nil
}

func (b *Buffer) BitSet(bitIndex int) error {
	byteIdx, mask, err := b.bitAddr(bitIndex)
	if err != nil {
		return err
	}
	b.bytes[byteIdx] |= mask
	return nil
}

func (b *Buffer) BitClear(bitIndex int) error {
	byteIdx, mask, err := b.bitAddr(bitIndex)
	if err != nil {
		return err
	}
	b.bytes[byteIdx] &^= mask
	return nil
}

func (b *Buffer) BitToggle(bitIndex int) error {
	byteIdx, mask, err := b.bitAddr(bitIndex)
	if err != nil {
		return err
	}
	b.bytes[byteIdx] ^= mask
	return nil
}

func (b *Buffer) bitAddr(bitIndex int) (int, byte, error) {
	if bitIndex < 0 {
		return 0, 0, fmt.Errorf("negative bit index %d", bitIndex)
	}
	byteIdx := bitIndex / 8
	if byteIdx >= len(b.bytes) {
		return 0, 0, fmt.Errorf("bit index %d out of range", bitIndex)
	}
	return byteIdx, 1 << uint(bitIndex%8), nil
}

// Blit copies n bytes from src[srcOff:] into dst[dstOff:], growing dst if
// necessary, and is safe when src and dst are the same buffer and the
// ranges overlap (§4.3 "blit between buffers (memmove-safe on overlap)").
func (dst *Buffer) Blit(src *Buffer, dstOff, srcOff, n int) error {
	if srcOff < 0 || srcOff+n > len(src.bytes) {
		return fmt.Errorf("blit source range out of bounds")
	}
	need := dstOff + n
	if need > len(dst.bytes) {
		if err := dst.SetCount(need); err != nil {
			return err
		}
	}
	// copy() is memmove-safe for overlapping slices of the same underlying
	// array, matching the stdlib's documented semantics.
	copy(dst.bytes[dstOff:dstOff+n], src.bytes[srcOff:srcOff+n])
	return nil
}

// Format appends a printf-style formatted string at the buffer's current
// end (§4.3 "format (printf-style) at an index"); index addressing beyond
// simple append is a thin wrapper the host layer provides via SetCount+Blit
// when an interior format is needed.
func (b *Buffer) Format(format string, args ...interface{}) error {
	return b.Push([]byte(fmt.Sprintf(format, args...)))
}
