package machine

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/exp/slices"
)

// maxGrowCapacity is the hard cap on Array/Buffer capacity growth (§4.3
// "Capacity growth is doubling, capped at INT32_MAX; overflow is a panic").
const maxGrowCapacity = math.MaxInt32

// Array is a mutable, contiguous, growable sequence of values (§3). It
// grows by doubling on push.
type Array struct {
	gcHeader
	elems []Value
}

var (
	_ Value       = (*Array)(nil)
	_ Indexable   = (*Array)(nil)
	_ Iterable    = (*Array)(nil)
	_ HasSetIndex = (*Array)(nil)
)

// HasSetIndex is implemented by Indexable values whose elements may be
// assigned by index (the SETINDEX/PUT_INDEX opcode path, §4.6).
type HasSetIndex interface {
	Indexable
	SetIndex(i int, v Value) error
}

func (a *Array) String() string {
	var b strings.Builder
	b.WriteString("@[")
	for i, e := range a.elems {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(e.String())
	}
	b.WriteByte(']')
	return b.String()
}
func (a *Array) Kind() Kind        { return KindArray }
func (a *Array) Truth() Bool       { return True }
func (a *Array) Len() int          { return len(a.elems) }
func (a *Array) Cap() int          { return cap(a.elems) }
func (a *Array) Index(i int) Value { return a.elems[i] }
func (a *Array) Iterate() Iterator { return &sliceIterator{elems: append([]Value(nil), a.elems...)} }
func (a *Array) gcChildren(push func(Value)) {
	for _, e := range a.elems {
		push(e)
	}
}

// NewArray constructs an Array from elems (ownership transfers: caller must
// not subsequently modify elems directly).
func (vm *VM) NewArray(elems []Value) *Array {
	a := &Array{elems: elems}
	vm.gc.alloc(KindArray, 24+cap(elems)*8, a)
	return a
}

// NewArrayCapacity constructs an empty Array with room for at least
// capacity elements without reallocating (§4.3 "construct(capacity)").
func (vm *VM) NewArrayCapacity(capacity int) *Array {
	a := &Array{elems: make([]Value, 0, capacity)}
	vm.gc.alloc(KindArray, 24+capacity*8, a)
	return a
}

// Ensure grows the array's backing storage, if needed, to hold at least
// capacity elements, doubling each step and panicking on INT32_MAX overflow
// (§4.3 "ensure(capacity, growth_factor)").
func (a *Array) Ensure(capacity int) {
	if cap(a.elems) >= capacity {
		return
	}
	newCap := cap(a.elems)
	if newCap == 0 {
		newCap = 4
	}
	for newCap < capacity {
		if newCap > maxGrowCapacity/2 {
			panic(fmt.Sprintf("array capacity overflow (requested %d)", capacity))
		}
		newCap *= 2
	}
	if newCap > maxGrowCapacity {
		panic(fmt.Sprintf("array capacity overflow (requested %d)", capacity))
	}
	a.elems = slices.Grow(a.elems, newCap-len(a.elems))
}

// Push appends v, growing by doubling if needed (§4.3 "push/append").
func (a *Array) Push(v Value) {
	a.Ensure(len(a.elems) + 1)
	a.elems = append(a.elems, v)
}

// Pop removes and returns the last element. It returns an error if the
// array is empty.
func (a *Array) Pop() (Value, error) {
	if len(a.elems) == 0 {
		return Nil, fmt.Errorf("pop from empty array")
	}
	n := len(a.elems) - 1
	v := a.elems[n]
	a.elems[n] = nil // aid GC
	a.elems = a.elems[:n]
	return v, nil
}

// Peek returns the last element without removing it (§4.3 "peek").
func (a *Array) Peek() (Value, error) {
	if len(a.elems) == 0 {
		return Nil, fmt.Errorf("peek at empty array")
	}
	return a.elems[len(a.elems)-1], nil
}

// Get returns the element at i, range-checked (§7 "range (... out-of-bounds
// index)").
func (a *Array) Get(i int) (Value, error) {
	if i < 0 || i >= len(a.elems) {
		return Nil, fmt.Errorf("array index %d out of range [0, %d)", i, len(a.elems))
	}
	return a.elems[i], nil
}

// Put assigns the element at i (§4.3 "put(index,value)").
func (a *Array) Put(i int, v Value) error {
	if i < 0 || i >= len(a.elems) {
		return fmt.Errorf("array index %d out of range [0, %d)", i, len(a.elems))
	}
	a.elems[i] = v
	return nil
}

func (a *Array) SetIndex(i int, v Value) error { return a.Put(i, v) }

// SetCount truncates or extends the logical length to n, nil-filling any
// newly exposed slots (§4.3 "setcount").
func (a *Array) SetCount(n int) {
	if n <= len(a.elems) {
		for i := n; i < len(a.elems); i++ {
			a.elems[i] = nil
		}
		a.elems = a.elems[:n]
		return
	}
	a.Ensure(n)
	for i := len(a.elems); i < n; i++ {
		a.elems = append(a.elems, Nil)
	}
}

// Clear empties the array, clearing references so the GC can reclaim
// elements promptly (§4.3 "clear").
func (a *Array) Clear() {
	for i := range a.elems {
		a.elems[i] = nil
	}
	a.elems = a.elems[:0]
}

// Slice returns a new Array holding a[start:end] (§4.3 "slice"). The copy
// is independent of a: subsequent mutation of either does not affect the
// other (§8 "Table/array independence").
func (vm *VM) ArraySlice(a *Array, start, end int) *Array {
	cp := append([]Value(nil), a.elems[start:end]...)
	return vm.NewArray(cp)
}
