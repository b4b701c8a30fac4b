package machine

import "strings"

// Tuple is an immutable sequence of values (§3). A Tuple built by the
// MAKE_BRACKET_TUPLE opcode carries Bracket=true, a flag bit with no
// semantic effect on this package's operations but preserved for the
// compiler layer (bracket tuples and paren tuples print differently and
// may be distinguished by macros).
type Tuple struct {
	gcHeader
	hash    uint32
	Bracket bool
	elems   []Value
}

var (
	_ Value     = (*Tuple)(nil)
	_ Ordered   = (*Tuple)(nil)
	_ Indexable = (*Tuple)(nil)
	_ Iterable  = (*Tuple)(nil)
)

func (t *Tuple) String() string {
	var b strings.Builder
	open, close := "(", ")"
	if t.Bracket {
		open, close = "[", "]"
	}
	b.WriteString(open)
	for i, e := range t.elems {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(e.String())
	}
	b.WriteString(close)
	return b.String()
}
func (t *Tuple) Kind() Kind  { return KindTuple }
func (t *Tuple) Truth() Bool { return True }
func (t *Tuple) Len() int    { return len(t.elems) }
func (t *Tuple) Index(i int) Value {
	return t.elems[i]
}
func (t *Tuple) Slice() []Value { return t.elems } // caller must not mutate
func (t *Tuple) Cmp(y Value) (int, error) {
	return compareValues(t, y)
}
func (t *Tuple) Iterate() Iterator { return &sliceIterator{elems: t.elems} }
func (t *Tuple) gcChildren(push func(Value)) {
	for _, e := range t.elems {
		push(e)
	}
}

// NilaryTuple is the canonical empty tuple, used by the interpreter to pack
// zero surplus variadic arguments (§4.5) without allocating.
var NilaryTuple = &Tuple{}

// NewTuple wraps elems (which the caller must not subsequently modify) as a
// Tuple, computing and caching its hash.
func (vm *VM) NewTuple(elems []Value, bracket bool) *Tuple {
	if len(elems) == 0 && !bracket {
		return NilaryTuple
	}
	t := &Tuple{hash: hashElems(elems), Bracket: bracket, elems: elems}
	vm.gc.alloc(KindTuple, 24+len(elems)*8, t)
	return t
}

// hashElems combines the per-element hashes order-sensitively (position
// matters for a Tuple's identity, unlike Struct's set semantics).
func hashElems(elems []Value) uint32 {
	h := uint32(0x2545f491)
	for _, e := range elems {
		eh, _ := Hash(e)
		h = (h << 5) + h + eh
	}
	return h
}

// sliceIterator iterates a read-only []Value, used by Tuple and by Array's
// snapshot iteration.
type sliceIterator struct {
	elems []Value
	i     int
}

func (it *sliceIterator) Next(p *Value) bool {
	if it.i >= len(it.elems) {
		return false
	}
	*p = it.elems[it.i]
	it.i++
	return true
}
func (it *sliceIterator) Done() {}
