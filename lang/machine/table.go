package machine

import "fmt"

// maxPrototypeDepth bounds the prototype-chain walk on read (§4.3 "Lookup
// traverses prototype chain up to a fixed depth (e.g., 200) for reads
// only").
const maxPrototypeDepth = 200

type tableSlot struct {
	key, value Value // value == nil marks an empty slot; a tombstone keeps its key and has deleted set, so find probes past it (§4.3 reuse rule)
	deleted    bool
}

// Table is a mutable open-addressed hash map from Value to Value, with an
// optional prototype for inheritance-style lookup (§3, §4.3). Its find/grow
// rules are implemented directly from spec.md §4.3 rather than delegating
// to a generic map library — see DESIGN.md for why.
type Table struct {
	gcHeader
	slots   []tableSlot
	count   int // live (non-deleted) entries
	deleted int // tombstones
	Proto   *Table
}

var (
	_ Value     = (*Table)(nil)
	_ Iterable  = (*Table)(nil)
)

func (t *Table) String() string { return fmt.Sprintf("table(%p)", t) }
func (t *Table) Kind() Kind     { return KindTable }
func (t *Table) Truth() Bool    { return True }
func (t *Table) Len() int       { return t.count }
func (t *Table) Iterate() Iterator {
	return &tableIterator{t: t}
}
func (t *Table) gcChildren(push func(Value)) {
	for _, s := range t.slots {
		if s.value != nil && !s.deleted {
			push(s.key)
			push(s.value)
		}
	}
	if t.Proto != nil {
		push(t.Proto)
	}
}

// NewTable constructs an empty Table with room for at least size entries
// before the first rehash (§4.3 "construct(capacity)").
func (vm *VM) NewTable(size int) *Table {
	t := &Table{}
	if size > 0 {
		t.slots = make([]tableSlot, nextPow2(2*size+2))
	}
	vm.gc.alloc(KindTable, 24+len(t.slots)*32, t)
	return t
}

// find returns the slot index holding key, or the first empty/tombstone
// bucket encountered while probing (§4.3 "Find returns the slot containing
// the key, or the first empty-value bucket encountered (reuse of deleted
// slots)").
func (t *Table) find(key Value) int {
	if len(t.slots) == 0 {
		return -1
	}
	h, _ := Hash(key)
	cap := len(t.slots)
	idx := int(h) & (cap - 1)
	firstFree := -1
	for i := 0; i < cap; i++ {
		s := &t.slots[idx]
		if s.value == nil {
			if s.key == nil {
				if firstFree < 0 {
					firstFree = idx
				}
				return firstFree
			}
			// tombstone: candidate for reuse, but keep scanning in case the
			// key exists further along the probe sequence
			if firstFree < 0 {
				firstFree = idx
			}
		} else if eq, _ := Equals(s.key, key); eq {
			return idx
		}
		idx = (idx + 1) & (cap - 1)
	}
	return firstFree
}

// Get looks up key, consulting the prototype chain (bounded depth, reads
// only) if not found locally (§4.3, §8 scenario 3).
func (t *Table) Get(key Value) (Value, bool, error) {
	if key == nil || key == Value(Nil) {
		return Nil, false, nil
	}
	cur := t
	for depth := 0; cur != nil && depth < maxPrototypeDepth; depth++ {
		if idx := cur.find(key); idx >= 0 {
			s := cur.slots[idx]
			if s.value != nil {
				return s.value, true, nil
			}
		}
		cur = cur.Proto
	}
	return Nil, false, nil
}

// SetKey implements Table's put semantics (§4.3): put on a nil key is a
// no-op; put with a nil value deletes; otherwise inserts/overwrites and
// rehashes once the load factor 2·(count+deleted+1) exceeds capacity.
func (t *Table) SetKey(key, value Value) error {
	if key == nil || key == Value(Nil) {
		return nil
	}
	if value == nil || value == Value(Nil) {
		t.delete(key)
		return nil
	}
	if 2*(t.count+t.deleted+1) > len(t.slots) {
		t.rehash()
	}
	idx := t.find(key)
	if idx < 0 {
		t.rehash()
		idx = t.find(key)
	}
	s := &t.slots[idx]
	if s.value == nil && !s.deleted {
		t.count++
	} else if s.deleted {
		t.count++
		t.deleted--
	}
	s.key = key
	s.value = value
	s.deleted = false
	return nil
}

func (t *Table) delete(key Value) {
	idx := t.find(key)
	if idx < 0 {
		return
	}
	s := &t.slots[idx]
	if s.value == nil {
		return
	}
	s.value = nil
	s.deleted = true
	t.count--
	t.deleted++
}

// rehash grows the table to the next power of two at least 2·count+2
// (§4.3 "rehash to next power of two ≥ 2·count+2").
func (t *Table) rehash() {
	newCap := nextPow2(2*t.count + 2)
	old := t.slots
	t.slots = make([]tableSlot, newCap)
	t.count = 0
	t.deleted = 0
	for _, s := range old {
		if s.value != nil && !s.deleted {
			_ = t.SetKey(s.key, s.value)
		}
	}
}

// next supports the NEXT opcode's key-order traversal (§4.6).
func (t *Table) next(key Value) (Value, bool, error) {
	start := 0
	if key != nil && key != Value(Nil) {
		idx := t.find(key)
		if idx < 0 {
			return Nil, false, nil
		}
		start = idx + 1
	}
	for i := start; i < len(t.slots); i++ {
		s := t.slots[i]
		if s.value != nil && !s.deleted {
			return s.key, true, nil
		}
	}
	return Nil, false, nil
}

type tableIterator struct {
	t *Table
	i int
}

func (it *tableIterator) Next(p *Value) bool {
	for it.i < len(it.t.slots) {
		s := it.t.slots[it.i]
		it.i++
		if s.value != nil && !s.deleted {
			*p = s.key
			return true
		}
	}
	return false
}
func (it *tableIterator) Done() {}
