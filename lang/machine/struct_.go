package machine

import "strings"

type structPair struct {
	key, value Value
}

// Struct is an immutable association built write-then-freeze (§4.3): Begin
// returns a scratch builder, Put fills it, End canonicalizes duplicate keys
// (last value wins, first-occurrence position kept) and computes a hash
// that depends only on the set of pairs, not their order (§4.1 "structs as
// sets of pairs"). Lookup is O(1) via an open-addressed slot index sized to
// a small multiple of the pair count.
type Struct struct {
	gcHeader
	hash  uint32
	pairs []structPair
	slots []int32 // index+1 into pairs; 0 means empty
}

var (
	_ Value   = (*Struct)(nil)
	_ Ordered = (*Struct)(nil)
)

func (s *Struct) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, p := range s.pairs {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(p.key.String())
		b.WriteByte(' ')
		b.WriteString(p.value.String())
	}
	b.WriteByte('}')
	return b.String()
}
func (s *Struct) Kind() Kind  { return KindStruct }
func (s *Struct) Truth() Bool { return True }
func (s *Struct) Len() int    { return len(s.pairs) }
func (s *Struct) Cmp(y Value) (int, error) {
	return compareValues(s, y)
}
func (s *Struct) gcChildren(push func(Value)) {
	for _, p := range s.pairs {
		push(p.key)
		push(p.value)
	}
}

// Get returns the value associated with k, and whether it was found
// (§4.3 Struct; §4.1 Table-ish lookup semantics, minus the prototype chain
// which is Table-specific).
func (s *Struct) Get(k Value) (Value, bool, error) {
	v, ok := s.get(k)
	return v, ok, nil
}

func (s *Struct) get(k Value) (Value, bool) {
	if len(s.slots) == 0 {
		return Nil, false
	}
	h, _ := Hash(k)
	cap := len(s.slots)
	idx := int(h) & (cap - 1)
	for i := 0; i < cap; i++ {
		si := s.slots[idx]
		if si == 0 {
			return Nil, false
		}
		p := s.pairs[si-1]
		if eq, _ := Equals(p.key, k); eq {
			return p.value, true
		}
		idx = (idx + 1) & (cap - 1)
	}
	return Nil, false
}

// Pairs returns the canonical (first-occurrence-ordered, deduplicated)
// key/value pairs, for host iteration. Caller must not mutate.
func (s *Struct) Pairs() []Tuple2 {
	out := make([]Tuple2, len(s.pairs))
	for i, p := range s.pairs {
		out[i] = Tuple2{p.key, p.value}
	}
	return out
}

// Tuple2 is a lightweight (key, value) pair, distinct from the heap-managed
// Tuple Value type, used for bulk pair extraction (Struct.Pairs, Table
// iteration helpers) where allocating a *Tuple per pair would be wasteful.
type Tuple2 struct{ Key, Value Value }

func (s *Struct) next(key Value) (Value, bool, error) {
	if key == nil || key == Value(Nil) {
		if len(s.pairs) == 0 {
			return Nil, false, nil
		}
		return s.pairs[0].key, true, nil
	}
	for i, p := range s.pairs {
		if eq, _ := Equals(p.key, key); eq {
			if i+1 >= len(s.pairs) {
				return Nil, false, nil
			}
			return s.pairs[i+1].key, true, nil
		}
	}
	return Nil, false, nil
}

// StructBuilder is the scratch buffer returned by BeginStruct (§4.3
// "begin(n) returns a scratch buffer").
type StructBuilder struct {
	pairs []structPair
}

// BeginStruct allocates a builder with room for n pairs.
func (vm *VM) BeginStruct(n int) *StructBuilder {
	return &StructBuilder{pairs: make([]structPair, 0, n)}
}

// Put records a (key, value) pair on the builder. A nil key is ignored
// (mirrors Table.SetKey's "put on nil key is a no-op", §4.3) so struct
// literals with a computed nil key degrade gracefully rather than panicking.
func (b *StructBuilder) Put(k, v Value) {
	if k == nil || k == Value(Nil) {
		return
	}
	b.pairs = append(b.pairs, structPair{k, v})
}

// EndStruct canonicalizes and freezes the builder into a Struct (§4.3
// "end(buf) canonicalizes and computes hash").
func (vm *VM) EndStruct(b *StructBuilder) *Struct {
	// Deduplicate: last value wins, first-occurrence order kept.
	canon := make([]structPair, 0, len(b.pairs))
	index := map[uint32][]int{} // hash -> indices into canon, for equals probing
	for _, p := range b.pairs {
		h, _ := Hash(p.key)
		dup := false
		for _, ci := range index[h] {
			if eq, _ := Equals(canon[ci].key, p.key); eq {
				canon[ci].value = p.value
				dup = true
				break
			}
		}
		if !dup {
			index[h] = append(index[h], len(canon))
			canon = append(canon, p)
		}
	}

	s := &Struct{pairs: canon}
	s.slots = buildStructSlots(canon)
	s.hash = hashPairsAsSet(canon)
	vm.gc.alloc(KindStruct, 32+len(canon)*24, s)
	return s
}

func buildStructSlots(pairs []structPair) []int32 {
	if len(pairs) == 0 {
		return nil
	}
	cap := nextPow2(len(pairs)*2 + 1)
	slots := make([]int32, cap)
	for i, p := range pairs {
		h, _ := Hash(p.key)
		idx := int(h) & (cap - 1)
		for slots[idx] != 0 {
			idx = (idx + 1) & (cap - 1)
		}
		slots[idx] = int32(i + 1)
	}
	return slots
}

// hashPairsAsSet combines per-pair hashes commutatively so that the result
// does not depend on pair order (§4.1 "structs as sets of pairs").
func hashPairsAsSet(pairs []structPair) uint32 {
	var sum uint32 = 0x1505
	for _, p := range pairs {
		kh, _ := Hash(p.key)
		vh, _ := Hash(p.value)
		sum += (kh*2654435761 + vh) // commutative combination, Knuth multiplicative mix
	}
	return djb2Mix(sum, []byte{byte(len(pairs)), byte(len(pairs) >> 8)})
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	if p < 8 {
		p = 8
	}
	return p
}
