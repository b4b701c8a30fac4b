package machine

// Iterable abstracts a sequence of values that may be iterated over, backing
// both the NEXT opcode (§4.6) and host-side traversal.
type Iterable interface {
	Value
	Iterate() Iterator
}

// Indexable is a sequence of known length supporting random access, backing
// the INDEX/GET_INDEX opcodes for arrays and tuples.
type Indexable interface {
	Value
	Index(i int) Value
	Len() int
}

// Iterator yields successive elements. Next reports false once exhausted.
type Iterator interface {
	Next(p *Value) bool
	Done()
}

// Next advances an in-progress NEXT opcode traversal (§4.6 "NEXT(A, ds,
// keyOrNil) — yields next key in traversal order; nil means start"). It is
// defined over Array, Tuple, String (byte indices) and Table/Struct (key
// order as produced by their internal layout). Returns (key, true) or
// (Nil, false) when traversal is exhausted.
func Next(ds Value, key Value) (Value, bool, error) {
	switch x := ds.(type) {
	case *Array:
		return nextIndexable(x, key)
	case *Tuple:
		return nextIndexable(x, key)
	case *String:
		return nextIndexable(stringIndexable{x}, key)
	case *Table:
		return x.next(key)
	case *Struct:
		return x.next(key)
	default:
		return Nil, false, &TypeError{Want: KindArray, Got: ds}
	}
}

func nextIndexable(x Indexable, key Value) (Value, bool, error) {
	n := x.Len()
	var i int
	if key == nil || key == Value(Nil) {
		i = 0
	} else {
		idx, ok := key.(Number)
		if !ok {
			return Nil, false, &TypeError{Want: KindNumber, Got: key}
		}
		ii, err := idx.Int()
		if err != nil {
			return Nil, false, err
		}
		i = ii + 1
	}
	if i >= n {
		return Nil, false, nil
	}
	return Number(i), true, nil
}

// stringIndexable adapts *String to Indexable, yielding single-byte Numbers
// (byte offsets) during traversal — higher-level codepoint iteration is a
// library concern above this package.
type stringIndexable struct{ s *String }

func (si stringIndexable) String() string  { return si.s.String() }
func (si stringIndexable) Kind() Kind      { return KindString }
func (si stringIndexable) Truth() Bool     { return si.s.Truth() }
func (si stringIndexable) Len() int        { return si.s.Len() }
func (si stringIndexable) Index(i int) Value { return Number(si.s.data[i]) }
