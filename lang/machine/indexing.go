package machine

import "fmt"

// getIndex implements the uniform "index into" protocol backing GET,
// GET_INDEX, IN and the arithmetic/bitwise method-dispatch fallback (§4.6,
// §7): Table and Struct look the key up directly (consulting Table's
// prototype chain); Array, Tuple and String index by integer position;
// every other kind reports not-found rather than erroring, so that keyword-
// method dispatch can treat "no method" as a normal miss.
func getIndex(ds, key Value) (Value, bool, error) {
	switch x := ds.(type) {
	case *Table:
		return x.Get(key)
	case *Struct:
		return x.Get(key)
	case *Array:
		i, err := indexArg(key, x.Len())
		if err != nil {
			return Nil, false, err
		}
		v, err := x.Get(i)
		return v, err == nil, err
	case *Tuple:
		i, err := indexArg(key, x.Len())
		if err != nil {
			return Nil, false, err
		}
		if i < 0 || i >= x.Len() {
			return Nil, false, fmt.Errorf("tuple index %d out of range", i)
		}
		return x.Index(i), true, nil
	case *String:
		i, err := indexArg(key, x.Len())
		if err != nil {
			return Nil, false, err
		}
		if i < 0 || i >= x.Len() {
			return Nil, false, fmt.Errorf("string index %d out of range", i)
		}
		return Number(x.data[i]), true, nil
	case *Buffer:
		i, err := indexArg(key, x.Len())
		if err != nil {
			return Nil, false, err
		}
		b, err := x.Get(i)
		return Number(b), err == nil, err
	default:
		return Nil, false, nil
	}
}

// putIndex implements PUT/PUT_INDEX's container-assignment half of the
// protocol.
func putIndex(ds, key, value Value) error {
	switch x := ds.(type) {
	case *Table:
		return x.SetKey(key, value)
	case HasSetIndex:
		i, err := indexArg(key, x.Len())
		if err != nil {
			return err
		}
		return x.SetIndex(i, value)
	case *Buffer:
		i, err := indexArg(key, x.Len())
		if err != nil {
			return err
		}
		n, ok := value.(Number)
		if !ok {
			return &TypeError{Want: KindNumber, Got: value}
		}
		return x.Put(i, byte(n))
	default:
		return fmt.Errorf("cannot assign into %s", Type(ds))
	}
}

// lengthOf implements the LENGTH opcode's dispatch over every sized kind.
func lengthOf(ds Value) (int, error) {
	switch x := ds.(type) {
	case Indexable:
		return x.Len(), nil
	case *Table:
		return x.Len(), nil
	case *Buffer:
		return x.Len(), nil
	default:
		return 0, fmt.Errorf("%s has no length", Type(ds))
	}
}

func indexArg(key Value, length int) (int, error) {
	n, ok := key.(Number)
	if !ok {
		return 0, &TypeError{Want: KindNumber, Got: key}
	}
	i, err := n.Int()
	if err != nil {
		return 0, err
	}
	if i < 0 {
		i += length
	}
	return i, nil
}
