package machine

// Parameter extractors for native function authors (§6 "arity check (fixed /
// ranged), type-safe getters for each kind, integer-range-checked numeric
// getters"). Every extractor panics via panicKind on mismatch, matching the
// "native functions conform to a single signature... with panics for
// errors" convention, so a NativeFunction body can call these unchecked and
// let the protect() installed by Continue convert the panic into an ERROR
// signal.

// CheckArity panics unless len(args) is within [min, max]. Pass max < 0 for
// an unbounded (vararg) upper end.
func CheckArity(args []Value, min, max int) {
	n := len(args)
	if n < min || (max >= 0 && n > max) {
		if max == min {
			panicKind(ErrArity, "expects %d argument(s), got %d", min, n)
		} else if max < 0 {
			panicKind(ErrArity, "expects at least %d argument(s), got %d", min, n)
		} else {
			panicKind(ErrArity, "expects %d to %d argument(s), got %d", min, max, n)
		}
	}
}

// Arg returns args[i], panicking with an arity error rather than an
// out-of-range index if the caller under-supplied arguments — a native
// function that calls CheckArity first never hits this path.
func Arg(args []Value, i int) Value {
	if i < 0 || i >= len(args) {
		panicKind(ErrArity, "missing argument %d", i)
	}
	return args[i]
}

// checkKind panics with a type error unless v.Kind() == want.
func checkKind(v Value, want Kind) {
	if v.Kind() != want {
		panicKind(ErrType, "expected %s, got %s", want, v.Kind())
	}
}

// ArgNumber extracts a Number, panicking with a type error on mismatch.
func ArgNumber(args []Value, i int) Number {
	v := Arg(args, i)
	checkKind(v, KindNumber)
	return v.(Number)
}

// ArgInt extracts an integer-representable Number as a platform int,
// panicking with a range error if it is not integral or is out of range
// (§7 "range (integer overflow...)").
func ArgInt(args []Value, i int) int {
	n := ArgNumber(args, i)
	v, err := n.Int()
	if err != nil {
		panicKind(ErrRange, "%s", err)
	}
	return v
}

// ArgInt32 extracts an int32-representable Number, for the bitwise opcodes'
// integer-range convention.
func ArgInt32(args []Value, i int) int32 {
	n := ArgNumber(args, i)
	v, err := n.Int32()
	if err != nil {
		panicKind(ErrRange, "%s", err)
	}
	return v
}

// ArgString extracts a *String, panicking with a type error on mismatch.
func ArgString(args []Value, i int) *String {
	v := Arg(args, i)
	checkKind(v, KindString)
	return v.(*String)
}

// ArgBool extracts a Bool, panicking with a type error on mismatch.
func ArgBool(args []Value, i int) Bool {
	v := Arg(args, i)
	checkKind(v, KindBool)
	return v.(Bool)
}

// ArgSymbol extracts a *Symbol, panicking with a type error on mismatch.
func ArgSymbol(args []Value, i int) *Symbol {
	v := Arg(args, i)
	checkKind(v, KindSymbol)
	return v.(*Symbol)
}

// ArgKeyword extracts a *Keyword, panicking with a type error on mismatch.
func ArgKeyword(args []Value, i int) *Keyword {
	v := Arg(args, i)
	checkKind(v, KindKeyword)
	return v.(*Keyword)
}

// ArgArray extracts a *Array, panicking with a type error on mismatch.
func ArgArray(args []Value, i int) *Array {
	v := Arg(args, i)
	checkKind(v, KindArray)
	return v.(*Array)
}

// ArgTuple extracts a *Tuple, panicking with a type error on mismatch.
func ArgTuple(args []Value, i int) *Tuple {
	v := Arg(args, i)
	checkKind(v, KindTuple)
	return v.(*Tuple)
}

// ArgTable extracts a *Table, panicking with a type error on mismatch.
func ArgTable(args []Value, i int) *Table {
	v := Arg(args, i)
	checkKind(v, KindTable)
	return v.(*Table)
}

// ArgStruct extracts a *Struct, panicking with a type error on mismatch.
func ArgStruct(args []Value, i int) *Struct {
	v := Arg(args, i)
	checkKind(v, KindStruct)
	return v.(*Struct)
}

// ArgBuffer extracts a *Buffer, panicking with a type error on mismatch.
func ArgBuffer(args []Value, i int) *Buffer {
	v := Arg(args, i)
	checkKind(v, KindBuffer)
	return v.(*Buffer)
}

// ArgFiber extracts a *Fiber, panicking with a type error on mismatch.
func ArgFiber(args []Value, i int) *Fiber {
	v := Arg(args, i)
	checkKind(v, KindFiber)
	return v.(*Fiber)
}

// ArgCallable extracts a value implementing Callable (Function or
// NativeFunction), panicking with a type error on mismatch.
func ArgCallable(args []Value, i int) Callable {
	v := Arg(args, i)
	c, ok := v.(Callable)
	if !ok {
		panicKind(ErrType, "expected a callable value, got %s", v.Kind())
	}
	return c
}

// ArgAbstract extracts an *Abstract of the given registered type name,
// panicking with a type error if v is not an Abstract or is tagged with a
// different type.
func ArgAbstract(args []Value, i int, typeName string) *Abstract {
	v := Arg(args, i)
	checkKind(v, KindAbstract)
	a := v.(*Abstract)
	if a.typ.Name != typeName {
		panicKind(ErrType, "expected abstract type %q, got %q", typeName, a.typ.Name)
	}
	return a
}

// OptArg returns args[i] if present, else def — used by native functions
// with optional trailing parameters, distinct from the vararg tail packing
// the interpreter does at call boundaries (§4.5).
func OptArg(args []Value, i int, def Value) Value {
	if i < 0 || i >= len(args) {
		return def
	}
	return args[i]
}
