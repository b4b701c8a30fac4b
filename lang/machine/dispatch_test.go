package machine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// buildDef assembles a minimal FunctionDefinition for dispatch tests,
// covering only the fields the tests below actually exercise.
func buildDef(slots int, bytecode []uint32, constants []Value, nested []*FunctionDefinition) *FunctionDefinition {
	return &FunctionDefinition{
		Name:        "test",
		Arity:       0,
		MinArity:    0,
		MaxArity:    0,
		SlotCount:   slots,
		Constants:   constants,
		NestedDefs:  nested,
		EnvCaptures: nil,
		Bytecode:    bytecode,
	}
}

func newTestVM(t *testing.T) *VM {
	t.Helper()
	vm := NewVM(Options{})
	require.NoError(t, vm.Init())
	return vm
}

func TestDispatchArithmetic(t *testing.T) {
	vm := newTestVM(t)

	def := buildDef(3, []uint32{
		EncodeAE(OpLoadInteger, 0, 10),
		EncodeAE(OpLoadInteger, 1, 20),
		EncodeABC(OpAdd, 2, 0, 1),
		EncodeD(OpReturn, 2),
	}, nil, nil)
	fn, err := vm.NewFunction(def, nil, 0, nil)
	require.NoError(t, err)

	got := vm.Call(fn, nil)
	require.Equal(t, Number(30), got)
}

func TestDispatchImmediateAndCompare(t *testing.T) {
	vm := newTestVM(t)

	def := buildDef(2, []uint32{
		EncodeAE(OpLoadInteger, 0, 4),
		EncodeAE(OpAddImm, 0, 6), // r0 = 4 + 6 = 10
		EncodeAE(OpLoadInteger, 1, 10),
		EncodeABC(OpEquals, 1, 0, 1),
		EncodeD(OpReturn, 1),
	}, nil, nil)
	fn, err := vm.NewFunction(def, nil, 0, nil)
	require.NoError(t, err)

	got := vm.Call(fn, nil)
	require.Equal(t, True, got)
}

// TestDispatchCallNativeFunction exercises CALL against a NativeFunction
// constant, including the PUSH/outgoing-arg region and result placement.
func TestDispatchCallNativeFunction(t *testing.T) {
	vm := newTestVM(t)

	adder := vm.NewNativeFunction("add2", func(vm *VM, args []Value) Value {
		CheckArity(args, 2, 2)
		return ArgNumber(args, 0) + ArgNumber(args, 1)
	})

	def := buildDef(3, []uint32{
		EncodeAE(OpLoadConstant, 0, 0), // r0 = adder
		EncodeAE(OpLoadInteger, 1, 3),
		EncodeAE(OpLoadInteger, 2, 4),
		EncodeD(OpPush, 1),
		EncodeD(OpPush, 2),
		EncodeAE(OpCall, 0, 0), // resultSlot=r0, calleeReg=r0
		EncodeD(OpReturn, 0),
	}, []Value{adder}, nil)
	fn, err := vm.NewFunction(def, nil, 0, nil)
	require.NoError(t, err)

	got := vm.Call(fn, nil)
	require.Equal(t, Number(7), got)
}

// TestDispatchCallFunction exercises CALL against a sarrazin Function
// callee, i.e. pushing a nested bytecode frame rather than completing
// synchronously.
func TestDispatchCallFunction(t *testing.T) {
	vm := newTestVM(t)

	calleeDef := buildDef(2, []uint32{
		EncodeABC(OpAdd, 0, 0, 1),
		EncodeD(OpReturn, 0),
	}, nil, nil)
	calleeDef.Arity = 2
	calleeDef.MinArity = 2
	calleeDef.MaxArity = 2

	callerDef := buildDef(3, []uint32{
		EncodeAE(OpLoadConstant, 0, 0),
		EncodeAE(OpLoadInteger, 1, 5),
		EncodeAE(OpLoadInteger, 2, 6),
		EncodeD(OpPush, 1),
		EncodeD(OpPush, 2),
		EncodeAE(OpCall, 0, 0),
		EncodeD(OpReturn, 0),
	}, nil, nil)

	calleeFn, err := vm.NewFunction(calleeDef, nil, 0, nil)
	require.NoError(t, err)
	callerDef.Constants = []Value{calleeFn}

	callerFn, err := vm.NewFunction(callerDef, nil, 0, nil)
	require.NoError(t, err)

	got := vm.Call(callerFn, nil)
	require.Equal(t, Number(11), got)
}

// TestDispatchTailCall exercises TAILCALL replacing the entrance frame in
// place: the final RETURN must still end the Continue with the right value
// (the dispatchTailCall/doReturn suspend-signal threading).
func TestDispatchTailCall(t *testing.T) {
	vm := newTestVM(t)

	innerDef := buildDef(1, []uint32{
		EncodeAE(OpAddImm, 0, 1),
		EncodeD(OpReturn, 0),
	}, nil, nil)
	innerDef.Arity = 1
	innerDef.MinArity = 1
	innerDef.MaxArity = 1

	outerDef := buildDef(2, []uint32{
		EncodeAE(OpLoadConstant, 0, 0),
		EncodeAE(OpLoadInteger, 1, 41),
		EncodeD(OpPush, 1),
		EncodeD(OpTailCall, 0),
	}, nil, nil)

	innerFn, err := vm.NewFunction(innerDef, nil, 0, nil)
	require.NoError(t, err)
	outerDef.Constants = []Value{innerFn}

	outerFn, err := vm.NewFunction(outerDef, nil, 0, nil)
	require.NoError(t, err)

	got := vm.Call(outerFn, nil)
	require.Equal(t, Number(42), got)
}

// TestDispatchClosureUpvalue builds an outer frame holding a local, a nested
// definition capturing that frame via envInherit, and checks the closure
// still sees the captured value correctly after the outer frame detaches it
// (the closure is called only after the outer function has returned).
func TestDispatchClosureUpvalue(t *testing.T) {
	vm := newTestVM(t)

	innerDef := buildDef(1, []uint32{
		EncodeABC(OpLoadUpvalue, 0, 0, 0),
		EncodeD(OpReturn, 0),
	}, nil, nil)

	outerDef := buildDef(2, []uint32{
		EncodeAE(OpLoadInteger, 0, 99),
		EncodeAE(OpClosure, 1, 0),
		EncodeD(OpReturn, 1),
	}, nil, []*FunctionDefinition{innerDef})
	innerDef.EnvCaptures = []int{envInherit}
	outerDef.HasEnv = true

	outerFn, err := vm.NewFunction(outerDef, nil, 0, nil)
	require.NoError(t, err)

	closureVal := vm.Call(outerFn, nil)
	closure, ok := closureVal.(*Function)
	require.True(t, ok)

	got := vm.Call(closure, nil)
	require.Equal(t, Number(99), got)
}

// TestDispatchArityMismatch checks that a nested CALL with the wrong
// argument count surfaces as a SignalError carrying a descriptive message,
// not a Go panic escaping PCall. (An arity mismatch on the *initial* call
// into a fresh fiber is instead reported as a plain Go error by
// NewRootFiber/PCall, since no dispatch loop has started yet to install a
// try-state — this test exercises the in-flight CALL-opcode path instead,
// where PushFuncFrame's error is converted to a panic and caught by
// protect.)
func TestDispatchArityMismatch(t *testing.T) {
	vm := newTestVM(t)

	calleeDef := buildDef(1, []uint32{
		EncodeD(OpReturn, 0),
	}, nil, nil)
	calleeDef.Arity, calleeDef.MinArity, calleeDef.MaxArity = 1, 1, 1
	calleeFn, err := vm.NewFunction(calleeDef, nil, 0, nil)
	require.NoError(t, err)

	callerDef := buildDef(1, []uint32{
		EncodeAE(OpLoadConstant, 0, 0),
		EncodeAE(OpCall, 0, 0), // no args pushed: arity mismatch
		EncodeD(OpReturn, 0),
	}, []Value{calleeFn}, nil)
	callerFn, err := vm.NewFunction(callerDef, nil, 0, nil)
	require.NoError(t, err)

	sig, val, err := vm.PCall(callerFn, nil)
	require.NoError(t, err)
	require.Equal(t, SignalError, sig)
	s, ok := val.(*String)
	require.True(t, ok)
	require.Contains(t, string(s.data), "argument")
}

// TestDispatchStackOverflow drives unbounded (non-tail) recursion against a
// small MaxStack and expects an ErrStackOverflow-flavored ERROR signal
// rather than an unbounded Go stack growth or crash.
func TestDispatchStackOverflow(t *testing.T) {
	vm := NewVM(Options{MaxStack: 256})
	require.NoError(t, vm.Init())

	def := buildDef(4, []uint32{
		EncodeD(OpLoadSelf, 0),
		EncodeAE(OpLoadInteger, 1, 1),
		EncodeD(OpPush, 1),
		EncodeAE(OpCall, 2, 0),
		EncodeD(OpReturn, 2),
	}, nil, nil)
	def.Arity, def.MinArity, def.MaxArity = 1, 1, 1

	fn, err := vm.NewFunction(def, nil, 0, nil)
	require.NoError(t, err)

	sig, _, err := vm.PCall(fn, []Value{Number(0)})
	require.NoError(t, err)
	require.Equal(t, SignalError, sig)
}

// TestFiberSignalResume drives a fiber through SIGNAL/Continue's round trip:
// the fiber suspends with a USER0 signal and a value, then resumes with a
// different value that flows back into the signalling register.
func TestFiberSignalResume(t *testing.T) {
	vm := newTestVM(t)

	def := buildDef(2, []uint32{
		EncodeAE(OpLoadInteger, 0, 7),
		EncodeABC(OpSignal, 1, 0, 0), // suspend with USER0, value r0; resume value lands in r1
		EncodeD(OpReturn, 1),
	}, nil, nil)

	fn, err := vm.NewFunction(def, nil, 0, nil)
	require.NoError(t, err)

	f, err := vm.NewRootFiber(fn, 8, nil)
	require.NoError(t, err)

	sig, val, err := vm.Continue(f, Nil)
	require.NoError(t, err)
	require.Equal(t, SignalUser0, sig)
	require.Equal(t, Number(7), val)
	require.Equal(t, FiberUser0, f.status)

	sig, val, err = vm.Continue(f, Number(123))
	require.NoError(t, err)
	require.Equal(t, SignalOK, sig)
	require.Equal(t, Number(123), val)
	require.Equal(t, FiberDead, f.status)
}

// TestFiberResumeOpcodeIntercepts exercises RESUME driving a child fiber to
// a USER0 signal that the parent's default mask intercepts, so the parent never
// itself suspends: it resumes its own bytecode with the child's yielded
// value as an ordinary in-register result.
func TestFiberResumeOpcodeIntercepts(t *testing.T) {
	vm := newTestVM(t)

	childDef := buildDef(1, []uint32{
		EncodeAE(OpLoadInteger, 0, 55),
		EncodeABC(OpSignal, 0, 0, 0), // suspend with USER0, value in r0, resume value back into r0
	}, nil, nil)

	childFn, err := vm.NewFunction(childDef, nil, 0, nil)
	require.NoError(t, err)
	childFiber, err := vm.NewRootFiber(childFn, 8, nil)
	require.NoError(t, err)

	parentDef := buildDef(3, []uint32{
		EncodeAE(OpLoadConstant, 0, 0), // r0 = child fiber
		EncodeAE(OpLoadInteger, 1, 0),  // resume input, unused by child's first leg
		EncodeABC(OpResume, 2, 0, 1),   // r2 = RESUME(r0, r1)
		EncodeD(OpReturn, 2),
	}, []Value{childFiber}, nil)

	parentFn, err := vm.NewFunction(parentDef, nil, 0, nil)
	require.NoError(t, err)

	got := vm.Call(parentFn, nil)
	require.Equal(t, Number(55), got)
	require.Equal(t, FiberUser0, childFiber.status, "child is left suspended, not driven to completion, since USER0 only runs one resume step here")
}

func TestDispatchTableRoundTrip(t *testing.T) {
	vm := newTestVM(t)

	key := vm.Symbol("k")
	def := buildDef(4, []uint32{
		EncodeD(OpMakeTable, 0),
		EncodeAE(OpLoadConstant, 1, 0), // key
		EncodeAE(OpLoadInteger, 2, 9),  // value
		EncodeABC(OpPut, 0, 1, 2),
		EncodeABC(OpGet, 3, 0, 1),
		EncodeD(OpReturn, 3),
	}, []Value{key}, nil)

	fn, err := vm.NewFunction(def, nil, 0, nil)
	require.NoError(t, err)

	got := vm.Call(fn, nil)
	require.Equal(t, Number(9), got)
}
