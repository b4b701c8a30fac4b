package machine

import "fmt"

// NewRootFiber constructs the fiber that will execute fn with args, marking
// its first frame as the entrance frame (§4.6 "marks that frame as an
// 'entrance' frame"). This is the `fiber(callee, capacity, argc, argv)`
// operation of §4.5.
func (vm *VM) NewRootFiber(fn *Function, capacity int, args []Value) (*Fiber, error) {
	f := vm.NewFiber(capacity, vm.Options.MaxStack)
	if err := vm.PushFuncFrame(f, fn, args); err != nil {
		return nil, err
	}
	f.frameAt(0).flags |= flagEntrance
	return f, nil
}

// ResetFiber reinitializes an existing (dead or freshly constructed) fiber
// to run fn with args from scratch (§4.5 "reset(fiber, callee, argc,
// argv)"), reusing its backing array.
func (vm *VM) ResetFiber(f *Fiber, fn *Function, args []Value) error {
	f.frames = f.frames[:0]
	f.frame = -1
	f.stackstart = 0
	f.stacktop = 0
	f.status = FiberNew
	f.lastSignal = SignalOK
	f.lastValue = nil
	f.resumeSlot = -1
	f.cancelPending = false
	if err := vm.PushFuncFrame(f, fn, args); err != nil {
		return err
	}
	f.frameAt(0).flags |= flagEntrance
	return nil
}

// Continue drives f from its current suspension point with resume value in,
// running the dispatch loop until it next suspends or terminates (§4.6
// "Continue / Resume / Cancel"). Before resuming, any live child of f is
// first driven to completion (or to a non-intercepted signal), per §4.6.
func (vm *VM) Continue(f *Fiber, in Value) (Signal, Value, error) {
	if !f.status.resumable() {
		return SignalError, Nil, fmt.Errorf("cannot continue fiber with status %s", f.status)
	}
	for f.child != nil {
		child := f.child
		sig, val, err := vm.Continue(child, Nil)
		if err != nil {
			return SignalError, Nil, err
		}
		if f.mask.Intercepts(sig) || sig == SignalOK {
			f.child = nil
			in = val
		} else {
			// propagate one level up: this fiber suspends with the child's
			// unintercepted signal rather than resuming its own bytecode.
			f.status = statusForSignal(sig)
			f.lastSignal = sig
			f.lastValue = val
			return sig, val, nil
		}
	}

	prevStatus := f.status
	f.status = FiberAlive
	prevCurrent := vm.current
	vm.current = f
	sig, val := protect(f, func() (Signal, Value) {
		return vm.runDispatch(f, in, prevStatus)
	})
	vm.current = prevCurrent
	if sig == SignalOK {
		f.status = FiberDead
	} else {
		f.status = statusForSignal(sig)
	}
	f.lastSignal = sig
	f.lastValue = val
	return sig, val, nil
}

// Call invokes fn on a fresh fiber and returns its result, panicking with
// the fiber's error value on a non-OK signal (§6 "call(f, argc, argv) ->
// Value (panics on error)"). Recursion is bounded by Options.RecursionGuard
// (§4.6).
func (vm *VM) Call(fn *Function, args []Value) Value {
	sig, val, err := vm.PCall(fn, args)
	if err != nil {
		vm.Panicf("%s", err)
	}
	if sig != SignalOK {
		panic(&MachineError{Kind: ErrUser, Value: val})
	}
	return val
}

// PCall invokes fn on a fresh fiber and returns its signal and result
// without panicking (§6 "pcall(f, argc, argv, out) -> Signal").
func (vm *VM) PCall(fn *Function, args []Value) (Signal, Value, error) {
	if vm.Options.RecursionGuard > 0 && vm.recursionDepth >= vm.Options.RecursionGuard {
		return SignalError, Nil, fmt.Errorf("recursion limit exceeded")
	}
	vm.recursionDepth++
	defer func() { vm.recursionDepth-- }()

	f, err := vm.NewRootFiber(fn, 64, args)
	if err != nil {
		return SignalError, Nil, err
	}
	return vm.Continue(f, Nil)
}

// callSync is the synchronous call helper used by the method-dispatch
// fallback (arith.go) and by other internal protocols that need a
// Callable's result in hand immediately, regardless of whether it is a
// NativeFunction or a sarrazin Function.
func (vm *VM) callSync(f *Fiber, callee Value, args []Value) Value {
	switch c := callee.(type) {
	case *NativeFunction:
		return c.Fn(vm, args)
	case *Function:
		return vm.Call(c, args)
	default:
		panicKind(ErrType, "%s is not callable", Type(callee))
		return Nil
	}
}

// Cancel resumes the target fiber with an injected ERROR signal at its
// current suspension point (§5 "Cancellation", §4.6 "CANCEL").
func (vm *VM) Cancel(f *Fiber, errValue Value) (Signal, Value, error) {
	if !f.status.resumable() {
		return SignalError, Nil, fmt.Errorf("cannot cancel fiber with status %s", f.status)
	}
	f.cancelPending = true
	f.cancelValue = errValue
	return vm.Continue(f, Nil)
}

// Step resumes f for exactly one instruction of its current frame and then
// suspends it with SignalDebug, unless that instruction itself ends the
// Continue (a RETURN from the entrance frame, a SIGNAL, a RESUME whose
// child signal is not intercepted), in which case that signal and value are
// returned. It sets a one-shot flag on the fiber rather than writing
// temporary breakpoints into the bytecode, so a CALL to a bytecode function
// stops at the callee's first instruction instead of running the call to
// completion.
func (vm *VM) Step(f *Fiber) (Signal, Value, error) {
	fr := f.currentFrame()
	if fr == nil || fr.def == nil {
		return SignalError, Nil, fmt.Errorf("fiber has no active bytecode frame to step")
	}
	f.stepArmed = true
	return vm.Continue(f, Nil)
}
