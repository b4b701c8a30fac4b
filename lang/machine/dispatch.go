package machine

// runDispatch is the single loop over 32-bit instructions driving f from
// resumeValue until the next suspension or termination (§4.6 "Dispatch").
// It returns SignalOK with the entrance frame's return value on normal
// completion; any other Signal means the fiber suspended (and f's frames
// are left exactly as they were at the suspension point, ready for a later
// Continue). Errors raised along the way (arity/type/bad-bytecode/...) are
// panic(*MachineError), caught by protect in call.go, never returned here.
func (vm *VM) runDispatch(f *Fiber, resumeValue Value, prevStatus FiberStatus) (Signal, Value) {
	if f.cancelPending {
		f.cancelPending = false
		panic(&MachineError{Kind: ErrUser, Value: f.cancelValue})
	}
	if f.resumeSlot >= 0 {
		f.values[f.resumeSlot] = resumeValue
		f.resumeSlot = -1
	}

	for {
		vm.MaybeCollect()
		fr := f.currentFrame()
		if fr == nil {
			return SignalOK, Nil
		}
		if fr.native != nil {
			// A c-frame left on the stack only appears here if a nested
			// Continue re-entered mid-call, which this package's call.go never
			// does (native calls run to completion synchronously) — defensive.
			panicKind(ErrBadBytecode, "dispatch resumed on an active c-frame")
		}
		def := fr.def
		if fr.pc >= len(def.Bytecode) {
			panicKind(ErrBadBytecode, "program counter %d out of range (len %d)", fr.pc, len(def.Bytecode))
		}
		word := def.Bytecode[fr.pc]
		op, breakpoint := decodeOp(word)
		if breakpoint && !f.stepArmed {
			return SignalDebug, Nil
		}
		fr.pc++
		if f.stepArmed {
			f.stepArmed = false
			if sig, val, suspend := vm.execSuspending(f, fr, def, op, word); suspend {
				return sig, val
			}
			return SignalDebug, Nil
		}

		switch sig, val, suspend := vm.execSuspending(f, fr, def, op, word); {
		case suspend:
			return sig, val
		}
	}
}

// execSuspending runs one instruction, returning (signal, value, true) if
// it suspended the fiber (YIELD/SIGNAL/RESUME-of-a-yielding-child/RETURN of
// the entrance frame), or (_, _, false) to keep looping.
func (vm *VM) execSuspending(f *Fiber, fr *Frame, def *FunctionDefinition, op Opcode, word uint32) (Signal, Value, bool) {
	switch op {
	case OpReturn:
		reg := int(decodeD(word))
		return vm.doReturn(f, fr, f.values[fr.base+reg])
	case OpReturnNil:
		return vm.doReturn(f, fr, Nil)

	case OpSignal:
		a, b, c := decodeABC(word)
		val := f.values[fr.base+int(b)]
		sig := SignalUser0 + Signal(c)
		f.resumeSlot = fr.base + int(a)
		return sig, val, true

	case OpResume:
		a, b, c := decodeABC(word)
		childVal := f.values[fr.base+int(b)]
		input := f.values[fr.base+int(c)]
		child, ok := childVal.(*Fiber)
		if !ok {
			panicKind(ErrType, "RESUME target is not a fiber")
		}
		f.child = child
		f.resumeSlot = fr.base + int(a)
		sig, val, err := vm.Continue(child, input)
		if err != nil {
			panicKind(ErrUser, "%s", err)
		}
		f.child = nil
		if f.mask.Intercepts(sig) || sig == SignalOK {
			f.values[fr.base+int(a)] = val
			f.resumeSlot = -1
			return SignalOK, Nil, false
		}
		return sig, val, true

	case OpPropagate:
		a, b, _ := decodeABC(word)
		val := f.values[fr.base+int(a)]
		childVal := f.values[fr.base+int(b)]
		child, ok := childVal.(*Fiber)
		if !ok {
			panicKind(ErrType, "PROPAGATE target is not a fiber")
		}
		return child.lastSignal, val, true

	case OpCancel:
		a, b, c := decodeABC(word)
		childVal := f.values[fr.base+int(b)]
		errVal := f.values[fr.base+int(c)]
		child, ok := childVal.(*Fiber)
		if !ok {
			panicKind(ErrType, "CANCEL target is not a fiber")
		}
		sig, val, err := vm.Cancel(child, errVal)
		if err != nil {
			panicKind(ErrUser, "%s", err)
		}
		f.values[fr.base+int(a)] = val
		_ = sig
		return SignalOK, Nil, false

	case OpTailCall:
		reg := int(decodeD(word))
		callee := f.values[fr.base+reg]
		args := vm.takeOutgoing(f, fr)
		return vm.dispatchTailCall(f, fr, callee, args)

	default:
		vm.exec(f, fr, def, op, word)
		return SignalOK, Nil, false
	}
}

// doReturn pops fr, delivering value into the caller's resultSlot, or — if
// fr was the interpreter's entrance frame — signals completion of the whole
// Continue (§4.6 "RETURN(A)... if that frame was the interpreter's
// entrance frame, exit with OK").
func (vm *VM) doReturn(f *Fiber, fr *Frame, value Value) (Signal, Value, bool) {
	entrance := fr.isEntrance()
	resultSlot := fr.resultSlot
	f.PopFrame()
	if entrance {
		return SignalOK, value, true
	}
	f.values[resultSlot] = value
	return SignalOK, Nil, false
}

// exec runs every opcode that execSuspending does not handle itself. CALL is
// here too: it may push a new bytecode frame (handled by simply looping back
// in runDispatch) or, for native/keyword/indexable callees, complete
// synchronously within this call.
func (vm *VM) exec(f *Fiber, fr *Frame, def *FunctionDefinition, op Opcode, word uint32) {
	switch op {
	case OpNoop:

	case OpLoadNil:
		a := int(decodeD(word))
		f.values[fr.base+a] = Nil
	case OpLoadTrue:
		a := int(decodeD(word))
		f.values[fr.base+int(a)] = True
	case OpLoadFalse:
		a := int(decodeD(word))
		f.values[fr.base+int(a)] = False
	case OpLoadInteger:
		a, e := decodeAEs(word)
		f.values[fr.base+int(a)] = Number(e)
	case OpLoadConstant:
		a, e := decodeAE(word)
		if int(e) >= len(def.Constants) {
			panicKind(ErrBadBytecode, "constant index %d out of range", e)
		}
		f.values[fr.base+int(a)] = def.Constants[e]
	case OpLoadSelf:
		a := int(decodeD(word))
		if fr.fn == nil {
			f.values[fr.base+a] = Nil
		} else {
			f.values[fr.base+int(a)] = fr.fn
		}

	case OpMoveNear:
		a, e := decodeAE(word)
		f.values[fr.base+int(a)] = f.values[fr.base+int(e)]
	case OpMoveFar:
		a, e := decodeAE(word)
		f.values[fr.base+int(e)] = f.values[fr.base+int(a)]

	case OpLoadUpvalue:
		a, envIdx, slotIdx := decodeABC(word)
		env := vm.resolveEnv(fr, int(envIdx))
		v, err := env.Get(int(slotIdx))
		if err != nil {
			panicKind(ErrBadBytecode, "%s", err)
		}
		f.values[fr.base+int(a)] = v
	case OpSetUpvalue:
		a, envIdx, slotIdx := decodeABC(word)
		env := vm.resolveEnv(fr, int(envIdx))
		if err := env.Set(int(slotIdx), f.values[fr.base+int(a)]); err != nil {
			panicKind(ErrBadBytecode, "%s", err)
		}

	case OpAdd, OpSub, OpMul, OpDiv, OpDivFloor, OpMod, OpRem:
		a, b, c := decodeABC(word)
		x, y := f.values[fr.base+int(b)], f.values[fr.base+int(c)]
		f.values[fr.base+int(a)] = vm.evalArith(f, arithOpFor(op), x, y)
	case OpAddImm, OpSubImm, OpMulImm, OpDivImm, OpDivFloorImm, OpModImm, OpRemImm:
		a, e := decodeAEs(word)
		x := f.values[fr.base+int(a)]
		f.values[fr.base+int(a)] = vm.evalArith(f, arithOpFor(op), x, Number(e))

	case OpBAnd, OpBOr, OpBXor, OpShl, OpShr, OpShrU:
		a, b, c := decodeABC(word)
		x, y := f.values[fr.base+int(b)], f.values[fr.base+int(c)]
		f.values[fr.base+int(a)] = vm.evalBitwise(f, bitOpFor(op), x, y)
	case OpBAndImm, OpBOrImm, OpBXorImm, OpShlImm, OpShrImm, OpShrUImm:
		a, e := decodeAEs(word)
		x := f.values[fr.base+int(a)]
		f.values[fr.base+int(a)] = vm.evalBitwise(f, bitOpFor(op), x, Number(e))
	case OpBNot:
		a, e := decodeAE(word)
		x := f.values[fr.base+int(e)]
		f.values[fr.base+int(a)] = vm.evalBNot(f, x)

	case OpEquals, OpNotEquals, OpLessThan, OpLessThanEqual, OpGreaterThan, OpGreaterThanEqual:
		a, b, c := decodeABC(word)
		x, y := f.values[fr.base+int(b)], f.values[fr.base+int(c)]
		res, err := Compare(compareOpFor(op), x, y)
		if err != nil {
			panicKind(ErrType, "%s", err)
		}
		f.values[fr.base+int(a)] = res
	case OpEqualsImm, OpNotEqualsImm, OpLessThanImm, OpLessThanEqualImm, OpGreaterThanImm, OpGreaterThanEqualImm:
		a, e := decodeAEs(word)
		x := f.values[fr.base+int(a)]
		res, err := Compare(compareOpForImm(op), x, Number(e))
		if err != nil {
			panicKind(ErrType, "%s", err)
		}
		f.values[fr.base+int(a)] = res
	case OpCompare:
		a, b, c := decodeABC(word)
		x, y := f.values[fr.base+int(b)], f.values[fr.base+int(c)]
		n, err := compareValues(x, y)
		if err != nil {
			panicKind(ErrType, "%s", err)
		}
		f.values[fr.base+int(a)] = Number(n)

	case OpJump:
		fr.pc += int(decodeDs(word))
	case OpJumpIf:
		a, e := decodeAEs(word)
		if Truthy(f.values[fr.base+int(a)]) {
			fr.pc += int(e)
		}
	case OpJumpIfNot:
		a, e := decodeAEs(word)
		if !Truthy(f.values[fr.base+int(a)]) {
			fr.pc += int(e)
		}
	case OpJumpIfNil:
		a, e := decodeAEs(word)
		if f.values[fr.base+int(a)] == Value(Nil) {
			fr.pc += int(e)
		}
	case OpJumpIfNotNil:
		a, e := decodeAEs(word)
		if f.values[fr.base+int(a)] != Value(Nil) {
			fr.pc += int(e)
		}
	case OpError:
		a := int(decodeD(word))
		panic(&MachineError{Kind: ErrUser, Value: f.values[fr.base+int(a)]})
	case OpTypeCheck:
		a, e := decodeAE(word)
		v := f.values[fr.base+int(a)]
		if (uint16(1)<<uint16(v.Kind()))&e == 0 {
			panicKind(ErrType, "unexpected type %s", Type(v))
		}

	case OpPush:
		reg := int(decodeD(word))
		vm.pushOutgoing(f, f.values[fr.base+reg])
	case OpPush2:
		a, e := decodeAE(word)
		vm.pushOutgoing(f, f.values[fr.base+int(a)])
		vm.pushOutgoing(f, f.values[fr.base+int(e)])
	case OpPush3:
		a, b, c := decodeABC(word)
		vm.pushOutgoing(f, f.values[fr.base+int(a)])
		vm.pushOutgoing(f, f.values[fr.base+int(b)])
		vm.pushOutgoing(f, f.values[fr.base+int(c)])
	case OpPushArray:
		reg := int(decodeD(word))
		arr, ok := f.values[fr.base+reg].(*Array)
		if !ok {
			panicKind(ErrType, "PUSH_ARRAY operand is not an array")
		}
		for _, e := range arr.elems {
			vm.pushOutgoing(f, e)
		}

	case OpCall:
		a, e := decodeAE(word)
		callee := f.values[fr.base+int(e)]
		args := vm.takeOutgoing(f, fr)
		vm.dispatchCall(f, fr.base+int(a), callee, args)

	case OpGet:
		a, b, c := decodeABC(word)
		ds := f.values[fr.base+int(b)]
		key := f.values[fr.base+int(c)]
		v, _, err := getIndex(ds, key)
		if err != nil {
			panicKind(ErrType, "%s", err)
		}
		f.values[fr.base+int(a)] = v
	case OpGetIndex:
		a, b, c := decodeABC(word)
		ds := f.values[fr.base+int(b)]
		v, _, err := getIndex(ds, Number(c))
		if err != nil {
			panicKind(ErrRange, "%s", err)
		}
		f.values[fr.base+int(a)] = v
	case OpIn:
		a, b, c := decodeABC(word)
		target := f.values[fr.base+int(b)]
		key := f.values[fr.base+int(c)]
		v, _, err := getIndex(key, target)
		if err != nil {
			panicKind(ErrType, "%s", err)
		}
		f.values[fr.base+int(a)] = v
	case OpPut:
		a, b, c := decodeABC(word)
		ds := f.values[fr.base+int(a)]
		key := f.values[fr.base+int(b)]
		val := f.values[fr.base+int(c)]
		if err := putIndex(ds, key, val); err != nil {
			panicKind(ErrType, "%s", err)
		}
	case OpPutIndex:
		a, b, c := decodeABC(word)
		ds := f.values[fr.base+int(a)]
		val := f.values[fr.base+int(b)]
		if err := putIndex(ds, Number(c), val); err != nil {
			panicKind(ErrRange, "%s", err)
		}
	case OpLength:
		a, b, _ := decodeABC(word)
		n, err := lengthOf(f.values[fr.base+int(b)])
		if err != nil {
			panicKind(ErrType, "%s", err)
		}
		f.values[fr.base+int(a)] = Number(n)

	case OpMakeArray:
		a := int(decodeD(word))
		items := vm.takeOutgoing(f, fr)
		f.values[fr.base+int(a)] = vm.NewArray(append([]Value(nil), items...))
	case OpMakeTuple:
		a := int(decodeD(word))
		items := vm.takeOutgoing(f, fr)
		f.values[fr.base+int(a)] = vm.NewTuple(append([]Value(nil), items...), false)
	case OpMakeBracketTuple:
		a := int(decodeD(word))
		items := vm.takeOutgoing(f, fr)
		f.values[fr.base+int(a)] = vm.NewTuple(append([]Value(nil), items...), true)
	case OpMakeTable:
		a := int(decodeD(word))
		items := vm.takeOutgoing(f, fr)
		if len(items)%2 != 0 {
			panicKind(ErrBadBytecode, "MAKE_TABLE with odd item count")
		}
		t := vm.NewTable(len(items) / 2)
		for i := 0; i < len(items); i += 2 {
			_ = t.SetKey(items[i], items[i+1])
		}
		f.values[fr.base+int(a)] = t
	case OpMakeStruct:
		a := int(decodeD(word))
		items := vm.takeOutgoing(f, fr)
		if len(items)%2 != 0 {
			panicKind(ErrBadBytecode, "MAKE_STRUCT with odd item count")
		}
		b := vm.BeginStruct(len(items) / 2)
		for i := 0; i < len(items); i += 2 {
			b.Put(items[i], items[i+1])
		}
		f.values[fr.base+int(a)] = vm.EndStruct(b)
	case OpMakeString:
		a := int(decodeD(word))
		items := vm.takeOutgoing(f, fr)
		buf := make([]byte, len(items))
		for i, v := range items {
			n, ok := v.(Number)
			if !ok {
				panicKind(ErrType, "MAKE_STRING item is not a number")
			}
			buf[i] = byte(n)
		}
		f.values[fr.base+int(a)] = vm.EndString(buf)
	case OpMakeBuffer:
		a := int(decodeD(word))
		items := vm.takeOutgoing(f, fr)
		buf := vm.NewBuffer(len(items))
		for _, v := range items {
			n, ok := v.(Number)
			if !ok {
				panicKind(ErrType, "MAKE_BUFFER item is not a number")
			}
			_ = buf.Push([]byte{byte(n)})
		}
		f.values[fr.base+int(a)] = buf

	case OpClosure:
		a, e := decodeAE(word)
		if int(e) >= len(def.NestedDefs) {
			panicKind(ErrBadBytecode, "nested definition index %d out of range", e)
		}
		nested := def.NestedDefs[e]
		fn, err := vm.NewFunction(nested, f, f.frame, fr.fn)
		if err != nil {
			panicKind(ErrBadBytecode, "%s", err)
		}
		f.values[fr.base+int(a)] = fn

	case OpNext:
		a, b, c := decodeABC(word)
		ds := f.values[fr.base+int(b)]
		key := f.values[fr.base+int(c)]
		nk, ok, err := Next(ds, key)
		if err != nil {
			panicKind(ErrType, "%s", err)
		}
		if !ok {
			f.values[fr.base+a] = Nil
		} else {
			f.values[fr.base+int(a)] = nk
		}

	default:
		panicKind(ErrBadBytecode, "unimplemented opcode %s", op)
	}
}

// arithOpFor maps an arithmetic opcode (register or immediate form) to the
// arithOp evalArith expects.
func arithOpFor(op Opcode) arithOp {
	switch op {
	case OpAdd, OpAddImm:
		return arithAdd
	case OpSub, OpSubImm:
		return arithSub
	case OpMul, OpMulImm:
		return arithMul
	case OpDiv, OpDivImm:
		return arithDiv
	case OpDivFloor, OpDivFloorImm:
		return arithDivFloor
	case OpMod, OpModImm:
		return arithMod
	case OpRem, OpRemImm:
		return arithRem
	default:
		panicKind(ErrBadBytecode, "%s is not an arithmetic opcode", op)
		return arithAdd
	}
}

// bitOpFor maps a bitwise opcode (register or immediate form) to the bitOp
// evalBitwise expects.
func bitOpFor(op Opcode) bitOp {
	switch op {
	case OpBAnd, OpBAndImm:
		return bitAnd
	case OpBOr, OpBOrImm:
		return bitOr
	case OpBXor, OpBXorImm:
		return bitXor
	case OpShl, OpShlImm:
		return bitShl
	case OpShr, OpShrImm:
		return bitShr
	case OpShrU, OpShrUImm:
		return bitShrU
	default:
		panicKind(ErrBadBytecode, "%s is not a bitwise opcode", op)
		return bitAnd
	}
}

// compareOpFor maps a register-form comparison opcode to its CompareOp.
func compareOpFor(op Opcode) CompareOp {
	switch op {
	case OpEquals:
		return CmpEQ
	case OpNotEquals:
		return CmpNE
	case OpLessThan:
		return CmpLT
	case OpLessThanEqual:
		return CmpLE
	case OpGreaterThan:
		return CmpGT
	case OpGreaterThanEqual:
		return CmpGE
	default:
		panicKind(ErrBadBytecode, "%s is not a comparison opcode", op)
		return CmpEQ
	}
}

// compareOpForImm maps an immediate-form comparison opcode to its CompareOp.
func compareOpForImm(op Opcode) CompareOp {
	switch op {
	case OpEqualsImm:
		return CmpEQ
	case OpNotEqualsImm:
		return CmpNE
	case OpLessThanImm:
		return CmpLT
	case OpLessThanEqualImm:
		return CmpLE
	case OpGreaterThanImm:
		return CmpGT
	case OpGreaterThanEqualImm:
		return CmpGE
	default:
		panicKind(ErrBadBytecode, "%s is not a comparison opcode", op)
		return CmpEQ
	}
}

// resolveEnv selects the Function Environment at envIdx among the current
// frame's closure's captured environments (§4.4 "Upvalue access").
func (vm *VM) resolveEnv(fr *Frame, envIdx int) *FunctionEnvironment {
	if fr.fn == nil || envIdx < 0 || envIdx >= len(fr.fn.Envs) {
		panicKind(ErrBadBytecode, "invalid environment index %d", envIdx)
	}
	return fr.fn.Envs[envIdx]
}

// pushOutgoing appends v to the outgoing argument/aggregate-construction
// region ending at stacktop (§4.6 "append argument(s) to the outgoing arg
// region ending at stacktop").
func (vm *VM) pushOutgoing(f *Fiber, v Value) {
	idx := f.stacktop
	if err := f.ensureStack(idx + 1); err != nil {
		panic(err)
	}
	f.values[idx] = v
	f.stacktop++
}

// takeOutgoing returns (and clears) the pending outgoing region
// [stackstart, stacktop), used by CALL/TAILCALL and the MAKE_* aggregate
// opcodes alike (§4.6).
func (vm *VM) takeOutgoing(f *Fiber, fr *Frame) []Value {
	items := append([]Value(nil), f.values[f.stackstart:f.stacktop]...)
	f.stacktop = f.stackstart
	return items
}

// dispatchCall implements CALL's callee-kind switch (§4.6 "If callee is a
// function... If native function... If keyword... Else invoke the one-arg
// index into protocol"), writing a synchronous result into resultSlot or,
// for a sarrazin Function, pushing a bytecode frame whose eventual RETURN
// delivers the result there instead.
func (vm *VM) dispatchCall(f *Fiber, resultSlot int, callee Value, args []Value) {
	switch c := callee.(type) {
	case *Function:
		if err := vm.PushFuncFrame(f, c, args); err != nil {
			panic(err)
		}
		f.frameAt(len(f.frames) - 1).resultSlot = resultSlot
	case *NativeFunction:
		vm.PushCFrame(f, c)
		result := c.Fn(vm, args)
		f.PopFrame()
		f.values[resultSlot] = result
	case *Keyword:
		if len(args) == 0 {
			panicKind(ErrArity, "keyword call requires a receiver argument")
		}
		method, found, err := getIndex(args[0], c)
		if err != nil || !found {
			panicKind(ErrType, "no %s method on %s", c, Type(args[0]))
		}
		vm.dispatchCall(f, resultSlot, method, args)
	default:
		if len(args) != 1 {
			panicKind(ErrArity, "indexing call expects exactly one argument")
		}
		v, _, err := getIndex(callee, args[0])
		if err != nil {
			panicKind(ErrType, "%s", err)
		}
		f.values[resultSlot] = v
	}
}

// dispatchTailCall implements TAILCALL: a Function callee replaces the
// current frame in place (no suspension, dispatch just loops again); a
// NativeFunction callee runs synchronously and its result is delivered as
// if fr itself had returned it (which may end the whole Continue, if fr was
// the entrance frame — hence the (Signal, Value, bool) return matching
// doReturn). Other callee kinds are not meaningful in tail position.
func (vm *VM) dispatchTailCall(f *Fiber, fr *Frame, callee Value, args []Value) (Signal, Value, bool) {
	switch c := callee.(type) {
	case *Function:
		if err := vm.PushTailFrame(f, c, args); err != nil {
			panic(err)
		}
		return SignalOK, Nil, false
	case *NativeFunction:
		vm.PushCFrame(f, c)
		result := c.Fn(vm, args)
		f.PopFrame()
		return vm.doReturn(f, fr, result)
	default:
		panicKind(ErrBadBytecode, "TAILCALL target is not callable in tail position")
		return SignalOK, Nil, false
	}
}
