package machine

import "fmt"

// Opcode identifies the operation encoded in the low 7 bits of an
// instruction word's first byte; bit 7 of that byte is the breakpoint flag,
// masked off before dispatch (§4.6 "Breakpoint mechanism").
type Opcode uint8

const (
	OpNoop Opcode = iota

	OpLoadNil
	OpLoadTrue
	OpLoadFalse
	OpLoadInteger // A, imm16 (ES)
	OpLoadConstant // A, index (E)
	OpLoadSelf

	OpMoveNear // A <- E
	OpMoveFar  // E <- A

	OpLoadUpvalue // A, envIdx (B), slotIdx (C)
	OpSetUpvalue  // A, envIdx (B), slotIdx (C)

	OpAdd
	OpSub
	OpMul
	OpDiv
	OpDivFloor
	OpMod
	OpRem
	OpAddImm
	OpSubImm
	OpMulImm
	OpDivImm
	OpDivFloorImm
	OpModImm
	OpRemImm

	OpBAnd
	OpBOr
	OpBXor
	OpBNot
	OpShl
	OpShr
	OpShrU
	OpBAndImm
	OpBOrImm
	OpBXorImm
	OpShlImm
	OpShrImm
	OpShrUImm

	OpEquals
	OpNotEquals
	OpLessThan
	OpLessThanEqual
	OpGreaterThan
	OpGreaterThanEqual
	OpEqualsImm
	OpNotEqualsImm
	OpLessThanImm
	OpLessThanEqualImm
	OpGreaterThanImm
	OpGreaterThanEqualImm
	OpCompare

	OpJump         // relS (D)
	OpJumpIf       // A, relS (E)
	OpJumpIfNot    // A, relS (E)
	OpJumpIfNil    // A, relS (E)
	OpJumpIfNotNil // A, relS (E)
	OpError        // A
	OpTypeCheck    // A, mask16 (E)

	OpPush       // A
	OpPush2      // A, E
	OpPush3      // A, B, C
	OpPushArray  // A
	OpCall       // A, callee (E)
	OpTailCall   // callee (D)

	OpResume    // A, fiberReg (B), inputReg (C)
	OpSignal    // A, valueReg (B), sigImm (C)
	OpPropagate // valReg (A), fiberReg (B)
	OpCancel    // A, fiberReg (B), errValReg (C)

	OpReturn    // A
	OpReturnNil

	OpGet      // A, ds (B), key (C)
	OpGetIndex // A, ds (B), immIdx (C)
	OpIn       // A, ds (B), key (C)
	OpPut      // ds (A), key (B), value (C)
	OpPutIndex // ds (A), valueReg (B), immIdx (C)
	OpLength   // A, ds (B)

	OpMakeArray
	OpMakeTuple
	OpMakeBracketTuple
	OpMakeTable
	OpMakeStruct
	OpMakeString
	OpMakeBuffer

	OpClosure // A, defIdx (E)

	OpNext // A, ds (B), keyOrNil (C)

	numOpcodes
)

const breakpointBit uint32 = 1 << 7
const opcodeMask uint32 = 0x7f

var opcodeNames = [numOpcodes]string{
	OpNoop: "noop", OpLoadNil: "load-nil", OpLoadTrue: "load-true",
	OpLoadFalse: "load-false", OpLoadInteger: "load-integer",
	OpLoadConstant: "load-constant", OpLoadSelf: "load-self",
	OpMoveNear: "move-near", OpMoveFar: "move-far",
	OpLoadUpvalue: "load-upvalue", OpSetUpvalue: "set-upvalue",
	OpAdd: "add", OpSub: "sub", OpMul: "mul", OpDiv: "div",
	OpDivFloor: "div-floor", OpMod: "mod", OpRem: "rem",
	OpAddImm: "add-imm", OpSubImm: "sub-imm", OpMulImm: "mul-imm",
	OpDivImm: "div-imm", OpDivFloorImm: "div-floor-imm", OpModImm: "mod-imm",
	OpRemImm: "rem-imm",
	OpBAnd: "band", OpBOr: "bor", OpBXor: "bxor", OpBNot: "bnot",
	OpShl: "shl", OpShr: "shr", OpShrU: "shru",
	OpBAndImm: "band-imm", OpBOrImm: "bor-imm", OpBXorImm: "bxor-imm",
	OpShlImm: "shl-imm", OpShrImm: "shr-imm", OpShrUImm: "shru-imm",
	OpEquals: "eq", OpNotEquals: "neq", OpLessThan: "lt",
	OpLessThanEqual: "le", OpGreaterThan: "gt", OpGreaterThanEqual: "ge",
	OpEqualsImm: "eq-imm", OpNotEqualsImm: "neq-imm", OpLessThanImm: "lt-imm",
	OpLessThanEqualImm: "le-imm", OpGreaterThanImm: "gt-imm",
	OpGreaterThanEqualImm: "ge-imm", OpCompare: "compare",
	OpJump: "jump", OpJumpIf: "jump-if", OpJumpIfNot: "jump-if-not",
	OpJumpIfNil: "jump-if-nil", OpJumpIfNotNil: "jump-if-not-nil",
	OpError: "error", OpTypeCheck: "typecheck",
	OpPush: "push", OpPush2: "push2", OpPush3: "push3",
	OpPushArray: "push-array", OpCall: "call", OpTailCall: "tailcall",
	OpResume: "resume", OpSignal: "signal", OpPropagate: "propagate",
	OpCancel: "cancel",
	OpReturn: "return", OpReturnNil: "return-nil",
	OpGet: "get", OpGetIndex: "get-index", OpIn: "in", OpPut: "put",
	OpPutIndex: "put-index", OpLength: "length",
	OpMakeArray: "make-array", OpMakeTuple: "make-tuple",
	OpMakeBracketTuple: "make-bracket-tuple", OpMakeTable: "make-table",
	OpMakeStruct: "make-struct", OpMakeString: "make-string",
	OpMakeBuffer: "make-buffer",
	OpClosure:    "closure",
	OpNext:       "next",
}

// NumOpcodes returns the number of defined opcodes, for tooling (such as
// internal/asm's mnemonic table) that needs to enumerate the full set
// without reaching into the unexported sentinel directly.
func NumOpcodes() int { return int(numOpcodes) }

func (op Opcode) String() string {
	if op < numOpcodes {
		return opcodeNames[op]
	}
	return fmt.Sprintf("opcode(%d)", uint8(op))
}

// Instruction decoding: a 32-bit little-endian word, opcode in the low byte
// (minus the breakpoint bit), arguments in the remaining 3 bytes, per one
// of three conventions (§4.6 "Dispatch").

// decodeOp extracts the opcode and breakpoint flag from a raw instruction
// word.
func decodeOp(word uint32) (op Opcode, breakpoint bool) {
	b := word & 0xff
	return Opcode(b & opcodeMask), b&breakpointBit != 0
}

// decodeABC extracts three 8-bit register arguments.
func decodeABC(word uint32) (a, b, c uint8) {
	return uint8(word >> 8), uint8(word >> 16), uint8(word >> 24)
}

// decodeAE extracts one 8-bit register and one 16-bit register/immediate.
func decodeAE(word uint32) (a uint8, e uint16) {
	return uint8(word >> 8), uint16(word >> 16)
}

// decodeAEs is decodeAE with e sign-extended, for signed 16-bit immediates.
func decodeAEs(word uint32) (a uint8, e int16) {
	a, ue := decodeAE(word)
	return a, int16(ue)
}

// decodeD extracts the single 24-bit register/immediate used by unary,
// single-register opcodes.
func decodeD(word uint32) uint32 { return word >> 8 }

// decodeDs is decodeD sign-extended from 24 bits.
func decodeDs(word uint32) int32 {
	d := decodeD(word)
	if d&0x00800000 != 0 {
		return int32(d | 0xff000000)
	}
	return int32(d)
}

// EncodeABC assembles an instruction word from the ABC convention. Used by
// internal/asm (the test/demo bytecode builder), not by the interpreter
// itself.
func EncodeABC(op Opcode, a, b, c uint8) uint32 {
	return uint32(op) | uint32(a)<<8 | uint32(b)<<16 | uint32(c)<<24
}

// EncodeAE assembles an instruction word from the A+E convention.
func EncodeAE(op Opcode, a uint8, e uint16) uint32 {
	return uint32(op) | uint32(a)<<8 | uint32(e)<<16
}

// EncodeD assembles an instruction word from the single 24-bit D convention.
func EncodeD(op Opcode, d uint32) uint32 {
	return uint32(op) | (d&0x00ffffff)<<8
}
