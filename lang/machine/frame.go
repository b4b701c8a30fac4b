package machine

// frameFlags records the tail-call and entrance markers carried by a Stack
// Frame header (§3 "Stack Frame").
type frameFlags uint8

const (
	// flagTail marks a frame installed by TAILCALL, replacing its caller in
	// place rather than nesting (§4.5 "Tail-frame").
	flagTail frameFlags = 1 << iota
	// flagEntrance marks the frame at which a host call() into the
	// interpreter began, bounding where RETURN exits back to the host
	// (§4.6 "Calling into the VM from host code").
	flagEntrance
)

// Frame is a Stack Frame header (§3). sarrazin keeps frame headers in a
// side array parallel to the fiber's Value array, rather than interleaving
// non-Value header words into that array: Go's Value is an interface and has
// no spare bit pattern to smuggle a raw pc/index into, so the header fields
// the spec lists (caller function, resume pc, env, previous-frame index,
// flags) live in Frame while the frame's registers occupy
// fiber.values[base:base+def.SlotCount]. This is a structural adaptation,
// not a semantic one: FRAME_SIZE is simply zero in this layout, so
// next_stacktop = stackstart + slotcount (§4.5 step 1).
type Frame struct {
	def    *FunctionDefinition // nil for a c-frame (native function call)
	native *NativeFunction     // set when def is nil
	pc     int                 // resume program counter, indexes def.Bytecode
	env    *FunctionEnvironment // lazily allocated once a nested closure captures this frame
	prev   int                 // index into fiber.frames of the caller, -1 if none
	base   int                 // index into fiber.values where this frame's registers start
	flags  frameFlags

	// resultSlot is the absolute index into fiber.values where this frame's
	// return value is written once it returns (RETURN/RETURN_NIL) or its
	// native call completes (§4.6 "place return in A"). It is set by the
	// CALL opcode handler at push time and, for a chain of tail calls,
	// carried through unchanged by PushTailFrame.
	resultSlot int

	fn *Function // the closure this frame is executing, for LOAD_SELF/CLOSURE
}

func (fr *Frame) isTail() bool     { return fr.flags&flagTail != 0 }
func (fr *Frame) isEntrance() bool { return fr.flags&flagEntrance != 0 }
