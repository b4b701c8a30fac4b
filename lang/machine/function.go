package machine

import "fmt"

// envInherit is the sentinel used in a FunctionDefinition's env-capture map
// to mean "capture the current frame" rather than "inherit parent closure's
// env at this index" (§4.4 closure build).
const envInherit = -1

// FunctionDefinition is the immutable, pointer-free (aside from the slices
// it owns) record produced by the compiler/assembler for one function body
// (§3 "Function Definition"). sarrazin never parses or compiles source —
// FunctionDefinitions are built directly by internal/asm from a textual
// opcode format, or by any other external assembler per §6's on-wire layout.
type FunctionDefinition struct {
	Name      string
	Arity     int  // fixed non-vararg parameter count
	MinArity  int
	MaxArity  int // -1 means unbounded (vararg)
	SlotCount int
	IsVararg  bool
	StructArg bool // excess positional args pack as a Struct instead of a Tuple
	HasEnv    bool // some nested definition captures this frame

	Constants   []Value
	NestedDefs  []*FunctionDefinition
	EnvCaptures []int // per captured env slot: envInherit or parent closure env index
	Bytecode    []uint32

	Debug *DebugInfo
}

// DebugInfo carries optional per-instruction source mapping (§3, §6
// "on-wire layout"). Absent unless the producing assembler attached it.
type DebugInfo struct {
	Source     []byte
	SourceName string
	// Mapping holds one (start,end) byte-offset pair per bytecode word,
	// parallel to FunctionDefinition.Bytecode.
	Mapping []SourceSpan
}

// SourceSpan is a half-open byte range into DebugInfo.Source.
type SourceSpan struct{ Start, End uint32 }

// environmentState distinguishes a Function Environment still backed by a
// live fiber frame from one that has been detached onto its own storage
// (§3 "Function Environment").
type environmentState uint8

const (
	envOnStack environmentState = iota
	envDetached
)

// FunctionEnvironment is captured local-variable storage shared between a
// closure and the frame that created it. While on-stack it is a window
// (offset, length) into a Fiber's value array; once that frame is popped it
// detaches onto its own owned array (§4.4 "Detachment").
type FunctionEnvironment struct {
	gcHeader
	state  environmentState
	fiber  *Fiber // non-nil while envOnStack
	offset int    // index into fiber.values (the frame's base, >= 0) while envOnStack
	length int
	values []Value // owned storage once envDetached
}

var _ Value = (*FunctionEnvironment)(nil)

func (e *FunctionEnvironment) String() string { return fmt.Sprintf("env(%p)", e) }
func (e *FunctionEnvironment) Kind() Kind     { return KindAbstract } // environments are never user-visible values
func (e *FunctionEnvironment) Truth() Bool    { return True }
func (e *FunctionEnvironment) gcChildren(push func(Value)) {
	if e.state == envOnStack {
		if e.fiber != nil {
			push(e.fiber)
		}
		return
	}
	for _, v := range e.values {
		if v != nil {
			push(v)
		}
	}
}

// Get reads slot i of the environment, following on-stack indirection
// through the owning fiber's value array (§4.4 "Upvalue access").
func (e *FunctionEnvironment) Get(i int) (Value, error) {
	if i < 0 || i >= e.length {
		return Nil, fmt.Errorf("bad environment slot index %d (length %d)", i, e.length)
	}
	if e.state == envOnStack {
		return e.fiber.values[e.offset+i], nil
	}
	return e.values[i], nil
}

// Set writes slot i, following on-stack indirection (§4.4 "SET_UPVALUE").
func (e *FunctionEnvironment) Set(i int, v Value) error {
	if i < 0 || i >= e.length {
		return fmt.Errorf("bad environment slot index %d (length %d)", i, e.length)
	}
	if e.state == envOnStack {
		e.fiber.values[e.offset+i] = v
		return nil
	}
	e.values[i] = v
	return nil
}

// detach migrates an on-stack environment to owned storage, called when the
// frame it references is popped (§4.4 "Detachment"). It is a no-op if the
// environment is already detached.
func (e *FunctionEnvironment) detach() {
	if e.state == envDetached {
		return
	}
	vals := make([]Value, e.length)
	copy(vals, e.fiber.values[e.offset:e.offset+e.length])
	e.values = vals
	e.fiber = nil
	e.offset = 0
	e.state = envDetached
}

// newOnStackEnv allocates a Function Environment referencing the given
// fiber frame (§4.4 "allocate one referencing the fiber with offset=...,
// length=slotcount").
func (vm *VM) newOnStackEnv(fiber *Fiber, offset, length int) *FunctionEnvironment {
	e := &FunctionEnvironment{state: envOnStack, fiber: fiber, offset: offset, length: length}
	vm.gc.alloc(KindAbstract, 32, e)
	return e
}

// Function pairs a FunctionDefinition with the array of environments it
// captured, one per entry in Def.EnvCaptures (§3 "Function").
type Function struct {
	gcHeader
	Def  *FunctionDefinition
	Envs []*FunctionEnvironment
}

var (
	_ Value    = (*Function)(nil)
	_ Callable = (*Function)(nil)
)

func (c *Function) String() string {
	name := c.Def.Name
	if name == "" {
		name = "anonymous"
	}
	return fmt.Sprintf("function(%p %s)", c, name)
}
func (c *Function) Kind() Kind  { return KindFunction }
func (c *Function) Truth() Bool { return True }
func (c *Function) gcChildren(push func(Value)) {
	// Def is a plain Go struct, not itself a gcObject (§3 "Function
	// Definition" is pointer-free aside from the slices it owns), so any
	// heap Value it references is only reachable through the Function(s)
	// that wrap it; mark its constants here rather than leaving them
	// unreachable while a Function executing this def is still live.
	for _, v := range c.Def.Constants {
		if v != nil {
			push(v)
		}
	}
	for _, e := range c.Envs {
		if e != nil {
			push(e)
		}
	}
}

// Callable is implemented by every value the CALL/TAILCALL opcode path can
// invoke directly: Functions and NativeFunctions (§4.6 "Calls").
type Callable interface {
	Value
	callableName() string
}

func (c *Function) callableName() string { return c.Def.Name }

// NewFunction allocates a closure for def, resolving its env-capture map
// against the current frame and the calling closure per §4.4 "Function
// build". parent may be nil for a top-level (module) function.
func (vm *VM) NewFunction(def *FunctionDefinition, fiber *Fiber, frameIdx int, parent *Function) (*Function, error) {
	envs := make([]*FunctionEnvironment, len(def.EnvCaptures))
	var frameEnv *FunctionEnvironment
	for i, capture := range def.EnvCaptures {
		if capture == envInherit {
			if frameEnv == nil {
				fr := fiber.frameAt(frameIdx)
				if fr.env == nil {
					fr.env = vm.newOnStackEnv(fiber, fr.base, fr.def.SlotCount)
				}
				frameEnv = fr.env
			}
			envs[i] = frameEnv
			continue
		}
		if parent == nil || capture < 0 || capture >= len(parent.Envs) {
			return nil, fmt.Errorf("bad bytecode: invalid env-capture index %d", capture)
		}
		envs[i] = parent.Envs[capture]
	}
	c := &Function{Def: def, Envs: envs}
	vm.gc.alloc(KindFunction, 24+len(envs)*8, c)
	return c, nil
}
