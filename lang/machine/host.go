package machine

import (
	"fmt"

	"github.com/dolthub/swiss"
)

// Options configures a VM at construction (§6, ambient config wiring: these
// fields are populated from environment variables and an optional YAML
// profile by config.Config before being passed to NewVM).
type Options struct {
	// GCInterval is the number of allocated bytes between collections
	// (§4.2 "maybe_collect"). <= 0 selects the package default.
	GCInterval int64
	// MaxStack caps a fiber's value array (§3 "maxstack (hard limit ->
	// stack overflow)"). <= 0 selects defaultMaxStack.
	MaxStack int
	// RecursionGuard bounds nested VM.Call depth (§4.6 "Recursion is
	// bounded by a RECURSION_GUARD counter"). <= 0 disables the guard.
	RecursionGuard int
	// KeyedHash enables the seeded hash variant for untrusted-key workloads
	// (§4.1).
	KeyedHash bool
}

// VM is one instance of the sarrazin core runtime: its own GC, intern
// tables, registries, and fiber tree (§5 "All VM globals... are
// per-thread. Separate VMs in separate threads do not share heap objects").
// A VM must not be used concurrently from more than one goroutine.
type VM struct {
	Options Options

	gc       *GC
	symbols  map[string]*Symbol
	keywords map[string]*Keyword

	nativeFuncs   *swiss.Map[string, *NativeFunction]
	abstractTypes *swiss.Map[string, *AbstractType]

	root    *Fiber
	current *Fiber

	recursionDepth int
}

// NewVM constructs a VM with the given options but does not yet allocate
// the root fiber; call Init before use (§6 "init()").
func NewVM(opts Options) *VM {
	return &VM{
		Options:       opts,
		gc:            newGC(opts.GCInterval),
		symbols:       make(map[string]*Symbol),
		keywords:      make(map[string]*Keyword),
		nativeFuncs:   swiss.NewMap[string, *NativeFunction](16),
		abstractTypes: swiss.NewMap[string, *AbstractType](8),
	}
}

// Init allocates the root fiber and marks the VM ready to run code
// (§6 "init()"). It is separate from NewVM so that host code can register
// abstract types and native functions (which themselves may want a live
// *VM to allocate Values) before the first fiber exists.
func (vm *VM) Init() error {
	if vm.root != nil {
		return fmt.Errorf("VM already initialized")
	}
	vm.root = vm.NewFiber(64, vm.Options.MaxStack)
	vm.root.status = FiberAlive
	vm.current = vm.root
	vm.gc.GCRoot(vm.root)
	return nil
}

// Deinit releases the VM's root fiber reference so its heap becomes
// collectible (§6 "deinit()"). The VM must not be used afterward.
func (vm *VM) Deinit() {
	if vm.root != nil {
		vm.gc.GCUnroot(vm.root)
	}
	vm.root = nil
	vm.current = nil
}

// CoreEnv returns the set of values every module sees automatically,
// built from the registered native functions (§6 "core_env()"); the
// compiler/resolver (out of scope here) is expected to seed each module's
// predeclared identifiers from this map.
func (vm *VM) CoreEnv() map[string]Value {
	env := make(map[string]Value)
	vm.nativeFuncs.Iter(func(name string, nf *NativeFunction) bool {
		env[name] = nf
		return false
	})
	return env
}

// roots enumerates every GC root (§4.2 "Roots are: currently running
// fiber; root fiber; abstract-type registry table; interned-string table;
// registered cfun registry; host-provided roots via gcroot").
func (vm *VM) roots(push func(Value)) {
	if vm.current != nil {
		push(vm.current)
	}
	if vm.root != nil {
		push(vm.root)
	}
	for _, s := range vm.symbols {
		push(s)
	}
	for _, k := range vm.keywords {
		push(k)
	}
	vm.nativeFuncs.Iter(func(_ string, nf *NativeFunction) bool {
		push(nf)
		return false
	})
}

// MaybeCollect runs a collection if allocation pressure has crossed the
// configured interval; the interpreter calls this between instructions
// (§2 "GC is invoked opportunistically between instructions").
func (vm *VM) MaybeCollect() { vm.gc.maybeCollect(vm.roots) }

// Collect forces an immediate collection, bypassing the interval check.
func (vm *VM) Collect() { vm.gc.collect(vm.roots) }

// GCRoot registers v as an additional, explicitly host-managed root
// (§4.2 "gcroot").
func (vm *VM) GCRoot(v Value) { vm.gc.GCRoot(v) }

// GCUnroot removes a root registered with GCRoot (§4.2 "gcunroot").
func (vm *VM) GCUnroot(v Value) { vm.gc.GCUnroot(v) }

// GCLock disables collection across a host critical section (§4.2
// "gclock").
func (vm *VM) GCLock() { vm.gc.GCLock() }

// GCUnlock re-enables collection disabled by GCLock (§4.2 "gcunlock").
func (vm *VM) GCUnlock() { vm.gc.GCUnlock() }

// Stats reports collector statistics (§4.2 ADD).
func (vm *VM) Stats() GCStats { return vm.gc.Stats() }

// Panic raises value as a host-code error, transported via the protected-
// call mechanism to the nearest try-state (§4.7 "Host panic(value) is
// transported via a protected-call mechanism"). It never returns.
func (vm *VM) Panic(value Value) {
	panic(&MachineError{Kind: ErrUser, Value: value})
}

// Panicf raises a formatted user error, for native functions that want a
// plain-string failure message without constructing a Value themselves
// (§6 "panic(value) and panicf(fmt, ...) for host code inside native
// functions").
func (vm *VM) Panicf(format string, args ...interface{}) {
	panic(&MachineError{Kind: ErrUser, Message: fmt.Sprintf(format, args...)})
}

// panicKind raises a typed machine error (arity/type/range/etc.), used
// internally by the interpreter and container operations rather than by
// host native-function code (which uses Panic/Panicf with ErrUser).
func panicKind(kind ErrorKind, format string, args ...interface{}) {
	panic(&MachineError{Kind: kind, Message: fmt.Sprintf(format, args...)})
}
