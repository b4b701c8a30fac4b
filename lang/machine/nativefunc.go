package machine

import "fmt"

// NativeFn is the single signature every host-provided callable conforms to
// (§6 "Native functions conform to a single signature"): it receives the
// outgoing argument region and returns a result, panicking with a
// *MachineError (via VM.Panic/VM.Panicf) to signal failure instead of
// returning an error value.
type NativeFn func(vm *VM, args []Value) Value

// NativeFunction wraps a host Go function as a callable sarrazin Value
// (§3 "native function (host callable)").
type NativeFunction struct {
	gcHeader
	Name string
	Fn   NativeFn
}

var (
	_ Value    = (*NativeFunction)(nil)
	_ Callable = (*NativeFunction)(nil)
)

func (nf *NativeFunction) String() string          { return fmt.Sprintf("native-function(%s)", nf.Name) }
func (nf *NativeFunction) Kind() Kind               { return KindNativeFunction }
func (nf *NativeFunction) Truth() Bool              { return True }
func (nf *NativeFunction) callableName() string     { return nf.Name }
func (nf *NativeFunction) gcChildren(func(Value)) {} // leaf: the Go closure itself isn't scanned

// NewNativeFunction wraps fn as a callable Value, without registering it in
// the named registry (for anonymous/one-off native callbacks; see
// RegisterNativeFunction for the named form §6 "registered cfun registry").
func (vm *VM) NewNativeFunction(name string, fn NativeFn) *NativeFunction {
	nf := &NativeFunction{Name: name, Fn: fn}
	vm.gc.alloc(KindNativeFunction, 24, nf)
	return nf
}

// RegisterNativeFunction wraps and records fn under name in the VM's global
// native-function registry (§6), letting bytecode resolve it by name (e.g.
// from a module's predeclared environment) without threading a reference
// through every FunctionDefinition's constants.
func (vm *VM) RegisterNativeFunction(name string, fn NativeFn) *NativeFunction {
	nf := vm.NewNativeFunction(name, fn)
	vm.nativeFuncs.Put(name, nf)
	return nf
}

// LookupNativeFunction returns the function registered under name, if any.
func (vm *VM) LookupNativeFunction(name string) (*NativeFunction, bool) {
	return vm.nativeFuncs.Get(name)
}
