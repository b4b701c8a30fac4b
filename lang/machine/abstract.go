package machine

import "fmt"

// AbstractType describes a host-registered opaque type: a name (looked up
// by the host embedding API, §6 "Abstract type registration and lookup by
// name") and a finalizer run when an Abstract of this type becomes
// unreachable.
type AbstractType struct {
	Name     string
	Finalize func(data interface{})
}

// Abstract wraps an opaque host value inside the tagged-value universe
// (§3 "abstract (opaque host object)"). The GC treats its payload as a leaf:
// it never reaches into host-owned data looking for further Values.
type Abstract struct {
	gcHeader
	typ  *AbstractType
	data interface{}
}

var _ Value = (*Abstract)(nil)

func (a *Abstract) String() string           { return fmt.Sprintf("%s(%p)", a.typ.Name, a) }
func (a *Abstract) Kind() Kind               { return KindAbstract }
func (a *Abstract) Truth() Bool              { return True }
func (a *Abstract) Type() *AbstractType      { return a.typ }
func (a *Abstract) Data() interface{}        { return a.data }
func (a *Abstract) gcChildren(func(Value)) {} // leaf: host-owned payload

// NewAbstract wraps data as an Abstract of the named registered type.
func (vm *VM) NewAbstract(typeName string, data interface{}) (*Abstract, error) {
	typ, ok := vm.abstractTypes.Get(typeName)
	if !ok {
		return nil, fmt.Errorf("abstract type %q is not registered", typeName)
	}
	a := &Abstract{typ: typ, data: data}
	vm.gc.alloc(KindAbstract, 24, a)
	return a, nil
}

// RegisterAbstractType adds typ to the VM's abstract-type registry, making
// it usable by name with NewAbstract (§6). The registry is a plain-string-
// keyed swiss.Map, the case dolthub/swiss's Go-builtin-equality semantics
// are actually correct for (see DESIGN.md).
func (vm *VM) RegisterAbstractType(typ *AbstractType) {
	vm.abstractTypes.Put(typ.Name, typ)
}

// finalizeAbstract runs an Abstract's registered type finalizer, if any,
// when the sweep determines it is unreachable.
func finalizeAbstract(a *Abstract) {
	if a.typ != nil && a.typ.Finalize != nil {
		a.typ.Finalize(a.data)
	}
}
