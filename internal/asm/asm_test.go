package asm

import (
	"testing"

	"github.com/mna/sarrazin/lang/machine"
	"github.com/stretchr/testify/require"
)

func newTestVM(t *testing.T) *machine.VM {
	t.Helper()
	vm := machine.NewVM(machine.Options{})
	require.NoError(t, vm.Init())
	return vm
}

const addTwoSrc = `
function: add-two 3 2 2 2
	code:
		add r2 r0 r1
		return r2
`

func TestAssembleArithmetic(t *testing.T) {
	vm := newTestVM(t)

	def, err := Assemble(vm, []byte(addTwoSrc))
	require.NoError(t, err)
	require.Equal(t, "add-two", def.Name)
	require.Equal(t, 3, def.SlotCount)
	require.Equal(t, 2, def.Arity)
	require.Len(t, def.Bytecode, 2)

	fn, err := vm.NewFunction(def, nil, 0, nil)
	require.NoError(t, err)

	got := vm.Call(fn, []machine.Value{machine.Number(3), machine.Number(4)})
	require.Equal(t, machine.Number(7), got)
}

const loopSrc = `
function: count-down 2 1 1 1
	constants:
		number 0
	code:
	top:
		load-constant r1 0
		le r1 r0 r1
		jump-if r1 done
		sub-imm r0 1
		jump top
	done:
		return r0
`

func TestAssembleLabelsAndJumps(t *testing.T) {
	vm := newTestVM(t)

	def, err := Assemble(vm, []byte(loopSrc))
	require.NoError(t, err)

	fn, err := vm.NewFunction(def, nil, 0, nil)
	require.NoError(t, err)

	got := vm.Call(fn, []machine.Value{machine.Number(5)})
	require.Equal(t, machine.Number(0), got)
}

const constantsSrc = `
function: consts 1 0 0 0
	constants:
		nil
		true
		false
		number 1.5
		string "hi there"
		symbol foo
		keyword bar
	code:
		return-nil
`

func TestAssembleConstantKinds(t *testing.T) {
	vm := newTestVM(t)

	def, err := Assemble(vm, []byte(constantsSrc))
	require.NoError(t, err)
	require.Len(t, def.Constants, 7)

	require.Equal(t, machine.Nil, def.Constants[0])
	require.Equal(t, machine.True, def.Constants[1])
	require.Equal(t, machine.False, def.Constants[2])
	require.Equal(t, machine.Number(1.5), def.Constants[3])

	s, ok := def.Constants[4].(*machine.String)
	require.True(t, ok)
	require.Equal(t, "hi there", string(s.Bytes()))

	sym, ok := def.Constants[5].(*machine.Symbol)
	require.True(t, ok)
	require.Equal(t, "foo", sym.Name())

	kw, ok := def.Constants[6].(*machine.Keyword)
	require.True(t, ok)
	require.Equal(t, "bar", kw.Name())
}

const closureSrc = `
function: make-adder 2 1 1 1 +hasenv
	nested:
		adder
	code:
		closure r1 0
		return r1

function: adder 1 0 0 0
	envcaptures:
		inherit
	code:
		load-upvalue r0 0 0
		return r0
`

func TestAssembleNestedClosure(t *testing.T) {
	vm := newTestVM(t)

	def, err := Assemble(vm, []byte(closureSrc))
	require.NoError(t, err)
	require.Equal(t, "make-adder", def.Name)
	require.Len(t, def.NestedDefs, 1)
	require.Equal(t, "adder", def.NestedDefs[0].Name)

	fn, err := vm.NewFunction(def, nil, 0, nil)
	require.NoError(t, err)

	closureVal := vm.Call(fn, []machine.Value{machine.Number(9)})
	closure, ok := closureVal.(*machine.Function)
	require.True(t, ok)

	got := vm.Call(closure, nil)
	require.Equal(t, machine.Number(9), got)
}

func TestDisassembleRoundTrip(t *testing.T) {
	vm := newTestVM(t)

	def, err := Assemble(vm, []byte(addTwoSrc))
	require.NoError(t, err)

	text, err := Disassemble(def)
	require.NoError(t, err)
	require.Contains(t, text, "function: add-two 3 2 2 2")
	require.Contains(t, text, "add r2 r0 r1")
	require.Contains(t, text, "return r2")

	redef, err := Assemble(vm, []byte(text))
	require.NoError(t, err)
	require.Equal(t, def.Bytecode, redef.Bytecode)
}

func TestAssembleUnknownOpcode(t *testing.T) {
	vm := newTestVM(t)

	_, err := Assemble(vm, []byte(`
function: bad 1 0 0 0
	code:
		frobnicate r0
`))
	require.Error(t, err)
}
