// Package machine implements the register-based bytecode virtual machine at
// the core of sarrazin: the tagged value representation, the tracing
// garbage collector, the core container types, the function/closure model,
// the fiber (stackless cooperative task) primitive, and the bytecode
// interpreter. Everything above this package — the reader, the compiler,
// the assembler, module loading, I/O libraries, the REPL — is an external
// collaborator that consumes this package through the host embedding API
// (host.go, extract.go).
package machine

import "fmt"

// Kind identifies the dynamic type of a Value. It is the tag half of the
// tagged union described by the value representation: in the default build
// the "union" is simply a Go interface (a type word plus a data word), and
// Kind is what a type-switch over that interface amounts to. The nanbox
// encoding does not store Kind; it uses its own nanTag.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindNumber
	KindString
	KindSymbol
	KindKeyword
	KindArray
	KindTuple
	KindTable
	KindStruct
	KindBuffer
	KindFunction
	KindNativeFunction
	KindFiber
	KindAbstract

	numKinds
)

var kindNames = [numKinds]string{
	KindNil:            "nil",
	KindBool:           "boolean",
	KindNumber:         "number",
	KindString:         "string",
	KindSymbol:         "symbol",
	KindKeyword:        "keyword",
	KindArray:          "array",
	KindTuple:          "tuple",
	KindTable:          "table",
	KindStruct:         "struct",
	KindBuffer:         "buffer",
	KindFunction:       "function",
	KindNativeFunction: "native-function",
	KindFiber:          "fiber",
	KindAbstract:       "abstract",
}

func (k Kind) String() string {
	if k < numKinds {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// typeOrder fixes the total order used to compare values of different kinds
// (§4.1 Ordering: "across types, a fixed type ordering applies"). The order
// itself is arbitrary but must be stable for the lifetime of a program.
var typeOrder = [numKinds]int{
	KindNil:            0,
	KindBool:           1,
	KindNumber:         2,
	KindString:         3,
	KindSymbol:         4,
	KindKeyword:        5,
	KindTuple:          6,
	KindStruct:         7,
	KindArray:          8,
	KindTable:          9,
	KindBuffer:         10,
	KindFunction:       11,
	KindNativeFunction: 12,
	KindFiber:          13,
	KindAbstract:       14,
}

// Value is the interface implemented by every value the machine can hold in
// a register, a constant slot, a local, or a captured environment slot.
//
// Equality, ordering and hashing are defined on logical values (Equals,
// compareValues via Ordered, Hash), never on the Go encoding: two distinct
// *String allocations with the same bytes are equal even though they are
// different pointers, while two distinct *Array allocations are never equal
// even with identical elements (mutables compare by identity, §4.1).
type Value interface {
	// String returns a human-readable representation, as used by debug
	// printers and error messages.
	String() string

	// Kind reports the dynamic type tag of the value.
	Kind() Kind

	// Truth reports whether the value is truthy. nil and false are the only
	// falsey values (§3).
	Truth() Bool
}

// Type returns the short type name of v, as used in error messages (e.g.
// "expected string, got number").
func Type(v Value) string { return v.Kind().String() }

// Truthy reports whether v is truthy.
func Truthy(v Value) bool { return bool(Truth(v)) }

// Truth returns v's Bool truth value.
func Truth(v Value) Bool { return v.Truth() }

// CheckType reports whether v has the given kind, returning a descriptive
// error instead of panicking, for callers that prefer explicit error
// handling over the panic/recover convention used inside native functions.
func CheckType(want Kind, v Value) error {
	if v.Kind() != want {
		return &TypeError{Want: want, Got: v}
	}
	return nil
}

// A TypeError reports that a value did not have the expected kind.
type TypeError struct {
	Want Kind
	Got  Value
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("type mismatch: expected %s, got %s", e.Want, e.Got.Kind())
}
