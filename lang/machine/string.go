package machine

import (
	"strconv"
)

// String is an immutable byte sequence. Unlike Symbol and Keyword, strings
// are not interned: two Strings with identical bytes are distinct
// allocations but compare equal (§3 "String / Symbol / Keyword").
type String struct {
	gcHeader
	hash uint32
	data []byte
}

var (
	_ Value   = (*String)(nil)
	_ Ordered = (*String)(nil)
)

func (s *String) String() string { return strconv.Quote(string(s.data)) }
func (s *String) Kind() Kind     { return KindString }
func (s *String) Truth() Bool    { return True }
func (s *String) Len() int       { return len(s.data) }
func (s *String) Bytes() []byte  { return s.data } // caller must not mutate
func (s *String) Cmp(y Value) (int, error) {
	return compareValues(s, y)
}
func (s *String) gcChildren(func(Value)) {} // leaf

// BeginString returns a scratch buffer of n bytes for the caller to fill
// before calling EndString (§4.3 "begin(len) returns a mutable raw
// buffer").
func (vm *VM) BeginString(n int) []byte { return make([]byte, n) }

// EndString finalizes a buffer produced by BeginString into an immutable
// String, computing and caching its hash. Strings are not interned.
func (vm *VM) EndString(buf []byte) *String {
	s := &String{hash: hashBytes(buf, vm.Options.KeyedHash), data: buf}
	vm.gc.alloc(KindString, len(buf)+24, s)
	return s
}

// NewString is a convenience wrapper around BeginString/EndString for
// callers that already have a complete byte slice (or string) in hand.
func (vm *VM) NewString(s string) *String {
	return vm.EndString([]byte(s))
}
