package machine

// Symbol is an interned identifier value: two symbols with the same bytes
// are the same pointer (§3 "Symbols and keywords are interned"). Symbols
// are used by the host and by captured-environment bookkeeping; sarrazin
// source-level identifiers are resolved to register/upvalue indices before
// reaching this package (that resolution is the compiler's job, out of
// scope here), but symbols remain a first-class runtime value for dynamic
// uses (e.g. table keys, reflection, the `quote` family of literals).
type Symbol struct {
	gcHeader
	hash uint32
	name string
}

var (
	_ Value   = (*Symbol)(nil)
	_ Ordered = (*Symbol)(nil)
)

func (s *Symbol) String() string           { return s.name }
func (s *Symbol) Kind() Kind                { return KindSymbol }
func (s *Symbol) Truth() Bool               { return True }
func (s *Symbol) Name() string              { return s.name }
func (s *Symbol) Cmp(y Value) (int, error)  { return compareValues(s, y) }
func (s *Symbol) gcChildren(func(Value))    {}

// EndSymbol interns buf as a Symbol: repeated calls with equal bytes return
// the same pointer (§4.3 "end(buf) finalizes and, for symbol/keyword,
// interns"). The internment table is owned by the VM (per-thread, §5).
func (vm *VM) EndSymbol(buf []byte) *Symbol {
	key := string(buf)
	if s, ok := vm.symbols[key]; ok {
		return s
	}
	s := &Symbol{hash: hashBytes(buf, vm.Options.KeyedHash), name: key}
	vm.gc.alloc(KindSymbol, len(buf)+24, s)
	vm.symbols[key] = s
	return s
}

// Symbol is a convenience wrapper around EndSymbol for callers that already
// have a complete name in hand.
func (vm *VM) Symbol(name string) *Symbol { return vm.EndSymbol([]byte(name)) }
