// Package asm implements a human-readable/writable textual form of a
// sarrazin FunctionDefinition, for tests and the `sarrazin assemble`/
// `disasm` CLI commands that exercise the register VM without a real
// compiler front end. It is adapted from the teacher's lang/compiler/asm.go
// line-scanning, section-keyword builder, retargeted at sarrazin's
// register-format instruction word instead of the teacher's variable-length
// stack-bytecode encoding.
//
// The format:
//
//	function: NAME <slots> <arity> <minarity> <maxarity> [+vararg] [+structarg] [+hasenv]
//		constants:
//			number 1.5
//			string "abc"
//			symbol foo
//			keyword bar
//			nil
//			true
//			false
//		envcaptures:
//			inherit
//			0
//		nested:
//			OTHER_FUNCTION_NAME
//		code:
//		loop:
//			load-integer r0 10
//			add r2 r0 r1
//			jump loop
//			return r2
//
// Labels (an identifier followed by `:` on its own line) mark code
// positions; the relative operands of the JUMP* instructions refer to a label name
// instead of a raw offset, resolved to an instruction-count delta once the
// whole code section has been scanned.
package asm

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/mna/sarrazin/lang/machine"
)

var sections = map[string]bool{
	"function:":    true,
	"constants:":   true,
	"envcaptures:": true,
	"nested:":      true,
	"code:":        true,
}

// argConv is the decoding convention an opcode's operands follow (§4.6
// "Dispatch"), mirrored here so the assembler can accept the right shape of
// operands per mnemonic.
type argConv int

const (
	convNone argConv = iota
	convD            // one register/immediate operand
	convDs           // one signed register/immediate operand (jump offsets)
	convAE           // one register + one unsigned 16-bit operand
	convAEs          // one register + one signed 16-bit operand
	convABC          // three register operands
)

var opcodeConv = map[string]argConv{
	"noop": convNone,

	"load-nil": convD, "load-true": convD, "load-false": convD,
	"load-integer": convAEs, "load-constant": convAE, "load-self": convD,

	"move-near": convAE, "move-far": convAE,

	"load-upvalue": convABC, "set-upvalue": convABC,

	"add": convABC, "sub": convABC, "mul": convABC, "div": convABC,
	"div-floor": convABC, "mod": convABC, "rem": convABC,
	"add-imm": convAEs, "sub-imm": convAEs, "mul-imm": convAEs,
	"div-imm": convAEs, "div-floor-imm": convAEs, "mod-imm": convAEs, "rem-imm": convAEs,

	"band": convABC, "bor": convABC, "bxor": convABC,
	"shl": convABC, "shr": convABC, "shru": convABC,
	"band-imm": convAEs, "bor-imm": convAEs, "bxor-imm": convAEs,
	"shl-imm": convAEs, "shr-imm": convAEs, "shru-imm": convAEs,
	"bnot": convAE,

	"eq": convABC, "neq": convABC, "lt": convABC, "le": convABC, "gt": convABC, "ge": convABC,
	"eq-imm": convAEs, "neq-imm": convAEs, "lt-imm": convAEs, "le-imm": convAEs,
	"gt-imm": convAEs, "ge-imm": convAEs,
	"compare": convABC,

	"jump": convDs, "jump-if": convAEs, "jump-if-not": convAEs,
	"jump-if-nil": convAEs, "jump-if-not-nil": convAEs,
	"error": convD, "typecheck": convAE,

	"push": convD, "push2": convAE, "push3": convABC, "push-array": convD,
	"call": convAE, "tailcall": convD,

	"resume": convABC, "signal": convABC, "propagate": convABC, "cancel": convABC,

	"return": convD, "return-nil": convNone,

	"get": convABC, "get-index": convABC, "in": convABC, "put": convABC,
	"put-index": convABC, "length": convABC,

	"make-array": convD, "make-tuple": convD, "make-bracket-tuple": convD,
	"make-table": convD, "make-struct": convD, "make-string": convD, "make-buffer": convD,

	"closure": convAE,

	"next": convABC,
}

var opcodeByName = buildOpcodeTable()

func buildOpcodeTable() map[string]machine.Opcode {
	m := make(map[string]machine.Opcode, machine.NumOpcodes())
	for op := machine.Opcode(0); op < machine.Opcode(machine.NumOpcodes()); op++ {
		m[op.String()] = op
	}
	return m
}

// Assemble parses src into a FunctionDefinition, resolving nested function
// blocks and label references. vm supplies the interning/allocation needed
// for constant values (strings, symbols, keywords).
func Assemble(vm *machine.VM, src []byte) (*machine.FunctionDefinition, error) {
	a := &assembler{vm: vm, s: bufio.NewScanner(bytes.NewReader(src)), defs: map[string]*machine.FunctionDefinition{}}
	fields := a.next()
	var top *machine.FunctionDefinition
	for a.err == nil && len(fields) > 0 && strings.EqualFold(fields[0], "function:") {
		var def *machine.FunctionDefinition
		def, fields = a.function(fields)
		if top == nil {
			top = def
		}
	}
	if a.err == nil && len(fields) > 0 {
		a.err = fmt.Errorf("unexpected section: %s", fields[0])
	}
	if a.err == nil && top == nil {
		a.err = fmt.Errorf("missing function")
	}
	if a.err != nil {
		return nil, a.err
	}
	if err := a.resolveNested(top, map[*machine.FunctionDefinition]bool{}); err != nil {
		return nil, err
	}
	return top, nil
}

type assembler struct {
	vm      *machine.VM
	s       *bufio.Scanner
	rawLine string
	err     error
	defs    map[string]*machine.FunctionDefinition
	nested  map[*machine.FunctionDefinition][]string
}

func (a *assembler) resolveNested(def *machine.FunctionDefinition, seen map[*machine.FunctionDefinition]bool) error {
	if def == nil || seen[def] {
		return nil
	}
	seen[def] = true
	for _, name := range a.nested[def] {
		child, ok := a.defs[name]
		if !ok {
			return fmt.Errorf("function %q references unknown nested function %q", def.Name, name)
		}
		def.NestedDefs = append(def.NestedDefs, child)
		if err := a.resolveNested(child, seen); err != nil {
			return err
		}
	}
	return nil
}

func (a *assembler) function(fields []string) (*machine.FunctionDefinition, []string) {
	if len(fields) < 6 {
		a.err = fmt.Errorf("invalid function header: want 'function: NAME slots arity minarity maxarity [flags]', got %q", strings.Join(fields, " "))
		return nil, a.next()
	}
	def := &machine.FunctionDefinition{
		Name:      fields[1],
		SlotCount: a.int(fields[2]),
		Arity:     a.int(fields[3]),
		MinArity:  a.int(fields[4]),
	}
	def.MaxArity = def.Arity
	if len(fields) > 5 {
		def.MaxArity = a.int(fields[5])
	}
	for _, fld := range fields[6:] {
		switch fld {
		case "+vararg":
			def.IsVararg = true
			def.MaxArity = -1
		case "+structarg":
			def.StructArg = true
		case "+hasenv":
			def.HasEnv = true
		}
	}
	a.defs[def.Name] = def

	fields = a.next()
	fields = a.constants(def, fields)
	fields = a.envCaptures(def, fields)
	fields = a.nestedRefs(def, fields)
	fields = a.code(def, fields)
	return def, fields
}

func (a *assembler) constants(def *machine.FunctionDefinition, fields []string) []string {
	if a.err != nil || len(fields) == 0 || !strings.EqualFold(fields[0], "constants:") {
		return fields
	}
	for fields = a.next(); len(fields) > 0 && !sections[fields[0]]; fields = a.next() {
		v, err := a.constantValue(fields)
		if err != nil {
			a.err = err
			return fields
		}
		def.Constants = append(def.Constants, v)
	}
	return fields
}

func (a *assembler) constantValue(fields []string) (machine.Value, error) {
	switch fields[0] {
	case "nil":
		return machine.Nil, nil
	case "true":
		return machine.True, nil
	case "false":
		return machine.False, nil
	case "number":
		if len(fields) != 2 {
			return nil, fmt.Errorf("invalid number constant: %q", strings.Join(fields, " "))
		}
		f, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number constant %q: %w", fields[1], err)
		}
		return machine.Number(f), nil
	case "string":
		rest := strings.TrimSpace(strings.TrimPrefix(a.rawLine, "string"))
		s, err := strconv.Unquote(rest)
		if err != nil {
			return nil, fmt.Errorf("invalid string constant %q: %w", rest, err)
		}
		return a.vm.NewString(s), nil
	case "symbol":
		if len(fields) != 2 {
			return nil, fmt.Errorf("invalid symbol constant: %q", strings.Join(fields, " "))
		}
		return a.vm.Symbol(fields[1]), nil
	case "keyword":
		if len(fields) != 2 {
			return nil, fmt.Errorf("invalid keyword constant: %q", strings.Join(fields, " "))
		}
		return a.vm.Keyword(fields[1]), nil
	default:
		return nil, fmt.Errorf("unknown constant kind: %s", fields[0])
	}
}

func (a *assembler) envCaptures(def *machine.FunctionDefinition, fields []string) []string {
	if a.err != nil || len(fields) == 0 || !strings.EqualFold(fields[0], "envcaptures:") {
		return fields
	}
	for fields = a.next(); len(fields) > 0 && !sections[fields[0]]; fields = a.next() {
		if fields[0] == "inherit" {
			def.EnvCaptures = append(def.EnvCaptures, -1)
			continue
		}
		def.EnvCaptures = append(def.EnvCaptures, a.int(fields[0]))
	}
	return fields
}

func (a *assembler) nestedRefs(def *machine.FunctionDefinition, fields []string) []string {
	if a.err != nil || len(fields) == 0 || !strings.EqualFold(fields[0], "nested:") {
		return fields
	}
	if a.nested == nil {
		a.nested = map[*machine.FunctionDefinition][]string{}
	}
	for fields = a.next(); len(fields) > 0 && !sections[fields[0]]; fields = a.next() {
		a.nested[def] = append(a.nested[def], fields[0])
	}
	return fields
}

type pendingInsn struct {
	mnemonic string
	args     []string
	label    string // non-empty if this instruction has a jump-target label operand
}

func (a *assembler) code(def *machine.FunctionDefinition, fields []string) []string {
	if a.err != nil || len(fields) == 0 || !strings.EqualFold(fields[0], "code:") {
		return fields
	}
	labels := map[string]int{}
	var insns []pendingInsn
	for fields = a.next(); len(fields) > 0 && !sections[fields[0]] && !strings.EqualFold(fields[0], "function:"); fields = a.next() {
		if len(fields) == 1 && strings.HasSuffix(fields[0], ":") {
			labels[strings.TrimSuffix(fields[0], ":")] = len(insns)
			continue
		}
		mnemonic := strings.ToLower(fields[0])
		insns = append(insns, pendingInsn{mnemonic: mnemonic, args: fields[1:]})
	}

	def.Bytecode = make([]uint32, len(insns))
	for i, pi := range insns {
		word, err := a.encode(pi, i, labels)
		if err != nil {
			a.err = err
			return fields
		}
		def.Bytecode[i] = word
	}
	return fields
}

var jumpMnemonics = map[string]bool{
	"jump": true, "jump-if": true, "jump-if-not": true,
	"jump-if-nil": true, "jump-if-not-nil": true,
}

func (a *assembler) encode(pi pendingInsn, index int, labels map[string]int) (uint32, error) {
	op, ok := opcodeByName[pi.mnemonic]
	if !ok {
		return 0, fmt.Errorf("unknown opcode: %s", pi.mnemonic)
	}
	conv := opcodeConv[pi.mnemonic]

	// A jump mnemonic's final operand names a label instead of a register;
	// translate it to a pc-relative instruction-count delta. A purely numeric
	// operand (as produced by Disassemble, which has no label names to
	// recover) is accepted as-is: it is already a relative delta.
	args := append([]string(nil), pi.args...)
	if jumpMnemonics[pi.mnemonic] && len(args) > 0 {
		last := args[len(args)-1]
		if _, err := strconv.Atoi(last); err != nil {
			target, ok := labels[last]
			if !ok {
				return 0, fmt.Errorf("%s: unknown label %q", pi.mnemonic, last)
			}
			args[len(args)-1] = strconv.Itoa(target - index - 1)
		}
	}

	switch conv {
	case convNone:
		return uint32(op), nil
	case convD:
		if len(args) != 1 {
			return 0, fmt.Errorf("%s: expected 1 operand, got %d", pi.mnemonic, len(args))
		}
		return machine.EncodeD(op, uint32(a.reg(args[0]))), nil
	case convDs:
		if len(args) != 1 {
			return 0, fmt.Errorf("%s: expected 1 operand, got %d", pi.mnemonic, len(args))
		}
		return machine.EncodeD(op, uint32(int32(a.int(args[0])))&0x00ffffff), nil
	case convAE:
		if len(args) != 2 {
			return 0, fmt.Errorf("%s: expected 2 operands, got %d", pi.mnemonic, len(args))
		}
		return machine.EncodeAE(op, uint8(a.reg(args[0])), uint16(a.int(args[1]))), nil
	case convAEs:
		if len(args) != 2 {
			return 0, fmt.Errorf("%s: expected 2 operands, got %d", pi.mnemonic, len(args))
		}
		return machine.EncodeAE(op, uint8(a.reg(args[0])), uint16(int16(a.int(args[1])))), nil
	case convABC:
		if len(args) != 3 {
			return 0, fmt.Errorf("%s: expected 3 operands, got %d", pi.mnemonic, len(args))
		}
		return machine.EncodeABC(op, uint8(a.reg(args[0])), uint8(a.reg(args[1])), uint8(a.reg(args[2]))), nil
	default:
		return 0, fmt.Errorf("%s: unknown argument convention", pi.mnemonic)
	}
}

// reg parses a register operand, accepting both "r3" and a bare "3".
func (a *assembler) reg(s string) int {
	return a.int(strings.TrimPrefix(s, "r"))
}

func (a *assembler) int(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil && a.err == nil {
		a.err = fmt.Errorf("invalid integer: %s: %w", s, err)
	}
	return n
}

// next returns the fields of the next non-empty, non-comment line.
func (a *assembler) next() []string {
	a.rawLine = ""
	if a.err != nil {
		return nil
	}
	for a.s.Scan() {
		line := a.s.Text()
		fields := strings.Fields(line)
		if len(fields) != 0 && !strings.HasPrefix(fields[0], "#") {
			for i, fld := range fields {
				if strings.HasPrefix(fld, "#") {
					fields = fields[:i]
					break
				}
			}
			a.rawLine = strings.TrimSpace(line)
			return fields
		}
	}
	a.err = a.s.Err()
	return nil
}

// Disassemble renders def and every FunctionDefinition it transitively
// references back into the textual format Assemble accepts, mirroring the
// teacher's Dasm counterpart to its own Asm. Round-tripping a definition
// through Disassemble then Assemble reproduces an equivalent Bytecode
// (disassembly emits no labels: jump operands are printed as raw
// instruction-count offsets).
func Disassemble(def *machine.FunctionDefinition) (string, error) {
	d := &disassembler{buf: new(bytes.Buffer), seen: map[*machine.FunctionDefinition]bool{}}
	d.function(def)
	return d.buf.String(), d.err
}

type disassembler struct {
	buf  *bytes.Buffer
	err  error
	seen map[*machine.FunctionDefinition]bool
}

func (d *disassembler) function(def *machine.FunctionDefinition) {
	if d.err != nil || d.seen[def] {
		return
	}
	d.seen[def] = true

	fmt.Fprintf(d.buf, "function: %s %d %d %d %d", def.Name, def.SlotCount, def.Arity, def.MinArity, def.MaxArity)
	if def.IsVararg {
		fmt.Fprint(d.buf, " +vararg")
	}
	if def.StructArg {
		fmt.Fprint(d.buf, " +structarg")
	}
	if def.HasEnv {
		fmt.Fprint(d.buf, " +hasenv")
	}
	fmt.Fprint(d.buf, "\n")

	if len(def.Constants) > 0 {
		fmt.Fprint(d.buf, "\tconstants:\n")
		for _, v := range def.Constants {
			line, err := constantText(v)
			if err != nil {
				d.err = err
				return
			}
			fmt.Fprintf(d.buf, "\t\t%s\n", line)
		}
	}

	if len(def.EnvCaptures) > 0 {
		fmt.Fprint(d.buf, "\tenvcaptures:\n")
		for _, c := range def.EnvCaptures {
			if c == -1 {
				fmt.Fprint(d.buf, "\t\tinherit\n")
				continue
			}
			fmt.Fprintf(d.buf, "\t\t%d\n", c)
		}
	}

	if len(def.NestedDefs) > 0 {
		fmt.Fprint(d.buf, "\tnested:\n")
		for _, n := range def.NestedDefs {
			fmt.Fprintf(d.buf, "\t\t%s\n", n.Name)
		}
	}

	fmt.Fprint(d.buf, "\tcode:\n")
	for i, word := range def.Bytecode {
		line, err := d.instruction(word, i)
		if err != nil {
			d.err = err
			return
		}
		fmt.Fprintf(d.buf, "\t\t%s\n", line)
	}

	for _, n := range def.NestedDefs {
		fmt.Fprint(d.buf, "\n")
		d.function(n)
	}
}

func constantText(v machine.Value) (string, error) {
	switch x := v.(type) {
	case machine.NilType:
		return "nil", nil
	case machine.Bool:
		if x {
			return "true", nil
		}
		return "false", nil
	case machine.Number:
		return "number " + strconv.FormatFloat(float64(x), 'g', -1, 64), nil
	case *machine.String:
		return "string " + strconv.Quote(string(x.Bytes())), nil
	case *machine.Symbol:
		return "symbol " + x.Name(), nil
	case *machine.Keyword:
		return "keyword " + x.Name(), nil
	default:
		return "", fmt.Errorf("cannot disassemble constant of kind %s", v.Kind())
	}
}

// rawOpMask/rawBreakBit mirror opcode.go's own unexported masks; internal/asm
// decodes the wire format as an external consumer would, from the documented
// bit layout (§4.6), rather than importing machine's private decode helpers.
const (
	rawOpMask   = 0x7f
	rawBreakBit = 0x80
)

func (d *disassembler) instruction(word uint32, index int) (string, error) {
	opByte := uint8(word) &^ rawBreakBit
	op := machine.Opcode(opByte & rawOpMask)
	name := op.String()
	conv, ok := opcodeConv[name]
	if !ok {
		return "", fmt.Errorf("instruction %d: unknown opcode byte %d", index, opByte)
	}

	breakMark := ""
	if uint8(word)&rawBreakBit != 0 {
		breakMark = " ; breakpoint"
	}

	a := uint8(word >> 8)
	b := uint8(word >> 16)
	c := uint8(word >> 24)
	e := uint16(word >> 16)
	d24 := word >> 8

	switch conv {
	case convNone:
		return name + breakMark, nil
	case convD:
		return fmt.Sprintf("%s r%d%s", name, d24, breakMark), nil
	case convDs:
		return fmt.Sprintf("%s %d%s", name, signExtend24(d24), breakMark), nil
	case convAE:
		return fmt.Sprintf("%s r%d %d%s", name, a, e, breakMark), nil
	case convAEs:
		return fmt.Sprintf("%s r%d %d%s", name, a, int16(e), breakMark), nil
	case convABC:
		return fmt.Sprintf("%s r%d r%d r%d%s", name, a, b, c, breakMark), nil
	default:
		return "", fmt.Errorf("instruction %d: unknown argument convention for %s", index, name)
	}
}

func signExtend24(d uint32) int32 {
	if d&0x00800000 != 0 {
		return int32(d | 0xff000000)
	}
	return int32(d)
}
