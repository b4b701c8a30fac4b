package maincmd

import (
	"context"
	"fmt"

	"github.com/mna/mainer"
	"github.com/mna/sarrazin/internal/asm"
)

// Disasm assembles the named textual bytecode file and prints it back out
// in canonical form (label names replaced by raw relative offsets,
// whitespace normalized), the round-trip normalization internal/asm's
// Assemble/Disassemble pair exists to support.
func (c *Cmd) Disasm(ctx context.Context, stdio mainer.Stdio, args []string) error {
	return DisasmFile(stdio, args[0], c.Profile)
}

func DisasmFile(stdio mainer.Stdio, file, profilePath string) error {
	vm, def, err := loadFile(file, profilePath)
	if err != nil {
		return printError(stdio, err)
	}
	defer vm.Deinit()

	out, err := asm.Disassemble(def)
	if err != nil {
		return printError(stdio, fmt.Errorf("disassembling %s: %w", file, err))
	}
	fmt.Fprint(stdio.Stdout, out)
	return nil
}
