package maincmd

import (
	"context"
	"fmt"

	"github.com/mna/mainer"
)

// Assemble parses the named textual bytecode file and prints a summary of
// the resulting top-level function, as a sanity check that it assembles
// cleanly without running it.
func (c *Cmd) Assemble(ctx context.Context, stdio mainer.Stdio, args []string) error {
	return AssembleFile(stdio, args[0], c.Profile)
}

func AssembleFile(stdio mainer.Stdio, file, profilePath string) error {
	vm, def, err := loadFile(file, profilePath)
	if err != nil {
		return printError(stdio, err)
	}
	defer vm.Deinit()

	fmt.Fprintf(stdio.Stdout, "function %s: %d slots, %d constants, %d instructions, %d nested\n",
		def.Name, def.SlotCount, len(def.Constants), len(def.Bytecode), len(def.NestedDefs))
	return nil
}
