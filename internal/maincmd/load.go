package maincmd

import (
	"fmt"
	"os"

	"github.com/mna/sarrazin/config"
	"github.com/mna/sarrazin/internal/asm"
	"github.com/mna/sarrazin/lang/machine"
)

// loadFile reads and assembles file, returning a freshly-initialized VM
// configured from profilePath (see config.Load) and the resulting top-level
// FunctionDefinition.
func loadFile(file, profilePath string) (*machine.VM, *machine.FunctionDefinition, error) {
	src, err := os.ReadFile(file)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", file, err)
	}

	cfg, err := config.Load(profilePath, "SARRAZIN_")
	if err != nil {
		return nil, nil, err
	}
	vm := machine.NewVM(cfg.Options())
	if err := vm.Init(); err != nil {
		return nil, nil, err
	}

	def, err := asm.Assemble(vm, src)
	if err != nil {
		vm.Deinit()
		return nil, nil, fmt.Errorf("assembling %s: %w", file, err)
	}
	return vm, def, nil
}
