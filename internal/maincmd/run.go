package maincmd

import (
	"context"
	"fmt"

	"github.com/mna/mainer"
	"github.com/mna/sarrazin/lang/machine"
)

// Run assembles the named file and executes its top-level function on a
// fresh VM, printing the resulting signal and value (§4.6 "Continue /
// Resume / Cancel", §6 "pcall"). With --trace it single-steps instead,
// dumping fiber state to stderr after every instruction (§4.6 "step").
func (c *Cmd) Run(ctx context.Context, stdio mainer.Stdio, args []string) error {
	return RunFile(stdio, args[0], c.Trace, c.Profile)
}

func RunFile(stdio mainer.Stdio, file string, trace bool, profilePath string) error {
	vm, def, err := loadFile(file, profilePath)
	if err != nil {
		return printError(stdio, err)
	}
	defer vm.Deinit()

	fn, err := vm.NewFunction(def, nil, 0, nil)
	if err != nil {
		return printError(stdio, err)
	}

	if !trace {
		sig, val, err := vm.PCall(fn, nil)
		if err != nil {
			return printError(stdio, err)
		}
		fmt.Fprintf(stdio.Stdout, "%s: %s\n", sig, machine.Dump(val))
		if sig != machine.SignalOK {
			return fmt.Errorf("run: fiber ended with signal %s", sig)
		}
		return nil
	}

	f, err := vm.NewRootFiber(fn, 64, nil)
	if err != nil {
		return printError(stdio, err)
	}
	for {
		sig, val, err := vm.Step(f)
		if err != nil {
			return printError(stdio, err)
		}
		if sig == machine.SignalDebug {
			fmt.Fprint(stdio.Stderr, machine.DumpFiber(f))
			continue
		}
		fmt.Fprintf(stdio.Stdout, "%s: %s\n", sig, machine.Dump(val))
		if sig != machine.SignalOK {
			return fmt.Errorf("run: fiber ended with signal %s", sig)
		}
		return nil
	}
}

func printError(stdio mainer.Stdio, err error) error {
	fmt.Fprintf(stdio.Stderr, "%s\n", err)
	return err
}
