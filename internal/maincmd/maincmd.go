// Package maincmd implements the sarrazin CLI's command dispatch, adapted
// from the teacher's internal/maincmd/maincmd.go flag-tag Cmd struct and
// reflection-based command table, retargeted from the parse/resolve/
// tokenize front-end commands to the register VM's assemble/run/disasm
// commands (§1 Non-goals: no parser/compiler/REPL in this repository, so
// the CLI drives the interpreter directly from assembled bytecode).
package maincmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/mna/mainer"
)

const binName = "sarrazin"

var (
	shortUsage = fmt.Sprintf(`
usage: %s [<option>...] <command> <path>
Run '%[1]s --help' for details.
`, binName)

	longUsage = fmt.Sprintf(`usage: %s [<option>...] <command> <path>
       %[1]s -h|--help
       %[1]s -v|--version

Register-VM bytecode assembler and interpreter for the sarrazin language.

The <command> can be one of:
       assemble                  Assemble a textual bytecode file and
                                  print a summary of the resulting function.
       run                       Assemble and execute a bytecode file,
                                  printing its result.
       disasm                    Assemble a bytecode file and print its
                                  canonical disassembly back out, as a
                                  round-trip normalization.

Valid flag options are:
       -h --help                 Show this help and exit.
       -v --version              Print version and exit.
       --trace                   Dump fiber state to stderr after each
                                  executed instruction (valid for <run>).
       --profile <path>          Load a YAML config profile before running.

More information on the sarrazin runtime:
       https://github.com/mna/sarrazin
`, binName)
)

type Cmd struct {
	BuildVersion string
	BuildDate    string

	Help    bool `flag:"h,help"`
	Version bool `flag:"v,version"`

	Trace   bool   `flag:"trace"`
	Profile string `flag:"profile"`

	args  []string
	flags map[string]bool
	cmdFn func(context.Context, mainer.Stdio, []string) error
}

func (c *Cmd) SetArgs(args []string) {
	c.args = args
}

func (c *Cmd) SetFlags(flags map[string]bool) {
	c.flags = flags
}

func (c *Cmd) Validate() error {
	if c.Help || c.Version {
		return nil
	}

	if len(c.args) == 0 {
		return errors.New("no command specified")
	}

	cmdName := c.args[0]

	commands := buildCmds(c)
	c.cmdFn = commands[cmdName]
	if c.cmdFn == nil {
		return fmt.Errorf("unknown command: %s", c.args[0])
	}

	if len(c.args[1:]) != 1 {
		return fmt.Errorf("%s: exactly one file must be provided", cmdName)
	}

	if c.flags["trace"] && cmdName != "run" {
		return fmt.Errorf("%s: invalid flag 'trace'", cmdName)
	}

	return nil
}

func (c *Cmd) Main(args []string, stdio mainer.Stdio) mainer.ExitCode {
	p := mainer.Parser{
		EnvVars:   true,
		EnvPrefix: strings.ToUpper(binName) + "_",
	}
	if err := p.Parse(args, c); err != nil {
		fmt.Fprintf(stdio.Stderr, "invalid arguments: %s\n%s", err, shortUsage)
		return mainer.InvalidArgs
	}

	switch {
	case c.Help:
		fmt.Fprint(stdio.Stdout, longUsage)
		return mainer.Success

	case c.Version:
		fmt.Fprintf(stdio.Stdout, "%s %s %s\n", binName, c.BuildVersion, c.BuildDate)
		return mainer.Success
	}

	ctx := mainer.CancelOnSignal(context.Background(), os.Interrupt)
	if err := c.cmdFn(ctx, stdio, c.args[1:]); err != nil {
		// each command takes care of printing its own errors, just return a code
		return mainer.Failure
	}
	return mainer.Success
}

// buildCmds mirrors the teacher's reflection-based command table: any
// method matching the (ctx, stdio, []string) -> error shape is registered
// under its lowercased name.
func buildCmds(v interface{}) map[string]func(context.Context, mainer.Stdio, []string) error {
	cmds := make(map[string]func(context.Context, mainer.Stdio, []string) error)

	vv := reflect.ValueOf(v)
	vt := vv.Type()
	for i := 0; i < vt.NumMethod(); i++ {
		m := vt.Method(i)
		mt := m.Type

		if mt.NumIn() != 4 || mt.NumOut() != 1 {
			continue
		}
		if rt := mt.Out(0); rt.Kind() != reflect.Interface || rt.Name() != "error" {
			continue
		}
		if p0 := mt.In(0); p0.Kind() != reflect.Ptr || p0.Elem().Name() != "Cmd" {
			continue
		}
		if p1 := mt.In(1); p1.Kind() != reflect.Interface || p1.Name() != "Context" {
			continue
		}
		if p2 := mt.In(2); p2.Kind() != reflect.Struct || p2.Name() != "Stdio" {
			continue
		}
		if p3 := mt.In(3); p3.Kind() != reflect.Slice || p3.Elem().Name() != "string" {
			continue
		}
		cmds[strings.ToLower(m.Name)] = vv.Method(i).Interface().(func(context.Context, mainer.Stdio, []string) error)
	}
	return cmds
}
