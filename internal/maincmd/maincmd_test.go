package maincmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/mna/mainer"
	"github.com/stretchr/testify/require"
)

const addTwoSrc = `
function: add-two 3 2 2 2
	code:
		add r2 r0 r1
		return r2
`

const sevenSrc = `
function: seven 3 0 0 0
	code:
		load-integer r0 3
		load-integer r1 4
		add r2 r0 r1
		return r2
`

func writeSrc(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "prog.sasm")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))
	return path
}

func TestAssembleFile(t *testing.T) {
	path := writeSrc(t, addTwoSrc)
	var out, errOut bytes.Buffer
	stdio := mainer.Stdio{Stdout: &out, Stderr: &errOut}

	err := AssembleFile(stdio, path, "")
	require.NoError(t, err)
	require.Contains(t, out.String(), "add-two")
	require.Contains(t, out.String(), "2 instructions")
	require.Empty(t, errOut.String())
}

func TestAssembleFileError(t *testing.T) {
	path := writeSrc(t, "function: bad 1 0 0 0\n\tcode:\n\t\tfrobnicate r0\n")
	var out, errOut bytes.Buffer
	stdio := mainer.Stdio{Stdout: &out, Stderr: &errOut}

	err := AssembleFile(stdio, path, "")
	require.Error(t, err)
	require.NotEmpty(t, errOut.String())
}

func TestRunFile(t *testing.T) {
	path := writeSrc(t, sevenSrc)
	var out, errOut bytes.Buffer
	stdio := mainer.Stdio{Stdout: &out, Stderr: &errOut}

	err := RunFile(stdio, path, false, "")
	require.NoError(t, err)
	require.Contains(t, out.String(), "ok:")
}

func TestDisasmFile(t *testing.T) {
	path := writeSrc(t, addTwoSrc)
	var out, errOut bytes.Buffer
	stdio := mainer.Stdio{Stdout: &out, Stderr: &errOut}

	err := DisasmFile(stdio, path, "")
	require.NoError(t, err)
	require.Contains(t, out.String(), "function: add-two 3 2 2 2")
	require.Contains(t, out.String(), "add r2 r0 r1")
	require.Contains(t, out.String(), "return r2")
	require.Empty(t, errOut.String())
}

func TestCmdValidate(t *testing.T) {
	c := &Cmd{}
	c.SetArgs([]string{"run", "prog.sasm"})
	require.NoError(t, c.Validate())

	c2 := &Cmd{}
	c2.SetArgs([]string{"run"})
	require.Error(t, c2.Validate(), "run requires exactly one file argument")

	c3 := &Cmd{}
	c3.SetArgs([]string{"assemble", "prog.sasm"})
	c3.SetFlags(map[string]bool{"trace": true})
	require.Error(t, c3.Validate(), "--trace is only valid for the run command")

	c4 := &Cmd{}
	c4.SetArgs([]string{"frobnicate", "prog.sasm"})
	require.Error(t, c4.Validate(), "unknown command")
}
