package machine

import (
	"strconv"
	"strings"

	"github.com/davecgh/go-spew/spew"
)

// dumpConfig mirrors the teacher's debug-print conventions: method calls
// disabled (Value.String already gives a readable form, and calling it from
// inside a dump while a collection is in progress would be unsafe), pointer
// addresses shown so aliasing between registers/slots is visible, max depth
// unlimited since frames/environments are typically shallow.
var dumpConfig = &spew.ConfigState{
	Indent:                  "  ",
	DisableMethods:          true,
	DisablePointerAddresses: false,
	DisableCapacities:       true,
	SortKeys:                true,
}

// Dump renders v as a deeply nested, human-readable tree, used by the `run`
// CLI command to print its result value (§6 ADD — the debug
// pretty-printer named among the host embedding API's surface).
func Dump(v Value) string {
	return dumpConfig.Sdump(v)
}

// DumpFiber renders a fiber's live state (status, frames, stack window) for
// the `run --trace` CLI command, deliberately narrower than a full spew.Dump of the
// Fiber struct: it walks only the slots a frame can actually see
// ([base, base+SlotCount)), skipping the unused tail of the backing array
// that Dump(fiber) would otherwise print as noise.
func DumpFiber(f *Fiber) string {
	var b strings.Builder
	b.WriteString("fiber ")
	b.WriteString(f.status.String())
	b.WriteByte('\n')
	for i := range f.frames {
		fr := &f.frames[i]
		b.WriteString("  frame ")
		if fr.native != nil {
			b.WriteString(fr.native.Name)
			b.WriteString(" (native)\n")
			continue
		}
		if fr.def != nil && fr.def.Name != "" {
			b.WriteString(fr.def.Name)
		} else {
			b.WriteString("<anonymous>")
		}
		if fr.isTail() {
			b.WriteString(" [tail]")
		}
		if fr.isEntrance() {
			b.WriteString(" [entrance]")
		}
		b.WriteByte('\n')
		if fr.def == nil {
			continue
		}
		end := fr.base + fr.def.SlotCount
		if end > len(f.values) {
			end = len(f.values)
		}
		for slot := fr.base; slot < end; slot++ {
			b.WriteString("    r")
			b.WriteString(strconv.Itoa(slot - fr.base))
			b.WriteString(" = ")
			if f.values[slot] == nil {
				b.WriteString("<unset>")
			} else {
				b.WriteString(f.values[slot].String())
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}
