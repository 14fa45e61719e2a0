package trap

import (
	"fmt"
	"io"
	"strings"

	"nucleus/internal/arch"
	"nucleus/internal/irq"
	"nucleus/internal/symtab"
)

// Memory validates and reads simulated addresses for the stack walkers.
// Both walkers check Valid before every Load; an unmapped address ends
// the walk instead of faulting inside the fault path.
type Memory interface {
	Valid(addr uint64, size int) bool
	Load(addr uint64) uint64
}

const (
	frameTraceDepth = 16
	stackTraceDepth = 128

	// stackTop bounds the raw stack scan; kernel stacks live below it.
	stackTop = 0xffff000000020000
)

// FrameTrace walks the frame pointer chain rooted at fp, writing one
// resolved return address per line. The walk ends at a frame pointer
// below the first page, an unmapped frame record, a zero return
// address, or frameTraceDepth frames, whichever comes first.
func FrameTrace(w io.Writer, mem Memory, syms *symtab.Table, fp uint64) {
	for frame := 0; frame < frameTraceDepth; frame++ {
		if fp < 4096 {
			break
		}
		if mem == nil || !mem.Valid(fp, 8) || !mem.Valid(fp+8, 8) {
			break
		}
		ret := mem.Load(fp + 8)
		if ret == 0 {
			break
		}
		fp = mem.Load(fp)
		fmt.Fprintf(w, "%s\n", syms.Format(ret))
	}
}

// StackTrace dumps raw words from sp toward the stack top, resolving
// each word against the symbol table. The scan ends at the first
// unmapped word, the stack top, or stackTraceDepth words.
func StackTrace(w io.Writer, mem Memory, syms *symtab.Table, sp uint64) {
	fmt.Fprint(w, "\nstack trace:\n")
	x := sp
	for i := 0; i < stackTraceDepth && x < stackTop; i++ {
		if mem == nil || !mem.Valid(x, 8) {
			break
		}
		fmt.Fprintf(w, "0x%016x:   %s\n", x, syms.Format(mem.Load(x)))
		x += 8
	}
	fmt.Fprint(w, "\n")
}

// FrameReport renders the frame listing for f: vector with handler
// names, status and syndrome words with the decoded cause, fault
// address when the syndrome latched one, return address, and all
// register slots resolved against the symbol table.
func (d *Dispatcher) FrameReport(f *arch.Frame) string {
	var b strings.Builder
	d.writeFrame(&b, f)
	return b.String()
}

// StackReport renders the raw stack scan from f's stack pointer.
func (d *Dispatcher) StackReport(f *arch.Frame) string {
	var b strings.Builder
	d.writeStack(&b, f)
	return b.String()
}

func (d *Dispatcher) writeFrame(b *strings.Builder, f *arch.Frame) {
	v := f.Vector
	fmt.Fprintf(b, " interrupt: %d", v)
	if v < irq.VectorBase && d.table != nil {
		for _, name := range d.table.HandlerNames(v) {
			fmt.Fprintf(b, " (%s)", name)
		}
	}
	fmt.Fprintf(b, "\n     frame: %p", f)
	fmt.Fprintf(b, "\n      spsr: 0x%x", f.SPSR())

	esr := f.ESR()
	cause := arch.DecodeESR(esr)
	fmt.Fprintf(b, "\n       esr: 0x%x%s", esr, cause.Describe())
	if cause.IsAbort() && cause.FaultAddressValid() {
		fmt.Fprintf(b, "\n       far: %s", d.syms.Format(d.cpu.FAR))
	}
	fmt.Fprintf(b, "\n       elr: %s", d.syms.Format(f.ELR))
	b.WriteString("\n\n")

	for j := 0; j < arch.NumGPRegs; j++ {
		fmt.Fprintf(b, "      %s: %s\n", arch.RegName(j), d.syms.Format(f.Reg(j)))
	}
}

func (d *Dispatcher) writeStack(b *strings.Builder, f *arch.Frame) {
	StackTrace(b, d.mem, d.syms, f.SP)
}
