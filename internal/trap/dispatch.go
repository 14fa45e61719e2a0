// Package trap owns synchronous exception dispatch: classifying the
// syndrome of a trapped frame, routing syscalls and faults, and
// producing the register and stack diagnostics printed when nothing can
// handle a fault.
package trap

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"nucleus/internal/arch"
	"nucleus/internal/cpu"
	"nucleus/internal/irq"
	"nucleus/internal/klog"
	"nucleus/internal/symtab"
)

// Dispatcher handles the synchronous, SError and invalid entry points
// of one core.
type Dispatcher struct {
	cpu   *cpu.Context
	table *irq.Table
	mem   Memory
	syms  *symtab.Table
	out   io.Writer
	log   *zap.SugaredLogger
}

// NewDispatcher binds a trap dispatcher to core c. table supplies
// handler names for fault reports, mem and syms feed the stack walkers,
// and out receives unhandled fault diagnostics. A nil out writes to
// stderr.
func NewDispatcher(c *cpu.Context, table *irq.Table, mem Memory, syms *symtab.Table, out io.Writer) *Dispatcher {
	if out == nil {
		out = os.Stderr
	}
	return &Dispatcher{
		cpu:   c,
		table: table,
		mem:   mem,
		syms:  syms,
		out:   out,
		log:   klog.Get(klog.CategoryTrap),
	}
}

// Synchronous is the synchronous exception entry point. Syscall traps
// move the syscall number into the frame's vector slot, switch the core
// onto its kernel frame and transfer to the syscall entry; the entry
// point owns the core from there. Everything else is a fault, offered
// to the frame's fault handler. A handled fault either resumes a frame
// directly or falls to the run loop; an unhandled fault prints the full
// frame and stack diagnostic and halts the core.
func (d *Dispatcher) Synchronous() {
	ci := d.cpu
	f := ci.RunningFrame
	esr := f.ESR()
	cause := arch.DecodeESR(esr)

	d.log.Debugw("caught exception", "cpu", ci.ID, "el", f.EL,
		"esr", fmt.Sprintf("%#x", esr))

	if cause.IsSyscall() {
		f.Vector = f.X[8]
		ci.RunningFrame = ci.KernelFrame()
		if ci.SyscallEntry == nil {
			ci.Halt("syscall trap with no entry point installed")
		}
		ci.SyscallEntry(f)
		return
	}

	// The run state is left untouched on the fault path.
	if fh := f.FaultHandler; fh != nil {
		if ret := fh(f); ret != nil {
			ci.Resume(ret)
			return
		}
		if ci.IsCurrentKernelContext(f) {
			f.Full = false
		}
		ci.RunLoop()
		return
	}

	var b strings.Builder
	b.WriteString("\nno fault handler for frame")
	d.writeFrame(&b, f)
	d.writeStack(&b, f)
	fmt.Fprint(d.out, b.String())
	ci.Halt("no fault handler for frame, esr %#x%s", esr, cause.Describe())
}

// SError is the system error entry point. Nothing recovers an SError.
func (d *Dispatcher) SError() {
	d.cpu.Halt("serror exception")
}

// Invalid is the entry point for exception vector slots no legal event
// reaches.
func (d *Dispatcher) Invalid() {
	d.cpu.Halt("invalid exception entry")
}
