// Package arch defines the saved machine state of a trapped core and the
// decoding of the aarch64 exception syndrome word. It sits at the bottom
// of the kernel model: everything above (cpu, irq, trap) depends on it
// and it depends on nothing.
package arch

import "fmt"

// NumGPRegs is the number of general purpose slots in a trap frame:
// x0..x30 plus sp.
const NumGPRegs = 32

// regNames are the display names for frame register slots, padded so a
// register listing lines up in columns.
var regNames = [NumGPRegs]string{
	"  x0", "  x1", "  x2", "  x3", "  x4", "  x5", "  x6", "  x7",
	"  x8", "  x9", " x10", " x11", " x12", " x13", " x14", " x15",
	" x16", " x17", " x18", " x19", " x20", " x21", " x22", " x23",
	" x24", " x25", " x26", " x27", " x28", " x29", " x30", "  sp",
}

// RegName returns the padded display name of register slot i.
func RegName(i int) string {
	if i < 0 || i >= NumGPRegs {
		return fmt.Sprintf("x%d?", i)
	}
	return regNames[i]
}

// FaultHandler inspects a faulted frame and either returns a frame to
// resume directly or nil to hand control back to the scheduler.
type FaultHandler func(*Frame) *Frame

// Frame is the register state saved when a core takes an exception or
// interrupt, plus the metadata the dispatch layer tracks alongside it.
type Frame struct {
	X  [31]uint64 // x0..x30
	SP uint64

	// ELR is the exception link register: the address to return to.
	ELR uint64

	// EsrSpsr packs the exception syndrome in the high 32 bits and the
	// saved program status in the low 32.
	EsrSpsr uint64

	// EL is the exception level the trap was taken from.
	EL uint64

	// Vector is the trapped vector number; the syscall path overwrites
	// it with the syscall number from x8.
	Vector uint64

	// Full marks the frame as holding live state that must not be
	// reused until the owner drops it.
	Full bool

	// FaultHandler receives synchronous faults taken while this frame
	// was running. Nil routes the fault to the unhandled path.
	FaultHandler FaultHandler
}

// ESR returns the exception syndrome half of EsrSpsr.
func (f *Frame) ESR() uint32 { return uint32(f.EsrSpsr >> 32) }

// SPSR returns the saved program status half of EsrSpsr.
func (f *Frame) SPSR() uint32 { return uint32(f.EsrSpsr) }

// SetSyndrome stores esr and spsr into the packed EsrSpsr slot.
func (f *Frame) SetSyndrome(esr, spsr uint32) {
	f.EsrSpsr = uint64(esr)<<32 | uint64(spsr)
}

// Reg returns general purpose slot i, where slots 0..30 are x0..x30 and
// slot 31 is sp. It panics on out of range i.
func (f *Frame) Reg(i int) uint64 {
	if i == NumGPRegs-1 {
		return f.SP
	}
	return f.X[i]
}
