package irq

import (
	"go.uber.org/zap"

	"nucleus/internal/cpu"
	"nucleus/internal/klog"
)

// Dispatcher drains a core's pending interrupts. One exists per core,
// bound to that core's context and the shared table.
type Dispatcher struct {
	cpu   *cpu.Context
	table *Table
	log   *zap.SugaredLogger
}

// NewDispatcher binds a drain loop to core c and table t.
func NewDispatcher(c *cpu.Context, t *Table) *Dispatcher {
	return &Dispatcher{cpu: c, table: t, log: klog.Get(klog.CategoryIRQ)}
}

// IRQ is the interrupt entry point. It drains the controller until no
// vector is pending, re-querying after every vector so interrupts
// raised by handlers are picked up in the same pass. Every handler on a
// vector runs before its end of interrupt. Draining an unregistered or
// out of range vector halts the core. When the drain is over, the
// kernel frame is released if it was the interrupted context, and the
// core is handed to the run loop.
func (d *Dispatcher) IRQ() {
	ci := d.cpu
	f := ci.RunningFrame

	d.log.Debugw("irq entry", "cpu", ci.ID)

	for i := d.table.ctrl.Pending(); i != NoPending; i = d.table.ctrl.Pending() {
		d.log.Debugw("dispatch", "cpu", ci.ID, "vector", i,
			"state", ci.State.String(), "el", f.EL, "elr", f.ELR)

		if i >= MaxVectors {
			ci.Halt("dispatched interrupt %d exceeds max supported vectors", i)
		}
		if len(d.table.handlers[i]) == 0 {
			ci.Halt("no handler for interrupt %d", i)
		}

		for _, e := range d.table.handlers[i] {
			d.log.Debugw("invoke handler", "vector", i, "name", e.name)
			ci.State = cpu.StateInterrupt
			e.h.Invoke()
		}

		d.log.Debugw("eoi", "vector", i)
		d.table.ctrl.EOI(i)
	}

	if ci.IsCurrentKernelContext(f) {
		f.Full = false
	}
	d.log.Debugw("drain complete, entering run loop", "cpu", ci.ID)
	ci.RunLoop()
}
