// Package hw provides the simulated device surfaces the kernel layers
// are wired to: an interrupt controller with distributor semantics,
// counter sources, RTC variants, and a validating memory for the
// diagnostic walkers. Everything here is deterministic so scenarios and
// tests can script exact hardware behavior.
package hw

import (
	"sync"

	"nucleus/internal/irq"
)

// Lines is the number of interrupt lines the controller models.
const Lines = irq.MaxVectors

type line struct {
	enabled  bool
	pending  bool
	active   bool
	asserted bool
	priority uint8
	mode     irq.TriggerMode
	target   uint32
}

// LineState is a snapshot of one controller line.
type LineState struct {
	Enabled  bool
	Pending  bool
	Active   bool
	Asserted bool
	Priority uint8
	Mode     irq.TriggerMode
	Target   uint32
}

// GIC simulates an interrupt controller: a device side that raises and
// lowers lines, and a CPU side that acknowledges and completes them.
// Edge lines latch pending on each raise; level lines track assertion,
// so a line still asserted at end-of-interrupt pends again. All methods
// are safe for concurrent use.
type GIC struct {
	mu    sync.Mutex
	lines [Lines]line
}

// NewGIC returns a controller with every line disabled, edge
// triggered, and at the lowest priority.
func NewGIC() *GIC {
	g := &GIC{}
	for i := range g.lines {
		g.lines[i].priority = 0xff
	}
	return g
}

// Raise asserts line v from the device side.
func (g *GIC) Raise(v uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if v >= Lines {
		return
	}
	l := &g.lines[v]
	l.asserted = true
	l.pending = true
}

// Lower deasserts line v. A level line that was never acknowledged
// stops pending; an edge line stays latched.
func (g *GIC) Lower(v uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if v >= Lines {
		return
	}
	l := &g.lines[v]
	l.asserted = false
	if l.mode == irq.TriggerLevel && !l.active {
		l.pending = false
	}
}

// Pending acknowledges the highest priority pending enabled line:
// lowest priority value wins, ties go to the lowest line number. The
// acknowledged line moves from pending to active. Returns
// irq.NoPending when nothing is waiting.
func (g *GIC) Pending() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	best := uint64(irq.NoPending)
	var bestPri uint8
	for v := uint64(0); v < Lines; v++ {
		l := &g.lines[v]
		if !l.enabled || !l.pending {
			continue
		}
		if best == irq.NoPending || l.priority < bestPri {
			best = v
			bestPri = l.priority
		}
	}
	if best != irq.NoPending {
		l := &g.lines[best]
		l.pending = false
		l.active = true
	}
	return best
}

// EOI completes the active acknowledgement on v. A level line still
// asserted by its device pends again immediately.
func (g *GIC) EOI(v uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if v >= Lines {
		return
	}
	l := &g.lines[v]
	if !l.active {
		return
	}
	l.active = false
	if l.mode == irq.TriggerLevel && l.asserted {
		l.pending = true
	}
}

// Enable opens line v for delivery. An asserted level line pends as
// soon as it is enabled.
func (g *GIC) Enable(v uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if v >= Lines {
		return
	}
	l := &g.lines[v]
	l.enabled = true
	if l.mode == irq.TriggerLevel && l.asserted {
		l.pending = true
	}
}

// Disable closes line v for delivery. Latched pending state survives
// and delivers when the line is enabled again.
func (g *GIC) Disable(v uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if v >= Lines {
		return
	}
	g.lines[v].enabled = false
}

// SetPriority programs the dispatch priority; lower values dispatch
// first.
func (g *GIC) SetPriority(v uint64, pri uint8) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if v >= Lines {
		return
	}
	g.lines[v].priority = pri
}

// SetTriggerMode selects edge or level latching for v.
func (g *GIC) SetTriggerMode(v uint64, m irq.TriggerMode) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if v >= Lines {
		return
	}
	g.lines[v].mode = m
}

// SetTarget routes v to the given core set.
func (g *GIC) SetTarget(v uint64, cores uint32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if v >= Lines {
		return
	}
	g.lines[v].target = cores
}

// ClearPending drops any latched pending state on v without
// dispatching. A still asserted level line pends again on the next
// raise, enable, or end-of-interrupt.
func (g *GIC) ClearPending(v uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if v >= Lines {
		return
	}
	g.lines[v].pending = false
}

// State returns a snapshot of line v.
func (g *GIC) State(v uint64) (LineState, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if v >= Lines {
		return LineState{}, false
	}
	l := g.lines[v]
	return LineState{
		Enabled:  l.enabled,
		Pending:  l.pending,
		Active:   l.active,
		Asserted: l.asserted,
		Priority: l.priority,
		Mode:     l.mode,
		Target:   l.target,
	}, true
}
