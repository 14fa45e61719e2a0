// Package machine assembles the simulated kernel from a configuration:
// cores, interrupt controller, vector table, clock, timer group, and
// the per-core dispatchers, with the timer interrupt wired to its
// architectural line. The machine is also the injection surface the
// scenario runner and CLI drive events through.
package machine

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"nucleus/internal/arch"
	"nucleus/internal/clock"
	"nucleus/internal/config"
	"nucleus/internal/cpu"
	"nucleus/internal/hw"
	"nucleus/internal/irq"
	"nucleus/internal/klog"
	"nucleus/internal/symtab"
	"nucleus/internal/timer"
	"nucleus/internal/trap"
)

// VirtualTimerVector is the architectural line the timer interrupt
// arrives on, level triggered at top priority.
const VirtualTimerVector = 27

// SyscallRecord is one syscall trap delivered to the default entry
// point.
type SyscallRecord struct {
	Core   int
	Number uint64
}

// Machine is an assembled simulated kernel.
type Machine struct {
	CPUs   *cpu.Set
	GIC    *hw.GIC
	Table  *irq.Table
	Clock  *clock.Clock
	Timers *timer.Group
	Mem    *hw.Memory
	Syms   *symtab.Table

	// Counter is the manual counter of a deterministic machine, nil
	// when the clock runs on probed hardware.
	Counter *hw.ManualCounter

	irqDisp  []*irq.Dispatcher
	trapDisp []*trap.Dispatcher

	syscalls []SyscallRecord
	runLoops []int
	resumed  []*arch.Frame

	log *zap.SugaredLogger
}

// New assembles a machine from cfg. Unhandled fault diagnostics go to
// out; nil means stderr.
func New(cfg *config.Config, out io.Writer) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("machine config: %w", err)
	}

	m := &Machine{
		CPUs: cpu.NewSet(cfg.Machine.Cores),
		GIC:  hw.NewGIC(),
		Mem:  hw.NewMemory(),
		Syms: &symtab.Table{},
		log:  klog.Get(klog.CategoryBoot),
	}
	m.Table = irq.NewTable(m.GIC)

	var rtc clock.RTC = hw.NullRTC{}
	if cfg.Clock.RTCEpoch != 0 {
		rtc = hw.NewSimRTC(cfg.Clock.RTCEpoch)
	}
	m.Clock = clock.New(rtc)

	var (
		src     clock.CounterSource
		id      clock.SourceID
		precise bool
	)
	if cfg.Clock.Deterministic {
		// The manual counter counts as precise: deterministic runs
		// calibrate against it.
		m.Counter = &hw.ManualCounter{}
		src, id, precise = m.Counter, clock.SourceSyscall, true
	} else {
		src, id, precise = hw.Probe(hw.Caps{
			TSCStable: cfg.Clock.TSCStable,
			PVClock:   cfg.Clock.PVClock,
			HPET:      cfg.Clock.HPET,
		})
	}
	m.Clock.RegisterSource(src, id, precise)

	m.Timers = timer.NewGroup(m.Clock)
	m.Timers.Bind()

	n := cfg.Machine.Cores
	m.irqDisp = make([]*irq.Dispatcher, n)
	m.trapDisp = make([]*trap.Dispatcher, n)
	m.runLoops = make([]int, n)
	m.resumed = make([]*arch.Frame, n)
	for i := 0; i < n; i++ {
		c := m.CPUs.FromID(i)
		m.irqDisp[i] = irq.NewDispatcher(c, m.Table)
		m.trapDisp[i] = trap.NewDispatcher(c, m.Table, m.Mem, m.Syms, out)
		m.installHooks(c)
	}

	m.wireTimerInterrupt()

	m.log.Infow("machine assembled", "cores", n,
		"source", id.String(), "precise", precise,
		"rtc", cfg.Clock.RTCEpoch != 0)
	return m, nil
}

// installHooks gives core c the default run loop, resume, and syscall
// entry points. The defaults record what reached them so runs can be
// inspected afterwards.
func (m *Machine) installHooks(c *cpu.Context) {
	id := c.ID
	c.RunLoop = func() {
		m.runLoops[id]++
		c.State = cpu.StateIdle
	}
	c.Resume = func(f *arch.Frame) {
		m.resumed[id] = f
		c.RunningFrame = f
		c.State = cpu.StateKernel
	}
	c.SyscallEntry = func(f *arch.Frame) {
		m.syscalls = append(m.syscalls, SyscallRecord{Core: id, Number: f.Vector})
		m.log.Debugw("syscall", "cpu", id, "number", f.Vector)
	}
}

// wireTimerInterrupt programs the virtual timer line and registers the
// service handler: level triggered, top priority, routed to core 0.
// The handler services the timer group and drops the line.
func (m *Machine) wireTimerInterrupt() {
	m.GIC.SetTriggerMode(VirtualTimerVector, irq.TriggerLevel)
	m.GIC.SetTarget(VirtualTimerVector, 1)
	m.Table.Register(VirtualTimerVector, irq.HandlerFunc(func() {
		m.Timers.Service()
		m.GIC.Lower(VirtualTimerVector)
	}), "virtual timer")
}

// Advance moves a deterministic machine's counter forward and raises
// the timer line when the soonest timer has come due, the way the
// hardware comparator would. On a probed-hardware machine it is a
// no-op.
func (m *Machine) Advance(d clock.Timestamp) {
	if m.Counter == nil {
		return
	}
	m.Counter.Advance(d)
	if next, ok := m.Timers.Next(); ok && next <= m.Clock.Now(clock.Monotonic) {
		m.GIC.Raise(VirtualTimerVector)
	}
}

// DeliverSync injects a synchronous exception on core: f becomes the
// core's running frame, marked full the way exception entry leaves it,
// and the trap dispatcher runs.
func (m *Machine) DeliverSync(core int, f *arch.Frame) {
	c := m.CPUs.FromID(core)
	f.Full = true
	c.RunningFrame = f
	m.trapDisp[core].Synchronous()
}

// DeliverIRQ runs core's interrupt drain against whatever frame the
// core currently holds.
func (m *Machine) DeliverIRQ(core int) {
	c := m.CPUs.FromID(core)
	c.RunningFrame.Full = true
	m.irqDisp[core].IRQ()
}

// TrapDispatcher returns core's trap dispatcher, for diagnostics.
func (m *Machine) TrapDispatcher(core int) *trap.Dispatcher {
	return m.trapDisp[core]
}

// Syscalls returns every syscall the default entry point recorded.
func (m *Machine) Syscalls() []SyscallRecord { return m.syscalls }

// RunLoopEntries returns how many times core's dispatch handed back to
// the run loop.
func (m *Machine) RunLoopEntries(core int) int { return m.runLoops[core] }

// Resumed returns the frame core last resumed to, nil if none.
func (m *Machine) Resumed(core int) *arch.Frame { return m.resumed[core] }

// CatchHalt runs fn, turning a dispatch halt into a returned
// *cpu.HaltError. Other panics propagate.
func CatchHalt(fn func()) (halt *cpu.HaltError) {
	defer func() {
		if r := recover(); r != nil {
			he, ok := r.(*cpu.HaltError)
			if !ok {
				panic(r)
			}
			halt = he
		}
	}()
	fn()
	return nil
}
