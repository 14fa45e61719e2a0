package scenario

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"nucleus/internal/arch"
	"nucleus/internal/clock"
	"nucleus/internal/config"
	"nucleus/internal/irq"
	"nucleus/internal/klog"
	"nucleus/internal/machine"
)

// Result records one scenario run.
type Result struct {
	Name       string
	RunID      string
	Passed     bool
	FailedStep int    // 1-based, 0 when the run passed
	Err        string
	Diagnostic string // fault reports emitted by the machine during the run
	DurationMs int64
}

// Runner executes suites, one fresh machine per scenario.
type Runner struct {
	log *zap.SugaredLogger
}

func NewRunner() *Runner {
	return &Runner{log: klog.Get(klog.CategoryScenario)}
}

// RunSuite runs every scenario in s, at most parallel at a time, and
// returns results in suite order. Scenarios not started before ctx is
// done are reported as failed without running.
func (r *Runner) RunSuite(ctx context.Context, s *Suite, parallel int) []Result {
	if parallel < 1 {
		parallel = 1
	}
	results := make([]Result, len(s.Scenarios))
	g := new(errgroup.Group)
	g.SetLimit(parallel)
	for i, sc := range s.Scenarios {
		i, sc := i, sc
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = Result{Name: sc.Name, Err: err.Error()}
				return nil
			}
			results[i] = r.RunScenario(sc)
			return nil
		})
	}
	g.Wait()
	return results
}

// RunScenario runs one scenario to completion or first failing step.
func (r *Runner) RunScenario(sc Scenario) Result {
	start := time.Now()
	res := Result{Name: sc.Name, RunID: uuid.NewString()}

	st, err := newRunState(sc)
	if err != nil {
		res.Err = err.Error()
		res.DurationMs = time.Since(start).Milliseconds()
		return res
	}

	for i, step := range sc.Steps {
		if err := st.runStep(step); err != nil {
			res.FailedStep = i + 1
			res.Err = fmt.Sprintf("step %d: %s", i+1, err)
			break
		}
	}
	res.Passed = res.Err == ""
	res.Diagnostic = st.buf.String()
	res.DurationMs = time.Since(start).Milliseconds()

	r.log.Infow("scenario finished",
		"name", sc.Name,
		"run_id", res.RunID,
		"passed", res.Passed,
		"steps", len(sc.Steps),
		"duration_ms", res.DurationMs)
	return res
}

// Passed reports whether every result in rs passed.
func Passed(rs []Result) bool {
	for _, r := range rs {
		if !r.Passed {
			return false
		}
	}
	return true
}

// runState is the per-run mutable state: the machine under test and the
// firing counters named handlers report into.
type runState struct {
	m     *machine.Machine
	buf   *bytes.Buffer
	fired map[string]int
}

func newRunState(sc Scenario) (*runState, error) {
	cfg := config.Default()
	cfg.Clock.Deterministic = true
	if sc.Machine.Cores > 0 {
		cfg.Machine.Cores = sc.Machine.Cores
	}
	cfg.Clock.RTCEpoch = sc.Machine.RTCEpoch

	buf := new(bytes.Buffer)
	m, err := machine.New(cfg, buf)
	if err != nil {
		return nil, fmt.Errorf("scenario %q: %w", sc.Name, err)
	}
	return &runState{m: m, buf: buf, fired: make(map[string]int)}, nil
}

// runStep applies one step, translating halts into step failures unless
// the step expects one.
func (s *runState) runStep(st Step) error {
	if n := st.opCount(); n != 1 {
		return fmt.Errorf("step must set exactly one operation, has %d", n)
	}

	var opErr error
	halt := machine.CatchHalt(func() { opErr = s.apply(st) })
	if halt != nil {
		if st.ExpectHalt == "" {
			return fmt.Errorf("unexpected halt: %s", halt.Reason)
		}
		if !strings.Contains(halt.Reason, st.ExpectHalt) {
			return fmt.Errorf("halt reason %q does not contain %q", halt.Reason, st.ExpectHalt)
		}
		return nil
	}
	if st.ExpectHalt != "" {
		return fmt.Errorf("expected halt containing %q, none happened", st.ExpectHalt)
	}
	return opErr
}

func (s *runState) apply(st Step) error {
	switch {
	case st.Register != nil:
		name := st.Register.Name
		s.m.Table.Register(st.Register.Vector, irq.HandlerFunc(func() {
			s.fired[name]++
		}), name)
		return nil

	case st.Unregister != nil:
		s.m.Table.Unregister(*st.Unregister)
		return nil

	case st.Raise != nil:
		s.m.GIC.Raise(*st.Raise)
		return nil

	case st.Lower != nil:
		s.m.GIC.Lower(*st.Lower)
		return nil

	case st.Fire != nil:
		s.m.GIC.Raise(*st.Fire)
		s.m.DeliverIRQ(0)
		return nil

	case st.IRQ != nil:
		if err := s.checkCore(st.IRQ.Core); err != nil {
			return err
		}
		s.m.DeliverIRQ(st.IRQ.Core)
		return nil

	case st.Advance != nil:
		s.m.Advance(clock.Seconds(st.Advance.Seconds) + clock.Milliseconds(st.Advance.Millis))
		return nil

	case st.Adjust != nil:
		s.m.Clock.Adjust(
			clock.Seconds(st.Adjust.WallclockSeconds),
			ppmToCal(st.Adjust.TempCalPPM),
			clock.Seconds(st.Adjust.SyncSeconds),
			ppmToCal(st.Adjust.CalPPM))
		return nil

	case st.ResetRTC != nil:
		s.m.Clock.ResetRTC(clock.Seconds(st.ResetRTC.WallclockSeconds))
		return nil

	case st.Syscall != nil:
		if err := s.checkCore(st.Syscall.Core); err != nil {
			return err
		}
		f := &arch.Frame{}
		f.SetSyndrome(arch.ECSVC64<<26|1<<25, 0)
		f.X[8] = st.Syscall.Number
		s.m.DeliverSync(st.Syscall.Core, f)
		return nil

	case st.Fault != nil:
		return s.applyFault(st.Fault)

	case st.Timer != nil:
		return s.applyTimer(st.Timer)

	case st.ServiceTimers:
		s.m.Timers.Service()
		return nil

	case st.InstallFallback != nil:
		name := *st.InstallFallback
		if name == "" {
			name = "fallback"
		}
		s.m.CPUs.InstallFallbackFaultHandler(func(*arch.Frame) *arch.Frame {
			s.fired[name]++
			return nil
		})
		return nil

	case st.Expect != nil:
		return s.applyExpect(st.Expect)
	}
	return fmt.Errorf("empty step")
}

func (s *runState) applyFault(f *FaultStep) error {
	if err := s.checkCore(f.Core); err != nil {
		return err
	}
	esr := f.ESR
	if f.Class != "" {
		var err error
		esr, err = faultESR(f)
		if err != nil {
			return err
		}
	} else if esr == 0 {
		return fmt.Errorf("fault needs a class or a raw esr")
	}
	c := s.m.CPUs.FromID(f.Core)
	frame := &arch.Frame{}
	if f.KernelFrame {
		frame = c.KernelFrame()
	}
	frame.SetSyndrome(esr, 0)
	frame.ELR = f.ELR
	for i, v := range f.Regs {
		if i < 0 || i >= len(frame.X) {
			return fmt.Errorf("register x%d out of range", i)
		}
		frame.X[i] = v
	}
	if f.Handled {
		name := f.Name
		if name == "" {
			name = "fault"
		}
		frame.FaultHandler = func(*arch.Frame) *arch.Frame {
			s.fired[name]++
			return nil
		}
	}
	c.FAR = f.FAR
	s.m.DeliverSync(f.Core, frame)
	return nil
}

func (s *runState) applyTimer(t *TimerStep) error {
	idName := t.Clock
	if idName == "" {
		idName = "monotonic"
	}
	id, err := clock.ParseID(idName)
	if err != nil {
		return err
	}
	name := t.Name
	s.m.Timers.Register(id, clock.Seconds(t.Seconds), false, clock.Seconds(t.IntervalSeconds),
		func(overruns uint64) {
			s.fired[name] += 1 + int(overruns)
		})
	return nil
}

func (s *runState) applyExpect(e *ExpectStep) error {
	for name, want := range e.Fired {
		if got := s.fired[name]; got != want {
			return fmt.Errorf("fired[%s] = %d, want %d", name, got, want)
		}
	}
	if e.Syscalls != nil {
		if got := len(s.m.Syscalls()); got != *e.Syscalls {
			return fmt.Errorf("syscalls = %d, want %d", got, *e.Syscalls)
		}
	}
	if e.RunLoops != nil {
		if err := s.checkCore(e.RunLoops.Core); err != nil {
			return err
		}
		if got := s.m.RunLoopEntries(e.RunLoops.Core); got != e.RunLoops.Count {
			return fmt.Errorf("run loop entries on cpu %d = %d, want %d", e.RunLoops.Core, got, e.RunLoops.Count)
		}
	}
	if e.State != nil {
		if err := s.checkCore(e.State.Core); err != nil {
			return err
		}
		if got := s.m.CPUs.FromID(e.State.Core).State.String(); got != e.State.State {
			return fmt.Errorf("cpu %d state = %s, want %s", e.State.Core, got, e.State.State)
		}
	}
	if e.Pending != nil {
		// State is a snapshot; Pending() would acknowledge the line.
		ls, ok := s.m.GIC.State(e.Pending.Vector)
		if !ok {
			return fmt.Errorf("vector %d out of range", e.Pending.Vector)
		}
		if ls.Pending != e.Pending.Value {
			return fmt.Errorf("pending(%d) = %t, want %t", e.Pending.Vector, ls.Pending, e.Pending.Value)
		}
	}
	if e.Registered != nil {
		if got := s.m.Table.Registered(e.Registered.Vector); got != e.Registered.Value {
			return fmt.Errorf("registered(%d) = %t, want %t", e.Registered.Vector, got, e.Registered.Value)
		}
	}
	if e.MonotonicSeconds != nil {
		if got := s.m.Clock.Now(clock.Monotonic).Seconds(); got != *e.MonotonicSeconds {
			return fmt.Errorf("monotonic seconds = %d, want %d", got, *e.MonotonicSeconds)
		}
	}
	if e.RealtimeSeconds != nil {
		if got := s.m.Clock.Now(clock.Realtime).Seconds(); got != *e.RealtimeSeconds {
			return fmt.Errorf("realtime seconds = %d, want %d", got, *e.RealtimeSeconds)
		}
	}
	return nil
}

func (s *runState) checkCore(core int) error {
	if core < 0 || core >= s.m.CPUs.Count() {
		return fmt.Errorf("cpu %d out of range, machine has %d", core, s.m.CPUs.Count())
	}
	return nil
}

// ppmToCal converts a parts-per-million rate into a fixed-point
// calibration coefficient.
func ppmToCal(ppm int64) int64 {
	return ppm << clock.CalibrBits / 1_000_000
}

// faultESR builds the syndrome for a scripted fault class.
func faultESR(f *FaultStep) (uint32, error) {
	var ec uint32
	switch f.Class {
	case "data_abort":
		if f.User {
			ec = arch.ECDataAbortLower
		} else {
			ec = arch.ECDataAbort
		}
	case "inst_abort":
		if f.User {
			ec = arch.ECInstAbortLower
		} else {
			ec = arch.ECInstAbort
		}
	case "pc_align":
		ec = arch.ECPCAlign
	case "sp_align":
		ec = arch.ECSPAlign
	case "illegal":
		ec = arch.ECIllegalExec
	case "unknown":
		ec = arch.ECUnknown
	default:
		return 0, fmt.Errorf("unknown fault class %q", f.Class)
	}
	var iss uint32
	if f.Write {
		iss |= 1 << 6 // WnR
	}
	return ec<<26 | 1<<25 | iss, nil
}
