// Package scenario runs YAML-scripted event sequences against freshly
// assembled machines: interrupts raised and drained, clock and timer
// motion, injected traps, and expectations over the resulting state.
// Suites are the repository's executable fixtures for dispatch
// behavior.
package scenario

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Suite is a collection of scenarios.
type Suite struct {
	Version   int        `yaml:"version"`
	Scenarios []Scenario `yaml:"scenarios"`
}

// Scenario is one scripted run. Every scenario gets its own
// deterministic machine, shaped by the optional machine block.
type Scenario struct {
	Name    string      `yaml:"name"`
	Machine MachineSpec `yaml:"machine,omitempty"`
	Steps   []Step      `yaml:"steps"`
}

// MachineSpec overrides the default machine shape for one scenario.
type MachineSpec struct {
	Cores    int    `yaml:"cores,omitempty"`
	RTCEpoch uint64 `yaml:"rtc_epoch,omitempty"`
}

// Step is one scripted operation; exactly one op field may be set.
// Fire raises a vector and immediately drains core 0; ServiceTimers
// runs due timers without going through the interrupt path;
// InstallFallback arms every core's kernel frame with a counting fault
// handler under the given name. ExpectHalt inverts failure: the step
// passes only when the op halts with a reason containing the given
// fragment.
type Step struct {
	Register        *RegisterStep `yaml:"register,omitempty"`
	Unregister      *uint64       `yaml:"unregister,omitempty"`
	Raise           *uint64       `yaml:"raise,omitempty"`
	Lower           *uint64       `yaml:"lower,omitempty"`
	Fire            *uint64       `yaml:"fire,omitempty"`
	IRQ             *IRQStep      `yaml:"irq,omitempty"`
	Advance         *AdvanceStep  `yaml:"advance,omitempty"`
	Adjust          *AdjustStep   `yaml:"adjust,omitempty"`
	ResetRTC        *ResetRTCStep `yaml:"reset_rtc,omitempty"`
	Syscall         *SyscallStep  `yaml:"syscall,omitempty"`
	Fault           *FaultStep    `yaml:"fault,omitempty"`
	Timer           *TimerStep    `yaml:"timer,omitempty"`
	ServiceTimers   bool          `yaml:"service_timers,omitempty"`
	InstallFallback *string       `yaml:"install_fallback,omitempty"`
	Expect          *ExpectStep   `yaml:"expect,omitempty"`

	ExpectHalt string `yaml:"expect_halt,omitempty"`
}

// RegisterStep registers a named counting handler on a vector.
type RegisterStep struct {
	Vector uint64 `yaml:"vector"`
	Name   string `yaml:"name"`
}

// IRQStep drains pending interrupts on a core.
type IRQStep struct {
	Core int `yaml:"core"`
}

// AdvanceStep moves the manual counter forward.
type AdvanceStep struct {
	Seconds uint64 `yaml:"seconds"`
	Millis  uint64 `yaml:"millis,omitempty"`
}

// AdjustStep applies a calibration event. Coefficients are given in
// parts per million of correction per elapsed second.
type AdjustStep struct {
	WallclockSeconds uint64 `yaml:"wallclock_seconds"`
	TempCalPPM       int64  `yaml:"temp_cal_ppm,omitempty"`
	SyncSeconds      uint64 `yaml:"sync_seconds,omitempty"`
	CalPPM           int64  `yaml:"cal_ppm,omitempty"`
}

// ResetRTCStep steps the wall clock.
type ResetRTCStep struct {
	WallclockSeconds uint64 `yaml:"wallclock_seconds"`
}

// SyscallStep injects a syscall trap.
type SyscallStep struct {
	Core   int    `yaml:"core"`
	Number uint64 `yaml:"number"`
}

// FaultStep injects a synchronous fault. Class names the exception
// class; ESR instead gives the raw syndrome word for classes the
// shorthand does not cover. Handled installs a fault handler that
// absorbs it, counting under Name. KernelFrame delivers the fault on
// the core's kernel context frame instead of a fresh one, so an
// installed fallback handler sees it.
type FaultStep struct {
	Core        int            `yaml:"core"`
	Class       string         `yaml:"class,omitempty"` // data_abort, inst_abort, pc_align, sp_align, illegal, unknown
	ESR         uint32         `yaml:"esr,omitempty"`
	Name        string         `yaml:"name,omitempty"`
	User        bool           `yaml:"user,omitempty"`
	Write       bool           `yaml:"write,omitempty"`
	FAR         uint64         `yaml:"far,omitempty"`
	ELR         uint64         `yaml:"elr,omitempty"`
	Regs        map[int]uint64 `yaml:"regs,omitempty"`
	Handled     bool           `yaml:"handled,omitempty"`
	KernelFrame bool           `yaml:"kernel_frame,omitempty"`
}

// TimerStep arms a timer whose firings count under Name.
type TimerStep struct {
	Name            string `yaml:"name"`
	Clock           string `yaml:"clock,omitempty"` // defaults to monotonic
	Seconds         uint64 `yaml:"seconds"`
	IntervalSeconds uint64 `yaml:"interval_seconds,omitempty"`
}

// CoreCount pairs a core with an expected count.
type CoreCount struct {
	Core  int `yaml:"core"`
	Count int `yaml:"count"`
}

// CoreState pairs a core with an expected run state name.
type CoreState struct {
	Core  int    `yaml:"core"`
	State string `yaml:"state"` // idle, kernel, interrupt, halted
}

// VectorFlag pairs a vector with an expected boolean.
type VectorFlag struct {
	Vector uint64 `yaml:"vector"`
	Value  bool   `yaml:"value"`
}

// ExpectStep checks machine state; every set field is verified.
type ExpectStep struct {
	Fired            map[string]int `yaml:"fired,omitempty"`
	Syscalls         *int           `yaml:"syscalls,omitempty"`
	RunLoops         *CoreCount     `yaml:"run_loops,omitempty"`
	State            *CoreState     `yaml:"state,omitempty"`
	Pending          *VectorFlag    `yaml:"pending,omitempty"`
	Registered       *VectorFlag    `yaml:"registered,omitempty"`
	MonotonicSeconds *uint64        `yaml:"monotonic_seconds,omitempty"`
	RealtimeSeconds  *uint64        `yaml:"realtime_seconds,omitempty"`
}

// opCount returns how many op fields the step sets.
func (s *Step) opCount() int {
	n := 0
	if s.Register != nil {
		n++
	}
	if s.Unregister != nil {
		n++
	}
	if s.Raise != nil {
		n++
	}
	if s.Lower != nil {
		n++
	}
	if s.Fire != nil {
		n++
	}
	if s.IRQ != nil {
		n++
	}
	if s.Advance != nil {
		n++
	}
	if s.Adjust != nil {
		n++
	}
	if s.ResetRTC != nil {
		n++
	}
	if s.Syscall != nil {
		n++
	}
	if s.Fault != nil {
		n++
	}
	if s.Timer != nil {
		n++
	}
	if s.ServiceTimers {
		n++
	}
	if s.InstallFallback != nil {
		n++
	}
	if s.Expect != nil {
		n++
	}
	return n
}

// Describe returns the step's op kind and a short detail line, for run
// records and logs.
func (s *Step) Describe() (kind, detail string) {
	switch {
	case s.Register != nil:
		return "register", fmt.Sprintf("vector=%d name=%s", s.Register.Vector, s.Register.Name)
	case s.Unregister != nil:
		return "unregister", fmt.Sprintf("vector=%d", *s.Unregister)
	case s.Raise != nil:
		return "raise", fmt.Sprintf("vector=%d", *s.Raise)
	case s.Lower != nil:
		return "lower", fmt.Sprintf("vector=%d", *s.Lower)
	case s.Fire != nil:
		return "fire", fmt.Sprintf("vector=%d", *s.Fire)
	case s.IRQ != nil:
		return "irq", fmt.Sprintf("cpu=%d", s.IRQ.Core)
	case s.Advance != nil:
		return "advance", fmt.Sprintf("seconds=%d millis=%d", s.Advance.Seconds, s.Advance.Millis)
	case s.Adjust != nil:
		return "adjust", fmt.Sprintf("wallclock=%ds temp_cal=%dppm cal=%dppm",
			s.Adjust.WallclockSeconds, s.Adjust.TempCalPPM, s.Adjust.CalPPM)
	case s.ResetRTC != nil:
		return "reset_rtc", fmt.Sprintf("wallclock=%ds", s.ResetRTC.WallclockSeconds)
	case s.Syscall != nil:
		return "syscall", fmt.Sprintf("cpu=%d number=%d", s.Syscall.Core, s.Syscall.Number)
	case s.Fault != nil:
		if s.Fault.Class == "" {
			return "fault", fmt.Sprintf("cpu=%d esr=%#x handled=%t", s.Fault.Core, s.Fault.ESR, s.Fault.Handled)
		}
		return "fault", fmt.Sprintf("cpu=%d class=%s handled=%t", s.Fault.Core, s.Fault.Class, s.Fault.Handled)
	case s.Timer != nil:
		return "timer", fmt.Sprintf("name=%s seconds=%d interval=%d", s.Timer.Name, s.Timer.Seconds, s.Timer.IntervalSeconds)
	case s.ServiceTimers:
		return "service_timers", ""
	case s.InstallFallback != nil:
		return "install_fallback", fmt.Sprintf("name=%s", *s.InstallFallback)
	case s.Expect != nil:
		return "expect", ""
	}
	return "empty", ""
}

// Parse decodes a suite from YAML.
func Parse(data []byte) (*Suite, error) {
	var s Suite
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse scenario suite: %w", err)
	}
	return &s, nil
}

// Load reads a suite file from disk.
func Load(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}
