// Package cpu models per-core kernel state: the run state machine, the
// running and kernel frames, and the halt path that freezes execution
// behind a diagnostic when dispatch cannot continue.
package cpu

import (
	"fmt"

	"go.uber.org/zap"

	"nucleus/internal/arch"
	"nucleus/internal/klog"
)

// State is a core's run state as tracked by the dispatch layer.
type State int

const (
	StateIdle State = iota
	StateKernel
	StateInterrupt
	StateHalted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateKernel:
		return "kernel"
	case StateInterrupt:
		return "interrupt"
	case StateHalted:
		return "halted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// HaltError carries the diagnostic of a halted core. The dispatch layer
// panics with one; the machine driver recovers it at the top level.
type HaltError struct {
	Core   int // -1 when the halt happened outside any core's dispatch
	Reason string
}

func (e *HaltError) Error() string {
	if e.Core < 0 {
		return "halt: " + e.Reason
	}
	return fmt.Sprintf("halt: cpu %d: %s", e.Core, e.Reason)
}

// Context is the per-core record the dispatch layer works against.
type Context struct {
	ID int

	// State is updated by the dispatchers and the run loop.
	State State

	// RunningFrame holds the interrupted state the core is currently
	// dispatching for.
	RunningFrame *arch.Frame

	// FAR is the core's latched fault address register.
	FAR uint64

	// RunLoop is invoked when dispatch hands the core back to the
	// scheduler. Must be set before any dispatch runs.
	RunLoop func()

	// Resume is invoked with a frame a fault handler elected to return
	// to directly.
	Resume func(*arch.Frame)

	// SyscallEntry receives the saved frame on a syscall trap. The
	// entry point owns the core from that point; dispatch does not run
	// again until the next trap.
	SyscallEntry func(*arch.Frame)

	kernelFrame *arch.Frame
}

// KernelFrame returns the core's kernel context frame.
func (c *Context) KernelFrame() *arch.Frame { return c.kernelFrame }

// IsCurrentKernelContext reports whether f is this core's kernel frame.
func (c *Context) IsCurrentKernelContext(f *arch.Frame) bool {
	return f == c.kernelFrame
}

// Halt freezes the core behind a formatted diagnostic. It marks the
// core halted, logs the reason and panics with a *HaltError.
func (c *Context) Halt(format string, args ...any) {
	reason := fmt.Sprintf(format, args...)
	c.State = StateHalted
	klog.L().Error("cpu halt", zap.Int("cpu", c.ID), zap.String("reason", reason))
	panic(&HaltError{Core: c.ID, Reason: reason})
}

// Fatal halts the machine outside any core's dispatch path, for wiring
// and registration errors.
func Fatal(format string, args ...any) {
	reason := fmt.Sprintf(format, args...)
	klog.L().Error("machine halt", zap.String("reason", reason))
	panic(&HaltError{Core: -1, Reason: reason})
}

// Set is the machine's table of core contexts, built once at bring-up
// before any core dispatches.
type Set struct {
	cpus []*Context
}

// NewSet returns n core contexts, each running its own kernel frame.
func NewSet(n int) *Set {
	s := &Set{cpus: make([]*Context, n)}
	for i := range s.cpus {
		kf := &arch.Frame{}
		s.cpus[i] = &Context{
			ID:           i,
			State:        StateKernel,
			RunningFrame: kf,
			kernelFrame:  kf,
		}
	}
	return s
}

// Count returns the number of cores.
func (s *Set) Count() int { return len(s.cpus) }

// FromID returns the context for core id. It panics on out of range
// ids.
func (s *Set) FromID(id int) *Context { return s.cpus[id] }

// InstallFallbackFaultHandler points every core's kernel frame at h,
// the handler of last resort for faults taken in kernel context.
func (s *Set) InstallFallbackFaultHandler(h arch.FaultHandler) {
	for _, c := range s.cpus {
		c.kernelFrame.FaultHandler = h
	}
}
