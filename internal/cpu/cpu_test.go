package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nucleus/internal/arch"
)

func TestNewSet(t *testing.T) {
	s := NewSet(4)
	require.Equal(t, 4, s.Count())
	for i := 0; i < 4; i++ {
		c := s.FromID(i)
		assert.Equal(t, i, c.ID)
		assert.Equal(t, StateKernel, c.State)
		require.NotNil(t, c.KernelFrame())
		assert.Same(t, c.KernelFrame(), c.RunningFrame,
			"fresh core runs its kernel frame")
	}
	assert.NotSame(t, s.FromID(0).KernelFrame(), s.FromID(1).KernelFrame())
}

func TestIsCurrentKernelContext(t *testing.T) {
	s := NewSet(2)
	c0 := s.FromID(0)
	assert.True(t, c0.IsCurrentKernelContext(c0.KernelFrame()))
	assert.False(t, c0.IsCurrentKernelContext(&arch.Frame{}))
	assert.False(t, c0.IsCurrentKernelContext(s.FromID(1).KernelFrame()))
}

func TestInstallFallbackFaultHandler(t *testing.T) {
	s := NewSet(3)
	h := func(f *arch.Frame) *arch.Frame { return nil }
	s.InstallFallbackFaultHandler(h)
	for i := 0; i < 3; i++ {
		assert.NotNil(t, s.FromID(i).KernelFrame().FaultHandler)
	}
}

func TestHaltPanicsWithDiagnostic(t *testing.T) {
	s := NewSet(1)
	c := s.FromID(0)

	defer func() {
		r := recover()
		require.NotNil(t, r)
		he, ok := r.(*HaltError)
		require.True(t, ok, "halt panics with *HaltError, got %T", r)
		assert.Equal(t, 0, he.Core)
		assert.Equal(t, "no handler for interrupt 77", he.Reason)
		assert.Equal(t, "halt: cpu 0: no handler for interrupt 77", he.Error())
		assert.Equal(t, StateHalted, c.State)
	}()
	c.Halt("no handler for interrupt %d", 77)
}

func TestFatalIsMachineScoped(t *testing.T) {
	defer func() {
		r := recover()
		require.NotNil(t, r)
		he, ok := r.(*HaltError)
		require.True(t, ok)
		assert.Equal(t, -1, he.Core)
		assert.Equal(t, "halt: bad wiring", he.Error())
	}()
	Fatal("bad wiring")
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateKernel, "kernel"},
		{StateInterrupt, "interrupt"},
		{StateHalted, "halted"},
		{State(9), "state(9)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}
