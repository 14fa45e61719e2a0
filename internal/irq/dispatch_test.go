package irq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nucleus/internal/arch"
	"nucleus/internal/cpu"
)

func newTestCore(t *testing.T) (*cpu.Context, *int) {
	t.Helper()
	ci := cpu.NewSet(1).FromID(0)
	loops := 0
	ci.RunLoop = func() { loops++ }
	return ci, &loops
}

func TestIRQDrainsInOrder(t *testing.T) {
	fc := &fakeController{}
	tab := NewTable(fc)
	ci, loops := newTestCore(t)
	d := NewDispatcher(ci, tab)

	var fired []string
	tab.Register(40, HandlerFunc(func() { fired = append(fired, "a") }), "a")
	tab.Register(41, HandlerFunc(func() { fired = append(fired, "b") }), "b")

	fc.queue = []uint64{41, 40}
	d.IRQ()

	assert.Equal(t, []string{"b", "a"}, fired)
	assert.Equal(t, 1, *loops, "run loop entered once after the drain")
}

func TestIRQInvokesAllHandlersBeforeEOI(t *testing.T) {
	fc := &fakeController{}
	tab := NewTable(fc)
	ci, _ := newTestCore(t)
	d := NewDispatcher(ci, tab)

	tab.Register(40, HandlerFunc(func() { fc.calls = append(fc.calls, "invoke first") }), "first")
	tab.Register(40, HandlerFunc(func() { fc.calls = append(fc.calls, "invoke second") }), "second")

	programmed := len(fc.calls)
	fc.queue = []uint64{40}
	d.IRQ()

	assert.Equal(t, []string{"ack 40", "invoke first", "invoke second", "eoi 40"},
		fc.calls[programmed:])
}

func TestIRQRequeriesPendingEachIteration(t *testing.T) {
	fc := &fakeController{}
	tab := NewTable(fc)
	ci, loops := newTestCore(t)
	d := NewDispatcher(ci, tab)

	var fired []string
	tab.Register(41, HandlerFunc(func() { fired = append(fired, "late") }), "late")
	tab.Register(40, HandlerFunc(func() {
		fired = append(fired, "early")
		// A handler raising another interrupt extends the same drain.
		fc.queue = append(fc.queue, 41)
	}), "early")

	fc.queue = []uint64{40}
	d.IRQ()

	assert.Equal(t, []string{"early", "late"}, fired)
	assert.Equal(t, 1, *loops)
}

func TestIRQMarksCoreInterrupted(t *testing.T) {
	fc := &fakeController{}
	tab := NewTable(fc)
	ci, _ := newTestCore(t)
	d := NewDispatcher(ci, tab)

	var seen cpu.State
	tab.Register(40, HandlerFunc(func() { seen = ci.State }), "probe")

	ci.State = cpu.StateKernel
	fc.queue = []uint64{40}
	d.IRQ()

	assert.Equal(t, cpu.StateInterrupt, seen)
}

func TestIRQReleasesKernelFrame(t *testing.T) {
	fc := &fakeController{}
	tab := NewTable(fc)
	ci, _ := newTestCore(t)
	d := NewDispatcher(ci, tab)
	tab.Register(40, HandlerFunc(func() {}), "h")

	ci.KernelFrame().Full = true
	fc.queue = []uint64{40}
	d.IRQ()
	assert.False(t, ci.KernelFrame().Full,
		"kernel frame released after dispatch on the kernel context")

	// A non-kernel running frame stays full; its owner still needs it.
	other := &arch.Frame{Full: true}
	ci.RunningFrame = other
	fc.queue = []uint64{40}
	d.IRQ()
	assert.True(t, other.Full)
}

func TestIRQEmptyDrainStillEntersRunLoop(t *testing.T) {
	fc := &fakeController{}
	tab := NewTable(fc)
	ci, loops := newTestCore(t)
	d := NewDispatcher(ci, tab)

	d.IRQ()
	assert.Equal(t, 1, *loops)
}

func TestIRQVectorBeyondRangeHalts(t *testing.T) {
	fc := &fakeController{queue: []uint64{300}}
	tab := NewTable(fc)
	ci, _ := newTestCore(t)
	d := NewDispatcher(ci, tab)

	defer recoverHalt(t, "dispatched interrupt 300 exceeds max supported vectors")()
	d.IRQ()
}

func TestIRQUnregisteredVectorHalts(t *testing.T) {
	fc := &fakeController{queue: []uint64{99}}
	tab := NewTable(fc)
	ci, _ := newTestCore(t)
	d := NewDispatcher(ci, tab)

	defer recoverHalt(t, "no handler for interrupt 99")()
	d.IRQ()
}

func TestIRQHaltedVectorSkipsRunLoop(t *testing.T) {
	fc := &fakeController{queue: []uint64{99}}
	tab := NewTable(fc)
	ci, loops := newTestCore(t)
	d := NewDispatcher(ci, tab)

	func() {
		defer func() { _ = recover() }()
		d.IRQ()
	}()
	assert.Equal(t, 0, *loops)

	require.NotNil(t, ci.RunLoop)
}
