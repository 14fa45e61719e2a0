// Package irq owns the interrupt side of dispatch: the vector table
// with its registration discipline, the dynamic vector allocator, and
// the drain loop that runs a core's pending interrupts down to empty.
package irq

import "fmt"

const (
	// VectorBase is the end of the architectural exception range;
	// dynamic vectors are allocated at or above it.
	VectorBase = 32

	// MaxVectors is the size of the vector space.
	MaxVectors = 256

	// NoPending is the controller's reserved id meaning no vector is
	// waiting. It is never a dispatchable vector.
	NoPending = 1023

	// PriorityHighest is the priority value newly registered vectors
	// are programmed with; lower values dispatch first.
	PriorityHighest = 0
)

// TriggerMode selects how a controller line latches its input.
type TriggerMode uint8

const (
	TriggerEdge TriggerMode = iota
	TriggerLevel
)

func (m TriggerMode) String() string {
	switch m {
	case TriggerEdge:
		return "edge"
	case TriggerLevel:
		return "level"
	}
	return fmt.Sprintf("trigger(%d)", uint8(m))
}

// Controller is the interrupt controller surface the dispatch layer
// programs and drains.
type Controller interface {
	// Pending acknowledges and returns the highest priority pending
	// enabled vector, or NoPending when nothing is waiting.
	Pending() uint64

	// EOI signals end of interrupt for vector v, closing the ack from
	// Pending.
	EOI(v uint64)

	Enable(v uint64)
	Disable(v uint64)
	SetPriority(v uint64, pri uint8)
	SetTriggerMode(v uint64, m TriggerMode)
	SetTarget(v uint64, cores uint32)

	// ClearPending drops any latched pending state on v without
	// dispatching it.
	ClearPending(v uint64)
}

// Handler is an interrupt thunk. Handlers capture whatever state they
// operate on.
type Handler interface {
	Invoke()
}

// HandlerFunc adapts a plain func to Handler.
type HandlerFunc func()

func (f HandlerFunc) Invoke() { f() }
