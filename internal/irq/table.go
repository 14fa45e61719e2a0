package irq

import (
	"go.uber.org/zap"

	"nucleus/internal/cpu"
	"nucleus/internal/idspace"
	"nucleus/internal/klog"
)

type entry struct {
	h    Handler
	name string
}

// Table owns handler registration for every vector and the allocator
// for dynamic vector numbers above the exception range. Registration is
// a bring-up and teardown activity; the owner serializes calls.
type Table struct {
	ctrl     Controller
	handlers [MaxVectors][]entry
	vectors  *idspace.Space
	log      *zap.SugaredLogger
}

// NewTable returns an empty table programming ctrl.
func NewTable(ctrl Controller) *Table {
	return &Table{
		ctrl:    ctrl,
		vectors: idspace.New(VectorBase, MaxVectors-VectorBase),
		log:     klog.Get(klog.CategoryIRQ),
	}
}

// AllocateVector hands out a free dynamic vector number.
func (t *Table) AllocateVector() (uint64, bool) {
	return t.vectors.Allocate()
}

// DeallocateVector returns a dynamic vector number to the pool.
func (t *Table) DeallocateVector(v uint64) {
	t.vectors.Release(v)
}

// ReserveVector pins a fixed vector number in the dynamic range so the
// allocator never hands it out. Reserving an already reserved vector
// succeeds.
func (t *Table) ReserveVector(v uint64) bool {
	return t.vectors.Reserve(v)
}

// Register appends h to vector v's handler chain under name. The first
// handler on a vector programs the controller: top priority, stale
// pending state cleared, then enabled, in that order. Later handlers
// share the already programmed vector.
func (t *Table) Register(v uint64, h Handler, name string) {
	if v >= MaxVectors {
		cpu.Fatal("register: vector %d exceeds max supported vectors", v)
	}
	initialized := len(t.handlers[v]) > 0
	t.log.Debugw("register interrupt", "vector", v, "name", name, "shared", initialized)

	t.handlers[v] = append(t.handlers[v], entry{h: h, name: name})

	if !initialized {
		t.ctrl.SetPriority(v, PriorityHighest)
		t.ctrl.ClearPending(v)
		t.ctrl.Enable(v)
	}
}

// Unregister disables vector v at the controller and removes every
// handler registered on it. The vector is disabled before the chain is
// checked; unregistering a vector with no handlers halts.
func (t *Table) Unregister(v uint64) {
	if v >= MaxVectors {
		cpu.Fatal("unregister: vector %d exceeds max supported vectors", v)
	}
	t.log.Debugw("unregister interrupt", "vector", v)

	t.ctrl.Disable(v)
	if len(t.handlers[v]) == 0 {
		cpu.Fatal("unregister: no handler registered for vector %d", v)
	}
	for _, e := range t.handlers[v] {
		t.log.Debugw("remove handler", "vector", v, "name", e.name)
	}
	t.handlers[v] = nil
}

// Registered reports whether vector v has at least one handler.
func (t *Table) Registered(v uint64) bool {
	return v < MaxVectors && len(t.handlers[v]) > 0
}

// HandlerNames returns the names registered on v in registration order,
// for fault reports and the vector listing.
func (t *Table) HandlerNames(v uint64) []string {
	if v >= MaxVectors {
		return nil
	}
	names := make([]string, 0, len(t.handlers[v]))
	for _, e := range t.handlers[v] {
		names = append(names, e.name)
	}
	return names
}

// RegisteredVectors returns every vector with handlers, ascending.
func (t *Table) RegisteredVectors() []uint64 {
	var vs []uint64
	for v := uint64(0); v < MaxVectors; v++ {
		if len(t.handlers[v]) > 0 {
			vs = append(vs, v)
		}
	}
	return vs
}

// Controller returns the controller this table programs.
func (t *Table) Controller() Controller { return t.ctrl }
