// Package timer implements the timer wheel: a priority queue of armed
// timers ordered in the monotonic domain, serviced against the clock,
// and repaired in place when calibration or a wall clock step moves
// expiries out from under the ordering.
package timer

import (
	"go.uber.org/zap"

	"nucleus/internal/clock"
	"nucleus/internal/klog"
	"nucleus/internal/pqueue"
)

// Handler runs when a timer fires. overruns counts whole periods beyond
// the first that had already elapsed at service time; one-shot timers
// always see zero.
type Handler func(overruns uint64)

// Timer is one armed timer, owned by its group. Expiry is absolute in
// the timer's own clock domain.
type Timer struct {
	id       clock.ID
	expiry   clock.Timestamp
	interval clock.Timestamp
	handler  Handler
	active   bool
}

// ID returns the clock domain the timer is armed on.
func (t *Timer) ID() clock.ID { return t.id }

// Expiry returns the absolute expiry in the timer's clock domain.
func (t *Timer) Expiry() clock.Timestamp { return t.expiry }

// Interval returns the period, zero for one-shot timers.
func (t *Timer) Interval() clock.Timestamp { return t.interval }

// Active reports whether the timer is still armed.
func (t *Timer) Active() bool { return t.active }

// Group owns the timer queue of one run loop. A Group is not safe for
// concurrent use; it belongs to the core servicing it.
type Group struct {
	clk *clock.Clock
	pq  *pqueue.Queue[*Timer]
	log *zap.SugaredLogger
}

// NewGroup returns an empty timer group ordered against clk.
func NewGroup(clk *clock.Clock) *Group {
	g := &Group{clk: clk, log: klog.Get(klog.CategoryTimer)}
	g.pq = pqueue.New(func(a, b *Timer) bool {
		return g.monotonicExpiry(a) < g.monotonicExpiry(b)
	})
	return g
}

// Bind wires the group into clk's timer hooks so calibrations reorder
// the queue and wall clock steps shift realtime expiries.
func (g *Group) Bind() {
	g.clk.SetTimerHooks(g.Reorder, g.AdjustWallClock)
}

// monotonicExpiry maps an expiry into the shared monotonic domain.
// Realtime expiries carry the epoch offset, so it is subtracted for
// ordering and service comparisons.
func (g *Group) monotonicExpiry(t *Timer) clock.Timestamp {
	if t.id.IsRealtime() {
		return t.expiry - g.clk.Data().RTCOffset()
	}
	return t.expiry
}

// Register arms a timer on clock id. A relative val is anchored at the
// current time on that clock; an absolute val is taken as the expiry
// itself. A nonzero interval makes the timer periodic.
func (g *Group) Register(id clock.ID, val clock.Timestamp, absolute bool, interval clock.Timestamp, h Handler) *Timer {
	t := &Timer{id: id, interval: interval, handler: h, active: true}
	if absolute {
		t.expiry = val
	} else {
		t.expiry = g.clk.Now(id) + val
	}
	g.pq.Insert(t)
	g.log.Debugw("timer armed", "clock", id.String(),
		"expiry_ns", t.expiry.Nanoseconds(), "periodic", interval != 0)
	return t
}

// Cancel disarms t. A canceled timer stays queued until it surfaces,
// then is dropped without firing.
func (g *Group) Cancel(t *Timer) {
	t.active = false
}

// Len returns the number of queued timers, canceled ones included
// until they surface.
func (g *Group) Len() int { return g.pq.Len() }

// Next returns the monotonic deadline of the soonest armed timer,
// dropping any canceled timers that surface on the way.
func (g *Group) Next() (clock.Timestamp, bool) {
	for {
		t, ok := g.pq.Peek()
		if !ok {
			return 0, false
		}
		if !t.active {
			g.pq.Pop()
			continue
		}
		return g.monotonicExpiry(t), true
	}
}

// Service fires every timer due at or before the current monotonic
// time and returns the count fired. Periodic timers re-arm at their
// next whole period; missed periods fold into the handler's overruns
// count.
func (g *Group) Service() int {
	now := g.clk.Now(clock.Monotonic)
	fired := 0
	for {
		t, ok := g.pq.Peek()
		if !ok {
			break
		}
		if !t.active {
			g.pq.Pop()
			continue
		}
		exp := g.monotonicExpiry(t)
		if exp > now {
			break
		}
		g.pq.Pop()

		overruns := uint64(0)
		if t.interval != 0 {
			overruns = uint64((now - exp) / t.interval)
			t.expiry += t.interval * clock.Timestamp(overruns+1)
			g.pq.Insert(t)
		} else {
			t.active = false
		}
		fired++
		g.log.Debugw("timer fired", "clock", t.id.String(), "overruns", overruns)
		t.handler(overruns)
	}
	return fired
}

// Reorder repairs queue ordering after a calibration moved monotonic
// expiry positions.
func (g *Group) Reorder() {
	g.pq.Reorder()
}

// AdjustWallClock shifts every realtime timer's expiry by delta after a
// wall clock step, keeping its remaining duration rather than its wall
// deadline. The caller reorders afterwards.
func (g *Group) AdjustWallClock(delta int64) {
	g.pq.Walk(func(t *Timer) bool {
		if t.id.IsRealtime() {
			t.expiry = clock.Timestamp(uint64(t.expiry) + uint64(delta))
		}
		return true
	})
}
