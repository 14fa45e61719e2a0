package hw

import (
	"sync/atomic"
	"time"

	"nucleus/internal/clock"
)

// ManualCounter is a monotonic counter advanced explicitly, for
// deterministic runs.
type ManualCounter struct {
	v atomic.Uint64
}

func (c *ManualCounter) Now() clock.Timestamp { return clock.Timestamp(c.v.Load()) }

// Set positions the counter. Counters only move forward; a value below
// the current reading is ignored.
func (c *ManualCounter) Set(t clock.Timestamp) {
	for {
		cur := c.v.Load()
		if uint64(t) <= cur {
			return
		}
		if c.v.CompareAndSwap(cur, uint64(t)) {
			return
		}
	}
}

// Advance moves the counter forward by d.
func (c *ManualCounter) Advance(d clock.Timestamp) {
	c.v.Add(uint64(d))
}

// WallCounter is a monotonic counter backed by the host clock, for
// interactive runs.
type WallCounter struct {
	start time.Time
}

func NewWallCounter() *WallCounter {
	return &WallCounter{start: time.Now()}
}

func (c *WallCounter) Now() clock.Timestamp {
	return clock.FromDuration(time.Since(c.start))
}
