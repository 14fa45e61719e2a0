package hw

import "sync/atomic"

// SimRTC is a battery clock holding epoch seconds.
type SimRTC struct {
	secs atomic.Uint64
}

// NewSimRTC returns an RTC reading epoch seconds.
func NewSimRTC(epoch uint64) *SimRTC {
	r := &SimRTC{}
	r.secs.Store(epoch)
	return r
}

func (r *SimRTC) Read() uint64 { return r.secs.Load() }
func (r *SimRTC) Set(s uint64) { r.secs.Store(s) }

// NullRTC is the absent-RTC variant: reads zero, writes vanish.
type NullRTC struct{}

func (NullRTC) Read() uint64 { return 0 }
func (NullRTC) Set(uint64)   {}
