package clock

import (
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"

	"nucleus/internal/klog"
)

// CounterSource is a free-running monotonic counter read. Sources must
// be safe for concurrent use; every clock id is derived from the one
// registered source.
type CounterSource interface {
	Now() Timestamp
}

// RTC is a battery-backed wall clock holding whole seconds since the
// unix epoch. A Read of zero means the device has no valid time.
type RTC interface {
	Read() uint64
	Set(seconds uint64)
}

type sourceRef struct {
	src CounterSource
}

// Clock derives every clock id from one counter source plus the shared
// calibration state. Reads are safe from any goroutine; Adjust and
// ResetRTC writers must serialize among themselves.
type Clock struct {
	data TimeData
	src  atomic.Pointer[sourceRef]
	rtc  RTC

	// onCalibrate and onWallStep are the timer wheel hooks, wired once
	// at bring-up.
	onCalibrate func()
	onWallStep  func(delta int64)

	log *zap.SugaredLogger
}

// New returns a clock backed by rtc. A nil rtc reads as absent. No
// counter source is registered yet; Raw reads zero until one is.
func New(rtc RTC) *Clock {
	return &Clock{rtc: rtc, log: klog.Get(klog.CategoryClock)}
}

// SetTimerHooks wires the timer wheel callbacks: onCalibrate fires
// after any calibration change, onWallStep fires on a wall clock step
// with the signed step size, before onCalibrate.
func (c *Clock) SetTimerHooks(onCalibrate func(), onWallStep func(delta int64)) {
	c.onCalibrate = onCalibrate
	c.onWallStep = onWallStep
}

// RegisterSource installs src as the counter behind every clock id and
// restarts calibration state against it.
func (c *Clock) RegisterSource(src CounterSource, id SourceID, precise bool) {
	c.src.Store(&sourceRef{src: src})
	c.data.clockSrc.Store(uint32(id))
	c.data.precise.Store(precise)
	c.reset()
	c.log.Debugw("clock source registered", "source", id.String(), "precise", precise)
}

// Raw reads the counter with no correction applied. With no source
// registered it reads zero.
func (c *Clock) Raw() Timestamp {
	ref := c.src.Load()
	if ref == nil {
		return 0
	}
	return ref.src.Now()
}

// Now returns the current time on clock id. The raw id returns the
// counter untouched. Every other id applies the accumulated drift
// correction, advancing the stored drift position as a side effect;
// realtime ids add the boot epoch offset on top.
func (c *Clock) Now(id ID) Timestamp {
	t := c.Raw()
	if id == MonotonicRaw {
		return t
	}
	t += Timestamp(c.updateDrift(t))
	switch id {
	case Realtime, RealtimeCoarse:
		t += c.data.RTCOffset()
	}
	return t
}

// Uptime returns time since boot.
func (c *Clock) Uptime() Timestamp {
	return c.Now(Boottime)
}

// HasPreciseSource reports whether the registered counter supports
// precise reads.
func (c *Clock) HasPreciseSource() bool {
	return c.data.precise.Load()
}

// Data exposes the calibration state to observers.
func (c *Clock) Data() *TimeData {
	return &c.data
}

// Delay busy waits until delta has elapsed on the monotonic clock. The
// counter behind the clock must be advancing on its own.
func (c *Clock) Delay(delta Timestamp) {
	end := c.Now(Monotonic) + delta
	for c.Now(Monotonic) < end {
		runtime.Gosched()
	}
}

// Adjust installs a calibration: tempCal slews until the raw counter
// passes syncComplete, cal applies past it, and wallclockNow is
// persisted to the RTC. The first calibration seeds the drift position
// so no correction is backdated to before it. Timers are reordered
// through the calibrate hook since monotonic expiries just moved.
func (c *Clock) Adjust(wallclockNow Timestamp, tempCal int64, syncComplete Timestamp, cal int64) {
	c.log.Debugw("clock adjust",
		"wallclock_secs", wallclockNow.Seconds(), "temp_cal", tempCal,
		"sync_complete", uint64(syncComplete), "cal", cal)

	here := c.Raw()
	if c.data.lastRaw.Load() == 0 {
		c.data.lastRaw.Store(uint64(here))
	}
	c.data.tempCal.Store(tempCal)
	c.data.syncComplete.Store(uint64(syncComplete))
	c.data.cal.Store(cal)
	c.updateDrift(here)
	if c.onCalibrate != nil {
		c.onCalibrate()
	}
	c.setRTC(wallclockNow.Seconds())
}

// ResetRTC steps the wall clock to wallclockNow: the RTC is rewritten,
// realtime timers are shifted by the step through the wall step hook,
// and calibration state restarts from the fresh RTC reading. Monotonic
// ids do not observe the step.
func (c *Clock) ResetRTC(wallclockNow Timestamp) {
	n := c.Now(Realtime)
	c.log.Debugw("clock reset rtc",
		"now_secs", n.Seconds(), "wallclock_secs", wallclockNow.Seconds())

	c.setRTC(wallclockNow.Seconds())
	if c.onWallStep != nil {
		c.onWallStep(int64(wallclockNow - n))
	}
	if c.onCalibrate != nil {
		c.onCalibrate()
	}
	c.reset()
}

// reset reseeds the boot epoch from the RTC and zeroes all calibration
// state. An absent or unset RTC pins the epoch offset to zero.
func (c *Clock) reset() {
	rt := c.readRTC()
	if rt != 0 {
		c.data.rtcOffset.Store(uint64(Seconds(rt) - c.Raw()))
	} else {
		c.data.rtcOffset.Store(0)
	}
	c.data.tempCal.Store(0)
	c.data.cal.Store(0)
	c.data.syncComplete.Store(0)
	c.data.lastRaw.Store(0)
	c.data.lastDrift.Store(0)
}

func (c *Clock) readRTC() uint64 {
	if c.rtc == nil {
		return 0
	}
	return c.rtc.Read()
}

func (c *Clock) setRTC(seconds uint64) {
	if c.rtc == nil {
		return
	}
	c.rtc.Set(seconds)
}
