package clock

import "sync/atomic"

// TimeData is the calibration state shared between the single
// calibration writer and every time reader. Fields are individually
// atomic; a reader may observe a partially applied update, and the
// store order in updateDrift keeps the resulting discrepancy bounded
// to the interval since the previous update.
type TimeData struct {
	clockSrc     atomic.Uint32
	precise      atomic.Bool
	rtcOffset    atomic.Uint64
	tempCal      atomic.Int64
	syncComplete atomic.Uint64
	cal          atomic.Int64
	lastRaw      atomic.Uint64
	lastDrift    atomic.Int64
}

// Source returns the id of the registered counter source.
func (d *TimeData) Source() SourceID { return SourceID(d.clockSrc.Load()) }

// Precise reports whether the counter supports precise reads.
func (d *TimeData) Precise() bool { return d.precise.Load() }

// RTCOffset returns the boot epoch offset added to realtime reads.
func (d *TimeData) RTCOffset() Timestamp { return Timestamp(d.rtcOffset.Load()) }

// TempCal returns the temporary slew coefficient applied until the raw
// clock passes the sync boundary.
func (d *TimeData) TempCal() int64 { return d.tempCal.Load() }

// SyncComplete returns the raw-domain boundary where the temporary
// coefficient hands over to the steady one.
func (d *TimeData) SyncComplete() Timestamp { return Timestamp(d.syncComplete.Load()) }

// Cal returns the steady calibration coefficient.
func (d *TimeData) Cal() int64 { return d.cal.Load() }

// LastRaw returns the raw position of the most recent drift update.
func (d *TimeData) LastRaw() Timestamp { return Timestamp(d.lastRaw.Load()) }

// LastDrift returns the drift accumulated at LastRaw.
func (d *TimeData) LastDrift() int64 { return d.lastDrift.Load() }

// Snapshot is a field by field copy of the calibration state for
// display. It is read like any other reader, one atomic at a time.
type Snapshot struct {
	Source       SourceID
	Precise      bool
	RTCOffset    Timestamp
	TempCal      int64
	SyncComplete Timestamp
	Cal          int64
	LastRaw      Timestamp
	LastDrift    int64
}

// Snapshot copies the calibration fields.
func (d *TimeData) Snapshot() Snapshot {
	return Snapshot{
		Source:       d.Source(),
		Precise:      d.Precise(),
		RTCOffset:    d.RTCOffset(),
		TempCal:      d.TempCal(),
		SyncComplete: d.SyncComplete(),
		Cal:          d.Cal(),
		LastRaw:      d.LastRaw(),
		LastDrift:    d.LastDrift(),
	}
}
