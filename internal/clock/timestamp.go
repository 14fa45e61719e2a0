// Package clock implements the drift-corrected monotonic clock: Q32.32
// timestamps, the calibration state shared between one writer and many
// readers, and the piecewise drift math that slews corrections in
// instead of stepping the clock.
package clock

import "time"

// CalibrBits is the number of fractional bits in timestamps and in
// fixed point calibration coefficients.
const CalibrBits = 32

// Timestamp is a Q32.32 fixed point time value: whole seconds in the
// high 32 bits, fractional seconds in the low 32.
type Timestamp uint64

// Second is one second in timestamp units.
const Second Timestamp = 1 << CalibrBits

// Seconds converts whole seconds to a timestamp.
func Seconds(n uint64) Timestamp { return Timestamp(n) << CalibrBits }

// Milliseconds converts milliseconds to a timestamp.
func Milliseconds(n uint64) Timestamp {
	return Timestamp(n/1000)<<CalibrBits + Timestamp((n%1000)<<CalibrBits/1000)
}

// Microseconds converts microseconds to a timestamp.
func Microseconds(n uint64) Timestamp {
	return Timestamp(n/1e6)<<CalibrBits + Timestamp((n%1e6)<<CalibrBits/1e6)
}

// Nanoseconds converts nanoseconds to a timestamp.
func Nanoseconds(n uint64) Timestamp {
	return Timestamp(n/1e9)<<CalibrBits + Timestamp((n%1e9)<<CalibrBits/1e9)
}

// FromDuration converts a time.Duration to a timestamp. Negative
// durations convert to zero.
func FromDuration(d time.Duration) Timestamp {
	if d < 0 {
		return 0
	}
	return Nanoseconds(uint64(d))
}

// Seconds returns the whole seconds part.
func (t Timestamp) Seconds() uint64 { return uint64(t >> CalibrBits) }

// Fraction returns the fractional part in Q0.32 units.
func (t Timestamp) Fraction() uint32 { return uint32(t) }

// Nanoseconds returns the timestamp in nanoseconds, truncated.
func (t Timestamp) Nanoseconds() uint64 {
	return t.Seconds()*1e9 + uint64(t.Fraction())*1e9>>CalibrBits
}

// Duration converts the timestamp to a time.Duration, saturating at the
// maximum representable duration.
func (t Timestamp) Duration() time.Duration {
	ns := t.Nanoseconds()
	if ns > uint64(1<<63-1) {
		return time.Duration(1<<63 - 1)
	}
	return time.Duration(ns)
}

func (t Timestamp) String() string { return t.Duration().String() }
