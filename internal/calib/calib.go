// Package calib turns round-trip time samples into clock calibration
// events. The arithmetic is NTP's: a sample carries the four timestamps
// of a query exchange, Process derives round-trip delay and clock
// offset from them, and the result is applied to the clock as a
// temporary slew plus a steady-state frequency correction. Transport is
// out of scope; callers feed samples from wherever they obtain them.
package calib

import (
	"fmt"
	"math/bits"

	"go.uber.org/zap"

	"nucleus/internal/clock"
	"nucleus/internal/klog"
)

const (
	// MaxSlewRate caps both correction coefficients at 500 PPM.
	MaxSlewRate = int64(1) << clock.CalibrBits / 2000

	// PollIntervalMin and PollIntervalMax bound the poll interval
	// exponent; the interval is 2^n seconds.
	PollIntervalMin = 4
	PollIntervalMax = 17

	jiggleThreshold = 30
	jiggleOffsetMax = clock.Timestamp(uint64(128) << clock.CalibrBits / 1000)

	maxQueryAttempts = 8
)

// EpochDelta is the offset in seconds between the NTP epoch (1900) and
// the Unix epoch (1970).
const EpochDelta = 2208988800

// ToWire converts a Unix-epoch timestamp to 64-bit NTP wire format.
func ToWire(t clock.Timestamp) uint64 {
	return (t.Seconds()+EpochDelta)<<32 | uint64(t.Fraction())
}

// FromWire converts a 64-bit NTP wire timestamp to the Unix epoch.
func FromWire(w uint64) clock.Timestamp {
	return clock.Timestamp((w>>32-EpochDelta)<<32 | w&0xffffffff)
}

// Sample holds the four timestamps of one query exchange: Origin and
// Arrival are local wall clock readings at send and receive; Receive
// and Transmit are the server's readings, already converted from wire
// format.
type Sample struct {
	Origin   clock.Timestamp
	Receive  clock.Timestamp
	Transmit clock.Timestamp
	Arrival  clock.Timestamp
}

// Calibrator produces calibration events for one clock. Not safe for
// concurrent use.
type Calibrator struct {
	clk *clock.Clock
	log *zap.SugaredLogger

	pollExp  int
	jiggle   int
	failures int

	haveLast   bool
	lastRawMid clock.Timestamp
}

// New returns a calibrator feeding clk, polling at the minimum
// interval.
func New(clk *clock.Clock) *Calibrator {
	return &Calibrator{
		clk:     clk,
		log:     klog.Get(klog.CategoryCalib),
		pollExp: PollIntervalMin,
	}
}

// PollExponent returns the current poll interval exponent.
func (c *Calibrator) PollExponent() int { return c.pollExp }

// PollInterval returns the current poll interval, 2^exponent seconds.
func (c *Calibrator) PollInterval() clock.Timestamp {
	return clock.Seconds(uint64(1) << c.pollExp)
}

// Process derives delay and offset from a sample and applies them to
// the clock. It returns the measured offset in fixed-point seconds.
// An error leaves the clock untouched: a sample whose timestamps imply
// a negative round-trip delay is rejected, as is an offset too large to
// slew out (the caller steps the clock instead).
func (c *Calibrator) Process(s Sample) (int64, error) {
	rtd := int64(s.Arrival) - int64(s.Origin) - (int64(s.Transmit) - int64(s.Receive))
	if rtd < 0 {
		return 0, fmt.Errorf("negative round trip delay %d", rtd)
	}
	offset := int64(s.Transmit) - int64(s.Arrival) + rtd/2

	raw := c.clk.Raw()
	rawMid := raw - clock.Timestamp(rtd/2)

	var tempCal int64
	syncComplete := raw
	if offset != 0 {
		mag := uint64(offset)
		if offset < 0 {
			tempCal = -MaxSlewRate
			mag = uint64(-offset)
		} else {
			tempCal = MaxSlewRate
		}
		hi, lo := mag>>32, mag<<32
		if hi >= uint64(MaxSlewRate) {
			return 0, fmt.Errorf("clock offset %d exceeds slewable range", offset)
		}
		quo, _ := bits.Div64(hi, lo, uint64(MaxSlewRate))
		syncComplete = raw + clock.Timestamp(quo)
	}

	// The measured offset is the residual error accumulated since the
	// previous exchange, so the steady coefficient grows by the
	// residual rate over the inter-sample interval.
	cal := c.clk.Data().Cal()
	if c.haveLast && rawMid > c.lastRawMid {
		interval := uint64(rawMid - c.lastRawMid)
		mag := uint64(offset)
		if offset < 0 {
			mag = uint64(-offset)
		}
		rate := rateOver(mag, interval)
		if offset < 0 {
			rate = -rate
		}
		cal += rate
		if cal > MaxSlewRate {
			cal = MaxSlewRate
		} else if cal < -MaxSlewRate {
			cal = -MaxSlewRate
		}
	}

	wall := clock.Timestamp(uint64(s.Arrival) + uint64(offset))
	c.clk.Adjust(wall, tempCal, syncComplete, cal)

	c.lastRawMid = rawMid
	c.haveLast = true
	c.failures = 0
	c.adaptPollInterval(offset)

	c.log.Debugw("calibration sample applied",
		"offset_ns", nsSigned(offset), "rtd_ns", nsSigned(rtd),
		"temp_cal", tempCal, "cal", cal, "poll_s", uint64(1)<<c.pollExp)
	return offset, nil
}

// ServerFailure records a failed query exchange. Eight consecutive
// failures widen the poll interval one notch.
func (c *Calibrator) ServerFailure() {
	c.failures++
	if c.failures < maxQueryAttempts {
		return
	}
	c.failures = 0
	if c.pollExp < PollIntervalMax {
		c.pollExp++
		c.log.Debugw("calibration server unresponsive, widening poll",
			"poll_s", uint64(1)<<c.pollExp)
	}
}

// rateOver returns min(mag/interval, MaxSlewRate) as a fixed-point
// coefficient, computed in 128 bits so large offsets cannot wrap.
func rateOver(mag, interval uint64) int64 {
	hi, lo := mag>>32, mag<<32
	if hi >= interval {
		return MaxSlewRate
	}
	quo, _ := bits.Div64(hi, lo, interval)
	if quo > uint64(MaxSlewRate) {
		return MaxSlewRate
	}
	return int64(quo)
}

// adaptPollInterval nudges the poll exponent: a run of small offsets
// widens it, repeated large offsets narrow it.
func (c *Calibrator) adaptPollInterval(offset int64) {
	mag := offset
	if mag < 0 {
		mag = -mag
	}
	if clock.Timestamp(mag) > jiggleOffsetMax {
		c.jiggle -= 2
	} else {
		c.jiggle++
	}
	if c.jiggle >= jiggleThreshold {
		c.jiggle = 0
		if c.pollExp < PollIntervalMax {
			c.pollExp++
		}
	} else if c.jiggle <= -jiggleThreshold {
		c.jiggle = 0
		if c.pollExp > PollIntervalMin {
			c.pollExp--
		}
	}
}

func nsSigned(v int64) int64 {
	neg := v < 0
	if neg {
		v = -v
	}
	n := int64(clock.Timestamp(v).Nanoseconds())
	if neg {
		n = -n
	}
	return n
}
