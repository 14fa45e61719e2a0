package clock

import "math/bits"

// calculateDrift scales interval by a Q32.32 calibration coefficient,
// preserving the coefficient's sign. The multiply runs in 128 bits so
// a long interval or a coarse coefficient cannot wrap the product.
func calculateDrift(interval Timestamp, cal int64) int64 {
	mag := uint64(cal)
	if cal < 0 {
		mag = uint64(-cal)
	}
	hi, lo := bits.Mul64(uint64(interval), mag)
	d := int64(hi<<(64-CalibrBits) | lo>>CalibrBits)
	if cal < 0 {
		return -d
	}
	return d
}

// driftAt computes the drift accumulated up to raw without storing it.
// With both coefficients zero there is no correction at all. Otherwise
// the interval since the last update is scaled by the temporary
// coefficient up to the sync boundary and by the steady coefficient
// past it; an interval straddling the boundary is split at it.
func (c *Clock) driftAt(raw Timestamp) int64 {
	d := &c.data
	tempCal, cal := d.tempCal.Load(), d.cal.Load()
	if tempCal == 0 && cal == 0 {
		return 0
	}
	drift := d.lastDrift.Load()
	sync := Timestamp(d.syncComplete.Load())
	last := Timestamp(d.lastRaw.Load())
	if raw > sync {
		if last > sync {
			drift += calculateDrift(raw-last, cal)
		} else {
			drift += calculateDrift(sync-last, tempCal)
			drift += calculateDrift(raw-sync, cal)
		}
	} else {
		drift += calculateDrift(raw-last, tempCal)
	}
	return drift
}

// updateDrift advances the stored drift position to raw and returns the
// drift there. The drift value is stored before the raw position;
// readers may pair the new drift with the old position but never the
// other way around.
func (c *Clock) updateDrift(raw Timestamp) int64 {
	drift := c.driftAt(raw)
	c.data.lastDrift.Store(drift)
	c.data.lastRaw.Store(uint64(raw))
	return drift
}
