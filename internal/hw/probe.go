package hw

import (
	"nucleus/internal/clock"
	"nucleus/internal/klog"
)

// Caps describes which counter hardware a platform advertises.
type Caps struct {
	TSCStable bool
	PVClock   bool
	HPET      bool
}

// Probe selects the best available counter source in capability order:
// stable TSC, then paravirtual clock, then HPET, falling back to a
// manual counter when the platform advertises nothing. The precise flag
// follows the source: invariant-rate hardware is precise, HPET and the
// fallback are not.
func Probe(caps Caps) (clock.CounterSource, clock.SourceID, bool) {
	log := klog.Get(klog.CategoryHW)
	switch {
	case caps.TSCStable:
		log.Debugw("clock source probed", "source", clock.SourceTSCStable.String())
		return NewWallCounter(), clock.SourceTSCStable, true
	case caps.PVClock:
		log.Debugw("clock source probed", "source", clock.SourcePVClock.String())
		return NewWallCounter(), clock.SourcePVClock, true
	case caps.HPET:
		log.Debugw("clock source probed", "source", clock.SourceHPET.String())
		return NewWallCounter(), clock.SourceHPET, false
	}
	log.Debugw("no counter hardware, using manual source")
	return &ManualCounter{}, clock.SourceSyscall, false
}
