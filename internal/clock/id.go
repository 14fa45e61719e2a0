package clock

import "fmt"

// ID selects a clock domain. Values and order track the unix clock ids
// so they can cross the syscall boundary unchanged.
type ID int

const (
	Realtime ID = iota
	Monotonic
	ProcessCPUTime
	ThreadCPUTime
	MonotonicRaw
	RealtimeCoarse
	MonotonicCoarse
	Boottime
	RealtimeAlarm
	BoottimeAlarm
)

func (id ID) String() string {
	switch id {
	case Realtime:
		return "realtime"
	case Monotonic:
		return "monotonic"
	case ProcessCPUTime:
		return "process_cputime"
	case ThreadCPUTime:
		return "thread_cputime"
	case MonotonicRaw:
		return "monotonic_raw"
	case RealtimeCoarse:
		return "realtime_coarse"
	case MonotonicCoarse:
		return "monotonic_coarse"
	case Boottime:
		return "boottime"
	case RealtimeAlarm:
		return "realtime_alarm"
	case BoottimeAlarm:
		return "boottime_alarm"
	}
	return fmt.Sprintf("clock(%d)", int(id))
}

// IsRealtime reports whether the id is pinned to the wall clock epoch
// and therefore shifts when the epoch steps.
func (id ID) IsRealtime() bool {
	switch id {
	case Realtime, RealtimeCoarse, RealtimeAlarm:
		return true
	}
	return false
}

// ParseID resolves a clock name as printed by String.
func ParseID(s string) (ID, error) {
	for id := Realtime; id <= BoottimeAlarm; id++ {
		if id.String() == s {
			return id, nil
		}
	}
	return 0, fmt.Errorf("unknown clock id %q", s)
}

// SourceID identifies the kind of counter behind the clock, exported to
// readers so they know how the raw value was obtained.
type SourceID int

const (
	SourceSyscall SourceID = iota
	SourceHPET
	SourceTSCStable
	SourcePVClock
)

func (s SourceID) String() string {
	switch s {
	case SourceSyscall:
		return "syscall"
	case SourceHPET:
		return "hpet"
	case SourceTSCStable:
		return "tsc_stable"
	case SourcePVClock:
		return "pvclock"
	}
	return fmt.Sprintf("source(%d)", int(s))
}
