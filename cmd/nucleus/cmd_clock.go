package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"nucleus/internal/calib"
	"nucleus/internal/clock"
	"nucleus/internal/config"
	"nucleus/internal/machine"
)

var (
	driftSlewPPM   int64
	driftSyncAt    uint64
	driftSteadyPPM int64
	driftSeconds   uint64
	driftStep      uint64

	syncExchanges    int
	syncOffsetMillis int64
	syncRTDMillis    uint64
)

var clockCmd = &cobra.Command{
	Use:   "clock",
	Short: "Inspect clock calibration behavior",
}

var clockDriftCmd = &cobra.Command{
	Use:   "drift",
	Short: "Show two-phase drift correction over simulated time",
	Long: `Applies a calibration to a deterministic machine and tabulates the raw
counter against the corrected monotonic clock: the temporary rate until
the sync point, the steady rate after it.`,
	RunE: runClockDrift,
}

var clockSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Simulate calibration exchanges against a skewed server",
	Long: `Runs query exchanges against a simulated time server whose clock leads
ours by a fixed offset, feeding each sample through the calibrator. The
measured offset shrinks as the slew catches up.`,
	RunE: runClockSync,
}

func runClockDrift(cmd *cobra.Command, args []string) error {
	if driftStep == 0 {
		return fmt.Errorf("step must be positive")
	}
	c := config.Default()
	c.Clock.Deterministic = true
	m, err := machine.New(c, nil)
	if err != nil {
		return err
	}

	m.Clock.Adjust(0, ppmToCal(driftSlewPPM), clock.Seconds(driftSyncAt), ppmToCal(driftSteadyPPM))

	var rows [][]string
	for t := uint64(0); t <= driftSeconds; t += driftStep {
		if t > 0 {
			m.Advance(clock.Seconds(driftStep))
		}
		raw := m.Clock.Raw()
		mono := m.Clock.Now(clock.Monotonic)
		phase := "steady"
		if raw <= clock.Seconds(driftSyncAt) {
			phase = "slew"
		}
		rows = append(rows, []string{
			fmtTS(raw),
			fmtTS(mono),
			fmt.Sprintf("%+dms", fixedToMillis(int64(mono)-int64(raw))),
			phase,
		})
	}
	fmt.Print(renderTable([]string{"RAW", "MONOTONIC", "DRIFT", "PHASE"}, rows))
	return nil
}

func runClockSync(cmd *cobra.Command, args []string) error {
	c := config.Default()
	c.Clock.Deterministic = true
	c.Clock.RTCEpoch = 1000
	m, err := machine.New(c, nil)
	if err != nil {
		return err
	}
	cal := calib.New(m.Clock)

	// The server runs at the true rate, leading our wall clock by the
	// configured offset at the start.
	lead := millisToFixed(syncOffsetMillis)
	base := clock.Timestamp(int64(m.Clock.Now(clock.Realtime)) + lead)
	raw0 := m.Clock.Raw()
	serverNow := func() clock.Timestamp {
		return base + m.Clock.Raw() - raw0
	}

	rtd := clock.Milliseconds(syncRTDMillis)
	var rows [][]string
	for i := 0; i < syncExchanges; i++ {
		m.Advance(cal.PollInterval())

		origin := m.Clock.Now(clock.Realtime)
		m.Advance(rtd / 2)
		mid := serverNow()
		m.Advance(rtd - rtd/2)
		arrival := m.Clock.Now(clock.Realtime)

		offset, err := cal.Process(calib.Sample{
			Origin:   origin,
			Receive:  mid,
			Transmit: mid,
			Arrival:  arrival,
		})
		status := "applied"
		if err != nil {
			cal.ServerFailure()
			status = err.Error()
		}

		d := m.Clock.Data()
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			fmt.Sprintf("%ds", uint64(1)<<cal.PollExponent()),
			fmt.Sprintf("%+dms", fixedToMillis(offset)),
			fmt.Sprintf("%+dppm", calToPPM(d.TempCal())),
			fmt.Sprintf("%+dppm", calToPPM(d.Cal())),
			status,
		})
	}
	fmt.Print(renderTable([]string{"EXCHANGE", "POLL", "OFFSET", "TEMP CAL", "STEADY CAL", "STATUS"}, rows))
	return nil
}

func fmtTS(t clock.Timestamp) string {
	return fmt.Sprintf("%d.%03ds", t.Seconds(), uint64(t.Fraction())*1000>>clock.CalibrBits)
}

func fixedToMillis(v int64) int64 {
	if v < 0 {
		return -int64(uint64(-v) * 1000 >> clock.CalibrBits)
	}
	return int64(uint64(v) * 1000 >> clock.CalibrBits)
}

func millisToFixed(ms int64) int64 {
	if ms < 0 {
		return -int64(clock.Milliseconds(uint64(-ms)))
	}
	return int64(clock.Milliseconds(uint64(ms)))
}

func ppmToCal(ppm int64) int64 {
	return ppm << clock.CalibrBits / 1_000_000
}

func calToPPM(cal int64) int64 {
	if cal < 0 {
		return -int64(uint64(-cal) * 1_000_000 >> clock.CalibrBits)
	}
	return int64(uint64(cal) * 1_000_000 >> clock.CalibrBits)
}
