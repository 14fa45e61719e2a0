package scenario

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestParseSuite(t *testing.T) {
	doc := `
version: 1
scenarios:
  - name: basic interrupt
    steps:
      - register: {vector: 33, name: net}
      - raise: 33
      - irq: {core: 0}
      - expect:
          fired: {net: 1}
  - name: fault halts
    machine: {cores: 2, rtc_epoch: 1000}
    steps:
      - fault: {core: 1, class: data_abort, write: true}
        expect_halt: no fault handler
`
	s, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.Len(t, s.Scenarios, 2)

	first := s.Scenarios[0]
	assert.Equal(t, "basic interrupt", first.Name)
	require.Len(t, first.Steps, 4)
	require.NotNil(t, first.Steps[0].Register)
	assert.Equal(t, uint64(33), first.Steps[0].Register.Vector)
	assert.Equal(t, "net", first.Steps[0].Register.Name)
	require.NotNil(t, first.Steps[1].Raise)
	assert.Equal(t, uint64(33), *first.Steps[1].Raise)
	require.NotNil(t, first.Steps[3].Expect)
	assert.Equal(t, map[string]int{"net": 1}, first.Steps[3].Expect.Fired)

	second := s.Scenarios[1]
	assert.Equal(t, 2, second.Machine.Cores)
	assert.Equal(t, uint64(1000), second.Machine.RTCEpoch)
	require.NotNil(t, second.Steps[0].Fault)
	assert.True(t, second.Steps[0].Fault.Write)
	assert.Equal(t, "no fault handler", second.Steps[0].ExpectHalt)
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("scenarios: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse scenario suite")
}

func TestLoadSuiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "suite.yaml")
	doc := "version: 1\nscenarios:\n  - name: empty\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Version)
	require.Len(t, s.Scenarios, 1)

	_, err = Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func runDoc(t *testing.T, doc string) []Result {
	t.Helper()
	s, err := Parse([]byte(doc))
	require.NoError(t, err)
	return NewRunner().RunSuite(context.Background(), s, 1)
}

func TestInterruptScenario(t *testing.T) {
	rs := runDoc(t, `
scenarios:
  - name: edge interrupt round trip
    steps:
      - register: {vector: 33, name: net}
      - raise: 33
      - expect:
          pending: {vector: 33, value: true}
      - irq: {core: 0}
      - expect:
          fired: {net: 1}
          run_loops: {core: 0, count: 1}
          state: {core: 0, state: idle}
          pending: {vector: 33, value: false}
          registered: {vector: 33, value: true}
      - unregister: 33
      - expect:
          registered: {vector: 33, value: false}
`)
	require.Len(t, rs, 1)
	assert.True(t, rs[0].Passed, rs[0].Err)
	assert.Zero(t, rs[0].FailedStep)
	assert.NotEmpty(t, rs[0].RunID)
}

func TestSyscallScenario(t *testing.T) {
	rs := runDoc(t, `
scenarios:
  - name: syscall reaches entry point
    steps:
      - syscall: {core: 0, number: 42}
      - expect:
          syscalls: 1
          state: {core: 0, state: kernel}
`)
	require.True(t, rs[0].Passed, rs[0].Err)
}

func TestTimerScenario(t *testing.T) {
	rs := runDoc(t, `
scenarios:
  - name: timer line raised at deadline
    steps:
      - timer: {name: tick, seconds: 5}
      - advance: {seconds: 4}
      - expect:
          pending: {vector: 27, value: false}
          fired: {tick: 0}
      - advance: {seconds: 1}
      - expect:
          pending: {vector: 27, value: true}
      - irq: {core: 0}
      - expect:
          fired: {tick: 1}
          monotonic_seconds: 5
          state: {core: 0, state: idle}
`)
	require.True(t, rs[0].Passed, rs[0].Err)
}

func TestWallClockScenario(t *testing.T) {
	rs := runDoc(t, `
scenarios:
  - name: rtc step moves realtime only
    machine: {rtc_epoch: 1000}
    steps:
      - expect:
          realtime_seconds: 1000
      - advance: {seconds: 50}
      - expect:
          realtime_seconds: 1050
          monotonic_seconds: 50
      - reset_rtc: {wallclock_seconds: 2000}
      - expect:
          realtime_seconds: 2000
          monotonic_seconds: 50
`)
	require.True(t, rs[0].Passed, rs[0].Err)
}

func TestAdjustScenario(t *testing.T) {
	rs := runDoc(t, `
scenarios:
  - name: slew accumulates drift
    steps:
      - advance: {seconds: 10}
      - adjust: {wallclock_seconds: 500, temp_cal_ppm: 500000, sync_seconds: 20}
      - advance: {seconds: 10}
      - expect:
          monotonic_seconds: 25
`)
	require.True(t, rs[0].Passed, rs[0].Err)
}

func TestHandledFaultScenario(t *testing.T) {
	rs := runDoc(t, `
scenarios:
  - name: handled fault falls to run loop
    steps:
      - fault: {core: 0, class: data_abort, name: pf, write: true, far: 0xdead, handled: true}
      - expect:
          fired: {pf: 1}
          run_loops: {core: 0, count: 1}
          state: {core: 0, state: idle}
`)
	require.True(t, rs[0].Passed, rs[0].Err)
}

func TestFireScenario(t *testing.T) {
	rs := runDoc(t, `
scenarios:
  - name: fire raises and drains in one step
    steps:
      - register: {vector: 40, name: disk}
      - fire: 40
      - expect:
          fired: {disk: 1}
          pending: {vector: 40, value: false}
          run_loops: {core: 0, count: 1}
          state: {core: 0, state: idle}
`)
	require.True(t, rs[0].Passed, rs[0].Err)
}

func TestFallbackHandlerScenario(t *testing.T) {
	rs := runDoc(t, `
scenarios:
  - name: fallback absorbs kernel frame fault
    steps:
      - install_fallback: fb
      - fault: {core: 0, class: data_abort, kernel_frame: true}
      - expect:
          fired: {fb: 1}
          run_loops: {core: 0, count: 1}
          state: {core: 0, state: idle}
`)
	require.True(t, rs[0].Passed, rs[0].Err)
}

func TestRawSyndromeFault(t *testing.T) {
	rs := runDoc(t, `
scenarios:
  - name: raw esr with frame contents
    steps:
      - fault: {core: 0, esr: 0x96000000, elr: 0x1234, regs: {0: 0xabcd}}
        expect_halt: no fault handler
`)
	require.True(t, rs[0].Passed, rs[0].Err)
	assert.Contains(t, rs[0].Diagnostic, "0x0000000000001234")
	assert.Contains(t, rs[0].Diagnostic, "0x000000000000abcd")
}

func TestFaultWithoutClassOrESR(t *testing.T) {
	rs := runDoc(t, `
scenarios:
  - name: underspecified fault
    steps:
      - fault: {core: 0}
`)
	require.False(t, rs[0].Passed)
	assert.Contains(t, rs[0].Err, "class or a raw esr")
}

func TestServiceTimersScenario(t *testing.T) {
	rs := runDoc(t, `
scenarios:
  - name: direct service leaves line asserted
    steps:
      - timer: {name: tick, seconds: 5}
      - advance: {seconds: 7}
      - expect:
          pending: {vector: 27, value: true}
      - service_timers: true
      - expect:
          fired: {tick: 1}
          pending: {vector: 27, value: true}
      - irq: {core: 0}
      - expect:
          fired: {tick: 1}
          pending: {vector: 27, value: false}
`)
	require.True(t, rs[0].Passed, rs[0].Err)
}

func TestExpectedHaltScenario(t *testing.T) {
	rs := runDoc(t, `
scenarios:
  - name: unhandled fault halts
    steps:
      - fault: {core: 0, class: inst_abort, user: true}
        expect_halt: no fault handler
      - expect:
          state: {core: 0, state: halted}
`)
	require.True(t, rs[0].Passed, rs[0].Err)
	assert.Contains(t, rs[0].Diagnostic, "no fault handler for frame")
}

func TestUnexpectedHaltFailsStep(t *testing.T) {
	rs := runDoc(t, `
scenarios:
  - name: surprise halt
    steps:
      - advance: {seconds: 1}
      - fault: {core: 0, class: pc_align}
`)
	require.False(t, rs[0].Passed)
	assert.Equal(t, 2, rs[0].FailedStep)
	assert.Contains(t, rs[0].Err, "unexpected halt")
}

func TestMissingHaltFailsStep(t *testing.T) {
	rs := runDoc(t, `
scenarios:
  - name: halt never comes
    steps:
      - advance: {seconds: 1}
        expect_halt: anything
`)
	require.False(t, rs[0].Passed)
	assert.Contains(t, rs[0].Err, "expected halt containing")
}

func TestStepValidation(t *testing.T) {
	rs := runDoc(t, `
scenarios:
  - name: two ops in one step
    steps:
      - raise: 33
        lower: 33
`)
	require.False(t, rs[0].Passed)
	assert.Equal(t, 1, rs[0].FailedStep)
	assert.Contains(t, rs[0].Err, "exactly one operation")
}

func TestBadCoreFailsStep(t *testing.T) {
	rs := runDoc(t, `
scenarios:
  - name: core out of range
    steps:
      - irq: {core: 3}
`)
	require.False(t, rs[0].Passed)
	assert.Contains(t, rs[0].Err, "out of range")
}

func TestUnknownFaultClass(t *testing.T) {
	rs := runDoc(t, `
scenarios:
  - name: bad class
    steps:
      - fault: {core: 0, class: page_storm}
`)
	require.False(t, rs[0].Passed)
	assert.Contains(t, rs[0].Err, "unknown fault class")
}

func TestRunSuiteParallel(t *testing.T) {
	doc := `
scenarios:
  - name: a
    steps:
      - advance: {seconds: 1}
      - expect: {monotonic_seconds: 1}
  - name: b
    steps:
      - syscall: {core: 0, number: 7}
      - expect: {syscalls: 1}
  - name: c
    steps:
      - register: {vector: 40, name: disk}
      - raise: 40
      - irq: {core: 0}
      - expect:
          fired: {disk: 1}
`
	s, err := Parse([]byte(doc))
	require.NoError(t, err)

	rs := NewRunner().RunSuite(context.Background(), s, 2)
	require.Len(t, rs, 3)
	assert.True(t, Passed(rs))
	assert.Equal(t, []string{"a", "b", "c"}, []string{rs[0].Name, rs[1].Name, rs[2].Name})
	assert.NotEqual(t, rs[0].RunID, rs[1].RunID)
	assert.NotEqual(t, rs[1].RunID, rs[2].RunID)
}

func TestRunSuiteCanceledContext(t *testing.T) {
	s, err := Parse([]byte("scenarios:\n  - name: never runs\n"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rs := NewRunner().RunSuite(ctx, s, 1)
	require.Len(t, rs, 1)
	assert.False(t, rs[0].Passed)
	assert.Contains(t, rs[0].Err, "context canceled")
}
