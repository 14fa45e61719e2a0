package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nucleus/internal/config"
	"nucleus/internal/tracestore"
)

// setTestConfig resets the command globals that Execute would normally
// populate from flags.
func setTestConfig(t *testing.T) {
	t.Helper()
	cfg = config.Default()
	runTraceDB = ""
	traceDB = ""
	runParallel = 1
}

const sampleSuite = `
scenarios:
  - name: interrupt smoke
    steps:
      - register: {vector: 33, name: net}
      - raise: 33
      - irq: {core: 0}
      - expect:
          fired: {net: 1}
`

func writeSuite(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "suite.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))
	return path
}

func TestRunSuiteOnceRecordsRuns(t *testing.T) {
	setTestConfig(t)
	dbPath := filepath.Join(t.TempDir(), "trace.db")
	runTraceDB = dbPath

	require.NoError(t, runSuiteOnce(context.Background(), writeSuite(t, sampleSuite)))

	store, err := tracestore.Open(dbPath)
	require.NoError(t, err)
	defer store.Close()

	runs, err := store.Runs(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "interrupt smoke", runs[0].Name)
	assert.True(t, runs[0].Passed)

	evs, err := store.Events(runs[0].ID)
	require.NoError(t, err)
	require.Len(t, evs, 4)
	assert.Equal(t, "register", evs[0].Kind)
	assert.Equal(t, "expect", evs[3].Kind)
}

func TestRunSuiteOnceFailure(t *testing.T) {
	setTestConfig(t)
	path := writeSuite(t, "scenarios:\n  - name: failing\n    steps:\n      - expect: {syscalls: 5}\n")

	err := runSuiteOnce(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 scenarios failed")
}

func TestRunSuiteOnceMissingFile(t *testing.T) {
	setTestConfig(t)
	err := runSuiteOnce(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestRunCommandContinuesPastFailingSuite(t *testing.T) {
	setTestConfig(t)
	dbPath := filepath.Join(t.TempDir(), "trace.db")
	runTraceDB = dbPath

	failing := writeSuite(t, "scenarios:\n  - name: failing\n    steps:\n      - expect: {syscalls: 5}\n")
	err := runRun(&cobra.Command{}, []string{failing, writeSuite(t, sampleSuite)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), failing)

	store, err := tracestore.Open(dbPath)
	require.NoError(t, err)
	defer store.Close()

	runs, err := store.Runs(10)
	require.NoError(t, err)
	assert.Len(t, runs, 2, "the passing suite still runs after a failure")
}

func TestCommandWiring(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "watch", "clock", "vectors", "trace"} {
		assert.True(t, names[want], "missing command %s", want)
	}
	require.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
	require.NotNil(t, runCmd.Flags().Lookup("parallel"))
	require.NotNil(t, runCmd.Flags().Lookup("trace-db"))
	require.NotNil(t, traceCmd.PersistentFlags().Lookup("db"))
	require.NotNil(t, clockDriftCmd.Flags().Lookup("slew-ppm"))
	assert.Equal(t, version, rootCmd.Version)
}

func TestVectorsCommand(t *testing.T) {
	setTestConfig(t)
	require.NoError(t, runVectors(&cobra.Command{}, nil))
}

func TestClockDriftCommand(t *testing.T) {
	setTestConfig(t)
	driftSlewPPM = 500000
	driftSyncAt = 15
	driftSteadyPPM = 200
	driftSeconds = 30
	driftStep = 5
	require.NoError(t, runClockDrift(&cobra.Command{}, nil))

	driftStep = 0
	require.Error(t, runClockDrift(&cobra.Command{}, nil))
}

func TestClockSyncCommand(t *testing.T) {
	setTestConfig(t)
	syncExchanges = 3
	syncOffsetMillis = 250
	syncRTDMillis = 40
	require.NoError(t, runClockSync(&cobra.Command{}, nil))
}

func TestTraceCommandsWithoutDatabase(t *testing.T) {
	setTestConfig(t)
	err := runTraceRuns(&cobra.Command{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no trace database")
}

func TestRenderResultsPlain(t *testing.T) {
	out := renderResults("suite.yaml", nil)
	assert.Contains(t, out, "0/0 passed")
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "abcdefgh", shortID("abcdefgh-1234"))
	assert.Equal(t, "short", shortID("short"))
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmno", 10))
}
