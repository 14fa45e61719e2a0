package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"nucleus/internal/scenario"
	"nucleus/internal/tracestore"
)

var (
	runParallel int
	runTraceDB  string
)

var runCmd = &cobra.Command{
	Use:   "run <suite.yaml> [more suites...]",
	Short: "Run scenario suites",
	Long: `Loads YAML scenario suites and runs every scenario against its own
deterministic machine. Results are printed per scenario and recorded to
the trace database when one is configured.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var firstErr error
	for _, path := range args {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := runSuiteOnce(ctx, path); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", path, err)
		}
	}
	return firstErr
}

func runSuiteOnce(ctx context.Context, path string) error {
	suite, err := scenario.Load(path)
	if err != nil {
		return err
	}

	rs := scenario.NewRunner().RunSuite(ctx, suite, runParallel)
	fmt.Print(renderResults(path, rs))

	if dbPath := traceDBPath(runTraceDB); dbPath != "" {
		if err := recordResults(dbPath, path, suite, rs); err != nil {
			return fmt.Errorf("failed to record runs: %w", err)
		}
	}

	if !scenario.Passed(rs) {
		failed := 0
		for _, r := range rs {
			if !r.Passed {
				failed++
			}
		}
		return fmt.Errorf("%d of %d scenarios failed", failed, len(rs))
	}
	return nil
}

// traceDBPath resolves the database path: flag first, config second,
// empty when tracing is off.
func traceDBPath(flag string) string {
	if flag != "" {
		return flag
	}
	return cfg.Trace.DatabasePath
}

func recordResults(dbPath, suitePath string, s *scenario.Suite, rs []scenario.Result) error {
	store, err := tracestore.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	for i, r := range rs {
		if r.RunID == "" {
			continue
		}
		if err := store.RecordRun(tracestore.Run{
			ID:         r.RunID,
			Suite:      suitePath,
			Name:       r.Name,
			Passed:     r.Passed,
			FailedStep: r.FailedStep,
			Err:        r.Err,
			DurationMs: r.DurationMs,
		}); err != nil {
			return err
		}
		if err := store.RecordEvents(r.RunID, stepEvents(s.Scenarios[i], r)); err != nil {
			return err
		}
	}
	return nil
}

// stepEvents describes the steps that actually ran, plus any fault
// diagnostic the machine emitted.
func stepEvents(sc scenario.Scenario, r scenario.Result) []tracestore.Event {
	var evs []tracestore.Event
	for i, st := range sc.Steps {
		if r.FailedStep > 0 && i+1 > r.FailedStep {
			break
		}
		kind, detail := st.Describe()
		evs = append(evs, tracestore.Event{Kind: kind, Detail: detail})
	}
	if r.Diagnostic != "" {
		evs = append(evs, tracestore.Event{Kind: "diagnostic", Detail: r.Diagnostic})
	}
	return evs
}
