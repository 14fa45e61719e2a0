package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"nucleus/internal/tracestore"
)

var (
	traceDB     string
	traceLimit  int
	traceFailed bool
	traceName   string
	traceDays   int
)

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Query the recorded run history",
}

var traceRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded runs, newest first",
	RunE:  runTraceRuns,
}

var traceEventsCmd = &cobra.Command{
	Use:   "events <run-id>",
	Short: "List the step events of one run",
	Args:  cobra.ExactArgs(1),
	RunE:  runTraceEvents,
}

var traceStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Aggregate statistics over the run history",
	RunE:  runTraceStats,
}

var traceCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete runs older than the retention period",
	RunE:  runTraceCleanup,
}

func openTraceStore() (*tracestore.Store, error) {
	path := traceDBPath(traceDB)
	if path == "" {
		return nil, fmt.Errorf("no trace database configured; set trace.database_path or pass --db")
	}
	return tracestore.Open(path)
}

func runTraceRuns(cmd *cobra.Command, args []string) error {
	store, err := openTraceStore()
	if err != nil {
		return err
	}
	defer store.Close()

	var runs []tracestore.Run
	switch {
	case traceName != "":
		runs, err = store.RunsByName(traceName, traceLimit)
	case traceFailed:
		runs, err = store.FailedRuns(traceLimit)
	default:
		runs, err = store.Runs(traceLimit)
	}
	if err != nil {
		return err
	}

	var rows [][]string
	for _, r := range runs {
		result := "pass"
		if !r.Passed {
			result = fmt.Sprintf("fail@%d", r.FailedStep)
		}
		rows = append(rows, []string{
			shortID(r.ID),
			r.Name,
			result,
			fmt.Sprintf("%dms", r.DurationMs),
			r.CreatedAt.Format(time.RFC3339),
			truncate(r.Err, 48),
		})
	}
	fmt.Print(renderTable([]string{"RUN", "SCENARIO", "RESULT", "DURATION", "WHEN", "ERROR"}, rows))
	return nil
}

func runTraceEvents(cmd *cobra.Command, args []string) error {
	store, err := openTraceStore()
	if err != nil {
		return err
	}
	defer store.Close()

	evs, err := store.Events(args[0])
	if err != nil {
		return err
	}
	if len(evs) == 0 {
		fmt.Println(mutedStyle.Render("no events recorded for run " + args[0]))
		return nil
	}

	var rows [][]string
	for _, e := range evs {
		rows = append(rows, []string{
			fmt.Sprintf("%d", e.Seq),
			e.Kind,
			truncate(e.Detail, 72),
		})
	}
	fmt.Print(renderTable([]string{"STEP", "OP", "DETAIL"}, rows))
	return nil
}

func runTraceStats(cmd *cobra.Command, args []string) error {
	store, err := openTraceStore()
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.Stats()
	if err != nil {
		return err
	}

	fmt.Printf("%s %v\n", mutedStyle.Render("total runs:"), stats["total_runs"])
	if rate, ok := stats["pass_rate"].(float64); ok {
		fmt.Printf("%s %.1f%%\n", mutedStyle.Render("pass rate: "), rate*100)
	}
	if avg, ok := stats["avg_duration_ms"].(float64); ok {
		fmt.Printf("%s %.1fms\n", mutedStyle.Render("avg run:   "), avg)
	}
	if byScenario, ok := stats["by_scenario"].(map[string]int64); ok && len(byScenario) > 0 {
		var rows [][]string
		for name, count := range byScenario {
			rows = append(rows, []string{name, fmt.Sprintf("%d", count)})
		}
		fmt.Print(renderTable([]string{"SCENARIO", "RUNS"}, rows))
	}
	return nil
}

func runTraceCleanup(cmd *cobra.Command, args []string) error {
	store, err := openTraceStore()
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.Cleanup(traceDays)
	if err != nil {
		return err
	}
	fmt.Printf("deleted %d runs older than %d days\n", n, traceDays)
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
