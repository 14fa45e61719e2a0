package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"nucleus/internal/klog"
)

const watchDebounce = 300 * time.Millisecond

var watchCmd = &cobra.Command{
	Use:   "watch <suite.yaml>",
	Short: "Re-run a scenario suite whenever the file changes",
	Long: `Runs the suite once, then watches the file and re-runs it after every
save. A failing run keeps the watch alive. Stop with ctrl-c.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	path := args[0]
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := klog.Get(klog.CategoryScenario)

	if err := runSuiteOnce(ctx, path); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory; editors replace files on save, so events
	// for the file itself would be lost across the rename.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	log.Infow("watching suite", "path", path)

	base := filepath.Base(path)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var lastEvent time.Time
	dirty := false
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			lastEvent = time.Now()
			dirty = true

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warnw("watch error", "error", err)

		case <-ticker.C:
			if !dirty || time.Since(lastEvent) < watchDebounce {
				continue
			}
			dirty = false
			log.Infow("suite changed", "path", path)
			if err := runSuiteOnce(ctx, path); err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
		}
	}
}
