// Package klog provides config-driven categorized logging for the kernel
// model. Each subsystem logs under its own category, and categories can
// be enabled or disabled individually, like per-subsystem debug switches
// in a kernel build.
//
// Before Initialize runs, every category is a no-op. Tests that want
// quiet output simply never initialize.
package klog

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names a logging subsystem.
type Category string

const (
	CategoryBoot     Category = "boot"     // machine bring-up and wiring
	CategoryIRQ      Category = "irq"      // interrupt registration and dispatch
	CategoryTrap     Category = "trap"     // synchronous exception dispatch
	CategoryClock    Category = "clock"    // time queries and calibration state
	CategoryTimer    Category = "timer"    // timer wheel
	CategoryCalib    Category = "calib"    // calibration producer
	CategoryHW       Category = "hw"       // simulated devices
	CategoryScenario Category = "scenario" // scenario runner
	CategoryTrace    Category = "trace"    // trace persistence
)

// Options mirrors the logging section of the config. It is declared
// here rather than imported to keep klog at the bottom of the import
// graph.
type Options struct {
	Verbose    bool
	Level      string
	Categories map[string]bool
	JSONFormat bool
}

var (
	mu      sync.RWMutex
	root    = zap.NewNop()
	byCat   = make(map[Category]*zap.SugaredLogger)
	current Options
)

// Initialize builds the backing logger from o and resets the category
// cache. Call once at startup, before subsystems grab their loggers.
func Initialize(o Options) error {
	level := zapcore.InfoLevel
	if o.Level != "" {
		parsed, err := zapcore.ParseLevel(o.Level)
		if err != nil {
			return err
		}
		level = parsed
	}
	if o.Verbose {
		level = zapcore.DebugLevel
	}

	var enc zapcore.Encoder
	if o.JSONFormat {
		enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	} else {
		enc = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	}
	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), level)

	mu.Lock()
	defer mu.Unlock()
	root = zap.New(core)
	current = o
	byCat = make(map[Category]*zap.SugaredLogger)
	return nil
}

// Get returns the logger for cat. Disabled categories return a no-op
// logger so call sites never nil-check.
func Get(cat Category) *zap.SugaredLogger {
	mu.RLock()
	if l, ok := byCat[cat]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := byCat[cat]; ok {
		return l
	}
	var l *zap.SugaredLogger
	if enabled(current, cat) {
		l = root.Named(string(cat)).Sugar()
	} else {
		l = zap.NewNop().Sugar()
	}
	byCat[cat] = l
	return l
}

// enabled applies the category map; categories absent from the map
// default to on.
func enabled(o Options, cat Category) bool {
	if o.Categories == nil {
		return true
	}
	on, found := o.Categories[string(cat)]
	return !found || on
}

// L returns the root logger for call sites that want typed fields.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// Sync flushes buffered entries. Errors from stderr sync are ignored.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = root.Sync()
}
