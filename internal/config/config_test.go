package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearNucleusEnv blanks every override variable so ambient environment
// cannot leak into load results.
func clearNucleusEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"NUCLEUS_CORES", "NUCLEUS_DETERMINISTIC", "NUCLEUS_RTC_EPOCH",
		"NUCLEUS_LOG_LEVEL", "NUCLEUS_LOG_FORMAT", "NUCLEUS_LOG_CATEGORIES",
		"NUCLEUS_TRACE_DB",
	} {
		t.Setenv(k, "")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 1, cfg.Machine.Cores)
	assert.True(t, cfg.Clock.TSCStable)
	assert.False(t, cfg.Clock.Deterministic)
	assert.Equal(t, uint64(0), cfg.Clock.RTCEpoch)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Empty(t, cfg.Trace.DatabasePath)
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	clearNucleusEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadParsesYAML(t *testing.T) {
	clearNucleusEnv(t)

	path := filepath.Join(t.TempDir(), "nucleus.yaml")
	doc := `
machine:
  cores: 4
clock:
  deterministic: true
  rtc_epoch: 1600000000
logging:
  level: debug
  categories:
    irq: true
    hw: false
trace:
  database_path: /tmp/trace.db
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Machine.Cores)
	assert.True(t, cfg.Clock.Deterministic)
	assert.Equal(t, uint64(1600000000), cfg.Clock.RTCEpoch)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, map[string]bool{"irq": true, "hw": false}, cfg.Logging.Categories)
	assert.Equal(t, "/tmp/trace.db", cfg.Trace.DatabasePath)

	// Unmentioned sections keep their defaults.
	assert.True(t, cfg.Clock.TSCStable)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("machine: [not a map"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestSaveRoundTrip(t *testing.T) {
	clearNucleusEnv(t)

	path := filepath.Join(t.TempDir(), "sub", "nucleus.yaml")

	cfg := Default()
	cfg.Machine.Cores = 2
	cfg.Logging.Format = "json"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults valid", func(c *Config) {}, ""},
		{"zero cores", func(c *Config) { c.Machine.Cores = 0 }, "invalid core count"},
		{"too many cores", func(c *Config) { c.Machine.Cores = 65 }, "invalid core count"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "invalid log format"},
		{"empty format ok", func(c *Config) { c.Logging.Format = "" }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLogOptions(t *testing.T) {
	cfg := Default()
	cfg.Logging.Verbose = true
	cfg.Logging.Level = "warn"
	cfg.Logging.Format = "json"
	cfg.Logging.Categories = map[string]bool{"trap": false}

	o := cfg.LogOptions()
	assert.True(t, o.Verbose)
	assert.Equal(t, "warn", o.Level)
	assert.True(t, o.JSONFormat)
	assert.Equal(t, map[string]bool{"trap": false}, o.Categories)
}
