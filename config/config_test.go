package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, found, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if found {
		t.Error("found reported for a missing file")
	}
	if cfg != Default() {
		t.Error("missing file did not yield defaults")
	}
}

func TestLoadOverridesAndKeepsRest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := "[audio]\nsample_rate = 44100\n\n[logging]\nformat = \"json\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, found, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !found {
		t.Error("found not reported")
	}
	if cfg.Audio.SampleRate != 44100 {
		t.Errorf("sample_rate = %d; want 44100", cfg.Audio.SampleRate)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("format = %q; want json", cfg.Logging.Format)
	}
	if cfg.Rings.AudioSlots != Default().Rings.AudioSlots {
		t.Error("unset section lost its default")
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[audio]\nsample_rte = 44100\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := Load(path); err == nil {
		t.Error("typoed key accepted")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mangle func(*Config)
	}{
		{"odd buffer", func(c *Config) { c.Audio.BufferSize = 255 }},
		{"audio slots not power of two", func(c *Config) { c.Rings.AudioSlots = 6 }},
		{"command slots not power of two", func(c *Config) { c.Rings.CommandSlots = 100 }},
		{"stale under period", func(c *Config) { c.Supervision.StaleAfterMS = 2 }},
		{"rebuild window too tight", func(c *Config) { c.Supervision.RebuildWindowMS = 10 }},
		{"negative early margin", func(c *Config) { c.Worker.EarlyMarginMS = -1 }},
		{"zero drain cap", func(c *Config) { c.Worker.DrainCap = 0 }},
		{"empty shm dir", func(c *Config) { c.Shm.Dir = "" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mangle(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("invalid config accepted")
			}
		})
	}
}

func TestWorkerOptions(t *testing.T) {
	cfg := Default()
	cfg.Worker.DriftResetMS = 250
	cfg.Worker.MaxCatchUp = 4
	opts := cfg.WorkerOptions()
	if opts.SampleRate != cfg.Audio.SampleRate || opts.Frame != cfg.Audio.BufferSize {
		t.Errorf("format not carried: %+v", opts)
	}
	if opts.DriftReset != 250*time.Millisecond || opts.MaxCatchUp != 4 {
		t.Errorf("tuning not carried: %+v", opts)
	}
}

func TestSampleConfigMatchesDefaults(t *testing.T) {
	cfg := Default()
	if err := toml.Unmarshal([]byte(sampleConfig), &cfg); err != nil {
		t.Fatalf("sample config does not parse: %v", err)
	}
	want := Default()
	// The sample leaves registry_path empty on purpose.
	if cfg != want {
		t.Errorf("sample config diverges from defaults:\n got %+v\nwant %+v", cfg, want)
	}
}

func TestWriteSampleRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := WriteSample(path); err != nil {
		t.Fatalf("WriteSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "[supervision]") {
		t.Error("sample missing supervision section")
	}
	if err := WriteSample(path); err == nil {
		t.Error("overwrote an existing file")
	}
}
