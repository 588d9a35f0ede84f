// Package config loads and validates the engine configuration from TOML.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"tandem"
	"tandem/engine"
	"tandem/shm"
	"tandem/worker"
)

//go:embed sample_config.toml
var sampleConfig string

// Audio contains the output format.
type Audio struct {
	SampleRate int `toml:"sample_rate"`
	BufferSize int `toml:"buffer_size"`
}

// Rings contains the shared ring geometry. Slot counts must be powers of
// two.
type Rings struct {
	AudioSlots   int `toml:"audio_slots"`
	CommandSlots int `toml:"command_slots"`
}

// Supervision contains failover timing, all in milliseconds.
type Supervision struct {
	PollIntervalMS  int `toml:"poll_interval_ms"`
	StaleAfterMS    int `toml:"stale_after_ms"`
	RebuildWindowMS int `toml:"rebuild_window_ms"`
	ReapIntervalS   int `toml:"reap_interval_s"`
}

// Worker contains production-loop tuning passed down to spawned workers.
type Worker struct {
	EarlyMarginMS int `toml:"early_margin_ms"`
	DriftResetMS  int `toml:"drift_reset_ms"`
	MaxCatchUp    int `toml:"max_catch_up"`
	DrainCap      int `toml:"drain_cap"`
}

// Shm contains shared-memory placement.
type Shm struct {
	Dir          string `toml:"dir"`
	RegistryPath string `toml:"registry_path"`
}

// Logging contains log output configuration.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config is the complete engine configuration.
type Config struct {
	Audio       Audio       `toml:"audio"`
	Rings       Rings       `toml:"rings"`
	Supervision Supervision `toml:"supervision"`
	Worker      Worker      `toml:"worker"`
	Shm         Shm         `toml:"shm"`
	Logging     Logging     `toml:"logging"`
}

// Default returns a Config populated with the repository defaults.
func Default() Config {
	return Config{
		Audio: Audio{
			SampleRate: tandem.DefaultSampleRate,
			BufferSize: tandem.DefaultBufferSize,
		},
		Rings: Rings{
			AudioSlots:   8,
			CommandSlots: 256,
		},
		Supervision: Supervision{
			PollIntervalMS:  2,
			StaleAfterMS:    8,
			RebuildWindowMS: 500,
			ReapIntervalS:   30,
		},
		Worker: Worker{
			EarlyMarginMS: 1,
			DriftResetMS:  100,
			MaxCatchUp:    2,
			DrainCap:      256,
		},
		Shm: Shm{
			Dir: shm.DefaultDir,
		},
		Logging: Logging{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads the config at path, applying defaults for anything unset. A
// missing file is not an error; the defaults are used and found reports
// false.
func Load(path string) (cfg Config, found bool, err error) {
	cfg = Default()
	if path == "" {
		return cfg, false, nil
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, false, nil
		}
		return cfg, false, fmt.Errorf("opening config: %w", err)
	}
	defer file.Close()

	decoder := toml.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, true, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, true, err
	}
	return cfg, true, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Audio.SampleRate < 8000 || c.Audio.SampleRate > 192000 {
		return fmt.Errorf("audio.sample_rate %d outside [8000, 192000]", c.Audio.SampleRate)
	}
	if c.Audio.BufferSize < 2 || c.Audio.BufferSize%2 != 0 {
		return fmt.Errorf("audio.buffer_size %d must be even and at least 2", c.Audio.BufferSize)
	}
	if !powerOfTwo(c.Rings.AudioSlots) {
		return fmt.Errorf("rings.audio_slots %d must be a power of two", c.Rings.AudioSlots)
	}
	if !powerOfTwo(c.Rings.CommandSlots) {
		return fmt.Errorf("rings.command_slots %d must be a power of two", c.Rings.CommandSlots)
	}
	if c.Supervision.PollIntervalMS < 1 {
		return fmt.Errorf("supervision.poll_interval_ms %d must be at least 1", c.Supervision.PollIntervalMS)
	}
	period := 1000 * c.Audio.BufferSize / c.Audio.SampleRate
	if c.Supervision.StaleAfterMS <= period {
		return fmt.Errorf("supervision.stale_after_ms %d must exceed the %dms buffer period",
			c.Supervision.StaleAfterMS, period)
	}
	// A worker needs real margin over the staleness threshold to start up.
	if c.Supervision.RebuildWindowMS < 2*c.Supervision.StaleAfterMS {
		return fmt.Errorf("supervision.rebuild_window_ms %d must be at least twice stale_after_ms %d",
			c.Supervision.RebuildWindowMS, c.Supervision.StaleAfterMS)
	}
	if c.Worker.EarlyMarginMS < 0 || c.Worker.DriftResetMS < 1 {
		return fmt.Errorf("worker timing: early_margin_ms %d, drift_reset_ms %d",
			c.Worker.EarlyMarginMS, c.Worker.DriftResetMS)
	}
	if c.Worker.MaxCatchUp < 0 || c.Worker.DrainCap < 1 {
		return fmt.Errorf("worker limits: max_catch_up %d, drain_cap %d",
			c.Worker.MaxCatchUp, c.Worker.DrainCap)
	}
	if c.Shm.Dir == "" {
		return errors.New("shm.dir must be set")
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q not one of console, json", c.Logging.Format)
	}
	return nil
}

// EngineOptions converts the configuration to engine options.
func (c *Config) EngineOptions() engine.Options {
	return engine.Options{
		Dir:          c.Shm.Dir,
		RegistryPath: c.Shm.RegistryPath,
		SampleRate:   c.Audio.SampleRate,
		Frame:        c.Audio.BufferSize,
		AudioSlots:   c.Rings.AudioSlots,
		CommandSlots: c.Rings.CommandSlots,
		Supervisor: engine.SupervisorOptions{
			PollInterval:  time.Duration(c.Supervision.PollIntervalMS) * time.Millisecond,
			StaleAfter:    time.Duration(c.Supervision.StaleAfterMS) * time.Millisecond,
			RebuildWindow: time.Duration(c.Supervision.RebuildWindowMS) * time.Millisecond,
		},
		ReapInterval: time.Duration(c.Supervision.ReapIntervalS) * time.Second,
	}
}

// WorkerOptions converts the tuning to production-loop options.
func (c *Config) WorkerOptions() worker.Options {
	opts := worker.DefaultOptions(c.Audio.SampleRate, c.Audio.BufferSize)
	opts.EarlyMargin = time.Duration(c.Worker.EarlyMarginMS) * time.Millisecond
	opts.DriftReset = time.Duration(c.Worker.DriftResetMS) * time.Millisecond
	opts.MaxCatchUp = c.Worker.MaxCatchUp
	opts.DrainCap = c.Worker.DrainCap
	return opts
}

// WriteSample writes the annotated sample configuration to path, refusing to
// overwrite an existing file.
func WriteSample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	return os.WriteFile(path, []byte(sampleConfig), 0o644)
}

func powerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
