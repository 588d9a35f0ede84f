package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"tandem"
	"tandem/shm"
	"tandem/slot"
	"tandem/wire"
	"tandem/worker"
)

// Options configures an engine instance.
type Options struct {
	// Dir is where slot segments live, /dev/shm in production.
	Dir string
	// RegistryPath is the segment registry file; empty derives it from Dir.
	RegistryPath string

	SampleRate   int
	Frame        int
	AudioSlots   int
	CommandSlots int

	Supervisor SupervisorOptions
	// ReapInterval is how often leaked segments from dead processes are
	// scanned for. Zero disables the reaper.
	ReapInterval time.Duration
}

// DefaultOptions returns the production configuration.
func DefaultOptions() Options {
	return Options{
		Dir:          shm.DefaultDir,
		SampleRate:   tandem.DefaultSampleRate,
		Frame:        tandem.DefaultBufferSize,
		AudioSlots:   8,
		CommandSlots: 256,
		Supervisor:   DefaultSupervisorOptions(),
		ReapInterval: 30 * time.Second,
	}
}

// Engine owns the whole dual-slot arrangement for one session: two shared
// segments, the workers serving them, the command router and the supervisor.
type Engine struct {
	opts       Options
	log        *slog.Logger
	registry   *shm.Registry
	slots      [2]*Slot
	controller *Controller
	supervisor *Supervisor
	reader     *ActiveReader

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates both slot segments and wires the supervision stack. Workers
// are not started until Start.
func New(opts Options, spawner Spawner, log *slog.Logger) (*Engine, error) {
	if opts.RegistryPath == "" {
		opts.RegistryPath = filepath.Join(opts.Dir, "tandem-segments.json")
	}
	registry, err := shm.OpenRegistry(opts.RegistryPath)
	if err != nil {
		return nil, fmt.Errorf("opening segment registry: %w", err)
	}

	e := &Engine{opts: opts, log: log, registry: registry}
	size := slot.Size(opts.AudioSlots, opts.Frame, opts.CommandSlots, wire.PacketSize)
	for i, label := range []string{"a", "b"} {
		name := shm.NewName("tandem", label)
		seg, err := shm.Create(opts.Dir, name, size)
		if err != nil {
			e.cleanup()
			return nil, fmt.Errorf("creating slot segment %s: %w", name, err)
		}
		rings, err := slot.Init(seg.Bytes(), opts.AudioSlots, opts.Frame, opts.CommandSlots, wire.PacketSize)
		if err != nil {
			seg.Close()
			shm.Unlink(opts.Dir, name)
			e.cleanup()
			return nil, fmt.Errorf("initializing slot %s: %w", name, err)
		}
		if err := registry.Add(name, size, os.Getpid()); err != nil {
			log.Warn("registering segment", "name", name, "error", err)
		}
		e.slots[i] = &Slot{Name: name, Segment: seg, Rings: rings}
	}

	e.controller = NewController([]*slot.Rings{e.slots[0].Rings, e.slots[1].Rings}, log)
	e.supervisor = NewSupervisor(opts.Dir, e.slots, spawner, e.controller, worker.RealClock(), log, opts.Supervisor)
	e.reader = NewActiveReader(e.supervisor, opts.Frame)
	return e, nil
}

// Start spawns both workers and begins supervision.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.supervisor.Start(); err != nil {
		e.cleanup()
		return err
	}
	ctx, e.cancel = context.WithCancel(ctx)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.supervisor.Run(ctx)
	}()

	if e.opts.ReapInterval > 0 {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.reapLoop(ctx)
		}()
	}
	return nil
}

func (e *Engine) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(e.opts.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := e.registry.Reap(e.opts.Dir, shm.PidAlive, e.log); err != nil {
				e.log.Warn("segment reap", "error", err)
			} else if n > 0 {
				e.log.Info("reclaimed leaked segments", "count", n)
			}
		}
	}
}

// Controller returns the command router.
func (e *Engine) Controller() *Controller { return e.controller }

// Supervisor returns the health monitor.
func (e *Engine) Supervisor() *Supervisor { return e.supervisor }

// Reader returns the audio output reader for the device to pull from.
func (e *Engine) Reader() *ActiveReader { return e.reader }

// Close stops supervision, kills both workers and removes the segments.
func (e *Engine) Close() error {
	if e.cancel != nil {
		e.cancel()
		e.wg.Wait()
	}
	e.supervisor.Stop()
	e.cleanup()
	return nil
}

func (e *Engine) cleanup() {
	for _, sl := range e.slots {
		if sl == nil {
			continue
		}
		sl.Segment.Close()
		if err := shm.Unlink(e.opts.Dir, sl.Name); err != nil {
			e.log.Warn("unlinking segment", "name", sl.Name, "error", err)
		}
		if err := e.registry.Remove(sl.Name); err != nil {
			e.log.Warn("deregistering segment", "name", sl.Name, "error", err)
		}
	}
}
