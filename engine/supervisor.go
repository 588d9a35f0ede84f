package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"tandem/worker"
)

// State is the supervisor's view of slot health.
type State int

const (
	// BothHealthy: active and standby workers are both heartbeating.
	BothHealthy State = iota
	// Rebuilding: at least one slot has a freshly spawned worker that has
	// not yet proven itself by heartbeating within the rebuild window.
	Rebuilding
	// Degraded: one slot is vacant and respawning gave up. Audio continues
	// from the surviving worker with no failover protection.
	Degraded
)

func (s State) String() string {
	switch s {
	case BothHealthy:
		return "both-healthy"
	case Rebuilding:
		return "rebuilding"
	case Degraded:
		return "degraded"
	}
	return "unknown"
}

// SupervisorOptions tunes health polling and failover.
type SupervisorOptions struct {
	// PollInterval is how often heartbeats are sampled.
	PollInterval time.Duration
	// StaleAfter is how long a heartbeat may stand still before the worker
	// is declared dead. Must comfortably exceed the production period.
	StaleAfter time.Duration
	// RebuildWindow is how long a freshly spawned worker, initial or
	// respawned, gets to start heartbeating before its slot is given up.
	RebuildWindow time.Duration
}

// DefaultSupervisorOptions returns the production tuning.
func DefaultSupervisorOptions() SupervisorOptions {
	return SupervisorOptions{
		PollInterval:  2 * time.Millisecond,
		StaleAfter:    8 * time.Millisecond,
		RebuildWindow: 500 * time.Millisecond,
	}
}

// SupervisorCounters accumulates lifetime failover statistics.
type SupervisorCounters struct {
	Failovers  uint64
	Respawns   uint64
	Degrades   uint64
	Recoveries uint64
}

// Supervisor watches both slots' heartbeats and runs the failover protocol:
// promote the standby's role the moment the active worker goes silent, then
// respawn a worker into the vacant slot and replay state into it. Promotion
// touches roles only; every ring stays exactly where it is, so the audio
// consumer just starts pulling from the other slot's ring, which the standby
// worker has been filling all along.
type Supervisor struct {
	opts       SupervisorOptions
	dir        string
	slots      [2]*Slot
	spawner    Spawner
	controller *Controller
	clock      worker.Clock
	log        *slog.Logger

	state    State
	active   atomic.Pointer[Slot]
	counters SupervisorCounters
}

// NewSupervisor wires a supervisor over two initialized slots. slots[0] is
// taken as the initial active.
func NewSupervisor(dir string, slots [2]*Slot, spawner Spawner, controller *Controller, clock worker.Clock, log *slog.Logger, opts SupervisorOptions) *Supervisor {
	slots[0].Role = Active
	slots[1].Role = Standby
	s := &Supervisor{
		opts:       opts,
		dir:        dir,
		slots:      slots,
		spawner:    spawner,
		controller: controller,
		clock:      clock,
		log:        log,
		state:      Rebuilding,
	}
	s.active.Store(slots[0])
	return s
}

// ActiveSlot returns the slot currently serving audio. Safe from any
// goroutine; this is what the audio callback reads through.
func (s *Supervisor) ActiveSlot() *Slot { return s.active.Load() }

// State returns the current health state.
func (s *Supervisor) State() State { return s.state }

// Counters returns a snapshot of the failover statistics.
func (s *Supervisor) Counters() SupervisorCounters { return s.counters }

// Start spawns both workers and begins heartbeat accounting. Each starting
// worker gets the full rebuild window to produce its first heartbeat.
func (s *Supervisor) Start() error {
	now := s.clock.Now()
	for _, sl := range s.slots {
		pid, err := s.spawner.Spawn(s.dir, sl.Name)
		if err != nil {
			return err
		}
		sl.WorkerPID = pid
		sl.markSpawn(now, s.opts.RebuildWindow, false)
		s.log.Info("worker spawned", "slot", sl.Name, "role", sl.Role.String(), "pid", pid)
	}
	s.state = s.deriveState()
	return nil
}

// Run polls until ctx is canceled.
func (s *Supervisor) Run(ctx context.Context) {
	for ctx.Err() == nil {
		s.Poll()
		s.clock.Sleep(s.opts.PollInterval)
	}
}

// Poll runs one supervision step. Exported so tests can drive it against a
// fake clock.
func (s *Supervisor) Poll() {
	now := s.clock.Now()

	for _, sl := range s.slots {
		if sl.WorkerPID == 0 {
			continue
		}
		if !sl.proven {
			s.pollUnproven(sl, now)
			continue
		}
		stale := sl.observeBeat(now)
		if stale <= s.opts.StaleAfter {
			continue
		}
		s.log.Error("worker heartbeat lost",
			"slot", sl.Name, "role", sl.Role.String(), "pid", sl.WorkerPID,
			"stale", stale)
		s.handleDeath(sl, now)
	}

	s.state = s.deriveState()
}

// pollUnproven judges a freshly spawned worker by its own rebuild deadline.
// The first heartbeat proves it and hands it over to staleness accounting.
func (s *Supervisor) pollUnproven(sl *Slot, now time.Time) {
	if sl.Rings.Beat() != sl.spawnBeat {
		sl.proven = true
		sl.resetBeat(now)
		if sl.respawned {
			s.counters.Recoveries++
			s.log.Info("standby rebuilt, redundancy restored", "slot", sl.Name)
		}
		return
	}
	if !now.After(sl.rebuildUntil) {
		return
	}
	s.log.Error("rebuild window expired, slot left vacant",
		"slot", sl.Name, "pid", sl.WorkerPID)
	_ = s.spawner.Kill(sl.WorkerPID)
	sl.WorkerPID = 0
	s.counters.Degrades++
	if sl.Role == Active {
		if other := s.peer(sl); other.WorkerPID != 0 {
			sl.Role, other.Role = Standby, Active
			s.active.Store(other)
			s.counters.Failovers++
			s.log.Warn("failover: standby promoted", "slot", other.Name, "pid", other.WorkerPID)
		}
	}
}

// deriveState reads overall health off the slots: any vacant slot means
// degraded, any unproven spawn means rebuilding, otherwise both healthy.
func (s *Supervisor) deriveState() State {
	for _, sl := range s.slots {
		if sl.WorkerPID == 0 {
			return Degraded
		}
	}
	for _, sl := range s.slots {
		if !sl.proven {
			return Rebuilding
		}
	}
	return BothHealthy
}

// handleDeath runs the failover protocol for one dead worker.
func (s *Supervisor) handleDeath(dead *Slot, now time.Time) {
	_ = s.spawner.Kill(dead.WorkerPID) // best effort, it may be long gone
	dead.WorkerPID = 0

	if dead.Role == Active {
		other := s.peer(dead)
		if other.WorkerPID == 0 {
			s.log.Error("both slots vacant, no audio source")
		} else {
			// Promotion is a role swap and an atomic pointer store. The
			// standby worker keeps running untouched; its ring already holds
			// the same audio the dead worker was producing.
			dead.Role, other.Role = Standby, Active
			s.active.Store(other)
			s.counters.Failovers++
			s.log.Warn("failover: standby promoted", "slot", other.Name, "pid", other.WorkerPID)
		}
	}

	s.respawn(dead, now)
}

// respawn starts a replacement worker in the vacant slot and replays the
// mirrored control state into its untouched command ring.
func (s *Supervisor) respawn(sl *Slot, now time.Time) {
	pid, err := s.spawner.Spawn(s.dir, sl.Name)
	if err != nil {
		s.log.Error("respawn failed", "slot", sl.Name, "error", err)
		s.counters.Degrades++
		return
	}
	sl.WorkerPID = pid
	sl.markSpawn(now, s.opts.RebuildWindow, true)
	s.counters.Respawns++

	if err := s.controller.Replay(sl.Rings); err != nil {
		s.log.Error("state replay into respawned worker failed", "slot", sl.Name, "error", err)
	}

	s.log.Info("worker respawned", "slot", sl.Name, "pid", pid,
		"rebuildWindow", s.opts.RebuildWindow)
}

func (s *Supervisor) peer(sl *Slot) *Slot {
	if s.slots[0] == sl {
		return s.slots[1]
	}
	return s.slots[0]
}

// Stop kills both workers.
func (s *Supervisor) Stop() {
	for _, sl := range s.slots {
		if sl.WorkerPID != 0 {
			_ = s.spawner.Kill(sl.WorkerPID)
			sl.WorkerPID = 0
		}
	}
}
