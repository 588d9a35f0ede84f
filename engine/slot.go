// Package engine is the supervisor side of the system: it owns the two
// shared-memory slots, spawns and watches the worker processes, routes
// control commands into both slots, and hands finished audio to the output
// device. Rings belong to slots and live for the whole engine run; workers
// belong to roles and are replaceable.
package engine

import (
	"time"

	"tandem/shm"
	"tandem/slot"
)

// Role is what a slot is currently for. Failover changes roles, never rings.
type Role int

const (
	Active Role = iota
	Standby
)

func (r Role) String() string {
	if r == Active {
		return "active"
	}
	return "standby"
}

// Slot pairs a shared-memory segment with the worker currently serving it.
// Name, Segment and Rings are fixed at engine start; Role and WorkerPID
// change over failovers.
type Slot struct {
	Name      string
	Role      Role
	Segment   *shm.Segment
	Rings     *slot.Rings
	WorkerPID int

	lastBeat   uint64
	lastBeatAt time.Time

	// Rebuild accounting for the worker currently in the slot. A fresh
	// spawn is unproven until its heartbeat first advances past spawnBeat;
	// until then it is judged by rebuildUntil, not by staleness.
	spawnBeat    uint64
	rebuildUntil time.Time
	proven       bool
	respawned    bool
}

// observeBeat samples the heartbeat and returns how long it has been since
// the counter last moved.
func (s *Slot) observeBeat(now time.Time) time.Duration {
	if beat := s.Rings.Beat(); beat != s.lastBeat {
		s.lastBeat = beat
		s.lastBeatAt = now
	}
	return now.Sub(s.lastBeatAt)
}

// resetBeat restarts staleness accounting, giving a fresh worker a full
// window before it can be declared dead.
func (s *Slot) resetBeat(now time.Time) {
	s.lastBeat = s.Rings.Beat()
	s.lastBeatAt = now
}

// markSpawn records that a worker was just started in this slot. The worker
// has the whole window to heartbeat for the first time; process startup
// routinely takes longer than the staleness threshold.
func (s *Slot) markSpawn(now time.Time, window time.Duration, respawned bool) {
	s.spawnBeat = s.Rings.Beat()
	s.rebuildUntil = now.Add(window)
	s.proven = false
	s.respawned = respawned
	s.resetBeat(now)
}
