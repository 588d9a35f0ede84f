// Package worker implements the per-process audio production loop: drain the
// slot's command ring, run the compiled module graph, write the finished
// buffer into the slot's audio ring, all against an absolute monotonic
// deadline schedule. One worker process owns exactly one slot at a time; the
// slot's rings outlive it.
package worker

import (
	"context"
	"log/slog"
	"time"

	"tandem"
	"tandem/graph"
	"tandem/slot"
	"tandem/wire"
)

type (
	// Options tunes the production loop. The zero value is unusable; use
	// DefaultOptions and override.
	Options struct {
		SampleRate int
		Frame      int

		// EarlyMargin allows producing up to this much before the deadline,
		// absorbing scheduler jitter instead of oscillating around it.
		EarlyMargin time.Duration

		// DriftReset is how far behind the schedule may fall before it is
		// re-anchored at now instead of chased. Unconstrained catch-up
		// destabilizes ring occupancy, so beyond this the backlog is
		// abandoned.
		DriftReset time.Duration

		// MaxCatchUp bounds how many extra buffers one cycle may produce
		// when moderately behind schedule.
		MaxCatchUp int

		// MaxSleep caps a single sleep so the loop stays responsive to
		// commands even when the deadline is far away.
		MaxSleep time.Duration

		// DrainCap bounds command packets handled per cycle; the rest stay
		// queued and are reported as backlog.
		DrainCap int
	}

	// Counters accumulates the per-worker health metrics. The loop is single
	// threaded; these are plain integers read by the stats reporter inside
	// the same goroutine.
	Counters struct {
		Produced    uint64
		Overwrites  uint64
		Commands    uint64
		Malformed   uint64
		Unroutable  uint64
		Backlog     uint64
		DriftResets uint64
		CatchUps    uint64
		CommitFails uint64
		Commits     uint64
	}

	// Worker runs one slot's production loop.
	Worker struct {
		opts      Options
		rings     *slot.Rings
		registry  *tandem.Registry
		clock     Clock
		log       *slog.Logger
		counters  Counters
		period    time.Duration
		next      time.Time
		committed tandem.Patch
		staging   *tandem.Patch
		gates     map[tandem.ModuleID]bool
		graph     *graph.Graph
		silence   []float32
		pkt       []byte
		lastStats time.Time
	}
)

// DefaultOptions returns the production defaults for the given format.
func DefaultOptions(sampleRate, frame int) Options {
	return Options{
		SampleRate:  sampleRate,
		Frame:       frame,
		EarlyMargin: time.Millisecond,
		DriftReset:  100 * time.Millisecond,
		MaxCatchUp:  2,
		MaxSleep:    time.Millisecond,
		DrainCap:    256,
	}
}

// New prepares a worker over an attached slot region.
func New(rings *slot.Rings, registry *tandem.Registry, opts Options, clock Clock, log *slog.Logger) *Worker {
	period := time.Duration(opts.Frame) * time.Second / time.Duration(opts.SampleRate)
	return &Worker{
		opts:     opts,
		rings:    rings,
		registry: registry,
		clock:    clock,
		log:      log,
		gates:    make(map[tandem.ModuleID]bool),
		period:   period,
		silence:  make([]float32, opts.Frame),
		pkt:      make([]byte, rings.Commands.PacketSize()),
	}
}

// Period is the nominal production interval of one buffer.
func (w *Worker) Period() time.Duration { return w.period }

// Counters returns a snapshot of the loop metrics.
func (w *Worker) Counters() Counters { return w.counters }

// Graph exposes the committed graph, nil before the first successful commit.
func (w *Worker) Graph() *graph.Graph { return w.graph }

// Run cycles until ctx is canceled.
func (w *Worker) Run(ctx context.Context) {
	for ctx.Err() == nil {
		w.Cycle()
	}
}

// Cycle runs one iteration of the production state machine:
// deadline, drain, wait-or-produce, produce, write, sleep.
func (w *Worker) Cycle() {
	w.rings.Heartbeat()
	now := w.clock.Now()
	if w.next.IsZero() {
		w.next = now.Add(w.period)
	}

	w.drainCommands()

	// Not yet inside the early-production window: bounded sleep and retry.
	if wait := w.next.Sub(now) - w.opts.EarlyMargin; wait > 0 {
		if wait > w.opts.MaxSleep {
			wait = w.opts.MaxSleep
		}
		w.clock.Sleep(wait)
		w.maybeReportStats(now)
		return
	}

	w.produce()
	w.next = w.next.Add(w.period)

	if behind := now.Sub(w.next); behind > w.opts.DriftReset {
		// Too far gone: re-anchor instead of bursting the whole backlog.
		w.next = now.Add(w.period)
		w.counters.DriftResets++
	} else {
		for extra := 0; extra < w.opts.MaxCatchUp && !now.Before(w.next.Add(-w.opts.EarlyMargin)); extra++ {
			w.produce()
			w.next = w.next.Add(w.period)
			w.counters.CatchUps++
		}
	}
	w.maybeReportStats(now)
}

func (w *Worker) produce() {
	out := w.silence
	if w.graph != nil {
		out = w.graph.Run()
	}
	if _, overwrote := w.rings.Audio.Write(out); overwrote {
		w.counters.Overwrites++
	}
	w.counters.Produced++
}

// drainCommands empties the command ring, up to DrainCap packets, before any
// production. This is the only point where module state mutates, so every
// change is buffer-boundary aligned and the audio computation races nothing.
func (w *Worker) drainCommands() {
	handled := 0
	for handled < w.opts.DrainCap && w.rings.Commands.Pop(w.pkt) {
		handled++
		w.counters.Commands++
		pkt, err := wire.Decode(w.pkt)
		if err != nil {
			w.counters.Malformed++
			w.log.Warn("dropping malformed command", "error", err)
			continue
		}
		w.apply(pkt)
	}
	if rest := w.rings.Commands.Len(); rest > 0 && handled == w.opts.DrainCap {
		w.counters.Backlog += uint64(rest)
	}
}

func (w *Worker) apply(pkt wire.Packet) {
	switch pkt.Opcode {
	case wire.OpSetParam:
		if w.graph == nil || !w.graph.SetParam(pkt.Module, pkt.Param, pkt.Value) {
			w.counters.Unroutable++
			return
		}
		// Fold the change into the patch state too, so a later commit does
		// not snap the node back to its defaults.
		_ = w.committed.SetParam(pkt.Module, pkt.Param, pkt.Value)
		if w.staging != nil {
			_ = w.staging.SetParam(pkt.Module, pkt.Param, pkt.Value)
		}
	case wire.OpGate:
		if w.graph == nil || !w.graph.Gate(pkt.Module, pkt.Bool()) {
			w.counters.Unroutable++
			return
		}
		w.gates[pkt.Module] = pkt.Bool()
	case wire.OpPatchCreate:
		kind, ok := w.registry.LookupCode(uint16(pkt.Param))
		if !ok {
			w.counters.Unroutable++
			w.log.Warn("patch create with unknown kind", "code", pkt.Param)
			return
		}
		if err := w.ensureStaging().AddNode(pkt.Module, kind.Name); err != nil {
			w.counters.Unroutable++
			w.log.Warn("patch create rejected", "node", pkt.Module, "error", err)
		}
	case wire.OpPatchConnect:
		err := w.ensureStaging().Connect(pkt.Module, int(pkt.SrcPort), tandem.ModuleID(pkt.Int()), int(pkt.DstPort))
		if err != nil {
			w.counters.Unroutable++
			w.log.Warn("patch connect rejected", "error", err)
		}
	case wire.OpPatchCommit:
		w.commit(pkt.Module)
	case wire.OpPatchAbort:
		w.staging = nil
	}
}

// ensureStaging lazily forks the committed patch into a staging copy. Edits
// never touch the committed patch; commit swaps wholesale or not at all.
func (w *Worker) ensureStaging() *tandem.Patch {
	if w.staging == nil {
		p := w.committed.Copy()
		w.staging = &p
	}
	return w.staging
}

func (w *Worker) commit(output tandem.ModuleID) {
	staged := w.staging
	if staged == nil {
		p := w.committed.Copy()
		staged = &p
	}
	if output != 0 {
		staged.Output = output
	}
	compiled, err := graph.Compile(staged, w.registry, w.opts.SampleRate, w.opts.Frame)
	if err != nil {
		// The previous graph stays authoritative; the staged edits survive
		// so the control plane can repair and recommit.
		w.counters.CommitFails++
		w.log.Warn("patch commit rejected", "error", err)
		return
	}
	w.committed = *staged
	w.staging = nil
	w.graph = compiled
	// Gate state is not part of the patch; carry it onto the new graph so a
	// sounding voice keeps sounding across the swap.
	for id, on := range w.gates {
		if !compiled.Gate(id, on) {
			delete(w.gates, id)
		}
	}
	w.counters.Commits++
	w.log.Info("patch committed", "nodes", compiled.Len(), "output", staged.Output)
}

func (w *Worker) maybeReportStats(now time.Time) {
	if now.Sub(w.lastStats) < time.Second {
		return
	}
	w.lastStats = now
	w.log.Debug("worker stats",
		"produced", w.counters.Produced,
		"occupancy", w.rings.Audio.Occupancy(),
		"overwrites", w.counters.Overwrites,
		"commands", w.counters.Commands,
		"malformed", w.counters.Malformed,
		"backlog", w.counters.Backlog,
		"driftResets", w.counters.DriftResets,
	)
}

// Silence reports whether the worker is still running without a committed
// graph, producing silent buffers.
func (w *Worker) Silence() bool { return w.graph == nil }
