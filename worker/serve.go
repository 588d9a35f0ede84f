package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"tandem/modules"
	"tandem/shm"
	"tandem/slot"
)

// Serve is the worker process entry point: attach to the named slot segment
// and run the production loop until ctx is canceled. The segment must
// already be initialized by the supervisor; a worker never creates shared
// state, it only inherits it.
func Serve(ctx context.Context, dir, segment string, opts Options, log *slog.Logger) error {
	seg, err := shm.Open(dir, segment)
	if err != nil {
		return fmt.Errorf("worker attach: %w", err)
	}
	defer seg.Close()

	rings, err := slot.Attach(seg.Bytes())
	if err != nil {
		return fmt.Errorf("worker attach: %w", err)
	}

	// The segment is authoritative for the buffer geometry.
	opts.Frame = rings.Audio.Frame()

	log = log.With("segment", segment, "pid", os.Getpid())
	log.Info("worker attached",
		"audioSlots", rings.Audio.Capacity(),
		"frame", rings.Audio.Frame(),
		"commandSlots", rings.Commands.Capacity(),
	)

	w := New(rings, modules.Builtin(), opts, RealClock(), log)
	w.Run(ctx)
	log.Info("worker stopping", "produced", w.Counters().Produced)
	return nil
}
