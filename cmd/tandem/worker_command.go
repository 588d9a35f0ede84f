package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tandem/worker"
)

// newWorkerCommand is the hidden entry point the supervisor re-executes the
// binary with. It reads the same configuration file as the engine and never
// creates shared state, only attaches to the segment it is told about.
func newWorkerCommand(ctx *commandContext) *cobra.Command {
	var dir, segment string
	cmd := &cobra.Command{
		Use:    "worker",
		Short:  "Serve one slot (spawned by the engine, not for direct use)",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if segment == "" {
				return errors.New("worker: --segment is required")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return worker.Serve(sigCtx, dir, segment, cfg.WorkerOptions(), ctx.log)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "/dev/shm", "Segment directory")
	cmd.Flags().StringVar(&segment, "segment", "", "Slot segment name")
	return cmd
}
