package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"tandem/modules"
	"tandem/render"
)

func newRenderCommand(ctx *commandContext) *cobra.Command {
	var out string
	var duration, gateOff time.Duration
	cmd := &cobra.Command{
		Use:   "render [patch.yml]",
		Short: "Render a patch offline to a .wav file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			patch, err := loadPatch(path)
			if err != nil {
				return err
			}

			samples, err := render.Render(patch, modules.Builtin(), render.Options{
				SampleRate: cfg.Audio.SampleRate,
				Frame:      cfg.Audio.BufferSize,
				Duration:   duration,
				GateNode:   gateNode(patch),
				GateOff:    gateOff,
			})
			if err != nil {
				return err
			}

			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := render.WriteWav(f, samples, cfg.Audio.SampleRate); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Printf("wrote %s: %d samples, %s\n", out, len(samples), duration)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "out.wav", "Output file")
	cmd.Flags().DurationVar(&duration, "duration", 2*time.Second, "Render length")
	cmd.Flags().DurationVar(&gateOff, "gate-off", time.Second, "When to release the gate")
	return cmd
}
