package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tandem"
	"tandem/engine"
	"tandem/modules"
	"tandem/oto"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var patchPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the engine and play through the audio device",
		Long: "Creates both slot segments, spawns the worker pair, loads a patch " +
			"and plays the active slot's output until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			patch, err := loadPatch(patchPath)
			if err != nil {
				return err
			}

			workerArgs := []string{"worker"}
			if path := *ctx.configFlag; path != "" {
				workerArgs = append(workerArgs, "--config", path)
			}
			spawner := &engine.ExecSpawner{Args: workerArgs}
			eng, err := engine.New(cfg.EngineOptions(), spawner, ctx.log)
			if err != nil {
				return err
			}
			defer eng.Close()

			sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := eng.Start(sigCtx); err != nil {
				return err
			}
			if err := eng.Controller().LoadPatch(patch, modules.Builtin()); err != nil {
				return err
			}
			eng.Controller().Gate(gateNode(patch), true)

			device, err := oto.Open(cfg.Audio.SampleRate, cfg.Audio.BufferSize, eng.Reader())
			if err != nil {
				return err
			}
			defer device.Close()

			ctx.log.Info("engine running", "sampleRate", cfg.Audio.SampleRate,
				"frame", cfg.Audio.BufferSize, "patchNodes", len(patch.Nodes))
			<-sigCtx.Done()
			ctx.log.Info("shutting down",
				"underruns", eng.Reader().Underruns(),
				"failovers", eng.Supervisor().Counters().Failovers)
			return nil
		},
	}
	cmd.Flags().StringVarP(&patchPath, "patch", "p", "", "Patch file (YAML); a demo patch plays when omitted")
	return cmd
}

func loadPatch(path string) (*tandem.Patch, error) {
	if path == "" {
		p := demoPatch()
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading patch: %w", err)
	}
	p, err := tandem.DeserializePatch(data)
	if err != nil {
		return nil, fmt.Errorf("parsing patch %s: %w", path, err)
	}
	return &p, nil
}

// demoPatch is a gated sine through an envelope, enough to hear that both
// workers are alive.
func demoPatch() *tandem.Patch {
	p := &tandem.Patch{}
	p.AddNode(1, "oscillator")
	p.AddNode(2, "envelope")
	p.AddNode(3, "gain")
	p.Connect(1, 0, 2, 0)
	p.Connect(2, 0, 3, 0)
	p.SetParam(1, modules.OscFrequency, 220)
	p.Output = 3
	return p
}

// gateNode picks the node to gate on at startup: the first envelope, or the
// output when the patch has none.
func gateNode(p *tandem.Patch) tandem.ModuleID {
	for _, n := range p.Nodes {
		if n.Kind == "envelope" {
			return n.ID
		}
	}
	return p.Output
}
