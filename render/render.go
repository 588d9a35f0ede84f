// Package render runs a patch offline, without workers or shared memory,
// and writes the result to a file. Useful for checking a patch sounds right
// before loading it into the live engine.
package render

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/youpy/go-wav"

	"tandem"
	"tandem/graph"
)

// Options controls one offline render.
type Options struct {
	SampleRate int
	Frame      int
	// Duration is the total rendered length.
	Duration time.Duration
	// GateNode, if nonzero, receives a gate-on at the start and a gate-off
	// at GateOff into the render.
	GateNode tandem.ModuleID
	GateOff  time.Duration
}

// Render compiles the patch and produces Duration worth of samples.
func Render(p *tandem.Patch, registry *tandem.Registry, opts Options) ([]float32, error) {
	g, err := graph.Compile(p, registry, opts.SampleRate, opts.Frame)
	if err != nil {
		return nil, fmt.Errorf("compiling patch: %w", err)
	}
	total := int(float64(opts.SampleRate) * opts.Duration.Seconds())
	gateOff := int(float64(opts.SampleRate) * opts.GateOff.Seconds())

	if opts.GateNode != 0 {
		g.Gate(opts.GateNode, true)
	}
	out := make([]float32, 0, total)
	for len(out) < total {
		if opts.GateNode != 0 && gateOff > 0 && len(out) >= gateOff {
			g.Gate(opts.GateNode, false)
			gateOff = 0
		}
		buf := g.Run()
		n := total - len(out)
		if n > len(buf) {
			n = len(buf)
		}
		out = append(out, buf[:n]...)
	}
	return out, nil
}

// WriteWav writes mono 16-bit PCM to w.
func WriteWav(w io.Writer, samples []float32, sampleRate int) error {
	writer := wav.NewWriter(w, uint32(len(samples)), 1, uint32(sampleRate), 16)
	out := make([]wav.Sample, len(samples))
	for i, v := range samples {
		if v < -1 {
			v = -1
		} else if v > 1 {
			v = 1
		}
		out[i].Values[0] = int(v * math.MaxInt16)
	}
	if err := writer.WriteSamples(out); err != nil {
		return fmt.Errorf("writing samples: %w", err)
	}
	return nil
}
