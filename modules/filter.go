package modules

import (
	"github.com/chewxy/math32"

	"tandem"
)

// Parameter indices for the filter kind.
const (
	FilterFrequency tandem.ParamID = iota
	FilterResonance
	FilterLowpass
	FilterBandpass
	FilterHighpass
)

var filterParams = []tandem.ParamSpec{
	{Name: "frequency", Min: 20, Max: 20000, Default: 1000, Smooth: tandem.SmoothLog, Time: 0.02, Unit: "Hz"},
	{Name: "resonance", Min: 0.01, Max: 1, Default: 0.5, Smooth: tandem.SmoothExp, Time: 0.01},
	{Name: "lowpass", Min: 0, Max: 1, Default: 1, Smooth: tandem.SmoothNone},
	{Name: "bandpass", Min: 0, Max: 1, Default: 0, Smooth: tandem.SmoothNone},
	{Name: "highpass", Min: 0, Max: 1, Default: 0, Smooth: tandem.SmoothNone},
}

var filterKind = tandem.Kind{
	Name:   "filter",
	Code:   CodeFilter,
	Inputs: 1,
	Params: filterParams,
	New:    newFilter,
}

// filter is a Chamberlin state-variable filter. The three output taps are
// weighted by the lowpass/bandpass/highpass parameters so one node covers
// all the usual responses.
type filter struct {
	sampleRate float32
	low, band  float32
	frequency  tandem.Param
	resonance  tandem.Param
	lowpass    tandem.Param
	bandpass   tandem.Param
	highpass   tandem.Param
}

func newFilter(sampleRate int) tandem.Module {
	return &filter{
		sampleRate: float32(sampleRate),
		frequency:  tandem.NewParam(&filterParams[FilterFrequency], sampleRate),
		resonance:  tandem.NewParam(&filterParams[FilterResonance], sampleRate),
		lowpass:    tandem.NewParam(&filterParams[FilterLowpass], sampleRate),
		bandpass:   tandem.NewParam(&filterParams[FilterBandpass], sampleRate),
		highpass:   tandem.NewParam(&filterParams[FilterHighpass], sampleRate),
	}
}

func (f *filter) SetParam(id tandem.ParamID, value float32) {
	switch id {
	case FilterFrequency:
		f.frequency.SetTarget(value)
	case FilterResonance:
		f.resonance.SetTarget(value)
	case FilterLowpass:
		f.lowpass.SetTarget(value)
	case FilterBandpass:
		f.bandpass.SetTarget(value)
	case FilterHighpass:
		f.highpass.SetTarget(value)
	}
}

func (f *filter) Gate(bool) {}

func (f *filter) Process(in [][]float32, out []float32) {
	src := out[:0:0]
	if len(in) > 0 {
		src = in[0]
	}
	lp, bp, hp := f.lowpass.Value(), f.bandpass.Value(), f.highpass.Value()
	for i := range out {
		var x float32
		if i < len(src) {
			x = src[i]
		}
		fc := f.frequency.Step()
		q := f.resonance.Step()
		// Chamberlin SVF; the coefficient is clamped well below instability.
		g := 2 * math32.Sin(math32.Pi*fc/f.sampleRate)
		if g > 1 {
			g = 1
		}
		f.low += g * f.band
		high := x - f.low - q*f.band
		f.band += g * high
		out[i] = lp*f.low + bp*f.band + hp*high
	}
}
