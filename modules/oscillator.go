package modules

import (
	"github.com/chewxy/math32"

	"tandem"
)

// Oscillator waveforms, selected by the shape parameter.
const (
	Sine = iota
	Trisaw
	Pulse
)

// Parameter indices for the oscillator kind.
const (
	OscFrequency tandem.ParamID = iota
	OscShape
	OscColor
	OscGain
)

var oscillatorParams = []tandem.ParamSpec{
	{Name: "frequency", Min: 20, Max: 20000, Default: 440, Smooth: tandem.SmoothLog, Time: 0.02, Unit: "Hz"},
	{Name: "shape", Min: 0, Max: 2, Default: Sine, Smooth: tandem.SmoothNone},
	{Name: "color", Min: 0.01, Max: 0.99, Default: 0.5, Smooth: tandem.SmoothLinear, Time: 0.02},
	{Name: "gain", Min: 0, Max: 1, Default: 0.5, Smooth: tandem.SmoothExp, Time: 0.005},
}

var oscillatorKind = tandem.Kind{
	Name:   "oscillator",
	Code:   CodeOscillator,
	Inputs: 0,
	Params: oscillatorParams,
	New:    newOscillator,
}

type oscillator struct {
	sampleRate float32
	phase      float32
	frequency  tandem.Param
	shape      tandem.Param
	color      tandem.Param
	gain       tandem.Param
}

func newOscillator(sampleRate int) tandem.Module {
	return &oscillator{
		sampleRate: float32(sampleRate),
		frequency:  tandem.NewParam(&oscillatorParams[OscFrequency], sampleRate),
		shape:      tandem.NewParam(&oscillatorParams[OscShape], sampleRate),
		color:      tandem.NewParam(&oscillatorParams[OscColor], sampleRate),
		gain:       tandem.NewParam(&oscillatorParams[OscGain], sampleRate),
	}
}

func (o *oscillator) SetParam(id tandem.ParamID, value float32) {
	switch id {
	case OscFrequency:
		o.frequency.SetTarget(value)
	case OscShape:
		o.shape.SetTarget(value)
	case OscColor:
		o.color.SetTarget(value)
	case OscGain:
		o.gain.SetTarget(value)
	}
}

func (o *oscillator) Gate(bool) {}

func (o *oscillator) Process(in [][]float32, out []float32) {
	shape := int(o.shape.Value())
	for i := range out {
		freq := o.frequency.Step()
		color := o.color.Step()
		o.phase += freq / o.sampleRate
		if o.phase >= 1 {
			o.phase -= 1
		}
		var v float32
		switch shape {
		case Trisaw:
			// color morphs the waveform from triangle (0.5) toward saw.
			if o.phase < color {
				v = 2*o.phase/color - 1
			} else {
				v = 2*(1-o.phase)/(1-color) - 1
			}
		case Pulse:
			if o.phase < color {
				v = 1
			} else {
				v = -1
			}
		default:
			v = math32.Sin(2 * math32.Pi * o.phase)
		}
		out[i] = v * o.gain.Step()
	}
}
