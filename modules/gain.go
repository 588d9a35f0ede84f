package modules

import (
	"github.com/viterin/vek/vek32"

	"tandem"
)

// Parameter index for the gain kind.
const GainAmount tandem.ParamID = 0

var gainParams = []tandem.ParamSpec{
	{Name: "gain", Min: 0, Max: 2, Default: 1, Smooth: tandem.SmoothExp, Time: 0.005},
}

var gainKind = tandem.Kind{
	Name:   "gain",
	Code:   CodeGain,
	Inputs: 1,
	Params: gainParams,
	New:    newGain,
}

type gain struct {
	amount tandem.Param
}

func newGain(sampleRate int) tandem.Module {
	return &gain{amount: tandem.NewParam(&gainParams[GainAmount], sampleRate)}
}

func (g *gain) SetParam(id tandem.ParamID, value float32) {
	if id == GainAmount {
		g.amount.SetTarget(value)
	}
}

func (g *gain) Gate(bool) {}

func (g *gain) Process(in [][]float32, out []float32) {
	if len(in) == 0 || len(in[0]) < len(out) {
		zero(out)
		return
	}
	src := in[0]
	// Settled gain takes the vectorized path; while the smoother is still
	// converging, apply it per sample.
	if v := g.amount.Value(); v == g.amount.Target() {
		vek32.MulNumber_Into(out, src[:len(out)], v)
		return
	}
	for i := range out {
		out[i] = src[i] * g.amount.Step()
	}
}

// Parameter indices for the mixer kind: one gain per input port.
const (
	MixerGain1 tandem.ParamID = iota
	MixerGain2
	MixerGain3
	MixerGain4
)

// mixerInputs is the number of input ports a mixer exposes; summing more
// sources chains mixers.
const mixerInputs = 4

var mixerParams = []tandem.ParamSpec{
	{Name: "gain1", Min: 0, Max: 2, Default: 1, Smooth: tandem.SmoothExp, Time: 0.005},
	{Name: "gain2", Min: 0, Max: 2, Default: 1, Smooth: tandem.SmoothExp, Time: 0.005},
	{Name: "gain3", Min: 0, Max: 2, Default: 1, Smooth: tandem.SmoothExp, Time: 0.005},
	{Name: "gain4", Min: 0, Max: 2, Default: 1, Smooth: tandem.SmoothExp, Time: 0.005},
}

var mixerKind = tandem.Kind{
	Name:   "mixer",
	Code:   CodeMixer,
	Inputs: mixerInputs,
	Params: mixerParams,
	New:    newMixer,
}

type mixer struct {
	gains   [mixerInputs]tandem.Param
	scratch []float32
}

func newMixer(sampleRate int) tandem.Module {
	m := &mixer{scratch: make([]float32, scratchFrames)}
	for i := range m.gains {
		m.gains[i] = tandem.NewParam(&mixerParams[i], sampleRate)
	}
	return m
}

func (m *mixer) SetParam(id tandem.ParamID, value float32) {
	if int(id) < len(m.gains) {
		m.gains[id].SetTarget(value)
	}
}

func (m *mixer) Gate(bool) {}

func (m *mixer) Process(in [][]float32, out []float32) {
	zero(out)
	scratch := m.scratch
	if len(out) <= len(scratch) {
		scratch = scratch[:len(out)]
	} else {
		scratch = nil
	}
	for port := 0; port < len(in) && port < mixerInputs; port++ {
		src := in[port]
		if len(src) < len(out) {
			continue
		}
		g := &m.gains[port]
		if v := g.Value(); v == g.Target() && scratch != nil {
			if v == 0 {
				continue
			}
			vek32.MulNumber_Into(scratch, src[:len(out)], v)
			vek32.Add_Inplace(out, scratch)
			continue
		}
		for i := range out {
			out[i] += src[i] * g.Step()
		}
	}
}

func zero(buf []float32) {
	for i := range buf {
		buf[i] = 0
	}
}
