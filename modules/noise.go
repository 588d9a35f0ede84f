package modules

import (
	"tandem"
)

// Parameter index for the noise kind.
const NoiseGain tandem.ParamID = 0

var noiseParams = []tandem.ParamSpec{
	{Name: "gain", Min: 0, Max: 1, Default: 0.5, Smooth: tandem.SmoothExp, Time: 0.005},
}

var noiseKind = tandem.Kind{
	Name:   "noise",
	Code:   CodeNoise,
	Inputs: 0,
	Params: noiseParams,
	New:    newNoise,
}

// noise is a white noise source driven by an xorshift generator; the seed is
// module-local so two noise nodes do not correlate.
type noise struct {
	seed uint32
	gain tandem.Param
}

func newNoise(sampleRate int) tandem.Module {
	return &noise{seed: 1, gain: tandem.NewParam(&noiseParams[NoiseGain], sampleRate)}
}

func (n *noise) SetParam(id tandem.ParamID, value float32) {
	if id == NoiseGain {
		n.gain.SetTarget(value)
	}
}

func (n *noise) Gate(bool) {}

func (n *noise) Process(in [][]float32, out []float32) {
	seed := n.seed
	for i := range out {
		seed ^= seed << 13
		seed ^= seed >> 17
		seed ^= seed << 5
		out[i] = (float32(seed)/float32(1<<31) - 1) * n.gain.Step()
	}
	n.seed = seed
}
