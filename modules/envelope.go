package modules

import (
	"tandem"
)

// Parameter indices for the envelope kind.
const (
	EnvAttack tandem.ParamID = iota
	EnvDecay
	EnvSustain
	EnvRelease
	EnvGain
)

// envState is the explicit ADSR phase. The envelope is a total state
// machine: every (state, gate) combination has a defined transition, so a
// gate edge can never leave it wedged in a silent-but-active phase.
type envState int

const (
	envIdle envState = iota
	envAttack
	envDecay
	envSustain
	envRelease
)

func (s envState) String() string {
	switch s {
	case envIdle:
		return "idle"
	case envAttack:
		return "attack"
	case envDecay:
		return "decay"
	case envSustain:
		return "sustain"
	case envRelease:
		return "release"
	}
	return "invalid"
}

var envelopeParams = []tandem.ParamSpec{
	{Name: "attack", Min: 0.001, Max: 10, Default: 0.01, Smooth: tandem.SmoothNone, Unit: "s"},
	{Name: "decay", Min: 0.001, Max: 10, Default: 0.1, Smooth: tandem.SmoothNone, Unit: "s"},
	{Name: "sustain", Min: 0, Max: 1, Default: 0.7, Smooth: tandem.SmoothNone},
	{Name: "release", Min: 0.001, Max: 10, Default: 0.3, Smooth: tandem.SmoothNone, Unit: "s"},
	{Name: "gain", Min: 0, Max: 1, Default: 1, Smooth: tandem.SmoothExp, Time: 0.005},
}

var envelopeKind = tandem.Kind{
	Name:   "envelope",
	Code:   CodeEnvelope,
	Inputs: 1,
	Params: envelopeParams,
	New:    newEnvelope,
}

// envelope is a gate-driven ADSR amplifier: out = in * level. Gate edges
// arrive buffer-aligned (commands are drained at cycle boundaries); the
// internal level and phase transitions advance per sample, consistently for
// the whole module.
type envelope struct {
	sampleRate float32
	state      envState
	level      float32
	gate       bool
	attack     tandem.Param
	decay      tandem.Param
	sustain    tandem.Param
	release    tandem.Param
	gain       tandem.Param
}

func newEnvelope(sampleRate int) tandem.Module {
	return &envelope{
		sampleRate: float32(sampleRate),
		attack:     tandem.NewParam(&envelopeParams[EnvAttack], sampleRate),
		decay:      tandem.NewParam(&envelopeParams[EnvDecay], sampleRate),
		sustain:    tandem.NewParam(&envelopeParams[EnvSustain], sampleRate),
		release:    tandem.NewParam(&envelopeParams[EnvRelease], sampleRate),
		gain:       tandem.NewParam(&envelopeParams[EnvGain], sampleRate),
	}
}

func (e *envelope) SetParam(id tandem.ParamID, value float32) {
	switch id {
	case EnvAttack:
		e.attack.SetTarget(value)
	case EnvDecay:
		e.decay.SetTarget(value)
	case EnvSustain:
		e.sustain.SetTarget(value)
	case EnvRelease:
		e.release.SetTarget(value)
	case EnvGain:
		e.gain.SetTarget(value)
	}
}

// Gate drives the state machine. Gate on always restarts the attack from the
// current level, so retriggering a sounding voice never clicks; gate off
// moves any active phase into release.
func (e *envelope) Gate(on bool) {
	e.gate = on
	if on {
		e.state = envAttack
	} else if e.state != envIdle {
		e.state = envRelease
	}
}

// State exposes the current phase, for tests and for status surfaces.
func (e *envelope) State() string { return e.state.String() }

func (e *envelope) Process(in [][]float32, out []float32) {
	var src []float32
	if len(in) > 0 {
		src = in[0]
	}
	for i := range out {
		e.advance()
		var x float32
		if i < len(src) {
			x = src[i]
		}
		out[i] = x * e.level * e.gain.Step()
	}
}

// advance moves the level one sample along the current phase and applies any
// phase transition the new level triggers.
func (e *envelope) advance() {
	sustain := e.sustain.Target()
	switch e.state {
	case envIdle:
		e.level = 0
	case envAttack:
		e.level += 1 / (e.attack.Target() * e.sampleRate)
		if e.level >= 1 {
			e.level = 1
			e.state = envDecay
		}
	case envDecay:
		e.level -= (1 - sustain) / (e.decay.Target() * e.sampleRate)
		if e.level <= sustain {
			e.level = sustain
			e.state = envSustain
		}
	case envSustain:
		e.level = sustain
	case envRelease:
		e.level -= 1 / (e.release.Target() * e.sampleRate)
		if e.level <= 0 {
			e.level = 0
			e.state = envIdle
		}
	}
}
