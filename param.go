package tandem

import (
	"github.com/chewxy/math32"
)

type (
	// SmoothingMode selects how a parameter's live value converges toward its
	// target after SetParam. The mode and time constant are metadata chosen
	// by the module author, not by the caller.
	SmoothingMode int

	// ParamSpec documents one parameter that a module kind takes. Min and Max
	// bound the accepted target values; targets outside the range are clamped
	// on the control path. Time is the smoothing time constant in seconds
	// (ignored for SmoothNone).
	ParamSpec struct {
		Name    string
		Min     float32
		Max     float32
		Default float32
		Smooth  SmoothingMode
		Time    float32
		Unit    string
	}

	// Param is the runtime smoothing state of one parameter. Modules embed
	// one Param per ParamSpec and call Step once per sample (or Value for
	// buffer-rate parameters) inside Process. Step performs no allocation.
	Param struct {
		value  float32
		target float32
		mode   SmoothingMode
		step   float32 // per-sample increment for SmoothLinear
		alpha  float32 // one-pole coefficient for SmoothExp/SmoothLog
	}
)

const (
	SmoothNone SmoothingMode = iota
	SmoothLinear
	SmoothExp
	SmoothLog
)

// Clamp bounds v to the declared range.
func (s *ParamSpec) Clamp(v float32) float32 {
	if v < s.Min {
		return s.Min
	}
	if v > s.Max {
		return s.Max
	}
	return v
}

// NewParam initializes the smoothing state for spec at the given sample rate,
// starting at the declared default.
func NewParam(spec *ParamSpec, sampleRate int) Param {
	p := Param{value: spec.Default, target: spec.Default, mode: spec.Smooth}
	samples := spec.Time * float32(sampleRate)
	if samples < 1 {
		samples = 1
	}
	switch spec.Smooth {
	case SmoothLinear:
		p.step = (spec.Max - spec.Min) / samples
	case SmoothExp, SmoothLog:
		p.alpha = 1 - math32.Exp(-1/samples)
	}
	return p
}

// SetTarget updates the convergence target. The caller clamps against the
// ParamSpec before calling; Param itself imposes no range.
func (p *Param) SetTarget(v float32) {
	p.target = v
	if p.mode == SmoothNone {
		p.value = v
	}
}

func (p *Param) Target() float32 { return p.target }

// Value returns the current live value without advancing it.
func (p *Param) Value() float32 { return p.value }

// Step advances the live value one sample toward the target and returns it.
func (p *Param) Step() float32 {
	switch p.mode {
	case SmoothLinear:
		d := p.target - p.value
		if d > p.step {
			p.value += p.step
		} else if d < -p.step {
			p.value -= p.step
		} else {
			p.value = p.target
		}
	case SmoothExp:
		p.value += (p.target - p.value) * p.alpha
	case SmoothLog:
		// One-pole smoothing in log space, for parameters perceived on a
		// logarithmic scale (frequencies). Values at or below zero fall back
		// to plain exponential smoothing.
		if p.value > 0 && p.target > 0 {
			lv := math32.Log(p.value)
			lv += (math32.Log(p.target) - lv) * p.alpha
			p.value = math32.Exp(lv)
		} else {
			p.value += (p.target - p.value) * p.alpha
		}
	default:
		p.value = p.target
	}
	return p.value
}
