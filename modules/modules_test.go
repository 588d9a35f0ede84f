package modules

import (
	"math"
	"testing"

	"tandem"
)

func TestBuiltinRegisters(t *testing.T) {
	r := Builtin()
	for _, name := range []string{"oscillator", "filter", "envelope", "gain", "mixer", "noise"} {
		k, ok := r.Lookup(name)
		if !ok {
			t.Errorf("kind %q not registered", name)
			continue
		}
		if k2, ok := r.LookupCode(k.Code); !ok || k2 != k {
			t.Errorf("kind %q not reachable by code %d", name, k.Code)
		}
	}
}

func TestKindParamTables(t *testing.T) {
	r := Builtin()
	for _, name := range []string{"oscillator", "filter", "envelope", "gain", "mixer", "noise"} {
		k, _ := r.Lookup(name)
		if len(k.Params) == 0 {
			t.Errorf("kind %q declares no parameters", name)
			continue
		}
		for i, p := range k.Params {
			if p.Default < p.Min || p.Default > p.Max {
				t.Errorf("%s param %d (%s): default %v outside [%v, %v]", name, i, p.Name, p.Default, p.Min, p.Max)
			}
		}
		if m := k.New(48000); m == nil {
			t.Errorf("kind %q constructor returned nil", name)
		}
	}
	// Constructors read the same tables the kinds publish, so a freshly
	// built module starts at the declared defaults.
	o := newOscillator(48000).(*oscillator)
	if got, want := o.gain.Target(), oscillatorParams[OscGain].Default; got != want {
		t.Errorf("fresh oscillator gain target = %v; want declared default %v", got, want)
	}
}

func renderEnvelope(e *envelope, frames int) []float32 {
	in := [][]float32{make([]float32, frames)}
	for i := range in[0] {
		in[0][i] = 1 // unity input so the output is the envelope level
	}
	out := make([]float32, frames)
	e.Process(in, out)
	return out
}

func TestEnvelopeStateMachine(t *testing.T) {
	const sr = 48000
	e := newEnvelope(sr).(*envelope)
	e.SetParam(EnvAttack, 0.001)
	e.SetParam(EnvDecay, 0.001)
	e.SetParam(EnvSustain, 0.5)
	e.SetParam(EnvRelease, 0.001)

	if e.State() != "idle" {
		t.Fatalf("initial state = %s; want idle", e.State())
	}
	out := renderEnvelope(e, 64)
	for i, v := range out {
		if v != 0 {
			t.Fatalf("idle envelope leaked output %v at %d", v, i)
		}
	}

	// 0.001s attack and decay are 48 samples each: after 256 samples the
	// envelope must have passed through attack and decay into sustain.
	e.Gate(true)
	if e.State() != "attack" {
		t.Fatalf("state after gate on = %s; want attack", e.State())
	}
	out = renderEnvelope(e, 256)
	if e.State() != "sustain" {
		t.Fatalf("state after attack+decay time = %s; want sustain", e.State())
	}
	if got := out[255]; math.Abs(float64(got-0.5)) > 1e-3 {
		t.Errorf("sustain level = %v; want 0.5", got)
	}

	e.Gate(false)
	if e.State() != "release" {
		t.Fatalf("state after gate off = %s; want release", e.State())
	}
	renderEnvelope(e, 256)
	if e.State() != "idle" {
		t.Fatalf("state after release time = %s; want idle", e.State())
	}

	// Gate off in idle stays idle; gate on in release restarts the attack.
	e.Gate(false)
	if e.State() != "idle" {
		t.Errorf("gate off in idle moved to %s", e.State())
	}
	e.Gate(true)
	renderEnvelope(e, 8)
	e.Gate(false)
	e.Gate(true)
	if e.State() != "attack" {
		t.Errorf("retrigger from release = %s; want attack", e.State())
	}
}

func TestEnvelopeStepBounded(t *testing.T) {
	const sr = 48000
	e := newEnvelope(sr).(*envelope)
	e.SetParam(EnvAttack, 0.01)
	e.SetParam(EnvRelease, 0.01)
	e.Gate(true)
	out := renderEnvelope(e, 2048)
	// Slowest allowed attack step bound: full swing over 0.01s at 48kHz.
	maxStep := float32(1)/(0.01*sr) + 1e-4
	for i := 1; i < len(out); i++ {
		if d := out[i] - out[i-1]; d > maxStep || d < -maxStep {
			t.Fatalf("discontinuity at sample %d: step %v exceeds %v", i, d, maxStep)
		}
	}
}

func TestOscillatorBoundedOutput(t *testing.T) {
	for _, shape := range []float32{Sine, Trisaw, Pulse} {
		o := newOscillator(48000)
		o.SetParam(OscShape, shape)
		o.SetParam(OscGain, 1)
		out := make([]float32, 4096)
		// Run a few buffers so the gain smoother settles at 1.
		for i := 0; i < 4; i++ {
			o.Process(nil, out)
		}
		for i, v := range out {
			if v > 1.001 || v < -1.001 {
				t.Fatalf("shape %v sample %d out of range: %v", shape, i, v)
			}
		}
	}
}

func TestMixerSumsSettledGains(t *testing.T) {
	m := newMixer(48000).(*mixer)
	a := make([]float32, 64)
	b := make([]float32, 64)
	for i := range a {
		a[i] = 0.25
		b[i] = 0.5
	}
	out := make([]float32, 64)
	// Default gains are 1 and start settled, so this is the vector path.
	m.Process([][]float32{a, b}, out)
	for i, v := range out {
		if math.Abs(float64(v-0.75)) > 1e-6 {
			t.Fatalf("sample %d = %v; want 0.75", i, v)
		}
	}
}

func TestGateIgnoredByStatelessKinds(t *testing.T) {
	out := make([]float32, 32)
	for _, k := range []tandem.Kind{oscillatorKind, filterKind, gainKind, mixerKind, noiseKind} {
		m := k.New(48000)
		m.Gate(true)
		m.Gate(false)
		in := make([][]float32, k.Inputs)
		for i := range in {
			in[i] = make([]float32, 32)
		}
		m.Process(in, out) // must not panic with gates toggled
	}
}
