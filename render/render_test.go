package render

import (
	"bytes"
	"testing"
	"time"

	"github.com/youpy/go-wav"

	"tandem"
	"tandem/modules"
)

func testPatch(t *testing.T) *tandem.Patch {
	t.Helper()
	p := &tandem.Patch{}
	if err := p.AddNode(1, "oscillator"); err != nil {
		t.Fatal(err)
	}
	if err := p.AddNode(2, "envelope"); err != nil {
		t.Fatal(err)
	}
	if err := p.AddNode(3, "gain"); err != nil {
		t.Fatal(err)
	}
	if err := p.Connect(1, 0, 2, 0); err != nil {
		t.Fatal(err)
	}
	if err := p.Connect(2, 0, 3, 0); err != nil {
		t.Fatal(err)
	}
	p.Output = 3
	return p
}

func TestRenderLengthAndEnvelope(t *testing.T) {
	samples, err := Render(testPatch(t), modules.Builtin(), Options{
		SampleRate: 48000,
		Frame:      256,
		Duration:   200 * time.Millisecond,
		GateNode:   2,
		GateOff:    100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if want := 48000 / 5; len(samples) != want {
		t.Fatalf("rendered %d samples; want %d", len(samples), want)
	}
	var sustained, tail float64
	for _, v := range samples[4000:4800] {
		sustained += float64(v * v)
	}
	// The release has decayed for most of 100ms by the end.
	for _, v := range samples[len(samples)-800:] {
		tail += float64(v * v)
	}
	if sustained == 0 {
		t.Error("gated render is silent")
	}
	if tail >= sustained {
		t.Errorf("no release decay: tail energy %g, sustained %g", tail, sustained)
	}
}

func TestRenderRejectsBadPatch(t *testing.T) {
	p := &tandem.Patch{}
	if err := p.AddNode(1, "gain"); err != nil {
		t.Fatal(err)
	}
	p.Output = 99
	if _, err := Render(p, modules.Builtin(), Options{SampleRate: 48000, Frame: 256, Duration: time.Millisecond}); err == nil {
		t.Error("compiled a patch with a dangling output")
	}
}

func TestWriteWavRoundTrip(t *testing.T) {
	samples := make([]float32, 480)
	for i := range samples {
		samples[i] = 0.5
	}
	var buf bytes.Buffer
	if err := WriteWav(&buf, samples, 48000); err != nil {
		t.Fatalf("WriteWav: %v", err)
	}

	r := wav.NewReader(bytes.NewReader(buf.Bytes()))
	format, err := r.Format()
	if err != nil {
		t.Fatalf("reading format: %v", err)
	}
	if format.SampleRate != 48000 || format.NumChannels != 1 || format.BitsPerSample != 16 {
		t.Errorf("format = %+v", format)
	}
	got, err := r.ReadSamples(uint32(len(samples)))
	if err != nil {
		t.Fatalf("reading samples: %v", err)
	}
	if len(got) != len(samples) {
		t.Fatalf("read %d samples; want %d", len(got), len(samples))
	}
	if v := r.FloatValue(got[0], 0); v < 0.49 || v > 0.51 {
		t.Errorf("sample 0 = %v; want about 0.5", v)
	}
}
