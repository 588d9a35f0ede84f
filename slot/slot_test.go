package slot

import (
	"testing"

	"tandem/ring"
	"tandem/wire"
)

func TestInitAndAttach(t *testing.T) {
	mem := ring.AlignedRegion(Size(8, 64, 32, wire.PacketSize))
	rings, err := Init(mem, 8, 64, 32, wire.PacketSize)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	frame := make([]float32, 64)
	frame[0] = 0.5
	if _, overwrote := rings.Audio.Write(frame); overwrote {
		t.Error("first write overwrote")
	}
	pkt := wire.Gate(7, true)
	buf := make([]byte, wire.PacketSize)
	if err := pkt.EncodeTo(buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := rings.Commands.Push(buf); err != nil {
		t.Fatalf("push: %v", err)
	}
	rings.Heartbeat()
	rings.Heartbeat()

	// A second process sees the same state through Attach.
	other, err := Attach(mem)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if got := other.Beat(); got != 2 {
		t.Errorf("beat = %d; want 2", got)
	}
	dst := make([]float32, 64)
	seq, ok := other.Audio.Read(dst)
	if !ok || seq != 1 {
		t.Fatalf("Read = (%d, %v); want (1, true)", seq, ok)
	}
	if dst[0] != 0.5 {
		t.Errorf("audio payload %v; want 0.5", dst[0])
	}
	if !other.Commands.Pop(buf) {
		t.Fatal("command not visible through Attach")
	}
	got, err := wire.Decode(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Module != 7 || !got.Bool() {
		t.Errorf("decoded %+v; want gate-on for module 7", got)
	}
}

func TestAttachRejectsGarbage(t *testing.T) {
	mem := ring.AlignedRegion(Size(8, 64, 32, wire.PacketSize))
	if _, err := Attach(mem); err == nil {
		t.Error("attached to a region with no magic")
	}
}

func TestHeartbeatSurvivesReattach(t *testing.T) {
	mem := ring.AlignedRegion(Size(4, 64, 16, wire.PacketSize))
	rings, err := Init(mem, 4, 64, 16, wire.PacketSize)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	for i := 0; i < 5; i++ {
		rings.Heartbeat()
	}
	// A replacement worker attaching to the same slot continues the count.
	again, err := Attach(mem)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	again.Heartbeat()
	if got := rings.Beat(); got != 6 {
		t.Errorf("beat after reattach = %d; want 6", got)
	}
}
