package wire_test

import (
	"errors"
	"testing"

	"tandem/wire"
)

func TestSetParamRoundTrip(t *testing.T) {
	in := wire.SetParam(3, 1, 440.0)
	in.Sequence = 17
	data := in.Encode(nil)
	if len(data) != wire.PacketSize {
		t.Fatalf("encoded size = %d; want %d", len(data), wire.PacketSize)
	}
	out, err := wire.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out != in {
		t.Errorf("round trip mismatch:\n in %+v\nout %+v", in, out)
	}
}

func TestConnectRoundTrip(t *testing.T) {
	in := wire.PatchConnect(5, 0, 9, 3)
	out, err := wire.Decode(in.Encode(nil))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Module != 5 || out.SrcPort != 0 || out.Int() != 9 || out.DstPort != 3 {
		t.Errorf("connect fields lost: %+v (dst %d)", out, out.Int())
	}
}

func TestGateBool(t *testing.T) {
	for _, on := range []bool{true, false} {
		gate := wire.Gate(2, on)
		out, err := wire.Decode(gate.Encode(nil))
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if out.Bool() != on {
			t.Errorf("gate %v round-tripped as %v", on, out.Bool())
		}
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	setParam := wire.SetParam(1, 0, 1)
	good := setParam.Encode(nil)

	for _, tc := range []struct {
		name   string
		mangle func([]byte) []byte
		want   error
	}{
		{"truncated", func(b []byte) []byte { return b[:wire.PacketSize-1] }, wire.ErrTruncated},
		{"empty", func(b []byte) []byte { return nil }, wire.ErrTruncated},
		{"version", func(b []byte) []byte { b[0] = 99; return b }, wire.ErrVersion},
		{"opcode", func(b []byte) []byte { b[1] = 200; return b }, wire.ErrOpcode},
		{"dtype", func(b []byte) []byte { b[2] = 7; return b }, wire.ErrDtype},
	} {
		t.Run(tc.name, func(t *testing.T) {
			buf := make([]byte, len(good))
			copy(buf, good)
			if _, err := wire.Decode(tc.mangle(buf)); !errors.Is(err, tc.want) {
				t.Errorf("Decode = %v; want %v", err, tc.want)
			}
		})
	}
}

func TestEncodeToNoAlloc(t *testing.T) {
	pkt := wire.SetParam(1, 2, 3)
	dst := make([]byte, wire.PacketSize)
	allocs := testing.AllocsPerRun(100, func() {
		if err := pkt.EncodeTo(dst); err != nil {
			t.Fatal(err)
		}
	})
	if allocs != 0 {
		t.Errorf("EncodeTo allocates %v times per run", allocs)
	}
}
