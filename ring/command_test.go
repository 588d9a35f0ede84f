package ring_test

import (
	"encoding/binary"
	"errors"
	"sync"
	"testing"

	"tandem/ring"
)

const testPacket = 20

func newTestCommandRing(t *testing.T, capacity int) *ring.CommandRing {
	t.Helper()
	mem := ring.AlignedRegion(ring.CommandRingSize(capacity, testPacket))
	r, err := ring.NewCommandRing(mem, capacity, testPacket)
	if err != nil {
		t.Fatalf("NewCommandRing: %v", err)
	}
	return r
}

func packet(n uint32) []byte {
	pkt := make([]byte, testPacket)
	binary.LittleEndian.PutUint32(pkt, n)
	return pkt
}

func TestCommandRingFIFO(t *testing.T) {
	r := newTestCommandRing(t, 8)
	for i := uint32(0); i < 5; i++ {
		if err := r.Push(packet(i)); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	if got := r.Len(); got != 5 {
		t.Errorf("Len = %d; want 5", got)
	}
	dst := make([]byte, testPacket)
	for i := uint32(0); i < 5; i++ {
		if !r.Pop(dst) {
			t.Fatalf("pop %d: ring empty", i)
		}
		if got := binary.LittleEndian.Uint32(dst); got != i {
			t.Errorf("pop %d returned %d", i, got)
		}
	}
	if r.Pop(dst) {
		t.Error("pop on drained ring should fail")
	}
}

func TestCommandRingFull(t *testing.T) {
	r := newTestCommandRing(t, 4)
	for i := uint32(0); i < 4; i++ {
		if err := r.Push(packet(i)); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	if err := r.Push(packet(99)); !errors.Is(err, ring.ErrFull) {
		t.Errorf("push on full ring = %v; want ErrFull", err)
	}
	// Draining one slot frees it for the next lap.
	dst := make([]byte, testPacket)
	if !r.Pop(dst) {
		t.Fatal("pop failed")
	}
	if err := r.Push(packet(99)); err != nil {
		t.Errorf("push after pop: %v", err)
	}
}

// TestCommandRingMultiProducer checks the broadcast-producer side: several
// goroutines push disjoint values concurrently and the single consumer must
// observe every value exactly once, with no torn packets.
func TestCommandRingMultiProducer(t *testing.T) {
	r := newTestCommandRing(t, 64)
	const producers = 4
	const perProducer = 10000

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			pkt := make([]byte, testPacket)
			for i := 0; i < perProducer; i++ {
				v := uint32(p*perProducer + i)
				binary.LittleEndian.PutUint32(pkt, v)
				binary.LittleEndian.PutUint32(pkt[16:], ^v) // redundancy to catch tearing
				for r.Push(pkt) != nil {
				}
			}
		}(p)
	}

	seen := make([]bool, producers*perProducer)
	dst := make([]byte, testPacket)
	for n := 0; n < len(seen); {
		if !r.Pop(dst) {
			continue
		}
		v := binary.LittleEndian.Uint32(dst)
		if check := binary.LittleEndian.Uint32(dst[16:]); check != ^v {
			t.Fatalf("torn packet: value %d check %x", v, check)
		}
		if seen[v] {
			t.Fatalf("value %d consumed twice", v)
		}
		seen[v] = true
		n++
	}
	wg.Wait()
}

func TestCommandRingAttach(t *testing.T) {
	mem := ring.AlignedRegion(ring.CommandRingSize(8, testPacket))
	r, err := ring.NewCommandRing(mem, 8, testPacket)
	if err != nil {
		t.Fatalf("NewCommandRing: %v", err)
	}
	r.Push(packet(7))

	attached, err := ring.AttachCommandRing(mem)
	if err != nil {
		t.Fatalf("AttachCommandRing: %v", err)
	}
	dst := make([]byte, testPacket)
	if !attached.Pop(dst) {
		t.Fatal("pending packet lost across attach")
	}
	if got := binary.LittleEndian.Uint32(dst); got != 7 {
		t.Errorf("attached pop = %d; want 7", got)
	}
}
