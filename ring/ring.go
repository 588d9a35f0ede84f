// Package ring implements the lock-free circular buffers that workers, the
// control plane and the audio callback share. Both ring flavors operate over
// a caller-provided byte region, so the same code runs over a mmapped
// shared-memory segment in production and over plain heap memory in tests.
//
// The audio ring is single-producer/single-consumer with per-slot sequence
// numbers: a slot becomes visible only after its samples are fully written
// (write, then publish the sequence), and a reader that races a lapping
// writer detects the torn slot by re-checking the sequence. The command ring
// is a multi-producer/single-consumer Vyukov queue; per-slot sequences make
// the reservation ABA-safe.
package ring

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"
)

var (
	ErrFull     = errors.New("ring full")
	ErrCapacity = errors.New("ring capacity must be a power of two and >= 2")
	ErrRegion   = errors.New("memory region too small for ring")
)

// Header field offsets inside a ring region. Producer- and consumer-owned
// indices live on separate cache lines so the two sides never false-share.
const (
	offHead     = 0
	offTail     = 64
	offCapacity = 128
	offMeta     = 136 // frame length (audio) or packet size (command)
	headerSize  = 192
)

func u64at(mem []byte, off int) *atomic.Uint64 {
	return (*atomic.Uint64)(unsafe.Pointer(&mem[off]))
}

func floatsAt(mem []byte, off, n int) []float32 {
	return unsafe.Slice((*float32)(unsafe.Pointer(&mem[off])), n)
}

func checkRegion(mem []byte, need int) error {
	if len(mem) < need {
		return fmt.Errorf("%w: have %d, need %d", ErrRegion, len(mem), need)
	}
	if uintptr(unsafe.Pointer(&mem[0]))%8 != 0 {
		return fmt.Errorf("%w: region not 8-byte aligned", ErrRegion)
	}
	return nil
}

func checkCapacity(capacity int) error {
	if capacity < 2 || capacity&(capacity-1) != 0 {
		return fmt.Errorf("%w: %d", ErrCapacity, capacity)
	}
	return nil
}

// AlignedRegion allocates a heap-backed, 8-byte aligned region. Production
// code maps rings over page-aligned shared memory; this is for tests and for
// the in-process offline render path.
func AlignedRegion(size int) []byte {
	words := make([]uint64, (size+7)/8)
	return unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), size)
}

func pad8(n int) int {
	return (n + 7) &^ 7
}
