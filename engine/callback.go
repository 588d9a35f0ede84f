package engine

import (
	"encoding/binary"
	"math"
	"sync/atomic"

	"tandem/slot"
)

// ActiveReader adapts the active slot's audio ring to the pull model the
// audio device uses: an io.Reader of 16-bit little-endian mono samples.
// Each pull takes the newest published buffer from whichever slot is active
// at that moment and retires anything older, so a pause or a failover never
// replays a backlog of stale frames; after a failover the next pull lands
// directly on the promoted slot's freshest output. When no new buffer has
// been published the reader emits silence instead of blocking, so a worker
// stall degrades to a dropout, never a device stall.
type ActiveReader struct {
	sup     *Supervisor
	frame   []float32
	pending []byte
	off     int

	lastRing *slot.Rings
	lastSeq  uint64

	underruns atomic.Uint64
}

// NewActiveReader builds a reader producing frames of the given size.
func NewActiveReader(sup *Supervisor, frame int) *ActiveReader {
	return &ActiveReader{
		sup:     sup,
		frame:   make([]float32, frame),
		pending: make([]byte, frame*2),
		off:     frame * 2,
	}
}

// Read fills p with converted samples. It never returns an error and never
// returns 0 bytes for a non-empty p.
func (r *ActiveReader) Read(p []byte) (int, error) {
	filled := 0
	for filled < len(p) {
		if r.off == len(r.pending) {
			r.pull()
		}
		n := copy(p[filled:], r.pending[r.off:])
		r.off += n
		filled += n
	}
	return filled, nil
}

// pull fetches the newest buffer from the active ring and converts it. A
// buffer already played once, or a ring that has produced nothing, converts
// to a zero frame instead.
func (r *ActiveReader) pull() {
	rings := r.sup.ActiveSlot().Rings
	if rings != r.lastRing {
		r.lastRing = rings
		r.lastSeq = 0
	}
	seq, ok := rings.Audio.ReadLatest(1, r.frame)
	if !ok || seq == r.lastSeq {
		r.underruns.Add(1)
		for i := range r.frame {
			r.frame[i] = 0
		}
	} else {
		r.lastSeq = seq
	}
	floatsTo16BitLE(r.frame, r.pending)
	r.off = 0
}

// Underruns reports how many frames were replaced with silence because the
// active ring had nothing to read.
func (r *ActiveReader) Underruns() uint64 { return r.underruns.Load() }

// floatsTo16BitLE clips samples to [-1, 1] and packs them as 16-bit
// little-endian PCM.
func floatsTo16BitLE(src []float32, dst []byte) {
	for i, v := range src {
		if v < -1 {
			v = -1
		} else if v > 1 {
			v = 1
		}
		s := int16(v * math.MaxInt16)
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(s))
	}
}
