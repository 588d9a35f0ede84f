package ring

import "sync/atomic"

type (
	// AudioRing is the single-producer/single-consumer buffer ring a worker
	// writes and the audio callback reads. The ring is a cushion, not a queue
	// of record: a producer that outruns the consumer overwrites the oldest
	// unread slot and never blocks.
	//
	// Slot sequences are one-based (slot index + 1) so zero unambiguously
	// means "write in progress". A sequence strictly increases every lap,
	// which both publishes the write and lets a reader detect that a lapping
	// writer tore the slot under its feet.
	AudioRing struct {
		mem      []byte
		capacity uint64
		mask     uint64
		frame    int
		stride   int
	}
)

// AudioRingSize returns the region size needed for a ring of capacity slots
// of frame samples each.
func AudioRingSize(capacity, frame int) int {
	return headerSize + capacity*audioStride(frame)
}

func audioStride(frame int) int {
	return pad8(8 + frame*4)
}

// NewAudioRing initializes a ring over mem. Only the segment creator calls
// this; attached processes use AttachAudioRing so the indices survive a
// worker respawn.
func NewAudioRing(mem []byte, capacity, frame int) (*AudioRing, error) {
	if err := checkCapacity(capacity); err != nil {
		return nil, err
	}
	if frame < 2 || frame%2 != 0 {
		return nil, ErrRegion
	}
	if err := checkRegion(mem, AudioRingSize(capacity, frame)); err != nil {
		return nil, err
	}
	u64at(mem, offHead).Store(0)
	u64at(mem, offTail).Store(0)
	u64at(mem, offCapacity).Store(uint64(capacity))
	u64at(mem, offMeta).Store(uint64(frame))
	r := view(mem, capacity, frame)
	for i := 0; i < capacity; i++ {
		r.slotSeq(uint64(i)).Store(0)
	}
	return r, nil
}

// AttachAudioRing maps an already initialized ring without resetting its
// indices. The ring belongs to the slot, not to the worker: a replacement
// worker attaches to the same region the crashed one wrote.
func AttachAudioRing(mem []byte) (*AudioRing, error) {
	if err := checkRegion(mem, headerSize); err != nil {
		return nil, err
	}
	capacity := int(u64at(mem, offCapacity).Load())
	frame := int(u64at(mem, offMeta).Load())
	if err := checkCapacity(capacity); err != nil {
		return nil, err
	}
	if err := checkRegion(mem, AudioRingSize(capacity, frame)); err != nil {
		return nil, err
	}
	return view(mem, capacity, frame), nil
}

func view(mem []byte, capacity, frame int) *AudioRing {
	return &AudioRing{
		mem:      mem,
		capacity: uint64(capacity),
		mask:     uint64(capacity) - 1,
		frame:    frame,
		stride:   audioStride(frame),
	}
}

func (r *AudioRing) slotOff(idx uint64) int {
	return headerSize + int(idx&r.mask)*r.stride
}

func (r *AudioRing) slotSeq(idx uint64) *atomic.Uint64 {
	return u64at(r.mem, r.slotOff(idx))
}

func (r *AudioRing) slotSamples(idx uint64) []float32 {
	return floatsAt(r.mem, r.slotOff(idx)+8, r.frame)
}

// Frame returns the samples-per-slot the ring was created with.
func (r *AudioRing) Frame() int { return r.frame }

// Capacity returns the number of slots.
func (r *AudioRing) Capacity() int { return int(r.capacity) }

// Write publishes one buffer. samples must be exactly Frame long. The
// returned sequence is the one-based, strictly increasing publish number;
// overwrote reports that the oldest unread slot was discarded to make room.
func (r *AudioRing) Write(samples []float32) (seq uint64, overwrote bool) {
	if len(samples) != r.frame {
		return 0, false
	}
	head := u64at(r.mem, offHead)
	tail := u64at(r.mem, offTail)
	h := head.Load()
	if t := tail.Load(); h-t >= r.capacity {
		// Full: push the reader cursor forward. The CAS may lose to the
		// consumer advancing on its own, which frees the slot just as well.
		overwrote = tail.CompareAndSwap(t, t+1)
	}
	s := r.slotSeq(h)
	s.Store(0) // mark in progress so a concurrent reader retries
	copy(r.slotSamples(h), samples)
	s.Store(h + 1)
	head.Store(h + 1)
	return h + 1, overwrote
}

// Read pops the oldest unread buffer into dst. It returns false when the
// ring is empty. Slots the writer has already lapped are skipped, never
// returned torn or out of order.
func (r *AudioRing) Read(dst []float32) (seq uint64, ok bool) {
	head := u64at(r.mem, offHead)
	tail := u64at(r.mem, offTail)
	for {
		t := tail.Load()
		if t >= head.Load() {
			return 0, false
		}
		s := r.slotSeq(t)
		s1 := s.Load()
		if s1 != t+1 {
			// Lapped by the writer; drop the stale cursor position.
			tail.CompareAndSwap(t, t+1)
			continue
		}
		copy(dst, r.slotSamples(t))
		if s.Load() != s1 {
			continue // torn mid-copy, retry
		}
		if tail.CompareAndSwap(t, t+1) {
			return s1, true
		}
	}
}

// ReadLatest copies the newest complete buffer into dst, retiring all but
// keep unread slots behind it so a brief production stall does not starve
// the consumer. It returns false only if nothing has ever been produced.
// The consumer may call this at a different rate than production; rereading
// the same buffer returns the same sequence again.
func (r *AudioRing) ReadLatest(keep int, dst []float32) (seq uint64, ok bool) {
	if keep < 0 {
		keep = 0
	}
	head := u64at(r.mem, offHead)
	tail := u64at(r.mem, offTail)
	for tries := 0; tries < 16; tries++ {
		h := head.Load()
		if h == 0 {
			return 0, false
		}
		idx := h - 1
		s := r.slotSeq(idx)
		s1 := s.Load()
		copy(dst, r.slotSamples(idx))
		if s.Load() != s1 || s1 != idx+1 {
			continue // writer lapped into this slot mid-copy
		}
		retire := h - min64(h, uint64(keep)+1)
		if t := tail.Load(); retire > t {
			tail.CompareAndSwap(t, retire)
		}
		return s1, true
	}
	return 0, false
}

// Occupancy is the number of published, unread slots.
func (r *AudioRing) Occupancy() int {
	h := u64at(r.mem, offHead).Load()
	t := u64at(r.mem, offTail).Load()
	if h < t {
		return 0
	}
	return int(h - t)
}

// Sequence is the sequence number of the most recently published buffer,
// zero if nothing has been produced yet.
func (r *AudioRing) Sequence() uint64 {
	return u64at(r.mem, offHead).Load()
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
