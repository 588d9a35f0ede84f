package ring

import "sync/atomic"

type (
	// CommandRing is the multi-producer/single-consumer packet ring feeding a
	// worker. Any control thread may push; only the slot's worker pops. The
	// reservation protocol is the sequence-per-slot CAS queue: a producer
	// claims a position by CAS on head, writes the packet, then publishes by
	// storing position+1 into the slot sequence. The consumer frees a slot
	// for the next lap by storing position+capacity.
	//
	// Unlike the audio ring, a full command ring rejects the push: commands
	// are drained completely every worker cycle, so sustained fullness means
	// a flooding producer, which the caller reports as a metric.
	CommandRing struct {
		mem      []byte
		capacity uint64
		mask     uint64
		psize    int
		stride   int
	}
)

// CommandRingSize returns the region size for capacity packets of psize
// bytes each.
func CommandRingSize(capacity, psize int) int {
	return headerSize + capacity*commandStride(psize)
}

func commandStride(psize int) int {
	return 8 + pad8(psize)
}

// NewCommandRing initializes a ring over mem.
func NewCommandRing(mem []byte, capacity, psize int) (*CommandRing, error) {
	if err := checkCapacity(capacity); err != nil {
		return nil, err
	}
	if psize < 1 {
		return nil, ErrRegion
	}
	if err := checkRegion(mem, CommandRingSize(capacity, psize)); err != nil {
		return nil, err
	}
	u64at(mem, offHead).Store(0)
	u64at(mem, offTail).Store(0)
	u64at(mem, offCapacity).Store(uint64(capacity))
	u64at(mem, offMeta).Store(uint64(psize))
	r := commandView(mem, capacity, psize)
	for i := uint64(0); i < uint64(capacity); i++ {
		r.slotSeq(i).Store(i)
	}
	return r, nil
}

// AttachCommandRing maps an already initialized ring without resetting it.
// Pending packets survive: a respawned worker drains whatever the crashed
// one had not yet consumed, plus the replayed state the supervisor pushes.
func AttachCommandRing(mem []byte) (*CommandRing, error) {
	if err := checkRegion(mem, headerSize); err != nil {
		return nil, err
	}
	capacity := int(u64at(mem, offCapacity).Load())
	psize := int(u64at(mem, offMeta).Load())
	if err := checkCapacity(capacity); err != nil {
		return nil, err
	}
	if err := checkRegion(mem, CommandRingSize(capacity, psize)); err != nil {
		return nil, err
	}
	return commandView(mem, capacity, psize), nil
}

func commandView(mem []byte, capacity, psize int) *CommandRing {
	return &CommandRing{
		mem:      mem,
		capacity: uint64(capacity),
		mask:     uint64(capacity) - 1,
		psize:    psize,
		stride:   commandStride(psize),
	}
}

func (r *CommandRing) slotOff(idx uint64) int {
	return headerSize + int(idx&r.mask)*r.stride
}

func (r *CommandRing) slotSeq(idx uint64) *atomic.Uint64 {
	return u64at(r.mem, r.slotOff(idx))
}

func (r *CommandRing) slotData(idx uint64) []byte {
	off := r.slotOff(idx) + 8
	return r.mem[off : off+r.psize]
}

// PacketSize returns the packet width the ring was created with.
func (r *CommandRing) PacketSize() int { return r.psize }

// Capacity returns the number of packet slots.
func (r *CommandRing) Capacity() int { return int(r.capacity) }

// Push enqueues one packet. pkt must be exactly PacketSize bytes. Push never
// blocks; a full ring returns ErrFull and the caller drops and counts.
func (r *CommandRing) Push(pkt []byte) error {
	if len(pkt) != r.psize {
		return ErrRegion
	}
	head := u64at(r.mem, offHead)
	for {
		pos := head.Load()
		s := r.slotSeq(pos)
		seq := s.Load()
		switch dif := int64(seq) - int64(pos); {
		case dif == 0:
			if head.CompareAndSwap(pos, pos+1) {
				copy(r.slotData(pos), pkt)
				s.Store(pos + 1)
				return nil
			}
		case dif < 0:
			return ErrFull
		}
		// Another producer claimed this position; retry at the new head.
	}
}

// Pop dequeues the oldest packet into dst. Single consumer only.
func (r *CommandRing) Pop(dst []byte) bool {
	tail := u64at(r.mem, offTail)
	pos := tail.Load()
	s := r.slotSeq(pos)
	if int64(s.Load())-int64(pos+1) != 0 {
		return false
	}
	copy(dst, r.slotData(pos))
	s.Store(pos + r.capacity)
	tail.Store(pos + 1)
	return true
}

// Len is the approximate number of pending packets.
func (r *CommandRing) Len() int {
	h := u64at(r.mem, offHead).Load()
	t := u64at(r.mem, offTail).Load()
	if h < t {
		return 0
	}
	return int(h - t)
}
