// Package slot defines the shared-memory layout of one slot: a small control
// header (heartbeat), the slot's audio ring and its command ring. The
// supervisor initializes the layout once per slot at engine start; workers
// attach to it, possibly repeatedly across respawns. The rings belong to the
// slot for its whole lifetime, never to the worker process of the moment.
package slot

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"

	"tandem/ring"
)

const (
	magic = 0x744e444d31 // "tNDM1"

	offMagic    = 0
	offBeat     = 8
	offAudioOff = 16
	offCmdOff   = 20
	headerSize  = 64
)

var ErrLayout = errors.New("slot segment layout invalid")

// Rings is a mapped view of one slot's shared region.
type Rings struct {
	mem      []byte
	Audio    *ring.AudioRing
	Commands *ring.CommandRing
}

// Size returns the region size for the given ring geometry.
func Size(audioSlots, frame, cmdSlots, packetSize int) int {
	return headerSize + ring.AudioRingSize(audioSlots, frame) + ring.CommandRingSize(cmdSlots, packetSize)
}

// Init lays out and initializes a fresh slot region.
func Init(mem []byte, audioSlots, frame, cmdSlots, packetSize int) (*Rings, error) {
	if len(mem) < Size(audioSlots, frame, cmdSlots, packetSize) {
		return nil, fmt.Errorf("%w: region %d bytes", ErrLayout, len(mem))
	}
	audioOff := headerSize
	cmdOff := audioOff + ring.AudioRingSize(audioSlots, frame)

	audio, err := ring.NewAudioRing(mem[audioOff:cmdOff], audioSlots, frame)
	if err != nil {
		return nil, err
	}
	commands, err := ring.NewCommandRing(mem[cmdOff:], cmdSlots, packetSize)
	if err != nil {
		return nil, err
	}

	binary.LittleEndian.PutUint32(mem[offAudioOff:], uint32(audioOff))
	binary.LittleEndian.PutUint32(mem[offCmdOff:], uint32(cmdOff))
	beatWord(mem).Store(0)
	binary.LittleEndian.PutUint64(mem[offMagic:], magic)
	return &Rings{mem: mem, Audio: audio, Commands: commands}, nil
}

// Attach maps an already initialized slot region without touching any ring
// state.
func Attach(mem []byte) (*Rings, error) {
	if len(mem) < headerSize {
		return nil, fmt.Errorf("%w: region %d bytes", ErrLayout, len(mem))
	}
	if binary.LittleEndian.Uint64(mem[offMagic:]) != magic {
		return nil, fmt.Errorf("%w: bad magic", ErrLayout)
	}
	audioOff := int(binary.LittleEndian.Uint32(mem[offAudioOff:]))
	cmdOff := int(binary.LittleEndian.Uint32(mem[offCmdOff:]))
	if audioOff != headerSize || cmdOff <= audioOff || cmdOff >= len(mem) {
		return nil, fmt.Errorf("%w: offsets %d/%d", ErrLayout, audioOff, cmdOff)
	}
	audio, err := ring.AttachAudioRing(mem[audioOff:cmdOff])
	if err != nil {
		return nil, err
	}
	commands, err := ring.AttachCommandRing(mem[cmdOff:])
	if err != nil {
		return nil, err
	}
	return &Rings{mem: mem, Audio: audio, Commands: commands}, nil
}

func beatWord(mem []byte) *atomic.Uint64 {
	return (*atomic.Uint64)(unsafe.Pointer(&mem[offBeat]))
}

// Beat returns the heartbeat counter. The worker increments it once per loop
// wakeup; the supervisor treats a counter that stops moving as a crash.
func (r *Rings) Beat() uint64 {
	return beatWord(r.mem).Load()
}

// Heartbeat bumps the heartbeat counter.
func (r *Rings) Heartbeat() {
	beatWord(r.mem).Add(1)
}
