package engine

import (
	"fmt"
	"log/slog"
	"sync"

	"tandem"
	"tandem/ring"
	"tandem/slot"
	"tandem/wire"
)

type paramKey struct {
	module tandem.ModuleID
	param  tandem.ParamID
}

// Controller is the single command producer. Every submitted command is
// stamped with a monotonic sequence and broadcast to both slot command rings,
// so active and standby stay state-identical. It also keeps an authoritative
// mirror of everything sent, which is what a freshly respawned worker gets
// replayed to reach the current state.
type Controller struct {
	mu    sync.Mutex
	seq   uint32
	rings []*slot.Rings
	log   *slog.Logger
	buf   []byte

	// Mirror of the control state. Patch edits since the last abort are kept
	// as ordered history; params and gates keep only the latest value per
	// target, so a replay is bounded by patch size, not session length.
	patchOps  []wire.Packet
	committed bool
	params    map[paramKey]float32
	gates     map[tandem.ModuleID]bool

	drops uint64
}

// NewController routes commands into the given slot rings.
func NewController(rings []*slot.Rings, log *slog.Logger) *Controller {
	return &Controller{
		rings:  rings,
		log:    log,
		buf:    make([]byte, wire.PacketSize),
		params: make(map[paramKey]float32),
		gates:  make(map[tandem.ModuleID]bool),
	}
}

// Submit stamps the packet, records it in the mirror and pushes it to every
// slot. A full command ring drops the packet for that slot only; the drop is
// counted and logged, never blocked on.
func (c *Controller) Submit(pkt wire.Packet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitLocked(pkt)
}

func (c *Controller) submitLocked(pkt wire.Packet) {
	c.seq++
	pkt.Sequence = c.seq
	c.mirror(pkt)
	for i, r := range c.rings {
		c.pushLocked(r, pkt, i)
	}
}

func (c *Controller) pushLocked(r *slot.Rings, pkt wire.Packet, idx int) {
	if err := pkt.EncodeTo(c.buf); err != nil {
		c.log.Error("encoding command", "error", err)
		return
	}
	if err := r.Commands.Push(c.buf); err != nil {
		c.drops++
		c.log.Warn("command ring full, dropping",
			"slot", idx, "opcode", pkt.Opcode.String(), "sequence", pkt.Sequence)
	}
}

func (c *Controller) mirror(pkt wire.Packet) {
	switch pkt.Opcode {
	case wire.OpSetParam:
		c.params[paramKey{pkt.Module, pkt.Param}] = pkt.Value
	case wire.OpGate:
		c.gates[pkt.Module] = pkt.Bool()
	case wire.OpPatchAbort:
		// Uncommitted edits are discarded everywhere; drop them from the
		// history too so a replay never resurrects them.
		c.patchOps = c.trimUncommitted()
	case wire.OpPatchCreate, wire.OpPatchConnect:
		c.patchOps = append(c.patchOps, pkt)
	case wire.OpPatchCommit:
		c.patchOps = append(c.patchOps, pkt)
		c.committed = true
	}
}

// trimUncommitted cuts history back to the last commit.
func (c *Controller) trimUncommitted() []wire.Packet {
	for i := len(c.patchOps) - 1; i >= 0; i-- {
		if c.patchOps[i].Opcode == wire.OpPatchCommit {
			return c.patchOps[:i+1]
		}
	}
	return c.patchOps[:0]
}

// Replay pushes the mirrored state into a single slot's command ring: the
// patch history first, then the latest parameter values and gate states.
// This is how a respawned standby converges on the active worker's state
// without the rings ever being reset.
func (c *Controller) Replay(r *slot.Rings) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	need := len(c.patchOps) + len(c.params) + len(c.gates)
	if free := r.Commands.Capacity() - r.Commands.Len(); need > free {
		return fmt.Errorf("%w: replay needs %d slots, %d free", ring.ErrFull, need, free)
	}
	for _, pkt := range c.patchOps {
		c.pushLocked(r, pkt, -1)
	}
	for key, value := range c.params {
		pkt := wire.SetParam(key.module, key.param, value)
		pkt.Sequence = c.seq
		c.pushLocked(r, pkt, -1)
	}
	for module, on := range c.gates {
		pkt := wire.Gate(module, on)
		pkt.Sequence = c.seq
		c.pushLocked(r, pkt, -1)
	}
	return nil
}

// Committed reports whether any patch has been committed this session.
func (c *Controller) Committed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.committed
}

// Drops returns how many packets were lost to full command rings.
func (c *Controller) Drops() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drops
}

// SetParam routes a parameter change to both workers.
func (c *Controller) SetParam(module tandem.ModuleID, param tandem.ParamID, value float32) {
	c.Submit(wire.SetParam(module, param, value))
}

// Gate routes a gate edge to both workers.
func (c *Controller) Gate(module tandem.ModuleID, on bool) {
	c.Submit(wire.Gate(module, on))
}

// LoadPatch streams a whole patch as create/connect/param/commit commands.
// The workers validate and compile on commit; an invalid patch leaves them
// on their previous graph.
func (c *Controller) LoadPatch(p *tandem.Patch, registry *tandem.Registry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, n := range p.Nodes {
		kind, ok := registry.Lookup(n.Kind)
		if !ok {
			return fmt.Errorf("%w: %q", tandem.ErrUnknownKind, n.Kind)
		}
		c.submitLocked(wire.PatchCreate(n.ID, kind.Code))
	}
	for _, e := range p.Edges {
		c.submitLocked(wire.PatchConnect(e.From, e.FromPort, e.To, e.ToPort))
	}
	c.submitLocked(wire.PatchCommit(p.Output))
	for _, n := range p.Nodes {
		for id, value := range n.Params {
			c.submitLocked(wire.SetParam(n.ID, id, value))
		}
	}
	return nil
}
