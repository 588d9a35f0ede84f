package tandem

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Errors reported while editing or compiling a patch. Edits and commits that
// fail leave the previously committed graph untouched; there is never a
// partially applied patch.
var (
	ErrUnknownNode   = errors.New("unknown node")
	ErrUnknownKind   = errors.New("unknown module kind")
	ErrDuplicateNode = errors.New("duplicate node id")
	ErrDuplicateEdge = errors.New("duplicate edge into destination port")
	ErrBadPort       = errors.New("port out of range")
	ErrCycle         = errors.New("patch contains a cycle")
	ErrNoOutput      = errors.New("patch has no output node")
)

type (
	// Patch is the staged, editable form of a module graph: a list of nodes
	// in creation order and the edges connecting them. A Patch is plain data;
	// it only becomes executable through graph.Compile. Node order is
	// significant: it is the tie-break for the compiled execution order, so
	// identical edit sequences always compile identically.
	Patch struct {
		Nodes  []Node   `yaml:",omitempty"`
		Edges  []Edge   `yaml:",omitempty"`
		Output ModuleID `yaml:",omitempty"`
	}

	// Node is one module instance in a patch: its id, kind tag and initial
	// parameter values by ParamSpec index. Parameters not listed start at the
	// kind's defaults.
	Node struct {
		ID     ModuleID
		Kind   string
		Params map[ParamID]float32 `yaml:",flow,omitempty"`
	}

	// Edge routes the output port of one node into an input port of another.
	// Endpoints are (ModuleID, port) pairs resolved through the node table,
	// never direct references, so a patch is trivially serializable.
	Edge struct {
		From     ModuleID
		FromPort int `yaml:"fromPort"`
		To       ModuleID
		ToPort   int `yaml:"toPort"`
	}
)

func (p *Patch) Copy() Patch {
	nodes := make([]Node, len(p.Nodes))
	for i, n := range p.Nodes {
		nodes[i] = n.Copy()
	}
	edges := make([]Edge, len(p.Edges))
	copy(edges, p.Edges)
	return Patch{Nodes: nodes, Edges: edges, Output: p.Output}
}

func (n *Node) Copy() Node {
	params := make(map[ParamID]float32, len(n.Params))
	for k, v := range n.Params {
		params[k] = v
	}
	return Node{ID: n.ID, Kind: n.Kind, Params: params}
}

// FindNode returns the index of the node with the given id, or -1.
func (p *Patch) FindNode(id ModuleID) int {
	for i := range p.Nodes {
		if p.Nodes[i].ID == id {
			return i
		}
	}
	return -1
}

// AddNode appends a node. The id must be unused.
func (p *Patch) AddNode(id ModuleID, kind string) error {
	if p.FindNode(id) >= 0 {
		return fmt.Errorf("add node %d: %w", id, ErrDuplicateNode)
	}
	p.Nodes = append(p.Nodes, Node{ID: id, Kind: kind, Params: make(map[ParamID]float32)})
	if p.Output == 0 {
		p.Output = id
	}
	return nil
}

// Connect adds an edge. Both endpoints must exist and the destination port
// must not already be fed by another edge; summing happens inside mixer
// modules, not implicitly on ports.
func (p *Patch) Connect(from ModuleID, fromPort int, to ModuleID, toPort int) error {
	if p.FindNode(from) < 0 {
		return fmt.Errorf("connect: source %d: %w", from, ErrUnknownNode)
	}
	if p.FindNode(to) < 0 {
		return fmt.Errorf("connect: destination %d: %w", to, ErrUnknownNode)
	}
	if fromPort != 0 {
		return fmt.Errorf("connect: source port %d: %w", fromPort, ErrBadPort)
	}
	if toPort < 0 {
		return fmt.Errorf("connect: destination port %d: %w", toPort, ErrBadPort)
	}
	for _, e := range p.Edges {
		if e.To == to && e.ToPort == toPort {
			return fmt.Errorf("connect %d.%d -> %d.%d: %w", from, fromPort, to, toPort, ErrDuplicateEdge)
		}
	}
	p.Edges = append(p.Edges, Edge{From: from, FromPort: fromPort, To: to, ToPort: toPort})
	return nil
}

// SetParam records an initial parameter value on a node. Unknown nodes are an
// error; range clamping happens against the registry at compile time.
func (p *Patch) SetParam(id ModuleID, param ParamID, value float32) error {
	i := p.FindNode(id)
	if i < 0 {
		return fmt.Errorf("set param on %d: %w", id, ErrUnknownNode)
	}
	if p.Nodes[i].Params == nil {
		p.Nodes[i].Params = make(map[ParamID]float32)
	}
	p.Nodes[i].Params[param] = value
	return nil
}

// Validate checks the structural invariants that do not need a registry:
// unique node ids, edge endpoints existing, no duplicate destination ports
// and the output referencing a real node. Cycle detection is left to
// graph.Compile, which needs the full ordering pass anyway.
func (p *Patch) Validate() error {
	seen := make(map[ModuleID]bool, len(p.Nodes))
	for _, n := range p.Nodes {
		if seen[n.ID] {
			return fmt.Errorf("node %d: %w", n.ID, ErrDuplicateNode)
		}
		seen[n.ID] = true
	}
	ports := make(map[[2]int64]bool, len(p.Edges))
	for _, e := range p.Edges {
		if !seen[e.From] {
			return fmt.Errorf("edge source %d: %w", e.From, ErrUnknownNode)
		}
		if !seen[e.To] {
			return fmt.Errorf("edge destination %d: %w", e.To, ErrUnknownNode)
		}
		key := [2]int64{int64(e.To), int64(e.ToPort)}
		if ports[key] {
			return fmt.Errorf("edge into %d.%d: %w", e.To, e.ToPort, ErrDuplicateEdge)
		}
		ports[key] = true
	}
	if len(p.Nodes) > 0 && !seen[p.Output] {
		return fmt.Errorf("output %d: %w", p.Output, ErrNoOutput)
	}
	return nil
}

// Serialize renders the patch as YAML, the on-disk patch file format.
func (p *Patch) Serialize() ([]byte, error) {
	return yaml.Marshal(p)
}

// DeserializePatch parses a YAML patch file and validates its structure.
func DeserializePatch(data []byte) (Patch, error) {
	var p Patch
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Patch{}, fmt.Errorf("parse patch: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Patch{}, err
	}
	return p, nil
}
