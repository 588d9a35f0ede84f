// Package graph turns a staged tandem.Patch into its executable form: nodes
// instantiated through the registry, a validated topological order and one
// preallocated buffer per edge, so running the graph on the production path
// allocates nothing.
package graph

import (
	"fmt"

	"github.com/viterin/vek/vek32"

	"tandem"
)

type (
	// Graph is a compiled, immutable snapshot of a patch. Compile either
	// succeeds completely or returns an error leaving the previously
	// compiled graph untouched; no partially built graph is ever visible.
	Graph struct {
		nodes   []execNode
		byID    map[tandem.ModuleID]int
		sink    int
		frame   int
		silence []float32
	}

	execNode struct {
		id     tandem.ModuleID
		kind   *tandem.Kind
		module tandem.Module
		in     [][]float32 // one buffer per input port, silence if unconnected
		out    []float32
	}
)

// Compile validates and instantiates patch. Validation order: structure
// (unknown nodes, duplicate ports), kinds and parameter ranges against the
// registry, then cycle detection via Kahn's algorithm. Nodes with equal
// in-degree are ordered by creation order, so identical edit sequences
// always compile to identical execution orders.
func Compile(patch *tandem.Patch, registry *tandem.Registry, sampleRate, frame int) (*Graph, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	if len(patch.Nodes) == 0 {
		return nil, tandem.ErrNoOutput
	}

	order, err := topoOrder(patch)
	if err != nil {
		return nil, err
	}

	g := &Graph{
		nodes:   make([]execNode, 0, len(patch.Nodes)),
		byID:    make(map[tandem.ModuleID]int, len(patch.Nodes)),
		frame:   frame,
		silence: make([]float32, frame),
	}
	vek32.Zeros_Into(g.silence, frame)
	for _, ni := range order {
		node := &patch.Nodes[ni]
		kind, ok := registry.Lookup(node.Kind)
		if !ok {
			return nil, fmt.Errorf("node %d kind %q: %w", node.ID, node.Kind, tandem.ErrUnknownKind)
		}
		module := kind.New(sampleRate)
		for pid, value := range node.Params {
			if int(pid) >= len(kind.Params) {
				continue
			}
			module.SetParam(pid, kind.Params[pid].Clamp(value))
		}
		in := make([][]float32, kind.Inputs)
		for port := range in {
			in[port] = g.silence
		}
		g.byID[node.ID] = len(g.nodes)
		g.nodes = append(g.nodes, execNode{
			id:     node.ID,
			kind:   kind,
			module: module,
			in:     in,
			out:    make([]float32, frame),
		})
	}

	// Wire edges: each edge gets the source node's output buffer routed into
	// the destination port. Ports beyond the kind's declared inputs are a
	// commit-time error, not a runtime surprise.
	for _, e := range patch.Edges {
		src := g.nodes[g.byID[e.From]]
		dst := &g.nodes[g.byID[e.To]]
		if e.ToPort >= len(dst.in) {
			return nil, fmt.Errorf("edge %d.%d -> %d.%d: %w", e.From, e.FromPort, e.To, e.ToPort, tandem.ErrBadPort)
		}
		dst.in[e.ToPort] = src.out
	}

	g.sink = g.byID[patch.Output]
	return g, nil
}

// topoOrder runs Kahn's algorithm over the patch, returning node indices in
// execution order. Any node left unvisited after the zero-in-degree set is
// exhausted sits on a cycle.
func topoOrder(patch *tandem.Patch) ([]int, error) {
	n := len(patch.Nodes)
	indexOf := make(map[tandem.ModuleID]int, n)
	for i := range patch.Nodes {
		indexOf[patch.Nodes[i].ID] = i
	}
	indegree := make([]int, n)
	for _, e := range patch.Edges {
		indegree[indexOf[e.To]]++
	}

	order := make([]int, 0, n)
	visited := make([]bool, n)
	for len(order) < n {
		// Scan in creation order: the first unvisited zero-in-degree node is
		// the deterministic tie-break.
		next := -1
		for i := 0; i < n; i++ {
			if !visited[i] && indegree[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			return nil, fmt.Errorf("%d nodes unresolvable: %w", n-len(order), tandem.ErrCycle)
		}
		visited[next] = true
		order = append(order, next)
		id := patch.Nodes[next].ID
		for _, e := range patch.Edges {
			if e.From == id {
				indegree[indexOf[e.To]]--
			}
		}
	}
	return order, nil
}

// Run executes every node in topological order and returns the sink node's
// output buffer. The returned slice is owned by the graph and valid until
// the next Run. Run performs no allocation.
func (g *Graph) Run() []float32 {
	for i := range g.nodes {
		n := &g.nodes[i]
		n.module.Process(n.in, n.out)
	}
	return g.nodes[g.sink].out
}

// Frame returns the buffer length the graph was compiled for.
func (g *Graph) Frame() int { return g.frame }

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Order returns the compiled execution order as module ids, for tests and
// debugging surfaces.
func (g *Graph) Order() []tandem.ModuleID {
	ids := make([]tandem.ModuleID, len(g.nodes))
	for i := range g.nodes {
		ids[i] = g.nodes[i].id
	}
	return ids
}

// SetParam clamps value against the node's ParamSpec and forwards it to the
// module. This is the control-path clamp; Process never range-checks.
// Unknown ids or parameters report false and the caller counts them.
func (g *Graph) SetParam(id tandem.ModuleID, param tandem.ParamID, value float32) bool {
	i, ok := g.byID[id]
	if !ok {
		return false
	}
	n := &g.nodes[i]
	if int(param) >= len(n.kind.Params) {
		return false
	}
	n.module.SetParam(param, n.kind.Params[param].Clamp(value))
	return true
}

// Gate forwards a gate edge to the module with the given id.
func (g *Graph) Gate(id tandem.ModuleID, on bool) bool {
	i, ok := g.byID[id]
	if !ok {
		return false
	}
	g.nodes[i].module.Gate(on)
	return true
}
