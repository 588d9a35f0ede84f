package tandem

import (
	"errors"
	"testing"
)

func buildPatch(t *testing.T) *Patch {
	t.Helper()
	var p Patch
	if err := p.AddNode(1, "oscillator"); err != nil {
		t.Fatal(err)
	}
	if err := p.AddNode(2, "envelope"); err != nil {
		t.Fatal(err)
	}
	if err := p.AddNode(3, "gain"); err != nil {
		t.Fatal(err)
	}
	if err := p.Connect(1, 0, 2, 0); err != nil {
		t.Fatal(err)
	}
	if err := p.Connect(2, 0, 3, 0); err != nil {
		t.Fatal(err)
	}
	p.Output = 3
	return &p
}

func TestPatchEditErrors(t *testing.T) {
	p := buildPatch(t)
	if err := p.AddNode(1, "noise"); !errors.Is(err, ErrDuplicateNode) {
		t.Errorf("duplicate AddNode = %v; want ErrDuplicateNode", err)
	}
	if err := p.Connect(9, 0, 2, 0); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("connect from unknown = %v; want ErrUnknownNode", err)
	}
	if err := p.Connect(1, 0, 9, 0); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("connect to unknown = %v; want ErrUnknownNode", err)
	}
	if err := p.Connect(3, 0, 2, 0); !errors.Is(err, ErrDuplicateEdge) {
		t.Errorf("second edge into same port = %v; want ErrDuplicateEdge", err)
	}
	if err := p.SetParam(9, 0, 1); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("SetParam on unknown = %v; want ErrUnknownNode", err)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("valid patch failed validation after rejected edits: %v", err)
	}
}

func TestPatchCopyIsDeep(t *testing.T) {
	p := buildPatch(t)
	p.SetParam(1, 0, 440)
	c := p.Copy()
	c.Nodes[0].Params[0] = 880
	c.Edges[0].To = 99
	if p.Nodes[0].Params[0] != 440 {
		t.Error("copy shares node parameter storage")
	}
	if p.Edges[0].To != 2 {
		t.Error("copy shares edge storage")
	}
}

func TestPatchSerializeRoundTrip(t *testing.T) {
	p := buildPatch(t)
	p.SetParam(1, 0, 440)
	data, err := p.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	got, err := DeserializePatch(data)
	if err != nil {
		t.Fatalf("DeserializePatch: %v", err)
	}
	if len(got.Nodes) != 3 || len(got.Edges) != 2 || got.Output != 3 {
		t.Fatalf("round trip lost structure: %+v", got)
	}
	if got.Nodes[0].Kind != "oscillator" || got.Nodes[0].Params[0] != 440 {
		t.Errorf("round trip lost node detail: %+v", got.Nodes[0])
	}
}

func TestValidateCatchesCorruptPatch(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mangle func(*Patch)
		want   error
	}{
		{"duplicate node", func(p *Patch) { p.Nodes = append(p.Nodes, Node{ID: 1}) }, ErrDuplicateNode},
		{"edge from nowhere", func(p *Patch) { p.Edges[0].From = 42 }, ErrUnknownNode},
		{"edge to nowhere", func(p *Patch) { p.Edges[0].To = 42 }, ErrUnknownNode},
		{"output missing", func(p *Patch) { p.Output = 42 }, ErrNoOutput},
		{"two edges one port", func(p *Patch) { p.Edges = append(p.Edges, Edge{From: 1, To: 3, ToPort: 0}) }, ErrDuplicateEdge},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p := buildPatch(t)
			tc.mangle(p)
			if err := p.Validate(); !errors.Is(err, tc.want) {
				t.Errorf("Validate = %v; want %v", err, tc.want)
			}
		})
	}
}

func TestRegistryRejectsAllocatingModule(t *testing.T) {
	r := NewRegistry()
	err := r.Register(Kind{
		Name:   "leaky",
		Code:   99,
		Inputs: 0,
		New: func(int) Module {
			return &leakyModule{}
		},
	})
	if err == nil {
		t.Fatal("kind allocating in Process passed the self-check")
	}
}

type leakyModule struct{ sink []float32 }

func (m *leakyModule) Process(in [][]float32, out []float32) {
	m.sink = make([]float32, len(out)) // the exact mistake the check exists for
}
func (m *leakyModule) SetParam(ParamID, float32) {}
func (m *leakyModule) Gate(bool)                 {}
