package tandem

import (
	"fmt"
	"runtime"
	"sort"
)

// Default format of the production pipeline. Workers and the audio callback
// are buffer-quantized: all parameter changes and gate edges take effect at
// the boundary of a BufferSize block, never inside one.
const (
	DefaultSampleRate = 48000
	DefaultBufferSize = 256
)

type (
	// ModuleID identifies a node inside a Patch. IDs are assigned by the
	// control plane and are never reused within the lifetime of a patch.
	ModuleID uint32

	// ParamID is an index into the Kind's ParamSpec table of a module.
	ParamID uint16

	// Module is the contract every signal processor implements. Process is
	// called once per buffer on the worker's production path and must not
	// allocate, block or panic; out-of-range inputs are clamped on the
	// control path before they ever reach Process. SetParam updates the
	// smoothing target of a parameter, it never snaps the live value unless
	// the parameter's smoothing mode is SmoothNone. Gate drives modules with
	// discrete phases (envelopes); others are free to ignore it.
	Module interface {
		Process(in [][]float32, out []float32)
		SetParam(id ParamID, value float32)
		Gate(on bool)
	}

	// Kind describes one registered module type: its wire code, how many
	// input ports it consumes and the parameters it takes.
	Kind struct {
		Name   string
		Code   uint16
		Inputs int
		Params []ParamSpec
		New    func(sampleRate int) Module
	}

	// Registry maps module kinds to constructors. It is populated explicitly
	// at startup (no runtime reflection or scanning) and is read-only
	// afterwards, so lookups on the worker path need no locking.
	Registry struct {
		byName map[string]*Kind
		byCode map[uint16]*Kind
		kinds  []*Kind
	}
)

func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Kind),
		byCode: make(map[uint16]*Kind),
	}
}

// Register validates a Kind and adds it to the registry. A constructed
// instance is exercised once through Process with scratch buffers; a kind
// whose Process allocates is rejected here so it can never end up inside a
// live graph.
func (r *Registry) Register(k Kind) error {
	if k.Name == "" || k.New == nil {
		return fmt.Errorf("register %q: incomplete kind", k.Name)
	}
	if _, ok := r.byName[k.Name]; ok {
		return fmt.Errorf("register %q: duplicate name", k.Name)
	}
	if _, ok := r.byCode[k.Code]; ok {
		return fmt.Errorf("register %q: duplicate code %d", k.Name, k.Code)
	}
	if err := checkProcessAllocs(&k); err != nil {
		return fmt.Errorf("register %q: %w", k.Name, err)
	}
	kind := k
	r.byName[k.Name] = &kind
	r.byCode[k.Code] = &kind
	r.kinds = append(r.kinds, &kind)
	return nil
}

func (r *Registry) Lookup(name string) (*Kind, bool) {
	k, ok := r.byName[name]
	return k, ok
}

func (r *Registry) LookupCode(code uint16) (*Kind, bool) {
	k, ok := r.byCode[code]
	return k, ok
}

// Kinds returns all registered kinds sorted by name.
func (r *Registry) Kinds() []*Kind {
	ret := make([]*Kind, len(r.kinds))
	copy(ret, r.kinds)
	sort.Slice(ret, func(i, j int) bool { return ret[i].Name < ret[j].Name })
	return ret
}

// checkProcessAllocs runs a fresh instance through a few Process calls and
// measures heap allocations around them. This is a startup self-check, not a
// hot-path guard; it runs once per registered kind.
func checkProcessAllocs(k *Kind) error {
	m := k.New(DefaultSampleRate)
	in := make([][]float32, k.Inputs)
	for i := range in {
		in[i] = make([]float32, DefaultBufferSize)
	}
	out := make([]float32, DefaultBufferSize)
	m.Gate(true)
	m.Process(in, out) // warm up any lazy initialization
	runtime.GC()
	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	for i := 0; i < 8; i++ {
		m.Process(in, out)
	}
	runtime.ReadMemStats(&after)
	if allocs := after.Mallocs - before.Mallocs; allocs > 0 {
		return fmt.Errorf("process allocated %d times during self-check", allocs)
	}
	return nil
}
