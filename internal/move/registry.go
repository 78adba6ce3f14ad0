package move

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/gyaneshwarpardhi/phylomc/internal/dag"
)

// Params holds a proposal's numeric settings by name.
type Params map[string]float64

// get returns params[key] or def when unset.
func (p Params) get(key string, def float64) float64 {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

// Factory builds a proposal over a model node.
type Factory func(node dag.Node, params Params) (Proposal, error)

// Registry maps proposal type strings to factories.
// It is safe for concurrent reads; Register should only be called at startup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry holding the built-in proposals.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("scale", func(n dag.Node, p Params) (Proposal, error) {
		return NewScale(n, p.get("lambda", 1))
	})
	r.Register("slide", func(n dag.Node, p Params) (Proposal, error) {
		return NewSlide(n, p.get("delta", 0.1), p.get("lower", math.Inf(-1)), p.get("upper", math.Inf(1)))
	})
	r.Register("branch_length_scale", func(n dag.Node, p Params) (Proposal, error) {
		return NewBranchLengthScale(n, p.get("lambda", 1))
	})
	r.Register("nni", func(n dag.Node, _ Params) (Proposal, error) {
		return NewNNI(n)
	})
	return r
}

// Register adds a factory. Panics on duplicate type to surface misconfiguration early.
func (r *Registry) Register(kind string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[kind]; exists {
		panic(fmt.Sprintf("move registry: duplicate type %q", kind))
	}
	r.factories[kind] = f
}

// Build creates a proposal of the given type.
func (r *Registry) Build(kind string, node dag.Node, params Params) (Proposal, error) {
	r.mu.RLock()
	f, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProposal, kind)
	}
	return f(node, params)
}

// Has reports whether kind is registered.
func (r *Registry) Has(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[kind]
	return ok
}

// Types returns all registered proposal types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
