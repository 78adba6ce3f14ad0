// Package taxa keeps the canonical taxon index space shared by trees and
// character data within one run.
package taxa

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrUnknownTaxon   = errors.New("taxa: unknown taxon")
	ErrDuplicateTaxon = errors.New("taxa: duplicate taxon")
	ErrEmptyName      = errors.New("taxa: empty taxon name")
)

// Registry maps taxon names to stable indices. Indices are assigned in
// registration order and never change.
type Registry struct {
	mu    sync.RWMutex
	names []string
	index map[string]int
}

// NewRegistry creates a registry pre-populated with names.
func NewRegistry(names ...string) (*Registry, error) {
	r := &Registry{index: make(map[string]int, len(names))}
	for _, n := range names {
		if _, err := r.Add(n); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add registers name and returns its index. Adding a known name is an error.
func (r *Registry) Add(name string) (int, error) {
	if name == "" {
		return -1, ErrEmptyName
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.index[name]; ok {
		return -1, fmt.Errorf("%w: %q", ErrDuplicateTaxon, name)
	}
	r.index[name] = len(r.names)
	r.names = append(r.names, name)
	return len(r.names) - 1, nil
}

// Ensure returns the index of name, registering it if needed.
func (r *Registry) Ensure(name string) (int, error) {
	if idx, err := r.Index(name); err == nil {
		return idx, nil
	}
	return r.Add(name)
}

// Index returns the index of name.
func (r *Registry) Index(name string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.index[name]
	if !ok {
		return -1, fmt.Errorf("%w: %q", ErrUnknownTaxon, name)
	}
	return idx, nil
}

// Name returns the taxon at idx.
func (r *Registry) Name(idx int) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.names[idx]
}

// Len returns the number of taxa.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}

// Names returns the taxa in index order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.names...)
}

// SortByIndex orders names by registry index; unknown names go last, alphabetically.
func (r *Registry) SortByIndex(names []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sort.SliceStable(names, func(i, j int) bool {
		a, aok := r.index[names[i]]
		b, bok := r.index[names[j]]
		switch {
		case aok && bok:
			return a < b
		case aok != bok:
			return aok
		default:
			return names[i] < names[j]
		}
	})
}
