package mcmc

import (
	"fmt"
	"sync"
)

// Tracker indexes chains by ID for status queries and settings reloads.
type Tracker struct {
	mu     sync.RWMutex
	chains map[string]*Chain
	order  []string
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{chains: make(map[string]*Chain)}
}

// Add registers c. Adding the same ID twice replaces the earlier chain.
func (t *Tracker) Add(c *Chain) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.chains[c.ID()]; !ok {
		t.order = append(t.order, c.ID())
	}
	t.chains[c.ID()] = c
}

// Status returns the snapshot of chain id.
func (t *Tracker) Status(id string) (Status, error) {
	t.mu.RLock()
	c, ok := t.chains[id]
	t.mu.RUnlock()
	if !ok {
		return Status{}, fmt.Errorf("%w: %s", ErrUnknownChain, id)
	}
	return c.Status(), nil
}

// Statuses returns snapshots of all chains in registration order.
func (t *Tracker) Statuses() []Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Status, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.chains[id].Status())
	}
	return out
}

// Len returns the number of tracked chains.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.order)
}

// ApplySettings pushes s to every tracked chain.
func (t *Tracker) ApplySettings(s Settings) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, id := range t.order {
		t.chains[id].SetSettings(s)
	}
}
