package tree

// EventKind tells a listener what changed.
type EventKind int

const (
	// EventBranch: the length of the branch above the node changed.
	EventBranch EventKind = iota
	// EventTopology: the node was moved to a new parent.
	EventTopology
	// EventReindexed: the node array was rebuilt; indices or node count may differ.
	EventReindexed
)

// ChangeEventListener receives tree change notifications.
type ChangeEventListener interface {
	FireTreeChangeEvent(n *TopologyNode, kind EventKind)
}

// ChangeEventHandler broadcasts node changes to listeners. It holds
// references to listeners but does not own them.
type ChangeEventHandler struct {
	listeners []ChangeEventListener
}

// AddListener registers l once.
func (h *ChangeEventHandler) AddListener(l ChangeEventListener) {
	if h.IsListening(l) {
		return
	}
	h.listeners = append(h.listeners, l)
}

// RemoveListener unregisters l.
func (h *ChangeEventHandler) RemoveListener(l ChangeEventListener) {
	for i, existing := range h.listeners {
		if existing == l {
			h.listeners = append(h.listeners[:i], h.listeners[i+1:]...)
			return
		}
	}
}

// IsListening reports whether l is registered.
func (h *ChangeEventHandler) IsListening(l ChangeEventListener) bool {
	for _, existing := range h.listeners {
		if existing == l {
			return true
		}
	}
	return false
}

// Fire notifies every listener that n changed.
func (h *ChangeEventHandler) Fire(n *TopologyNode, kind EventKind) {
	for _, l := range h.listeners {
		l.FireTreeChangeEvent(n, kind)
	}
}
