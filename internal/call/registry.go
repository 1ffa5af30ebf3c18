package call

import "sync"

// Registry tracks the calls currently being handled, keyed by the
// signaling stack's call id. Insert-if-absent is the sole admission
// primitive: a retransmitted incoming-call notification for an id that is
// already registered is rejected before any handling starts. Removal is
// guaranteed by the session's terminate path.
type Registry struct {
	mu    sync.Mutex
	calls map[string]*State
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{calls: make(map[string]*State)}
}

// Add registers a call id if it is not already present. Returns false when
// the id is already registered, in which case the caller must not handle
// the call.
func (r *Registry) Add(id string, st *State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.calls[id]; exists {
		return false
	}
	r.calls[id] = st
	return true
}

// Remove unregisters a call id. Removing an absent id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.calls, id)
	r.mu.Unlock()
}

// Get returns the state for a registered call id.
func (r *Registry) Get(id string) (*State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.calls[id]
	return st, ok
}

// Count returns the number of active calls.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// IDs returns a snapshot of the registered call ids.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.calls))
	for id := range r.calls {
		ids = append(ids, id)
	}
	return ids
}

// DeactivateAll flips every registered call inactive. Used by global
// shutdown so each session exits its current wait within one pacing
// window and runs its terminate path.
func (r *Registry) DeactivateAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, st := range r.calls {
		st.Deactivate()
	}
}
