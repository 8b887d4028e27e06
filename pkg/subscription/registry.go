package subscription

import "sync"

// Registry holds the set of channels the application wants joined.
// All methods are safe for concurrent use.
type Registry struct {
	mu sync.RWMutex

	// Membership set plus insertion order, so Snapshot is deterministic.
	members map[Subscription]struct{}
	order   []Subscription
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		members: make(map[Subscription]struct{}),
	}
}

// Add records intent to be joined to a channel.
// Returns true if the subscription was not already present.
func (r *Registry) Add(sub Subscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.members[sub]; exists {
		return false
	}
	r.members[sub] = struct{}{}
	r.order = append(r.order, sub)
	return true
}

// Remove drops intent for a channel.
// Returns true if the subscription was present.
func (r *Registry) Remove(sub Subscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.members[sub]; !exists {
		return false
	}
	delete(r.members, sub)
	for i, s := range r.order {
		if s == sub {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Contains reports whether a subscription is registered.
func (r *Registry) Contains(sub Subscription) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.members[sub]
	return exists
}

// Snapshot returns a point-in-time copy of all subscriptions in
// insertion order. The returned slice is owned by the caller.
func (r *Registry) Snapshot() []Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Subscription, len(r.order))
	copy(out, r.order)
	return out
}

// Count returns the number of registered subscriptions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Clear removes all subscriptions.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members = make(map[Subscription]struct{})
	r.order = nil
}
