package chat

import (
	"sync"

	"github.com/samber/lo"
)

// Registry maps each identity to its single live client. Registering an
// identity again replaces the previous client without closing it.
type Registry struct {
	clients map[Identity]*Client
	mu      sync.RWMutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[Identity]*Client),
	}
}

// Register stores client as the live connection of identity and returns the
// client it replaced, if any.
func (r *Registry) Register(identity Identity, client *Client) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	previous := r.clients[identity]
	r.clients[identity] = client
	return previous
}

// Deregister removes the entry of identity only while it still points at
// client. A close arriving after a reconnect leaves the newer client in place.
func (r *Registry) Deregister(identity Identity, client *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.clients[identity]; !ok || current != client {
		return false
	}
	delete(r.clients, identity)
	return true
}

// Resolve returns the live clients of the given identities, each at most once.
// Identities without a live client are skipped.
func (r *Registry) Resolve(identities []Identity) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	resolved := make([]*Client, 0, len(identities))
	for _, identity := range lo.Uniq(identities) {
		if client, ok := r.clients[identity]; ok {
			resolved = append(resolved, client)
		}
	}
	return resolved
}

// Lookup returns the live client of identity.
func (r *Registry) Lookup(identity Identity) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[identity]
	return client, ok
}

// All returns every live client.
func (r *Registry) All() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Values(r.clients)
}

// Len returns the number of registered identities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
