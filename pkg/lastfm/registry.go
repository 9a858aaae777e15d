package lastfm

import (
	"fmt"
)

// Registry maps service labels to clients.
//
// It is built once at startup and handed to whoever needs a client; there
// is no package-level lookup. A Registry is read-only after construction
// and safe for concurrent use.
type Registry struct {
	clients map[string]*Client
	labels  []string
}

// NewRegistry creates a registry from the given clients.
//
// Returns an error if two clients share a label.
func NewRegistry(clients ...*Client) (*Registry, error) {
	r := &Registry{
		clients: make(map[string]*Client, len(clients)),
		labels:  make([]string, 0, len(clients)),
	}
	for _, c := range clients {
		if c == nil {
			continue
		}
		if _, exists := r.clients[c.Label()]; exists {
			return nil, fmt.Errorf("lastfm: duplicate client label %q", c.Label())
		}
		r.clients[c.Label()] = c
		r.labels = append(r.labels, c.Label())
	}
	return r, nil
}

// Get returns the client registered under label.
func (r *Registry) Get(label string) (*Client, bool) {
	c, ok := r.clients[label]
	return c, ok
}

// Labels returns the registered labels in registration order.
func (r *Registry) Labels() []string {
	out := make([]string, len(r.labels))
	copy(out, r.labels)
	return out
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	return len(r.labels)
}
