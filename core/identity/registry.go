package identity

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// Registry keeps the Client of every logged-in actor, keyed by token id.
// Entries expire after the refresh window.
type Registry struct {
	backend Backend
	clients *cache.Cache
	ttl     time.Duration
}

func NewRegistry(backend Backend, ttl time.Duration) *Registry {
	return &Registry{
		backend: backend,
		clients: cache.New(ttl, ttl/2+time.Minute),
		ttl:     ttl,
	}
}

// Open creates a Client for key, replacing any previous one.
func (r *Registry) Open(key string) *Client {
	c := NewClient(r.backend)
	r.clients.Set(key, c, r.ttl)
	return c
}

// Put registers c under key.
func (r *Registry) Put(key string, c *Client) {
	r.clients.Set(key, c, r.ttl)
}

func (r *Registry) Get(key string) (*Client, bool) {
	v, ok := r.clients.Get(key)
	if !ok {
		return nil, false
	}
	c, ok := v.(*Client)
	return c, ok
}

// Rekey moves the Client registered under oldKey to newKey (token refresh).
func (r *Registry) Rekey(oldKey, newKey string) (*Client, bool) {
	c, ok := r.Get(oldKey)
	if !ok {
		return nil, false
	}
	r.clients.Delete(oldKey)
	r.clients.Set(newKey, c, r.ttl)
	return c, true
}

// Close signs the Client out and forgets it.
func (r *Registry) Close(key string) {
	if c, ok := r.Get(key); ok {
		c.SignOut()
	}
	r.clients.Delete(key)
}

func (r *Registry) Backend() Backend { return r.backend }
