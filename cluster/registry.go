package cluster

import "sync"

// ComponentRegistry and ProviderRegistry hold the Host's exclusively-owned
// entities (spec.md §3 Ownership: "the Host process exclusively owns
// Components and Providers"). Mutation is single-writer (the control plane
// shard for that entity id); reads happen from many goroutines (router,
// inventory), hence RWMutex rather than the full RCU treatment LinkCache
// needs — there is no tearing hazard here because callers only ever read
// one field at a time through the accessor methods below.
type (
	ComponentRegistry struct {
		mu sync.RWMutex
		m  map[string]*Component
	}

	ProviderRegistry struct {
		mu sync.RWMutex
		m  map[string]*Provider // keyed by ProviderKey()
	}
)

func NewComponentRegistry() *ComponentRegistry {
	return &ComponentRegistry{m: make(map[string]*Component)}
}

func (r *ComponentRegistry) Get(id string) (*Component, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.m[id]
	return c, ok
}

func (r *ComponentRegistry) Put(c *Component) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[c.ID] = c
}

func (r *ComponentRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, id)
}

func (r *ComponentRegistry) All() []Component {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Component, 0, len(r.m))
	for _, c := range r.m {
		out = append(out, *c)
	}
	return out
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{m: make(map[string]*Provider)}
}

func (r *ProviderRegistry) Get(id, linkName string) (*Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.m[id+"/"+linkName]
	return p, ok
}

// GetAnyLinkName returns the first provider matching id regardless of
// link-name — used when a caller only knows the capability identity.
func (r *ProviderRegistry) GetAnyLinkName(id string) (*Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.m {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

func (r *ProviderRegistry) Put(p *Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[p.ProviderKey()] = p
}

func (r *ProviderRegistry) Remove(id, linkName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, id+"/"+linkName)
}

func (r *ProviderRegistry) All() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, 0, len(r.m))
	for _, p := range r.m {
		out = append(out, *p)
	}
	return out
}
