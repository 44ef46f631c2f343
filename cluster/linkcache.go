package cluster

import (
	"sync"

	"go.uber.org/atomic"
)

// LinkCache is the Invocation Router's read-mostly view of Link Definitions
// (spec.md §4.5/§5): "an RCU snapshot (publish a new immutable map, swap the
// pointer)... readers see either the old link or the new link, never a
// mix." Mirrors the copy-on-write + atomic-pointer-swap discipline the
// grounding repository uses for its cluster membership map (cluster.Smap),
// generalized here from node membership to link definitions.
type (
	linkSnapshot struct {
		version int64
		byKey   map[string]*LinkDefinition // LinkKey() -> def
	}

	// LinkListener is notified, best-effort, whenever the cache swaps in a
	// new snapshot, if it was registered with Reg. Nothing in the host calls
	// Reg, so the Provider Supervisor is not told about link changes.
	LinkListener interface {
		OnLinksChanged(old, new []*LinkDefinition)
	}

	LinkCache struct {
		cur       atomic.Value // *linkSnapshot
		mu        sync.Mutex   // serializes writers only; readers never block
		listeners []LinkListener
		lmu       sync.Mutex
	}
)

func NewLinkCache() *LinkCache {
	lc := &LinkCache{}
	lc.cur.Store(&linkSnapshot{byKey: map[string]*LinkDefinition{}})
	return lc
}

func (lc *LinkCache) get() *linkSnapshot { return lc.cur.Load().(*linkSnapshot) }

// Version returns the cache's current revision, bumped on every successful
// Put/Delete swap.
func (lc *LinkCache) Version() int64 { return lc.get().version }

// Resolve implements step 1 of the router pipeline, spec.md §4.6: look up a
// Link Definition matching (source, wit coordinates, link-name).
func (lc *LinkCache) Resolve(sourceID, witNamespace, witPackage, linkName string) (*LinkDefinition, bool) {
	snap := lc.get()
	key := sourceID + "/" + witNamespace + "/" + witPackage + "/" + linkName
	def, ok := snap.byKey[key]
	return def, ok
}

// GetLinksFor returns every Link Definition whose source is sourceID
// (spec.md §4.5 get_links_for).
func (lc *LinkCache) GetLinksFor(sourceID string) []*LinkDefinition {
	snap := lc.get()
	out := make([]*LinkDefinition, 0)
	for _, def := range snap.byKey {
		if def.SourceID == sourceID {
			out = append(out, def)
		}
	}
	return out
}

// Put installs def into a fresh snapshot and swaps it in atomically. The
// caller (linkstore) is responsible for durability/change-feed ordering;
// Put only maintains the in-memory read-mostly view described by spec.md
// §4.5's invariant: "after a put returns successfully the local cache
// contains the new value."
func (lc *LinkCache) Put(def *LinkDefinition) {
	lc.mu.Lock()
	old := lc.get()
	next := &linkSnapshot{
		version: old.version + 1,
		byKey:   make(map[string]*LinkDefinition, len(old.byKey)+1),
	}
	for k, v := range old.byKey {
		next.byKey[k] = v
	}
	next.byKey[def.LinkKey()] = def
	lc.cur.Store(next)
	lc.mu.Unlock()
	lc.notify(old, next)
}

// Delete removes the link keyed by (sourceID, witNamespace, witPackage,
// linkName), a no-op if absent (delete is idempotent, spec.md §8 round-trip
// property).
func (lc *LinkCache) Delete(sourceID, witNamespace, witPackage, linkName string) {
	lc.mu.Lock()
	old := lc.get()
	key := sourceID + "/" + witNamespace + "/" + witPackage + "/" + linkName
	if _, ok := old.byKey[key]; !ok {
		lc.mu.Unlock()
		return
	}
	next := &linkSnapshot{
		version: old.version + 1,
		byKey:   make(map[string]*LinkDefinition, len(old.byKey)),
	}
	for k, v := range old.byKey {
		if k != key {
			next.byKey[k] = v
		}
	}
	lc.cur.Store(next)
	lc.mu.Unlock()
	lc.notify(old, next)
}

func (lc *LinkCache) All() []*LinkDefinition {
	snap := lc.get()
	out := make([]*LinkDefinition, 0, len(snap.byKey))
	for _, v := range snap.byKey {
		out = append(out, v)
	}
	return out
}

func (lc *LinkCache) Reg(l LinkListener) {
	lc.lmu.Lock()
	lc.listeners = append(lc.listeners, l)
	lc.lmu.Unlock()
}

func (lc *LinkCache) notify(old, next *linkSnapshot) {
	lc.lmu.Lock()
	ls := lc.listeners
	lc.lmu.Unlock()
	if len(ls) == 0 {
		return
	}
	oldDefs := make([]*LinkDefinition, 0, len(old.byKey))
	for _, v := range old.byKey {
		oldDefs = append(oldDefs, v)
	}
	newDefs := make([]*LinkDefinition, 0, len(next.byKey))
	for _, v := range next.byKey {
		newDefs = append(newDefs, v)
	}
	for _, l := range ls {
		l.OnLinksChanged(oldDefs, newDefs)
	}
}

// ConfigCache is the same RCU discipline applied to Named Config bundles
// (spec.md §3/§4.5).
type (
	configSnapshot struct {
		byName map[string]*NamedConfig
	}

	ConfigCache struct {
		cur atomic.Value // *configSnapshot
		mu  sync.Mutex
	}
)

func NewConfigCache() *ConfigCache {
	cc := &ConfigCache{}
	cc.cur.Store(&configSnapshot{byName: map[string]*NamedConfig{}})
	return cc
}

func (cc *ConfigCache) get() *configSnapshot { return cc.cur.Load().(*configSnapshot) }

func (cc *ConfigCache) Get(name string) (*NamedConfig, bool) {
	cfg, ok := cc.get().byName[name]
	return cfg, ok
}

// Put bumps Version monotonically per spec.md §3's Named Config invariant.
func (cc *ConfigCache) Put(name string, entries map[string][]byte) *NamedConfig {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	old := cc.get()
	version := int64(1)
	if prev, ok := old.byName[name]; ok {
		version = prev.Version + 1
	}
	cfg := &NamedConfig{Name: name, Entries: entries, Version: version}
	next := &configSnapshot{byName: make(map[string]*NamedConfig, len(old.byName)+1)}
	for k, v := range old.byName {
		next.byName[k] = v
	}
	next.byName[name] = cfg
	cc.cur.Store(next)
	return cfg
}

func (cc *ConfigCache) Delete(name string) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	old := cc.get()
	if _, ok := old.byName[name]; !ok {
		return
	}
	next := &configSnapshot{byName: make(map[string]*NamedConfig, len(old.byName))}
	for k, v := range old.byName {
		if k != name {
			next.byName[k] = v
		}
	}
	cc.cur.Store(next)
}
