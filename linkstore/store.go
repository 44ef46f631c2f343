package linkstore

import (
	"context"
	"strings"

	"github.com/latticerun/hostcore/cluster"
	"github.com/latticerun/hostcore/cmn"
)

const (
	linkPrefix   = "link/"
	configPrefix = "config/"
)

// Store is the C5 Link & Config Store: put_link, delete_link,
// get_links_for, put_config, get_config (spec.md §4.5), backed by a Bucket
// and feeding a read-through view into cluster.LinkCache/ConfigCache.
type Store struct {
	bucket Bucket
	links  *cluster.LinkCache
	config *cluster.ConfigCache
}

func NewStore(bucket Bucket, links *cluster.LinkCache, config *cluster.ConfigCache) *Store {
	return &Store{bucket: bucket, links: links, config: config}
}

// PutLink validates def, writes it through the bucket, and applies it to
// the local cache directly — spec.md §4.5's invariant ("after a put
// returns successfully the local cache contains the new value") does not
// wait for the change-feed to round-trip back to the same host.
func (s *Store) PutLink(ctx context.Context, def *cluster.LinkDefinition) error {
	if err := def.Validate(); err != nil {
		return cmn.NewKindErr(cmn.ErrInvalidReference, "invalid link definition", err)
	}
	b := cmn.MustMarshal(def)
	key := linkPrefix + def.LinkKey()
	// link re-definition is legal (spec.md §4.5), so read-then-CAS rather
	// than requiring the key to be absent.
	cur, exists, err := s.bucket.Get(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		cur = nil
	}
	if err := s.bucket.CAS(ctx, key, cur, b); err != nil {
		return err
	}
	s.links.Put(def)
	return nil
}

// DeleteLink removes a link definition; idempotent per spec.md §4.5.
func (s *Store) DeleteLink(ctx context.Context, sourceID, witNamespace, witPackage, linkName string) error {
	key := linkPrefix + sourceID + "/" + witNamespace + "/" + witPackage + "/" + linkName
	if err := s.bucket.Delete(ctx, key); err != nil {
		return err
	}
	s.links.Delete(sourceID, witNamespace, witPackage, linkName)
	return nil
}

func (s *Store) GetLinksFor(sourceID string) []*cluster.LinkDefinition {
	return s.links.GetLinksFor(sourceID)
}

// PutConfig writes a Named Config bundle, bumping its version (spec.md §3).
func (s *Store) PutConfig(ctx context.Context, name string, entries map[string][]byte) (*cluster.NamedConfig, error) {
	cfg := s.config.Put(name, entries)
	b := cmn.MustMarshal(cfg)
	cur, exists, err := s.bucket.Get(ctx, configPrefix+name)
	if err != nil {
		return nil, err
	}
	if !exists {
		cur = nil
	}
	if err := s.bucket.CAS(ctx, configPrefix+name, cur, b); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *Store) DeleteConfig(ctx context.Context, name string) error {
	if err := s.bucket.Delete(ctx, configPrefix+name); err != nil {
		return err
	}
	s.config.Delete(name)
	return nil
}

func (s *Store) GetConfig(name string) (*cluster.NamedConfig, bool) {
	return s.config.Get(name)
}

// RunChangeFeed subscribes to the bucket's change feed and applies remote
// puts and deletes (made by other hosts sharing this lattice) into the
// local caches,
// implementing the read-through half of spec.md §4.5 — PutLink/DeleteLink
// above cover the write-through half for this host's own writes.
func (s *Store) RunChangeFeed(ctx context.Context) error {
	events, err := s.bucket.Watch(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			s.applyRemote(ev)
		}
	}
}

func (s *Store) applyRemote(ev Event) {
	switch {
	case len(ev.Key) > len(linkPrefix) && ev.Key[:len(linkPrefix)] == linkPrefix:
		if ev.Op == OpDelete {
			// link keys are linkPrefix + LinkKey(): source/namespace/package/link-name
			if parts := strings.SplitN(ev.Key[len(linkPrefix):], "/", 4); len(parts) == 4 {
				s.links.Delete(parts[0], parts[1], parts[2], parts[3])
			}
			return
		}
		var def cluster.LinkDefinition
		if err := cmn.Unmarshal(ev.Value, &def); err == nil {
			s.links.Put(&def)
		}
	case len(ev.Key) > len(configPrefix) && ev.Key[:len(configPrefix)] == configPrefix:
		if ev.Op == OpDelete {
			s.config.Delete(ev.Key[len(configPrefix):])
			return
		}
		var cfg cluster.NamedConfig
		if err := cmn.Unmarshal(ev.Value, &cfg); err == nil {
			s.config.Put(cfg.Name, cfg.Entries)
		}
	}
}
