package linkstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/latticerun/hostcore/cluster"
	"github.com/latticerun/hostcore/cmn"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "links.db")
	bucket, err := NewBuntBucket(path)
	if err != nil {
		t.Fatalf("open bucket: %v", err)
	}
	t.Cleanup(func() { bucket.Close() })
	return NewStore(bucket, cluster.NewLinkCache(), cluster.NewConfigCache())
}

func TestPutLinkThenGetLinksFor(t *testing.T) {
	s := newTestStore(t)
	def := &cluster.LinkDefinition{
		SourceID: "Mcomp", TargetID: "Vprov", WitNamespace: "wasi",
		WitPackage: "keyvalue", LinkName: "default",
	}
	if err := s.PutLink(context.Background(), def); err != nil {
		t.Fatalf("put link: %v", err)
	}
	got := s.GetLinksFor("Mcomp")
	if len(got) != 1 || got[0].TargetID != "Vprov" {
		t.Fatalf("unexpected links: %+v", got)
	}
}

func TestDeleteLinkIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.DeleteLink(context.Background(), "Mcomp", "wasi", "keyvalue", "default"); err != nil {
		t.Fatalf("delete of absent link should be a no-op, got: %v", err)
	}
}

func TestPutConfigBumpsVersion(t *testing.T) {
	s := newTestStore(t)
	cfg1, err := s.PutConfig(context.Background(), "default", map[string][]byte{"a": []byte("1")})
	if err != nil {
		t.Fatalf("put config: %v", err)
	}
	cfg2, err := s.PutConfig(context.Background(), "default", map[string][]byte{"a": []byte("2")})
	if err != nil {
		t.Fatalf("put config: %v", err)
	}
	if cfg2.Version <= cfg1.Version {
		t.Fatalf("expected version to increase, got %d then %d", cfg1.Version, cfg2.Version)
	}
}

func TestRunChangeFeedAppliesRemoteWrites(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.RunChangeFeed(ctx)
		close(done)
	}()

	def := &cluster.LinkDefinition{
		SourceID: "Mcomp", TargetID: "Vprov", WitNamespace: "wasi",
		WitPackage: "keyvalue", LinkName: "default",
	}
	// Wait for RunChangeFeed to register its watcher, then write straight
	// through the bucket the way another host sharing it would, so the link
	// can only reach the cache through the change feed.
	bb := s.bucket.(*BuntBucket)
	watchDeadline := time.After(2 * time.Second)
	for {
		bb.mu.Lock()
		n := len(bb.watchers)
		bb.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-watchDeadline:
			t.Fatal("change feed never started watching the bucket")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if err := s.bucket.CAS(context.Background(), linkPrefix+def.LinkKey(), nil, cmn.MustMarshal(def)); err != nil {
		t.Fatalf("put link: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		if len(s.GetLinksFor("Mcomp")) == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("change feed never applied the remote write")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done
}
