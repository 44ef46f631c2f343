package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/karrick/godirwalk"
	"github.com/seiflotfy/cuckoofilter"

	"github.com/latticerun/hostcore/cmn"
)

// DigestCache is the on-disk, digest-addressed artifact cache of spec.md
// §4.2 ("content-addressed by digest... reused across fetches of different
// tags that happen to resolve to the same bytes"). Layout:
// <baseDir>/<algo>/<hex>.
//
// A cuckoofilter gives fetch() a cheap, false-positive-tolerant "maybe
// cached" check before it touches the filesystem — the same role the
// grounding repository gives its in-memory bucket-exists checks ahead of a
// stat() syscall.
type DigestCache struct {
	baseDir string
	maxSize int64

	mu     sync.Mutex
	filter *cuckoo.Filter
}

func NewDigestCache(baseDir string, maxSize int64) (*DigestCache, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, cmn.NewKindErr(cmn.ErrRegistryTransport, "create cache directory", err)
	}
	c := &DigestCache{baseDir: baseDir, maxSize: maxSize, filter: cuckoo.NewFilter(1 << 16)}
	c.rebuildFilter()
	return c, nil
}

func (c *DigestCache) path(algo, hex string) string {
	return filepath.Join(c.baseDir, algo, hex)
}

// Has is a best-effort presence check: a true negative from the
// cuckoofilter short-circuits the stat(); a filter hit still falls through
// to the real stat() since cuckoofilters admit false positives.
func (c *DigestCache) Has(algo, hex string) bool {
	key := []byte(algo + ":" + hex)
	c.mu.Lock()
	maybe := c.filter.Lookup(key)
	c.mu.Unlock()
	if !maybe {
		return false
	}
	_, err := os.Stat(c.path(algo, hex))
	return err == nil
}

func (c *DigestCache) Get(algo, hex string) ([]byte, bool) {
	b, err := os.ReadFile(c.path(algo, hex))
	if err != nil {
		return nil, false
	}
	return b, true
}

func (c *DigestCache) Put(algo, hex string, data []byte) error {
	dir := filepath.Join(c.baseDir, algo)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return cmn.NewKindErr(cmn.ErrRegistryTransport, "create cache shard directory", err)
	}
	tmp := c.path(algo, hex) + fmt.Sprintf(".tmp-%d", os.Getpid())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return cmn.NewKindErr(cmn.ErrRegistryTransport, "write cache entry", err)
	}
	if err := os.Rename(tmp, c.path(algo, hex)); err != nil {
		return cmn.NewKindErr(cmn.ErrRegistryTransport, "finalize cache entry", err)
	}
	c.mu.Lock()
	c.filter.Insert([]byte(algo + ":" + hex))
	c.mu.Unlock()
	return c.EvictToFit()
}

// rebuildFilter walks baseDir once at startup to seed the cuckoofilter from
// whatever survived a restart, mirroring the grounding repository's
// directory-walk-on-init pattern (fs.Walk / lru's mountpath scan) rather
// than persisting the filter itself.
func (c *DigestCache) rebuildFilter() {
	_ = godirwalk.Walk(c.baseDir, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(c.baseDir, path)
			if err != nil {
				return nil
			}
			algo := filepath.Dir(rel)
			hex := filepath.Base(rel)
			c.mu.Lock()
			c.filter.Insert([]byte(algo + ":" + hex))
			c.mu.Unlock()
			return nil
		},
		Unsorted:            true,
		AllowNonDirectory:   true,
		FollowSymbolicLinks: false,
	})
}

type cacheEntry struct {
	path    string
	size    int64
	modTime int64
}

// EvictToFit walks the cache and removes the oldest entries (by mtime)
// until total size is back under maxSize, the same oldest-first policy the
// grounding repository's LRU module applies to store objects.
func (c *DigestCache) EvictToFit() error {
	var (
		entries []cacheEntry
		total   int64
	)
	err := godirwalk.Walk(c.baseDir, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				return nil
			}
			fi, err := os.Stat(path)
			if err != nil {
				return nil
			}
			entries = append(entries, cacheEntry{path: path, size: fi.Size(), modTime: fi.ModTime().UnixNano()})
			total += fi.Size()
			return nil
		},
		Unsorted: true,
	})
	if err != nil {
		return cmn.NewKindErr(cmn.ErrRegistryTransport, "scan cache for eviction", err)
	}
	if total <= c.maxSize {
		return nil
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].modTime < entries[j].modTime })
	for _, e := range entries {
		if total <= c.maxSize {
			break
		}
		if err := os.Remove(e.path); err == nil {
			total -= e.size
		}
	}
	return nil
}
