package linkstore

import (
	"bytes"
	"context"
	"sync"

	"github.com/tidwall/buntdb"

	"github.com/latticerun/hostcore/cmn"
)

// BuntBucket is the embedded, single-host Bucket implementation, adapted
// from the grounding repository's dbdriver.BuntDriver (same SyncPolicy/
// AutoShrink tuning) — the reference binding for a standalone host that
// isn't joined to a clustered KV backend.
type BuntBucket struct {
	db *buntdb.DB

	mu        sync.Mutex
	watchers  []chan Event
}

func NewBuntBucket(path string) (*BuntBucket, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, cmn.NewKindErr(cmn.ErrBusTransport, "open embedded link store", err)
	}
	db.SetConfig(buntdb.Config{
		SyncPolicy:           buntdb.EverySecond,
		AutoShrinkMinSize:    cmn.MiB,
		AutoShrinkPercentage: 50,
	})
	return &BuntBucket{db: db}, nil
}

func (b *BuntBucket) Get(_ context.Context, key string) ([]byte, bool, error) {
	var val string
	err := b.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(key)
		val = v
		return err
	})
	if err == buntdb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, cmn.NewKindErr(cmn.ErrBusTransport, "get", err)
	}
	return []byte(val), true, nil
}

func (b *BuntBucket) CAS(ctx context.Context, key string, expect, value []byte) error {
	cur, exists, err := b.Get(ctx, key)
	if err != nil {
		return err
	}
	if expect == nil && exists {
		return cmn.Kindf(cmn.ErrPreconditionFailed, "key %q already exists", key)
	}
	if expect != nil && (!exists || !bytes.Equal(cur, expect)) {
		return cmn.Kindf(cmn.ErrPreconditionFailed, "key %q changed since read", key)
	}
	err = b.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, string(value), nil)
		return err
	})
	if err != nil {
		return cmn.NewKindErr(cmn.ErrBusTransport, "cas write", err)
	}
	b.fanout(Event{Key: key, Value: value, Op: OpPut})
	return nil
}

func (b *BuntBucket) Delete(_ context.Context, key string) error {
	err := b.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(key)
		return err
	})
	if err != nil && err != buntdb.ErrNotFound {
		return cmn.NewKindErr(cmn.ErrBusTransport, "delete", err)
	}
	b.fanout(Event{Key: key, Op: OpDelete})
	return nil
}

func (b *BuntBucket) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := b.db.View(func(tx *buntdb.Tx) error {
		tx.AscendKeys(prefix+"*", func(key, _ string) bool {
			keys = append(keys, key)
			return true
		})
		return nil
	})
	if err != nil {
		return nil, cmn.NewKindErr(cmn.ErrBusTransport, "list", err)
	}
	return keys, nil
}

// Watch returns a channel fed by fanout; the embedded bucket is the only
// writer in single-host mode, so this is a local observer, not a real
// distributed change feed (see NatsKVBucket.Watch for that).
func (b *BuntBucket) Watch(ctx context.Context) (<-chan Event, error) {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.watchers = append(b.watchers, ch)
	b.mu.Unlock()
	go func() {
		<-ctx.Done()
		b.mu.Lock()
		for i, w := range b.watchers {
			if w == ch {
				b.watchers = append(b.watchers[:i], b.watchers[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

func (b *BuntBucket) fanout(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, w := range b.watchers {
		select {
		case w <- ev:
		default:
		}
	}
}

func (b *BuntBucket) Close() error { return b.db.Close() }
