package linkstore

import (
	"bytes"
	"context"

	"github.com/nats-io/nats.go"

	"github.com/latticerun/hostcore/cmn"
)

// NatsKVBucket binds Bucket to a NATS JetStream Key-Value bucket — the real
// lattice-wide backend spec.md §4.5 describes: every host in the lattice
// reads through the same clustered store, and change-feed events arrive
// from JetStream's KV Watch rather than an in-process fanout.
type NatsKVBucket struct {
	kv nats.KeyValue
}

func NewNatsKVBucket(nc *nats.Conn, bucket string) (*NatsKVBucket, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, cmn.NewKindErr(cmn.ErrBusTransport, "open jetstream context", err)
	}
	kv, err := js.KeyValue(bucket)
	if err != nil {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{Bucket: bucket})
		if err != nil {
			return nil, cmn.NewKindErr(cmn.ErrBusTransport, "open/create kv bucket", err)
		}
	}
	return &NatsKVBucket{kv: kv}, nil
}

func (b *NatsKVBucket) Get(_ context.Context, key string) ([]byte, bool, error) {
	entry, err := b.kv.Get(key)
	if err == nats.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, cmn.NewKindErr(cmn.ErrBusTransport, "kv get", err)
	}
	return entry.Value(), true, nil
}

func (b *NatsKVBucket) CAS(_ context.Context, key string, expect, value []byte) error {
	if expect == nil {
		_, err := b.kv.Create(key, value)
		if err != nil {
			return cmn.NewKindErr(cmn.ErrPreconditionFailed, "key already exists", err)
		}
		return nil
	}
	cur, err := b.kv.Get(key)
	if err != nil {
		return cmn.NewKindErr(cmn.ErrPreconditionFailed, "key missing for CAS", err)
	}
	if !bytes.Equal(cur.Value(), expect) {
		return cmn.Kindf(cmn.ErrPreconditionFailed, "key %q changed since read", key)
	}
	if _, err := b.kv.Update(key, value, cur.Revision()); err != nil {
		return cmn.NewKindErr(cmn.ErrPreconditionFailed, "kv revision changed underneath CAS", err)
	}
	return nil
}

func (b *NatsKVBucket) Delete(_ context.Context, key string) error {
	if err := b.kv.Delete(key); err != nil {
		return cmn.NewKindErr(cmn.ErrBusTransport, "kv delete", err)
	}
	return nil
}

func (b *NatsKVBucket) List(_ context.Context, prefix string) ([]string, error) {
	keys, err := b.kv.Keys()
	if err != nil {
		if err == nats.ErrNoKeysFound {
			return nil, nil
		}
		return nil, cmn.NewKindErr(cmn.ErrBusTransport, "kv keys", err)
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if prefix == "" || (len(k) >= len(prefix) && k[:len(prefix)] == prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (b *NatsKVBucket) Watch(ctx context.Context) (<-chan Event, error) {
	w, err := b.kv.WatchAll()
	if err != nil {
		return nil, cmn.NewKindErr(cmn.ErrBusTransport, "kv watch", err)
	}
	out := make(chan Event, 64)
	go func() {
		defer close(out)
		defer w.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-w.Updates():
				if !ok {
					return
				}
				if entry == nil {
					continue // JetStream sends a nil marker once it has delivered initial state
				}
				ev := Event{Key: entry.Key(), Value: entry.Value()}
				if entry.Operation() == nats.KeyValueDelete || entry.Operation() == nats.KeyValuePurge {
					ev.Op = OpDelete
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *NatsKVBucket) Close() error { return nil }
