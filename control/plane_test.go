package control

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestDispatchPreservesPerEntityOrder(t *testing.T) {
	p := NewPlane(nil, "")
	var mu sync.Mutex
	var order []int

	p.Register("append", func(ctx context.Context, cmd Command) Reply {
		mu.Lock()
		var n int
		// cmd.Value carries the sequence number as raw JSON text (e.g. "3")
		for _, c := range cmd.Value {
			n = n*10 + int(c-'0')
		}
		order = append(order, n)
		mu.Unlock()
		return okReply(nil)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for i := range p.shards {
		p.wg.Add(1)
		go p.runShard(ctx, i)
	}

	for i := 1; i <= 5; i++ {
		p.dispatch(ctx, Command{Action: "append", EntityID: "Mcomp", Value: []byte{byte('0' + i)}}, "")
	}

	deadline := time.After(time.Second)
	for {
		mu.Lock()
		n := len(order)
		mu.Unlock()
		if n == 5 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("commands never finished draining")
		case <-time.After(5 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i+1 {
			t.Fatalf("commands for the same entity were reordered: %v", order)
		}
	}
}

func TestDispatchUnknownActionReturnsNotFound(t *testing.T) {
	p := NewPlane(nil, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for i := range p.shards {
		p.wg.Add(1)
		go p.runShard(ctx, i)
	}

	respCh := make(chan Reply, 1)
	shard := int(hashEntity("Mcomp") % shardCount)
	p.shards[shard] <- shardJob{cmd: Command{Action: "no.such.action", EntityID: "Mcomp"}, respCh: respCh}

	select {
	case reply := <-respCh:
		if reply.OK {
			t.Fatal("expected failure reply for an unregistered action")
		}
	case <-time.After(time.Second):
		t.Fatal("no reply received")
	}
}

func TestDispatchDirectActionBypassesShards(t *testing.T) {
	p := NewPlane(nil, "")
	var called bool
	p.RegisterDirect("host.ping", func(ctx context.Context, cmd Command) Reply {
		called = true
		return okReply("pong")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// deliberately do not start any shard goroutines: a direct action must
	// not depend on them to be answered.
	p.dispatch(ctx, Command{Action: "host.ping"}, "")

	if !called {
		t.Fatal("direct handler was never invoked")
	}
}
