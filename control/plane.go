package control

import (
	"context"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/latticerun/hostcore/cmn"
)

// Handler processes one Command and returns its Reply. Handlers are
// registered per Action (spec.md §4.7's command families: component.*,
// provider.*, link.*, config.*, host.*).
type Handler func(ctx context.Context, cmd Command) Reply

const shardCount = 32

// Plane is the C7 Control Plane: a fixed set of shard goroutines, one
// inbound channel each, entity id hashed (cmn.HashString) to pick a shard
// so that two commands for the same entity are always processed in the
// order they were received, while commands for different entities proceed
// concurrently. This is the same per-key-serialize/cross-key-parallelize
// shape as cmn.MultiSyncMap, applied to a command queue instead of a map.
type Plane struct {
	nc       *nats.Conn
	subject  string // e.g. "wasmbus.default.cmd.>"
	handlers map[string]Handler
	direct   map[string]Handler // read-only actions answered inline, bypassing shard ordering

	shards [shardCount]chan shardJob
	wg     sync.WaitGroup
	sub    *nats.Subscription
}

type shardJob struct {
	cmd    Command
	respCh chan Reply
}

func NewPlane(nc *nats.Conn, subject string) *Plane {
	p := &Plane{nc: nc, subject: subject, handlers: make(map[string]Handler), direct: make(map[string]Handler)}
	for i := range p.shards {
		p.shards[i] = make(chan shardJob, 256)
	}
	return p
}

func (p *Plane) Register(action string, h Handler) { p.handlers[action] = h }

// RegisterDirect binds a read-only action that is answered inline, without
// going through per-entity shard ordering (spec.md §4's "host.ping" and
// "host.inventory": "handled without going through a shard").
func (p *Plane) RegisterDirect(action string, h Handler) { p.direct[action] = h }

// Start subscribes to subject and spins up one goroutine per shard.
func (p *Plane) Start(ctx context.Context) error {
	for i := range p.shards {
		p.wg.Add(1)
		go p.runShard(ctx, i)
	}
	sub, err := p.nc.Subscribe(p.subject, func(msg *nats.Msg) {
		var cmd Command
		if err := cmn.Unmarshal(msg.Data, &cmd); err != nil {
			return
		}
		p.dispatch(ctx, cmd, msg.Reply)
	})
	if err != nil {
		return cmn.NewKindErr(cmn.ErrBusTransport, "subscribe control plane subject", err)
	}
	p.sub = sub
	return nil
}

func (p *Plane) dispatch(ctx context.Context, cmd Command, replySubject string) {
	if h, ok := p.direct[cmd.Action]; ok {
		reply := h(ctx, cmd)
		if replySubject != "" && !isSilentReply(reply) {
			p.nc.Publish(replySubject, cmn.MustMarshal(reply))
		}
		return
	}
	shard := int(hashEntity(cmd.EntityID) % shardCount)
	respCh := make(chan Reply, 1)
	select {
	case p.shards[shard] <- shardJob{cmd: cmd, respCh: respCh}:
	case <-ctx.Done():
		return
	}
	if replySubject == "" {
		return
	}
	go func() {
		reply := <-respCh
		if isSilentReply(reply) {
			return
		}
		p.nc.Publish(replySubject, cmn.MustMarshal(reply))
	}()
}

// isSilentReply reports the zero Reply — the auction handlers' convention
// for "this host's labels don't satisfy the constraints, say nothing"
// rather than replying with an explicit rejection.
func isSilentReply(r Reply) bool {
	return !r.OK && r.Error == "" && r.Value == nil
}

func hashEntity(id string) uint64 {
	if id == "" {
		return 0
	}
	return cmn.HashString(id)
}

func (p *Plane) runShard(ctx context.Context, idx int) {
	defer p.wg.Done()
	ch := p.shards[idx]
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-ch:
			if !ok {
				return
			}
			h, ok := p.handlers[job.cmd.Action]
			if !ok {
				job.respCh <- errReply(cmn.Kindf(cmn.ErrNotFound, "no handler for action %q", job.cmd.Action))
				continue
			}
			job.respCh <- h(ctx, job.cmd)
		}
	}
}

// Shutdown implements spec.md §4.7's graceful shutdown sequence: stop
// accepting new commands, let in-flight shard jobs drain up to
// DefaultGracefulTimeout, then return regardless so the caller can proceed
// to provider shutdown and bus flush.
func (p *Plane) Shutdown() {
	if p.sub != nil {
		p.sub.Unsubscribe()
	}
	done := make(chan struct{})
	go func() {
		for i := range p.shards {
			close(p.shards[i])
		}
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(cmn.DefaultGracefulTimeout):
	}
}
