package router

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/latticerun/hostcore/cluster"
	"github.com/latticerun/hostcore/cmn"
)

// ChunkStore is the side channel for payloads over the inline threshold
// (spec.md §4.6's Chunk step); router/ only needs Put/Get, the concrete
// object-store bindings live in chunkstore/.
type ChunkStore interface {
	Put(ctx context.Context, payload []byte) (handle string, err error)
	Get(ctx context.Context, handle string) ([]byte, error)
}

// Signer signs and verifies envelope bytes — bound to the host's own nkey
// identity (spec.md §4.6: "host_witness is signed with the host's own
// key").
type Signer interface {
	Sign(b []byte) ([]byte, error)
	Verify(b, sig []byte, pubKey string) error
}

// Metrics receives per-call counters (spec.md §4.6:
// "invocations_total/invocation_errors_total tagged by caller, callee,
// interface").
type Metrics interface {
	ObserveInvocation(caller, callee, iface string, err error)
}

// Router is the C6 Invocation Router.
type Router struct {
	nc        *nats.Conn
	links     *cluster.LinkCache
	chunks    ChunkStore
	signer    Signer
	metrics   Metrics
	hostID    string
	subjectPfx string
	latticeID string
	inlineMax int
	timeout   time.Duration
}

func NewRouter(nc *nats.Conn, links *cluster.LinkCache, chunks ChunkStore, signer Signer, metrics Metrics, hostID, subjectPfx, latticeID string) *Router {
	return &Router{
		nc: nc, links: links, chunks: chunks, signer: signer, metrics: metrics,
		hostID: hostID, subjectPfx: subjectPfx, latticeID: latticeID,
		inlineMax: cmn.DefaultInlineThreshold, timeout: cmn.DefaultInvokeTimeout,
	}
}

// Invoke runs the full pipeline: resolve -> authorize -> envelope -> chunk
// -> transport -> verify (spec.md §4.6).
func (r *Router) Invoke(ctx context.Context, sourceID, witNamespace, witPackage, witInterface, function, linkName string, payload []byte) ([]byte, error) {
	def, ok := r.links.Resolve(sourceID, witNamespace, witPackage, linkName)
	if !ok {
		r.metrics.ObserveInvocation(sourceID, "", witInterface, cmn.Kindf(cmn.ErrLinkMissing, ""))
		return nil, cmn.Kindf(cmn.ErrLinkMissing, "no link from %s for %s/%s via %q", sourceID, witNamespace, witPackage, linkName)
	}
	if !def.DeclaresInterface(witInterface) {
		err := cmn.Kindf(cmn.ErrNotPermitted, "link %s does not declare interface %s", def.LinkKey(), witInterface)
		r.metrics.ObserveInvocation(sourceID, def.TargetID, witInterface, err)
		return nil, err
	}

	env := &Envelope{
		Version: EnvelopeVersion, ID: cmn.NewInvocationID(),
		Source: sourceID, Target: def.TargetID,
		WitNamespace: witNamespace, WitPackage: witPackage, WitInterface: witInterface,
		Function: function, LinkName: linkName, HostWitness: r.hostID,
	}

	if len(payload) > r.inlineMax {
		handle, err := r.chunks.Put(ctx, payload)
		if err != nil {
			r.metrics.ObserveInvocation(sourceID, def.TargetID, witInterface, err)
			return nil, err
		}
		env.PayloadHandle = handle
	} else {
		env.Payload = payload
	}

	body, _ := env.MarshalMsg(nil)
	sig, err := r.signer.Sign(body)
	if err != nil {
		err = cmn.NewKindErr(cmn.ErrBusTransport, "sign envelope", err)
		r.metrics.ObserveInvocation(sourceID, def.TargetID, witInterface, err)
		return nil, err
	}
	env.Signature = sig
	wire, _ := env.MarshalMsg(nil)

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	subject := Subject(r.subjectPfx, r.latticeID, env)
	msg, err := r.nc.RequestWithContext(callCtx, subject, wire)
	if err != nil {
		if err == nats.ErrTimeout || callCtx.Err() != nil {
			err = cmn.NewKindErr(cmn.ErrBusTimeout, "invocation timed out", err)
		} else {
			err = cmn.NewKindErr(cmn.ErrBusTransport, "bus request failed", err)
		}
		r.metrics.ObserveInvocation(sourceID, def.TargetID, witInterface, err)
		return nil, err
	}

	var resp Envelope
	if _, err := resp.UnmarshalMsg(msg.Data); err != nil {
		r.metrics.ObserveInvocation(sourceID, def.TargetID, witInterface, err)
		return nil, err
	}
	if err := r.signer.Verify(stripSignature(msg.Data, &resp), resp.Signature, resp.HostWitness); err != nil {
		err = cmn.NewKindErr(cmn.ErrBusTransport, "response signature verification failed", err)
		r.metrics.ObserveInvocation(sourceID, def.TargetID, witInterface, err)
		return nil, err
	}

	out := resp.Payload
	if resp.PayloadHandle != "" {
		out, err = r.chunks.Get(ctx, resp.PayloadHandle)
		if err != nil {
			r.metrics.ObserveInvocation(sourceID, def.TargetID, witInterface, err)
			return nil, err
		}
	}
	r.metrics.ObserveInvocation(sourceID, def.TargetID, witInterface, nil)
	return out, nil
}

// stripSignature re-serializes resp with an empty Signature field so
// Verify checks the signature against exactly the bytes that were signed.
func stripSignature(_ []byte, resp *Envelope) []byte {
	sig := resp.Signature
	resp.Signature = nil
	b, _ := resp.MarshalMsg(nil)
	resp.Signature = sig
	return b
}
