// Package events builds and publishes the Lifecycle Events named in
// spec.md §3/§4.7 as CloudEvents, fanning out to local subscribers the way
// the grounding repository's notifications package fans out xaction
// callbacks, generalized from in-process callbacks to bus-wide broadcast.
package events

import (
	"context"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/golang/glog"
	"github.com/nats-io/nats.go"

	"github.com/latticerun/hostcore/cmn"
)

// Subscriber is a local, best-effort observer of published events (used by
// tests and by in-process components that don't want to round-trip
// through the bus to learn about their own emissions).
type Subscriber func(ev cloudevents.Event)

// Publisher builds CloudEvents-shaped lifecycle events and publishes them
// on the bus, matching spec.md §4.7's "lifecycle events are best-effort;
// a publish failure is logged, never rolled back."
type Publisher struct {
	nc      *nats.Conn
	subject string
	source  string // host id, used as the CloudEvents source

	subs []Subscriber
}

func NewPublisher(nc *nats.Conn, subject, hostID string) *Publisher {
	return &Publisher{nc: nc, subject: subject, source: hostID}
}

func (p *Publisher) Subscribe(s Subscriber) { p.subs = append(p.subs, s) }

// Publish builds a CloudEvents envelope (type, subject=entity id, data)
// and best-effort publishes it on the bus; failures never propagate to the
// caller since a dropped lifecycle event must not roll back the operation
// that triggered it.
func (p *Publisher) Publish(ctx context.Context, eventType, entityID string, data interface{}) {
	ev := cloudevents.NewEvent()
	ev.SetID(cmn.NewInvocationID())
	ev.SetSource("host://" + p.source)
	ev.SetType(eventType)
	ev.SetSubject(entityID)
	if err := ev.SetData(cloudevents.ApplicationJSON, data); err != nil {
		glog.Warningf("lifecycle event %s for %s dropped: encode data: %v", eventType, entityID, err)
		return
	}

	for _, s := range p.subs {
		s(ev)
	}

	if p.nc == nil {
		return
	}
	b, err := ev.MarshalJSON()
	if err != nil {
		glog.Warningf("lifecycle event %s for %s dropped: marshal: %v", eventType, entityID, err)
		return
	}
	if err := p.nc.Publish(p.subject, b); err != nil {
		glog.Warningf("lifecycle event %s for %s dropped: publish: %v", eventType, entityID, err)
	}
}
