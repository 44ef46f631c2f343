package events

import (
	"context"
	"testing"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

func TestPublishNotifiesLocalSubscribers(t *testing.T) {
	pub := NewPublisher(nil, "lattice.default.events", "Nhost")

	var got cloudevents.Event
	pub.Subscribe(func(ev cloudevents.Event) { got = ev })

	pub.Publish(context.Background(), "provider_started", "Vprov/default", map[string]string{"state": "Running"})

	if got.Type() != "provider_started" {
		t.Fatalf("unexpected event type: %q", got.Type())
	}
	if got.Subject() != "Vprov/default" {
		t.Fatalf("unexpected event subject: %q", got.Subject())
	}
}
