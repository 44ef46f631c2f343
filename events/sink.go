package events

import (
	"context"

	"github.com/latticerun/hostcore/cluster"
	"github.com/latticerun/hostcore/cmn"
)

// ProviderEventSink adapts Publisher to provider.EventSink so the Provider
// Supervisor can emit lifecycle events without importing the bus directly.
type ProviderEventSink struct {
	pub *Publisher
}

func NewProviderEventSink(pub *Publisher) *ProviderEventSink { return &ProviderEventSink{pub: pub} }

func (s *ProviderEventSink) ProviderStarted(p *cluster.Provider) {
	s.pub.Publish(context.Background(), cmn.EvtProviderStarted, p.ProviderKey(), p)
}

func (s *ProviderEventSink) ProviderStopped(p *cluster.Provider) {
	s.pub.Publish(context.Background(), cmn.EvtProviderStopped, p.ProviderKey(), p)
}

func (s *ProviderEventSink) ProviderCrashed(p *cluster.Provider, err error) {
	s.pub.Publish(context.Background(), cmn.EvtProviderCrashed, p.ProviderKey(), map[string]interface{}{
		"provider": p,
		"error":    err.Error(),
	})
}

func (s *ProviderEventSink) HealthChanged(p *cluster.Provider, health string) {
	s.pub.Publish(context.Background(), cmn.EvtHealthCheckStatus, p.ProviderKey(), map[string]interface{}{
		"provider": p,
		"health":   health,
	})
}
