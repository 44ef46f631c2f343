package host

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/latticerun/hostcore/cluster"
	"github.com/latticerun/hostcore/cmn"
)

// NatsProber implements provider.Prober as a NATS request/reply bounded by
// the caller's context, sent to <prefix>.<lattice>.health.<provider-id>.<link-name>.
// The subject is built from the host's own prefix and lattice id; it is not
// one of the HostData fields the provider receives.
type NatsProber struct {
	nc            *nats.Conn
	subjectPrefix string
	latticeID     string
}

func NewNatsProber(nc *nats.Conn, subjectPrefix, latticeID string) *NatsProber {
	return &NatsProber{nc: nc, subjectPrefix: subjectPrefix, latticeID: latticeID}
}

func (n *NatsProber) healthSubject(p *cluster.Provider) string {
	return fmt.Sprintf("%s.%s.health.%s.%s", n.subjectPrefix, n.latticeID, p.ID, p.LinkName)
}

func (n *NatsProber) Probe(ctx context.Context, p *cluster.Provider) error {
	if _, err := n.nc.RequestWithContext(ctx, n.healthSubject(p), nil); err != nil {
		return cmn.NewKindErr(cmn.ErrProviderSpawnFailed, "provider did not answer its readiness probe", err)
	}
	return nil
}
