// Package host wires claims, registry, wasmrt, provider, linkstore,
// router, control, events and chunkstore into the single process-wide Host
// singleton spec.md §9 describes: "one process-wide singleton... passed by
// shared ownership (Go: passed as a pointer / held behind an interface) to
// every component that needs it."
package host

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nkeys"

	"github.com/latticerun/hostcore/claims"
	"github.com/latticerun/hostcore/chunkstore"
	"github.com/latticerun/hostcore/cluster"
	"github.com/latticerun/hostcore/cmn"
	"github.com/latticerun/hostcore/control"
	"github.com/latticerun/hostcore/events"
	"github.com/latticerun/hostcore/linkstore"
	"github.com/latticerun/hostcore/provider"
	"github.com/latticerun/hostcore/registry"
	"github.com/latticerun/hostcore/router"
	"github.com/latticerun/hostcore/wasmrt"
)

// Config holds the knobs cmd/hostd fills from its command-line flags (bus
// URL, lattice id, cache directory, issuer allow-list policy, ...).
type Config struct {
	BusURL                  string
	LatticeID               string
	FriendlyName            string
	Labels                  map[string]string
	CacheDir                string
	CacheMaxBytes           int64
	FetchWorkers            int
	AllowAnyIssuer          bool
	SubjectPrefix           string
	LinkDBPath              string
	ProviderShutdownTimeout time.Duration
}

// Host is the singleton wiring every component together.
type Host struct {
	Self *cluster.Host

	NC *nats.Conn

	Claims     *claims.Verifier
	Fetcher    *registry.Fetcher
	Cache      *registry.DigestCache
	Runtime    *wasmrt.Runtime
	Supervisor *provider.Supervisor
	Links      *cluster.LinkCache
	ConfigKV   *cluster.ConfigCache
	Store      *linkstore.Store
	Chunks     *chunkstore.Store
	Router     *router.Router
	Plane      *control.Plane
	Events     *events.Publisher

	Components *cluster.ComponentRegistry
	Providers  *cluster.ProviderRegistry

	labels *labelStore

	identity                nkeys.KeyPair
	cancel                  context.CancelFunc
	providerShutdownTimeout time.Duration
}

// New connects to the bus and constructs every component, but does not yet
// start the control plane or background loops — call Run for that.
func New(cfg Config, engine wasmrt.Engine, prober provider.Prober) (*Host, error) {
	identity, err := nkeys.CreateServer()
	if err != nil {
		return nil, cmn.NewKindErr(cmn.ErrInvalidClaims, "generate host identity", err)
	}
	pub, err := identity.PublicKey()
	if err != nil {
		return nil, cmn.NewKindErr(cmn.ErrInvalidClaims, "derive host public key", err)
	}

	nc, err := nats.Connect(cfg.BusURL, nats.Name("wasmcloud-hostcore"))
	if err != nil {
		return nil, cmn.NewKindErr(cmn.ErrBusTransport, "connect to lattice bus", err)
	}

	self := &cluster.Host{
		ID: pub, LatticeID: cfg.LatticeID, FriendlyName: cfg.FriendlyName,
		Labels: cfg.Labels, StartTime: time.Now(), Bus: cluster.BusInfo{URL: cfg.BusURL},
	}
	if self.FriendlyName == "" {
		self.FriendlyName = cmn.NewFriendlyName()
	}

	cache, err := registry.NewDigestCache(cfg.CacheDir, cfg.CacheMaxBytes)
	if err != nil {
		nc.Close()
		return nil, err
	}
	fetcher := registry.NewFetcher(cache, cfg.FetchWorkers)

	links := cluster.NewLinkCache()
	configKV := cluster.NewConfigCache()
	bucket, err := linkstore.NewBuntBucket(cfg.LinkDBPath)
	if err != nil {
		nc.Close()
		return nil, err
	}
	store := linkstore.NewStore(bucket, links, configKV)

	runtime := wasmrt.NewRuntime(engine)

	components := cluster.NewComponentRegistry()
	providers := cluster.NewProviderRegistry()

	pub2 := events.NewPublisher(nc, cfg.SubjectPrefix+"."+cfg.LatticeID+".events", self.ID)
	sink := events.NewProviderEventSink(pub2)
	if prober == nil {
		prober = NewNatsProber(nc, cfg.SubjectPrefix, cfg.LatticeID)
	}
	supervisor := provider.NewSupervisor(providers, prober, sink)

	chunks := chunkstore.NewStore(chunkstore.NewMemoryBackend(), cfg.SubjectPrefix+"."+cfg.LatticeID+".chunks")
	signer := &hostSigner{identity: identity}
	metrics := &noopMetrics{}
	rtr := router.NewRouter(nc, links, chunks, signer, metrics, self.ID, cfg.SubjectPrefix, cfg.LatticeID)

	plane := control.NewPlane(nc, fmt.Sprintf("%s.%s.cmd.>", cfg.SubjectPrefix, cfg.LatticeID))

	verifier := claims.NewVerifier(cfg.AllowAnyIssuer)

	shutdownTimeout := cfg.ProviderShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = cmn.DefaultGracefulTimeout
	}

	h := &Host{
		Self: self, NC: nc, Claims: verifier, Fetcher: fetcher, Cache: cache,
		Runtime: runtime, Supervisor: supervisor, Links: links, ConfigKV: configKV,
		Store: store, Chunks: chunks, Router: rtr, Plane: plane, Events: pub2,
		Components: components, Providers: providers, identity: identity,
		providerShutdownTimeout: shutdownTimeout, labels: newLabelStore(cfg.Labels),
	}
	h.registerHandlers()
	h.registerSupplementalHandlers()
	return h, nil
}

// Run starts the control plane dispatcher and the link/config change feed,
// blocking until ctx is cancelled, then executing spec.md §4.7's graceful
// shutdown sequence.
func (h *Host) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel

	if err := h.Plane.Start(runCtx); err != nil {
		return err
	}
	go h.Store.RunChangeFeed(runCtx)

	h.Events.Publish(runCtx, cmn.EvtHostStarted, h.Self.ID, h.Self)

	<-runCtx.Done()
	return h.shutdown()
}

func (h *Host) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
}

// shutdown implements spec.md §4.7: stop accepting commands, drain
// providers in parallel with a bound, flush the bus, emit a final event.
func (h *Host) shutdown() error {
	h.Plane.Shutdown()

	wg := cmn.NewLimitedWaitGroup(8)
	for _, p := range h.Providers.All() {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Supervisor.Stop(&p)
		}()
	}
	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(h.providerShutdownTimeout):
		glog.Warningf("host shutdown: provider drain exceeded %s, proceeding anyway", h.providerShutdownTimeout)
	}

	h.NC.Flush()
	h.Events.Publish(context.Background(), cmn.EvtHostStopped, h.Self.ID, h.Self)
	h.NC.Close()
	return nil
}

// Inventory builds an on-demand InventorySnapshot (spec.md §3: "produced on
// demand, never stored").
func (h *Host) Inventory() *cluster.InventorySnapshot {
	return &cluster.InventorySnapshot{
		HostID: h.Self.ID, FriendlyName: h.Self.FriendlyName, Labels: h.labels.snapshot(),
		Uptime: time.Since(h.Self.StartTime), Components: h.Components.All(), Providers: h.Providers.All(),
	}
}

type hostSigner struct{ identity nkeys.KeyPair }

func (s *hostSigner) Sign(b []byte) ([]byte, error) { return s.identity.Sign(b) }

func (s *hostSigner) Verify(b, sig []byte, pubKey string) error {
	kp, err := nkeys.FromPublicKey(pubKey)
	if err != nil {
		return err
	}
	return kp.Verify(b, sig)
}

type noopMetrics struct{}

func (noopMetrics) ObserveInvocation(caller, callee, iface string, err error) {}
