package provider

import (
	"bytes"
	"context"
	"os/exec"
	"sync"
	"time"

	"github.com/latticerun/hostcore/cluster"
	"github.com/latticerun/hostcore/cmn"
)

// HostData is the descriptor written to a provider child process's stdin at
// startup (spec.md §4.4): identity, the link configuration it was started
// with, and the bus coordinates it should use to receive RPCs.
type HostData struct {
	HostID       string            `json:"host_id"`
	LatticeID    string            `json:"lattice_id"`
	LinkName     string            `json:"link_name"`
	Config       map[string]string `json:"config"`
	BusURL       string            `json:"bus_url"`
	InvocationSubject string       `json:"invocation_subject"`
}

// Prober performs the readiness probe (spec.md §4.4: "a bus request/reply
// with a bounded timeout"). host.NatsProber is the real NATS-backed
// implementation; tests supply a fake.
type Prober interface {
	Probe(ctx context.Context, p *cluster.Provider) error
}

// EventSink receives best-effort lifecycle notifications — bound to
// events.Publisher once host/ wires the components together.
type EventSink interface {
	ProviderStarted(p *cluster.Provider)
	ProviderStopped(p *cluster.Provider)
	ProviderCrashed(p *cluster.Provider, err error)
	HealthChanged(p *cluster.Provider, health string)
}

type proc struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stop   chan struct{} // closed by Stop() to suppress the crash path
	misses int
}

// Supervisor is the C4 Provider Supervisor: start/stop/health, no
// auto-restart on crash (spec.md §4.4 explicit non-goal for this version).
type Supervisor struct {
	prober Prober
	events EventSink

	mu    sync.Mutex
	procs map[string]*proc // ProviderKey() -> proc
	regs  *cluster.ProviderRegistry
}

func NewSupervisor(regs *cluster.ProviderRegistry, prober Prober, events EventSink) *Supervisor {
	return &Supervisor{regs: regs, prober: prober, events: events, procs: make(map[string]*proc)}
}

// Start spawns the binary of an already extracted archive, writes the
// HostData descriptor to its stdin, and waits for readiness (spec.md §4.4
// start operation). On any failure before readiness, the process is killed and
// ProviderSpawnFailed is returned — no partial registration.
func (s *Supervisor) Start(ctx context.Context, p *cluster.Provider, archive *Archive, hd HostData) error {
	key := p.ProviderKey()
	s.mu.Lock()
	if _, exists := s.procs[key]; exists {
		s.mu.Unlock()
		return cmn.Kindf(cmn.ErrAlreadyExists, "provider %s is already running", key)
	}
	s.mu.Unlock()

	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, archive.BinaryPath)

	hdJSON := cmn.MustMarshal(hd)
	cmd.Stdin = bytes.NewReader(hdJSON)

	if err := cmd.Start(); err != nil {
		cancel()
		return cmn.NewKindErr(cmn.ErrProviderSpawnFailed, "exec provider binary", err)
	}
	p.PID = cmd.Process.Pid
	p.State = "Starting"
	p.Health = "Unknown"
	p.StartedAt = time.Now()

	pr := &proc{cmd: cmd, cancel: cancel, stop: make(chan struct{})}
	s.mu.Lock()
	s.procs[key] = pr
	s.mu.Unlock()
	s.regs.Put(p)

	go s.watchExit(p, pr)

	readyCtx, readyCancel := context.WithTimeout(ctx, cmn.DefaultReadinessTimeout)
	defer readyCancel()
	if err := s.prober.Probe(readyCtx, p); err != nil {
		s.Stop(p)
		s.regs.Remove(p.ID, p.LinkName)
		return cmn.NewKindErr(cmn.ErrProviderSpawnFailed, "readiness probe failed", err)
	}

	p.State = "Running"
	p.Health = "Healthy"
	s.regs.Put(p)
	s.events.ProviderStarted(p)
	return nil
}

// watchExit observes process exit and, unless Stop() already suppressed it,
// marks the provider Crashed and emits a lifecycle event. This is the only
// path that reacts to an unexpected exit — there is deliberately no restart
// logic (spec.md §4.4).
func (s *Supervisor) watchExit(p *cluster.Provider, pr *proc) {
	err := pr.cmd.Wait()
	select {
	case <-pr.stop:
		return // expected exit from Stop()
	default:
	}
	s.mu.Lock()
	delete(s.procs, p.ProviderKey())
	s.mu.Unlock()

	p.State = "Crashed"
	p.Health = "Crashed"
	s.regs.Put(p)
	s.events.ProviderCrashed(p, err)
}

// Stop signals the child and waits briefly, then force-kills — the bounded
// graceful stop of spec.md §4.7's shutdown sequence applied to a single
// provider.
func (s *Supervisor) Stop(p *cluster.Provider) {
	key := p.ProviderKey()
	s.mu.Lock()
	pr, ok := s.procs[key]
	if ok {
		delete(s.procs, key)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	close(pr.stop)

	done := make(chan struct{})
	go func() {
		pr.cmd.Process.Signal(processInterrupt)
		pr.cmd.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(cmn.DefaultGracefulTimeout):
		pr.cancel() // escalates to SIGKILL via CommandContext
		<-done
	}

	p.State = "Stopped"
	p.Health = "Unknown"
	s.regs.Put(p)
	s.events.ProviderStopped(p)
}

// HealthLoop polls Prober.Probe every DefaultHealthInterval and, after
// UnresponsiveAfterMisses consecutive failures, flips Health to
// Unresponsive and emits a lifecycle event (spec.md §4.4 health operation).
// It returns when ctx is cancelled.
func (s *Supervisor) HealthLoop(ctx context.Context, p *cluster.Provider) {
	t := time.NewTicker(cmn.DefaultHealthInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			probeCtx, cancel := context.WithTimeout(ctx, cmn.DefaultHealthInterval/2)
			err := s.prober.Probe(probeCtx, p)
			cancel()

			key := p.ProviderKey()
			s.mu.Lock()
			pr, ok := s.procs[key]
			s.mu.Unlock()
			if !ok {
				return // provider was stopped/crashed out from under the loop
			}

			if err != nil {
				pr.misses++
				if pr.misses >= cmn.UnresponsiveAfterMisses && p.Health != "Unresponsive" {
					p.Health = "Unresponsive"
					s.regs.Put(p)
					s.events.HealthChanged(p, p.Health)
				}
				continue
			}
			pr.misses = 0
			if p.Health != "Healthy" {
				p.Health = "Healthy"
				s.regs.Put(p)
				s.events.HealthChanged(p, p.Health)
			}
		}
	}
}
