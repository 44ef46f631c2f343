package host

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/latticerun/hostcore/cmn"
	"github.com/latticerun/hostcore/control"
)

// labelStore is the mutex-guarded label map the supplemental Labels &
// Auctions module adds: host.label.put/delete mutate it directly,
// component.auction/provider.auction read it to evaluate bid constraints.
type labelStore struct {
	mu     sync.RWMutex
	labels map[string]string
}

func newLabelStore(initial map[string]string) *labelStore {
	ls := &labelStore{labels: make(map[string]string)}
	for k, v := range initial {
		ls.labels[k] = v
	}
	return ls
}

func (ls *labelStore) put(k, v string) {
	ls.mu.Lock()
	ls.labels[k] = v
	ls.mu.Unlock()
}

func (ls *labelStore) delete(k string) {
	ls.mu.Lock()
	delete(ls.labels, k)
	ls.mu.Unlock()
}

func (ls *labelStore) snapshot() map[string]string {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	out := make(map[string]string, len(ls.labels))
	for k, v := range ls.labels {
		out[k] = v
	}
	return out
}

// satisfies evaluates the original auction constraint language: each
// constraint is either "key=value" (exact match) or "key exists"
// (presence only). Every constraint must hold.
func (ls *labelStore) satisfies(constraints []string) bool {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	for _, c := range constraints {
		if rest, ok := strings.CutSuffix(c, " exists"); ok {
			if _, present := ls.labels[rest]; !present {
				return false
			}
			continue
		}
		k, v, ok := strings.Cut(c, "=")
		if !ok {
			return false
		}
		if ls.labels[k] != v {
			return false
		}
	}
	return true
}

func (h *Host) registerSupplementalHandlers() {
	h.Plane.Register("host.label.put", h.handleLabelPut)
	h.Plane.Register("host.label.delete", h.handleLabelDelete)
	h.Plane.Register("component.auction", h.handleComponentAuction)
	h.Plane.Register("provider.auction", h.handleProviderAuction)
	h.Plane.RegisterDirect("host.ping", h.handlePing)
	h.Plane.RegisterDirect("host.inventory", h.handleHostInventory)
}

func (h *Host) handleLabelPut(ctx context.Context, cmd control.Command) control.Reply {
	var req struct{ Key, Value string }
	if err := json.Unmarshal(cmd.Value, &req); err != nil {
		return control.Reply{OK: false, Error: err.Error(), Kind: cmn.ErrInvalidClaims}
	}
	h.labels.put(req.Key, req.Value)
	return okReply(nil)
}

func (h *Host) handleLabelDelete(ctx context.Context, cmd control.Command) control.Reply {
	var req struct{ Key string }
	if err := json.Unmarshal(cmd.Value, &req); err != nil {
		return control.Reply{OK: false, Error: err.Error(), Kind: cmn.ErrInvalidClaims}
	}
	h.labels.delete(req.Key)
	return okReply(nil)
}

// handleComponentAuction returns the zero Reply (silence) when this host's
// labels fail to satisfy the bid constraints, matching the original
// auction pattern of "silence means no bid" rather than an explicit
// rejection.
func (h *Host) handleComponentAuction(ctx context.Context, cmd control.Command) control.Reply {
	var req struct{ Constraints []string }
	if err := json.Unmarshal(cmd.Value, &req); err != nil {
		return control.Reply{OK: false, Error: err.Error(), Kind: cmn.ErrInvalidClaims}
	}
	if !h.labels.satisfies(req.Constraints) {
		return control.Reply{}
	}
	return okReply(map[string]string{"host_id": h.Self.ID})
}

func (h *Host) handleProviderAuction(ctx context.Context, cmd control.Command) control.Reply {
	var req struct{ Constraints []string }
	if err := json.Unmarshal(cmd.Value, &req); err != nil {
		return control.Reply{OK: false, Error: err.Error(), Kind: cmn.ErrInvalidClaims}
	}
	if !h.labels.satisfies(req.Constraints) {
		return control.Reply{}
	}
	return okReply(map[string]string{"host_id": h.Self.ID})
}

func (h *Host) handlePing(ctx context.Context, cmd control.Command) control.Reply {
	return okReply(map[string]interface{}{
		"host_id":       h.Self.ID,
		"friendly_name": h.Self.FriendlyName,
		"version":       cmn.Version,
		"uptime":        time.Since(h.Self.StartTime).String(),
	})
}
