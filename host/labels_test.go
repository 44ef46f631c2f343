package host

import (
	"encoding/json"
	"testing"

	"github.com/latticerun/hostcore/cluster"
	"github.com/latticerun/hostcore/control"
)

func TestLabelStoreSatisfiesExistsConstraint(t *testing.T) {
	ls := newLabelStore(map[string]string{"region": "us-west", "gpu": "true"})

	if !ls.satisfies([]string{"region=us-west", "gpu exists"}) {
		t.Fatal("expected constraints to be satisfied")
	}
	if ls.satisfies([]string{"region=us-east"}) {
		t.Fatal("expected mismatched constraint to fail")
	}
	if ls.satisfies([]string{"zone exists"}) {
		t.Fatal("expected missing label to fail an exists constraint")
	}
}

func TestLabelStorePutDeleteAreVisibleInSnapshot(t *testing.T) {
	ls := newLabelStore(nil)
	ls.put("role", "edge")
	snap := ls.snapshot()
	if snap["role"] != "edge" {
		t.Fatalf("expected role=edge in snapshot, got %v", snap)
	}

	ls.delete("role")
	if ls.satisfies([]string{"role exists"}) {
		t.Fatal("expected role to be gone after delete")
	}
}

func auctionCommand(constraints ...string) control.Command {
	b, _ := json.Marshal(struct{ Constraints []string }{constraints})
	return control.Command{Action: "component.auction", Value: b}
}

func TestAuctionHandlerIsSilentWhenConstraintsUnmet(t *testing.T) {
	h := &Host{labels: newLabelStore(map[string]string{"region": "us-west"})}
	reply := h.handleComponentAuction(nil, auctionCommand("region=us-east"))
	if reply.OK || reply.Error != "" || reply.Value != nil {
		t.Fatalf("expected a silent non-bid reply, got %+v", reply)
	}
}

func TestAuctionHandlerBidsWhenConstraintsMet(t *testing.T) {
	h := &Host{
		labels: newLabelStore(map[string]string{"region": "us-west"}),
		Self:   &cluster.Host{ID: "Nhost"},
	}
	reply := h.handleComponentAuction(nil, auctionCommand("region=us-west"))
	if !reply.OK {
		t.Fatalf("expected a winning bid, got %+v", reply)
	}
}
