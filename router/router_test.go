package router

import (
	"context"
	"testing"

	"github.com/latticerun/hostcore/cluster"
)

type noopMetrics struct{ lastErr error }

func (m *noopMetrics) ObserveInvocation(caller, callee, iface string, err error) { m.lastErr = err }

func TestInvokeFailsFastOnMissingLink(t *testing.T) {
	r := NewRouter(nil, cluster.NewLinkCache(), nil, nil, &noopMetrics{}, "Nhost", "wasmbus", "default")
	_, err := r.Invoke(context.Background(), "Mcomp", "wasi", "keyvalue", "atomic", "increment", "default", []byte("x"))
	if err == nil {
		t.Fatal("expected LinkMissing for an unresolved link")
	}
}

func TestInvokeRejectsUndeclaredInterface(t *testing.T) {
	links := cluster.NewLinkCache()
	links.Put(&cluster.LinkDefinition{
		SourceID: "Mcomp", TargetID: "Vprov", WitNamespace: "wasi",
		WitPackage: "keyvalue", LinkName: "default", WitInterfaces: []string{"eventual"},
	})
	r := NewRouter(nil, links, nil, nil, &noopMetrics{}, "Nhost", "wasmbus", "default")
	_, err := r.Invoke(context.Background(), "Mcomp", "wasi", "keyvalue", "atomic", "increment", "default", []byte("x"))
	if err == nil {
		t.Fatal("expected NotPermitted for an undeclared interface")
	}
}
