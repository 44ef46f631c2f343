package wasmrt

import (
	"context"
	"testing"
	"time"

	"github.com/latticerun/hostcore/cluster"
)

func TestInvokeRoundTrip(t *testing.T) {
	rt := NewRuntime(EchoEngine{})
	c := &cluster.Component{ID: "Mcomp", MaxConcurrent: 2}
	if err := rt.Load(context.Background(), c, []byte("wasm-bytes")); err != nil {
		t.Fatalf("load: %v", err)
	}

	res := rt.Invoke(context.Background(), "Mcomp", "wasi", "http", "incoming-handler", "handle", []byte("hello"), time.Second)
	if res.State != StateCompleted {
		t.Fatalf("expected Completed, got %s (%v)", res.State, res.Err)
	}
	if string(res.Bytes) != "wasi/http/incoming-handler.handle:hello" {
		t.Fatalf("unexpected echo result: %q", res.Bytes)
	}
}

func TestInvokeUnknownComponentFails(t *testing.T) {
	rt := NewRuntime(EchoEngine{})
	if res := rt.Invoke(context.Background(), "Mghost", "a", "b", "c", "d", nil, time.Second); res.State != StateFailed {
		t.Fatalf("expected Failed for unloaded component, got %s", res.State)
	}
}

func TestScaleRejectsUnknownComponent(t *testing.T) {
	rt := NewRuntime(EchoEngine{})
	if err := rt.Scale("Mghost", 4); err == nil {
		t.Fatal("expected NotFound scaling an unloaded component")
	}
}

func TestUnloadThenInvokeFails(t *testing.T) {
	rt := NewRuntime(EchoEngine{})
	c := &cluster.Component{ID: "Mcomp"}
	rt.Load(context.Background(), c, []byte("wasm-bytes"))
	if err := rt.Unload("Mcomp"); err != nil {
		t.Fatalf("unload: %v", err)
	}
	res := rt.Invoke(context.Background(), "Mcomp", "a", "b", "c", "d", nil, time.Second)
	if res.State != StateFailed {
		t.Fatalf("expected Failed after unload, got %s", res.State)
	}
}
