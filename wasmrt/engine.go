// Package wasmrt implements the Component Runtime (spec.md §4.3): compiling
// and instantiating Wasm components, pooling instances per component, and
// enforcing per-component concurrency caps.
package wasmrt

import (
	"context"

	"github.com/latticerun/hostcore/cmn"
)

// Engine abstracts the actual Wasm compiler/runtime. The examples pack
// carries no Wasm engine binding (wasmtime-go, wazero, ...), so the host
// core depends on this interface and ships one in-process reference
// implementation (EchoEngine) rather than fabricating a dependency that
// was never in the corpus — see DESIGN.md's entry for wasmrt/engine.go.
type Engine interface {
	// Compile validates and prepares bytes for repeated instantiation,
	// returning an opaque handle. A real engine would do ahead-of-time
	// compilation here; that cost is exactly what the instance pool in
	// runtime.go amortizes across invocations.
	Compile(ctx context.Context, bytes []byte) (Module, error)
}

// Module is a compiled artifact capable of producing fresh Instances.
type Module interface {
	Instantiate(ctx context.Context) (Instance, error)
}

// Instance is one running copy of a component, bound to exactly one OS
// thread worth of execution at a time (spec.md §5: "cooperative scheduling
// of component instances onto a fixed set of OS threads").
type Instance interface {
	// Call invokes function within the WIT interface (namespace, pkg,
	// iface) with payload, returning the raw result bytes.
	Call(ctx context.Context, namespace, pkg, iface, function string, payload []byte) ([]byte, error)
	Close() error
}

// EchoEngine is the reference Engine: it "compiles" by doing nothing but
// validating the bytes are non-empty, and its instances echo the payload
// back prefixed with "namespace/pkg/iface.function:". It exists purely so the
// rest of the runtime (pooling, concurrency caps, timeouts, state machine)
// has something real to drive in tests, the same role the grounding
// repository's mock cloud backends (cloud/*_mock.go equivalents) play for
// exercising xaction machinery without a live cluster.
type EchoEngine struct{}

func (EchoEngine) Compile(_ context.Context, bytes []byte) (Module, error) {
	if len(bytes) == 0 {
		return nil, cmn.Kindf(cmn.ErrWasmCompile, "empty module bytes")
	}
	return echoModule{bytes: bytes}, nil
}

type echoModule struct{ bytes []byte }

func (m echoModule) Instantiate(_ context.Context) (Instance, error) {
	return &echoInstance{}, nil
}

type echoInstance struct{ closed bool }

func (i *echoInstance) Call(_ context.Context, namespace, pkg, iface, function string, payload []byte) ([]byte, error) {
	if i.closed {
		return nil, cmn.Kindf(cmn.ErrWasmTrap, "call on closed instance")
	}
	out := make([]byte, 0, len(payload)+len(function)+len(namespace)+len(pkg)+len(iface)+8)
	out = append(out, []byte(namespace+"/"+pkg+"/"+iface+"."+function+":")...)
	out = append(out, payload...)
	return out, nil
}

func (i *echoInstance) Close() error {
	i.closed = true
	return nil
}
