package wasmrt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/latticerun/hostcore/cluster"
	"github.com/latticerun/hostcore/cmn"
)

// InvocationState is the state machine spec.md §4.3 names: Received ->
// Authorized -> Dispatched -> {Completed, Failed, TimedOut}.
type InvocationState string

const (
	StateReceived   InvocationState = "Received"
	StateAuthorized InvocationState = "Authorized"
	StateDispatched InvocationState = "Dispatched"
	StateCompleted  InvocationState = "Completed"
	StateFailed     InvocationState = "Failed"
	StateTimedOut   InvocationState = "TimedOut"
)

// pool is the per-component instance pool: a bounded set of warm Instances
// plus a DynSemaphore enforcing MaxConcurrent. Grounded on the grounding
// repository's registry of live entries (xaction/registry) generalized
// from "one entry per running xaction" to "one entry per live Wasm
// instance", with cmn.DynSemaphore standing in for the job/queue admission
// control the teacher applies at the dispatcher level.
type pool struct {
	mu        sync.Mutex
	component *cluster.Component
	module    Module
	idle      []Instance
	sem       *cmn.DynSemaphore
}

// Runtime is the C3 Component Runtime.
type Runtime struct {
	engine Engine

	mu     sync.RWMutex
	pools  map[string]*pool // component id -> pool
}

func NewRuntime(engine Engine) *Runtime {
	return &Runtime{engine: engine, pools: make(map[string]*pool)}
}

// Load compiles bytes and registers c as a live component. Revision
// identity is exactly what the caller supplies in c (spec.md §3 invariant:
// identity never changes across scale, only Revision/InstanceCount do).
func (r *Runtime) Load(ctx context.Context, c *cluster.Component, bytes []byte) error {
	mod, err := r.engine.Compile(ctx, bytes)
	if err != nil {
		return err
	}
	sem := cmn.NewDynSemaphore(maxConcurrentOrDefault(c))
	r.mu.Lock()
	r.pools[c.ID] = &pool{component: c, module: mod, sem: sem}
	r.mu.Unlock()
	return nil
}

func maxConcurrentOrDefault(c *cluster.Component) int {
	if c.Unbounded() {
		return 1 << 20 // practically unbounded without special-casing the semaphore
	}
	return c.MaxConcurrent
}

// Scale changes a loaded component's MaxConcurrent without affecting
// identity or in-flight invocations (spec.md §4.3 scale operation).
func (r *Runtime) Scale(id string, maxConcurrent int) error {
	r.mu.RLock()
	p, ok := r.pools[id]
	r.mu.RUnlock()
	if !ok {
		return cmn.Kindf(cmn.ErrNotFound, "component %s is not loaded", id)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.component.MaxConcurrent = maxConcurrent
	p.sem.SetSize(maxConcurrentOrDefault(p.component))
	return nil
}

// Unload drains the pool's idle instances and removes the component.
// In-flight invocations already holding a semaphore slot are allowed to
// finish; Unload does not cancel them (spec.md §4.3 is silent on this, and
// the control plane's graceful-drain step, spec.md §4.7, is responsible for
// quiescing before Unload is ever called).
func (r *Runtime) Unload(id string) error {
	r.mu.Lock()
	p, ok := r.pools[id]
	if ok {
		delete(r.pools, id)
	}
	r.mu.Unlock()
	if !ok {
		return cmn.Kindf(cmn.ErrNotFound, "component %s is not loaded", id)
	}
	p.mu.Lock()
	for _, inst := range p.idle {
		inst.Close()
	}
	p.idle = nil
	p.mu.Unlock()
	return nil
}

// InvokeResult carries both the outcome and the final state for callers
// (router) that need to distinguish TimedOut from Failed when building the
// response envelope.
type InvokeResult struct {
	State InvocationState
	Bytes []byte
	Err   error
}

// Invoke runs the state machine Received -> Authorized -> Dispatched ->
// terminal. Authorization (the link/claims check) happens upstream in the
// router; by the time Invoke is called the request is already past
// Authorized, so Invoke starts at Dispatched once it acquires a pool slot.
func (rt *Runtime) Invoke(ctx context.Context, componentID, witNamespace, witPackage, witInterface, function string, payload []byte, timeout time.Duration) InvokeResult {
	rt.mu.RLock()
	p, ok := rt.pools[componentID]
	rt.mu.RUnlock()
	if !ok {
		return InvokeResult{State: StateFailed, Err: cmn.Kindf(cmn.ErrNotFound, "component %s is not loaded", componentID)}
	}

	if !p.sem.TryAcquire() {
		return InvokeResult{State: StateFailed, Err: cmn.Kindf(cmn.ErrOverloaded, "component %s at max_concurrent", componentID)}
	}
	defer p.sem.Release()

	inst, err := p.acquireInstance(ctx)
	if err != nil {
		return InvokeResult{State: StateFailed, Err: err}
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type callOutcome struct {
		bytes []byte
		err   error
	}
	done := make(chan callOutcome, 1)
	go func() {
		b, err := inst.Call(callCtx, witNamespace, witPackage, witInterface, function, payload)
		done <- callOutcome{bytes: b, err: err}
	}()

	select {
	case out := <-done:
		p.component.InstanceCount = p.liveCount()
		p.releaseInstance(inst)
		if out.err != nil {
			return InvokeResult{State: StateFailed, Err: out.err}
		}
		return InvokeResult{State: StateCompleted, Bytes: out.bytes}
	case <-callCtx.Done():
		// the call may still be running on inst, so it is closed once the
		// call returns instead of going back to the pool
		go func() {
			<-done
			inst.Close()
		}()
		return InvokeResult{State: StateTimedOut, Err: cmn.Kindf(cmn.ErrWasmTimeout, "invocation on %s exceeded %s", componentID, timeout)}
	}
}

func (p *pool) acquireInstance(ctx context.Context) (Instance, error) {
	p.mu.Lock()
	if n := len(p.idle); n > 0 {
		inst := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return inst, nil
	}
	mod := p.module
	p.mu.Unlock()

	inst, err := mod.Instantiate(ctx)
	if err != nil {
		return nil, cmn.NewKindErr(cmn.ErrWasmCompile, fmt.Sprintf("instantiate %s", p.component.ID), err)
	}
	return inst, nil
}

func (p *pool) releaseInstance(inst Instance) {
	p.mu.Lock()
	p.idle = append(p.idle, inst)
	p.mu.Unlock()
}

func (p *pool) liveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}
