package chunkstore

import (
	"context"
	"sync"

	"github.com/latticerun/hostcore/cmn"
)

// MemoryBackend is an in-process ObjectStore used by tests and by a
// single-host deployment with no configured cloud backend.
type MemoryBackend struct {
	mu   sync.RWMutex
	objs map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{objs: make(map[string][]byte)}
}

func (m *MemoryBackend) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objs[key] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.objs[key]
	if !ok {
		return nil, cmn.Kindf(cmn.ErrNotFound, "no object %q", key)
	}
	return b, nil
}
