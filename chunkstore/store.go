// Package chunkstore implements the oversized-payload side channel the
// router hands off to when an invocation payload exceeds the inline
// threshold (spec.md §4.6). Bindings are adapted from the grounding
// repository's cloud backend providers (ais/cloud/*.go), generalized from
// "object storage backend for a bucket" to "object storage backend for
// chunked invocation payloads" keyed by content digest.
package chunkstore

import (
	"context"

	digest "github.com/opencontainers/go-digest"

	"github.com/latticerun/hostcore/cmn"
)

// ObjectStore is the pluggable backend router.ChunkStore is built on.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Store adapts an ObjectStore to router.ChunkStore by keying entries off
// the sha256 digest of their content, so two invocations carrying identical
// oversized payloads reuse the same object.
type Store struct {
	backend ObjectStore
	prefix  string
}

func NewStore(backend ObjectStore, prefix string) *Store {
	return &Store{backend: backend, prefix: prefix}
}

func (s *Store) Put(ctx context.Context, payload []byte) (string, error) {
	d := digest.FromBytes(payload)
	key := s.prefix + "/" + string(d.Algorithm()) + "/" + d.Hex()
	if err := s.backend.Put(ctx, key, payload); err != nil {
		return "", cmn.NewKindErr(cmn.ErrChunkStoreFailure, "put chunked payload", err)
	}
	return key, nil
}

func (s *Store) Get(ctx context.Context, handle string) ([]byte, error) {
	b, err := s.backend.Get(ctx, handle)
	if err != nil {
		return nil, cmn.NewKindErr(cmn.ErrChunkStoreFailure, "get chunked payload", err)
	}
	return b, nil
}
