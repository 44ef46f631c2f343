package chunkstore

import (
	"bytes"
	"context"
	"testing"
)

func TestPutGetRoundTrip(t *testing.T) {
	s := NewStore(NewMemoryBackend(), "invocations")
	payload := bytes.Repeat([]byte("x"), 4096)

	handle, err := s.Put(context.Background(), payload)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.Get(context.Background(), handle)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("round-tripped payload does not match")
	}
}

func TestPutIsContentAddressed(t *testing.T) {
	s := NewStore(NewMemoryBackend(), "invocations")
	h1, _ := s.Put(context.Background(), []byte("same bytes"))
	h2, _ := s.Put(context.Background(), []byte("same bytes"))
	if h1 != h2 {
		t.Fatalf("expected identical payloads to share a handle: %q vs %q", h1, h2)
	}
}

func TestGetMissingHandleFails(t *testing.T) {
	s := NewStore(NewMemoryBackend(), "invocations")
	if _, err := s.Get(context.Background(), "invocations/sha256/deadbeef"); err == nil {
		t.Fatal("expected ChunkStoreFailure for a missing handle")
	}
}
