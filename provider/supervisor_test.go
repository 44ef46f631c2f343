package provider

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/latticerun/hostcore/cluster"
)

func writeTestArchive(t *testing.T, path string) {
	t.Helper()
	writeTestArchiveWithout(t, path, true, true)
}

// writeTestArchiveWithout builds a minimal tar.gz provider package,
// optionally omitting claims.jwt or the platform binary to exercise
// ExtractArchive's validation paths.
func writeTestArchiveWithout(t *testing.T, path string, includeClaims, includeBinary bool) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create archive: %v", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	if includeClaims {
		writeTarEntry(t, tw, "claims.jwt", []byte("fake-claims"))
	}
	if includeBinary {
		name := fmt.Sprintf("bin/%s-%s", runtime.GOARCH, runtime.GOOS)
		if runtime.GOOS == "windows" {
			name += ".exe"
		}
		writeTarEntry(t, tw, name, []byte("#!/bin/sh\nexit 0\n"))
	}

	if err := tw.Close(); err != nil {
		t.Fatalf("close tar writer: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip writer: %v", err)
	}
}

func writeTarEntry(t *testing.T, tw *tar.Writer, name string, body []byte) {
	t.Helper()
	hdr := &tar.Header{Name: name, Mode: 0o755, Size: int64(len(body))}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatalf("write tar header: %v", err)
	}
	if _, err := tw.Write(body); err != nil {
		t.Fatalf("write tar body: %v", err)
	}
}

type okProber struct{}

func (okProber) Probe(_ context.Context, _ *cluster.Provider) error { return nil }

type recordingEvents struct {
	started, stopped, crashed int
}

func (r *recordingEvents) ProviderStarted(*cluster.Provider)           { r.started++ }
func (r *recordingEvents) ProviderStopped(*cluster.Provider)           { r.stopped++ }
func (r *recordingEvents) ProviderCrashed(*cluster.Provider, error)    { r.crashed++ }
func (r *recordingEvents) HealthChanged(*cluster.Provider, string)     {}

func TestExtractArchiveRejectsMissingClaims(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "no-claims.tar.gz")
	writeTestArchiveWithout(t, archivePath, false, true)

	f, err := os.Open(archivePath)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer f.Close()

	if _, err := ExtractArchive(f, filepath.Join(dir, "extracted")); err == nil {
		t.Fatal("expected ProviderSpawnFailed for an archive with no claims.jwt")
	}
}

func TestStopOnUnknownProviderIsNoop(t *testing.T) {
	regs := cluster.NewProviderRegistry()
	s := NewSupervisor(regs, okProber{}, &recordingEvents{})
	p := &cluster.Provider{ID: "Mprov", LinkName: "default"}
	s.Stop(p) // must not panic or block when nothing was ever started
}

func TestHealthLoopStopsWithContext(t *testing.T) {
	regs := cluster.NewProviderRegistry()
	s := NewSupervisor(regs, okProber{}, &recordingEvents{})
	p := &cluster.Provider{ID: "Mprov", LinkName: "default"}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.HealthLoop(ctx, p)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("HealthLoop did not return after context cancellation")
	}
}

func TestExtractArchiveEndToEnd(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "provider.tar.gz")
	writeTestArchive(t, archivePath)

	f, err := os.Open(archivePath)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer f.Close()

	dest := filepath.Join(dir, "extracted")
	a, err := ExtractArchive(f, dest)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if a.ClaimsToken != "fake-claims" {
		t.Fatalf("unexpected claims token: %q", a.ClaimsToken)
	}
	if _, err := os.Stat(a.BinaryPath); err != nil {
		t.Fatalf("extracted binary missing: %v", err)
	}
}
