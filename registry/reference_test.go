package registry

import "testing"

func TestParseReferenceTag(t *testing.T) {
	r, err := ParseReference("ghcr.io/acme/hello:0.1.0")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if r.Registry != "ghcr.io" || r.Repository != "acme/hello" || r.Tag != "0.1.0" {
		t.Fatalf("unexpected parse result: %+v", r)
	}
	if r.IsLatest() {
		t.Fatal("0.1.0 should not resolve as latest")
	}
}

func TestParseReferenceDigest(t *testing.T) {
	r, err := ParseReference("ghcr.io/acme/hello@sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if r.Repository != "acme/hello" || r.Digest == "" {
		t.Fatalf("unexpected parse result: %+v", r)
	}
}

func TestParseReferenceImplicitLatest(t *testing.T) {
	r, err := ParseReference("ghcr.io/acme/hello")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !r.IsLatest() {
		t.Fatal("bare reference should resolve to latest")
	}
}

func TestParseReferenceRejectsMissingRegistry(t *testing.T) {
	if _, err := ParseReference("hello:0.1.0"); err == nil {
		t.Fatal("expected InvalidReference for a reference with no registry host")
	}
}
