// Package registry implements the Registry Fetcher (spec.md §4.2): parsing
// OCI-style artifact references, fetching over HTTPS with retry/backoff, and
// maintaining a digest-addressed on-disk cache. Structurally this package is
// the grounding repository's downloader package (dispatcher + one worker
// "jogger" per download slot, request/response channels) retargeted from
// arbitrary URL downloads to OCI artifact fetches.
package registry

import (
	"fmt"
	"strings"

	digest "github.com/opencontainers/go-digest"

	"github.com/latticerun/hostcore/cmn"
)

// Reference is a parsed OCI-style artifact reference, e.g.
// "ghcr.io/acme/hello:0.1.0" or "ghcr.io/acme/hello@sha256:<hex>".
type Reference struct {
	Registry  string
	Repository string
	Tag       string       // empty if pinned by digest
	Digest    digest.Digest // empty if referenced by tag
	Insecure  bool
}

// IsLatest reports whether the reference resolves to the floating "latest"
// tag, which the fetcher only honors when allow_latest is set (spec.md
// §4.2 edge case).
func (r *Reference) IsLatest() bool { return r.Tag == "latest" || r.Tag == "" && r.Digest == "" }

func (r *Reference) String() string {
	if r.Digest != "" {
		return fmt.Sprintf("%s/%s@%s", r.Registry, r.Repository, r.Digest)
	}
	return fmt.Sprintf("%s/%s:%s", r.Registry, r.Repository, r.Tag)
}

// ParseReference parses ref into its registry/repository/tag-or-digest
// components. Accepted shapes, per spec.md §4.2:
//
//	<registry>/<repository>:<tag>
//	<registry>/<repository>@<algo>:<hex>
//	<registry>/<repository>            (implicit :latest)
func ParseReference(ref string) (*Reference, error) {
	if ref == "" {
		return nil, cmn.Kindf(cmn.ErrInvalidReference, "empty reference")
	}
	slash := strings.Index(ref, "/")
	if slash < 0 {
		return nil, cmn.Kindf(cmn.ErrInvalidReference, "reference %q is missing a registry host", ref)
	}
	reg := ref[:slash]
	rest := ref[slash+1:]

	if at := strings.LastIndex(rest, "@"); at >= 0 {
		repo := rest[:at]
		d := digest.Digest(rest[at+1:])
		if err := d.Validate(); err != nil {
			return nil, cmn.NewKindErr(cmn.ErrInvalidReference, fmt.Sprintf("reference %q has an invalid digest", ref), err)
		}
		if repo == "" {
			return nil, cmn.Kindf(cmn.ErrInvalidReference, "reference %q is missing a repository", ref)
		}
		return &Reference{Registry: reg, Repository: repo, Digest: d}, nil
	}

	if colon := strings.LastIndex(rest, ":"); colon >= 0 {
		repo := rest[:colon]
		tag := rest[colon+1:]
		if repo == "" || tag == "" {
			return nil, cmn.Kindf(cmn.ErrInvalidReference, "reference %q has an empty repository or tag", ref)
		}
		return &Reference{Registry: reg, Repository: repo, Tag: tag}, nil
	}

	if rest == "" {
		return nil, cmn.Kindf(cmn.ErrInvalidReference, "reference %q is missing a repository", ref)
	}
	return &Reference{Registry: reg, Repository: rest, Tag: "latest"}, nil
}
