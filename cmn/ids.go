package cmn

import (
	"github.com/OneOfOne/xxhash"
	"github.com/nats-io/nuid"
	"github.com/teris-io/shortid"
)

// NewInvocationID returns a NUID, exactly the identifier kind spec.md §3
// names for Invocation.ID: "nuid". NUIDs are cheap to generate, which
// matters on the router's hot path; the package-level nuid generator is
// mutex-guarded, so concurrent callers are safe.
func NewInvocationID() string { return nuid.Next() }

var sid, _ = shortid.New(1, shortid.DefaultABC, 0xCAFE)

// NewFriendlyName returns a short, human-memorable string for Host.FriendlyName
// (spec.md §3). Collisions are harmless — the field is cosmetic, not an
// identity.
func NewFriendlyName() string {
	s, err := sid.Generate()
	if err != nil {
		return nuid.Next()
	}
	return s
}

// HashString returns a fast, non-cryptographic 64-bit hash used to pick a
// control plane shard for a given entity id (spec.md §4.7 per-entity
// ordering).
func HashString(s string) uint64 {
	return xxhash.ChecksumString64S(s, mlcg)
}

// mlcg is an arbitrary odd seed, same role as aistore's cmn.MLCG32: keeps
// the hash distribution stable across process restarts without needing a
// random seed.
const mlcg = 0x9e3779b97f4a7c15
