// Package claims implements the Claims Verifier (spec.md §4.1): ed25519
// signature checking over embedded JWTs, issuer allow-listing, time-skew
// bounded validity, and artifact-hash binding for verify_bytes.
package claims

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/nats-io/nkeys"

	"github.com/latticerun/hostcore/cmn"
)

// signingMethodName is registered once at package init so every HostClaims
// token in this process round-trips through the same Ed25519-over-nkeys
// verification path, regardless of whether it signs a component, a
// provider, or a cluster issuer's own delegation.
const signingMethodName = "EdNkey"

func init() {
	jwt.RegisterSigningMethod(signingMethodName, func() jwt.SigningMethod {
		return edNkeyMethod{}
	})
}

type edNkeyMethod struct{}

func (edNkeyMethod) Alg() string { return signingMethodName }

// Verify decodes key as an nkeys-encoded public key (a component, provider,
// or account/operator identity, per the wasmCloud key-prefix convention) and
// checks sig against signingString.
func (edNkeyMethod) Verify(signingString, signature string, key interface{}) error {
	pub, ok := key.(string)
	if !ok {
		return jwt.ErrInvalidKeyType
	}
	kp, err := nkeys.FromPublicKey(pub)
	if err != nil {
		return cmn.NewKindErr(cmn.ErrInvalidClaims, "malformed issuer key", err)
	}
	sig, err := jwt.DecodeSegment(signature)
	if err != nil {
		return cmn.NewKindErr(cmn.ErrInvalidClaims, "malformed signature segment", err)
	}
	if err := kp.Verify([]byte(signingString), sig); err != nil {
		return cmn.NewKindErr(cmn.ErrInvalidClaims, "signature verification failed", err)
	}
	return nil
}

// Sign exists to satisfy jwt.SigningMethod; the host core never mints claims
// on behalf of a component or provider — only verifies them — and only the
// package's tests call Sign, to mint tokens for the verifier to check.
func (edNkeyMethod) Sign(signingString string, key interface{}) (string, error) {
	seed, ok := key.(nkeys.KeyPair)
	if !ok {
		return "", jwt.ErrInvalidKey
	}
	sig, err := seed.Sign([]byte(signingString))
	if err != nil {
		return "", err
	}
	return jwt.EncodeSegment(sig), nil
}

// HostClaims is the custom-claims payload embedded in a component or
// provider artifact's JWT (spec.md §3 Claims / §4.1). It is intentionally
// close to the wasmCloud actor/provider claims shape: an issuer-signed
// statement binding a subject identity to capability grants and a content
// hash.
type HostClaims struct {
	jwt.StandardClaims

	Name                string   `json:"name,omitempty"`
	Revision            int      `json:"rev,omitempty"`
	Hash                string   `json:"hash"` // hex sha256 of the artifact bytes
	CapabilityContract  []string `json:"caps,omitempty"`
	Tags                []string `json:"tags,omitempty"`
	CallAlias           string   `json:"call_alias,omitempty"`
	ProviderLinkName    string   `json:"link_name,omitempty"`
}

// Valid is called by jwt.Parser after signature verification. It enforces
// spec.md §4.1's "small skew window (≤30s)" on nbf/exp rather than jwt-go's
// default zero-skew comparison.
func (c *HostClaims) Valid() error {
	now := time.Now().Unix()
	skew := int64(cmn.DefaultClaimsSkew / time.Second)

	if c.ExpiresAt != 0 && now > c.ExpiresAt+skew {
		return cmn.Kindf(cmn.ErrInvalidClaims, "token expired at %d (now %d, skew %ds)", c.ExpiresAt, now, skew)
	}
	if c.NotBefore != 0 && now < c.NotBefore-skew {
		return cmn.Kindf(cmn.ErrInvalidClaims, "token not valid until %d (now %d, skew %ds)", c.NotBefore, now, skew)
	}
	if c.IssuedAt != 0 && c.IssuedAt > now+skew {
		return cmn.Kindf(cmn.ErrInvalidClaims, "token issued in the future (iat %d, now %d)", c.IssuedAt, now)
	}
	if c.Issuer == "" {
		return cmn.Kindf(cmn.ErrInvalidClaims, "missing issuer")
	}
	if c.Subject == "" {
		return cmn.Kindf(cmn.ErrInvalidClaims, "missing subject")
	}
	return nil
}

// sha256Hex is the digest function bound to the Hash claim and to artifact
// verification in verify_bytes; spec.md §4.1 does not name a specific
// algorithm, so sha256 is chosen to match registry/'s go-digest usage
// (sha256 is go-digest's and OCI's default).
func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
