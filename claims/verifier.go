package claims

import (
	"sync"

	"github.com/dgrijalva/jwt-go"

	"github.com/latticerun/hostcore/cmn"
)

// Verifier is the C1 Claims Verifier component (spec.md §4.1): verify_token,
// verify_bytes, register_issuer, revoke_issuer, over a process-local issuer
// allow-list.
//
// The allow-list starts empty, which per spec.md §4.1's Open Question is
// resolved here as reject-all-by-default: an operator must either
// register_issuer explicit trusted keys, or start the host with
// AllowAnyIssuer to accept whatever issuer a token names (see DESIGN.md).
type Verifier struct {
	mu            sync.RWMutex
	trusted       map[string]struct{} // nkey-encoded issuer public keys
	allowAny      bool
}

func NewVerifier(allowAnyIssuer bool) *Verifier {
	return &Verifier{
		trusted:  make(map[string]struct{}),
		allowAny: allowAnyIssuer,
	}
}

// RegisterIssuer adds issuerPubKey (an nkeys-encoded account/operator public
// key) to the allow-list. Idempotent.
func (v *Verifier) RegisterIssuer(issuerPubKey string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.trusted[issuerPubKey] = struct{}{}
}

// RevokeIssuer removes issuerPubKey from the allow-list. Tokens already
// accepted are not retroactively invalidated — callers needing that must
// track accepted subjects themselves (spec.md §4.1 does not require
// revocation to be retroactive).
func (v *Verifier) RevokeIssuer(issuerPubKey string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.trusted, issuerPubKey)
}

func (v *Verifier) isTrusted(issuerPubKey string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.allowAny {
		return true
	}
	_, ok := v.trusted[issuerPubKey]
	return ok
}

// VerifyToken checks token's ed25519 signature, its nbf/exp/iat validity
// window, and that its issuer is on the allow-list. It does not check the
// Hash claim against any bytes — use VerifyBytes for that.
func (v *Verifier) VerifyToken(token string) (*HostClaims, error) {
	claims := &HostClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != signingMethodName {
			return nil, cmn.Kindf(cmn.ErrInvalidClaims, "unexpected signing algorithm %q", t.Method.Alg())
		}
		return claims.Issuer, nil
	})
	if err != nil {
		if ke, ok := asKindError(err); ok {
			return nil, ke
		}
		return nil, cmn.NewKindErr(cmn.ErrInvalidClaims, "token parse/verify failed", err)
	}
	if !parsed.Valid {
		return nil, cmn.Kindf(cmn.ErrInvalidClaims, "token rejected by parser")
	}
	if !v.isTrusted(claims.Issuer) {
		return nil, cmn.Kindf(cmn.ErrIssuerNotTrusted, "issuer %q is not on the allow-list", claims.Issuer)
	}
	return claims, nil
}

// VerifyBytes is VerifyToken followed by a check that the claims' Hash
// matches sha256(artifact) — the binding step that stops a valid,
// trusted-issuer token from being replayed against substituted bytes
// (spec.md §4.1's artifact-hash-mismatch edge case).
func (v *Verifier) VerifyBytes(token string, artifact []byte) (*HostClaims, error) {
	c, err := v.VerifyToken(token)
	if err != nil {
		return nil, err
	}
	want := sha256Hex(artifact)
	if c.Hash == "" {
		return nil, cmn.Kindf(cmn.ErrInvalidClaims, "claims carry no hash to bind against")
	}
	if c.Hash != want {
		return nil, cmn.Kindf(cmn.ErrArtifactHashMismatch, "claims hash %s != artifact hash %s", c.Hash, want)
	}
	return c, nil
}

// asKindError unwraps jwt-go's *jwt.ValidationError (which box-wraps our
// errors thrown from Valid()/Verify()) back into a *cmn.KindError so callers
// keep their ability to switch on ErrKind instead of jwt-go's own error
// taxonomy.
func asKindError(err error) (*cmn.KindError, bool) {
	verr, ok := err.(*jwt.ValidationError)
	if !ok {
		return nil, false
	}
	if ke, ok := verr.Inner.(*cmn.KindError); ok {
		return ke, true
	}
	return nil, false
}
