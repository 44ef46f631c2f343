package claims

import (
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/nats-io/nkeys"
)

func mustIssuer(t *testing.T) (nkeys.KeyPair, string) {
	t.Helper()
	kp, err := nkeys.CreateAccount()
	if err != nil {
		t.Fatalf("create issuer keypair: %v", err)
	}
	pub, err := kp.PublicKey()
	if err != nil {
		t.Fatalf("issuer public key: %v", err)
	}
	return kp, pub
}

func sign(t *testing.T, kp nkeys.KeyPair, c *HostClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(edNkeyMethod{}, c)
	s, err := tok.SignedString(kp)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestVerifyTokenRejectsUntrustedIssuer(t *testing.T) {
	kp, pub := mustIssuer(t)
	claims := &HostClaims{
		StandardClaims: jwt.StandardClaims{Issuer: pub, Subject: "Mcomponent", IssuedAt: time.Now().Unix()},
		Hash:           sha256Hex([]byte("artifact")),
	}
	token := sign(t, kp, claims)

	v := NewVerifier(false)
	if _, err := v.VerifyToken(token); err == nil {
		t.Fatal("expected IssuerNotTrusted error for an unregistered issuer")
	}

	v.RegisterIssuer(pub)
	if _, err := v.VerifyToken(token); err != nil {
		t.Fatalf("expected success once issuer is registered: %v", err)
	}
}

func TestVerifyBytesDetectsHashMismatch(t *testing.T) {
	kp, pub := mustIssuer(t)
	claims := &HostClaims{
		StandardClaims: jwt.StandardClaims{Issuer: pub, Subject: "Mcomponent", IssuedAt: time.Now().Unix()},
		Hash:           sha256Hex([]byte("original bytes")),
	}
	token := sign(t, kp, claims)

	v := NewVerifier(true)
	if _, err := v.VerifyBytes(token, []byte("tampered bytes")); err == nil {
		t.Fatal("expected ArtifactHashMismatch for substituted bytes")
	}
	if _, err := v.VerifyBytes(token, []byte("original bytes")); err != nil {
		t.Fatalf("expected success for matching bytes: %v", err)
	}
}

func TestVerifyTokenEnforcesExpirySkew(t *testing.T) {
	kp, pub := mustIssuer(t)
	expired := &HostClaims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    pub,
			Subject:   "Mcomponent",
			ExpiresAt: time.Now().Add(-time.Hour).Unix(),
		},
		Hash: sha256Hex([]byte("x")),
	}
	token := sign(t, kp, expired)

	v := NewVerifier(true)
	if _, err := v.VerifyToken(token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestRevokeIssuerRejectsLaterVerification(t *testing.T) {
	kp, pub := mustIssuer(t)
	claims := &HostClaims{
		StandardClaims: jwt.StandardClaims{Issuer: pub, Subject: "Mcomponent", IssuedAt: time.Now().Unix()},
		Hash:           sha256Hex([]byte("x")),
	}
	token := sign(t, kp, claims)

	v := NewVerifier(false)
	v.RegisterIssuer(pub)
	if _, err := v.VerifyToken(token); err != nil {
		t.Fatalf("expected initial verification to succeed: %v", err)
	}

	v.RevokeIssuer(pub)
	if _, err := v.VerifyToken(token); err == nil {
		t.Fatal("expected verification to fail once issuer is revoked")
	}
}
