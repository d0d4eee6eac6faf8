package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestMintAndVerify(t *testing.T) {
	v := NewVerifier("test-secret")

	token, err := v.Mint("user-42")
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}

	uid, err := v.Verify(token)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if uid != "user-42" {
		t.Errorf("expected user id %q, got %q", "user-42", uid)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	token, err := NewVerifier("secret-a").Mint("user-42")
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}

	if _, err := NewVerifier("secret-b").Verify(token); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken for wrong secret, got %v", err)
	}
}

func TestVerify_Garbage(t *testing.T) {
	v := NewVerifier("test-secret")

	for _, tok := range []string{"", "not.a.jwt", "aaaa.bbbb.cccc"} {
		if _, err := v.Verify(tok); err != ErrInvalidToken {
			t.Errorf("token %q: expected ErrInvalidToken, got %v", tok, err)
		}
	}
}

func TestVerify_Expired(t *testing.T) {
	v := NewVerifier("test-secret")

	claims := Claims{
		UserID: "user-42",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-1 * time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	if _, err := v.Verify(signed); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestVerify_RejectsUnsignedAlg(t *testing.T) {
	v := NewVerifier("test-secret")

	claims := Claims{UserID: "user-42"}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	if _, err := v.Verify(unsigned); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken for alg=none token, got %v", err)
	}
}

func TestGatePass(t *testing.T) {
	v := NewVerifier("test-secret")

	pass, err := v.MintGatePass()
	if err != nil {
		t.Fatalf("mint gate pass failed: %v", err)
	}

	if !v.VerifyGatePass(pass) {
		t.Error("expected freshly minted gate pass to verify")
	}
	if v.VerifyGatePass("") {
		t.Error("empty gate pass must not verify")
	}
	if NewVerifier("other-secret").VerifyGatePass(pass) {
		t.Error("gate pass must not verify under a different secret")
	}
}

func TestGatePass_IdentityTokenIsNotAGatePass(t *testing.T) {
	v := NewVerifier("test-secret")

	token, err := v.Mint("user-42")
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	if v.VerifyGatePass(token) {
		t.Error("identity token accepted as gate pass")
	}
}
