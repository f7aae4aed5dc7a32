package security

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

func TestGenerateVerifyRoundtrip(t *testing.T) {
	opts := DefaultOptions([]byte("test-secret"))

	token, expireAt, err := Generate(opts, "user_10001", []string{"read"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if time.Until(expireAt) <= 0 {
		t.Errorf("expireAt in the past: %v", expireAt)
	}

	sub, err := VerifySubject(opts, token)
	if err != nil {
		t.Fatalf("VerifySubject: %v", err)
	}
	if sub != "user_10001" {
		t.Errorf("sub = %q", sub)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	opts := DefaultOptions([]byte("secret-a"))
	token, _, err := Generate(opts, "user_10001", nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	other := DefaultOptions([]byte("secret-b"))
	if _, err := VerifySubject(other, token); err == nil {
		t.Fatal("expected verify failure with wrong secret")
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	opts := DefaultOptions([]byte("secret"))
	if _, err := VerifySubject(opts, "not.a.token"); err == nil {
		t.Fatal("expected failure on garbage token")
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	opts := DefaultOptions([]byte("secret"))

	now := time.Now()
	tok := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"sub": "user_10001",
		"iat": now.Add(-2 * time.Hour).Unix(),
		"exp": now.Add(-time.Hour).Unix(),
	})
	signed, err := tok.SignedString(opts.Secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := VerifySubject(opts, signed); err == nil {
		t.Fatal("expected failure on expired token")
	}
}

func TestVerifyRejectsMissingSubject(t *testing.T) {
	opts := DefaultOptions([]byte("secret"))

	tok := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString(opts.Secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := VerifySubject(opts, signed); err == nil {
		t.Fatal("expected failure when sub is missing")
	}
}

func TestUnsupportedAlg(t *testing.T) {
	opts := Options{Secret: []byte("x"), Alg: "RS256"}
	if _, _, err := Generate(opts, "u", nil); err == nil {
		t.Fatal("expected unsupported alg error")
	}
}
