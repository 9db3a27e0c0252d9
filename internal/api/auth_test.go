package api

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestVerifyAudienceClaim(t *testing.T) {
	tests := []struct {
		name  string
		claim any
		want  bool
	}{
		{name: "string match", claim: "authenticated", want: true},
		{name: "string mismatch", claim: "anon", want: false},
		{name: "any slice match", claim: []any{"anon", "authenticated"}, want: true},
		{name: "string slice match", claim: []string{"authenticated"}, want: true},
		{name: "missing", claim: nil, want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := verifyAudienceClaim(tc.claim, "authenticated"); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestExtractContactClaim(t *testing.T) {
	if got := extractContactClaim(jwt.MapClaims{"email": " Bob@Example.com ", "phone": "+5511"}); got != "bob@example.com" {
		t.Fatalf("expected email to win, got %q", got)
	}
	if got := extractContactClaim(jwt.MapClaims{"email": "", "phone": " +5511999 "}); got != "+5511999" {
		t.Fatalf("expected phone fallback, got %q", got)
	}
}

func TestTokenVerifierChecksAudienceAndIssuer(t *testing.T) {
	verifier := NewTokenVerifier(AuthConfig{
		JWTSecret:        testJWTSecret,
		ExpectedAudience: "authenticated",
		ExpectedIssuer:   "https://auth.dincash.app",
	})

	sign := func(claims jwt.MapClaims) string {
		claims["sub"] = "alice"
		claims["exp"] = time.Now().Add(time.Hour).Unix()
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
		if err != nil {
			t.Fatalf("failed to sign token: %v", err)
		}
		return signed
	}

	if _, err := verifier.Verify(context.Background(), sign(jwt.MapClaims{"aud": "authenticated", "iss": "https://auth.dincash.app"})); err != nil {
		t.Fatalf("expected valid token, got %v", err)
	}
	if _, err := verifier.Verify(context.Background(), sign(jwt.MapClaims{"aud": "anon", "iss": "https://auth.dincash.app"})); err == nil {
		t.Fatal("expected audience mismatch to fail")
	}
	if _, err := verifier.Verify(context.Background(), sign(jwt.MapClaims{"aud": "authenticated", "iss": "https://evil.example"})); err == nil {
		t.Fatal("expected issuer mismatch to fail")
	}
}

func TestTokenVerifierWithoutMethodsRejects(t *testing.T) {
	verifier := NewTokenVerifier(AuthConfig{})
	if _, err := verifier.Verify(context.Background(), "anything"); err == nil {
		t.Fatal("expected error when no verification method is configured")
	}
}
