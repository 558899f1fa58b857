package session

import (
	"strings"
	"testing"
	"time"
)

func TestIssueAndParseToken(t *testing.T) {
	secret := []byte("secret")
	token, claims, err := IssueToken(secret, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if claims.JTI == "" {
		t.Fatal("missing jti")
	}

	parsed, err := ParseToken(secret, token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.JTI != claims.JTI || parsed.Exp != claims.Exp {
		t.Fatalf("claims mismatch: %+v vs %+v", parsed, claims)
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	token, _, err := IssueToken([]byte("one"), time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := ParseToken([]byte("two"), token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseTokenRejectsTamperedPayload(t *testing.T) {
	secret := []byte("secret")
	token, _, err := IssueToken(secret, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	parts := strings.SplitN(token, ".", 2)
	tampered := "x" + parts[0] + "." + parts[1]
	if _, err := ParseToken(secret, tampered); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	for _, token := range []string{"", "one-part", "a.b.c", "!!.!!"} {
		if _, err := ParseToken([]byte("secret"), token); err != ErrInvalidToken {
			t.Fatalf("token %q: expected ErrInvalidToken, got %v", token, err)
		}
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	secret := []byte("secret")
	token, _, err := IssueToken(secret, -time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := ParseToken(secret, token); err != ErrExpiredToken {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("opensesame")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !VerifyPassword(hash, "opensesame") {
		t.Fatal("correct password rejected")
	}
	if VerifyPassword(hash, "wrong") {
		t.Fatal("wrong password accepted")
	}
	if VerifyPassword("not-a-hash", "opensesame") {
		t.Fatal("malformed hash accepted")
	}
}
