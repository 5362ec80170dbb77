package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("p@ss")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPassword(&hash, "p@ss") {
		t.Fatalf("expected password to match")
	}
	if CheckPassword(&hash, "wrong") {
		t.Fatalf("expected wrong password to be rejected")
	}
	if CheckPassword(nil, "p@ss") {
		t.Fatalf("expected nil hash to be rejected")
	}
}

func TestDigestIsKeyedAndStable(t *testing.T) {
	d1, err := NewDigester("key-one")
	if err != nil {
		t.Fatalf("digester: %v", err)
	}
	d2, _ := NewDigester("key-two")

	first := d1.Digest("user@test.project")
	if len(first) != 32 {
		t.Fatalf("expected 16 byte hex digest, got %q", first)
	}
	if first != d1.Digest("user@test.project") {
		t.Fatalf("expected digest to be stable")
	}
	if first == d2.Digest("user@test.project") {
		t.Fatalf("expected digest to depend on the key")
	}

	if _, err := NewDigester(""); !errors.Is(err, ErrMissingKey) {
		t.Fatalf("expected missing key error, got %v", err)
	}
	if _, err := NewDigester(strings.Repeat("k", 65)); !errors.Is(err, ErrKeyTooLong) {
		t.Fatalf("expected key too long error, got %v", err)
	}
	if _, err := NewDigester(strings.Repeat("k", 64)); err != nil {
		t.Fatalf("64 byte key must be accepted: %v", err)
	}
}

func TestTokensIssueAndVerify(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tokens := NewTokensWithClock("secret", time.Hour, func() time.Time { return now })

	token, err := tokens.Issue(42)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	id, err := tokens.Verify(token)
	if err != nil || id != 42 {
		t.Fatalf("expected user 42, got %d (%v)", id, err)
	}

	other := NewTokensWithClock("other", time.Hour, func() time.Time { return now })
	if _, err := other.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token with wrong secret, got %v", err)
	}

	now = now.Add(2 * time.Hour)
	if _, err := tokens.Verify(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected expired token, got %v", err)
	}
}

func TestExtractBearer(t *testing.T) {
	if got := ExtractBearer("Bearer abc"); got != "abc" {
		t.Fatalf("expected abc, got %q", got)
	}
	if got := ExtractBearer("abc"); got != "" {
		t.Fatalf("expected empty token, got %q", got)
	}
}
