package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

const testTokenSecret = "unit-test-secret-0123456789abcdefghij"

func TestNewTokenManagerRejectsShortSecret(t *testing.T) {
	if _, err := NewTokenManager("too-short", time.Hour, nil); !errors.Is(err, ErrShortSecret) {
		t.Fatalf("expected ErrShortSecret, got %v", err)
	}
}

func TestIssueAndValidateRoundTrip(t *testing.T) {
	mgr, err := NewTokenManager(testTokenSecret, time.Hour, nil)
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}

	token, expiresAt, err := mgr.IssueToken("sess-1", "op-1", "operator", "zone-1")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if time.Until(expiresAt) < 59*time.Minute {
		t.Errorf("expiry too soon: %v", expiresAt)
	}

	claims, err := mgr.ValidateToken(context.Background(), token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.SessionID != "sess-1" || claims.OperatorID != "op-1" {
		t.Errorf("claims do not round-trip: %+v", claims)
	}
	if claims.Role != "operator" || claims.ZoneID != "zone-1" {
		t.Errorf("role/zone do not round-trip: %+v", claims)
	}
}

func TestIssueTokenRequiresIdentity(t *testing.T) {
	mgr, _ := NewTokenManager(testTokenSecret, time.Hour, nil)

	if _, _, err := mgr.IssueToken("", "op-1", "operator", "z"); !errors.Is(err, ErrInvalidClaims) {
		t.Errorf("empty session id: expected ErrInvalidClaims, got %v", err)
	}
	if _, _, err := mgr.IssueToken("sess-1", "", "operator", "z"); !errors.Is(err, ErrInvalidClaims) {
		t.Errorf("empty operator id: expected ErrInvalidClaims, got %v", err)
	}
}

func TestValidateTokenRejectsTampering(t *testing.T) {
	mgr, _ := NewTokenManager(testTokenSecret, time.Hour, nil)
	token, _, err := mgr.IssueToken("sess-1", "op-1", "operator", "zone-1")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	// flip a character in the signature segment
	parts := strings.Split(token, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	if _, err := mgr.ValidateToken(context.Background(), tampered); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestValidateTokenRejectsWrongKey(t *testing.T) {
	issuer, _ := NewTokenManager(testTokenSecret, time.Hour, nil)
	verifier, _ := NewTokenManager("a-completely-different-secret-key-here", time.Hour, nil)

	token, _, err := issuer.IssueToken("sess-1", "op-1", "operator", "zone-1")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := verifier.ValidateToken(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestValidateTokenExpired(t *testing.T) {
	mgr, _ := NewTokenManager(testTokenSecret, -time.Minute, nil)
	token, _, err := mgr.IssueToken("sess-1", "op-1", "operator", "zone-1")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := mgr.ValidateToken(context.Background(), token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestValidateTokenRevoked(t *testing.T) {
	denylist := NewDenylist()
	mgr, _ := NewTokenManager(testTokenSecret, time.Hour, denylist)

	token, _, err := mgr.IssueToken("sess-1", "op-1", "operator", "zone-1")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := mgr.ValidateToken(context.Background(), token); err != nil {
		t.Fatalf("token should validate before revocation: %v", err)
	}

	denylist.Revoke("sess-1", time.Now().Add(time.Hour))
	if _, err := mgr.ValidateToken(context.Background(), token); !errors.Is(err, ErrRevokedToken) {
		t.Fatalf("expected ErrRevokedToken, got %v", err)
	}
}

func TestDenylistPrune(t *testing.T) {
	denylist := NewDenylist()
	now := time.Now()

	denylist.Revoke("sess-old", now.Add(-time.Minute))
	denylist.Revoke("sess-live", now.Add(time.Hour))

	if pruned := denylist.Prune(now); pruned != 1 {
		t.Errorf("expected 1 pruned entry, got %d", pruned)
	}
	if denylist.Contains("sess-live") != true {
		t.Error("live revocation must survive pruning")
	}
	if denylist.Len() != 1 {
		t.Errorf("expected 1 remaining entry, got %d", denylist.Len())
	}
}
