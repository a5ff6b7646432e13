package registry

import (
	"errors"
	"strings"
	"testing"
)

func TestCreateAndValidateKey(t *testing.T) {
	store, err := NewAdminKeyStore("")
	if err != nil {
		t.Fatalf("NewAdminKeyStore: %v", err)
	}

	key, plaintext, err := store.CreateKey("ci-pipeline", false)
	if err != nil {
		t.Fatalf("CreateKey: %v", err)
	}
	if !strings.HasPrefix(plaintext, KeyPrefixTest) {
		t.Errorf("test key prefix missing: %s", plaintext)
	}
	if strings.Contains(key.SecretHash, strings.TrimPrefix(plaintext, KeyPrefixTest)) {
		t.Error("the stored hash must not contain the secret")
	}

	got, err := store.ValidateKey(plaintext)
	if err != nil {
		t.Fatalf("ValidateKey: %v", err)
	}
	if got.ID != key.ID {
		t.Errorf("validated key id %s, want %s", got.ID, key.ID)
	}
}

func TestProductionKeyPrefix(t *testing.T) {
	store, err := NewAdminKeyStore("")
	if err != nil {
		t.Fatalf("NewAdminKeyStore: %v", err)
	}

	_, plaintext, err := store.CreateKey("ops", true)
	if err != nil {
		t.Fatalf("CreateKey: %v", err)
	}
	if !strings.HasPrefix(plaintext, KeyPrefixProduction) {
		t.Errorf("production key prefix missing: %s", plaintext)
	}
}

func TestValidateKeyRejectsGarbage(t *testing.T) {
	store, err := NewAdminKeyStore("")
	if err != nil {
		t.Fatalf("NewAdminKeyStore: %v", err)
	}
	if _, _, err := store.CreateKey("real", false); err != nil {
		t.Fatalf("CreateKey: %v", err)
	}

	tests := []string{
		"",
		"no-prefix-at-all",
		KeyPrefixTest + "wrong-secret",
		KeyPrefixProduction + "wrong-secret",
	}
	for _, bad := range tests {
		if _, err := store.ValidateKey(bad); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("ValidateKey(%q): expected ErrInvalidKey, got %v", bad, err)
		}
	}
}

func TestRevokedKeyStopsValidating(t *testing.T) {
	store, err := NewAdminKeyStore("")
	if err != nil {
		t.Fatalf("NewAdminKeyStore: %v", err)
	}

	key, plaintext, err := store.CreateKey("short-lived", false)
	if err != nil {
		t.Fatalf("CreateKey: %v", err)
	}
	if err := store.RevokeKey(key.ID); err != nil {
		t.Fatalf("RevokeKey: %v", err)
	}

	if _, err := store.ValidateKey(plaintext); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("revoked key must not validate, got %v", err)
	}

	// second revoke reports the revoked state
	if err := store.RevokeKey(key.ID); !errors.Is(err, ErrKeyRevoked) {
		t.Errorf("expected ErrKeyRevoked, got %v", err)
	}
	if err := store.RevokeKey("no-such-key"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestKeyStorePersistence(t *testing.T) {
	dir := t.TempDir()

	store, err := NewAdminKeyStore(dir)
	if err != nil {
		t.Fatalf("NewAdminKeyStore: %v", err)
	}
	_, plaintext, err := store.CreateKey("persisted", false)
	if err != nil {
		t.Fatalf("CreateKey: %v", err)
	}

	reloaded, err := NewAdminKeyStore(dir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if _, err := reloaded.ValidateKey(plaintext); err != nil {
		t.Fatalf("key must validate after reload: %v", err)
	}
}
