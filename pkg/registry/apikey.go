package registry

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrKeyNotFound  = errors.New("api key not found")
	ErrKeyRevoked   = errors.New("api key revoked")
	ErrInvalidKey   = errors.New("invalid api key")
	ErrKeyHashFails = errors.New("failed to hash api key")
)

const (
	KeyPrefixProduction = "fg_live_"
	KeyPrefixTest       = "fg_test_"
	KeyRandomLength     = 32 // bytes of random data
	keyBcryptCost       = 10
)

// AdminKey is a provisioned administrative API key. Only the bcrypt hash of
// the secret is stored; the full key is shown once at creation time.
type AdminKey struct {
	ID         string    `json:"id"`
	Label      string    `json:"label"`
	Prefix     string    `json:"prefix"`
	SecretHash string    `json:"secret_hash"`
	CreatedAt  time.Time `json:"created_at"`
	RevokedAt  time.Time `json:"revoked_at,omitzero"`
}

// AdminKeyStore manages administrative API keys backed by a JSON file
type AdminKeyStore struct {
	keys    map[string]*AdminKey // keyID -> AdminKey
	dataDir string
	mu      sync.RWMutex
}

// NewAdminKeyStore creates a key store rooted at dataDir ("" for in-memory)
func NewAdminKeyStore(dataDir string) (*AdminKeyStore, error) {
	s := &AdminKeyStore{
		keys:    make(map[string]*AdminKey),
		dataDir: dataDir,
	}
	if dataDir != "" {
		if err := loadJSON(filepath.Join(dataDir, "admin_keys.json"), &s.keys); err != nil {
			return nil, fmt.Errorf("failed to load admin keys: %w", err)
		}
	}
	return s, nil
}

// CreateKey mints a new administrative API key. The returned plaintext key is
// the only copy; callers must hand it to the administrator immediately.
func (s *AdminKeyStore) CreateKey(label string, production bool) (*AdminKey, string, error) {
	randomBytes := make([]byte, KeyRandomLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return nil, "", err
	}
	secret := base64.RawURLEncoding.EncodeToString(randomBytes)

	prefix := KeyPrefixTest
	if production {
		prefix = KeyPrefixProduction
	}
	plaintext := prefix + secret

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), keyBcryptCost)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrKeyHashFails, err)
	}

	key := &AdminKey{
		ID:         uuid.New().String(),
		Label:      label,
		Prefix:     prefix,
		SecretHash: string(hash),
		CreatedAt:  time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key.ID] = key
	if err := s.persistLocked(); err != nil {
		delete(s.keys, key.ID)
		return nil, "", err
	}
	return key, plaintext, nil
}

// ValidateKey checks a presented API key against the stored hashes.
// Returns the matching key record on success.
func (s *AdminKeyStore) ValidateKey(plaintext string) (*AdminKey, error) {
	var secret string
	switch {
	case strings.HasPrefix(plaintext, KeyPrefixProduction):
		secret = strings.TrimPrefix(plaintext, KeyPrefixProduction)
	case strings.HasPrefix(plaintext, KeyPrefixTest):
		secret = strings.TrimPrefix(plaintext, KeyPrefixTest)
	default:
		return nil, ErrInvalidKey
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, key := range s.keys {
		if !key.RevokedAt.IsZero() {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(key.SecretHash), []byte(secret)) == nil {
			return key, nil
		}
	}
	return nil, ErrInvalidKey
}

// RevokeKey marks a key revoked. Revoked keys are kept for audit linkage.
func (s *AdminKeyStore) RevokeKey(keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keys[keyID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, keyID)
	}
	if !key.RevokedAt.IsZero() {
		return fmt.Errorf("%w: %s", ErrKeyRevoked, keyID)
	}
	key.RevokedAt = time.Now()

	return s.persistLocked()
}

func (s *AdminKeyStore) persistLocked() error {
	if s.dataDir == "" {
		return nil
	}
	if err := os.MkdirAll(s.dataDir, 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.keys, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(s.dataDir, "admin_keys.json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
