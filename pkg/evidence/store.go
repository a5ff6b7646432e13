// Package evidence stores captured fault evidence as content-addressed
// blobs. The rest of the system only ever handles the opaque ref; raw bytes
// never enter an Incident or an audit payload.
package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/golang/snappy"
)

var (
	ErrEmptyBlob    = errors.New("evidence blob cannot be empty")
	ErrBlobNotFound = errors.New("evidence blob not found")
	ErrBlobTooLarge = errors.New("evidence blob exceeds size limit")
	ErrCorruptBlob  = errors.New("evidence blob failed content check")
	ErrInvalidRef   = errors.New("evidence ref is not a hex sha-256 digest")
)

const (
	// DefaultMaxBlobSize caps a single evidence capture (raw bytes)
	DefaultMaxBlobSize = 32 * 1024 * 1024
)

// Store is an on-disk, content-addressed blob store. Blobs are
// snappy-compressed; the ref is the hex SHA-256 of the raw content, so a
// resubmitted identical capture deduplicates for free.
type Store struct {
	dir     string
	maxSize int64
	mu      sync.Mutex
}

// NewStore creates a store rooted at dir. Non-positive maxSize selects
// DefaultMaxBlobSize.
func NewStore(dir string, maxSize int64) (*Store, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxBlobSize
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create evidence directory: %w", err)
	}
	return &Store{dir: dir, maxSize: maxSize}, nil
}

// Put stores a blob and returns its ref
func (s *Store) Put(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyBlob
	}
	if int64(len(data)) > s.maxSize {
		return "", fmt.Errorf("%w: %d bytes", ErrBlobTooLarge, len(data))
	}

	sum := sha256.Sum256(data)
	ref := hex.EncodeToString(sum[:])
	path := s.blobPath(ref)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(path); err == nil {
		// Identical content already stored.
		return ref, nil
	}

	compressed := snappy.Encode(nil, data)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, compressed, 0600); err != nil {
		return "", fmt.Errorf("failed to write evidence blob: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("failed to finalize evidence blob: %w", err)
	}
	return ref, nil
}

// Get returns the raw bytes for a ref, verifying content integrity
func (s *Store) Get(ref string) ([]byte, error) {
	if !validRef(ref) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	compressed, err := os.ReadFile(s.blobPath(ref))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, ref)
		}
		return nil, err
	}

	data, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptBlob, err)
	}

	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != ref {
		return nil, fmt.Errorf("%w: content hash mismatch", ErrCorruptBlob)
	}
	return data, nil
}

// Exists reports whether a ref is stored
func (s *Store) Exists(ref string) bool {
	if !validRef(ref) {
		return false
	}
	_, err := os.Stat(s.blobPath(ref))
	return err == nil
}

// validRef accepts only lowercase hex SHA-256 digests. Refs reach blobPath
// from request paths, so anything else must never touch the filesystem.
func validRef(ref string) bool {
	if len(ref) != 64 {
		return false
	}
	for _, c := range ref {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func (s *Store) blobPath(ref string) string {
	return filepath.Join(s.dir, ref+".snappy")
}
