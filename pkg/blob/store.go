// Package blob provides content-addressed storage for evidence bytes. Blobs
// are keyed by the same sha256 fingerprint the intake guard computes, so the
// record store and the blob store can never disagree about identity.
//
// There is no delete operation: admitted evidence is retired by status in
// the record store, never removed from storage.
package blob

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chittyos/chittychain/pkg/crypto"
)

// Store is the content-addressed blob store.
type Store interface {
	// Put persists data and returns its fingerprint. Idempotent: storing
	// the same bytes twice is a no-op returning the same fingerprint.
	Put(ctx context.Context, data []byte) (string, error)
	// Get retrieves data by fingerprint.
	Get(ctx context.Context, fingerprint string) ([]byte, error)
	Exists(ctx context.Context, fingerprint string) (bool, error)
}

// rawHash validates a "sha256:<hex>" fingerprint and returns the hex part.
func rawHash(fingerprint string) (string, error) {
	raw, ok := strings.CutPrefix(fingerprint, "sha256:")
	if !ok {
		return "", fmt.Errorf("invalid fingerprint format: %s", fingerprint)
	}
	if _, err := hex.DecodeString(raw); err != nil {
		return "", fmt.Errorf("invalid fingerprint hex: %w", err)
	}
	return raw, nil
}

// FileStore is the filesystem-backed Store used in single-node deployments.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStore creates a blob store rooted at baseDir.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure blob dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) path(raw string) string {
	return filepath.Join(s.baseDir, raw+".blob")
}

func (s *FileStore) Put(ctx context.Context, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fingerprint := crypto.Fingerprint(data)
	raw, _ := rawHash(fingerprint)
	path := s.path(raw)

	if _, err := os.Stat(path); err == nil {
		return fingerprint, nil
	}

	// Write to temp, then rename so readers never see a partial blob.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("commit blob: %w", err)
	}
	return fingerprint, nil
}

func (s *FileStore) Get(ctx context.Context, fingerprint string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := rawHash(fingerprint)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(s.path(raw))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("blob not found: %s", fingerprint)
		}
		return nil, fmt.Errorf("open blob: %w", err)
	}
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

func (s *FileStore) Exists(ctx context.Context, fingerprint string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := rawHash(fingerprint)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(s.path(raw)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat blob: %w", err)
	}
	return true, nil
}
