// Package cache defines the durable local key-value store the sync engine
// falls back to when the remote document is out of reach.
//
// Implementations live in subpackages: sqlite (embedded, the default) and
// redis (for hosted deployments). Memory is provided here for tests and
// throwaway sessions.
package cache

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by Get for keys that were never stored or have
// been deleted.
var ErrNotFound = errors.New("cache: key not found")

// Well-known keys.
const (
	// KeySnapshot holds the JSON of the most recent save.
	KeySnapshot = "khata_local_data"
	// KeyCredential holds the OAuth token (with expiry) as JSON.
	KeyCredential = "khata_google_drive_token"
	// KeyAccount holds the account id the credential belongs to.
	KeyAccount = "khata_account"
	// KeyStoreName holds the store display name.
	KeyStoreName = "khata_store_name"
	// KeyPending is present while the cached snapshot is newer than the remote.
	KeyPending = "khata_pending_sync"
	// KeyLastSaved holds the RFC 3339 time of the last successful remote save.
	KeyLastSaved = "khata_last_saved"
)

// Store is a durable key-value store. Implementations must be safe for
// concurrent use.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Memory is an in-process Store.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Put implements Store.
func (m *Memory) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = append([]byte(nil), value...)
	return nil
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

// Close implements Store.
func (m *Memory) Close() error {
	return nil
}

// GetString is Get for text values.
func GetString(ctx context.Context, s Store, key string) (string, error) {
	v, err := s.Get(ctx, key)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

// Has reports whether key is present. Errors other than ErrNotFound are
// returned as-is.
func Has(ctx context.Context, s Store, key string) (bool, error) {
	_, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
