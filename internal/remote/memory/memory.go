// Package memory implements remote.BlobStore in process memory.
//
// Besides serving as a backend for offline sessions it records call counts,
// injects failures and delays, and tracks how many Replace calls overlap,
// which makes it the mock backend for sync tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mschirtzinger/khata/internal/auth"
	"github.com/mschirtzinger/khata/internal/remote"
)

// Op names a BlobStore method.
type Op string

const (
	OpSearch  Op = "search"
	OpCreate  Op = "create"
	OpReplace Op = "replace"
	OpContent Op = "content"
	OpMeta    Op = "meta"
)

type blob struct {
	meta    remote.BlobMeta
	content []byte
}

// Store is an in-memory remote.BlobStore. The zero value is not usable;
// call New.
type Store struct {
	mu       sync.Mutex
	blobs    map[string]*blob
	nextID   int
	calls    map[Op]int
	failures map[Op][]error
	offline  bool
	delays   map[Op]time.Duration
	token    string

	inflight    int
	maxInflight int
	replaced    [][]byte
}

var _ remote.BlobStore = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		blobs:    make(map[string]*blob),
		calls:    make(map[Op]int),
		failures: make(map[Op][]error),
		delays:   make(map[Op]time.Duration),
	}
}

// RequireToken makes every call fail with ErrUnauthorized unless the
// credential carries token.
func (s *Store) RequireToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// FailNext queues err as the result of the next call to op.
func (s *Store) FailNext(op Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = append(s.failures[op], err)
}

// SetOffline makes every call fail with ErrUnavailable while on.
func (s *Store) SetOffline(offline bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offline = offline
}

// SetLatency delays every Replace by d.
func (s *Store) SetLatency(d time.Duration) {
	s.SetDelay(OpReplace, d)
}

// SetDelay delays every call to op by d. A call whose context ends first
// fails with ErrUnavailable without touching any blob.
func (s *Store) SetDelay(op Op, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[op] = d
}

// Calls returns how many times op was invoked.
func (s *Store) Calls(op Op) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// MaxConcurrentReplaces returns the highest number of overlapping Replace calls seen.
func (s *Store) MaxConcurrentReplaces() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxInflight
}

// Replaced returns the content of every successful Replace, in order.
func (s *Store) Replaced() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.replaced...)
}

// Seed stores a blob directly and returns its id.
func (s *Store) Seed(meta remote.BlobMeta, content []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(meta, content)
}

// Remove deletes a blob as if someone trashed it out of band.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, id)
}

// Find returns the first blob named name.
func (s *Store) Find(name string) (remote.BlobMeta, []byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.sortedIDs() {
		b := s.blobs[id]
		if b.meta.Name == name {
			return b.meta, append([]byte(nil), b.content...), true
		}
	}
	return remote.BlobMeta{}, nil, false
}

// Count returns the number of stored blobs.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}

func (s *Store) insert(meta remote.BlobMeta, content []byte) string {
	s.nextID++
	meta.ID = fmt.Sprintf("blob-%04d", s.nextID)
	meta.ModifiedTime = time.Now().UTC()
	s.blobs[meta.ID] = &blob{meta: meta, content: append([]byte(nil), content...)}
	return meta.ID
}

func (s *Store) sortedIDs() []string {
	ids := make([]string, 0, len(s.blobs))
	for i := 1; i <= s.nextID; i++ {
		id := fmt.Sprintf("blob-%04d", i)
		if _, ok := s.blobs[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// stall waits out the delay configured for op. Callers must not hold s.mu.
func (s *Store) stall(ctx context.Context, op Op) error {
	s.mu.Lock()
	d := s.delays[op]
	s.mu.Unlock()
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: %w: %v", op, remote.ErrUnavailable, ctx.Err())
	}
}

// begin records a call and returns the error it should fail with, if any.
// Callers must hold s.mu.
func (s *Store) begin(op Op, cred auth.Credential) error {
	s.calls[op]++
	if queued := s.failures[op]; len(queued) > 0 {
		s.failures[op] = queued[1:]
		return queued[0]
	}
	if s.offline {
		return fmt.Errorf("%s: %w", op, remote.ErrUnavailable)
	}
	if s.token != "" && cred.AccessToken != s.token {
		return fmt.Errorf("%s: %w", op, remote.ErrUnauthorized)
	}
	return nil
}

// Search implements remote.BlobStore.
func (s *Store) Search(ctx context.Context, cred auth.Credential, q remote.Query) ([]remote.BlobMeta, error) {
	if err := s.stall(ctx, OpSearch); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.begin(OpSearch, cred); err != nil {
		return nil, err
	}

	var out []remote.BlobMeta
	for _, id := range s.sortedIDs() {
		m := s.blobs[id].meta
		if q.Name != "" && m.Name != q.Name {
			continue
		}
		if q.MimeType != "" && m.MimeType != q.MimeType {
			continue
		}
		if q.Parent != "" && !contains(m.Parents, q.Parent) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// Create implements remote.BlobStore. Creating inside a missing parent
// fails with ErrNotFound.
func (s *Store) Create(ctx context.Context, cred auth.Credential, meta remote.BlobMeta, content []byte) (string, error) {
	if err := s.stall(ctx, OpCreate); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.begin(OpCreate, cred); err != nil {
		return "", err
	}
	for _, p := range meta.Parents {
		if _, ok := s.blobs[p]; !ok {
			return "", fmt.Errorf("parent %s: %w", p, remote.ErrNotFound)
		}
	}
	return s.insert(meta, content), nil
}

// Replace implements remote.BlobStore.
func (s *Store) Replace(ctx context.Context, cred auth.Credential, id string, content []byte, mimeType string) error {
	s.mu.Lock()
	if err := s.begin(OpReplace, cred); err != nil {
		s.mu.Unlock()
		return err
	}
	s.inflight++
	if s.inflight > s.maxInflight {
		s.maxInflight = s.inflight
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inflight--
		s.mu.Unlock()
	}()

	if err := s.stall(ctx, OpReplace); err != nil {
		return fmt.Errorf("%w (blob %s)", err, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.blobs[id]
	if !ok {
		return fmt.Errorf("replace %s: %w", id, remote.ErrNotFound)
	}
	b.content = append([]byte(nil), content...)
	if mimeType != "" {
		b.meta.MimeType = mimeType
	}
	b.meta.ModifiedTime = time.Now().UTC()
	s.replaced = append(s.replaced, append([]byte(nil), content...))
	return nil
}

// Content implements remote.BlobStore.
func (s *Store) Content(ctx context.Context, cred auth.Credential, id string) ([]byte, error) {
	if err := s.stall(ctx, OpContent); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.begin(OpContent, cred); err != nil {
		return nil, err
	}
	b, ok := s.blobs[id]
	if !ok {
		return nil, fmt.Errorf("content %s: %w", id, remote.ErrNotFound)
	}
	return append([]byte(nil), b.content...), nil
}

// Meta implements remote.BlobStore.
func (s *Store) Meta(ctx context.Context, cred auth.Credential, id string) (remote.BlobMeta, error) {
	if err := s.stall(ctx, OpMeta); err != nil {
		return remote.BlobMeta{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.begin(OpMeta, cred); err != nil {
		return remote.BlobMeta{}, err
	}
	b, ok := s.blobs[id]
	if !ok {
		return remote.BlobMeta{}, fmt.Errorf("meta %s: %w", id, remote.ErrNotFound)
	}
	return b.meta, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
