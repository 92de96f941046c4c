// Package redis provides a cache.Store on top of a Redis server, for
// deployments where the host has no writable disk.
package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/go-redis/redis/v8"
	"github.com/mschirtzinger/khata/internal/cache"
)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "khata:"

// Options configures Dial.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Store is a cache.Store backed by Redis. Values never expire.
type Store struct {
	client *goredis.Client
	prefix string
}

var _ cache.Store = (*Store)(nil)

// New wraps an existing client.
func New(client *goredis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

// Dial connects to Redis and verifies the connection with PING.
func Dial(ctx context.Context, opts Options) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", opts.Addr, err)
	}
	return New(client, opts.Prefix), nil
}

func (s *Store) key(k string) string {
	return s.prefix + k
}

// Get implements cache.Store.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return v, nil
}

// Put implements cache.Store.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Delete implements cache.Store.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
