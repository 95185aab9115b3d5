// Package redis provides a Redis-backed checkpoint store.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/sweetpotato0/blackwell/errors"
)

// Config holds Redis connection settings for checkpoints.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// Store implements checkpoint.Store using Redis.
type Store struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
}

// New creates a Redis-based checkpoint store.
func New(config *Config) *Store {
	if config == nil {
		config = &Config{
			Addr:   "localhost:6379",
			Prefix: "blackwell:evaluation:",
			TTL:    24 * time.Hour,
		}
	}
	if config.Prefix == "" {
		config.Prefix = "blackwell:evaluation:"
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	return &Store{
		client: client,
		prefix: config.Prefix,
		ttl:    config.TTL,
	}
}

// Save writes the snapshot for a session.
func (s *Store) Save(ctx context.Context, sessionID string, snapshot []byte) error {
	if sessionID == "" {
		return fmt.Errorf("%w: session ID cannot be empty", errors.ErrInvalidInput)
	}
	if err := s.client.Set(ctx, s.key(sessionID), snapshot, s.ttl).Err(); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// Load returns the latest snapshot for a session.
func (s *Store) Load(ctx context.Context, sessionID string) ([]byte, error) {
	raw, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, fmt.Errorf("%w: session %s", errors.ErrNotFound, sessionID)
		}
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	return raw, nil
}

// Delete removes a session's checkpoint.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

// Ping checks if the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(sessionID string) string {
	return s.prefix + sessionID
}
