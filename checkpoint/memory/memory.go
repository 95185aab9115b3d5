// Package memory provides an in-memory checkpoint store for tests and
// single-process deployments.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/sweetpotato0/blackwell/errors"
)

// Store is an in-memory checkpoint.Store.
type Store struct {
	mu        sync.RWMutex
	snapshots map[string][]byte
}

// New creates an empty store.
func New() *Store {
	return &Store{
		snapshots: make(map[string][]byte),
	}
}

// Save writes the snapshot for a session.
func (s *Store) Save(ctx context.Context, sessionID string, snapshot []byte) error {
	if sessionID == "" {
		return fmt.Errorf("%w: session ID cannot be empty", errors.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]byte, len(snapshot))
	copy(buf, snapshot)
	s.snapshots[sessionID] = buf
	return nil
}

// Load returns the latest snapshot for a session.
func (s *Store) Load(ctx context.Context, sessionID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.snapshots[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: session %s", errors.ErrNotFound, sessionID)
	}
	buf := make([]byte, len(snapshot))
	copy(buf, snapshot)
	return buf, nil
}

// Delete removes a session's checkpoint.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.snapshots, sessionID)
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
