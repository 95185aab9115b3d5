// Package checkpoint persists evaluation state between stages so an
// interrupted run can resume from its last committed stage.
package checkpoint

import (
	"context"
)

// Store persists opaque state snapshots keyed by session ID. Implementations
// must be safe for concurrent use by independent sessions.
type Store interface {
	// Save writes the snapshot for a session, replacing any previous one.
	Save(ctx context.Context, sessionID string, snapshot []byte) error

	// Load returns the latest snapshot. Returns errors.ErrNotFound when the
	// session has no checkpoint.
	Load(ctx context.Context, sessionID string) ([]byte, error)

	// Delete removes a session's checkpoint.
	Delete(ctx context.Context, sessionID string) error

	// Close releases underlying resources.
	Close() error
}
