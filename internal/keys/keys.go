// Package keys defines the API key registry consumed by the HTTP gateway.
// Keys gate session registration; validation distinguishes unknown, revoked,
// and expired keys so callers can report the exact rejection reason.
package keys

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist in the registry.
var ErrNotFound = errors.New("keys: key not found")

// ErrDuplicate is returned when creating a key that already exists.
var ErrDuplicate = errors.New("keys: key already exists")

// Rejection reasons reported by Validate.
const (
	ReasonUnknown = "unknown_key"
	ReasonRevoked = "revoked"
	ReasonExpired = "expired"
)

// Key is a single API key record.
type Key struct {
	ID        int64      `json:"id"`
	Key       string     `json:"key"`
	Owner     string     `json:"owner"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Active    bool       `json:"active"`
}

// Validation is the outcome of checking a key. Reason is set only when
// Valid is false.
type Validation struct {
	Valid     bool       `json:"valid"`
	Reason    string     `json:"reason,omitempty"`
	Owner     string     `json:"owner,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// CreateParams describes a key to insert. An empty Key value means the store
// generates one.
type CreateParams struct {
	Key       string
	Owner     string
	ExpiresAt *time.Time
}

// UpdateParams describes a partial key update. Nil fields are left unchanged;
// ClearExpiry removes the expiration regardless of ExpiresAt.
type UpdateParams struct {
	Owner       *string
	ExpiresAt   *time.Time
	ClearExpiry bool
}

// Store is the API key registry. Implementations must be safe for
// concurrent use.
type Store interface {
	// Validate checks whether a key may register sessions.
	Validate(ctx context.Context, key string) (Validation, error)

	// List returns all keys ordered by id.
	List(ctx context.Context) ([]Key, error)

	// Get returns a single key record or ErrNotFound.
	Get(ctx context.Context, key string) (Key, error)

	// Create inserts a new key and returns the stored record.
	Create(ctx context.Context, params CreateParams) (Key, error)

	// Update applies a partial update. Returns ErrNotFound when absent.
	Update(ctx context.Context, key string, params UpdateParams) error

	// Revoke deactivates a key without deleting it. Returns ErrNotFound
	// when absent.
	Revoke(ctx context.Context, key string) error

	// Delete permanently removes a key. Returns ErrNotFound when absent.
	Delete(ctx context.Context, key string) error

	// PruneExpired revokes every active key whose expiry has passed and
	// returns how many were revoked.
	PruneExpired(ctx context.Context) (int, error)
}
