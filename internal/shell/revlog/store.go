// Package revlog persists the append-only revision history. One record is
// written per state-changing action; records are never mutated or deleted.
package revlog

import (
	"context"
	"errors"
	"fmt"

	"github.com/HamiGames/Lucid-sub000/internal/core/domain"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrRevisionNotFound is returned when no revision matches.
	ErrRevisionNotFound = errors.New("revision not found")

	// ErrConnectionFailed is returned when the database cannot be opened.
	ErrConnectionFailed = errors.New("revision log connection failed")

	// ErrMigrationFailed is returned when schema migration fails.
	ErrMigrationFailed = errors.New("revision log migration failed")

	// ErrInvalidData is returned when snapshot serialization fails.
	ErrInvalidData = errors.New("invalid revision data")
)

// StoreError wraps errors with additional context.
type StoreError struct {
	Op      string
	ID      string
	Message string
	Err     error
}

func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s revision %s: %s", e.Op, e.ID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError.
func NewStoreError(op, id, message string, err error) *StoreError {
	return &StoreError{Op: op, ID: id, Message: message, Err: err}
}

// =============================================================================
// Store Interface
// =============================================================================

// Store is the durable revision log. Append assigns the monotonic id and
// returns it; Latest and Get are indexed lookups.
type Store interface {
	Append(ctx context.Context, rev *domain.Revision) (int64, error)
	Get(ctx context.Context, id int64) (*domain.Revision, error)
	Latest(ctx context.Context, phaseID string) (*domain.Revision, error)
	ListByPhase(ctx context.Context, phaseID string, limit int) ([]domain.Revision, error)
	Close() error
}
