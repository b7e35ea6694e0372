// Package launcher starts and stops services against resolved
// configuration. Kind dispatch is a lookup table resolved once at
// construction, not per-launch conditionals.
package launcher

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrUnresolvedReference is returned when an env value references a
	// secret or deployment value that does not exist. Unresolved
	// references are configuration errors, never silent empty strings.
	ErrUnresolvedReference = errors.New("unresolved configuration reference")

	// ErrUnknownKind is returned when no launcher is registered for a
	// service's kind.
	ErrUnknownKind = errors.New("no launcher registered for service kind")

	// ErrImageMissing is returned when a service's image cannot be made
	// available.
	ErrImageMissing = errors.New("image not available")
)

// LaunchError wraps a failed service launch with context.
type LaunchError struct {
	Service string
	Op      string
	Message string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Op, e.Service, e.Message)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// NewLaunchError creates a new LaunchError.
func NewLaunchError(op, service, message string, err error) *LaunchError {
	return &LaunchError{
		Service: service,
		Op:      op,
		Message: message,
		Err:     err,
	}
}
