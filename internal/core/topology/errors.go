package topology

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// Input errors
	ErrEmptyInput = errors.New("topology is empty")

	// YAML parsing errors
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// Structure errors
	ErrNoPhases   = errors.New("topology must define at least one phase")
	ErrNoServices = errors.New("topology must define at least one service")

	// Reference errors
	ErrDuplicateService   = errors.New("duplicate service name")
	ErrDuplicateNetwork   = errors.New("duplicate network name")
	ErrUnknownService     = errors.New("unknown service reference")
	ErrUnknownNetwork     = errors.New("unknown network reference")
	ErrCrossPhaseDep      = errors.New("dependency crosses phase boundary")
	ErrCircularDependency = errors.New("circular dependency detected")

	// Shape errors
	ErrOrdinalGap       = errors.New("phase ordinals must be contiguous from 1")
	ErrSubnetOverlap    = errors.New("network subnets overlap")
	ErrInvalidSubnet    = errors.New("invalid network subnet")
	ErrInvalidThreshold = errors.New("health threshold must be in (0,1]")
	ErrInvalidProbe     = errors.New("invalid probe configuration")
	ErrUnknownKind      = errors.New("unknown service kind")
)

// Violation is a single configuration problem located by field path.
type Violation struct {
	Field   string // e.g. "services[2].depends_on[0]"
	Message string
	Err     error
}

func (v Violation) Error() string {
	if v.Field != "" {
		return fmt.Sprintf("%s: %s", v.Field, v.Message)
	}
	return v.Message
}

func (v Violation) Unwrap() error {
	return v.Err
}

// ConfigError aggregates every violation found in one validation pass so
// operators fix configuration in one go instead of replaying the tool.
type ConfigError struct {
	Violations []Violation
}

func (e *ConfigError) add(err error, field, format string, args ...any) {
	e.Violations = append(e.Violations, Violation{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	})
}

// HasViolations reports whether any violation was recorded.
func (e *ConfigError) HasViolations() bool {
	return len(e.Violations) > 0
}

func (e *ConfigError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Error())
	}
	return strings.Join(msgs, "\n")
}

// Is lets callers match the aggregate against any contained sentinel.
func (e *ConfigError) Is(target error) bool {
	for _, v := range e.Violations {
		if errors.Is(v.Err, target) {
			return true
		}
	}
	return false
}
