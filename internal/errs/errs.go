// Package errs defines the error taxonomy shared by the engine and its
// collaborators.
//
// Three kinds are distinguished:
//   - ErrValidation: malformed or missing input; surfaced, never retried.
//   - ErrDependencyUnavailable: the embedding service, the classifier or the
//     store could not be reached; callers may retry or degrade.
//   - ErrNotFound: an expected, normal "nothing matched" outcome.
//
// Constructors wrap the sentinels with %w so errors.Is works across layers.
package errs

import (
	"errors"
	"fmt"
)

// Re-exported so callers need a single import for error handling.
var (
	Is = errors.Is
	As = errors.As
)

var (
	ErrValidation            = errors.New("validation failed")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	ErrNotFound              = errors.New("not found")
)

// Validation returns an ErrValidation carrying a formatted message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Unavailable marks err as a failure of the named dependency.
func Unavailable(dependency string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrDependencyUnavailable, dependency)
	}
	return fmt.Errorf("%w: %s: %w", ErrDependencyUnavailable, dependency, err)
}

// NotFound returns an ErrNotFound for the given kind of resource.
func NotFound(what, id string) error {
	return fmt.Errorf("%w: %s %q", ErrNotFound, what, id)
}

// IsRetryable reports whether err is a transient dependency failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrDependencyUnavailable)
}
