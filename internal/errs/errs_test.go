package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructorsWrapSentinels(t *testing.T) {
	cause := errors.New("connection refused")

	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"validation", Validation("credits must be between %d and %d", 1, 4), ErrValidation},
		{"unavailable with cause", Unavailable("store", cause), ErrDependencyUnavailable},
		{"unavailable without cause", Unavailable("classifier", nil), ErrDependencyUnavailable},
		{"not found", NotFound("accuracy log", "user_001"), ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, Is(tt.err, tt.sentinel))
		})
	}
}

func TestUnavailableKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Unavailable("embedding service", cause)

	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "embedding service")
	assert.True(t, IsRetryable(err))
	assert.False(t, IsRetryable(Validation("bad input")))
}
