package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fentz26/priora/internal/errs"
	"github.com/stretchr/testify/assert"
)

func fastConfig(attempts int) *Config {
	return &Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := New(fastConfig(3)).Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errs.Unavailable("embedding service", errors.New("503"))
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	calls := 0
	err := New(fastConfig(5)).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errs.Validation("bad request")
	})

	assert.True(t, errors.Is(err, errs.ErrValidation))
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := New(fastConfig(2)).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errs.Unavailable("classifier", nil)
	})

	assert.True(t, errs.IsRetryable(err))
	assert.Equal(t, 2, calls)
}

func TestDo_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := New(fastConfig(3)).Do(ctx, func(ctx context.Context) error {
		calls++
		return nil
	})

	assert.Error(t, err)
	assert.Equal(t, 0, calls)
}

func TestNew_NormalizesConfig(t *testing.T) {
	r := New(&Config{MaxAttempts: 0, Multiplier: 0.5, RandomizeFactor: 3})

	assert.Equal(t, 1, r.config.MaxAttempts)
	assert.Equal(t, 1.0, r.config.Multiplier)
	assert.Equal(t, 1.0, r.config.RandomizeFactor)
	assert.NotNil(t, r.config.RetryIf)
}
