// Package retry runs operations against remote collaborators with
// exponential backoff and jitter.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/fentz26/priora/internal/errs"
)

// Config holds retry configuration.
type Config struct {
	MaxAttempts     int              `mapstructure:"max_attempts" yaml:"max_attempts"`
	InitialDelay    time.Duration    `mapstructure:"initial_delay" yaml:"initial_delay"`
	MaxDelay        time.Duration    `mapstructure:"max_delay" yaml:"max_delay"`
	Multiplier      float64          `mapstructure:"multiplier" yaml:"multiplier"`
	RandomizeFactor float64          `mapstructure:"randomize_factor" yaml:"randomize_factor"`
	RetryIf         func(error) bool `mapstructure:"-" yaml:"-"`
}

// DefaultConfig returns the retry policy used for the embedding service and
// the classifier.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:     3,
		InitialDelay:    100 * time.Millisecond,
		MaxDelay:        2 * time.Second,
		Multiplier:      2.0,
		RandomizeFactor: 0.1,
		RetryIf:         errs.IsRetryable,
	}
}

// Operation is a retryable unit of work.
type Operation func(ctx context.Context) error

// Retrier executes operations with retries.
type Retrier struct {
	config *Config
}

// New creates a retrier. A nil config means DefaultConfig.
func New(config *Config) *Retrier {
	if config == nil {
		config = DefaultConfig()
	}
	c := *config
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.Multiplier < 1 {
		c.Multiplier = 1
	}
	if c.RandomizeFactor < 0 {
		c.RandomizeFactor = 0
	} else if c.RandomizeFactor > 1 {
		c.RandomizeFactor = 1
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = c.InitialDelay
	}
	if c.RetryIf == nil {
		c.RetryIf = errs.IsRetryable
	}
	return &Retrier{config: &c}
}

// Do runs op until it succeeds, returns a non-retryable error, or the
// attempts are exhausted. The last error is returned.
func (r *Retrier) Do(ctx context.Context, op Operation) error {
	var lastErr error
	delay := r.config.InitialDelay

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return fmt.Errorf("context cancelled: %w", err)
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !r.config.RetryIf(err) || attempt == r.config.MaxAttempts {
			break
		}

		select {
		case <-time.After(r.jitter(delay)):
			delay = r.next(delay)
		case <-ctx.Done():
			return lastErr
		}
	}
	return lastErr
}

func (r *Retrier) jitter(delay time.Duration) time.Duration {
	if r.config.RandomizeFactor == 0 || delay <= 0 {
		return delay
	}
	delta := float64(delay) * r.config.RandomizeFactor
	return time.Duration(float64(delay) - delta + rand.Float64()*2*delta)
}

func (r *Retrier) next(delay time.Duration) time.Duration {
	n := time.Duration(float64(delay) * r.config.Multiplier)
	if n > r.config.MaxDelay {
		return r.config.MaxDelay
	}
	return n
}
