package config

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/fentz26/priora/internal/store"
)

// ValidationError represents a single validation failure.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidDrivers returns the supported store drivers.
func ValidDrivers() []string {
	return []string{store.DriverSQLite, store.DriverPostgres, store.DriverMemory}
}

// ValidLogLevels returns the accepted log levels.
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidLogFormats returns the accepted log formats.
func ValidLogFormats() []string {
	return []string{"text", "json"}
}

// Validate checks c and returns every problem found.
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError
	add := func(field string, value any, msg string) {
		errors = append(errors, ValidationError{Field: field, Value: value, Message: msg})
	}

	if c.Server.Listen == "" {
		add("server.listen", c.Server.Listen, "must not be empty")
	}
	if c.Server.ReadTimeout < 0 {
		add("server.read_timeout", c.Server.ReadTimeout, "must not be negative")
	}
	if c.Server.WriteTimeout < 0 {
		add("server.write_timeout", c.Server.WriteTimeout, "must not be negative")
	}

	if !slices.Contains(ValidDrivers(), c.Store.Driver) {
		add("store.driver", c.Store.Driver, "must be one of "+strings.Join(ValidDrivers(), ", "))
	}
	if c.Store.Driver != store.DriverMemory && c.Store.DSN == "" {
		add("store.dsn", c.Store.DSN, "must not be empty")
	}

	if c.Embedding.Dimensions < 0 {
		add("embedding.dimensions", c.Embedding.Dimensions, "must not be negative")
	}
	if c.Embedding.URL != "" && c.Embedding.Timeout <= 0 {
		add("embedding.timeout", c.Embedding.Timeout, "must be positive")
	}

	if c.Classifier.ConfidenceThreshold < 0 || c.Classifier.ConfidenceThreshold > 100 {
		add("classifier.confidence_threshold", c.Classifier.ConfidenceThreshold, "must be between 0 and 100")
	}
	if c.Classifier.Fallback < 1 || c.Classifier.Fallback > 5 {
		add("classifier.fallback", c.Classifier.Fallback, "must be between 1 and 5")
	}
	if c.Classifier.URL != "" && c.Classifier.Timeout <= 0 {
		add("classifier.timeout", c.Classifier.Timeout, "must be positive")
	}

	if c.Cache.TTL < 0 {
		add("cache.ttl", c.Cache.TTL, "must not be negative")
	}

	if c.Estimator.Threshold < -1 || c.Estimator.Threshold > 1 {
		add("estimator.threshold", c.Estimator.Threshold, "must be between -1 and 1")
	}
	if c.Estimator.TopK < 1 {
		add("estimator.top_k", c.Estimator.TopK, "must be at least 1")
	}
	if c.Estimator.Workers < 1 {
		add("estimator.workers", c.Estimator.Workers, "must be at least 1")
	}

	w := c.Scoring
	if w.Urgency < 0 || w.Impact < 0 || w.Difficulty < 0 {
		add("scoring", w, "weights must not be negative")
	}
	if sum := w.Urgency + w.Impact + w.Difficulty; math.Abs(sum-1) > 1e-9 {
		add("scoring", sum, "weights must sum to 1")
	}

	if c.Retry.MaxAttempts < 1 {
		add("retry.max_attempts", c.Retry.MaxAttempts, "must be at least 1")
	}
	if c.Retry.MaxDelay > 0 && c.Retry.InitialDelay > c.Retry.MaxDelay {
		add("retry.initial_delay", c.Retry.InitialDelay, "must not exceed retry.max_delay")
	}

	if !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		add("logging.level", c.Logging.Level, "must be one of "+strings.Join(ValidLogLevels(), ", "))
	}
	if !slices.Contains(ValidLogFormats(), strings.ToLower(c.Logging.Format)) {
		add("logging.format", c.Logging.Format, "must be one of "+strings.Join(ValidLogFormats(), ", "))
	}

	return errors
}
