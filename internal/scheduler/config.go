// Package scheduler runs batches of independent jobs on a bounded worker pool.
package scheduler

// Config defines the scheduler configuration.
type Config struct {
	// MaxWorkers is the maximum number of jobs running at once across all batches.
	MaxWorkers int `mapstructure:"workers" yaml:"workers"`
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{MaxWorkers: 4}
}

// workerLimit returns the effective concurrency limit.
func (c *Config) workerLimit() int {
	if c == nil || c.MaxWorkers < 1 {
		return 1
	}
	return c.MaxWorkers
}
