package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fentz26/priora/internal/logging"
	"golang.org/x/sync/errgroup"
)

// Job processes item i of a batch.
type Job func(ctx context.Context, i int) error

// Scheduler bounds the number of concurrently running jobs. One Scheduler is
// shared by every caller, so the limit holds across concurrent batches.
type Scheduler struct {
	config *Config
	slots  chan struct{}
	logger *slog.Logger

	mu            sync.Mutex
	activeWorkers int
	completed     int
	failed        int
}

// New creates a new scheduler.
func New(cfg *Config, logger *slog.Logger) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Scheduler{
		config: cfg,
		slots:  make(chan struct{}, cfg.workerLimit()),
		logger: logging.WithComponent(logger, "scheduler"),
	}
}

// Run executes job for every index in [0, n) and waits for all of them. The
// first error cancels the remaining jobs and is returned.
func (sch *Scheduler) Run(ctx context.Context, n int, job Job) error {
	if n <= 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)

dispatch:
	for i := 0; i < n; i++ {
		select {
		case sch.slots <- struct{}{}:
		case <-gctx.Done():
			break dispatch
		}

		sch.mu.Lock()
		sch.activeWorkers++
		sch.mu.Unlock()

		i := i
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("job %d panicked: %v", i, r)
				}
				sch.release(err)
			}()
			return job(gctx, i)
		})
	}

	if err := g.Wait(); err != nil {
		sch.logger.Warn("batch failed", "jobs", n, "error", err)
		return err
	}
	return ctx.Err()
}

func (sch *Scheduler) release(err error) {
	<-sch.slots

	sch.mu.Lock()
	defer sch.mu.Unlock()
	sch.activeWorkers--
	if err != nil {
		sch.failed++
	} else {
		sch.completed++
	}
}

// Stats is a snapshot of scheduler activity.
type Stats struct {
	ActiveWorkers int `json:"active_workers"`
	MaxWorkers    int `json:"max_workers"`
	Completed     int `json:"completed"`
	Failed        int `json:"failed"`
}

// GetStats returns current scheduler statistics.
func (sch *Scheduler) GetStats() Stats {
	sch.mu.Lock()
	defer sch.mu.Unlock()

	return Stats{
		ActiveWorkers: sch.activeWorkers,
		MaxWorkers:    cap(sch.slots),
		Completed:     sch.completed,
		Failed:        sch.failed,
	}
}
