package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunAllJobs(t *testing.T) {
	sch := New(&Config{MaxWorkers: 3}, nil)

	results := make([]int, 20)
	err := sch.Run(context.Background(), len(results), func(ctx context.Context, i int) error {
		results[i] = i * i
		return nil
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for i, v := range results {
		if v != i*i {
			t.Errorf("results[%d] = %d, want %d", i, v, i*i)
		}
	}

	stats := sch.GetStats()
	if stats.Completed != 20 || stats.ActiveWorkers != 0 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestRunRespectsLimit(t *testing.T) {
	const limit = 4
	sch := New(&Config{MaxWorkers: limit}, nil)

	var active, peak int32
	job := func(ctx context.Context, i int) error {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return nil
	}

	// Two concurrent batches share the same limit.
	var wg sync.WaitGroup
	for b := 0; b < 2; b++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sch.Run(context.Background(), 10, job); err != nil {
				t.Errorf("Run failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if peak > limit {
		t.Errorf("Peak concurrency %d exceeded limit %d", peak, limit)
	}
	if got := sch.GetStats().Completed; got != 20 {
		t.Errorf("Expected 20 completed jobs, got %d", got)
	}
}

func TestRunReturnsFirstError(t *testing.T) {
	sch := New(&Config{MaxWorkers: 2}, nil)
	boom := errors.New("boom")

	err := sch.Run(context.Background(), 5, func(ctx context.Context, i int) error {
		if i == 2 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Errorf("Expected boom, got %v", err)
	}
	if sch.GetStats().Failed != 1 {
		t.Errorf("Expected 1 failed job, got %d", sch.GetStats().Failed)
	}
}

func TestRunRecoversPanic(t *testing.T) {
	sch := New(nil, nil)

	err := sch.Run(context.Background(), 1, func(ctx context.Context, i int) error {
		panic("bad job")
	})
	if err == nil {
		t.Fatal("Expected error from panicking job")
	}
	if sch.GetStats().ActiveWorkers != 0 {
		t.Error("Worker slot leaked after panic")
	}
}

func TestRunCancelledContext(t *testing.T) {
	sch := New(&Config{MaxWorkers: 1}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran int32
	err := sch.Run(ctx, 3, func(ctx context.Context, i int) error {
		atomic.AddInt32(&ran, 1)
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	if DefaultConfig().MaxWorkers != 4 {
		t.Errorf("Unexpected default workers: %d", DefaultConfig().MaxWorkers)
	}
	if (&Config{}).workerLimit() != 1 {
		t.Error("Zero workers should clamp to 1")
	}
}
