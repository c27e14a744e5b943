package parallel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dd0wney/cluso-waternet/pkg/logging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newPool(t *testing.T, workers, queue int, opts ...Option) *WorkerPool {
	t.Helper()
	pool, err := NewWorkerPool(workers, queue, opts...)
	if err != nil {
		t.Fatalf("NewWorkerPool: %v", err)
	}
	return pool
}

func TestWorkerPoolBasicOperations(t *testing.T) {
	pool := newPool(t, 4, 0)

	var executed atomic.Bool
	if err := pool.Submit(context.Background(), func(context.Context) { executed.Store(true) }); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	pool.Close()
	if !executed.Load() {
		t.Error("Task was not executed")
	}
	completed, panics, _ := pool.Stats()
	if completed != 1 || panics != 0 {
		t.Errorf("Stats() = %d completed, %d panics", completed, panics)
	}
}

func TestWorkerPoolConcurrentSubmissions(t *testing.T) {
	pool := newPool(t, 10, 0)

	const numTasks = 100
	var counter atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < numTasks; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := pool.Submit(context.Background(), func(context.Context) { counter.Add(1) }); err != nil {
				t.Errorf("Submit: %v", err)
			}
		}()
	}
	wg.Wait()
	pool.Close()

	if counter.Load() != numTasks {
		t.Errorf("Expected counter %d, got %d", numTasks, counter.Load())
	}
}

func TestWorkerPoolTrySubmitSaturation(t *testing.T) {
	pool := newPool(t, 1, 2)
	release := make(chan struct{})
	started := make(chan struct{})

	// occupy the single worker
	if err := pool.TrySubmit(func(context.Context) { close(started); <-release }); err != nil {
		t.Fatalf("TrySubmit: %v", err)
	}
	<-started

	for i := 0; i < 2; i++ {
		if err := pool.TrySubmit(func(context.Context) {}); err != nil {
			t.Fatalf("TrySubmit %d: %v", i, err)
		}
	}
	if pool.Len() != 2 {
		t.Errorf("Len() = %d, want 2", pool.Len())
	}
	if err := pool.TrySubmit(func(context.Context) {}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Expected ErrQueueFull, got %v", err)
	}

	close(release)
	pool.Close()
}

func TestWorkerPoolSubmitHonoursContext(t *testing.T) {
	pool := newPool(t, 1, 1)
	release := make(chan struct{})
	started := make(chan struct{})
	pool.TrySubmit(func(context.Context) { close(started); <-release })
	<-started
	pool.TrySubmit(func(context.Context) {})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := pool.Submit(ctx, func(context.Context) {}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}

	close(release)
	pool.Close()
}

func TestWorkerPoolSubmitAfterClose(t *testing.T) {
	pool := newPool(t, 2, 0)
	pool.Close()
	pool.Close()

	if err := pool.Submit(context.Background(), func(context.Context) {}); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Submit after close: %v", err)
	}
	if err := pool.TrySubmit(func(context.Context) {}); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("TrySubmit after close: %v", err)
	}
}

func TestWorkerPoolCloseRace(t *testing.T) {
	for i := 0; i < 20; i++ {
		pool := newPool(t, 4, 0)
		var wg sync.WaitGroup
		for j := 0; j < 10; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				pool.TrySubmit(func(context.Context) {})
			}()
		}
		pool.Close()
		wg.Wait()
	}
}

func TestWorkerPoolPanicRecovery(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	pool := newPool(t, 1, 0, WithLogger(logging.FromZap(zap.New(core))), WithName("rollup"))

	var ran atomic.Bool
	pool.Submit(context.Background(), func(context.Context) { panic("boom") })
	pool.Submit(context.Background(), func(context.Context) { ran.Store(true) })
	pool.Close()

	if !ran.Load() {
		t.Error("Worker did not survive panic")
	}
	_, panics, _ := pool.Stats()
	if panics != 1 {
		t.Errorf("panics = %d, want 1", panics)
	}
	if logs.FilterMessage("worker panic recovered").Len() != 1 {
		t.Error("Expected panic to be logged")
	}
}

func TestWorkerPoolAbortCancelsTasks(t *testing.T) {
	pool := newPool(t, 1, 0)
	started := make(chan struct{})
	var cancelled atomic.Bool
	pool.Submit(context.Background(), func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
	})
	<-started
	pool.Abort()

	if !cancelled.Load() {
		t.Error("Expected running task to observe cancellation")
	}
}

func TestForEach(t *testing.T) {
	pool := newPool(t, 3, 0)
	defer pool.Close()

	zones := []string{"Zone-A", "Zone-B", "Zone-C", "Zone-D", "Zone-E", "Zone-F", "Zone-G"}
	var mu sync.Mutex
	seen := make(map[string]bool)

	errs, err := ForEach(context.Background(), pool, zones, func(_ context.Context, z string) error {
		mu.Lock()
		seen[z] = true
		mu.Unlock()
		if z == "Zone-C" {
			return fmt.Errorf("rollup %s failed", z)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	if len(seen) != len(zones) {
		t.Errorf("visited %d zones, want %d", len(seen), len(zones))
	}
	for i, z := range zones {
		if (errs[i] != nil) != (z == "Zone-C") {
			t.Errorf("errs[%d] = %v", i, errs[i])
		}
	}
}

func TestForEachEmptyAndClosed(t *testing.T) {
	pool := newPool(t, 2, 0)
	errs, err := ForEach(context.Background(), pool, []int(nil), func(context.Context, int) error { return nil })
	if err != nil || len(errs) != 0 {
		t.Errorf("empty ForEach = %v, %v", errs, err)
	}

	pool.Close()
	errs, err = ForEach(context.Background(), pool, []int{1, 2}, func(context.Context, int) error { return nil })
	if !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("Expected ErrPoolClosed, got %v", err)
	}
	for _, e := range errs {
		if !errors.Is(e, ErrPoolClosed) {
			t.Errorf("item error = %v", e)
		}
	}
}
