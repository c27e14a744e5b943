package parallel

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/dd0wney/cluso-waternet/pkg/logging"
)

// Task is a unit of work. ctx is the pool's context and is cancelled on Abort.
type Task func(ctx context.Context)

// WorkerPool manages a pool of worker goroutines fed by a bounded queue
type WorkerPool struct {
	name      string
	workers   int
	taskQueue chan Task
	wg        sync.WaitGroup
	once      sync.Once
	mu        sync.RWMutex // Protects taskQueue from concurrent close during send
	closed    bool         // Protected by mu

	ctx    context.Context
	cancel context.CancelFunc
	logger logging.Logger

	completed atomic.Uint64
	panics    atomic.Uint64
	active    atomic.Int64
}

var (
	// ErrTooManyWorkers is returned when the worker count exceeds the maximum allowed.
	ErrTooManyWorkers = fmt.Errorf("worker count exceeds maximum")
	// ErrPoolClosed is returned by submissions after Close.
	ErrPoolClosed = errors.New("worker pool closed")
	// ErrQueueFull is returned by TrySubmit when the queue has no room.
	ErrQueueFull = errors.New("worker pool queue full")
)

// MaxWorkers is the maximum number of workers allowed in a pool.
const MaxWorkers = math.MaxInt / 2

// Option configures a WorkerPool
type Option func(*WorkerPool)

// WithLogger sets the logger used for recovered panics
func WithLogger(l logging.Logger) Option {
	return func(wp *WorkerPool) { wp.logger = l }
}

// WithName labels the pool in logs
func WithName(name string) Option {
	return func(wp *WorkerPool) { wp.name = name }
}

// NewWorkerPool creates a pool of workers draining a queue of the given depth.
// queue <= 0 defaults to twice the worker count.
func NewWorkerPool(workers, queue int, opts ...Option) (*WorkerPool, error) {
	if workers <= 0 {
		workers = 1
	}
	if workers > MaxWorkers {
		return nil, fmt.Errorf("%w: %d exceeds %d", ErrTooManyWorkers, workers, MaxWorkers)
	}
	if queue <= 0 {
		queue = workers * 2
	}

	ctx, cancel := context.WithCancel(context.Background())
	pool := &WorkerPool{
		name:      "pool",
		workers:   workers,
		taskQueue: make(chan Task, queue),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(pool)
	}
	pool.logger = pool.logger.With(logging.Component(pool.name))

	pool.start()
	return pool, nil
}

func (wp *WorkerPool) start() {
	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker()
	}
}

func (wp *WorkerPool) worker() {
	defer wp.wg.Done()

	for task := range wp.taskQueue {
		wp.run(task)
	}
}

// run executes one task; a panic is logged and the worker carries on
func (wp *WorkerPool) run(task Task) {
	wp.active.Add(1)
	defer func() {
		wp.active.Add(-1)
		if r := recover(); r != nil {
			wp.panics.Add(1)
			wp.logger.Error("worker panic recovered",
				logging.Any("panic", r), logging.String("stack", string(debug.Stack())))
			return
		}
		wp.completed.Add(1)
	}()
	task(wp.ctx)
}

// Submit queues a task, blocking while the queue is full until ctx is done
func (wp *WorkerPool) Submit(ctx context.Context, task Task) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if wp.closed {
		return ErrPoolClosed
	}
	select {
	case wp.taskQueue <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit queues a task without blocking
func (wp *WorkerPool) TrySubmit(task Task) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if wp.closed {
		return ErrPoolClosed
	}
	select {
	case wp.taskQueue <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Len returns the number of queued tasks not yet picked up
func (wp *WorkerPool) Len() int {
	return len(wp.taskQueue)
}

// Cap returns the queue capacity
func (wp *WorkerPool) Cap() int {
	return cap(wp.taskQueue)
}

// Workers returns the worker count
func (wp *WorkerPool) Workers() int {
	return wp.workers
}

// Stats reports completed tasks, recovered panics and tasks currently running
func (wp *WorkerPool) Stats() (completed, panics uint64, active int64) {
	return wp.completed.Load(), wp.panics.Load(), wp.active.Load()
}

// Close stops accepting tasks, drains the queue and waits for workers
func (wp *WorkerPool) Close() {
	wp.once.Do(func() {
		wp.mu.Lock()
		wp.closed = true
		close(wp.taskQueue)
		wp.mu.Unlock()
	})
	wp.wg.Wait()
	wp.cancel()
}

// Abort cancels the context handed to running and queued tasks, then closes
func (wp *WorkerPool) Abort() {
	wp.cancel()
	wp.Close()
}
