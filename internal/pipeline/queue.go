package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Handler processes one task by id
type Handler interface {
	Process(ctx context.Context, id string)
}

// Queue is a bounded worker pool feeding task ids to a Handler. Each task
// runs in its own worker with its own deadline.
type Queue struct {
	handler Handler
	logger  zerolog.Logger
	workers int
	timeout time.Duration

	ch   chan string
	wg   sync.WaitGroup
	once sync.Once

	// base is canceled when Shutdown gives up waiting
	base   context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// QueueOption configures a Queue
type QueueOption func(*Queue)

// WithWorkers sets the number of concurrent workers
func WithWorkers(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithQueueSize sets how many tasks may wait for a worker
func WithQueueSize(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan string, n)
		}
	}
}

// WithProcessTimeout bounds the processing of a single task
func WithProcessTimeout(d time.Duration) QueueOption {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithQueueLogger sets the queue logger
func WithQueueLogger(l zerolog.Logger) QueueOption {
	return func(q *Queue) { q.logger = l }
}

// NewQueue creates a queue and starts its workers
func NewQueue(h Handler, opts ...QueueOption) *Queue {
	q := &Queue{
		handler: h,
		logger:  zerolog.Nop(),
		workers: 4,
		timeout: 10 * time.Minute,
		ch:      make(chan string, 64),
	}
	for _, o := range opts {
		o(q)
	}
	q.base, q.cancel = context.WithCancel(context.Background())
	q.start()
	return q
}

func (q *Queue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug().Int("worker_id", workerID).Msg("queue.worker.started")

				for id := range q.ch {
					ctx, cancel := context.WithTimeout(q.base, q.timeout)
					q.handler.Process(ctx, id)
					cancel()
				}

				q.logger.Debug().Int("worker_id", workerID).Msg("queue.worker.stopped")
			}(i + 1)
		}
	})
}

// Enqueue schedules a task without blocking
func (q *Queue) Enqueue(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn().Str("task_id", id).Msg("queue.closed")
		return ErrQueueClosed
	}
	select {
	case q.ch <- id:
		q.logger.Debug().Str("task_id", id).Int("depth", len(q.ch)).Msg("queue.enqueued")
		return nil
	default:
		q.logger.Warn().Str("task_id", id).Int("capacity", cap(q.ch)).Msg("queue.full")
		return ErrQueueFull
	}
}

// Shutdown stops accepting work and waits for queued tasks to drain. If ctx
// ends first, in-flight tasks are canceled and ctx.Err() is returned.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.cancel()
		q.logger.Warn().Msg("queue.shutdown.interrupted")
		<-done
		return ctx.Err()
	case <-done:
		q.cancel()
		q.logger.Info().Msg("queue.shutdown.drained")
		return nil
	}
}
