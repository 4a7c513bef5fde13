package async

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ProcessorQueue feeds jobs to a fixed set of workers. The default of one worker
// gives strict one-at-a-time processing in arrival order.
type ProcessorQueue struct {
	handle  Handler
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	// stopCtx is cancelled when a Shutdown deadline passes, aborting in-flight jobs.
	stopCtx context.Context
	stop    context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}
func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewProcessorQueue(handle Handler, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		handle:  handle,
		logger:  logger,
		workers: 1,
		timeout: 3 * time.Minute,
		ch:      make(chan Job, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.stopCtx, q.stop = context.WithCancel(context.Background())
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("queue.worker.started", "worker_id", workerID)

				for job := range q.ch {
					q.run(workerID, job)
				}

				q.logger.Debug("queue.worker.stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *ProcessorQueue) run(workerID int, job Job) {
	if q.stopCtx.Err() != nil {
		// left in place; the next start's initial scan picks it up
		q.logger.Info("queue.job.skipped", "worker_id", workerID, "path", job.Path)
		return
	}
	ctx, cancel := context.WithTimeout(q.stopCtx, q.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("queue.job.panic", "worker_id", workerID, "path", job.Path, "panic", r)
		}
	}()
	start := time.Now()
	q.handle(ctx, job)
	q.logger.Debug("queue.job.done",
		"worker_id", workerID,
		"path", job.Path,
		"waited_ms", start.Sub(job.SubmittedAt).Milliseconds(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
}

// Enqueue blocks while the buffer is full (backpressure) until ctx is done.
func (q *ProcessorQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("queue.enqueue.closed", "path", job.Path)
		return ErrClosed
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	select {
	case q.ch <- job:
		q.logger.Debug("queue.enqueue.ok", "path", job.Path, "depth", len(q.ch))
		return nil
	default:
	}
	q.logger.Warn("queue.enqueue.full", "path", job.Path)
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len is the number of jobs waiting (not counting the one in flight).
func (q *ProcessorQueue) Len() int { return len(q.ch) }

// Shutdown stops intake and waits for queued jobs to drain. If ctx ends first,
// queued jobs are skipped and the in-flight job sees its context cancelled;
// Shutdown still returns only after that job has returned.
func (q *ProcessorQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		// cancel in-flight work, then wait for it to unwind so no job is left half done
		q.stop()
		q.logger.Warn("queue.shutdown.interrupted", "remaining", len(q.ch))
		<-done
	case <-done:
		q.stop()
		q.logger.Info("queue.shutdown.drained")
	}
}
