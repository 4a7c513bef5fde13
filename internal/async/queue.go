package async

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by Enqueue after Shutdown has begun.
var ErrClosed = errors.New("queue is shutting down")

// Job is one document waiting for the consumer.
type Job struct {
	Path        string
	SubmittedAt time.Time
	TraceID     string
}

// Handler processes a single job. The context carries the per-job timeout.
type Handler func(ctx context.Context, job Job)

// Queue is what a producer needs from a job queue.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
