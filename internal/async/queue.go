package async

import (
	"context"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/graderai/worksheets/internal/pipeline"
)

// Job is one queued OCR run for an upload.
type Job struct {
	UploadID    uuid.UUID
	SubmittedAt time.Time
	TraceID     string
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}

// OCRQueue runs queued OCR jobs on a bounded worker pool.
type OCRQueue struct {
	pipe    *pipeline.OCRPipeline
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*OCRQueue)

func WithWorkers(n int) Option {
	return func(q *OCRQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *OCRQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(q *OCRQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewOCRQueue(pipe *pipeline.OCRPipeline, logger *slog.Logger, opts ...Option) *OCRQueue {
	q := &OCRQueue{
		pipe:    pipe,
		logger:  logger,
		workers: 4,
		timeout: 3 * time.Minute,
		ch:      make(chan Job, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *OCRQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("ocr worker started", "worker_id", workerID)

				for job := range q.ch {
					ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
					_, err := q.pipe.Run(ctx, job.UploadID)
					cancel()

					if err != nil {
						q.logger.Error("ocr run failed", "worker_id", workerID, "upload_id", job.UploadID, "error", err)
					} else {
						q.logger.Info("ocr run complete", "worker_id", workerID, "upload_id", job.UploadID)
					}
				}

				q.logger.Info("ocr worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *OCRQueue) Enqueue(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "upload_id", job.UploadID)
		return nil
	}
	select {
	case q.ch <- job:
		q.logger.Info("queued upload for ocr", "upload_id", job.UploadID)
	default:
		q.logger.Warn("queue full, applying backpressure", "upload_id", job.UploadID)
		q.ch <- job
	}
	return nil
}

func (q *OCRQueue) Shutdown(ctx context.Context) {
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
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
