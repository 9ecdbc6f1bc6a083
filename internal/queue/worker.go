package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Handler processes one job. A returned error marks the job failed; the
// queue does not retry it.
type Handler func(ctx context.Context, job *Job) error

// WorkerConfig configures a consumer bound to one queue.
type WorkerConfig struct {
	Queue        string
	Concurrency  int           // Goroutines reserving from the queue (default 1)
	BlockTimeout time.Duration // Reserve block time per poll (default 5s)
	ErrorBackoff time.Duration // Pause after a Redis error (default 1s)
	Logger       *slog.Logger
}

// Worker consumes jobs from one queue.
type Worker struct {
	client  *Client
	handler Handler
	cfg     WorkerConfig
	logger  *slog.Logger
}

// NewWorker creates a consumer for cfg.Queue.
func (c *Client) NewWorker(cfg WorkerConfig, handler Handler) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		client:  c,
		handler: handler,
		cfg:     cfg,
		logger:  logger.With("queue", cfg.Queue),
	}
}

// Queue returns the queue name this worker consumes.
func (w *Worker) Queue() string {
	return w.cfg.Queue
}

// Run starts the consumer goroutines and blocks until ctx is cancelled and
// every in-flight job has finished.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("starting queue worker", "concurrency", w.cfg.Concurrency)

	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(workerNum int) {
			defer wg.Done()
			w.loop(ctx, workerNum)
		}(i)
	}
	wg.Wait()
	w.logger.Info("queue worker stopped")
}

func (w *Worker) loop(ctx context.Context, workerNum int) {
	logger := w.logger.With("worker_num", workerNum)
	logger.Debug("worker started")

	for {
		if ctx.Err() != nil {
			logger.Debug("worker stopping")
			return
		}

		// One goroutine per worker owns delayed-job promotion.
		if workerNum == 0 {
			if n, err := w.client.PromoteDelayed(ctx, w.cfg.Queue); err != nil {
				logger.Warn("promote delayed jobs failed", "error", err)
			} else if n > 0 {
				logger.Debug("promoted delayed jobs", "count", n)
			}
		}

		job, err := w.client.Reserve(ctx, w.cfg.Queue, w.cfg.BlockTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("reserve failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.cfg.ErrorBackoff):
			}
			continue
		}
		if job == nil {
			continue
		}

		w.process(ctx, logger, job)
	}
}

// ProcessNext reserves one job without blocking and handles it.
// Returns false when the queue was empty.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	job, err := w.client.Reserve(ctx, w.cfg.Queue, 0)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	return true, w.process(ctx, w.logger, job)
}

// process runs the handler and records the outcome. Book-keeping uses a
// context detached from cancellation so a shutdown mid-job still records it.
func (w *Worker) process(ctx context.Context, logger *slog.Logger, job *Job) error {
	logger = logger.With("job_id", job.ID, "job_name", job.Name, "attempt", job.Attempts)
	start := time.Now()
	logger.Info("job started")

	err := w.safeHandle(ctx, job)

	// A job cut short by shutdown stays active until a worker started with
	// recovery requeues it.
	if err != nil && ctx.Err() != nil && errors.Is(err, context.Canceled) {
		logger.Warn("job interrupted by shutdown", "duration", time.Since(start))
		return err
	}

	recordCtx := context.WithoutCancel(ctx)
	if err != nil {
		logger.Error("job failed", "error", err, "duration", time.Since(start))
		if ferr := w.client.Fail(recordCtx, job, err); ferr != nil {
			logger.Error("failed to record job failure", "error", ferr)
		}
		return err
	}

	logger.Info("job completed", "duration", time.Since(start))
	if cerr := w.client.Complete(recordCtx, job, ""); cerr != nil {
		logger.Error("failed to record job completion", "error", cerr)
		return cerr
	}
	return nil
}

func (w *Worker) safeHandle(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panic: %v", r)
		}
	}()
	return w.handler(ctx, job)
}
