package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/smartexam/reval/internal/queue"
)

// StageDeps are the collaborators shared by the built-in stages.
type StageDeps struct {
	Requests  RequestStore
	Keys      KeyStore
	Extractor Extractor
	Grader    Grader
	Queue     Enqueuer
	Logger    *slog.Logger
}

// NewStageRegistry registers the answer-key, script-ocr and grading stages.
func NewStageRegistry(d StageDeps) (*Registry, error) {
	reg := NewRegistry()
	for _, s := range []Stage{
		NewKeyWorker(d.Keys, d.Extractor, d.Logger),
		NewScriptOCRWorker(d.Requests, d.Extractor, d.Queue, d.Logger),
		NewGradingWorker(d.Requests, d.Keys, d.Extractor, d.Grader, d.Logger),
	} {
		if err := reg.Register(s); err != nil {
			return nil, err
		}
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	Queue        *queue.Client
	Registry     *Registry
	Concurrency  map[string]int // per stage name; missing means 1
	BlockTimeout time.Duration
	// Recover requeues every active job of the selected queues at start.
	// Only safe when no other worker process consumes those queues.
	Recover bool
	Logger  *slog.Logger
}

// Runner runs queue consumers for the registered stages.
type Runner struct {
	cfg    RunnerConfig
	logger *slog.Logger
}

// NewRunner creates a runner.
func NewRunner(cfg RunnerConfig) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{cfg: cfg, logger: logger}
}

// Workers builds one queue worker per selected stage. No names selects
// every registered stage.
func (r *Runner) Workers(names ...string) ([]*queue.Worker, error) {
	stages, err := r.cfg.Registry.Select(names...)
	if err != nil {
		return nil, err
	}
	workers := make([]*queue.Worker, 0, len(stages))
	for _, s := range stages {
		workers = append(workers, r.cfg.Queue.NewWorker(queue.WorkerConfig{
			Queue:        s.Name(),
			Concurrency:  r.cfg.Concurrency[s.Name()],
			BlockTimeout: r.cfg.BlockTimeout,
			Logger:       r.logger,
		}, s.Handle))
	}
	return workers, nil
}

// Run consumes the selected queues until ctx is cancelled. With Recover set
// it first requeues jobs a crashed process left active.
func (r *Runner) Run(ctx context.Context, names ...string) error {
	workers, err := r.Workers(names...)
	if err != nil {
		return err
	}

	if r.cfg.Recover {
		for _, w := range workers {
			n, err := r.cfg.Queue.Recover(ctx, w.Queue())
			if err != nil {
				return err
			}
			if n > 0 {
				r.logger.Warn("requeued interrupted jobs", "queue", w.Queue(), "count", n)
			}
		}
	}

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *queue.Worker) {
			defer wg.Done()
			w.Run(ctx)
		}(w)
	}
	r.logger.Info("pipeline workers running", "queues", len(workers))
	wg.Wait()
	return nil
}
