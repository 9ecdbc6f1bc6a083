package main

import (
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/smartexam/reval/internal/config"
	"github.com/smartexam/reval/internal/extract"
	"github.com/smartexam/reval/internal/grading"
	"github.com/smartexam/reval/internal/pipeline"
	"github.com/smartexam/reval/internal/providers"
	"github.com/smartexam/reval/internal/svcctx"
)

var (
	workerQueues      []string
	workerRecover bool
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume the pipeline queues",
	Long: `Run queue consumers until interrupted.

By default every stage runs in this process. Use --queues to split stages
across processes, e.g. OCR on machines with tesseract installed:

  reval worker --queues script-ocr
  reval worker --queues answer-key,grading

Jobs left active by a crashed worker stay active until a worker is started
with --recover. Only pass it when no other worker consumes the same queues,
otherwise their in-flight jobs are handed out a second time.

grading.min_interval_ms is reloaded when the config file changes.`,
	RunE: withServices(func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svc := svcctx.ServicesFrom(ctx)
		logger := svc.Logger
		cfg := svc.Config.Get().Resolved()

		if err := svc.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis unreachable at %s (try 'reval redis start'): %w", cfg.Redis.URL, err)
		}

		ocr, err := providers.NewOCREngineFromConfig(cfg.Extract.OCREngine, cfg.OCR)
		if err != nil {
			return err
		}
		extractor := extract.New(extract.Config{
			Storage:         svc.Storage,
			OCR:             ocr,
			MinContentChars: cfg.Extract.MinContentChars,
			RenderDPI:       float64(cfg.Extract.RenderDPI),
			Logger:          logger,
		})

		// The grading backend needs credentials; build it only when the
		// grading stage runs here.
		var grader pipeline.Grader
		if len(workerQueues) == 0 || slices.Contains(workerQueues, pipeline.QueueGrading) {
			backend, err := providers.NewVisionModelFromConfig(ctx, cfg.Grading)
			if err != nil {
				return err
			}
			gate := newGradingGate(svc, cfg)
			svc.Config.OnChange(func(next *config.Config) {
				interval := time.Duration(next.Grading.MinIntervalMS) * time.Millisecond
				gate.SetInterval(interval)
				logger.Info("grading interval updated", "interval", interval)
			})
			svc.Config.WatchConfig(logger)

			grader = grading.New(grading.Config{
				Backend:     backend,
				Gate:        gate,
				Models:      cfg.Grading.Models,
				Temperature: float32(cfg.Grading.Temperature),
				BaseDelay:   time.Duration(cfg.Grading.BaseDelayMS) * time.Millisecond,
				MaxAttempts: cfg.Grading.MaxAttempts,
				Logger:      logger,
			})
		}

		reg, err := pipeline.NewStageRegistry(pipeline.StageDeps{
			Requests:  svc.Store,
			Keys:      svc.Store,
			Extractor: extractor,
			Grader:    grader,
			Queue:     svc.Queue,
			Logger:    logger,
		})
		if err != nil {
			return err
		}

		runner := pipeline.NewRunner(pipeline.RunnerConfig{
			Queue:    svc.Queue,
			Registry: reg,
			Concurrency: map[string]int{
				pipeline.QueueAnswerKey: cfg.Workers.KeyConcurrency,
				pipeline.QueueScriptOCR: cfg.Workers.OCRConcurrency,
				pipeline.QueueGrading:   cfg.Workers.GradingConcurrency,
			},
			BlockTimeout: time.Duration(cfg.Workers.BlockSeconds) * time.Second,
			Recover:      workerRecover,
			Logger:       logger,
		})
		return runner.Run(ctx, workerQueues...)
	}),
}

// intervalGate is a grading gate whose spacing can change at runtime.
type intervalGate interface {
	providers.Limiter
	SetInterval(time.Duration)
}

func newGradingGate(svc *svcctx.Services, cfg *config.Config) intervalGate {
	interval := time.Duration(cfg.Grading.MinIntervalMS) * time.Millisecond
	if cfg.Grading.SharedGate {
		return providers.NewRedisGate(svc.Redis, cfg.Redis.Prefix+":gate:grading", interval)
	}
	return providers.NewGate(interval)
}

func init() {
	workerCmd.Flags().StringSliceVar(&workerQueues, "queues", nil,
		"queues to consume: answer-key, script-ocr, grading (default: all)")
	workerCmd.Flags().BoolVar(&workerRecover, "recover", false,
		"requeue jobs left active by a crashed worker before consuming")

	rootCmd.AddCommand(workerCmd)
}
