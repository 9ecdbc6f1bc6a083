// Package grading asks a vision model to mark a student's script against an
// answer key and returns a validated structured result.
package grading

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/smartexam/reval/internal/providers"
	"github.com/smartexam/reval/internal/types"
)

// DefaultModels is the fallback order: attempt n uses models[n%len(models)].
var DefaultModels = []string{"gemini-2.5-flash-lite", "gemini-1.5-flash", "gemini-1.5-pro"}

const (
	DefaultBaseDelay   = 5 * time.Second
	DefaultMaxAttempts = 5
	DefaultTemperature = 0.3
)

// Config configures a Client.
type Config struct {
	Backend     providers.VisionModel
	Gate        providers.Limiter // spacing applied before every attempt
	Models      []string
	Temperature float32
	BaseDelay   time.Duration // wait after attempt n is BaseDelay*(n+1)
	MaxAttempts int

	// Timer drives retry waits; nil uses real time.
	Timer  retry.Timer
	Logger *slog.Logger
}

// Client grades scripts with retry and model fallback.
type Client struct {
	backend     providers.VisionModel
	gate        providers.Limiter
	models      []string
	temperature float32
	baseDelay   time.Duration
	maxAttempts int
	timer       retry.Timer
	logger      *slog.Logger
}

// New creates a grading client.
func New(cfg Config) *Client {
	if len(cfg.Models) == 0 {
		cfg.Models = DefaultModels
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Gate == nil {
		cfg.Gate = providers.NewGate(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		backend:     cfg.Backend,
		gate:        cfg.Gate,
		models:      append([]string(nil), cfg.Models...),
		temperature: cfg.Temperature,
		baseDelay:   cfg.BaseDelay,
		maxAttempts: cfg.MaxAttempts,
		timer:       cfg.Timer,
		logger:      cfg.Logger,
	}
}

// Grade marks the script page images against keyText.
func (c *Client) Grade(ctx context.Context, keyText, subjectName string, images []providers.Image) (*types.AIResult, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: no script pages to grade", types.ErrInsufficientContent)
	}
	return c.run(ctx, &providers.GenerateRequest{
		System: buildSystemPrompt(subjectName),
		Prompt: buildImagePrompt(keyText, subjectName),
		Images: images,
	})
}

// GradeText marks an already-OCRed script against keyText.
func (c *Client) GradeText(ctx context.Context, keyText, subjectName, scriptText string) (*types.AIResult, error) {
	return c.run(ctx, &providers.GenerateRequest{
		System: buildSystemPrompt(subjectName),
		Prompt: buildTextPrompt(keyText, subjectName, scriptText),
	})
}

// ModelForAttempt returns the model used for 0-based attempt n.
func (c *Client) ModelForAttempt(n int) string {
	return c.models[n%len(c.models)]
}

func (c *Client) run(ctx context.Context, base *providers.GenerateRequest) (*types.AIResult, error) {
	attempt := 0
	var model string

	call := func() (string, error) {
		model = c.ModelForAttempt(attempt)
		attempt++

		if err := c.gate.Wait(ctx); err != nil {
			return "", err
		}

		req := *base
		req.Model = model
		req.Temperature = c.temperature
		req.JSON = true

		c.logger.Debug("grading attempt", "model", model, "attempt", attempt, "images", len(req.Images))
		return c.backend.Generate(ctx, &req)
	}

	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(uint(c.maxAttempts)),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			// n is 1 before the first retry.
			return c.baseDelay * time.Duration(n)
		}),
		retry.RetryIf(providers.IsRetryable),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("model unavailable, retrying with fallback model",
				"model", model, "attempt", n+1, "next_model", c.ModelForAttempt(int(n)+1), "error", err)
		}),
	}
	if c.timer != nil {
		opts = append(opts, retry.WithTimer(c.timer))
	}

	raw, err := retry.DoWithData(call, opts...)
	if err != nil {
		if providers.IsRetryable(err) {
			return nil, fmt.Errorf("%w: %d attempts, last model %s: %w", types.ErrAIServiceUnavailable, attempt, model, err)
		}
		return nil, fmt.Errorf("grading with %s: %w", model, err)
	}

	result, err := ParseResult(raw)
	if err != nil {
		c.logger.Warn("model returned unusable output", "model", model, "error", err)
		return nil, err
	}
	result.Model = model
	c.logger.Info("script graded", "model", model, "attempts", attempt, "score", result.Score)
	return result, nil
}
