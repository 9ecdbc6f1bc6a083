package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/smartexam/reval/internal/queue"
	"github.com/smartexam/reval/internal/store"
	"github.com/smartexam/reval/internal/types"
)

// GradingWorker grades OCRed requests against the latest answer key.
type GradingWorker struct {
	requests  RequestStore
	keys      KeyStore
	extractor Extractor
	grader    Grader
	logger    *slog.Logger
}

// NewGradingWorker creates the grading stage.
func NewGradingWorker(requests RequestStore, keys KeyStore, extractor Extractor, grader Grader, logger *slog.Logger) *GradingWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &GradingWorker{
		requests:  requests,
		keys:      keys,
		extractor: extractor,
		grader:    grader,
		logger:    logger,
	}
}

func (w *GradingWorker) Name() string { return QueueGrading }

// Dependencies lists the stages that produce the script text and key text.
func (w *GradingWorker) Dependencies() []string {
	return []string{QueueAnswerKey, QueueScriptOCR}
}

func (w *GradingWorker) Description() string { return "grade scripts with the AI model" }

// Handle decodes a GradeJob and processes it.
func (w *GradingWorker) Handle(ctx context.Context, job *queue.Job) error {
	var p GradeJob
	if err := job.Decode(&p); err != nil {
		return err
	}
	return w.Process(ctx, p)
}

// maxRegrades bounds how often one job grades again after the request
// changed under it.
const maxRegrades = 3

// Process grades one request. A subject without a completed answer key is
// skipped without touching the request. When pages are re-uploaded while
// the model is working, the stale result is dropped and the request is
// graded again from the new text within the same job, since the grading
// job id is still taken by this run.
func (w *GradingWorker) Process(ctx context.Context, p GradeJob) error {
	logger := w.logger.With("request_id", p.RequestID)

	for n := 0; ; n++ {
		err := w.gradeOnce(ctx, logger, p.RequestID)
		if !errors.Is(err, types.ErrConcurrentModification) {
			return err
		}
		if n == maxRegrades {
			return failRequest(ctx, w.requests, logger, p.RequestID,
				fmt.Errorf("request kept changing during grading: %w", err))
		}
		logger.Warn("request changed during grading, grading again", "error", err, "regrade", n+1)
	}
}

// gradeOnce runs one grading pass against the current request. It returns
// ErrConcurrentModification, without recording it, when the request changed
// before the result could be stored.
func (w *GradingWorker) gradeOnce(ctx context.Context, logger *slog.Logger, id int64) error {
	rc, err := w.requests.GetRequestContext(ctx, id)
	if err != nil {
		return err
	}
	logger = logger.With("subject", rc.SubjectCode, "version", rc.Version)

	switch {
	case rc.Status == types.StatusProcessing:
	case rc.Status.HasAIResult(), rc.Status == types.StatusRejected:
		logger.Info("request no longer awaiting grading", "status", rc.Status)
		return nil
	default:
		return fmt.Errorf("request %d in status %s cannot be graded", id, rc.Status)
	}

	if strings.TrimSpace(rc.ExtractedText) == "" {
		return failRequest(ctx, w.requests, logger, id,
			fmt.Errorf("%w: request %d has no extracted text", types.ErrInsufficientContent, id))
	}

	key, err := w.keys.LatestCompletedKey(ctx, rc.SubjectCode)
	if errors.Is(err, types.ErrMissingAnswerKey) {
		logger.Warn("no completed answer key for subject, skipping grading")
		return nil
	}
	if err != nil {
		return failRequest(ctx, w.requests, logger, id, err)
	}
	keyText := ""
	if key.ExtractedText != nil {
		keyText = *key.ExtractedText
	}
	logger = logger.With("key_id", key.ID)

	result, err := w.grade(ctx, logger, rc, keyText)
	if err != nil {
		return failRequest(ctx, w.requests, logger, id, err)
	}

	review := types.StatusTeacherReview
	if _, err := w.requests.UpdateRequest(ctx, id, store.RequestUpdate{
		Status:          &review,
		AIResult:        result,
		ClearError:      true,
		ExpectedVersion: rc.Version,
	}); err != nil {
		if errors.Is(err, types.ErrConcurrentModification) {
			return err
		}
		return failRequest(ctx, w.requests, logger, id, err)
	}

	logger.Info("request graded", "score", result.Score, "model", result.Model)
	return nil
}

// grade sends the page images when there are any and the OCR text otherwise.
// Pages that cannot be loaded fall back to the OCR text.
func (w *GradingWorker) grade(ctx context.Context, logger *slog.Logger, rc *types.RequestContext, keyText string) (*types.AIResult, error) {
	images, err := w.extractor.PageImages(ctx, rc.ScriptRefs)
	if err != nil {
		if isShutdown(ctx, err) {
			return nil, err
		}
		logger.Warn("page images unavailable, grading extracted text", "error", err)
		images = nil
	}
	if len(images) == 0 {
		return w.grader.GradeText(ctx, keyText, rc.SubjectName, rc.ExtractedText)
	}
	return w.grader.Grade(ctx, keyText, rc.SubjectName, images)
}
