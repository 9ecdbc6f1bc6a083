package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/smartexam/reval/internal/queue"
	"github.com/smartexam/reval/internal/store"
	"github.com/smartexam/reval/internal/types"
)

// ScriptOCRWorker turns a request's script pages into text and queues the
// request for grading.
type ScriptOCRWorker struct {
	requests  RequestStore
	extractor Extractor
	queue     Enqueuer
	logger    *slog.Logger
}

// NewScriptOCRWorker creates the script-ocr stage.
func NewScriptOCRWorker(requests RequestStore, extractor Extractor, q Enqueuer, logger *slog.Logger) *ScriptOCRWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScriptOCRWorker{requests: requests, extractor: extractor, queue: q, logger: logger}
}

func (w *ScriptOCRWorker) Name() string           { return QueueScriptOCR }
func (w *ScriptOCRWorker) Dependencies() []string { return nil }
func (w *ScriptOCRWorker) Description() string    { return "OCR script pages" }

// Handle decodes a ScriptJob and processes it.
func (w *ScriptOCRWorker) Handle(ctx context.Context, job *queue.Job) error {
	var p ScriptJob
	if err := job.Decode(&p); err != nil {
		return err
	}
	return w.Process(ctx, p)
}

// Process moves the request to PROCESSING, OCRs the pages, stores the text
// and enqueues the grading job.
func (w *ScriptOCRWorker) Process(ctx context.Context, p ScriptJob) error {
	logger := w.logger.With("request_id", p.RequestID, "pages", len(p.FileRefs))

	rc, err := w.requests.GetRequestContext(ctx, p.RequestID)
	if err != nil {
		return err
	}

	version := rc.Version
	if rc.Status != types.StatusProcessing {
		processing := types.StatusProcessing
		r, err := w.requests.UpdateRequest(ctx, p.RequestID, store.RequestUpdate{
			Status:          &processing,
			ClearError:      true,
			ExpectedVersion: rc.Version,
		})
		if err != nil {
			return fmt.Errorf("start ocr of request %d: %w", p.RequestID, err)
		}
		version = r.Version
	}

	text, err := w.extractor.ExtractPages(ctx, p.FileRefs)
	if err != nil {
		return failRequest(ctx, w.requests, logger, p.RequestID, err)
	}

	if _, err := w.requests.UpdateRequest(ctx, p.RequestID, store.RequestUpdate{
		ExtractedText:   &text,
		ExpectedVersion: version,
	}); err != nil {
		if errors.Is(err, types.ErrConcurrentModification) {
			// Pages were re-uploaded meanwhile; the job queued with them wins.
			logger.Warn("request changed during ocr, discarding text", "error", err)
			return nil
		}
		return failRequest(ctx, w.requests, logger, p.RequestID, err)
	}

	job, created, err := w.queue.Enqueue(ctx, QueueGrading, JobGradeRequest,
		GradeJob{RequestID: p.RequestID}, queue.WithJobID(GradeJobID(p.RequestID)))
	if err != nil {
		return failRequest(ctx, w.requests, logger, p.RequestID, fmt.Errorf("enqueue grading: %w", err))
	}
	if !created {
		logger.Info("grading job already queued", "job_id", job.ID, "state", job.State)
	}

	logger.Info("script ocr complete", "chars", len(text), "grading_job", job.ID)
	return nil
}
