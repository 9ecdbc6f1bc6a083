package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/smartexam/reval/internal/extract"
	"github.com/smartexam/reval/internal/queue"
	"github.com/smartexam/reval/internal/store"
	"github.com/smartexam/reval/internal/types"
)

// KeyWorker extracts the text of uploaded answer keys.
type KeyWorker struct {
	keys      KeyStore
	extractor Extractor
	logger    *slog.Logger
}

// NewKeyWorker creates the answer-key stage.
func NewKeyWorker(keys KeyStore, extractor Extractor, logger *slog.Logger) *KeyWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &KeyWorker{keys: keys, extractor: extractor, logger: logger}
}

func (w *KeyWorker) Name() string           { return QueueAnswerKey }
func (w *KeyWorker) Dependencies() []string { return nil }
func (w *KeyWorker) Description() string    { return "extract answer key text" }

// Handle decodes a KeyJob and processes it.
func (w *KeyWorker) Handle(ctx context.Context, job *queue.Job) error {
	var p KeyJob
	if err := job.Decode(&p); err != nil {
		return err
	}
	return w.Process(ctx, p)
}

// Process extracts and stores the key text. A key that is already
// completed is left alone.
func (w *KeyWorker) Process(ctx context.Context, p KeyJob) error {
	logger := w.logger.With("key_id", p.KeyID)

	key, err := w.keys.GetAnswerKey(ctx, p.KeyID)
	if err != nil {
		return err
	}
	if key.Status == types.KeyCompleted {
		logger.Info("answer key already processed")
		return nil
	}

	processing := types.KeyProcessing
	if _, err := w.keys.UpdateAnswerKey(ctx, key.ID, store.KeyUpdate{Status: &processing, ClearError: true}); err != nil {
		return err
	}

	text, err := w.extractor.ExtractText(ctx, p.FileRef, kindOf(p.FileRef))
	if err == nil {
		text = extract.CleanText(text)
		if text == "" {
			err = fmt.Errorf("%w: answer key %d has no text", types.ErrInsufficientContent, key.ID)
		}
	}
	if err != nil {
		return w.fail(ctx, logger, key.ID, err)
	}

	completed := types.KeyCompleted
	if _, err := w.keys.UpdateAnswerKey(ctx, key.ID, store.KeyUpdate{
		Status:        &completed,
		ExtractedText: &text,
		ClearError:    true,
	}); err != nil {
		return err
	}
	logger.Info("answer key processed", "chars", len(text))
	return nil
}

func (w *KeyWorker) fail(ctx context.Context, logger *slog.Logger, id int64, cause error) error {
	if isShutdown(ctx, cause) {
		return cause
	}
	msg := cause.Error()
	failed := types.KeyFailed
	if _, err := w.keys.UpdateAnswerKey(context.WithoutCancel(ctx), id, store.KeyUpdate{
		Status:       &failed,
		ErrorMessage: &msg,
	}); err != nil {
		logger.Error("failed to record answer key failure", "error", err)
	}
	return cause
}

// kindOf picks the extraction path from the file extension: PDFs try their
// text layer first, everything else is OCRed.
func kindOf(ref string) extract.Kind {
	if strings.EqualFold(path.Ext(ref), ".pdf") {
		return extract.KindDigitalPDF
	}
	return extract.KindScannedImage
}
