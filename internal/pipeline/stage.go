// Package pipeline composes the revaluation workers: answer-key extraction,
// script OCR and AI grading, each consuming its own queue, plus the producer
// API that feeds them.
package pipeline

import (
	"context"

	"github.com/smartexam/reval/internal/queue"
)

// Stage is one step of the pipeline. Each stage consumes the queue named
// after it.
type Stage interface {
	// Identity
	Name() string           // queue name, e.g. "script-ocr"
	Dependencies() []string // stages whose output this stage reads

	Description() string

	// Handle processes one job. A returned error fails the job; the stage
	// has already recorded the failure on the affected row.
	Handle(ctx context.Context, job *queue.Job) error
}
