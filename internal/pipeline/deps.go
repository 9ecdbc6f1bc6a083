package pipeline

import (
	"context"

	"github.com/smartexam/reval/internal/extract"
	"github.com/smartexam/reval/internal/grading"
	"github.com/smartexam/reval/internal/providers"
	"github.com/smartexam/reval/internal/queue"
	"github.com/smartexam/reval/internal/store"
	"github.com/smartexam/reval/internal/types"
)

// RequestStore is the request persistence the workers need.
type RequestStore interface {
	GetRequestContext(ctx context.Context, id int64) (*types.RequestContext, error)
	UpdateRequest(ctx context.Context, id int64, u store.RequestUpdate) (*types.RevaluationRequest, error)
	AppendScriptLocations(ctx context.Context, id int64, refs []string) (*types.RevaluationRequest, error)
}

// KeyStore is the answer-key persistence the workers need.
type KeyStore interface {
	GetAnswerKey(ctx context.Context, id int64) (*types.AnswerKey, error)
	UpdateAnswerKey(ctx context.Context, id int64, u store.KeyUpdate) (*types.AnswerKey, error)
	LatestCompletedKey(ctx context.Context, subjectCode string) (*types.AnswerKey, error)
}

// Extractor turns stored documents into text or page images.
type Extractor interface {
	ExtractText(ctx context.Context, ref string, kind extract.Kind) (string, error)
	ExtractPages(ctx context.Context, refs []string) (string, error)
	PageImages(ctx context.Context, refs []string) ([]providers.Image, error)
}

// Grader produces an AI result for a script.
type Grader interface {
	Grade(ctx context.Context, keyText, subjectName string, images []providers.Image) (*types.AIResult, error)
	GradeText(ctx context.Context, keyText, subjectName, scriptText string) (*types.AIResult, error)
}

// Enqueuer adds jobs to a queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, queue, name string, payload queue.Payload, opts ...queue.EnqueueOption) (*queue.Job, bool, error)
}

var (
	_ RequestStore = (*store.Store)(nil)
	_ KeyStore     = (*store.Store)(nil)
	_ Extractor    = (*extract.Service)(nil)
	_ Grader       = (*grading.Client)(nil)
	_ Enqueuer     = (*queue.Client)(nil)
)
