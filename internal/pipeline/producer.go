package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/smartexam/reval/internal/queue"
	"github.com/smartexam/reval/internal/types"
)

// Producer is the API the upload and review layers use to start work.
type Producer struct {
	queue    Enqueuer
	requests RequestStore
	keys     KeyStore
	logger   *slog.Logger
}

// NewProducer creates a producer.
func NewProducer(q Enqueuer, requests RequestStore, keys KeyStore, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{queue: q, requests: requests, keys: keys, logger: logger}
}

// EnqueueKeyProcessing queues extraction of an uploaded answer key. Calling
// it again while the key's job is unfinished returns the existing job.
func (p *Producer) EnqueueKeyProcessing(ctx context.Context, job KeyJob) (*queue.Job, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}
	if _, err := p.keys.GetAnswerKey(ctx, job.KeyID); err != nil {
		return nil, err
	}
	j, created, err := p.queue.Enqueue(ctx, QueueAnswerKey, JobProcessKey, job, queue.WithJobID(KeyJobID(job.KeyID)))
	if err != nil {
		return nil, err
	}
	p.logger.Info("answer key queued", "key_id", job.KeyID, "job_id", j.ID, "created", created)
	return j, nil
}

// EnqueueScriptOCR queues OCR of a request's pages. A job without pages or
// for an unknown request is rejected before anything is queued.
func (p *Producer) EnqueueScriptOCR(ctx context.Context, job ScriptJob) (*queue.Job, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}
	if _, err := p.requests.GetRequestContext(ctx, job.RequestID); err != nil {
		return nil, err
	}
	j, _, err := p.queue.Enqueue(ctx, QueueScriptOCR, JobProcessOCR, job)
	if err != nil {
		return nil, err
	}
	p.logger.Info("script ocr queued", "request_id", job.RequestID, "pages", len(job.FileRefs), "job_id", j.ID)
	return j, nil
}

// EnqueueGrading queues grading of a request. The bool is false when an
// unfinished grading job for the request already existed.
func (p *Producer) EnqueueGrading(ctx context.Context, requestID int64) (*queue.Job, bool, error) {
	rc, err := p.requests.GetRequestContext(ctx, requestID)
	if err != nil {
		return nil, false, err
	}
	if rc.Status != types.StatusProcessing {
		return nil, false, fmt.Errorf("request %d in status %s cannot be graded", requestID, rc.Status)
	}
	j, created, err := p.queue.Enqueue(ctx, QueueGrading, JobGradeRequest,
		GradeJob{RequestID: requestID}, queue.WithJobID(GradeJobID(requestID)))
	if err != nil {
		return nil, false, err
	}
	p.logger.Info("grading queued", "request_id", requestID, "job_id", j.ID, "created", created)
	return j, created, nil
}

// Reupload appends newly uploaded pages to a request and queues OCR of the
// full page list.
func (p *Producer) Reupload(ctx context.Context, requestID int64, refs []string) (*queue.Job, error) {
	if len(refs) == 0 {
		return nil, fmt.Errorf("request %d: %w", requestID, ErrNoPages)
	}
	r, err := p.requests.AppendScriptLocations(ctx, requestID, refs)
	if err != nil {
		return nil, err
	}
	return p.EnqueueScriptOCR(ctx, ScriptJob{
		RequestID: requestID,
		FileRefs:  append([]string(nil), r.ScriptLocations...),
	})
}
