package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// Queue names.
const (
	QueueAnswerKey = "answer-key"
	QueueScriptOCR = "script-ocr"
	QueueGrading   = "grading"
)

// Queues lists every pipeline queue in stage order.
var Queues = []string{QueueAnswerKey, QueueScriptOCR, QueueGrading}

// Job names.
const (
	JobProcessKey   = "process-key"
	JobProcessOCR   = "process-ocr"
	JobGradeRequest = "grade-request"
)

// ErrNoPages means a script OCR job was requested without any page.
var ErrNoPages = errors.New("script has no pages")

// KeyJob asks for an answer key to be extracted.
type KeyJob struct {
	KeyID   int64  `json:"key_id"`
	FileRef string `json:"file_ref"`
}

// Validate checks required fields.
func (p KeyJob) Validate() error {
	if p.KeyID <= 0 {
		return fmt.Errorf("key job: invalid key id %d", p.KeyID)
	}
	if strings.TrimSpace(p.FileRef) == "" {
		return fmt.Errorf("key job %d: file ref is required", p.KeyID)
	}
	return nil
}

// ScriptJob asks for a request's script pages to be OCRed.
type ScriptJob struct {
	RequestID int64    `json:"request_id"`
	FileRefs  []string `json:"file_refs"`
}

// Validate checks required fields.
func (p ScriptJob) Validate() error {
	if p.RequestID <= 0 {
		return fmt.Errorf("script job: invalid request id %d", p.RequestID)
	}
	if len(p.FileRefs) == 0 {
		return fmt.Errorf("script job %d: %w", p.RequestID, ErrNoPages)
	}
	for i, ref := range p.FileRefs {
		if strings.TrimSpace(ref) == "" {
			return fmt.Errorf("script job %d: page %d has an empty file ref", p.RequestID, i+1)
		}
	}
	return nil
}

// GradeJob asks for a request to be graded.
type GradeJob struct {
	RequestID int64 `json:"request_id"`
}

// Validate checks required fields.
func (p GradeJob) Validate() error {
	if p.RequestID <= 0 {
		return fmt.Errorf("grade job: invalid request id %d", p.RequestID)
	}
	return nil
}

// GradeJobID is the deterministic id of a request's grading job. At most
// one unfinished grading job exists per request.
func GradeJobID(requestID int64) string {
	return fmt.Sprintf("grade:%d", requestID)
}

// KeyJobID is the deterministic id of an answer key's extraction job.
func KeyJobID(keyID int64) string {
	return fmt.Sprintf("key:%d", keyID)
}
