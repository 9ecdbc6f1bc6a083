// Package types provides the domain vocabulary shared by the pipeline packages:
// request and answer-key statuses, the AI grading result and the error taxonomy.
// It has no dependencies on other reval packages to avoid import cycles.
package types

import "fmt"

// RequestStatus is the lifecycle state of a revaluation request.
// Values are persisted verbatim.
type RequestStatus string

const (
	StatusDraft         RequestStatus = "DRAFT"
	StatusSubmitted     RequestStatus = "SUBMITTED"
	StatusProcessing    RequestStatus = "PROCESSING"
	StatusTeacherReview RequestStatus = "TEACHER_REVIEW"
	StatusPublished     RequestStatus = "PUBLISHED"
	StatusRejected      RequestStatus = "REJECTED"
	StatusAppealed      RequestStatus = "appealed"
	StatusFailed        RequestStatus = "failed"
)

// AllRequestStatuses lists every known request status in lifecycle order.
var AllRequestStatuses = []RequestStatus{
	StatusDraft,
	StatusSubmitted,
	StatusProcessing,
	StatusTeacherReview,
	StatusPublished,
	StatusRejected,
	StatusAppealed,
	StatusFailed,
}

// transitions is the allowed-successor table. REJECTED is added for every
// non-terminal state in CanTransition.
var transitions = map[RequestStatus][]RequestStatus{
	StatusDraft:         {StatusSubmitted},
	StatusSubmitted:     {StatusProcessing},
	StatusProcessing:    {StatusProcessing, StatusTeacherReview, StatusFailed},
	StatusTeacherReview: {StatusPublished},
	StatusPublished:     {StatusAppealed},
	StatusAppealed:      {StatusTeacherReview, StatusPublished},
	StatusFailed:        {StatusProcessing},
}

// ParseRequestStatus converts a string into a known RequestStatus.
func ParseRequestStatus(s string) (RequestStatus, error) {
	for _, st := range AllRequestStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown request status %q", s)
}

// IsTerminal reports whether no further transition is possible.
func (s RequestStatus) IsTerminal() bool {
	return s == StatusRejected
}

// HasAIResult reports whether a request in this status may carry an AI result.
func (s RequestStatus) HasAIResult() bool {
	switch s {
	case StatusTeacherReview, StatusPublished, StatusAppealed:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to RequestStatus) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StatusRejected {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns ErrInvalidTransition when from -> to is not allowed.
func ValidateTransition(from, to RequestStatus) error {
	if CanTransition(from, to) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// KeyStatus is the processing state of an answer key.
type KeyStatus string

const (
	KeyPending    KeyStatus = "pending"
	KeyProcessing KeyStatus = "processing"
	KeyCompleted  KeyStatus = "completed"
	KeyFailed     KeyStatus = "failed"
)
