package types

import "errors"

var (
	// ErrInsufficientContent means extraction produced no usable text.
	ErrInsufficientContent = errors.New("insufficient content")

	// ErrUnreadableDocument means the document could not be opened or parsed.
	ErrUnreadableDocument = errors.New("unreadable document")

	// ErrMalformedAIResponse means the model output was not valid grading JSON,
	// even after stripping code fences.
	ErrMalformedAIResponse = errors.New("malformed AI response")

	// ErrAIServiceUnavailable means every attempt hit an overloaded or
	// rate-limited backend.
	ErrAIServiceUnavailable = errors.New("AI service unavailable")

	// ErrMissingAnswerKey means no completed answer key exists for a subject.
	ErrMissingAnswerKey = errors.New("missing answer key")

	// ErrConcurrentModification means an optimistic update lost a race.
	ErrConcurrentModification = errors.New("concurrent modification")

	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotFound          = errors.New("not found")
)
