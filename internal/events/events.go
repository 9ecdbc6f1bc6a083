// Package events delivers notifications about request lifecycle changes to
// whoever is listening: in-process subscribers, a Redis channel, or the log.
package events

import (
	"context"
	"log/slog"
	"time"
)

// Type names an event.
type Type string

const (
	// RequestPublished fires after a request enters PUBLISHED.
	RequestPublished Type = "request.published"
	// RequestFailed fires after a worker marks a request failed.
	RequestFailed Type = "request.failed"
)

// Event is a lifecycle notification.
type Event struct {
	Type      Type      `json:"type" yaml:"type"`
	RequestID int64     `json:"request_id" yaml:"request_id"`
	StudentID string    `json:"student_id,omitempty" yaml:"student_id,omitempty"`
	Status    string    `json:"status,omitempty" yaml:"status,omitempty"`
	Message   string    `json:"message,omitempty" yaml:"message,omitempty"`
	At        time.Time `json:"at" yaml:"at"`
}

// Publisher delivers events. Publish failures are reported to the caller but
// never undo the change that produced the event.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// LogPublisher writes events to a logger.
type LogPublisher struct {
	Logger *slog.Logger
}

// Publish logs ev at info level.
func (p LogPublisher) Publish(ctx context.Context, ev Event) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("event", "type", ev.Type, "request_id", ev.RequestID, "status", ev.Status)
	return nil
}

// Multi fans an event out to several publishers and returns the first error.
type Multi []Publisher

// Publish sends ev to every publisher.
func (m Multi) Publish(ctx context.Context, ev Event) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

var (
	_ Publisher = LogPublisher{}
	_ Publisher = Multi(nil)
)
