package queue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// State is the queue-side lifecycle state of a job.
type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateDelayed   State = "delayed"
)

// AllStates lists every job state.
var AllStates = []State{StateWaiting, StateActive, StateCompleted, StateFailed, StateDelayed}

// ParseState converts a CLI/user string into a State.
func ParseState(s string) (State, error) {
	for _, st := range AllStates {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown job state %q", s)
}

// IsFinished reports whether the job has left the delivery path.
func (s State) IsFinished() bool {
	return s == StateCompleted || s == StateFailed
}

// Payload is implemented by every typed job payload. Validate runs at
// enqueue time so malformed jobs never reach a worker.
type Payload interface {
	Validate() error
}

// Job is a unit of queued work.
type Job struct {
	ID          string          `json:"id" yaml:"id"`
	Queue       string          `json:"queue" yaml:"queue"`
	Name        string          `json:"name" yaml:"name"`
	Data        json.RawMessage `json:"data" yaml:"-"`
	State       State           `json:"state" yaml:"state"`
	Attempts    int             `json:"attempts" yaml:"attempts"`
	Error       string          `json:"error,omitempty" yaml:"error,omitempty"`
	Result      string          `json:"result,omitempty" yaml:"result,omitempty"`
	EnqueuedAt  time.Time       `json:"enqueued_at" yaml:"enqueued_at"`
	ProcessedAt time.Time       `json:"processed_at,omitempty" yaml:"processed_at,omitempty"`
	FinishedAt  time.Time       `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}

// Decode strictly unmarshals the job data into v. Unknown fields are
// rejected so payload shape drift surfaces as a job failure.
func (j *Job) Decode(v any) error {
	dec := json.NewDecoder(bytes.NewReader(j.Data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode %s job %s: %w", j.Queue, j.ID, err)
	}
	if p, ok := v.(Payload); ok {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("invalid %s job %s: %w", j.Queue, j.ID, err)
		}
	}
	return nil
}

// Counts holds per-state job counts for one queue.
type Counts struct {
	Waiting   int64 `json:"waiting" yaml:"waiting"`
	Active    int64 `json:"active" yaml:"active"`
	Completed int64 `json:"completed" yaml:"completed"`
	Failed    int64 `json:"failed" yaml:"failed"`
	Delayed   int64 `json:"delayed" yaml:"delayed"`
}

// Total returns the sum over all states.
func (c Counts) Total() int64 {
	return c.Waiting + c.Active + c.Completed + c.Failed + c.Delayed
}

func jobFromHash(queue, id string, h map[string]string) *Job {
	j := &Job{
		ID:     id,
		Queue:  queue,
		Name:   h["name"],
		Data:   json.RawMessage(h["data"]),
		State:  State(h["state"]),
		Error:  h["error"],
		Result: h["result"],
	}
	j.Attempts, _ = strconv.Atoi(h["attempts"])
	j.EnqueuedAt = msToTime(h["enqueued_at"])
	j.ProcessedAt = msToTime(h["processed_at"])
	j.FinishedAt = msToTime(h["finished_at"])
	return j
}

func msToTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
