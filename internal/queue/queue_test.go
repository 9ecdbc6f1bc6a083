package queue

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

type testPayload struct {
	RequestID int64 `json:"request_id"`
}

func (p testPayload) Validate() error {
	if p.RequestID <= 0 {
		return errors.New("request_id must be positive")
	}
	return nil
}

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb, "test"), mr
}

func TestEnqueueReserve_FIFO(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)

	for i := int64(1); i <= 3; i++ {
		if _, created, err := c.Enqueue(ctx, "grading", "grade", testPayload{RequestID: i}); err != nil || !created {
			t.Fatalf("Enqueue(%d) created=%v err=%v", i, created, err)
		}
	}

	for want := int64(1); want <= 3; want++ {
		job, err := c.Reserve(ctx, "grading", 0)
		if err != nil {
			t.Fatalf("Reserve() error = %v", err)
		}
		if job == nil {
			t.Fatalf("expected job %d, got none", want)
		}
		var p testPayload
		if err := job.Decode(&p); err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		if p.RequestID != want {
			t.Errorf("expected request %d, got %d", want, p.RequestID)
		}
		if job.State != StateActive || job.Attempts != 1 {
			t.Errorf("expected active job with 1 attempt, got %s/%d", job.State, job.Attempts)
		}
	}

	job, err := c.Reserve(ctx, "grading", 0)
	if err != nil || job != nil {
		t.Fatalf("expected empty queue, got job=%v err=%v", job, err)
	}
}

func TestEnqueue_RejectsInvalidPayload(t *testing.T) {
	c, _ := newTestClient(t)

	_, _, err := c.Enqueue(context.Background(), "grading", "grade", testPayload{})
	if err == nil || !strings.Contains(err.Error(), "request_id") {
		t.Fatalf("expected validation error, got %v", err)
	}
	counts, _ := c.Counts(context.Background(), "grading")
	if counts.Total() != 0 {
		t.Errorf("invalid payload must not be stored, counts=%+v", counts)
	}
}

func TestEnqueue_DeterministicIDDedupes(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)

	first, created, err := c.Enqueue(ctx, "grading", "grade", testPayload{RequestID: 7}, WithJobID("grade:7"))
	if err != nil || !created {
		t.Fatalf("first Enqueue created=%v err=%v", created, err)
	}
	second, created, err := c.Enqueue(ctx, "grading", "grade", testPayload{RequestID: 7}, WithJobID("grade:7"))
	if err != nil {
		t.Fatalf("second Enqueue error = %v", err)
	}
	if created {
		t.Error("expected duplicate enqueue to be absorbed")
	}
	if second.ID != first.ID || second.State != StateWaiting {
		t.Errorf("expected existing waiting job, got %s/%s", second.ID, second.State)
	}

	counts, err := c.Counts(ctx, "grading")
	if err != nil {
		t.Fatalf("Counts() error = %v", err)
	}
	if counts.Waiting != 1 {
		t.Errorf("expected 1 waiting job, got %d", counts.Waiting)
	}

	t.Run("active job still dedupes", func(t *testing.T) {
		job, err := c.Reserve(ctx, "grading", 0)
		if err != nil || job == nil {
			t.Fatalf("Reserve() job=%v err=%v", job, err)
		}
		_, created, err := c.Enqueue(ctx, "grading", "grade", testPayload{RequestID: 7}, WithJobID("grade:7"))
		if err != nil || created {
			t.Fatalf("expected dedupe against active job, created=%v err=%v", created, err)
		}

		t.Run("finished job is replaced", func(t *testing.T) {
			if err := c.Complete(ctx, job, ""); err != nil {
				t.Fatalf("Complete() error = %v", err)
			}
			again, created, err := c.Enqueue(ctx, "grading", "grade", testPayload{RequestID: 7}, WithJobID("grade:7"))
			if err != nil || !created {
				t.Fatalf("expected re-enqueue after completion, created=%v err=%v", created, err)
			}
			if again.State != StateWaiting {
				t.Errorf("expected waiting, got %s", again.State)
			}
			counts, _ := c.Counts(ctx, "grading")
			if counts.Completed != 0 || counts.Waiting != 1 {
				t.Errorf("unexpected counts after replace: %+v", counts)
			}
		})
	})
}

func TestCompleteAndFail(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)

	c.Enqueue(ctx, "answer-key", "key", testPayload{RequestID: 1})
	c.Enqueue(ctx, "answer-key", "key", testPayload{RequestID: 2})

	ok, _ := c.Reserve(ctx, "answer-key", 0)
	bad, _ := c.Reserve(ctx, "answer-key", 0)

	if err := c.Complete(ctx, ok, "done"); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if err := c.Fail(ctx, bad, errors.New("unreadable document")); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}

	counts, err := c.Counts(ctx, "answer-key")
	if err != nil {
		t.Fatalf("Counts() error = %v", err)
	}
	want := Counts{Completed: 1, Failed: 1}
	if counts != want {
		t.Errorf("Counts() = %+v, want %+v", counts, want)
	}

	got, err := c.Get(ctx, "answer-key", bad.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.State != StateFailed || got.Error != "unreadable document" {
		t.Errorf("unexpected failed job: %+v", got)
	}
	if got.FinishedAt.IsZero() {
		t.Error("expected finished_at to be set")
	}

	done, _ := c.Get(ctx, "answer-key", ok.ID)
	if done.Result != "done" || done.Error != "" {
		t.Errorf("unexpected completed job: %+v", done)
	}
}

func TestRetryFailed(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)

	c.Enqueue(ctx, "grading", "grade", testPayload{RequestID: 3})
	job, _ := c.Reserve(ctx, "grading", 0)
	c.Fail(ctx, job, errors.New("ai service unavailable"))

	n, err := c.RetryFailed(ctx, "grading")
	if err != nil {
		t.Fatalf("RetryFailed() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 retried, got %d", n)
	}

	again, err := c.Reserve(ctx, "grading", 0)
	if err != nil || again == nil {
		t.Fatalf("Reserve() job=%v err=%v", again, err)
	}
	if again.Attempts != 2 {
		t.Errorf("expected attempts to carry over, got %d", again.Attempts)
	}
	if again.Error != "" {
		t.Errorf("expected error cleared, got %q", again.Error)
	}
}

func TestNoAutomaticRetry(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)

	c.Enqueue(ctx, "grading", "grade", testPayload{RequestID: 4})
	job, _ := c.Reserve(ctx, "grading", 0)
	c.Fail(ctx, job, errors.New("boom"))

	next, err := c.Reserve(ctx, "grading", 0)
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	if next != nil {
		t.Fatalf("failed job must not be redelivered, got %s", next.ID)
	}
}

func TestClean(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)

	c.Enqueue(ctx, "script-ocr", "ocr", testPayload{RequestID: 1})
	c.Enqueue(ctx, "script-ocr", "ocr", testPayload{RequestID: 2})
	c.Enqueue(ctx, "script-ocr", "ocr", testPayload{RequestID: 3})
	job, _ := c.Reserve(ctx, "script-ocr", 0)
	c.Complete(ctx, job, "")

	removed, err := c.Clean(ctx, "script-ocr", StateCompleted)
	if err != nil {
		t.Fatalf("Clean() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}
	if _, err := c.Get(ctx, "script-ocr", job.ID); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}

	removed, err = c.Clean(ctx, "script-ocr")
	if err != nil {
		t.Fatalf("Clean() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}
	counts, _ := c.Counts(ctx, "script-ocr")
	if counts.Total() != 0 {
		t.Errorf("expected empty queue, got %+v", counts)
	}
}

func TestDelayedPromotion(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)

	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	job, created, err := c.Enqueue(ctx, "grading", "grade", testPayload{RequestID: 5}, WithDelay(time.Minute))
	if err != nil || !created {
		t.Fatalf("Enqueue() created=%v err=%v", created, err)
	}
	if job.State != StateDelayed {
		t.Fatalf("expected delayed, got %s", job.State)
	}

	n, err := c.PromoteDelayed(ctx, "grading")
	if err != nil || n != 0 {
		t.Fatalf("expected nothing due, n=%d err=%v", n, err)
	}
	if got, _ := c.Reserve(ctx, "grading", 0); got != nil {
		t.Fatal("delayed job must not be reservable early")
	}

	now = now.Add(2 * time.Minute)
	n, err = c.PromoteDelayed(ctx, "grading")
	if err != nil || n != 1 {
		t.Fatalf("expected 1 promoted, n=%d err=%v", n, err)
	}
	got, err := c.Reserve(ctx, "grading", 0)
	if err != nil || got == nil || got.ID != job.ID {
		t.Fatalf("expected promoted job, got=%v err=%v", got, err)
	}
}

func TestRecover(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)

	c.Enqueue(ctx, "grading", "grade", testPayload{RequestID: 6})
	c.Reserve(ctx, "grading", 0)

	n, err := c.Recover(ctx, "grading")
	if err != nil || n != 1 {
		t.Fatalf("Recover() n=%d err=%v", n, err)
	}
	counts, _ := c.Counts(ctx, "grading")
	if counts.Waiting != 1 || counts.Active != 0 {
		t.Errorf("unexpected counts: %+v", counts)
	}
}

func TestJobDecode_Strict(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr bool
	}{
		{"valid", `{"request_id":9}`, false},
		{"unknown field", `{"request_id":9,"extra":true}`, true},
		{"fails validation", `{"request_id":0}`, true},
		{"not json", `nope`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := &Job{ID: "x", Queue: "grading", Data: []byte(tt.data)}
			var p testPayload
			err := j.Decode(&p)
			if (err != nil) != tt.wantErr {
				t.Errorf("Decode() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseState(t *testing.T) {
	if st, err := ParseState("failed"); err != nil || st != StateFailed {
		t.Errorf("ParseState(failed) = %s, %v", st, err)
	}
	if _, err := ParseState("bogus"); err == nil {
		t.Error("expected error for unknown state")
	}
}
