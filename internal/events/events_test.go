package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smartexam/reval/internal/testutil"
)

func TestBus_Publish(t *testing.T) {
	bus := NewBus(nil)

	var got []int64
	bus.Subscribe(RequestPublished, func(ctx context.Context, ev Event) {
		got = append(got, ev.RequestID)
	})
	bus.Subscribe(RequestPublished, func(ctx context.Context, ev Event) {
		panic("notifier down")
	})
	bus.Subscribe(RequestPublished, func(ctx context.Context, ev Event) {
		got = append(got, ev.RequestID*10)
	})
	bus.Subscribe(RequestFailed, func(ctx context.Context, ev Event) {
		t.Error("handler for another type must not run")
	})

	err := bus.Publish(context.Background(), Event{Type: RequestPublished, RequestID: 4})
	if err == nil {
		t.Error("expected panic to be reported")
	}
	if len(got) != 2 || got[0] != 4 || got[1] != 40 {
		t.Errorf("handlers after a panic must still run, got %v", got)
	}
}

func TestBus_NoSubscribers(t *testing.T) {
	if err := NewBus(nil).Publish(context.Background(), Event{Type: RequestPublished}); err != nil {
		t.Errorf("Publish() error = %v", err)
	}
}

type failingPublisher struct{ calls int }

func (f *failingPublisher) Publish(ctx context.Context, ev Event) error {
	f.calls++
	return errors.New("broker down")
}

func TestMulti(t *testing.T) {
	bad := &failingPublisher{}
	bus := NewBus(nil)
	delivered := false
	bus.Subscribe(RequestPublished, func(ctx context.Context, ev Event) { delivered = true })

	err := Multi{bad, bus}.Publish(context.Background(), Event{Type: RequestPublished, RequestID: 1})
	if err == nil {
		t.Error("expected first error")
	}
	if !delivered || bad.calls != 1 {
		t.Error("every publisher must be called")
	}
}

func TestRedisPublisher_RoundTrip(t *testing.T) {
	rdb, _ := testutil.Redis(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events, err := Subscribe(ctx, rdb, "test:events")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	pub := NewRedisPublisher(rdb, "test:events")
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	if err := pub.Publish(ctx, Event{Type: RequestPublished, RequestID: 42, StudentID: "S-1", At: at}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case ev := <-events:
		if ev.Type != RequestPublished || ev.RequestID != 42 || ev.StudentID != "S-1" || !ev.At.Equal(at) {
			t.Errorf("unexpected event: %+v", ev)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}
