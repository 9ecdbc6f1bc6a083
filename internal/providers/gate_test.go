package providers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/smartexam/reval/internal/testutil"
)

// fakeClock advances only when the gate sleeps.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func TestGate_SpacesCalls(t *testing.T) {
	clock := newFakeClock()
	g := NewGate(7 * time.Second)
	g.now = clock.Now
	g.sleep = clock.Sleep

	var starts []time.Time
	for i := 0; i < 4; i++ {
		if err := g.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
		starts = append(starts, clock.Now())
	}

	for i := 1; i < len(starts); i++ {
		if gap := starts[i].Sub(starts[i-1]); gap < 7*time.Second {
			t.Errorf("gap %d = %v, want >= 7s", i, gap)
		}
	}
	if len(clock.sleeps) != 3 {
		t.Errorf("expected first call to pass immediately and 3 sleeps, got %v", clock.sleeps)
	}

	st := g.Status()
	if st.TotalCalls != 4 || st.TotalWaited != 21*time.Second {
		t.Errorf("unexpected status: %+v", st)
	}
}

func TestGate_NoWaitAfterIdle(t *testing.T) {
	clock := newFakeClock()
	g := NewGate(7 * time.Second)
	g.now = clock.Now
	g.sleep = clock.Sleep

	g.Wait(context.Background())
	clock.Advance(10 * time.Second)
	g.Wait(context.Background())

	if len(clock.sleeps) != 0 {
		t.Errorf("expected no sleep after idle period, got %v", clock.sleeps)
	}
}

func TestGate_ConcurrentCallersGetDistinctSlots(t *testing.T) {
	g := NewGate(20 * time.Millisecond)

	const callers = 4
	var mu sync.Mutex
	var starts []time.Time
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.Wait(context.Background()); err != nil {
				t.Errorf("Wait() error = %v", err)
				return
			}
			mu.Lock()
			starts = append(starts, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	first, last := starts[0], starts[0]
	for _, s := range starts {
		if s.Before(first) {
			first = s
		}
		if s.After(last) {
			last = s
		}
	}
	if span := last.Sub(first); span < (callers-1)*20*time.Millisecond-5*time.Millisecond {
		t.Errorf("callers released too close together: span %v", span)
	}
}

func TestGate_ContextCancelled(t *testing.T) {
	g := NewGate(time.Hour)
	g.Wait(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := g.Wait(ctx); err == nil {
		t.Error("expected context error while waiting for slot")
	}
}

func TestGate_SetInterval(t *testing.T) {
	clock := newFakeClock()
	g := NewGate(7 * time.Second)
	g.now = clock.Now
	g.sleep = clock.Sleep

	g.SetInterval(time.Second)
	g.Wait(context.Background())
	g.Wait(context.Background())

	if len(clock.sleeps) != 1 || clock.sleeps[0] != time.Second {
		t.Errorf("expected one 1s sleep, got %v", clock.sleeps)
	}
	if g.Status().Interval != time.Second {
		t.Errorf("expected interval 1s, got %v", g.Status().Interval)
	}
}

func TestRedisGate_SharedAcrossInstances(t *testing.T) {
	rdb, _ := testutil.Redis(t)

	clock := newFakeClock()
	newGate := func() *RedisGate {
		g := NewRedisGate(rdb, "reval:gate:grading", 7*time.Second)
		g.now = clock.Now
		g.sleep = clock.Sleep
		return g
	}
	a, b := newGate(), newGate()
	ctx := context.Background()

	if err := a.Wait(ctx); err != nil {
		t.Fatalf("a.Wait() error = %v", err)
	}
	if len(clock.sleeps) != 0 {
		t.Fatalf("first reservation should not wait, got %v", clock.sleeps)
	}

	// b shares the key, so it must wait for the slot after a's.
	if err := b.Wait(ctx); err != nil {
		t.Fatalf("b.Wait() error = %v", err)
	}
	if len(clock.sleeps) != 1 || clock.sleeps[0] != 7*time.Second {
		t.Fatalf("expected 7s wait, got %v", clock.sleeps)
	}

	clock.Advance(30 * time.Second)
	if err := a.Wait(ctx); err != nil {
		t.Fatalf("a.Wait() error = %v", err)
	}
	if len(clock.sleeps) != 1 {
		t.Errorf("expected no wait after idle, got %v", clock.sleeps)
	}
}
