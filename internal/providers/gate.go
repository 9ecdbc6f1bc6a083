package providers

import (
	"context"
	"sync"
	"time"
)

// Limiter spaces outbound calls. Wait returns when the caller may proceed.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Gate enforces a minimum interval between successive calls within one
// process. The next slot is reserved under the lock and the sleep happens
// outside it, so concurrent callers queue up one interval apart.
type Gate struct {
	mu sync.Mutex

	interval time.Duration
	last     time.Time

	// Statistics
	totalCalls  int64
	totalWaited time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// GateStatus reports gate statistics.
type GateStatus struct {
	Interval    time.Duration `json:"interval"`
	TotalCalls  int64         `json:"total_calls"`
	TotalWaited time.Duration `json:"total_waited"`
}

// NewGate creates a gate with the given minimum interval.
func NewGate(interval time.Duration) *Gate {
	if interval < 0 {
		interval = 0
	}
	return &Gate{
		interval: interval,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Wait blocks until at least the configured interval has elapsed since the
// previous slot, or ctx is cancelled.
func (g *Gate) Wait(ctx context.Context) error {
	g.mu.Lock()
	now := g.now()
	slot := now
	if !g.last.IsZero() {
		if next := g.last.Add(g.interval); next.After(now) {
			slot = next
		}
	}
	g.last = slot
	wait := slot.Sub(now)
	g.totalCalls++
	g.totalWaited += wait
	g.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	return g.sleep(ctx, wait)
}

// SetInterval changes the interval for future slots.
func (g *Gate) SetInterval(d time.Duration) {
	if d < 0 {
		d = 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.interval = d
}

// Status returns current gate statistics.
func (g *Gate) Status() GateStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	return GateStatus{
		Interval:    g.interval,
		TotalCalls:  g.totalCalls,
		TotalWaited: g.totalWaited,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ Limiter = (*Gate)(nil)
