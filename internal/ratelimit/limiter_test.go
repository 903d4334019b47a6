package ratelimit

import (
	"testing"
	"time"

	"github.com/meridell/daybook/internal/tier"
)

// fakeClock advances only when told to.
type fakeClock struct {
	t time.Time
}

func (f *fakeClock) now() time.Time { return f.t }

func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestLimiter() (*Limiter, *fakeClock) {
	clk := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	return NewWithClock(clk.now), clk
}

func TestCheckAndIncrement_FreeQuota(t *testing.T) {
	l, clk := newTestLimiter()
	quota := tier.DailyQuota(tier.Free)

	for i := 0; i < quota; i++ {
		res := l.CheckAndIncrement("u1", tier.Free)
		if !res.Allowed {
			t.Fatalf("call %d: expected allowed", i+1)
		}
		if res.Remaining != quota-i-1 {
			t.Errorf("call %d: remaining = %d, want %d", i+1, res.Remaining, quota-i-1)
		}
	}

	res := l.CheckAndIncrement("u1", tier.Free)
	if res.Allowed {
		t.Fatal("call over quota should be denied")
	}
	wantReset := clk.t.Add(Window)
	if !res.ResetAt.Equal(wantReset) {
		t.Errorf("ResetAt = %v, want %v", res.ResetAt, wantReset)
	}
}

func TestCheckAndIncrement_WindowReset(t *testing.T) {
	l, clk := newTestLimiter()
	quota := tier.DailyQuota(tier.Free)

	for i := 0; i < quota; i++ {
		l.CheckAndIncrement("u1", tier.Free)
	}
	if l.CheckAndIncrement("u1", tier.Free).Allowed {
		t.Fatal("expected exhausted window")
	}

	clk.advance(Window)
	res := l.CheckAndIncrement("u1", tier.Free)
	if !res.Allowed {
		t.Fatal("new window should allow calls again")
	}
	if res.Remaining != quota-1 {
		t.Errorf("remaining = %d, want %d", res.Remaining, quota-1)
	}
}

func TestCheckAndIncrement_PremiumBypass(t *testing.T) {
	l, _ := newTestLimiter()

	for i := 0; i < 100; i++ {
		res := l.CheckAndIncrement("p1", tier.Premium)
		if !res.Allowed {
			t.Fatal("premium must always be allowed")
		}
	}
	if len(l.counters) != 0 {
		t.Error("premium calls must not create counters")
	}
}

func TestCheckAndIncrement_UsersIndependent(t *testing.T) {
	l, _ := newTestLimiter()
	quota := tier.DailyQuota(tier.Free)

	for i := 0; i < quota; i++ {
		l.CheckAndIncrement("u1", tier.Free)
	}
	if !l.CheckAndIncrement("u2", tier.Free).Allowed {
		t.Error("u2 should not share u1's window")
	}
}

func TestPeek_DoesNotConsume(t *testing.T) {
	l, _ := newTestLimiter()
	quota := tier.DailyQuota(tier.Free)

	for i := 0; i < 5; i++ {
		if got := l.Peek("u1", tier.Free).Remaining; got != quota {
			t.Fatalf("Peek consumed quota: remaining = %d, want %d", got, quota)
		}
	}

	l.CheckAndIncrement("u1", tier.Free)
	if got := l.Peek("u1", tier.Free).Remaining; got != quota-1 {
		t.Errorf("remaining after one call = %d, want %d", got, quota-1)
	}
}

func TestSweep(t *testing.T) {
	l, clk := newTestLimiter()

	l.CheckAndIncrement("u1", tier.Free)
	clk.advance(Window / 2)
	l.CheckAndIncrement("u2", tier.Free)

	clk.advance(Window / 2)
	if n := l.sweep(); n != 1 {
		t.Errorf("sweep removed %d counters, want 1", n)
	}
	if _, ok := l.counters["u2"]; !ok {
		t.Error("live window for u2 should survive the sweep")
	}
}
