package gateway

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const window = time.Minute

// Limits are the budget ceilings. Zero disables a ceiling.
type Limits struct {
	CallsPerMinute  int
	TokensPerMinute int
	CallsPerDay     int
}

// Usage is a snapshot of the limiter's counters.
type Usage struct {
	MinuteCalls     int
	TokensAvailable int
	DayCalls        int
	Limits          Limits
}

// Limiter is the single shared budget. Every model call acquires a permit
// first.
//
// Calls per minute are a rolling log: a bucket refilling at N per minute
// would let up to 2N-1 calls through in one 60 s window, and the provider
// counts calls that way. The estimated-token budget is a token bucket that
// refills continuously and holds at most one minute of tokens. The day
// counter resets on the local calendar day.
type Limiter struct {
	mu       sync.Mutex
	limits   Limits
	calls    []time.Time
	tokens   *rate.Limiter
	day      string
	dayCalls int

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewLimiter creates a limiter on the wall clock.
func NewLimiter(l Limits) *Limiter {
	return NewLimiterWithClock(l, time.Now, sleepCtx)
}

// NewLimiterWithClock creates a limiter with an injected clock and sleep.
func NewLimiterWithClock(l Limits, now func() time.Time, sleep func(context.Context, time.Duration) error) *Limiter {
	lim := &Limiter{limits: l, now: now, sleep: sleep}
	if l.TokensPerMinute > 0 {
		lim.tokens = rate.NewLimiter(rate.Limit(float64(l.TokensPerMinute)/window.Seconds()), l.TokensPerMinute)
		// The bucket starts full at the injected time, not the wall clock.
		lim.tokens.SetLimitAt(now(), lim.tokens.Limit())
	}
	return lim
}

// Acquire blocks until a call costing the given token estimate fits the
// minute budgets. It fails at once when the day budget is spent.
func (l *Limiter) Acquire(ctx context.Context, cost int) error {
	for {
		wait, err := l.tryAcquire(cost)
		if err != nil || wait == 0 {
			return err
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (l *Limiter) tryAcquire(cost int) (time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if day := now.Format("2006-01-02"); day != l.day {
		l.day = day
		l.dayCalls = 0
	}
	if l.limits.CallsPerDay > 0 && l.dayCalls >= l.limits.CallsPerDay {
		return 0, ErrDailyBudgetExhausted
	}
	l.prune(now)

	if l.limits.CallsPerMinute > 0 && len(l.calls) >= l.limits.CallsPerMinute {
		return l.calls[0].Add(window).Sub(now), nil
	}
	if l.tokens != nil {
		// A call larger than the whole budget waits for a full bucket.
		n := min(cost, l.tokens.Burst())
		r := l.tokens.ReserveN(now, n)
		if d := r.DelayFrom(now); d > 0 {
			r.CancelAt(now)
			return d, nil
		}
	}

	l.calls = append(l.calls, now)
	l.dayCalls++
	return 0, nil
}

func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(l.calls) && !l.calls[i].After(cutoff) {
		i++
	}
	l.calls = l.calls[i:]
}

// Usage returns the current counters.
func (l *Limiter) Usage() Usage {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.prune(now)
	day := l.dayCalls
	if now.Format("2006-01-02") != l.day {
		day = 0
	}
	u := Usage{
		MinuteCalls: len(l.calls),
		DayCalls:    day,
		Limits:      l.limits,
	}
	if l.tokens != nil {
		u.TokensAvailable = int(l.tokens.TokensAt(now))
	}
	return u
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
