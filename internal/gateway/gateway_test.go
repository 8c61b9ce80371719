package gateway

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/TobiSchelling/BikeScout/internal/llm"
)

type fakeClock struct {
	mu     sync.Mutex
	t      time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.Local)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.t = c.t.Add(d)
	return nil
}

type mockProvider struct {
	errs   []error
	calls  int
	models []string
}

func (m *mockProvider) Name() string       { return "mock" }
func (m *mockProvider) IsConfigured() bool { return true }

func (m *mockProvider) Complete(_ context.Context, req llm.Request) (string, error) {
	m.calls++
	m.models = append(m.models, req.Model)
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return "", err
		}
	}
	return `{"ok":true}`, nil
}

func newTestGateway(p llm.Provider, limits Limits, clock *fakeClock) *Gateway {
	l := NewLimiterWithClock(limits, clock.Now, clock.Sleep)
	g := New(p, l, Config{
		Models:         []string{"primary", "fallback"},
		SecondaryModel: "secondary",
	},
		TimeoutPolicy(3, 2*time.Second),
		RateLimitPolicy(4, time.Second, 30*time.Second, 0),
	)
	g.sleep = clock.Sleep
	return g
}

func TestLimiterMinuteWindow(t *testing.T) {
	clock := newFakeClock()
	l := NewLimiterWithClock(Limits{CallsPerMinute: 3}, clock.Now, clock.Sleep)
	ctx := context.Background()

	var granted []time.Time
	for i := 0; i < 7; i++ {
		if err := l.Acquire(ctx, 10); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		granted = append(granted, clock.Now())
	}

	for i := range granted {
		inWindow := 0
		for j := range granted {
			d := granted[j].Sub(granted[i])
			if d >= 0 && d < time.Minute {
				inWindow++
			}
		}
		if inWindow > 3 {
			t.Fatalf("expected at most 3 calls in a 60s window starting at call %d, got %d", i, inWindow)
		}
	}
	if len(clock.sleeps) == 0 || clock.sleeps[0] != time.Minute {
		t.Errorf("expected the 4th call to wait a full minute, got %v", clock.sleeps)
	}
}

func TestLimiterTokenBudget(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	l := NewLimiterWithClock(Limits{TokensPerMinute: 1000}, clock.Now, clock.Sleep)
	ctx := context.Background()

	if u := l.Usage(); u.TokensAvailable != 1000 {
		t.Fatalf("expected a full budget at start, got %d", u.TokensAvailable)
	}
	if err := l.Acquire(ctx, 800); err != nil {
		t.Fatal(err)
	}
	if len(clock.sleeps) != 0 {
		t.Fatalf("expected the first call to pass at once, got %v", clock.sleeps)
	}
	if err := l.Acquire(ctx, 300); err != nil {
		t.Fatal(err)
	}

	// 100 missing tokens refill at 1000 per minute.
	waited := clock.Now().Sub(start)
	if waited < 5900*time.Millisecond || waited > 6100*time.Millisecond {
		t.Errorf("expected about 6s of waiting, got %v (%v)", waited, clock.sleeps)
	}
	if u := l.Usage(); u.TokensAvailable > 1 {
		t.Errorf("expected the budget spent, got %d tokens left", u.TokensAvailable)
	}
}

func TestLimiterOversizedCall(t *testing.T) {
	clock := newFakeClock()
	l := NewLimiterWithClock(Limits{TokensPerMinute: 100}, clock.Now, clock.Sleep)

	if err := l.Acquire(context.Background(), 5000); err != nil {
		t.Fatalf("expected a call above the budget to pass on a full bucket, got %v", err)
	}
	if len(clock.sleeps) != 0 {
		t.Errorf("expected no wait on a full bucket, got %v", clock.sleeps)
	}
}

func TestLimiterDailyBudget(t *testing.T) {
	clock := newFakeClock()
	l := NewLimiterWithClock(Limits{CallsPerDay: 2}, clock.Now, clock.Sleep)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.Acquire(ctx, 1); err != nil {
			t.Fatal(err)
		}
	}
	if err := l.Acquire(ctx, 1); !errors.Is(err, ErrDailyBudgetExhausted) {
		t.Fatalf("expected ErrDailyBudgetExhausted, got %v", err)
	}
	if len(clock.sleeps) != 0 {
		t.Errorf("expected no waiting on an exhausted day, got %v", clock.sleeps)
	}

	clock.Sleep(ctx, 24*time.Hour)
	if err := l.Acquire(ctx, 1); err != nil {
		t.Errorf("expected a new day to reset the budget, got %v", err)
	}
}

func TestLimiterConcurrentCallers(t *testing.T) {
	l := NewLimiter(Limits{CallsPerMinute: 100, CallsPerDay: 50})
	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, exhausted := 0, 0
	for i := 0; i < 80; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.Acquire(context.Background(), 1)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if errors.Is(err, ErrDailyBudgetExhausted) {
				exhausted++
			}
		}()
	}
	wg.Wait()
	if ok != 50 || exhausted != 30 {
		t.Errorf("expected 50 granted and 30 exhausted, got %d and %d", ok, exhausted)
	}
}

func TestInvokeRetriesTimeouts(t *testing.T) {
	clock := newFakeClock()
	p := &mockProvider{errs: []error{context.DeadlineExceeded, context.DeadlineExceeded}}
	g := newTestGateway(p, Limits{}, clock)

	out, err := g.Invoke(context.Background(), llm.Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != `{"ok":true}` {
		t.Errorf("unexpected output %q", out)
	}
	if p.calls != 3 {
		t.Errorf("expected 3 calls, got %d", p.calls)
	}
	for _, d := range clock.sleeps {
		if d != 2*time.Second {
			t.Errorf("expected fixed 2s delay, got %v", d)
		}
	}
}

func TestInvokeTimeoutGivesUp(t *testing.T) {
	clock := newFakeClock()
	p := &mockProvider{errs: []error{context.DeadlineExceeded, context.DeadlineExceeded, context.DeadlineExceeded}}
	g := newTestGateway(p, Limits{}, clock)

	_, err := g.Invoke(context.Background(), llm.Request{Prompt: "hi"})
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
	if p.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", p.calls)
	}
}

func TestInvokeRateLimitBackoff(t *testing.T) {
	clock := newFakeClock()
	rl := &llm.APIError{Provider: "mock", StatusCode: http.StatusTooManyRequests, Body: "slow down"}
	p := &mockProvider{errs: []error{rl, rl, rl}}
	g := newTestGateway(p, Limits{}, clock)

	if _, err := g.Invoke(context.Background(), llm.Request{Prompt: "hi"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(clock.sleeps) != len(want) {
		t.Fatalf("expected %d sleeps, got %v", len(want), clock.sleeps)
	}
	for i, d := range want {
		if clock.sleeps[i] != d {
			t.Errorf("sleep %d: expected %v, got %v", i, d, clock.sleeps[i])
		}
	}
}

func TestInvokeHonorsRetryAfter(t *testing.T) {
	clock := newFakeClock()
	rl := &llm.APIError{StatusCode: http.StatusTooManyRequests, RetryAfter: 9 * time.Second}
	p := &mockProvider{errs: []error{rl}}
	g := newTestGateway(p, Limits{}, clock)

	if _, err := g.Invoke(context.Background(), llm.Request{Prompt: "hi"}); err != nil {
		t.Fatal(err)
	}
	if len(clock.sleeps) != 1 || clock.sleeps[0] != 9*time.Second {
		t.Errorf("expected Retry-After delay, got %v", clock.sleeps)
	}
}

func TestInvokeModelNotFoundFallsBackOnce(t *testing.T) {
	clock := newFakeClock()
	nf := &llm.APIError{StatusCode: http.StatusNotFound}
	p := &mockProvider{errs: []error{nf}}
	g := newTestGateway(p, Limits{}, clock)

	if _, err := g.Invoke(context.Background(), llm.Request{Prompt: "hi"}); err != nil {
		t.Fatal(err)
	}
	if len(p.models) != 2 || p.models[0] != "primary" || p.models[1] != "fallback" {
		t.Errorf("expected primary then fallback, got %v", p.models)
	}

	p = &mockProvider{errs: []error{nf, nf}}
	g = newTestGateway(p, Limits{}, clock)
	if _, err := g.Invoke(context.Background(), llm.Request{Prompt: "hi"}); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("expected ErrModelNotFound after one fallback, got %v", err)
	}
}

func TestInvokeZeroQuotaUsesSecondary(t *testing.T) {
	clock := newFakeClock()
	zq := &llm.APIError{StatusCode: http.StatusTooManyRequests, Body: "Quota exceeded, limit: 0"}
	p := &mockProvider{errs: []error{zq}}
	g := newTestGateway(p, Limits{}, clock)

	if _, err := g.Invoke(context.Background(), llm.Request{Prompt: "hi"}); err != nil {
		t.Fatal(err)
	}
	if p.models[1] != "secondary" {
		t.Errorf("expected secondary model, got %v", p.models)
	}
	if len(clock.sleeps) != 0 {
		t.Errorf("expected no backoff on zero quota, got %v", clock.sleeps)
	}

	p = &mockProvider{errs: []error{zq, zq}}
	g = newTestGateway(p, Limits{}, clock)
	if _, err := g.Invoke(context.Background(), llm.Request{Prompt: "hi"}); !errors.Is(err, ErrQuotaUnavailable) {
		t.Errorf("expected ErrQuotaUnavailable, got %v", err)
	}
}

func TestInvokeUnauthorizedIsFatal(t *testing.T) {
	clock := newFakeClock()
	p := &mockProvider{errs: []error{&llm.APIError{StatusCode: http.StatusForbidden}}}
	g := newTestGateway(p, Limits{}, clock)

	_, err := g.Invoke(context.Background(), llm.Request{Prompt: "hi"})
	if !errors.Is(err, ErrUnauthorized) || !IsFatal(err) {
		t.Fatalf("expected fatal ErrUnauthorized, got %v", err)
	}
	if p.calls != 1 {
		t.Errorf("expected no retry, got %d calls", p.calls)
	}
}

func TestInvokeRetriesSpendBudget(t *testing.T) {
	clock := newFakeClock()
	rl := &llm.APIError{StatusCode: http.StatusServiceUnavailable}
	p := &mockProvider{errs: []error{rl, rl}}
	g := newTestGateway(p, Limits{CallsPerDay: 2}, clock)

	_, err := g.Invoke(context.Background(), llm.Request{Prompt: "hi"})
	if !errors.Is(err, ErrDailyBudgetExhausted) {
		t.Fatalf("expected the third attempt to hit the day budget, got %v", err)
	}
	if u := g.Usage(); u.DayCalls != 2 {
		t.Errorf("expected 2 day calls, got %d", u.DayCalls)
	}
}

func TestEstimateTokens(t *testing.T) {
	req := llm.Request{Prompt: string(make([]byte, 400)), Images: []llm.Image{{}, {}}}
	if got := EstimateTokens(req); got != 100+2*258 {
		t.Errorf("expected %d, got %d", 100+2*258, got)
	}
}
