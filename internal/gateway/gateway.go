// Package gateway is the only path to the external model. It owns the shared
// call budget and applies one retry and fallback policy to every call.
package gateway

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/TobiSchelling/BikeScout/internal/llm"
)

// Config controls model selection and call limits.
type Config struct {
	// Models are tried in order: Models[0] is primary, Models[1] replaces it
	// once when the primary is not found.
	Models []string
	// SecondaryModel is used once when the current model has zero quota.
	SecondaryModel string
	Timeout        time.Duration
	MaxTokens      int
	Temperature    float64
}

// Gateway rate-limits and retries model calls.
type Gateway struct {
	provider llm.Provider
	limiter  *Limiter
	cfg      Config
	policies []RetryPolicy
	sleep    func(context.Context, time.Duration) error
}

// New creates a gateway. Policies are consulted in order; the first whose
// Retryable accepts an error decides the next pause.
func New(p llm.Provider, l *Limiter, cfg Config, policies ...RetryPolicy) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	if len(policies) == 0 {
		policies = DefaultPolicies()
	}
	return &Gateway{provider: p, limiter: l, cfg: cfg, policies: policies, sleep: sleepCtx}
}

// DefaultPolicies returns the timeout and rate-limit schedules.
func DefaultPolicies() []RetryPolicy {
	return []RetryPolicy{
		TimeoutPolicy(3, 2*time.Second),
		RateLimitPolicy(4, time.Second, 30*time.Second, 400*time.Millisecond),
	}
}

// Usage exposes the shared budget counters.
func (g *Gateway) Usage() Usage {
	return g.limiter.Usage()
}

// EstimateTokens is a rough input size: four characters per token plus a
// fixed cost per inline image.
func EstimateTokens(req llm.Request) int {
	return len(req.Prompt)/4 + 258*len(req.Images)
}

// Invoke runs one logical call. Every attempt, retries included, acquires a
// permit from the shared limiter.
func (g *Gateway) Invoke(ctx context.Context, req llm.Request) (string, error) {
	if g.provider == nil {
		return "", fmt.Errorf("no model provider configured")
	}
	model := req.Model
	if model == "" && len(g.cfg.Models) > 0 {
		model = g.cfg.Models[0]
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = g.cfg.MaxTokens
	}
	if req.Temperature == 0 {
		req.Temperature = g.cfg.Temperature
	}

	cost := EstimateTokens(req)
	attempts := make(map[string]int)
	usedFallback, usedSecondary := false, false

	for {
		if err := g.limiter.Acquire(ctx, cost); err != nil {
			return "", err
		}

		req.Model = model
		callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
		out, err := g.provider.Complete(callCtx, req)
		cancel()
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		switch status := statusOf(err); {
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)

		case status == http.StatusNotFound:
			fallback := g.fallbackModel(model)
			if usedFallback || fallback == "" {
				return "", fmt.Errorf("%w: %s: %v", ErrModelNotFound, model, err)
			}
			log.Printf("Model %s not found, retrying with %s", model, fallback)
			model, usedFallback = fallback, true
			continue

		case isZeroQuota(err):
			if usedSecondary || g.cfg.SecondaryModel == "" || g.cfg.SecondaryModel == model {
				return "", fmt.Errorf("%w: %s: %v", ErrQuotaUnavailable, model, err)
			}
			log.Printf("Model %s has no quota, retrying with %s", model, g.cfg.SecondaryModel)
			model, usedSecondary = g.cfg.SecondaryModel, true
			continue
		}

		policy, ok := g.policyFor(err)
		if !ok {
			return "", fmt.Errorf("model call failed: %w", err)
		}
		attempts[policy.Name]++
		n := attempts[policy.Name]
		if n >= policy.MaxAttempts {
			return "", fmt.Errorf("%w after %d %s attempts: %v", ErrTransient, n, policy.Name, err)
		}
		delay := policy.Delay(n, err)
		log.Printf("Model call failed (%s, attempt %d/%d), retrying in %s", policy.Name, n, policy.MaxAttempts, delay)
		if err := g.sleep(ctx, delay); err != nil {
			return "", err
		}
	}
}

func (g *Gateway) fallbackModel(current string) string {
	for _, m := range g.cfg.Models[min(1, len(g.cfg.Models)):] {
		if m != current {
			return m
		}
	}
	return ""
}

func (g *Gateway) policyFor(err error) (RetryPolicy, bool) {
	for _, p := range g.policies {
		if p.Retryable != nil && p.Retryable(err) {
			return p, true
		}
	}
	return RetryPolicy{}, false
}
