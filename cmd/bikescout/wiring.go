package main

import (
	"fmt"

	"github.com/TobiSchelling/BikeScout/internal/collect"
	"github.com/TobiSchelling/BikeScout/internal/condition"
	"github.com/TobiSchelling/BikeScout/internal/config"
	"github.com/TobiSchelling/BikeScout/internal/database"
	"github.com/TobiSchelling/BikeScout/internal/facts"
	"github.com/TobiSchelling/BikeScout/internal/filter"
	"github.com/TobiSchelling/BikeScout/internal/gateway"
	"github.com/TobiSchelling/BikeScout/internal/llm"
	"github.com/TobiSchelling/BikeScout/internal/normalize"
	"github.com/TobiSchelling/BikeScout/internal/pipeline"
	"github.com/TobiSchelling/BikeScout/internal/ranking"
	"github.com/TobiSchelling/BikeScout/internal/valuation"
)

// buildSources returns a collector per configured target, or only the named
// one.
func buildSources(name string) ([]collect.Source, error) {
	targets := cfg.Targets
	if name != "" {
		t, ok := cfg.Target(name)
		if !ok {
			return nil, fmt.Errorf("unknown target %q", name)
		}
		targets = []config.Target{t}
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("no targets configured; add one to your config file")
	}

	sources := make([]collect.Source, 0, len(targets))
	for _, t := range targets {
		src, err := collect.FromTarget(t)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// buildGateway creates the model provider and wraps it in the shared budget.
func buildGateway() (*gateway.Gateway, error) {
	m := cfg.Model
	model := m.OllamaModel
	if m.Provider != "ollama" && len(cfg.Gateway.Models) > 0 {
		model = cfg.Gateway.Models[0]
	}
	p := llm.CreateProvider(m.Provider, model, m.OllamaURL, m.OpenAIModel, m.APIKeyEnv, m.GeminiKeyEnv)
	if p == nil {
		return nil, fmt.Errorf("no model provider available")
	}

	gcfg := gateway.Config{
		Models:         cfg.Gateway.Models,
		SecondaryModel: cfg.Gateway.SecondaryModel,
		Timeout:        cfg.Gateway.Timeout,
		MaxTokens:      cfg.Gateway.MaxTokens,
	}
	// Model fallback only applies to the Gemini family.
	switch prov := p.(type) {
	case *llm.OpenAIProvider:
		gcfg.Models, gcfg.SecondaryModel = []string{prov.Model}, ""
	case *llm.OllamaProvider:
		gcfg.Models, gcfg.SecondaryModel = []string{prov.Model}, ""
	}

	r := cfg.Gateway.Retry
	limiter := gateway.NewLimiter(gateway.Limits{
		CallsPerMinute:  cfg.Gateway.CallsPerMinute,
		TokensPerMinute: cfg.Gateway.TokensPerMinute,
		CallsPerDay:     cfg.Gateway.CallsPerDay,
	})
	return gateway.New(p, limiter, gcfg,
		gateway.TimeoutPolicy(r.TimeoutAttempts, r.TimeoutDelay),
		gateway.RateLimitPolicy(r.RateLimitAttempts, r.BaseDelay, r.MaxDelay, r.Jitter),
	), nil
}

// buildPipeline wires every stage. A dry run never calls the model, so it
// does not need a provider.
func buildPipeline(db *database.DB, dry bool) (*pipeline.Pipeline, *gateway.Gateway, error) {
	engine := facts.New()
	deps := pipeline.Deps{
		Store: db,
		Filter: filter.New(filter.Config{
			MinPrice:       cfg.Filter.MinPrice,
			MaxPrice:       cfg.Filter.MaxPrice,
			MinTitleLength: cfg.Filter.MinTitleLength,
			ExtraDenyTerms: cfg.Filter.DenyTerms,
		}),
		Engine: engine,
		Valuer: valuation.NewService(db, valuation.Config{
			MaxComparables:   cfg.Valuation.MaxComparables,
			MinSamples:       cfg.Valuation.MinSamples,
			ShippingDiscount: cfg.Valuation.ShippingDiscount,
			PickupDiscount:   cfg.Valuation.PickupDiscount,
		}),
		Images: condition.NewImageFetcher(cfg.Condition.MaxImages, cfg.Condition.FetchTimeout, cfg.Condition.MaxImageBytes),
		Scorer: ranking.Scorer{Threshold: cfg.Ranking.HotnessThreshold},
	}

	var gw *gateway.Gateway
	if !dry {
		var err error
		gw, err = buildGateway()
		if err != nil {
			return nil, nil, err
		}
		deps.Normalizer = normalize.New(gw, engine, normalize.Config{
			ConfidenceThreshold: cfg.Normalizer.ConfidenceThreshold,
			MaxTokens:           cfg.Gateway.MaxTokens,
		})
		deps.Grader = condition.NewAnalyzer(gw)
	}

	opts := pipeline.Options{
		PacingDelay:       cfg.Pipeline.PacingDelay,
		TargetConcurrency: cfg.Pipeline.TargetConcurrency,
		RetryBatchSize:    cfg.Pipeline.RetryBatchSize,
		DryRun:            dry,
	}
	return pipeline.New(deps, opts), gw, nil
}
