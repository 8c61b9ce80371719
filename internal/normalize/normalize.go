// Package normalize fills the gaps the rule table leaves using the external
// model, without letting the model overwrite deterministic facts.
package normalize

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/TobiSchelling/BikeScout/internal/facts"
	"github.com/TobiSchelling/BikeScout/internal/gateway"
	"github.com/TobiSchelling/BikeScout/internal/listing"
	"github.com/TobiSchelling/BikeScout/internal/llm"
)

// Invoker is the model gateway as seen by the normalizer.
type Invoker interface {
	Invoke(ctx context.Context, req llm.Request) (string, error)
}

// Config holds normalizer settings.
type Config struct {
	ConfidenceThreshold float64
	MaxTokens           int
}

// Normalizer merges deterministic facts with model answers.
type Normalizer struct {
	inv    Invoker
	engine *facts.Engine
	cfg    Config
	now    func() time.Time
}

// New creates a normalizer.
func New(inv Invoker, engine *facts.Engine, cfg Config) *Normalizer {
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = 0.6
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	return &Normalizer{inv: inv, engine: engine, cfg: cfg, now: time.Now}
}

// deterministic builds the record from collector and rule facts alone.
func (n *Normalizer) deterministic(raw listing.RawListing, f listing.ExtractedFacts) listing.NormalizedListing {
	out := base(raw, f, n.engine)
	arbitrate(&out, nil, n.engine)
	n.score(&out)
	return out
}

// Normalize asks the model for missing facts and merges its answer. images
// are sent with the first attempt; a text-only attempt follows if that
// fails. When both fail the listing keeps its deterministic facts and is
// marked low-confidence. Only budget exhaustion and authorization failures
// are returned as errors.
func (n *Normalizer) Normalize(ctx context.Context, raw listing.RawListing, f listing.ExtractedFacts, images []llm.Image) (listing.NormalizedListing, error) {
	out := base(raw, f, n.engine)
	prompt, asked := buildPrompt(raw, out)

	r, err := n.ask(ctx, prompt, images)
	if err != nil {
		if gateway.IsFatal(err) {
			return out, err
		}
		log.Printf("Normalizer falling back to rule facts for %s: %v", raw.Key(), err)
		out = n.deterministic(raw, f)
		out.LowConfidence = true
		out.AddReview("model_unavailable")
		return out, nil
	}

	mergeReply(&out, r, n.engine)
	if gaps := unfilled(out, asked); len(gaps) > 0 {
		log.Printf("Model left %d of %d requested fields empty for %s: %v", len(gaps), len(asked), raw.Key(), gaps)
	}
	out.Confidence = normalizeConfidence(r.Confidence)
	if out.Confidence < n.cfg.ConfidenceThreshold {
		out.LowConfidence = true
		out.AddReview("low_confidence")
	}
	arbitrate(&out, r, n.engine)
	n.score(&out)
	return out, nil
}

func (n *Normalizer) ask(ctx context.Context, prompt string, images []llm.Image) (*reply, error) {
	req := llm.Request{Prompt: prompt, Images: images, MaxTokens: n.cfg.MaxTokens, Temperature: 0.1, JSON: true}

	r, err := n.call(ctx, req)
	if err == nil || len(images) == 0 || gateway.IsFatal(err) {
		return r, err
	}
	log.Printf("Multimodal normalization failed, retrying text-only: %v", err)
	req.Images = nil
	return n.call(ctx, req)
}

func (n *Normalizer) call(ctx context.Context, req llm.Request) (*reply, error) {
	text, err := n.inv.Invoke(ctx, req)
	if err != nil {
		return nil, err
	}
	var r reply
	if err := llm.DecodeReply(text, replySchema, &r); err != nil {
		return nil, fmt.Errorf("malformed model reply: %w", err)
	}
	return &r, nil
}

// unfilled returns the requested fields that are still empty.
func unfilled(out listing.NormalizedListing, asked []listing.Field) []listing.Field {
	var gaps []listing.Field
	for _, f := range asked {
		if out.Facts.Get(f) == "" {
			gaps = append(gaps, f)
		}
	}
	return gaps
}

func (n *Normalizer) score(out *listing.NormalizedListing) {
	out.Completeness = Completeness(*out)
	out.Quality = Blend(ManualQuality(*out, n.now()), out.Completeness, out.Confidence)
}

// normalizeConfidence accepts 0-1 or 0-100 answers.
func normalizeConfidence(c float64) float64 {
	if c > 1 {
		c /= 100
	}
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
