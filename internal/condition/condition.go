// Package condition grades the physical condition of a bike from a few
// listing photos.
package condition

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/TobiSchelling/BikeScout/internal/gateway"
	"github.com/TobiSchelling/BikeScout/internal/listing"
	"github.com/TobiSchelling/BikeScout/internal/llm"
)

const conditionPrompt = `You are inspecting photos of a used bicycle offered for sale.

Known specification (use it as context, do NOT report components that are not listed or visible):
%s

Title: %s
Seller's description (may be optimistic):
%s

Grade the condition with this rubric:
- "A" (score 80-100): technically ready to ride, recently serviced or barely used
- "B" (score 41-79): usable, needs routine maintenance (drivetrain wear, brake pads, tyres)
- "C" (score 0-40): needs repair or replacement parts before it can be ridden safely

Respond with ONLY this JSON:
{
    "score": 0-100,
    "grade": "A" | "B" | "C",
    "functional_rating": 1-5,
    "visual_rating": 1-5,
    "rationale": "two or three sentences naming concrete things you saw in the photos",
    "defects": ["specific defect", "..."],
    "flags": ["photos_do_not_match_description", "stock_photos", "frame_damage_suspected"]
}

Only include flags that apply. Use an empty list when you see no defects.`

const maxContextDescription = 1500

var reportSchema = map[string]any{
	"type":     "object",
	"required": []any{"score", "rationale"},
	"properties": map[string]any{
		"score":             map[string]any{"type": "number"},
		"grade":             map[string]any{"type": []any{"string", "null"}},
		"functional_rating": map[string]any{"type": []any{"number", "null"}},
		"visual_rating":     map[string]any{"type": []any{"number", "null"}},
		"rationale":         map[string]any{"type": "string"},
		"defects":           map[string]any{"type": []any{"array", "null"}, "items": map[string]any{"type": "string"}},
		"flags":             map[string]any{"type": []any{"array", "null"}, "items": map[string]any{"type": "string"}},
	},
}

type report struct {
	Score      float64  `json:"score"`
	Grade      string   `json:"grade"`
	Functional float64  `json:"functional_rating"`
	Visual     float64  `json:"visual_rating"`
	Rationale  string   `json:"rationale"`
	Defects    []string `json:"defects"`
	Flags      []string `json:"flags"`
}

// Invoker is the model gateway as seen by the analyzer.
type Invoker interface {
	Invoke(ctx context.Context, req llm.Request) (string, error)
}

// Analyzer grades listings through the model gateway.
type Analyzer struct {
	inv       Invoker
	maxTokens int
}

// NewAnalyzer creates a condition analyzer.
func NewAnalyzer(inv Invoker) *Analyzer {
	return &Analyzer{inv: inv, maxTokens: 1024}
}

// Default is the conservative report used whenever grading is not possible.
func Default(reason string) listing.ConditionReport {
	return listing.ConditionReport{
		Score:      60,
		Grade:      listing.GradeB,
		Functional: 3,
		Visual:     3,
		Rationale:  "No condition assessment was possible: " + reason,
		Degraded:   true,
	}
}

// Analyze grades n from images. Without images, or when the model fails,
// the default report is returned. Only fatal gateway errors are returned,
// together with the default report.
func (a *Analyzer) Analyze(ctx context.Context, n listing.NormalizedListing, images []llm.Image) (listing.ConditionReport, error) {
	if len(images) == 0 {
		return Default("no usable images"), nil
	}
	if len(images) > 3 {
		images = images[:3]
	}

	req := llm.Request{
		Prompt:      buildPrompt(n),
		Images:      images,
		MaxTokens:   a.maxTokens,
		Temperature: 0.2,
		JSON:        true,
	}
	text, err := a.inv.Invoke(ctx, req)
	if err != nil {
		if gateway.IsFatal(err) {
			return Default("model budget unavailable"), err
		}
		log.Printf("Condition grading failed for %s: %v", n.Raw.Key(), err)
		return Default("model call failed"), nil
	}

	var r report
	if err := llm.DecodeReply(text, reportSchema, &r); err != nil {
		log.Printf("Condition reply for %s unusable: %v", n.Raw.Key(), err)
		return Default("model reply was malformed"), nil
	}
	return r.toReport(), nil
}

func buildPrompt(n listing.NormalizedListing) string {
	var spec []string
	for _, f := range listing.FactFields {
		if v := n.Facts.Get(f); v != "" {
			spec = append(spec, fmt.Sprintf("- %s: %s", f, v))
		}
	}
	if len(spec) == 0 {
		spec = append(spec, "- (unknown)")
	}
	desc, cut := listing.Truncate(n.Raw.Description, maxContextDescription)
	if cut {
		desc += "..."
	}
	return fmt.Sprintf(conditionPrompt, strings.Join(spec, "\n"), n.Raw.Title, desc)
}

// gradeRange is the score sub-range each grade is bound to.
var gradeRange = map[string][2]int{
	listing.GradeA: {80, 100},
	listing.GradeB: {41, 79},
	listing.GradeC: {0, 40},
}

// GradeFor maps a score onto the rubric.
func GradeFor(score int) string {
	switch {
	case score >= 80:
		return listing.GradeA
	case score <= 40:
		return listing.GradeC
	default:
		return listing.GradeB
	}
}

func (r report) toReport() listing.ConditionReport {
	s := r.Score
	if s > 0 && s <= 10 {
		s *= 10
	}
	score := clamp(int(math.Round(s)), 0, 100)

	grade := strings.ToUpper(strings.TrimSpace(r.Grade))
	if rng, ok := gradeRange[grade]; ok {
		score = clamp(score, rng[0], rng[1])
	} else {
		grade = GradeFor(score)
	}

	out := listing.ConditionReport{
		Score:      score,
		Grade:      grade,
		Functional: rating(r.Functional),
		Visual:     rating(r.Visual),
		Rationale:  strings.TrimSpace(r.Rationale),
		Defects:    dedupe(r.Defects),
		Flags:      dedupe(r.Flags),
	}
	if len(out.Rationale) < 20 {
		out.Flags = append(out.Flags, "generic_rationale")
	}
	return out
}

// rating clamps a sub-rating to 1-5; a missing rating counts as 3.
func rating(v float64) int {
	if v == 0 {
		return 3
	}
	return clamp(int(math.Round(v)), 1, 5)
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, it := range items {
		it = strings.TrimSpace(it)
		key := strings.ToLower(it)
		if it == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, it)
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
