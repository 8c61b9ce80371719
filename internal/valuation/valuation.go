// Package valuation estimates fair market value from comparable sales and
// decides whether a price is low enough to act on.
package valuation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/TobiSchelling/BikeScout/internal/listing"
)

// ErrInsufficientComparables means fewer than the minimum number of
// comparable sales exist for a brand and model.
var ErrInsufficientComparables = errors.New("valuation: insufficient comparables")

// HistorySource returns recent comparable prices, newest first.
type HistorySource interface {
	RecentPrices(ctx context.Context, brand, model string, limit int) ([]float64, error)
}

// Config holds valuation settings.
type Config struct {
	MaxComparables   int
	MinSamples       int
	ShippingDiscount float64
	PickupDiscount   float64
}

// DefaultConfig returns the standard valuation settings.
func DefaultConfig() Config {
	return Config{MaxComparables: 50, MinSamples: 3, ShippingDiscount: 0.15, PickupDiscount: 0.25}
}

// Service computes valuations.
type Service struct {
	history HistorySource
	cfg     Config
}

// NewService creates a valuation service. Zero config fields take defaults.
func NewService(history HistorySource, cfg Config) *Service {
	def := DefaultConfig()
	if cfg.MaxComparables <= 0 {
		cfg.MaxComparables = def.MaxComparables
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = def.MinSamples
	}
	if cfg.ShippingDiscount <= 0 {
		cfg.ShippingDiscount = def.ShippingDiscount
	}
	if cfg.PickupDiscount <= 0 {
		cfg.PickupDiscount = def.PickupDiscount
	}
	return &Service{history: history, cfg: cfg}
}

// Estimate is an FMV together with the spread of the comparables behind it.
type Estimate struct {
	FMV        float64
	Samples    int
	Trimmed    int
	Q1, Q3     float64
	Confidence float64
}

// minTrimSamples is the smallest comparable set that gets outlier trimming.
const minTrimSamples = 4

// Estimate loads the most recent comparables, drops prices outside 1.5 IQR
// of the quartiles and takes the median of the rest. Samples in the error
// case is the untrimmed count.
func (s *Service) Estimate(ctx context.Context, brand, model string) (Estimate, error) {
	brand, model = strings.TrimSpace(brand), strings.TrimSpace(model)
	if brand == "" || model == "" {
		return Estimate{}, ErrInsufficientComparables
	}
	prices, err := s.history.RecentPrices(ctx, brand, model, s.cfg.MaxComparables)
	if err != nil {
		return Estimate{}, fmt.Errorf("loading comparables: %w", err)
	}
	if len(prices) > s.cfg.MaxComparables {
		prices = prices[:s.cfg.MaxComparables]
	}
	if len(prices) < s.cfg.MinSamples {
		return Estimate{Samples: len(prices)}, ErrInsufficientComparables
	}

	kept := TrimOutliers(prices)
	return Estimate{
		FMV:        Median(kept),
		Samples:    len(kept),
		Trimmed:    len(prices) - len(kept),
		Q1:         Percentile(kept, 25),
		Q3:         Percentile(kept, 75),
		Confidence: Confidence(kept),
	}, nil
}

// FMV returns the trimmed median of the most recent comparable prices and
// the sample count.
func (s *Service) FMV(ctx context.Context, brand, model string) (float64, int, error) {
	e, err := s.Estimate(ctx, brand, model)
	return e.FMV, e.Samples, err
}

// Median returns the median of prices; the input is not modified.
func Median(prices []float64) float64 {
	if len(prices) == 0 {
		return 0
	}
	sorted := append([]float64(nil), prices...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// Percentile returns the p-th percentile with linear interpolation between
// the closest ranks.
func Percentile(prices []float64, p float64) float64 {
	if len(prices) == 0 {
		return 0
	}
	sorted := append([]float64(nil), prices...)
	sort.Float64s(sorted)
	idx := p / 100 * float64(len(sorted)-1)
	lo, hi := int(math.Floor(idx)), int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	w := idx - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}

// TrimOutliers drops prices outside [Q1-1.5*IQR, Q3+1.5*IQR]. Sets smaller
// than four are returned unchanged.
func TrimOutliers(prices []float64) []float64 {
	if len(prices) < minTrimSamples {
		return prices
	}
	q1, q3 := Percentile(prices, 25), Percentile(prices, 75)
	iqr := q3 - q1
	lo, hi := q1-1.5*iqr, q3+1.5*iqr
	kept := make([]float64, 0, len(prices))
	for _, p := range prices {
		if p >= lo && p <= hi {
			kept = append(kept, p)
		}
	}
	return kept
}

// Confidence rates an estimate from 0 to 1 by sample size, reduced when the
// prices are widely spread (coefficient of variation above 0.3 and 0.5).
func Confidence(prices []float64) float64 {
	n := len(prices)
	var c float64
	switch {
	case n >= 20:
		c = 0.95
	case n >= 10:
		c = 0.85
	case n >= 5:
		c = 0.75
	case n >= 3:
		c = 0.60
	default:
		c = 0.40
	}
	if n < 3 {
		return c
	}

	var sum float64
	for _, p := range prices {
		sum += p
	}
	mean := sum / float64(n)
	if mean <= 0 {
		return c
	}
	var sq float64
	for _, p := range prices {
		sq += (p - mean) * (p - mean)
	}
	cv := math.Sqrt(sq/float64(n)) / mean
	if cv > 0.3 {
		c *= 0.9
	}
	if cv > 0.5 {
		c *= 0.8
	}
	return math.Round(c*100) / 100
}

// Discount returns the required discount for a delivery mode. Listings with
// unknown delivery are treated as pickup-only.
func (s *Service) Discount(mode listing.DeliveryMode) float64 {
	if mode == listing.DeliveryShipping {
		return s.cfg.ShippingDiscount
	}
	return s.cfg.PickupDiscount
}

// PreCheck is the optimistic phase-one test using the shipping threshold,
// run before the delivery mode is confirmed.
func (s *Service) PreCheck(fmv, price float64) listing.Verdict {
	return s.check(fmv, price, s.cfg.ShippingDiscount, "pre-check")
}

// Check is the refined sniper test for a confirmed delivery mode.
func (s *Service) Check(fmv, price float64, mode listing.DeliveryMode) listing.Verdict {
	label := string(mode)
	if mode == listing.DeliveryUnknown {
		label = "unknown delivery"
	}
	return s.check(fmv, price, s.Discount(mode), label)
}

const epsilon = 1e-6

func (s *Service) check(fmv, price, discount float64, label string) listing.Verdict {
	if fmv <= 0 || price <= 0 {
		return listing.Verdict{Reason: "no fair market value"}
	}
	threshold := math.Round(fmv*(1-discount)*100) / 100
	v := listing.Verdict{Threshold: threshold}
	if price <= threshold+epsilon {
		v.Hit = true
		v.Reason = fmt.Sprintf("%s: price %.0f at or below %.0f (%.0f%% under FMV %.0f)", label, price, threshold, discount*100, fmv)
	} else {
		v.Reason = fmt.Sprintf("%s: price %.0f above %.0f", label, price, threshold)
	}
	return v
}

// conditionPenalty reduces FMV for the graded condition.
var conditionPenalty = map[string]float64{
	listing.GradeA: 0,
	listing.GradeB: 0.15,
	listing.GradeC: 0.30,
}

// AdjustedFMV is an informational value: FMV less the condition penalty.
func AdjustedFMV(fmv float64, grade string) float64 {
	return math.Round(fmv*(1-conditionPenalty[grade])*100) / 100
}

// Valuate computes the full valuation for a listing. Missing comparables
// are not an error: the result simply has no FMV and no verdict can hit.
func (s *Service) Valuate(ctx context.Context, n listing.NormalizedListing, report *listing.ConditionReport) (listing.ValuationResult, error) {
	mode := listing.ParseDelivery(n.Raw.Delivery)
	res := listing.ValuationResult{Delivery: mode}

	e, err := s.Estimate(ctx, n.Facts.Brand, n.Facts.Model)
	res.Samples = e.Samples
	if errors.Is(err, ErrInsufficientComparables) {
		res.Sniper = listing.Verdict{Reason: fmt.Sprintf("only %d comparables", e.Samples)}
		return res, nil
	}
	if err != nil {
		return res, err
	}

	fmv := e.FMV
	res.FMV = &fmv
	res.Trimmed = e.Trimmed
	res.Range = &listing.PriceRange{Q1: e.Q1, Q3: e.Q3}
	res.Confidence = e.Confidence
	res.DiscountPct = math.Round((fmv-n.Raw.Price)/fmv*1000) / 10
	if report != nil {
		adj := AdjustedFMV(fmv, report.Grade)
		res.AdjustedFMV = &adj
	}
	res.Sniper = s.Check(fmv, n.Raw.Price, mode)
	return res, nil
}
