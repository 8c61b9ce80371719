// Package ranking scores how quickly a profitable listing is likely to sell.
package ranking

import (
	"math"
	"time"
)

// DefaultThreshold is the hotness above which a listing is flagged.
const DefaultThreshold = 1000

// minHours keeps brand-new listings from producing unbounded velocity.
const minHours = 0.5

// Score is the ranking of one listing.
type Score struct {
	Profit   float64
	Velocity float64
	Hotness  int
	Hot      bool
}

// Hotness returns profit × velocity, rounded, where profit is max(0,
// fmv−price) and velocity is views per hour since publishing.
func Hotness(fmv, price float64, views int, hours float64) int {
	profit := math.Max(0, fmv-price)
	return int(math.Round(profit * velocity(views, hours)))
}

func velocity(views int, hours float64) float64 {
	return float64(views) / math.Max(minHours, hours)
}

// HoursSince returns the age of a listing at now. A listing without a
// publish time counts as published now, so velocity takes the minHours floor.
func HoursSince(published *time.Time, now time.Time) float64 {
	if published == nil || published.IsZero() {
		return 0
	}
	h := now.Sub(*published).Hours()
	if h < 0 {
		return 0
	}
	return h
}

// Scorer flags listings above a hotness threshold.
type Scorer struct {
	Threshold int
}

// Rank scores a listing. Without an FMV there is no profit and the score is
// zero.
func (s Scorer) Rank(fmv *float64, price float64, views int, published *time.Time, now time.Time) Score {
	threshold := s.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	hours := HoursSince(published, now)
	out := Score{Velocity: velocity(views, hours)}
	if fmv == nil {
		return out
	}
	out.Profit = math.Max(0, *fmv-price)
	out.Hotness = Hotness(*fmv, price, views, hours)
	out.Hot = out.Hotness >= threshold
	return out
}
