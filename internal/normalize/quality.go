package normalize

import (
	"math"
	"time"

	"github.com/TobiSchelling/BikeScout/internal/listing"
)

// completenessFields is the number of fact fields plus the price.
const completenessFields = 19

// Completeness is the share of populated fields, 0-100.
func Completeness(n listing.NormalizedListing) int {
	filled := n.Facts.Filled()
	if n.Raw.Price > 0 {
		filled++
	}
	return int(math.Round(float64(filled) / completenessFields * 100))
}

// ManualQuality scores how useful the listing itself is, independent of
// what was extracted from it.
func ManualQuality(n listing.NormalizedListing, now time.Time) int {
	score := 50
	if n.Facts.Brand != "" && n.Facts.Model != "" {
		score += 5
	}
	if n.Facts.Year > 0 && now.Year()-n.Facts.Year <= 5 {
		score += 5
	}
	if len(n.Raw.Images) > 2 {
		score += 5
	}
	if len(n.Raw.Description) > 200 {
		score += 5
	}
	if score > 80 {
		score = 80
	}
	if len(n.Raw.Images) == 0 {
		score -= 30
	}
	if len(n.Raw.Description) < 20 {
		score -= 10
	}
	return clamp(score, 0, 100)
}

// Blend combines the three quality signals: half listing quality, 30%
// completeness, 20% model confidence.
func Blend(manual, completeness int, confidence float64) int {
	q := 0.5*float64(manual) + 0.3*float64(completeness) + 0.2*confidence*100
	return clamp(int(math.Round(q)), 0, 100)
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
