package normalize

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/TobiSchelling/BikeScout/internal/facts"
	"github.com/TobiSchelling/BikeScout/internal/listing"
)

// arbitrate compares the merged record with the model's own answers and
// flags contradictions. High-severity conflicts and missing key fields send
// the listing to manual review. r may be nil when the model did not answer.
func arbitrate(n *listing.NormalizedListing, r *reply, engine *facts.Engine) {
	if r != nil {
		checkYear(n, r)
		checkMaterial(n, r, engine)
		checkPrice(n, r)
		checkFrameSize(n, r, engine)
	}

	if n.Facts.Brand == "" {
		n.AddReview("missing_brand")
	}
	if n.Facts.Model == "" {
		n.AddReview("missing_model")
	}
	if n.Raw.Price <= 0 {
		n.AddReview("missing_price")
	}
	for _, c := range n.Conflicts {
		if c.Severity == listing.SeverityHigh {
			n.AddReview(string(c.Field) + "_conflict")
		}
	}
}

func conflict(n *listing.NormalizedListing, f listing.Field, severity, format string, args ...any) {
	n.Conflicts = append(n.Conflicts, listing.Conflict{Field: f, Severity: severity, Detail: fmt.Sprintf(format, args...)})
}

func checkYear(n *listing.NormalizedListing, r *reply) {
	y, _ := strconv.Atoi(r.value(listing.FieldYear))
	if y == 0 || n.Facts.Year == 0 {
		return
	}
	if d := y - n.Facts.Year; d > 1 || d < -1 {
		conflict(n, listing.FieldYear, listing.SeverityLow, "text says %d, model says %d", n.Facts.Year, y)
	}
}

func checkMaterial(n *listing.NormalizedListing, r *reply, engine *facts.Engine) {
	if n.Facts.FrameMaterial == "" || n.Origins[listing.FieldFrameMaterial] == listing.OriginModel {
		return
	}
	seen := r.VisualMaterial
	if seen == "" {
		seen = r.value(listing.FieldFrameMaterial)
	}
	m, ok := engine.Canonical(listing.FieldFrameMaterial, seen)
	if !ok || m == n.Facts.FrameMaterial {
		return
	}
	conflict(n, listing.FieldFrameMaterial, listing.SeverityHigh, "text says %s, model sees %s", n.Facts.FrameMaterial, m)
}

const priceTolerance = 0.20

func checkPrice(n *listing.NormalizedListing, r *reply) {
	if r.ListedPrice <= 0 || n.Raw.Price <= 0 {
		return
	}
	if math.Abs(r.ListedPrice-n.Raw.Price)/n.Raw.Price > priceTolerance {
		conflict(n, "price", listing.SeverityHigh, "listed %.0f, model read %.0f", n.Raw.Price, r.ListedPrice)
	}
}

var sizeNumberRe = regexp.MustCompile(`^(\d+(?:\.\d)?)\s?(cm|")$`)

func checkFrameSize(n *listing.NormalizedListing, r *reply, engine *facts.Engine) {
	if n.Facts.FrameSize == "" || n.Origins[listing.FieldFrameSize] == listing.OriginModel {
		return
	}
	theirs, ok := engine.Canonical(listing.FieldFrameSize, r.value(listing.FieldFrameSize))
	if !ok || sizesAgree(n.Facts.FrameSize, theirs) {
		return
	}
	conflict(n, listing.FieldFrameSize, listing.SeverityWarning, "text says %s, model says %s", n.Facts.FrameSize, theirs)
}

// sizesAgree treats letter sizes as equal when they share a letter (so M/L
// agrees with L) and measurements as equal within 2 cm. A letter and a
// measurement cannot be compared and never conflict.
func sizesAgree(a, b string) bool {
	am, bm := sizeNumberRe.FindStringSubmatch(a), sizeNumberRe.FindStringSubmatch(b)
	switch {
	case am != nil && bm != nil:
		x, _ := strconv.ParseFloat(am[1], 64)
		y, _ := strconv.ParseFloat(bm[1], 64)
		if am[2] == `"` {
			x *= 2.54
		}
		if bm[2] == `"` {
			y *= 2.54
		}
		return math.Abs(x-y) <= 2
	case am != nil || bm != nil:
		return true
	}
	for _, x := range strings.Split(a, "/") {
		for _, y := range strings.Split(b, "/") {
			if x == y {
				return true
			}
		}
	}
	return false
}
