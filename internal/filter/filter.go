// Package filter is the cheap sanity gate that rejects listings which are
// not complete bikes before any model budget is spent on them.
package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/TobiSchelling/BikeScout/internal/listing"
)

// Rejection reasons.
const (
	ReasonTitleTooShort       = "title_too_short"
	ReasonPriceMissing        = "price_missing"
	ReasonPriceTooLow         = "price_too_low"
	ReasonPriceSuspiciousHigh = "price_suspicious_high"
	reasonTitleKillPrefix     = "title_kill:"
)

// Defaults used when Config leaves a bound unset.
const (
	DefaultMinPrice       = 300
	DefaultMaxPrice       = 15000
	DefaultMinTitleLength = 10
)

// frameTerms reject frame-only offers unless the title only talks about
// the frame height of a complete bike.
var frameTerms = []string{"rahmenset", "frameset", "rahmen", "frame"}

var frameSizeContext = []string{"rahmenhohe", "rahmengr", "rahmen gr", "frame size", "framesize"}

var denyTerms = []string{
	// wanted ads
	"suche", "gesucht", "wtb", "kaufe",
	// damaged
	"defekt", "kaputt", "bastler", "broken", "projekt",
	// parts only
	"ersatzteil", "ersatzteile", "teile", "laufradsatz", "laufrader", "laufrad",
	"gabel", "federgabel", "fork", "dampfer", "shock", "sattel", "saddle", "lenker", "handlebar",
	// trade
	"tausch", "trade",
	// motor vehicles and campers
	"mercedes", "bmw", "audi", "vw", "volkswagen", "auto", "kfz", "motorrad", "moped", "mofa",
	"roller", "motorroller", "scooter", "quad", "atv", "pitbike", "dirtbike", "supermoto",
	"hymer", "fiat", "ducato", "camper", "caravan", "wohnwagen", "wohnmobil", "kastenwagen",
}

var partsOnlyRe = regexp.MustCompile(`\bnur\s+(?:der\s+|die\s+|das\s+)?(rahmen|frame|gabel|fork|laufrad\w*|teile|dampfer|sattel|lenker)\b`)

// Config holds the filter bounds.
type Config struct {
	MinPrice       float64
	MaxPrice       float64
	MinTitleLength int
	ExtraDenyTerms []string
}

// Result is the outcome of a filter check.
type Result struct {
	Pass   bool
	Reason string
}

// Filter rejects obvious non-candidates. It is a pure function of its input.
type Filter struct {
	cfg   Config
	terms []*regexp.Regexp
	names []string
	frame []*regexp.Regexp
}

// New compiles a filter from cfg, applying defaults for zero bounds.
func New(cfg Config) *Filter {
	if cfg.MinPrice <= 0 {
		cfg.MinPrice = DefaultMinPrice
	}
	if cfg.MaxPrice <= 0 {
		cfg.MaxPrice = DefaultMaxPrice
	}
	if cfg.MinTitleLength <= 0 {
		cfg.MinTitleLength = DefaultMinTitleLength
	}

	f := &Filter{cfg: cfg}
	all := append(append([]string{}, denyTerms...), cfg.ExtraDenyTerms...)
	for _, term := range all {
		term = listing.NormalizeText(term)
		if term == "" {
			continue
		}
		f.terms = append(f.terms, wordRe(term))
		f.names = append(f.names, term)
	}
	for _, term := range frameTerms {
		f.frame = append(f.frame, wordRe(term))
	}
	return f
}

func wordRe(term string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(term) + `\b`)
}

// Check evaluates title length, title deny terms and price bounds, in that
// order. Deny terms are matched against the title only; descriptions mention
// forks and shocks of complete bikes all the time.
func (f *Filter) Check(title string, price float64) Result {
	if len([]rune(strings.TrimSpace(title))) < f.cfg.MinTitleLength {
		return Result{Reason: ReasonTitleTooShort}
	}

	t := listing.NormalizeText(title)
	if term, ok := f.killTerm(t); ok {
		return Result{Reason: reasonTitleKillPrefix + term}
	}

	switch {
	case price <= 0:
		return Result{Reason: ReasonPriceMissing}
	case price < f.cfg.MinPrice:
		return Result{Reason: ReasonPriceTooLow}
	case price > f.cfg.MaxPrice:
		return Result{Reason: ReasonPriceSuspiciousHigh}
	}
	return Result{Pass: true}
}

// CheckListing is Check applied to a raw listing.
func (f *Filter) CheckListing(raw listing.RawListing) Result {
	return f.Check(raw.Title, raw.Price)
}

func (f *Filter) killTerm(title string) (string, bool) {
	if !hasAny(title, frameSizeContext) {
		for i, re := range f.frame {
			if re.MatchString(title) {
				return frameTerms[i], true
			}
		}
	}
	if m := partsOnlyRe.FindStringSubmatch(title); m != nil {
		return "nur " + m[1], true
	}
	for i, re := range f.terms {
		if re.MatchString(title) {
			return f.names[i], true
		}
	}
	return "", false
}

func hasAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// IsTitleKill reports whether reason was produced by a title deny term.
func IsTitleKill(reason string) bool {
	return strings.HasPrefix(reason, reasonTitleKillPrefix)
}

func (r Result) String() string {
	if r.Pass {
		return "pass"
	}
	return fmt.Sprintf("reject(%s)", r.Reason)
}
