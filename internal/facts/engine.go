// Package facts extracts a bike specification record from listing text
// without any network call. Every field is driven by one entry of the rule
// table in rules.go; Engine only walks that table.
package facts

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/TobiSchelling/BikeScout/internal/listing"
)

// Pattern is a free-text regex; Group selects the capture holding the value.
type Pattern struct {
	Re    *regexp.Regexp
	Group int
}

// Input is what a derivation step may look at.
type Input struct {
	Raw   listing.RawListing
	Text  string
	Facts *listing.ExtractedFacts
}

// Rule describes how to find one field. Strategies run in order: alias keys,
// labeled values, free patterns, then Derive once every other field has had
// its turn. The first strategy producing a value wins.
type Rule struct {
	Field   listing.Field
	Aliases []string
	Labels  []string
	// Patterns run against the normalized search text.
	Patterns []Pattern
	// Scan is a free-pattern strategy that needs the whole text at once,
	// such as tie-breaking between several material tokens.
	Scan func(text string) string
	// Classify maps a raw value onto the field's vocabulary.
	Classify func(value string) (string, bool)
	// Strict discards values Classify cannot map instead of keeping them.
	Strict bool
	// Display formats values read from the normalized (lowercased) text.
	Display func(value string) string
	Derive  func(in Input) string
}

// Engine applies a rule table to raw listings.
type Engine struct {
	rules     []Rule
	labelRes  map[listing.Field]*regexp.Regexp
	nextLabel *regexp.Regexp
	ownLabels map[listing.Field]map[string]bool
	year      int
}

// New builds an engine over the default rule table. Years up to one past
// the current calendar year are accepted.
func New() *Engine {
	return NewWithRules(DefaultRules(time.Now().Year()), time.Now().Year())
}

// NewWithRules builds an engine over an explicit rule table.
func NewWithRules(rules []Rule, currentYear int) *Engine {
	e := &Engine{
		rules:     rules,
		labelRes:  make(map[listing.Field]*regexp.Regexp),
		ownLabels: make(map[listing.Field]map[string]bool),
		year:      currentYear,
	}

	var all []string
	for _, r := range rules {
		if len(r.Labels) == 0 {
			continue
		}
		own := make(map[string]bool, len(r.Labels))
		for _, l := range r.Labels {
			own[l] = true
			all = append(all, l)
		}
		e.ownLabels[r.Field] = own
		e.labelRes[r.Field] = regexp.MustCompile(
			`(?:^|[^a-z0-9])(?:` + alternation(r.Labels) + `)\s*(?::|=|-\s)\s*(.{1,200})`)
	}
	e.nextLabel = regexp.MustCompile(`(?:^|[\s,;|(/])(` + alternation(all) + `)\b`)
	return e
}

// alternation joins labels longest first so that "federweg hinten" is
// preferred over "federweg" at the same position.
func alternation(labels []string) string {
	sorted := append([]string(nil), labels...)
	sort.Slice(sorted, func(i, j int) bool {
		if len(sorted[i]) != len(sorted[j]) {
			return len(sorted[i]) > len(sorted[j])
		}
		return sorted[i] < sorted[j]
	})
	quoted := make([]string, len(sorted))
	for i, l := range sorted {
		quoted[i] = regexp.QuoteMeta(l)
	}
	return strings.Join(quoted, "|")
}

// Extract mines the specification record from a raw listing. The result
// depends only on the listing text.
func (e *Engine) Extract(raw listing.RawListing) listing.ExtractedFacts {
	pairs := collectPairs(raw)
	text := searchText(raw, pairs)

	facts := listing.ExtractedFacts{Evidence: make(map[listing.Field]string)}
	for _, rule := range e.rules {
		if v, how := e.extractField(rule, pairs, text); v != "" {
			facts.Set(rule.Field, v)
			if facts.Get(rule.Field) != "" {
				facts.Evidence[rule.Field] = how
			}
		}
	}

	in := Input{Raw: raw, Text: text, Facts: &facts}
	for _, rule := range e.rules {
		if rule.Derive == nil || facts.Get(rule.Field) != "" {
			continue
		}
		if v := rule.Derive(in); v != "" {
			facts.Set(rule.Field, v)
			if facts.Get(rule.Field) != "" {
				facts.Evidence[rule.Field] = "derived"
			}
		}
	}
	return facts
}

func (e *Engine) extractField(rule Rule, pairs []pair, text string) (string, string) {
	// a. component key aliases
	for _, p := range pairs {
		if !containsString(rule.Aliases, p.key) {
			continue
		}
		if v := e.accept(rule, cleanValue(p.value, nil, nil), false); v != "" {
			return v, "alias:" + p.key
		}
	}

	// b. labeled values
	if re, ok := e.labelRes[rule.Field]; ok {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			v := cleanValue(m[1], e.nextLabel, e.ownLabels[rule.Field])
			if v = e.accept(rule, v, true); v != "" {
				return v, "label"
			}
		}
	}

	// c. free patterns
	for _, p := range rule.Patterns {
		for _, m := range p.Re.FindAllStringSubmatch(text, -1) {
			if p.Group >= len(m) {
				continue
			}
			v := cleanValue(m[p.Group], nil, nil)
			if v = e.accept(rule, v, true); v != "" {
				return v, "pattern"
			}
		}
	}
	if rule.Scan != nil {
		if v := rule.Scan(text); v != "" {
			return v, "pattern"
		}
	}
	return "", ""
}

// accept runs a candidate through the field vocabulary. Values from the
// normalized text get display casing; collector values keep theirs.
func (e *Engine) accept(rule Rule, v string, fromText bool) string {
	if v == "" {
		return ""
	}
	if rule.Field == listing.FieldYear {
		return validYear(v, e.year)
	}
	if rule.Classify != nil {
		if mapped, ok := rule.Classify(v); ok {
			return mapped
		}
		if rule.Strict {
			return ""
		}
	}
	if fromText && rule.Display != nil {
		return rule.Display(v)
	}
	return v
}

// Canonical maps a value supplied by another source onto the field's
// vocabulary. ok is false when nothing usable remains.
func (e *Engine) Canonical(field listing.Field, v string) (string, bool) {
	v = strings.TrimSpace(v)
	for _, rule := range e.rules {
		if rule.Field == field {
			out := e.accept(rule, v, false)
			return out, out != ""
		}
	}
	return v, v != ""
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
