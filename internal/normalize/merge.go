package normalize

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/TobiSchelling/BikeScout/internal/facts"
	"github.com/TobiSchelling/BikeScout/internal/listing"
)

// reply is the structured answer expected from the model.
type reply struct {
	Facts          map[string]any `json:"facts"`
	Brand          string         `json:"brand"`
	Model          string         `json:"model"`
	Discipline     string         `json:"discipline"`
	SubCategory    string         `json:"sub_category"`
	ConditionHint  string         `json:"condition_hint"`
	VisualMaterial string         `json:"visual_material"`
	ListedPrice    float64        `json:"listed_price"`
	Confidence     float64        `json:"confidence"`
}

var replySchema = map[string]any{
	"type":     "object",
	"required": []any{"confidence"},
	"properties": map[string]any{
		"facts": map[string]any{
			"type":                 []any{"object", "null"},
			"additionalProperties": map[string]any{"type": []any{"string", "number", "null"}},
		},
		"brand":           map[string]any{"type": []any{"string", "null"}},
		"model":           map[string]any{"type": []any{"string", "null"}},
		"discipline":      map[string]any{"type": []any{"string", "null"}},
		"sub_category":    map[string]any{"type": []any{"string", "null"}},
		"condition_hint":  map[string]any{"type": []any{"string", "null"}},
		"visual_material": map[string]any{"type": []any{"string", "null"}},
		"listed_price":    map[string]any{"type": []any{"number", "null"}},
		"confidence":      map[string]any{"type": "number", "minimum": 0},
	},
}

// value returns the model's answer for a fact field as a string.
func (r *reply) value(f listing.Field) string {
	switch f {
	case listing.FieldBrand:
		if r.Brand != "" {
			return strings.TrimSpace(r.Brand)
		}
	case listing.FieldModel:
		if r.Model != "" {
			return strings.TrimSpace(r.Model)
		}
	}
	v, ok := r.Facts[string(f)]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == 0 {
			return ""
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// Merge priority per field: collector, then rules, then model. Only the
// licensed fields may be corrected by the model after a deterministic source
// filled them.
var licensed = map[listing.Field]bool{
	listing.FieldBrand: true,
	listing.FieldModel: true,
}

// base merges the collector's trusted parse over the rule facts.
func base(raw listing.RawListing, f listing.ExtractedFacts, engine *facts.Engine) listing.NormalizedListing {
	out := listing.NormalizedListing{
		Raw:     raw,
		Facts:   f,
		Origins: make(map[listing.Field]listing.Origin),
	}
	out.Facts.Evidence = make(map[listing.Field]string, len(f.Evidence))
	for k, v := range f.Evidence {
		out.Facts.Evidence[k] = v
	}
	for _, field := range listing.FactFields {
		if out.Facts.Get(field) != "" {
			out.Origins[field] = listing.OriginRules
		}
	}

	trusted := map[listing.Field]string{
		listing.FieldBrand:     raw.Brand,
		listing.FieldModel:     raw.Model,
		listing.FieldFrameSize: raw.FrameSize,
		listing.FieldWheelSize: raw.WheelSize,
	}
	if raw.Year > 0 {
		trusted[listing.FieldYear] = strconv.Itoa(raw.Year)
	}
	for _, field := range listing.FactFields {
		v, ok := engine.Canonical(field, trusted[field])
		if !ok {
			continue
		}
		out.Facts.Set(field, v)
		out.Facts.Evidence[field] = "collector"
		out.Origins[field] = listing.OriginCollector
	}
	return out
}

// mergeReply gap-fills empty fields from the model and applies licensed
// corrections.
func mergeReply(n *listing.NormalizedListing, r *reply, engine *facts.Engine) {
	brandCorrected := false
	for _, field := range listing.FactFields {
		mv := r.value(field)
		if mv == "" {
			continue
		}
		canon, ok := engine.Canonical(field, mv)
		if !ok {
			continue
		}
		cur := n.Facts.Get(field)
		if cur == "" {
			n.Facts.Set(field, canon)
			n.Facts.Evidence[field] = "model"
			n.Origins[field] = listing.OriginModel
			continue
		}
		if !licensed[field] || cur == canon || n.Origins[field] == listing.OriginCollector {
			continue
		}

		correct := false
		switch field {
		case listing.FieldBrand:
			correct = !facts.KnownBrand(cur) && facts.KnownBrand(canon)
			brandCorrected = correct
		case listing.FieldModel:
			title := listing.NormalizeText(n.Raw.Title)
			correct = brandCorrected ||
				(n.Facts.Evidence[field] == "derived" && strings.Contains(title, listing.NormalizeText(canon)))
		}
		if !correct {
			continue
		}
		n.Conflicts = append(n.Conflicts, listing.Conflict{
			Field:    field,
			Severity: listing.SeverityLow,
			Detail:   fmt.Sprintf("corrected %q to %q", cur, canon),
		})
		n.Facts.Set(field, canon)
		n.Facts.Evidence[field] = "model"
		n.Origins[field] = listing.OriginModel
	}

	n.Discipline = strings.ToLower(strings.TrimSpace(r.Discipline))
	n.SubCategory = strings.ToLower(strings.TrimSpace(r.SubCategory))
	n.ConditionHint = strings.TrimSpace(r.ConditionHint)
}
