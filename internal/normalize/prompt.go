package normalize

import (
	"fmt"
	"strings"

	"github.com/TobiSchelling/BikeScout/internal/listing"
)

const normalizePrompt = `You are checking a used bicycle listing from a German or European marketplace.

Known facts (already verified, do NOT re-derive or change them):
%s

Fill in ONLY these missing facts if the listing text or photos clearly show them:
%s

Also classify the bike and give a first impression of its condition.

Title: %s
Price: %.0f %s
Description:
%s

Respond with ONLY this JSON:
{
    "facts": {%s},
    "brand": "brand as written on the frame, or empty",
    "model": "model name without brand or year, or empty",
    "discipline": "mtb" | "road" | "gravel" | "city" | "trekking" | "kids" | "other",
    "sub_category": "e.g. enduro, trail, xc, downhill, dirt, endurance, aero, race, touring",
    "condition_hint": "one short sentence on visible condition",
    "visual_material": "carbon" | "aluminum" | "steel" | "titanium" | "",
    "listed_price": the asking price in the text as a number, or 0,
    "confidence": 0.0-1.0
}

confidence: 1.0 = every answer is stated in the listing, 0.5 = educated guesses, 0.0 = unreadable listing.`

const maxDescription = 3000

// askFields are the facts a model may fill. Components that are rarely in
// photos and never inferable are left to the rule table.
var askFields = []listing.Field{
	listing.FieldYear, listing.FieldFrameSize, listing.FieldWheelSize, listing.FieldFrameMaterial,
	listing.FieldSuspension, listing.FieldBrakesType, listing.FieldGroupset, listing.FieldDrivetrain,
	listing.FieldFork, listing.FieldShock, listing.FieldFrontTravel, listing.FieldRearTravel, listing.FieldColor,
}

// buildPrompt lists trusted facts for context and asks only for gaps.
func buildPrompt(raw listing.RawListing, base listing.NormalizedListing) (string, []listing.Field) {
	var known []string
	for _, f := range listing.FactFields {
		if v := base.Facts.Get(f); v != "" {
			known = append(known, fmt.Sprintf("- %s: %s", f, v))
		}
	}
	if len(known) == 0 {
		known = append(known, "- (none)")
	}

	var missing []listing.Field
	var names, keys []string
	for _, f := range askFields {
		if base.Facts.Get(f) != "" {
			continue
		}
		missing = append(missing, f)
		names = append(names, "- "+string(f))
		keys = append(keys, fmt.Sprintf(`"%s": ""`, f))
	}
	if len(names) == 0 {
		names = append(names, "- (none, only classify)")
	}

	desc, cut := listing.Truncate(raw.Description, maxDescription)
	if cut {
		desc += "..."
	}
	currency := raw.Currency
	if currency == "" {
		currency = "EUR"
	}

	prompt := fmt.Sprintf(normalizePrompt,
		strings.Join(known, "\n"),
		strings.Join(names, "\n"),
		raw.Title, raw.Price, currency, desc,
		strings.Join(keys, ", "))
	return prompt, missing
}
