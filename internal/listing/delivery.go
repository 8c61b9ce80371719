package listing

import (
	"regexp"
	"strings"
)

// DeliveryMode says how a buyer receives the item.
type DeliveryMode string

const (
	DeliveryUnknown  DeliveryMode = ""
	DeliveryShipping DeliveryMode = "shipping"
	DeliveryPickup   DeliveryMode = "pickup"
)

var (
	pickupTerms   = []string{"nur abholung", "nur selbstabholung", "pickup only", "pick-up only", "local pickup only", "keine versand", "kein versand", "no shipping"}
	shippingTerms = []string{"versand moglich", "versand", "shipping", "delivery", "lieferung", "verschicken", "ship"}

	// "kein versand", "versand nicht moglich", "shipping not available", "does not ship"
	negatedShippingRe = regexp.MustCompile(
		`\b(?:kein|keine|keinen|no|not|nicht|ohne)\s+(?:versand|shipping|ship|lieferung|delivery|verschicken)\b` +
			`|\b(?:versand|shipping|lieferung|delivery|verschicken)\s+(?:ist\s+|is\s+|leider\s+)?(?:nicht|not|kein|keine|no|unavailable)\b`)
)

// ParseDelivery classifies a delivery descriptor. Pickup-only phrases and
// negated shipping phrases are checked first because they contain the word
// for shipping too.
func ParseDelivery(descriptor string) DeliveryMode {
	d := NormalizeText(descriptor)
	if d == "" {
		return DeliveryUnknown
	}
	for _, t := range pickupTerms {
		if strings.Contains(d, t) {
			return DeliveryPickup
		}
	}
	if negatedShippingRe.MatchString(strings.ReplaceAll(d, "kein problem", "moglich")) {
		return DeliveryPickup
	}
	for _, t := range shippingTerms {
		if strings.Contains(d, t) {
			return DeliveryShipping
		}
	}
	if strings.Contains(d, "abholung") || strings.Contains(d, "pickup") {
		return DeliveryPickup
	}
	return DeliveryUnknown
}
