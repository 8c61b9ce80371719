package listing

import (
	"regexp"
	"strconv"
	"strings"
)

var priceNumberRe = regexp.MustCompile(`\d{1,3}(?:[.,' ]\d{3})+(?:[.,]\d{1,2})?|\d+(?:[.,]\d{1,2})?`)

// ParsePrice reads the first amount in s, accepting both German
// ("1.200,50 €") and English ("1,200.50") separators. It returns false when
// no positive amount is found.
func ParsePrice(s string) (float64, bool) {
	m := priceNumberRe.FindString(s)
	if m == "" {
		return 0, false
	}
	m = strings.NewReplacer(" ", "", "'", "").Replace(m)

	lastDot := strings.LastIndex(m, ".")
	lastComma := strings.LastIndex(m, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			m = strings.ReplaceAll(m, ".", "")
			m = strings.Replace(m, ",", ".", 1)
		} else {
			m = strings.ReplaceAll(m, ",", "")
		}
	case lastComma >= 0:
		m = resolveSeparator(m, ",")
	case lastDot >= 0:
		m = resolveSeparator(m, ".")
	}

	v, err := strconv.ParseFloat(m, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// resolveSeparator decides whether sep groups thousands or marks decimals.
// A separator that repeats, or occurs once followed by exactly three digits,
// groups thousands.
func resolveSeparator(m, sep string) string {
	parts := strings.Split(m, sep)
	if len(parts) > 2 || len(parts[len(parts)-1]) == 3 {
		return strings.Join(parts, "")
	}
	return strings.Join(parts, ".")
}
