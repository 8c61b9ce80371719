package listing

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var quoteReplacer = strings.NewReplacer(
	"ß", "ss",
	"″", `"`,
	"“", `"`,
	"”", `"`,
	"„", `"`,
	"’", "'",
	"–", "-",
	"—", "-",
)

// NormalizeText folds diacritics, lowercases and collapses whitespace so that
// "Dämpfer:  RockShox" and "dampfer: rockshox" compare equal.
func NormalizeText(s string) string {
	s = quoteReplacer.Replace(s)
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// Truncate cuts s to at most n runes and reports whether anything was cut.
func Truncate(s string, n int) (string, bool) {
	if n <= 0 {
		return "", s != ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos], true
		}
		i++
	}
	return s, false
}
