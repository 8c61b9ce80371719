package facts

import (
	"regexp"
	"strings"

	"github.com/TobiSchelling/BikeScout/internal/listing"
)

const maxValueLen = 80

var (
	residualValueRe = regexp.MustCompile(`"value"\s*:\s*"([^"]*)"`)
	sentenceEndRe   = regexp.MustCompile(`[.!?](?:\s|$)|\s[;|]|;|\|`)
)

// cleanValue strips serialization residue from an extracted value and cuts
// it where the next field's label begins, so an over-eager capture does not
// bleed into the neighbouring field.
func cleanValue(v string, nextLabel *regexp.Regexp, own map[string]bool) string {
	if m := residualValueRe.FindStringSubmatch(v); m != nil {
		v = m[1]
	}
	v = strings.NewReplacer(`\"`, " ", `"`, " ", "{", " ", "}", " ", "[", " ", "]", " ").Replace(v)

	if nextLabel != nil {
		for _, loc := range nextLabel.FindAllStringSubmatchIndex(v, -1) {
			label := v[loc[2]:loc[3]]
			if loc[2] == 0 || own[label] {
				continue
			}
			v = v[:loc[0]]
			break
		}
	}

	if loc := sentenceEndRe.FindStringIndex(v); loc != nil && loc[0] > 0 {
		v = v[:loc[0]]
	}

	v = strings.Join(strings.Fields(v), " ")
	v = strings.Trim(v, " .,;:-/|()")
	if head, cut := listing.Truncate(v, maxValueLen); cut {
		if i := strings.LastIndex(head, " "); i > 0 {
			head = head[:i]
		}
		v = strings.TrimRight(head, " .,;:-/|(")
	}
	return v
}
