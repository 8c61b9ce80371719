package facts

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/TobiSchelling/BikeScout/internal/listing"
)

type pair struct {
	key   string // normalized
	value string // as supplied
}

var (
	kvObjectRe = regexp.MustCompile(`\{\s*"key"\s*:\s*"((?:[^"\\]|\\.)*)"\s*,\s*"value"\s*:\s*"((?:[^"\\]|\\.)*)"\s*\}`)
	kvPairRe   = regexp.MustCompile(`"((?:[^"\\]|\\.){2,40})"\s*:\s*"((?:[^"\\]|\\.){1,200})"`)
)

// collectPairs flattens explicit attributes, nested component maps and
// serialized key/value fragments found in free text into one ordered list.
// When a key repeats, the first occurrence is kept.
func collectPairs(raw listing.RawListing) []pair {
	var pairs []pair
	seen := make(map[string]bool)
	add := func(k, v string) {
		key := normalizeKey(k)
		v = strings.TrimSpace(v)
		if key == "" || v == "" || seen[key] {
			return
		}
		seen[key] = true
		pairs = append(pairs, pair{key: key, value: v})
	}

	for _, a := range raw.Attributes {
		add(a.Key, a.Value)
	}
	for _, c := range raw.Components {
		add(c.Key, c.Value)
	}

	blobs := []string{raw.Description}
	for _, a := range raw.Attributes {
		blobs = append(blobs, a.Value)
	}
	for _, blob := range blobs {
		for _, kv := range serializedPairs(blob) {
			add(kv[0], kv[1])
		}
	}
	return pairs
}

// serializedPairs finds {"key":"…","value":"…"} objects and bare "k":"v"
// members in text that was scraped from embedded JSON, unescaping both.
func serializedPairs(blob string) [][2]string {
	if !strings.Contains(blob, `"`) {
		return nil
	}
	blob = strings.ReplaceAll(blob, `\"`, `"`)

	var out [][2]string
	for _, m := range kvObjectRe.FindAllStringSubmatch(blob, -1) {
		out = append(out, [2]string{unescape(m[1]), unescape(m[2])})
	}
	rest := kvObjectRe.ReplaceAllString(blob, " ")
	for _, m := range kvPairRe.FindAllStringSubmatch(rest, -1) {
		k := unescape(m[1])
		if k == "key" || k == "value" {
			continue
		}
		out = append(out, [2]string{k, unescape(m[2])})
	}
	return out
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	if u, err := strconv.Unquote(`"` + s + `"`); err == nil {
		return u
	}
	return strings.ReplaceAll(s, `\`, "")
}

func normalizeKey(k string) string {
	k = strings.NewReplacer("_", " ", "-", " ").Replace(k)
	return listing.NormalizeText(k)
}

// searchText concatenates title, description and flattened pairs into the
// normalized text every label and pattern runs against.
func searchText(raw listing.RawListing, pairs []pair) string {
	var b strings.Builder
	b.WriteString(raw.Title)
	b.WriteString(" | ")
	b.WriteString(raw.Description)
	for _, p := range pairs {
		b.WriteString(" ; ")
		b.WriteString(p.key)
		b.WriteString(": ")
		b.WriteString(p.value)
	}
	return listing.NormalizeText(b.String())
}
