package facts

import (
	"regexp"
	"strings"

	"github.com/TobiSchelling/BikeScout/internal/listing"
)

// knownBrands maps the normalized spelling of a bicycle brand onto its
// canonical name.
var knownBrands = map[string]string{
	"canyon": "Canyon", "cube": "Cube", "specialized": "Specialized", "trek": "Trek",
	"giant": "Giant", "scott": "Scott", "santa cruz": "Santa Cruz", "yt": "YT Industries",
	"yt industries": "YT Industries", "propain": "Propain", "rose": "Rose", "radon": "Radon",
	"ghost": "Ghost", "focus": "Focus", "bulls": "Bulls", "haibike": "Haibike",
	"orbea": "Orbea", "cannondale": "Cannondale", "merida": "Merida", "bmc": "BMC",
	"rocky mountain": "Rocky Mountain", "transition": "Transition", "commencal": "Commencal",
	"nukeproof": "Nukeproof", "pivot": "Pivot", "ibis": "Ibis",
	"yeti": "Yeti", "norco": "Norco", "kona": "Kona", "lapierre": "Lapierre",
	"mondraker": "Mondraker", "nicolai": "Nicolai", "liteville": "Liteville", "evil": "Evil",
	"rotwild": "Rotwild", "stevens": "Stevens", "bergamont": "Bergamont",
	"lapierre bikes": "Lapierre", "pinarello": "Pinarello", "cervelo": "Cervélo",
	"bianchi": "Bianchi", "colnago": "Colnago", "wilier": "Wilier", "ridley": "Ridley",
	"felt": "Felt", "fuji": "Fuji", "marin": "Marin", "polygon": "Polygon",
	"whyte": "Whyte", "vitus": "Vitus", "saracen": "Saracen", "intense": "Intense",
	"devinci": "Devinci", "alutech": "Alutech", "raaw": "RAAW",
	"forbidden": "Forbidden", "privateer": "Privateer", "antidote": "Antidote",
	"simplon": "Simplon", "ktm": "KTM", "votec": "Votec",
	"conway": "Conway", "corratec": "Corratec", "poison": "Poison", "bombtrack": "Bombtrack",
	"surly": "Surly", "salsa": "Salsa", "niner": "Niner", "juliana": "Juliana",
	"lapierre cycles": "Lapierre", "diamondback": "Diamondback",
}

// brandCorrections fixes frequent misspellings and long forms.
var brandCorrections = map[string]string{
	"specialised":                    "specialized",
	"specialized bicycle components": "specialized",
	"cannondal":                      "cannondale",
	"canondale":                      "cannondale",
	"yt-industries":                  "yt industries",
	"ytindustries":                   "yt industries",
	"santa-cruz":                     "santa cruz",
	"santacruz":                      "santa cruz",
	"santa cruz bicycles":            "santa cruz",
	"rocky-mountain":                 "rocky mountain",
}

var brandRe = regexp.MustCompile(`\b(` + brandAlternation() + `)\b`)

func brandAlternation() string {
	names := make([]string, 0, len(knownBrands)+len(brandCorrections))
	for k := range knownBrands {
		names = append(names, strings.ToLower(k))
	}
	for k := range brandCorrections {
		names = append(names, k)
	}
	return alternation(names)
}

// CanonicalBrand applies the correction table and the brand dictionary to a
// brand as supplied. Unknown brands are returned trimmed.
func CanonicalBrand(v string) string {
	if c, ok := classifyBrand(v); ok {
		return c
	}
	return strings.TrimSpace(v)
}

func classifyBrand(v string) (string, bool) {
	n := listing.NormalizeText(v)
	if c, ok := brandCorrections[n]; ok {
		n = c
	}
	c, ok := knownBrands[n]
	return c, ok
}

// KnownBrand reports whether v names a brand in the dictionary.
func KnownBrand(v string) bool {
	_, ok := classifyBrand(v)
	return ok
}

// brandFromText finds the first dictionary brand in the title, then in the
// whole text.
func brandFromText(in Input) string {
	for _, s := range []string{listing.NormalizeText(in.Raw.Title), in.Text} {
		if m := brandRe.FindStringSubmatch(s); m != nil {
			return CanonicalBrand(m[1])
		}
	}
	return ""
}

var (
	modelStopWords = map[string]bool{
		"mit": true, "inkl": true, "inklusive": true, "neu": true, "neuwertig": true, "top": true,
		"zustand": true, "np": true, "vb": true, "vhb": true, "fully": true, "hardtail": true,
		"mtb": true, "mountainbike": true, "fahrrad": true, "bike": true, "rahmen": true,
		"grosse": true, "gr": true, "size": true, "rh": true, "carbon": true, "alu": true,
		"in": true, "und": true, "with": true, "new": true, "used": true, "gebraucht": true,
	}
	modelSkipRe  = regexp.MustCompile(`^(?:20\d{2}|my\d{2}|xxs|xs|s|m|l|xl|xxl|s[1-6]|\d{2}(?:[.,]\d)?(?:cm|"|zoll)?|27[.,]5|29er|650b|zoll)$`)
	modelSplitRe = regexp.MustCompile(`[|,;()\[\]!]| - | / `)
)

// modelFromTitle takes up to four tokens following the brand in the title,
// skipping year and size tokens and stopping at noise words.
func modelFromTitle(in Input) string {
	if in.Facts == nil || in.Facts.Brand == "" {
		return ""
	}
	title := listing.NormalizeText(in.Raw.Title)
	m := brandRe.FindStringIndex(title)
	if m == nil {
		return ""
	}
	rest := title[m[1]:]
	if loc := modelSplitRe.FindStringIndex(rest); loc != nil && loc[0] > 0 {
		rest = rest[:loc[0]]
	}

	var tokens []string
	for _, tok := range strings.Fields(rest) {
		tok = strings.Trim(tok, ".:-/")
		if tok == "" || modelSkipRe.MatchString(tok) {
			continue
		}
		if modelStopWords[tok] {
			break
		}
		tokens = append(tokens, tok)
		if len(tokens) == 4 {
			break
		}
	}
	if len(tokens) == 0 {
		return ""
	}
	return displayCase(strings.Join(tokens, " "))
}
