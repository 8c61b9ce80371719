package facts

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/TobiSchelling/BikeScout/internal/listing"
)

// Frame materials.
const (
	MaterialCarbon   = "carbon"
	MaterialAluminum = "aluminum"
	MaterialSteel    = "steel"
	MaterialTitanium = "titanium"
)

// Brake types.
const (
	BrakesDisc           = "disc"
	BrakesRim            = "rim"
	BrakesHydraulicDisc  = "hydraulic-disc"
	BrakesMechanicalDisc = "mechanical-disc"
)

// Suspension types.
const (
	SuspensionHardtail = "hardtail"
	SuspensionFull     = "full"
	SuspensionRigid    = "rigid"
)

var (
	carbonRe   = regexp.MustCompile(`\b(?:carbon|kohlefaser|kohle|cf|cfk|cfrp)\b`)
	aluminumRe = regexp.MustCompile(`\b(?:alu|aluminium|aluminum|alloy)\b`)
	steelRe    = regexp.MustCompile(`\b(?:stahl|steel|chromoly|cromoly|crmo|cr-mo|reynolds)\b`)
	titaniumRe = regexp.MustCompile(`\b(?:titan|titanium)\b`)
)

// classifyMaterial maps text onto the material vocabulary. Carbon wins when
// several materials are mentioned.
func classifyMaterial(v string) (string, bool) {
	v = listing.NormalizeText(v)
	switch {
	case carbonRe.MatchString(v):
		return MaterialCarbon, true
	case aluminumRe.MatchString(v):
		return MaterialAluminum, true
	case steelRe.MatchString(v):
		return MaterialSteel, true
	case titaniumRe.MatchString(v):
		return MaterialTitanium, true
	}
	return "", false
}

func scanMaterial(text string) string {
	m, _ := classifyMaterial(text)
	return m
}

var hydraulicDiscModelsRe = regexp.MustCompile(`\b(?:magura\s+mt|sram\s+(?:code|guide|level|g2|motive|maven)|shimano\s+(?:[a-z]+\s+)?(?:br-)?m\d{3,4}|hope\s+(?:tech|e4|v4|x2)|trickstuff|formula\s+(?:cura|mega|rx|r1)|hayes\s+dominion|tektro\s+hd)`)

// classifyBrakesType maps text onto the brake type vocabulary.
func classifyBrakesType(v string) (string, bool) {
	v = listing.NormalizeText(v)
	hydraulic := strings.Contains(v, "hydraul")
	mechanical := strings.Contains(v, "mechani") || strings.Contains(v, "seilzug") || strings.Contains(v, "cable")
	disc := strings.Contains(v, "scheibe") || strings.Contains(v, "disc") || strings.Contains(v, "disk")
	rim := strings.Contains(v, "felgenbrems") || strings.Contains(v, "rim brake") || strings.Contains(v, "v-brake") ||
		strings.Contains(v, "v brake") || strings.Contains(v, "cantilever") || strings.Contains(v, "caliper") || v == "rim"

	switch {
	case disc && hydraulic:
		return BrakesHydraulicDisc, true
	case disc && mechanical:
		return BrakesMechanicalDisc, true
	case disc:
		return BrakesDisc, true
	case rim:
		return BrakesRim, true
	case hydraulic:
		return BrakesHydraulicDisc, true
	case hydraulicDiscModelsRe.MatchString(v):
		return BrakesHydraulicDisc, true
	}
	return "", false
}

// classifySuspension maps text onto the suspension vocabulary.
func classifySuspension(v string) (string, bool) {
	v = listing.NormalizeText(v)
	switch {
	case strings.Contains(v, "fully") || strings.Contains(v, "full suspension") || strings.Contains(v, "full-suspension") ||
		strings.Contains(v, "vollgefedert") || strings.Contains(v, "vollfederung") || strings.Contains(v, "dual suspension") ||
		v == "full":
		return SuspensionFull, true
	case strings.Contains(v, "hardtail"):
		return SuspensionHardtail, true
	case strings.Contains(v, "starr") || strings.Contains(v, "rigid") || strings.Contains(v, "ungefedert"):
		return SuspensionRigid, true
	}
	return "", false
}

// Wheel sizes are scanned in this order; the first match wins.
var wheelScan = []struct {
	size  string
	loose *regexp.Regexp
	text  *regexp.Regexp
}{
	{`29"`, regexp.MustCompile(`\b29(?:er)?\b`), regexp.MustCompile(`\b29(?:er\b|\s*(?:"|''|zoll\b|inch\b|x\s?\d)|\s*-?\s*zoll)|\btwentyniner\b`)},
	{`27.5"`, regexp.MustCompile(`\b27[.,]5\b|\b650\s?b\b`), regexp.MustCompile(`\b27[.,]5\b|\b650\s?b\b`)},
	{`26"`, regexp.MustCompile(`\b26\b`), regexp.MustCompile(`\b26\s*(?:"|''|zoll\b|inch\b|x\s?\d)`)},
	{`28"`, regexp.MustCompile(`\b28\b|\b700\s?c\b`), regexp.MustCompile(`\b28\s*(?:"|''|zoll\b|inch\b)|\b700\s?c\b|\b700\s?x\s?\d{2}`)},
}

var mixedWheelRe = regexp.MustCompile(`\bmullet\b|\bmx\b|29\s*(?:"|'')?\s*/\s*27[.,]5`)

// classifyWheelSize maps a supplied value such as "29 Zoll" or "650B".
func classifyWheelSize(v string) (string, bool) {
	v = listing.NormalizeText(v)
	if mixedWheelRe.MatchString(v) {
		return `29"/27.5"`, true
	}
	for _, w := range wheelScan {
		if w.loose.MatchString(v) {
			return w.size, true
		}
	}
	return "", false
}

// scanWheelSize looks for unit-qualified wheel tokens in free text.
func scanWheelSize(text string) string {
	for _, w := range wheelScan {
		if w.text.MatchString(text) {
			return w.size
		}
	}
	return ""
}

var (
	mmRe      = regexp.MustCompile(`\b(\d{2,3})\s*(?:/\s*\d{2,3}\s*)?mm\b`)
	bareNumRe = regexp.MustCompile(`^(\d{2,3})$`)
)

// classifyTravel reads a suspension travel in millimetres.
func classifyTravel(v string) (string, bool) {
	v = listing.NormalizeText(v)
	var raw string
	if m := mmRe.FindStringSubmatch(v); m != nil {
		raw = m[1]
	} else if m := bareNumRe.FindStringSubmatch(v); m != nil {
		raw = m[1]
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 60 || n > 250 {
		return "", false
	}
	return strconv.Itoa(n), true
}

var colorWords = map[string]string{
	"schwarz": "black", "black": "black",
	"weiss": "white", "white": "white",
	"rot": "red", "red": "red",
	"blau": "blue", "blue": "blue",
	"grun": "green", "green": "green",
	"gelb": "yellow", "yellow": "yellow",
	"grau": "grey", "grey": "grey", "gray": "grey",
	"anthrazit": "anthracite", "anthracite": "anthracite",
	"silber": "silver", "silver": "silver",
	"orange": "orange",
	"lila": "purple", "violett": "purple", "purple": "purple",
	"pink": "pink", "rosa": "pink",
	"braun": "brown", "brown": "brown",
	"turkis": "turquoise", "turquoise": "turquoise",
	"beige": "beige", "gold": "gold", "bronze": "bronze",
	"petrol": "teal", "teal": "teal",
	"oliv": "olive", "olive": "olive",
	"raw": "raw",
}

// colorAlternation lists the color vocabulary for regex use.
func colorAlternation() string {
	words := make([]string, 0, len(colorWords))
	for w := range colorWords {
		words = append(words, w)
	}
	return alternation(words)
}

var colorTokenRe = regexp.MustCompile(`\b(?:` + colorAlternation() + `)\b`)

// classifyColor maps up to two color words onto English names.
func classifyColor(v string) (string, bool) {
	v = listing.NormalizeText(v)
	var out []string
	for _, w := range colorTokenRe.FindAllString(v, -1) {
		c := colorWords[w]
		if !containsString(out, c) {
			out = append(out, c)
		}
		if len(out) == 2 {
			break
		}
	}
	if len(out) == 0 {
		return "", false
	}
	return strings.Join(out, "/"), true
}

var (
	comboDrivetrainRe = regexp.MustCompile(`\b([1-3])\s?x\s?(\d{1,2})\b`)
	speedDrivetrainRe = regexp.MustCompile(`\b(\d{1,2})\s?-?\s?(?:fach|gang|gange|speed|sp)\b`)
)

// classifyDrivetrain reads "1x12" style or "12-speed" descriptors.
func classifyDrivetrain(v string) (string, bool) {
	v = listing.NormalizeText(v)
	if m := comboDrivetrainRe.FindStringSubmatch(v); m != nil {
		if n, _ := strconv.Atoi(m[2]); n >= 5 && n <= 13 {
			return m[1] + "x" + m[2], true
		}
	}
	if m := speedDrivetrainRe.FindStringSubmatch(v); m != nil {
		if n, _ := strconv.Atoi(m[1]); n >= 1 && n <= 33 {
			return fmt.Sprintf("%d-speed", n), true
		}
	}
	return "", false
}

type family struct {
	re   *regexp.Regexp
	name string
}

var shimanoFamilies = []family{
	{regexp.MustCompile(`\bxtr\b`), "XTR"},
	{regexp.MustCompile(`\bdeore\s?xt\b|\bxt\b`), "XT"},
	{regexp.MustCompile(`\bslx\b`), "SLX"},
	{regexp.MustCompile(`\bdeore\b`), "Deore"},
	{regexp.MustCompile(`\bcues\b`), "CUES"},
	{regexp.MustCompile(`\bgrx\b`), "GRX"},
	{regexp.MustCompile(`\bdura[- ]?ace\b`), "Dura-Ace"},
	{regexp.MustCompile(`\bultegra\b`), "Ultegra"},
	{regexp.MustCompile(`\b105\b`), "105"},
	{regexp.MustCompile(`\btiagra\b`), "Tiagra"},
	{regexp.MustCompile(`\bsora\b`), "Sora"},
	{regexp.MustCompile(`\bclaris\b`), "Claris"},
	{regexp.MustCompile(`\bsaint\b`), "Saint"},
	{regexp.MustCompile(`\bzee\b`), "Zee"},
	{regexp.MustCompile(`\balivio\b`), "Alivio"},
	{regexp.MustCompile(`\bacera\b`), "Acera"},
	{regexp.MustCompile(`\baltus\b`), "Altus"},
}

var sramFamilies = []family{
	{regexp.MustCompile(`\bxx\s?sl\b`), "XX SL"},
	{regexp.MustCompile(`\bxx1\b`), "XX1"},
	{regexp.MustCompile(`\bx01\b`), "X01"},
	{regexp.MustCompile(`\bxx\b`), "XX"},
	{regexp.MustCompile(`\bx0\b`), "X0"},
	{regexp.MustCompile(`\bgx\b`), "GX"},
	{regexp.MustCompile(`\bnx\b`), "NX"},
	{regexp.MustCompile(`\bsx\b`), "SX"},
	{regexp.MustCompile(`\bred\b`), "Red"},
	{regexp.MustCompile(`\bforce\b`), "Force"},
	{regexp.MustCompile(`\brival\b`), "Rival"},
	{regexp.MustCompile(`\bapex\b`), "Apex"},
}

var campagnoloFamilies = []family{
	{regexp.MustCompile(`\bsuper\s?record\b`), "Super Record"},
	{regexp.MustCompile(`\brecord\b`), "Record"},
	{regexp.MustCompile(`\bchorus\b`), "Chorus"},
	{regexp.MustCompile(`\bpotenza\b`), "Potenza"},
	{regexp.MustCompile(`\bcentaur\b`), "Centaur"},
	{regexp.MustCompile(`\bekar\b`), "Ekar"},
}

var (
	sramOnlyRe = regexp.MustCompile(`\b(?:eagle|axs|etap)\b`)
	di2Re      = regexp.MustCompile(`\bdi2\b`)
)

// classifyGroupset canonicalizes a groupset mention such as "sram gx eagle"
// to "SRAM GX Eagle".
func classifyGroupset(v string) (string, bool) {
	v = listing.NormalizeText(v)
	isSram := strings.Contains(v, "sram") || sramOnlyRe.MatchString(v)
	isCampa := strings.Contains(v, "campagnolo") || strings.Contains(v, "campa ")

	if isCampa {
		for _, f := range campagnoloFamilies {
			if f.re.MatchString(v) {
				return "Campagnolo " + f.name, true
			}
		}
	}
	if isSram {
		for _, f := range sramFamilies {
			if f.re.MatchString(v) {
				name := "SRAM " + f.name
				if strings.Contains(v, "eagle") {
					name += " Eagle"
				}
				if strings.Contains(v, "axs") {
					name += " AXS"
				}
				return name, true
			}
		}
	}
	for _, f := range shimanoFamilies {
		if f.re.MatchString(v) {
			if f.name == "105" && !strings.Contains(v, "shimano") {
				continue
			}
			name := "Shimano " + f.name
			if di2Re.MatchString(v) {
				name += " Di2"
			}
			return name, true
		}
	}
	return "", false
}

var brandCasing = map[string]string{
	"rockshox": "RockShox", "rock shox": "RockShox", "sram": "SRAM", "dt": "DT", "fox": "Fox",
	"ohlins": "Öhlins", "trp": "TRP", "wtb": "WTB", "sr": "SR", "mrp": "MRP", "x-fusion": "X-Fusion",
	"air": "Air", "and": "and", "mit": "mit", "und": "und",
}

var unitRe = regexp.MustCompile(`^\d+(?:mm|cm)$`)

// displayCase restores readable casing for component names read from the
// normalized text: model codes upper-case, words title-case.
func displayCase(v string) string {
	v = strings.ReplaceAll(v, "rock shox", "rockshox")
	words := strings.Fields(v)
	for i, w := range words {
		if c, ok := brandCasing[w]; ok {
			words[i] = c
			continue
		}
		if unitRe.MatchString(w) {
			continue
		}
		if strings.ContainsAny(w, "0123456789") || len(w) <= 3 {
			words[i] = strings.ToUpper(w)
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// cassetteRange reads a sprocket range such as "10-52" into "10-52T".
func cassetteRange(v string) (string, bool) {
	m := cassetteRangeRe.FindStringSubmatch(listing.NormalizeText(v))
	if m == nil {
		return "", false
	}
	return m[1] + "-" + m[2] + "T", true
}

var cassetteRangeRe = regexp.MustCompile(`\b(9|10|11|12)\s?-\s?(2[5-9]|3\d|4\d|5[0-2])\b`)
