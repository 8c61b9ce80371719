package facts

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/TobiSchelling/BikeScout/internal/listing"
)

func re(expr string, group int) Pattern {
	return Pattern{Re: regexp.MustCompile(expr), Group: group}
}

var (
	groupsetMentionRe = regexp.MustCompile(`\b(?:shimano|sram|campagnolo)(?:\s+[a-z0-9-]+){1,3}|\b(?:deore xt|xtr|slx|(?:gx|nx|sx|x01|xx1) eagle|ultegra|dura-ace|grx)\b`)
	suspensionWordRe  = regexp.MustCompile(`\b(?:fully|full suspension|vollgefedert|vollfederung|hardtail|starrgabel|rigid|ungefedert)\b`)
	forkTravelRe      = regexp.MustCompile(`\b(\d{2,3})\s?mm\b`)
	looseYearRe       = regexp.MustCompile(`\b20\d{2}\b`)
	priceSuffixRe     = regexp.MustCompile(`^\s?(?:€|eur\b|euro\b|,-|\.-)`)
)

// yearInText accepts a bare four-digit year unless it reads as a price.
func yearInText(text string, currentYear int) string {
	for _, loc := range looseYearRe.FindAllStringIndex(text, -1) {
		if priceSuffixRe.MatchString(text[loc[1]:]) {
			continue
		}
		if y := validYear(text[loc[0]:loc[1]], currentYear); y != "" {
			return y
		}
	}
	if m := shortYearRe.FindString(text); m != "" {
		return validYear(m, currentYear)
	}
	return ""
}

const (
	forkPattern = `\b((?:fox\s+(?:32|34|36|38|40)|rockshox\s+(?:lyrik|pike|zeb|domain|yari|sid|reba|recon|judy|boxxer|revelation|35)|ohlins\s+rxf\s?\d{2}|marzocchi\s+(?:bomber\s+)?z[12]|manitou\s+(?:mattoc|mezzer|machete|markhor)|dt swiss\s+f\s?\d{3}|(?:sr\s+)?suntour\s+(?:xcr|xcm|raidon|aion|durolux|axon|epixon))` +
		`(?:\s+(?:factory|performance|elite|ultimate|select\+?|rc2|grip2|grip|fit4|rct3|rc|air|coil|\d{2,3}\s?mm))*)`
	shockPattern = `\b((?:rockshox\s+(?:super deluxe|deluxe|monarch|vivid)|fox\s+(?:float x2|float x|float dps|dpx2|dhx2|dhx|float)|ohlins\s+ttx\s?\d*|marzocchi\s+bomber\s+cr|cane creek\s+(?:db\s?\w*|kitsuma)|dt swiss\s+r\s?\d{3}|x-fusion\s+[a-z0-9]+)` +
		`(?:\s+(?:factory|performance|elite|ultimate|select\+?|rct|rt|coil|air|\d{3}\s?x\s?\d{2}(?:[.,]\d)?))*)`
	tirePattern  = `\b((?:maxxis|schwalbe|continental|michelin|wtb|vittoria|pirelli|kenda|specialized)\s+(?:minion\s+(?:dhf|dhr\s?ii|dhr)|assegai|dissector|rekon|ardent|aggressor|high roller\s?ii|forekaster|magic mary|big betty|hans dampf|nobby nic|racing ray|racing ralph|rocket ron|tacky chan|der baron|kryptotal|xynotal|cross king|mountain king|trail king|wild enduro|force|butcher|eliminator|purgatory|ground control|vigilante|trail boss|martello|mezcal))`
	brakePattern = `\b(magura\s+mt\s?(?:\d|trail|sport|5|7)[a-z0-9]*|sram\s+(?:code|guide|level|g2|db8|motive|maven)(?:\s+(?:rsc|rs|re|r|t|tl|tlm|ultimate|silver|bronze|stealth))?|hope\s+(?:tech\s?\d|e4|v4|x2)|formula\s+(?:cura|mega|rx|r1|rr1)|trickstuff\s+[a-z]+|hayes\s+dominion(?:\s+a[24])?|tektro\s+[a-z0-9-]+|trp\s+[a-z0-9-]+)`
)

// DefaultRules returns the field table the engine walks. The order matters
// for derivations: a Derive step sees every field set before it.
func DefaultRules(currentYear int) []Rule {
	colors := colorAlternation()
	return []Rule{
		{
			Field:    listing.FieldBrand,
			Aliases:  []string{"marke", "hersteller", "brand", "manufacturer"},
			Labels:   []string{"marke", "hersteller", "brand", "manufacturer"},
			Classify: classifyBrand,
			Display:  displayCase,
			Derive:   brandFromText,
		},
		{
			Field:   listing.FieldModel,
			Aliases: []string{"model", "modell", "modellname", "model name"},
			Labels:  []string{"modell", "model", "modellname"},
			Display: displayCase,
			Derive:  modelFromTitle,
		},
		{
			Field:   listing.FieldYear,
			Aliases: []string{"baujahr", "modelljahr", "jahrgang", "model year", "year", "jahr"},
			Labels:  []string{"baujahr", "modelljahr", "jahrgang", "model year", "year", "jahr"},
			Patterns: []Pattern{
				re(`\b(?:baujahr|modelljahr|bj\.?|my|modell)\s?(20\d{2})\b`, 1),
			},
			Scan: func(text string) string { return yearInText(text, currentYear) },
		},
		{
			Field:    listing.FieldFrameMaterial,
			Aliases:  []string{"rahmenmaterial", "frame material", "material", "rahmen material"},
			Labels:   []string{"rahmenmaterial", "frame material", "material"},
			Classify: classifyMaterial,
			Strict:   true,
			Scan:     scanMaterial,
		},
		{
			Field:    listing.FieldWheelSize,
			Aliases:  []string{"laufradgrosse", "radgrosse", "wheel size", "wheelsize", "laufrader", "reifengrosse"},
			Labels:   []string{"laufradgrosse", "radgrosse", "wheel size", "laufrader"},
			Classify: classifyWheelSize,
			Strict:   true,
			Scan:     scanWheelSize,
		},
		{
			Field:    listing.FieldFrameSize,
			Aliases:  []string{"rahmengrosse", "rahmenhohe", "frame size", "framesize", "grosse", "size", "rh"},
			Labels:   []string{"rahmengrosse", "rahmenhohe", "frame size", "grosse", "size", "rh"},
			Classify: classifyFrameSize,
			Strict:   true,
			Patterns: []Pattern{
				re(`(?:^|[^a-z])(?:rahmengrosse|rahmenhohe|grosse|gr\.?|size|rh)\s*:?\s*((?:xxs|xs|s|m|l|xl|xxl)(?:\s?/\s?(?:xs|s|m|l|xl|xxl))?|s[1-6]|\d{2}(?:[.,]\d)?\s?(?:cm|"|zoll)?)(?:[^a-z0-9]|$)`, 1),
				re(`\b((?:extra\s)?(?:small|medium|large))\s+(?:frame|rahmen)\b`, 1),
			},
			Derive: sizeFromRiderHeight,
		},
		{
			Field:    listing.FieldGroupset,
			Aliases:  []string{"schaltgruppe", "gruppe", "groupset", "komponentengruppe", "schaltwerk", "rear derailleur", "derailleur"},
			Labels:   []string{"schaltgruppe", "groupset", "gruppe", "schaltwerk"},
			Classify: classifyGroupset,
			Display:  displayCase,
			Scan: func(text string) string {
				for _, m := range groupsetMentionRe.FindAllString(text, -1) {
					if g, ok := classifyGroupset(m); ok {
						return g
					}
				}
				return ""
			},
		},
		{
			Field:    listing.FieldDrivetrain,
			Aliases:  []string{"antrieb", "drivetrain", "schaltung", "gange", "gears", "anzahl gange"},
			Labels:   []string{"antrieb", "drivetrain", "schaltung"},
			Classify: classifyDrivetrain,
			Strict:   true,
			Patterns: []Pattern{
				re(`\b[1-3]\s?x\s?\d{1,2}\b`, 0),
				re(`\b\d{1,2}\s?-?\s?(?:fach|gang|gange|speed)\b`, 0),
			},
			Derive: func(in Input) string {
				if strings.Contains(in.Facts.Groupset, "Eagle") {
					return "1x12"
				}
				return ""
			},
		},
		{
			Field:    listing.FieldBrakes,
			Aliases:  []string{"bremsen", "bremse", "brakes", "brake", "bremsanlage"},
			Labels:   []string{"bremsen", "bremse", "brakes", "brake"},
			Display:  displayCase,
			Patterns: []Pattern{re(brakePattern, 1), re(`\b(shimano\s+(?:xtr|xt|slx|deore|saint|zee|mt\d{3}))\s+(?:scheiben)?brems`, 1)},
		},
		{
			Field:    listing.FieldBrakesType,
			Aliases:  []string{"bremsentyp", "bremsart", "brake type", "bremssystem"},
			Labels:   []string{"bremsentyp", "bremsart", "brake type"},
			Classify: classifyBrakesType,
			Strict:   true,
			Patterns: []Pattern{
				re(`\b(?:(?:hydraulische?n?|hydraulic|mechanische?n?|mechanical)\s+)?(?:scheibenbremse\w*|disc brakes?|disk brakes?|felgenbremse\w*|v-brakes?|rim brakes?)\b`, 0),
			},
			Derive: func(in Input) string {
				if in.Facts.Brakes == "" {
					return ""
				}
				t, _ := classifyBrakesType(in.Facts.Brakes)
				return t
			},
		},
		{
			Field:    listing.FieldFork,
			Aliases:  []string{"federgabel", "gabel", "fork", "suspension fork"},
			Labels:   []string{"federgabel", "gabel", "fork"},
			Display:  displayCase,
			Patterns: []Pattern{re(forkPattern, 1)},
		},
		{
			Field:    listing.FieldShock,
			Aliases:  []string{"dampfer", "daempfer", "shock", "rear shock", "federbein"},
			Labels:   []string{"dampfer", "shock", "rear shock", "federbein"},
			Display:  displayCase,
			Patterns: []Pattern{re(shockPattern, 1)},
		},
		{
			Field:    listing.FieldFrontTravel,
			Aliases:  []string{"federweg vorne", "federweg vorn", "federweg gabel", "federweg front", "front travel", "fork travel", "federweg"},
			Labels:   []string{"federweg vorne", "federweg vorn", "federweg gabel", "front travel", "fork travel", "federweg"},
			Classify: classifyTravel,
			Strict:   true,
			Patterns: []Pattern{
				re(`\b(\d{2,3})\s?mm\s+(?:federweg\s+)?(?:vorne?|front)\b`, 1),
				re(`\b(\d{2,3})\s?/\s?\d{2,3}\s?mm\b`, 1),
				re(`\bfederweg\s*:?\s*(\d{2,3})\s?mm\b`, 1),
			},
			Derive: func(in Input) string {
				m := forkTravelRe.FindStringSubmatch(listing.NormalizeText(in.Facts.Fork))
				if m == nil {
					return ""
				}
				if n, _ := strconv.Atoi(m[1]); n >= 80 && n <= 200 {
					return m[1]
				}
				return ""
			},
		},
		{
			Field:    listing.FieldRearTravel,
			Aliases:  []string{"federweg hinten", "federweg heck", "federweg dampfer", "rear travel"},
			Labels:   []string{"federweg hinten", "federweg heck", "federweg dampfer", "rear travel"},
			Classify: classifyTravel,
			Strict:   true,
			Patterns: []Pattern{
				re(`\b(\d{2,3})\s?mm\s+(?:federweg\s+)?(?:hinten|heck|rear)\b`, 1),
				re(`\b\d{2,3}\s?/\s?(\d{2,3})\s?mm\b`, 1),
			},
		},
		{
			Field:    listing.FieldSuspension,
			Aliases:  []string{"federung", "suspension", "bike type", "fahrradtyp"},
			Labels:   []string{"federung", "suspension"},
			Classify: classifySuspension,
			Strict:   true,
			Scan: func(text string) string {
				for _, m := range suspensionWordRe.FindAllString(text, -1) {
					if s, ok := classifySuspension(m); ok {
						return s
					}
				}
				return ""
			},
			Derive: func(in Input) string {
				if (in.Facts.FrontTravel > 0 && in.Facts.RearTravel > 0) || in.Facts.Shock != "" {
					return SuspensionFull
				}
				return ""
			},
		},
		{
			Field:    listing.FieldColor,
			Aliases:  []string{"farbe", "color", "colour", "rahmenfarbe", "lackierung"},
			Labels:   []string{"rahmenfarbe", "farbe", "color", "colour", "lackierung"},
			Classify: classifyColor,
			Strict:   true,
			Patterns: []Pattern{
				re(`(?:\bin|farbe|color|colour|lackierung)\s*:?\s*((?:(?:matt|glanz|glossy|matte|dunkel|hell|dark|light)\s*-?\s*)?(?:`+colors+`)(?:\s*(?:/|-|und|and|&)\s*(?:`+colors+`))?)\b`, 1),
			},
		},
		{
			Field:    listing.FieldCassette,
			Aliases:  []string{"kassette", "cassette", "ritzelpaket"},
			Labels:   []string{"kassette", "cassette", "ritzelpaket"},
			Classify: cassetteRange,
			Display:  displayCase,
			Patterns: []Pattern{re(`(?:kassette|cassette|ritzel|bandbreite)\D{0,30}?(\d{1,2}\s?-\s?\d{2})`, 1)},
		},
		{
			Field:    listing.FieldTires,
			Aliases:  []string{"reifen", "tires", "tyres", "bereifung", "mantel"},
			Labels:   []string{"reifen", "bereifung", "tires", "tyres"},
			Display:  displayCase,
			Patterns: []Pattern{re(tirePattern, 1)},
		},
	}
}
