package facts

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/TobiSchelling/BikeScout/internal/listing"
)

var (
	comboSizeRe  = regexp.MustCompile(`\b(xxs|xs|s|m|l|xl|xxl)\s?(?:/|-|bis|to)\s?(xxs|xs|s|m|l|xl|xxl)\b`)
	letterSizeRe = regexp.MustCompile(`\b(xxs|xs|s|m|l|xl|xxl)\b`)
	brandSizeRe  = regexp.MustCompile(`\b(s[1-6])\b`)
	cmSizeRe     = regexp.MustCompile(`\b(\d{2}(?:[.,]\d)?)\s?cm\b`)
	inchSizeRe   = regexp.MustCompile(`\b(\d{2}(?:[.,]\d)?)\s?(?:"|''|zoll\b|inch\b)`)
	bareSizeRe   = regexp.MustCompile(`^(\d{2}(?:[.,]\d)?)$`)
)

var sizeWords = []struct {
	word string
	size string
}{
	{"extra extra small", "XXS"},
	{"extra extra large", "XXL"},
	{"extra small", "XS"},
	{"extra large", "XL"},
	{"small", "S"},
	{"medium", "M"},
	{"large", "L"},
}

// classifyFrameSize maps a frame size onto letter sizes, brand sizes (S1-S6)
// or a measurement in cm or inches.
func classifyFrameSize(v string) (string, bool) {
	v = listing.NormalizeText(v)
	if m := comboSizeRe.FindStringSubmatch(v); m != nil {
		return strings.ToUpper(m[1]) + "/" + strings.ToUpper(m[2]), true
	}
	for _, w := range sizeWords {
		if strings.Contains(v, w.word) {
			return w.size, true
		}
	}
	if m := brandSizeRe.FindStringSubmatch(v); m != nil {
		return strings.ToUpper(m[1]), true
	}
	if m := letterSizeRe.FindStringSubmatch(v); m != nil {
		return strings.ToUpper(m[1]), true
	}
	if m := cmSizeRe.FindStringSubmatch(v); m != nil {
		if s, ok := frameMeasure(m[1], "cm"); ok {
			return s, true
		}
	}
	if m := inchSizeRe.FindStringSubmatch(v); m != nil {
		if s, ok := frameMeasure(m[1], "in"); ok {
			return s, true
		}
	}
	if m := bareSizeRe.FindStringSubmatch(v); m != nil {
		if s, ok := frameMeasure(m[1], ""); ok {
			return s, true
		}
	}
	return "", false
}

// frameMeasure accepts 40-70 cm or 13-24 inch frames. Without a unit the
// range decides.
func frameMeasure(num, unit string) (string, bool) {
	n, err := strconv.ParseFloat(strings.ReplaceAll(num, ",", "."), 64)
	if err != nil {
		return "", false
	}
	cm := n >= 40 && n <= 70
	in := n >= 13 && n <= 24
	switch {
	case unit == "cm" && cm, unit == "" && cm:
		return fmt.Sprintf("%.1f cm", n), true
	case unit == "in" && in, unit == "" && in:
		return fmt.Sprintf("%.1f\"", n), true
	}
	return "", false
}

var (
	riderHeightCmRe = regexp.MustCompile(`(?:korpergrosse|fahrergrosse|body height|rider height|fur fahrer(?:innen)?\s+(?:von|ab|bis)?)\s*:?\s*(?:ca\.?\s*)?(1[4-9]\d|2[01]\d)\s?cm`)
	riderHeightMRe  = regexp.MustCompile(`(?:korpergrosse|fahrergrosse|body height|rider height|fur fahrer(?:innen)?\s+(?:von|ab|bis)?)\s*:?\s*(?:ca\.?\s*)?(1)[.,](\d{2})\s?m\b`)
)

// sizeFromRiderHeight infers a letter size from a stated rider height.
func sizeFromRiderHeight(in Input) string {
	var cm int
	if m := riderHeightCmRe.FindStringSubmatch(in.Text); m != nil {
		cm, _ = strconv.Atoi(m[1])
	} else if m := riderHeightMRe.FindStringSubmatch(in.Text); m != nil {
		cm, _ = strconv.Atoi(m[1] + m[2])
	}
	switch {
	case cm == 0:
		return ""
	case cm < 155:
		return "XS"
	case cm < 167:
		return "S"
	case cm < 177:
		return "M"
	case cm < 187:
		return "L"
	case cm < 195:
		return "XL"
	}
	return "XXL"
}

var (
	fullYearRe  = regexp.MustCompile(`\b(20\d{2})\b`)
	shortYearRe = regexp.MustCompile(`\bmy\s?(\d{2})\b`)
)

// validYear returns the first model year in [2000, currentYear+1] found in v.
func validYear(v string, currentYear int) string {
	v = listing.NormalizeText(v)
	for _, m := range fullYearRe.FindAllStringSubmatch(v, -1) {
		if y, _ := strconv.Atoi(m[1]); y >= 2000 && y <= currentYear+1 {
			return m[1]
		}
	}
	for _, m := range shortYearRe.FindAllStringSubmatch(v, -1) {
		if y, _ := strconv.Atoi(m[1]); 2000+y <= currentYear+1 {
			return strconv.Itoa(2000 + y)
		}
	}
	return ""
}
