package facts

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/TobiSchelling/BikeScout/internal/listing"
)

func testEngine() *Engine {
	return NewWithRules(DefaultRules(2024), 2024)
}

func TestExtractLabeledDescription(t *testing.T) {
	raw := listing.RawListing{
		Title: "Canyon Spectral CF 8 2021 Größe L",
		Description: "Rahmenmaterial: Carbon. Laufradgröße: 29 Zoll. Federweg: 150/140 mm. " +
			"Gabel: Fox 36 Factory 150mm Dämpfer: Fox Float X2",
	}
	f := testEngine().Extract(raw)

	checks := map[listing.Field]string{
		listing.FieldBrand:         "Canyon",
		listing.FieldModel:         "Spectral CF 8",
		listing.FieldYear:          "2021",
		listing.FieldFrameMaterial: MaterialCarbon,
		listing.FieldWheelSize:     `29"`,
		listing.FieldFrameSize:     "L",
		listing.FieldFork:          "Fox 36 Factory 150mm",
		listing.FieldShock:         "Fox Float X2",
		listing.FieldFrontTravel:   "150",
		listing.FieldRearTravel:    "140",
		listing.FieldSuspension:    SuspensionFull,
	}
	for field, want := range checks {
		if got := f.Get(field); got != want {
			t.Errorf("%s: expected %q, got %q", field, want, got)
		}
	}
	if f.Evidence[listing.FieldFrameMaterial] != "label" {
		t.Errorf("expected material from label, got %q", f.Evidence[listing.FieldFrameMaterial])
	}
	if f.Evidence[listing.FieldBrand] != "derived" {
		t.Errorf("expected derived brand, got %q", f.Evidence[listing.FieldBrand])
	}
	if f.Groupset != "" || f.Brakes != "" {
		t.Errorf("expected no groupset or brakes, got %q / %q", f.Groupset, f.Brakes)
	}
}

func TestExtractIsDeterministic(t *testing.T) {
	raw := listing.RawListing{
		Title:       "Propain Hugene SRAM GX Eagle 2022",
		Description: "Farbe: Schwarz/Rot, Bremsen: Magura MT7, Reifen Maxxis Minion DHF",
	}
	e := testEngine()
	a := e.Extract(raw)
	b := e.Extract(raw)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("expected identical results, got %+v and %+v", a, b)
	}
}

func TestExtractAliasPairs(t *testing.T) {
	raw := listing.RawListing{
		Title: "Enduro Fully gepflegt",
		Attributes: []listing.Attribute{
			{Key: "Marke", Value: "Specialised"},
			{Key: "Rahmengröße", Value: "M/L"},
			{Key: "Baujahr", Value: "2020"},
		},
		Components: []listing.Attribute{
			{Key: "Federweg_vorne", Value: "160 mm"},
		},
		Description: `{"key":"Bremsen","value":"Shimano XT M8120"}`,
	}
	f := testEngine().Extract(raw)

	if f.Brand != "Specialized" {
		t.Errorf("expected corrected brand, got %q", f.Brand)
	}
	if f.Evidence[listing.FieldBrand] != "alias:marke" {
		t.Errorf("expected alias evidence, got %q", f.Evidence[listing.FieldBrand])
	}
	if f.FrameSize != "M/L" {
		t.Errorf("expected combo size M/L, got %q", f.FrameSize)
	}
	if f.Year != 2020 {
		t.Errorf("expected year 2020, got %d", f.Year)
	}
	if f.FrontTravel != 160 {
		t.Errorf("expected front travel 160, got %d", f.FrontTravel)
	}
	if f.Brakes != "Shimano XT M8120" {
		t.Errorf("expected brakes from serialized pair, got %q", f.Brakes)
	}
	if f.BrakesType != BrakesHydraulicDisc {
		t.Errorf("expected brakes type derived from model, got %q", f.BrakesType)
	}
	if f.Suspension != SuspensionFull {
		t.Errorf("expected full suspension from title, got %q", f.Suspension)
	}
}

func TestExtractValueResidue(t *testing.T) {
	raw := listing.RawListing{
		Title:       "Mountainbike Trail",
		Description: `Gabel: {"value":"RockShox Lyrik Ultimate"}`,
	}
	f := testEngine().Extract(raw)
	if f.Fork != "RockShox Lyrik Ultimate" {
		t.Errorf("expected residue stripped, got %q", f.Fork)
	}
}

func TestMaterialCarbonWins(t *testing.T) {
	f := testEngine().Extract(listing.RawListing{
		Title:       "Hardtail Race",
		Description: "Rahmen aus Aluminium, Lenker und Sattelstütze aus Carbon",
	})
	if f.FrameMaterial != MaterialCarbon {
		t.Errorf("expected carbon, got %q", f.FrameMaterial)
	}
	if f.Suspension != SuspensionHardtail {
		t.Errorf("expected hardtail, got %q", f.Suspension)
	}

	f = testEngine().Extract(listing.RawListing{Title: "Alu Hardtail Race"})
	if f.FrameMaterial != MaterialAluminum {
		t.Errorf("expected aluminum, got %q", f.FrameMaterial)
	}
}

func TestWheelSizeScan(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Laufräder 27,5 Zoll, passt auch 29er", `29"`},
		{"Neue 650B Laufräder", `27.5"`},
		{"Klassiker mit 26 Zoll", `26"`},
		{"Rennrad Reifen 700x25c", `28"`},
		{"Cube Aim mit 26 Gängen", ""},
	}
	e := testEngine()
	for _, tt := range tests {
		f := e.Extract(listing.RawListing{Title: "Fahrrad", Description: tt.text})
		if f.WheelSize != tt.want {
			t.Errorf("%q: expected %q, got %q", tt.text, tt.want, f.WheelSize)
		}
	}
}

func TestClassifyWheelSizeMixed(t *testing.T) {
	if got, _ := classifyWheelSize("Mullet 29/27.5"); got != `29"/27.5"` {
		t.Errorf("expected mixed wheels, got %q", got)
	}
}

func TestFrameSizeFromRiderHeight(t *testing.T) {
	f := testEngine().Extract(listing.RawListing{
		Title:       "Trailbike gepflegt",
		Description: "Passend für Körpergröße 178 cm",
	})
	if f.FrameSize != "L" {
		t.Errorf("expected L, got %q", f.FrameSize)
	}
	if f.Evidence[listing.FieldFrameSize] != "derived" {
		t.Errorf("expected derived evidence, got %q", f.Evidence[listing.FieldFrameSize])
	}
}

func TestClassifyFrameSize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"M/L", "M/L"},
		{"Medium", "M"},
		{"extra large", "XL"},
		{"S4", "S4"},
		{"48 cm", "48.0 cm"},
		{`19"`, `19.0"`},
		{"52", "52.0 cm"},
		{"17,5", `17.5"`},
		{"100", ""},
	}
	for _, tt := range tests {
		got, _ := classifyFrameSize(tt.in)
		if got != tt.want {
			t.Errorf("classifyFrameSize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestYearBounds(t *testing.T) {
	e := testEngine()
	tests := []struct {
		title string
		want  int
	}{
		{"Trek Slash 2026", 0},
		{"Trek Slash 2025", 2025},
		{"Trek Slash MY23", 2023},
		{"Cube Stereo Preis 2000 € VB", 0},
	}
	for _, tt := range tests {
		if f := e.Extract(listing.RawListing{Title: tt.title}); f.Year != tt.want {
			t.Errorf("%q: expected %d, got %d", tt.title, tt.want, f.Year)
		}
	}
}

func TestGroupsetAndDrivetrain(t *testing.T) {
	f := testEngine().Extract(listing.RawListing{Title: "Propain Hugene SRAM GX Eagle 2022"})
	if f.Groupset != "SRAM GX Eagle" {
		t.Errorf("expected SRAM GX Eagle, got %q", f.Groupset)
	}
	if f.Drivetrain != "1x12" {
		t.Errorf("expected derived 1x12, got %q", f.Drivetrain)
	}

	f = testEngine().Extract(listing.RawListing{Title: "Rennrad", Description: "Shimano Ultegra Di2, 2x11"})
	if f.Groupset != "Shimano Ultegra Di2" {
		t.Errorf("expected Shimano Ultegra Di2, got %q", f.Groupset)
	}
	if f.Drivetrain != "2x11" {
		t.Errorf("expected 2x11, got %q", f.Drivetrain)
	}
}

func TestColor(t *testing.T) {
	f := testEngine().Extract(listing.RawListing{Title: "Fahrrad", Description: "Farbe: Schwarz/Rot"})
	if f.Color != "black/red" {
		t.Errorf("expected black/red, got %q", f.Color)
	}
}

func TestDisplayCase(t *testing.T) {
	tests := map[string]string{
		"rockshox lyrik ultimate": "RockShox Lyrik Ultimate",
		"sram code rsc":           "SRAM Code RSC",
		"fox 36 factory 160mm":    "Fox 36 Factory 160mm",
		"dt swiss f 535":          "DT Swiss F 535",
	}
	for in, want := range tests {
		if got := displayCase(in); got != want {
			t.Errorf("displayCase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCleanValueStopsAtNextLabel(t *testing.T) {
	e := testEngine()
	got := cleanValue("carbon rahmen laufradgrosse: 29", e.nextLabel, e.ownLabels[listing.FieldFrameMaterial])
	if got != "carbon rahmen" {
		t.Errorf("expected value cut before next label, got %q", got)
	}
}

func TestCleanValueCutsOnRunes(t *testing.T) {
	got := cleanValue(strings.Repeat("ä", 100), nil, nil)
	if !utf8.ValidString(got) || utf8.RuneCountInString(got) != maxValueLen {
		t.Errorf("expected %d whole runes, got %q", maxValueLen, got)
	}

	got = cleanValue(strings.Repeat("Dämpfer ", 15), nil, nil)
	if words := strings.Fields(got); len(words) != 10 || !utf8.ValidString(got) {
		t.Errorf("expected a cut at the last word boundary, got %q", got)
	}
}

func TestCanonicalBrand(t *testing.T) {
	tests := map[string]string{
		"santa-cruz":    "Santa Cruz",
		"YT-Industries": "YT Industries",
		"Cannondal":     "Cannondale",
		"Unknownbikes ": "Unknownbikes",
	}
	for in, want := range tests {
		if got := CanonicalBrand(in); got != want {
			t.Errorf("CanonicalBrand(%q) = %q, want %q", in, got, want)
		}
	}
}
