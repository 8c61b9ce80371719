package filter

import "testing"

func TestCheck(t *testing.T) {
	f := New(Config{})
	tests := []struct {
		name   string
		title  string
		price  float64
		pass   bool
		reason string
	}{
		{"complete bike", "Canyon Spectral CF 8 2021 Größe L", 2800, true, ""},
		{"frame height is fine", "Cube Stereo 150 Rahmenhöhe 48 cm", 1500, true, ""},
		{"frameset", "Santa Cruz Nomad Rahmenset 2022", 1800, false, "title_kill:rahmenset"},
		{"frame only", "Specialized Enduro Rahmen S4", 1200, false, "title_kill:rahmen"},
		{"wanted ad", "Suche Enduro Fully in Größe M", 2000, false, "title_kill:suche"},
		{"damaged", "Trek Fuel EX defekt an Bastler", 600, false, "title_kill:defekt"},
		{"wheelset", "DT Swiss Laufradsatz 29 Zoll XM1700", 500, false, "title_kill:laufradsatz"},
		{"umlaut fork", "RockShox Federgabel Lyrik 160mm", 450, false, "title_kill:federgabel"},
		{"parts only phrase", "YT Capra 29 nur der Rahmen", 900, false, "title_kill:rahmen"},
		{"vehicle", "VW Bus Fahrradträger inklusive", 400, false, "title_kill:vw"},
		{"camper", "Hymer Wohnmobil mit Fahrradträger", 14000, false, "title_kill:hymer"},
		{"short title", "Bike", 900, false, ReasonTitleTooShort},
		{"no price", "Canyon Neuron 2020 sehr gut", 0, false, ReasonPriceMissing},
		{"cheap", "Kinderfahrrad 20 Zoll blau", 120, false, ReasonPriceTooLow},
		{"too expensive", "Pinarello Dogma F12 Dura-Ace Di2", 15001, false, ReasonPriceSuspiciousHigh},
		{"ceiling inclusive", "Pinarello Dogma F12 Dura-Ace Di2", 15000, true, ""},
		{"floor inclusive", "Giant Talon 3 2019 29 Zoll", 300, true, ""},
		{"incidental word inside another", "Autark Cube Reaction 2020", 900, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := f.Check(tt.title, tt.price)
			if r.Pass != tt.pass {
				t.Fatalf("expected pass=%v, got %v (%s)", tt.pass, r.Pass, r.Reason)
			}
			if r.Reason != tt.reason {
				t.Errorf("expected reason %q, got %q", tt.reason, r.Reason)
			}
		})
	}
}

func TestCheckIgnoresDescription(t *testing.T) {
	f := New(Config{})
	r := f.Check("Propain Tyee CF 29 2022 Größe L", 3200)
	if !r.Pass {
		t.Fatalf("expected pass, got %s", r)
	}
}

func TestExtraDenyTerms(t *testing.T) {
	f := New(Config{ExtraDenyTerms: []string{"E-Bike"}})
	r := f.Check("Haibike E-Bike Allmtn 2020 Größe M", 2500)
	if r.Pass || r.Reason != "title_kill:e-bike" {
		t.Errorf("expected e-bike kill, got %s", r)
	}
	if !IsTitleKill(r.Reason) {
		t.Error("expected IsTitleKill to recognize the reason")
	}
}

func TestCustomBounds(t *testing.T) {
	f := New(Config{MinPrice: 1000, MaxPrice: 2000, MinTitleLength: 5})
	if r := f.Check("Canyon", 999); r.Reason != ReasonPriceTooLow {
		t.Errorf("expected price_too_low, got %s", r)
	}
	if r := f.Check("Canyon", 1500); !r.Pass {
		t.Errorf("expected pass, got %s", r)
	}
}
