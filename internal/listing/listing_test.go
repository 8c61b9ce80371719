package listing

import (
	"testing"
	"unicode/utf8"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1.200 €", 1200, true},
		{"1.200,50 € VB", 1200.5, true},
		{"1,200.50", 1200.5, true},
		{"EUR 2,500", 2500, true},
		{"850 €", 850, true},
		{"12,5", 12.5, true},
		{"1 499 €", 1499, true},
		{"1.250.000", 1250000, true},
		{"Preis 1800 29 Zoll", 1800, true},
		{"VB", 0, false},
		{"0 €", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParsePrice(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParsePrice(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestNormalizeText(t *testing.T) {
	got := NormalizeText("  Dämpfer:\tRockShox   Größe  M  ")
	if got != "dampfer: rockshox grosse m" {
		t.Errorf("unexpected normalized text %q", got)
	}
	if NormalizeText("27,5″") != `27,5"` {
		t.Errorf("expected typographic inch mark folded, got %q", NormalizeText("27,5″"))
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
		cut  bool
	}{
		{"Rahmen", 10, "Rahmen", false},
		{"Rahmen", 6, "Rahmen", false},
		{"Größe M", 3, "Grö", true},
		{"ÄÖÜ", 2, "ÄÖ", true},
		{"🚲🚲🚲", 1, "🚲", true},
		{"abc", 0, "", true},
		{"", 0, "", false},
	}
	for _, tt := range tests {
		got, cut := Truncate(tt.in, tt.n)
		if got != tt.want || cut != tt.cut {
			t.Errorf("Truncate(%q, %d) = %q, %v; want %q, %v", tt.in, tt.n, got, cut, tt.want, tt.cut)
		}
		if !utf8.ValidString(got) {
			t.Errorf("Truncate(%q, %d) split a rune: %q", tt.in, tt.n, got)
		}
	}
}

func TestValidImageURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://img.example.com/api/v1/prod-ads/images/ab/abcd?rule=$_59.JPG", true},
		{"https://example.com/static/logo.png", false},
		{"https://example.com/icons/bike.png", false},
		{"https://example.com/img/placeholder.jpg", false},
		{"https://example.com/a.svg", false},
		{"https://example.com/img.jpg?width=80", false},
		{"https://example.com/thumbs/64x64/img.jpg", false},
		{"https://example.com/full/1600x1200/img.jpg", true},
		{"ftp://example.com/img.jpg", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidImageURL(tt.url); got != tt.want {
			t.Errorf("ValidImageURL(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestPrepareImagesDedupAndPrimary(t *testing.T) {
	images := PrepareImages([]string{
		"https://cdn.example.com/a.jpg?size=large",
		"https://CDN.example.com/a.jpg",
		"https://cdn.example.com/b.jpg",
		"https://cdn.example.com/logo.png",
	}, "")
	if len(images) != 2 {
		t.Fatalf("expected 2 images after dedup, got %d", len(images))
	}
	if !images[0].IsPrimary || images[1].IsPrimary {
		t.Error("expected first image to be primary")
	}
	if images[1].Position != 1 {
		t.Errorf("expected position 1, got %d", images[1].Position)
	}

	images = PrepareImages([]string{
		"https://cdn.example.com/a.jpg",
		"https://cdn.example.com/b.jpg",
	}, "https://cdn.example.com/b.jpg?x=1")
	if images[0].IsPrimary || !images[1].IsPrimary {
		t.Error("expected explicit primary to be honored")
	}
}

func TestParseDelivery(t *testing.T) {
	tests := []struct {
		in   string
		want DeliveryMode
	}{
		{"Nur Abholung", DeliveryPickup},
		{"Versand möglich", DeliveryShipping},
		{"Abholung oder Versand", DeliveryShipping},
		{"Pickup only, no shipping", DeliveryPickup},
		{"Versand nicht möglich", DeliveryPickup},
		{"Versand leider nicht möglich", DeliveryPickup},
		{"Shipping not available", DeliveryPickup},
		{"Ohne Versand", DeliveryPickup},
		{"Seller does not ship", DeliveryPickup},
		{"Versand kein Problem", DeliveryShipping},
		{"Shipping available", DeliveryShipping},
		{"", DeliveryUnknown},
	}
	for _, tt := range tests {
		if got := ParseDelivery(tt.in); got != tt.want {
			t.Errorf("ParseDelivery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFactsAccessors(t *testing.T) {
	var f ExtractedFacts
	f.Set(FieldYear, "2021")
	f.Set(FieldFrontTravel, "160")
	f.Set(FieldFrameMaterial, "carbon")
	f.Set(FieldRearTravel, "abc")

	if f.Year != 2021 || f.FrontTravel != 160 || f.RearTravel != 0 {
		t.Errorf("unexpected numeric fields: %+v", f)
	}
	if f.Get(FieldRearTravel) != "" {
		t.Error("expected zero travel to read as empty")
	}
	if f.Filled() != 3 {
		t.Errorf("expected 3 filled fields, got %d", f.Filled())
	}
}
