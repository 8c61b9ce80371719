package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/TobiSchelling/BikeScout/internal/listing"
)

// JSONSource reads a marketplace listing endpoint that returns JSON.
type JSONSource struct {
	name     string
	platform string
	url      string
	apiKey   string
	client   *http.Client
}

// NewJSONSource creates a JSON listing source. The API key, if any, is read
// from apiKeyEnv and sent as X-Api-Key.
func NewJSONSource(name, platform, endpoint, apiKeyEnv string) *JSONSource {
	s := &JSONSource{
		name:     name,
		platform: platform,
		url:      endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	if apiKeyEnv != "" {
		s.apiKey = os.Getenv(apiKeyEnv)
	}
	return s
}

func (s *JSONSource) Name() string { return s.name }

// flexString accepts JSON strings and numbers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(strings.TrimSpace(string(b)))
	if *f == "null" {
		*f = ""
	}
	return nil
}

type jsonListing struct {
	ID          flexString        `json:"id"`
	URL         string            `json:"url"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Price       flexString        `json:"price"`
	Currency    string            `json:"currency"`
	Images      []string          `json:"images"`
	MainImage   string            `json:"main_image"`
	Attributes  map[string]string `json:"attributes"`
	Components  map[string]string `json:"components"`
	Seller      string            `json:"seller"`
	Shipping    string            `json:"shipping"`
	Location    string            `json:"location"`
	Views       int               `json:"views"`
	PublishedAt string            `json:"published_at"`
	Brand       string            `json:"brand"`
	Model       string            `json:"model"`
	Year        int               `json:"year"`
	FrameSize   string            `json:"frame_size"`
	WheelSize   string            `json:"wheel_size"`
}

// Fetch downloads and converts one page of listings.
func (s *JSONSource) Fetch(ctx context.Context) ([]listing.RawListing, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "BikeScout/1.0 (listing monitor)")
	if s.apiKey != "" {
		req.Header.Set("X-Api-Key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: HTTP %d", s.name, resp.StatusCode)
	}

	var result struct {
		Listings []jsonListing `json:"listings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%s: decoding listings: %w", s.name, err)
	}

	var out []listing.RawListing
	for _, l := range result.Listings {
		raw, ok := s.convert(l)
		if !ok {
			continue
		}
		out = append(out, raw)
	}
	log.Printf("Fetched %d listings from %s", len(out), s.name)
	return out, nil
}

func (s *JSONSource) convert(l jsonListing) (listing.RawListing, bool) {
	if l.ID == "" || l.URL == "" || strings.TrimSpace(l.Title) == "" {
		return listing.RawListing{}, false
	}
	raw := listing.RawListing{
		SourcePlatform: s.platform,
		SourceAdID:     string(l.ID),
		URL:            l.URL,
		Title:          strings.TrimSpace(l.Title),
		Description:    strings.TrimSpace(l.Description),
		Currency:       l.Currency,
		Images:         l.Images,
		PrimaryImage:   l.MainImage,
		Seller:         l.Seller,
		Delivery:       l.Shipping,
		Location:       l.Location,
		Views:          l.Views,
		Brand:          l.Brand,
		Model:          l.Model,
		Year:           l.Year,
		FrameSize:      l.FrameSize,
		WheelSize:      l.WheelSize,
		Attributes:     sortedPairs(l.Attributes),
		Components:     sortedPairs(l.Components),
	}
	if p, ok := listing.ParsePrice(string(l.Price)); ok {
		raw.Price = p
	}
	if l.PublishedAt != "" {
		if t, err := time.Parse(time.RFC3339, l.PublishedAt); err == nil {
			raw.PublishedAt = &t
		}
	}
	return raw, true
}
