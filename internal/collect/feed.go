package collect

import (
	"context"
	"log"
	"net/url"
	"regexp"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/TobiSchelling/BikeScout/internal/listing"
)

const maxPerFeed = 50

// FeedSource reads a marketplace saved-search RSS or Atom feed.
type FeedSource struct {
	name     string
	platform string
	url      string
	parser   *gofeed.Parser
}

// NewFeedSource creates a feed source.
func NewFeedSource(name, platform, feedURL string) *FeedSource {
	return &FeedSource{name: name, platform: platform, url: feedURL, parser: gofeed.NewParser()}
}

func (s *FeedSource) Name() string { return s.name }

// Fetch parses the feed and converts its items.
func (s *FeedSource) Fetch(ctx context.Context) ([]listing.RawListing, error) {
	feed, err := s.parser.ParseURLWithContext(s.url, ctx)
	if err != nil {
		return nil, err
	}

	var out []listing.RawListing
	for _, item := range feed.Items {
		if len(out) >= maxPerFeed {
			break
		}
		raw, ok := parseItem(item, s.platform)
		if !ok {
			continue
		}
		out = append(out, raw)
	}
	log.Printf("Parsed %d listings from %s", len(out), s.name)
	return out, nil
}

var (
	adIDRe       = regexp.MustCompile(`(\d{6,})`)
	priceTokenRe = regexp.MustCompile(`(?i)(?:€\s?\d[\d.,]*|\d[\d.,]*\s?(?:€|eur\b|euro\b))`)
	imgSrcRe     = regexp.MustCompile(`(?i)<img[^>]+src="([^"]+)"`)
)

func parseItem(item *gofeed.Item, platform string) (listing.RawListing, bool) {
	link := item.Link
	if link == "" {
		link = item.GUID
	}
	title := strings.TrimSpace(item.Title)
	if link == "" || title == "" {
		return listing.RawListing{}, false
	}

	raw := listing.RawListing{
		SourcePlatform: platform,
		SourceAdID:     adIDFrom(item.GUID, link),
		URL:            link,
		Title:          title,
		Currency:       "EUR",
	}

	body := item.Content
	if body == "" {
		body = item.Description
	}
	raw.Description = stripHTML(body)

	if p, ok := itemPrice(item, title, raw.Description); ok {
		raw.Price = p
	}

	if item.Image != nil && item.Image.URL != "" {
		raw.Images = append(raw.Images, item.Image.URL)
		raw.PrimaryImage = item.Image.URL
	}
	for _, enc := range item.Enclosures {
		if strings.HasPrefix(enc.Type, "image/") {
			raw.Images = append(raw.Images, enc.URL)
		}
	}
	for _, m := range imgSrcRe.FindAllStringSubmatch(body, -1) {
		raw.Images = append(raw.Images, m[1])
	}

	raw.Images = uniqueStrings(raw.Images)

	if item.PublishedParsed != nil {
		raw.PublishedAt = item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		raw.PublishedAt = item.UpdatedParsed
	}
	for _, c := range item.Categories {
		raw.Attributes = append(raw.Attributes, listing.Attribute{Key: "category", Value: c})
	}
	return raw, true
}

// itemPrice prefers a price element of the feed's own namespace and falls
// back to the first currency amount in the title or text.
func itemPrice(item *gofeed.Item, texts ...string) (float64, bool) {
	for _, ns := range item.Extensions {
		for name, exts := range ns {
			if !strings.EqualFold(name, "price") {
				continue
			}
			for _, e := range exts {
				if p, ok := listing.ParsePrice(e.Value); ok {
					return p, true
				}
			}
		}
	}
	if v, ok := item.Custom["price"]; ok {
		if p, ok := listing.ParsePrice(v); ok {
			return p, true
		}
	}
	for _, t := range texts {
		if m := priceTokenRe.FindString(t); m != "" {
			if p, ok := listing.ParsePrice(m); ok {
				return p, true
			}
		}
	}
	return 0, false
}

// adIDFrom takes the marketplace ad number from the GUID or link, falling
// back to the link path.
func adIDFrom(guid, link string) string {
	for _, s := range []string{guid, link} {
		if s == "" {
			continue
		}
		path := s
		if u, err := url.Parse(s); err == nil && u.Host != "" {
			path = u.Path
		}
		if m := adIDRe.FindAllString(path, -1); len(m) > 0 {
			return m[len(m)-1]
		}
	}
	if guid != "" {
		return guid
	}
	return link
}

func stripHTML(text string) string {
	var result strings.Builder
	inTag := false
	for _, r := range text {
		if r == '<' {
			inTag = true
			result.WriteRune(' ')
			continue
		}
		if r == '>' {
			inTag = false
			continue
		}
		if !inTag {
			result.WriteRune(r)
		}
	}

	s := result.String()
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&quot;", `"`)
	s = strings.ReplaceAll(s, "&#39;", "'")
	s = strings.ReplaceAll(s, "&euro;", "€")

	return strings.Join(strings.Fields(s), " ")
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
