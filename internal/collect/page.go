package collect

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/TobiSchelling/BikeScout/internal/listing"
)

// minDescription is the description length below which a listing page is
// fetched for the full ad text.
const minDescription = 200

// PageFetcher extracts the readable ad text from a listing page.
type PageFetcher struct {
	client *http.Client
}

// NewPageFetcher creates a page fetcher.
func NewPageFetcher(timeout time.Duration) *PageFetcher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &PageFetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// Text returns the extracted page text, or "" when nothing useful was found.
// Only HTTP status failures are returned as errors.
func (f *PageFetcher) Text(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "BikeScout/1.0 (listing monitor)")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", nil // connection error, not HTTP error
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", &httpError{code: resp.StatusCode}
	}

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", nil
	}

	parsedURL, _ := url.Parse(pageURL)
	article, err := readability.FromReader(strings.NewReader(string(bodyBytes)), parsedURL)
	if err != nil {
		return "", nil
	}

	text := strings.Join(strings.Fields(article.TextContent), " ")
	if len(text) > 100 {
		return text, nil
	}
	return "", nil
}

type httpError struct {
	code int
}

func (e *httpError) Error() string {
	return http.StatusText(e.code)
}

type enrichingSource struct {
	Source
	pages *PageFetcher
}

// WithPageEnrichment wraps src so listings with a short description get the
// full text of their listing page. Once a host answers with an HTTP error
// the remaining listings from that host are left as they are.
func WithPageEnrichment(src Source, pages *PageFetcher) Source {
	return &enrichingSource{Source: src, pages: pages}
}

func (s *enrichingSource) Fetch(ctx context.Context) ([]listing.RawListing, error) {
	raws, err := s.Source.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	failedHosts := make(map[string]struct{})
	enriched := 0
	for i := range raws {
		if len(raws[i].Description) >= minDescription {
			continue
		}
		host := ""
		if u, err := url.Parse(raws[i].URL); err == nil {
			host = strings.ToLower(u.Host)
		}
		if _, failed := failedHosts[host]; failed {
			continue
		}

		text, err := s.pages.Text(ctx, raws[i].URL)
		if err != nil {
			failedHosts[host] = struct{}{}
			log.Printf("HTTP error for %s, skipping remaining pages from %s", raws[i].URL, host)
			continue
		}
		if len(text) > len(raws[i].Description) {
			raws[i].Description = text
			enriched++
		}
	}
	if enriched > 0 {
		log.Printf("Enriched %d listing descriptions from %s", enriched, s.Name())
	}
	return raws, nil
}

func sortedPairs(m map[string]string) []listing.Attribute {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]listing.Attribute, 0, len(keys))
	for _, k := range keys {
		out = append(out, listing.Attribute{Key: k, Value: m[k]})
	}
	return out
}
