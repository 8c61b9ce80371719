// Package collect turns marketplace searches into raw listings. Sources only
// capture what the marketplace publishes; all interpretation happens later
// in the pipeline.
package collect

import (
	"context"
	"fmt"
	"time"

	"github.com/TobiSchelling/BikeScout/internal/config"
	"github.com/TobiSchelling/BikeScout/internal/listing"
)

// Source produces raw listings for one configured target.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]listing.RawListing, error)
}

// FromTarget builds the source for a configured target.
func FromTarget(t config.Target) (Source, error) {
	var src Source
	switch t.Kind {
	case "feed", "":
		src = NewFeedSource(t.Name, t.Platform, t.URL)
	case "json":
		src = NewJSONSource(t.Name, t.Platform, t.URL, t.APIKeyEnv)
	default:
		return nil, fmt.Errorf("target %s: unknown kind %q", t.Name, t.Kind)
	}
	if t.EnrichPages {
		src = WithPageEnrichment(src, NewPageFetcher(15*time.Second))
	}
	return src, nil
}

// StaticSource serves a fixed set of listings, such as decoded failed-queue
// payloads.
type StaticSource struct {
	SourceName string
	Listings   []listing.RawListing
}

func (s StaticSource) Name() string { return s.SourceName }

func (s StaticSource) Fetch(context.Context) ([]listing.RawListing, error) {
	return s.Listings, nil
}
