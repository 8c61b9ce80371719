package condition

import (
	"context"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"time"

	"github.com/TobiSchelling/BikeScout/internal/llm"
)

var acceptedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// ImageFetcher downloads listing photos for inline model requests.
type ImageFetcher struct {
	client    *http.Client
	maxImages int
	maxBytes  int64
}

// NewImageFetcher creates a fetcher. Zero values select 3 images, a 15 s
// timeout and a 4 MB size cap.
func NewImageFetcher(maxImages int, timeout time.Duration, maxBytes int64) *ImageFetcher {
	if maxImages <= 0 {
		maxImages = 3
	}
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = 4 << 20
	}
	return &ImageFetcher{
		client:    &http.Client{Timeout: timeout},
		maxImages: maxImages,
		maxBytes:  maxBytes,
	}
}

type httpError struct {
	code int
}

func (e *httpError) Error() string {
	return fmt.Sprintf("HTTP %d", e.code)
}

// Fetch downloads up to maxImages of urls in order. Images that fail to
// download, are too large or are not a supported type are skipped.
func (f *ImageFetcher) Fetch(ctx context.Context, urls []string) []llm.Image {
	var images []llm.Image
	for _, u := range urls {
		if len(images) >= f.maxImages {
			break
		}
		img, err := f.fetchOne(ctx, u)
		if err != nil {
			log.Printf("Skipping image %s: %v", u, err)
			continue
		}
		images = append(images, img)
	}
	return images
}

func (f *ImageFetcher) fetchOne(ctx context.Context, u string) (llm.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return llm.Image{}, err
	}
	req.Header.Set("User-Agent", "BikeScout/1.0 (listing monitor)")
	req.Header.Set("Accept", "image/jpeg,image/png,image/webp,image/gif")

	resp, err := f.client.Do(req)
	if err != nil {
		return llm.Image{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return llm.Image{}, &httpError{code: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return llm.Image{}, err
	}
	if int64(len(data)) > f.maxBytes {
		return llm.Image{}, fmt.Errorf("image larger than %d bytes", f.maxBytes)
	}
	if len(data) == 0 {
		return llm.Image{}, fmt.Errorf("empty body")
	}

	mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if !acceptedTypes[mt] {
		mt = http.DetectContentType(data)
	}
	if !acceptedTypes[mt] {
		return llm.Image{}, fmt.Errorf("unsupported type %q", mt)
	}
	return llm.Image{MIMEType: mt, Data: data}, nil
}
