package listing

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

const minImageDimension = 100

var (
	imageDimsRe  = regexp.MustCompile(`(\d{2,4})x(\d{2,4})`)
	imageBadURLs = []string{".svg", "/icons/", "placeholder", "logo"}
)

// ImageKey returns the dedup key for an image URL: scheme, host and path,
// lowercased, without query string or fragment.
func ImageKey(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	return strings.ToLower(u.Scheme + "://" + u.Host + u.Path)
}

// ValidImageURL rejects icons, placeholders and thumbnails too small to grade.
func ValidImageURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}

	lower := strings.ToLower(raw)
	for _, bad := range imageBadURLs {
		if strings.Contains(lower, bad) {
			return false
		}
	}

	q := u.Query()
	for _, key := range []string{"w", "width", "h", "height"} {
		if v := q.Get(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n < minImageDimension {
				return false
			}
		}
	}

	for _, m := range imageDimsRe.FindAllStringSubmatch(u.Path, -1) {
		w, _ := strconv.Atoi(m[1])
		h, _ := strconv.Atoi(m[2])
		if w < minImageDimension || h < minImageDimension {
			return false
		}
	}
	return true
}

// Image is a listing image ready for persistence.
type Image struct {
	URL       string
	Position  int
	IsPrimary bool
}

// PrepareImages drops invalid URLs, removes duplicates by ImageKey while
// keeping the first occurrence, and marks a primary image. The explicit
// primary wins when it survives filtering; otherwise the first image is used.
func PrepareImages(urls []string, primary string) []Image {
	seen := make(map[string]bool, len(urls))
	var images []Image
	for _, u := range urls {
		if !ValidImageURL(u) {
			continue
		}
		key := ImageKey(u)
		if seen[key] {
			continue
		}
		seen[key] = true
		images = append(images, Image{URL: strings.TrimSpace(u), Position: len(images)})
	}
	if len(images) == 0 {
		return nil
	}

	primaryIdx := 0
	if primary != "" {
		pk := ImageKey(primary)
		for i, img := range images {
			if ImageKey(img.URL) == pk {
				primaryIdx = i
				break
			}
		}
	}
	images[primaryIdx].IsPrimary = true
	return images
}
