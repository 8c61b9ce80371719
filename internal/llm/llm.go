package llm

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Image is an inline image attached to a request.
type Image struct {
	MIMEType string
	Data     []byte
}

// Request is one model call. Model overrides the provider's default model
// when set.
type Request struct {
	Model       string
	Prompt      string
	Images      []Image
	MaxTokens   int
	Temperature float64
	// JSON asks the provider for a JSON-only reply where supported.
	JSON bool
}

// Provider is the interface for LLM providers.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
	Name() string
	IsConfigured() bool
}

// APIError is a non-2xx reply from a provider.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 500 {
		body = body[:500] + "..."
	}
	return fmt.Sprintf("%s API returned %d: %s", e.Provider, e.StatusCode, body)
}

// IsZeroQuota reports whether a rate-limit reply means the model has no
// quota at all for this key, as opposed to a temporary burst limit.
func (e *APIError) IsZeroQuota() bool {
	if e.StatusCode != http.StatusTooManyRequests {
		return false
	}
	b := strings.ToLower(e.Body)
	return strings.Contains(b, "limit: 0") || strings.Contains(b, `"limit": 0`) || strings.Contains(b, `"limit":0`)
}

func newAPIError(provider string, resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return &APIError{
		Provider:   provider,
		StatusCode: resp.StatusCode,
		Body:       string(body),
		RetryAfter: parseRetryAfter(resp),
	}
}

// parseRetryAfter reads the Retry-After header (seconds or HTTP date).
func parseRetryAfter(resp *http.Response) time.Duration {
	v := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// CreateProvider creates an LLM provider based on configuration. Gemini is
// the default; Ollama falls back to OpenAI when the local server is down.
func CreateProvider(provider, model, ollamaURL, openaiModel, apiKeyEnv, geminiKeyEnv string) Provider {
	switch strings.ToLower(provider) {
	case "ollama":
		p := NewOllamaProvider(model, ollamaURL)
		if p.IsConfigured() {
			log.Printf("Using Ollama with model: %s", model)
			return p
		}
		log.Println("Ollama not available, trying OpenAI fallback...")
	case "openai":
	default:
		p := NewGeminiProvider(model, geminiKeyEnv)
		if p.IsConfigured() {
			log.Printf("Using Gemini with model: %s", model)
			return p
		}
		log.Printf("%s not set, trying OpenAI fallback...", geminiKeyEnv)
	}

	p := NewOpenAIProvider(openaiModel, apiKeyEnv)
	if p.IsConfigured() {
		log.Printf("Using OpenAI with model: %s", openaiModel)
		return p
	}

	log.Printf("No LLM provider available. Set %s or %s, or start Ollama.", geminiKeyEnv, apiKeyEnv)
	return nil
}
