package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestParseJSONResponsePlain(t *testing.T) {
	result, err := ParseJSONResponse(`{"key": "value", "num": 42}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result["key"] != "value" {
		t.Errorf("expected key='value', got %v", result["key"])
	}
	if result["num"] != float64(42) {
		t.Errorf("expected num=42, got %v", result["num"])
	}
}

func TestParseJSONResponseWithCodeFence(t *testing.T) {
	text := "```json\n{\"key\": \"value\"}\n```"
	result, err := ParseJSONResponse(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result["key"] != "value" {
		t.Errorf("expected key='value', got %v", result["key"])
	}
}

func TestParseJSONResponseWithPlainFence(t *testing.T) {
	text := "```\n{\"key\": \"value\"}\n```"
	result, err := ParseJSONResponse(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result["key"] != "value" {
		t.Errorf("expected key='value', got %v", result["key"])
	}
}

func TestParseJSONResponseInvalid(t *testing.T) {
	result, err := ParseJSONResponse("not json at all")
	if result != nil || err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestParseJSONResponseEmpty(t *testing.T) {
	result, err := ParseJSONResponse("")
	if result != nil || err == nil {
		t.Error("expected error for empty string")
	}
}

func TestParseJSONResponseWhitespace(t *testing.T) {
	result, err := ParseJSONResponse("  \n  {\"key\": \"value\"}  \n  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result["key"] != "value" {
		t.Errorf("expected key='value', got %v", result["key"])
	}
}

func TestParseJSONResponseSurroundingProse(t *testing.T) {
	result, err := ParseJSONResponse("Here is the result:\n{\"year\": 2021, \"nested\": {\"a\": 1}}\nHope this helps.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result["year"] != float64(2021) {
		t.Errorf("expected year=2021, got %v", result["year"])
	}
}

func TestDecodeReplyValidatesSchema(t *testing.T) {
	schema := map[string]any{
		"type":     "object",
		"required": []any{"score"},
		"properties": map[string]any{
			"score": map[string]any{"type": "number"},
		},
	}

	var out struct {
		Score float64 `json:"score"`
	}
	if err := DecodeReply("```json\n{\"score\": 72}\n```", schema, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Score != 72 {
		t.Errorf("expected score 72, got %v", out.Score)
	}

	if err := DecodeReply(`{"score": "high"}`, schema, &out); err == nil {
		t.Error("expected schema error for string score")
	}
	if err := DecodeReply(`{"grade": "A"}`, schema, &out); err == nil {
		t.Error("expected schema error for missing score")
	}
	if err := DecodeReply("[1, 2]", schema, &out); err == nil {
		t.Error("expected error for a reply that is not an object")
	}
}

func TestGeminiComplete(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"ok\":"},{"text":"true}"}]}}]}`))
	}))
	defer srv.Close()

	g := &GeminiProvider{Model: "gemini-2.5-flash", APIKey: "k", BaseURL: srv.URL, client: srv.Client()}
	out, err := g.Complete(context.Background(), Request{
		Model:  "gemini-2.0-flash",
		Prompt: "describe",
		Images: []Image{{MIMEType: "image/jpeg", Data: []byte{0xff, 0xd8}}},
		JSON:   true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != `{"ok":true}` {
		t.Errorf("expected joined parts, got %q", out)
	}
	if gotPath != "/models/gemini-2.0-flash:generateContent" {
		t.Errorf("expected request model in path, got %s", gotPath)
	}
	if gotKey != "k" {
		t.Errorf("expected api key header, got %q", gotKey)
	}
	contents := gotBody["contents"].([]any)
	parts := contents[0].(map[string]any)["parts"].([]any)
	if len(parts) != 2 {
		t.Fatalf("expected text and image parts, got %d", len(parts))
	}
	if _, ok := parts[1].(map[string]any)["inline_data"]; !ok {
		t.Error("expected inline_data part")
	}
	cfg := gotBody["generationConfig"].(map[string]any)
	if cfg["responseMimeType"] != "application/json" {
		t.Errorf("expected JSON mime type, got %v", cfg["responseMimeType"])
	}
}

func TestAPIErrorClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"Quota exceeded for metric generate_content_free_tier_requests, limit: 0"}}`))
	}))
	defer srv.Close()

	g := &GeminiProvider{Model: "m", APIKey: "k", BaseURL: srv.URL, client: srv.Client()}
	_, err := g.Complete(context.Background(), Request{Prompt: "x"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", apiErr.StatusCode)
	}
	if !apiErr.IsZeroQuota() {
		t.Error("expected zero-quota signal")
	}
	if apiErr.RetryAfter != 7*time.Second {
		t.Errorf("expected Retry-After 7s, got %v", apiErr.RetryAfter)
	}

	burst := &APIError{StatusCode: http.StatusTooManyRequests, Body: "Resource has been exhausted"}
	if burst.IsZeroQuota() {
		t.Error("expected burst limit not to be zero-quota")
	}
}

func TestOpenAICompleteWithImages(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"choices":[{"message":{"content":"fine"}}]}`))
	}))
	defer srv.Close()

	o := &OpenAIProvider{Model: "gpt-4o-mini", APIKey: "k", BaseURL: srv.URL, client: srv.Client()}
	out, err := o.Complete(context.Background(), Request{
		Prompt: "grade",
		Images: []Image{{MIMEType: "image/png", Data: []byte("png")}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "fine" {
		t.Errorf("expected 'fine', got %q", out)
	}
	msgs := gotBody["messages"].([]any)
	content := msgs[0].(map[string]any)["content"].([]any)
	img := content[1].(map[string]any)["image_url"].(map[string]any)["url"].(string)
	if !strings.HasPrefix(img, "data:image/png;base64,") {
		t.Errorf("expected data URI, got %s", img)
	}
}
