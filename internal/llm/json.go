package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ExtractJSON returns the JSON object embedded in an LLM reply, handling
// markdown code blocks and surrounding prose.
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	// Strip markdown code fences
	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		endIdx := len(lines) - 1
		for i := len(lines) - 1; i > 0; i-- {
			if strings.TrimSpace(lines[i]) == "```" {
				endIdx = i
				break
			}
		}
		text = strings.TrimSpace(strings.Join(lines[1:endIdx], "\n"))
	}

	if json.Valid([]byte(text)) {
		return text
	}

	// Fall back to the outermost braces
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return text
	}
	return text[start : end+1]
}

// ParseJSONResponse parses the JSON object in an LLM reply, handling
// markdown code blocks and surrounding prose.
func ParseJSONResponse(text string) (map[string]any, error) {
	text = ExtractJSON(text)
	if text == "" {
		return nil, errors.New("empty model reply")
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, fmt.Errorf("reply is not a JSON object: %w", err)
	}
	return result, nil
}
