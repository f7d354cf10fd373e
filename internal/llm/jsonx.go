package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	bareObjectRE = regexp.MustCompile(`(?s)\{.*\}`)
	fencedRE     = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
)

// ExtractJSON finds and parses a JSON object embedded in model output.
// It first tries the widest bare {...} span, then falls back to fenced
// code blocks. Returns false when no valid object can be found.
func ExtractJSON(text string, v any) bool {
	if match := bareObjectRE.FindString(text); match != "" {
		if json.Unmarshal([]byte(match), v) == nil {
			return true
		}
	}
	for _, m := range fencedRE.FindAllStringSubmatch(text, -1) {
		block := strings.TrimSpace(m[1])
		if block == "" {
			continue
		}
		if json.Unmarshal([]byte(block), v) == nil {
			return true
		}
	}
	return false
}
