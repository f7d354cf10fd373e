package cache

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"riskai/internal/errors"
)

// Fingerprint derives a deterministic digest from normalized content for
// use as a store lookup key. Whitespace runs are collapsed so that
// reflowed but otherwise identical text maps to the same key.
func Fingerprint(content string) (string, error) {
	normalized := strings.Join(strings.Fields(content), " ")
	if normalized == "" {
		return "", errors.NewInvalidInput("content is empty")
	}
	return hashString(normalized), nil
}

// CodeFingerprint derives a digest from source code with comments and
// insignificant whitespace removed, so that cosmetic edits map to the
// same key. Comment stripping covers /* */ blocks and // and # line
// comments, which is intentionally language-agnostic.
func CodeFingerprint(code string) (string, error) {
	cleaned := stripBlockComments(strings.TrimSpace(code))
	cleaned = stripLineComments(cleaned)
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	if cleaned == "" {
		return "", errors.NewInvalidInput("code is empty after normalization")
	}
	return hashString(cleaned), nil
}

// ItemID composes a store key from an artifact kind prefix and a digest,
// e.g. "req_f343c6a4...".
func ItemID(prefix, digest string) string {
	return prefix + "_" + digest
}

func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", h[:16])
}

func stripBlockComments(code string) string {
	result := code
	for {
		start := strings.Index(result, "/*")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "*/")
		if end == -1 {
			break
		}
		result = result[:start] + " " + result[start+end+2:]
	}
	return result
}

func stripLineComments(code string) string {
	lines := strings.Split(code, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if i := strings.Index(line, "//"); i != -1 {
			line = line[:i]
		}
		if i := strings.Index(line, "#"); i != -1 {
			line = line[:i]
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
