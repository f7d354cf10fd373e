package output

import (
	"fmt"
	"io"
	"strings"

	"riskai/internal/analysis"
)

// TextWriter outputs a human-readable text report.
type TextWriter struct{}

func (t *TextWriter) Write(w io.Writer, result *analysis.Result) error {
	ew := &errWriter{w: w}

	ew.println("Code Analysis Report")
	ew.println(strings.Repeat("─", 60))
	ew.printf("Code vs requirements:  %5.1f%%\n", result.Metrics.CodeRequirementsMatch)
	ew.printf("Tests vs requirements: %5.1f%%\n", result.Metrics.TestRequirementsMatch)
	ew.printf("Tests vs code:         %5.1f%%\n", result.Metrics.TestCodeMatch)
	ew.println(strings.Repeat("─", 60))

	total := len(result.Bugs) + len(result.Vulnerabilities) + len(result.Recommendations)
	if total == 0 {
		ew.println("\nNo issues found. Looks good!")
	}

	if len(result.Bugs) > 0 {
		ew.printf("\n[!!] BUGS (%d)\n", len(result.Bugs))
		ew.println(strings.Repeat("─", 40))
		for _, b := range result.Bugs {
			ew.printf("\n  [%s]%s %s\n", b.Severity, cacheMark(b.FromCache), firstLine(b.Description))
			for _, line := range wrapText(b.Description, 70) {
				ew.printf("    %s\n", line)
			}
			if b.CodeSnippet != "" {
				ew.printf("    Code: %s\n", firstLine(b.CodeSnippet))
			}
			if b.Fix != "" {
				ew.println("  Fix:")
				for _, line := range wrapText(b.Fix, 70) {
					ew.printf("    %s\n", line)
				}
			}
		}
	}

	if len(result.Vulnerabilities) > 0 {
		ew.printf("\n[!!] VULNERABILITIES (%d)\n", len(result.Vulnerabilities))
		ew.println(strings.Repeat("─", 40))
		for _, v := range result.Vulnerabilities {
			ew.printf("\n  [%s]%s %s\n", v.Severity, cacheMark(v.FromCache), firstLine(v.Description))
			if v.CodeSnippet != "" {
				ew.printf("    Code: %s\n", firstLine(v.CodeSnippet))
			}
			if v.Mitigation != "" {
				ew.println("  Mitigation:")
				for _, line := range wrapText(v.Mitigation, 70) {
					ew.printf("    %s\n", line)
				}
			}
		}
	}

	if len(result.Recommendations) > 0 {
		ew.printf("\n[-] RECOMMENDATIONS (%d)\n", len(result.Recommendations))
		ew.println(strings.Repeat("─", 40))
		for _, r := range result.Recommendations {
			ew.printf("\n  %s%s\n", cacheMark(r.FromCache), firstLine(r.Description))
			if r.Reason != "" {
				for _, line := range wrapText(r.Reason, 70) {
					ew.printf("    %s\n", line)
				}
			}
		}
	}

	if len(result.UnsatisfiedRequirements) > 0 {
		ew.printf("\nUnsatisfied requirements (%d):\n", len(result.UnsatisfiedRequirements))
		for _, req := range result.UnsatisfiedRequirements {
			ew.printf("  - %s\n", req)
		}
	}

	if result.Summary != "" {
		ew.printf("\n%s\n", strings.Repeat("─", 60))
		for _, line := range wrapText(result.Summary, 78) {
			ew.println(line)
		}
	}

	return ew.err
}

// errWriter wraps an io.Writer and captures the first error.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...interface{}) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func (ew *errWriter) println(s string) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintln(ew.w, s)
}

func cacheMark(fromCache bool) string {
	if fromCache {
		return " (cached)"
	}
	return ""
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

func wrapText(text string, width int) []string {
	if len(text) <= width {
		return []string{text}
	}
	var lines []string
	words := strings.Fields(text)
	var current strings.Builder
	for _, word := range words {
		if current.Len()+len(word)+1 > width && current.Len() > 0 {
			lines = append(lines, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		lines = append(lines, current.String())
	}
	return lines
}
