package output

import (
	"fmt"
	"io"
	"strings"

	"riskai/internal/analysis"
)

// MarkdownWriter outputs a PR-comment-friendly markdown report.
type MarkdownWriter struct{}

func (m *MarkdownWriter) Write(w io.Writer, result *analysis.Result) error {
	fmt.Fprintf(w, "## Code Analysis Report\n\n")

	fmt.Fprintf(w, "| Metric | Match |\n")
	fmt.Fprintf(w, "|--------|-------|\n")
	fmt.Fprintf(w, "| Code vs requirements  | %.1f%% |\n", result.Metrics.CodeRequirementsMatch)
	fmt.Fprintf(w, "| Tests vs requirements | %.1f%% |\n", result.Metrics.TestRequirementsMatch)
	fmt.Fprintf(w, "| Tests vs code         | %.1f%% |\n\n", result.Metrics.TestCodeMatch)

	total := len(result.Bugs) + len(result.Vulnerabilities) + len(result.Recommendations)
	if total == 0 {
		fmt.Fprintln(w, "No issues found. :white_check_mark:")
	}

	if len(result.Bugs) > 0 {
		fmt.Fprintf(w, "<details>\n<summary>:red_circle: BUGS (%d)</summary>\n\n", len(result.Bugs))
		for _, b := range result.Bugs {
			fmt.Fprintf(w, "### %s%s\n\n", firstLine(b.Description), mdCacheMark(b.FromCache))
			fmt.Fprintf(w, "**Severity:** %s\n\n", b.Severity)
			fmt.Fprintf(w, "%s\n\n", b.Description)
			if b.CodeSnippet != "" {
				fmt.Fprintf(w, "```\n%s\n```\n\n", b.CodeSnippet)
			}
			if b.Fix != "" {
				fmt.Fprintf(w, "**Fix:** %s\n\n", b.Fix)
			}
			fmt.Fprintf(w, "---\n\n")
		}
		fmt.Fprintf(w, "</details>\n\n")
	}

	if len(result.Vulnerabilities) > 0 {
		fmt.Fprintf(w, "<details>\n<summary>:closed_lock_with_key: VULNERABILITIES (%d)</summary>\n\n", len(result.Vulnerabilities))
		for _, v := range result.Vulnerabilities {
			fmt.Fprintf(w, "### %s%s\n\n", firstLine(v.Description), mdCacheMark(v.FromCache))
			fmt.Fprintf(w, "**Severity:** %s\n\n", v.Severity)
			fmt.Fprintf(w, "%s\n\n", v.Description)
			if v.CodeSnippet != "" {
				fmt.Fprintf(w, "```\n%s\n```\n\n", v.CodeSnippet)
			}
			if v.Mitigation != "" {
				fmt.Fprintf(w, "**Mitigation:** %s\n\n", v.Mitigation)
			}
			fmt.Fprintf(w, "---\n\n")
		}
		fmt.Fprintf(w, "</details>\n\n")
	}

	if len(result.Recommendations) > 0 {
		fmt.Fprintf(w, "<details>\n<summary>:bulb: RECOMMENDATIONS (%d)</summary>\n\n", len(result.Recommendations))
		for _, r := range result.Recommendations {
			fmt.Fprintf(w, "### %s%s\n\n", firstLine(r.Description), mdCacheMark(r.FromCache))
			fmt.Fprintf(w, "%s\n\n", r.Description)
			if r.ImprovedCode != "" {
				fmt.Fprintf(w, "**Improved code:**\n\n```\n%s\n```\n\n", r.ImprovedCode)
			}
			if r.Reason != "" {
				fmt.Fprintf(w, "> %s\n\n", strings.ReplaceAll(r.Reason, "\n", "\n> "))
			}
			fmt.Fprintf(w, "---\n\n")
		}
		fmt.Fprintf(w, "</details>\n\n")
	}

	if len(result.UnsatisfiedRequirements) > 0 {
		fmt.Fprintf(w, "**Unsatisfied requirements:**\n\n")
		for _, req := range result.UnsatisfiedRequirements {
			fmt.Fprintf(w, "- %s\n", req)
		}
		fmt.Fprintln(w)
	}

	if result.Summary != "" {
		fmt.Fprintf(w, "*%s*\n", result.Summary)
	}

	return nil
}

func mdCacheMark(fromCache bool) string {
	if fromCache {
		return " *(cached)*"
	}
	return ""
}
