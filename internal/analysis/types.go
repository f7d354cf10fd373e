package analysis

import (
	"riskai/internal/artifact"
)

// Inputs are the four text fields an analysis runs over.
type Inputs struct {
	Story        string `json:"story"`
	Requirements string `json:"requirements"`
	Code         string `json:"code"`
	TestCases    string `json:"test_cases"`
}

// Request is a code analysis request.
type Request struct {
	Story               string `json:"story"`
	Requirements        string `json:"requirements"`
	Code                string `json:"code"`
	TestCases           string `json:"test_cases"`
	UseCache            bool   `json:"use_cache"`
	EnablePreprocessing bool   `json:"enable_preprocessing"`
	ExtremeMode         bool   `json:"extreme_mode"`
}

// Metrics are the match percentages computed by the metric agents.
type Metrics struct {
	CodeRequirementsMatch float64 `json:"code_requirements_match"`
	TestRequirementsMatch float64 `json:"test_requirements_match"`
	TestCodeMatch         float64 `json:"test_code_match"`
}

// Result is the full outcome of a code analysis.
type Result struct {
	Metrics                 Metrics                   `json:"metrics"`
	Bugs                    []artifact.Bug            `json:"bugs"`
	Vulnerabilities         []artifact.Vulnerability  `json:"vulnerabilities"`
	Recommendations         []artifact.Recommendation `json:"recommendations"`
	Summary                 string                    `json:"summary"`
	SatisfiedRequirements   []string                  `json:"satisfied_requirements,omitempty"`
	UnsatisfiedRequirements []string                  `json:"unsatisfied_requirements,omitempty"`
	ProcessedData           *Inputs                   `json:"processed_data,omitempty"`
}

// ProblematicRequirement describes one flawed requirement found by the
// requirements analyzer.
type ProblematicRequirement struct {
	Requirement    string `json:"requirement"`
	Description    string `json:"description"`
	Severity       string `json:"severity"`
	Type           string `json:"type"`
	Recommendation string `json:"recommendation,omitempty"`
}

// RequirementsResult is the outcome of a requirements quality analysis.
type RequirementsResult struct {
	TotalScore              float64                  `json:"total_score"`
	ClarityScore            float64                  `json:"clarity_score"`
	CompletenessScore       float64                  `json:"completeness_score"`
	ConsistencyScore        float64                  `json:"consistency_score"`
	TestabilityScore        float64                  `json:"testability_score"`
	FeasibilityScore        float64                  `json:"feasibility_score"`
	ProblematicRequirements []ProblematicRequirement `json:"problematic_requirements"`
	MissingAspects          []string                 `json:"missing_aspects,omitempty"`
	ImprovementSuggestions  []string                 `json:"improvement_suggestions,omitempty"`
	OverallAssessment       string                   `json:"overall_assessment"`
}

// Intermediate agent outputs. Field names match what the prompts ask
// the model to return.

type codeRequirementsResult struct {
	CodeRequirementsMatch    float64            `json:"code_requirements_match"`
	MissingRequirements      []requirementIssue `json:"missing_requirements"`
	IncorrectImplementations []requirementIssue `json:"incorrect_implementations"`
}

type requirementIssue struct {
	Requirement string `json:"requirement"`
	CodeSnippet string `json:"code_snippet,omitempty"`
	Description string `json:"description"`
}

type testRequirementsResult struct {
	TestRequirementsMatch float64            `json:"test_requirements_match"`
	MissingTestCases      []requirementIssue `json:"missing_test_cases"`
	IncompleteTestCases   []requirementIssue `json:"incomplete_test_cases"`
}

type testCodeResult struct {
	TestCodeMatch  float64     `json:"test_code_match"`
	UntestedCode   []testIssue `json:"untested_code"`
	IncorrectTests []testIssue `json:"incorrect_tests"`
}

type testIssue struct {
	Function    string `json:"function,omitempty"`
	Test        string `json:"test,omitempty"`
	TestSnippet string `json:"test_snippet,omitempty"`
	Description string `json:"description"`
}

type bugDetectorResult struct {
	Bugs []artifact.Bug `json:"bugs"`
}

type vulnerabilityDetectorResult struct {
	Vulnerabilities []artifact.Vulnerability `json:"vulnerabilities"`
}

type bestPracticesResult struct {
	Recommendations []artifact.Recommendation `json:"recommendations"`
}

type finalReportResult struct {
	Metrics                 Metrics                   `json:"metrics"`
	Bugs                    []artifact.Bug            `json:"bugs"`
	Vulnerabilities         []artifact.Vulnerability  `json:"vulnerabilities"`
	Recommendations         []artifact.Recommendation `json:"recommendations"`
	Summary                 string                    `json:"summary"`
	SatisfiedRequirements   []string                  `json:"satisfied_requirements"`
	UnsatisfiedRequirements []string                  `json:"unsatisfied_requirements"`
}
