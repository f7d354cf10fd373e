package artifact

import (
	"encoding/json"
	"fmt"
)

// Kind identifies one artifact type produced by the analysis agents.
type Kind string

const (
	KindBug            Kind = "bug"
	KindVulnerability  Kind = "vulnerability"
	KindRecommendation Kind = "recommendation"
	KindRequirement    Kind = "requirement"
	KindDocument       Kind = "document"
)

// Bug is a defect detected in the submitted code.
type Bug struct {
	Description string `json:"description"`
	CodeSnippet string `json:"code_snippet"`
	Severity    string `json:"severity"`
	Fix         string `json:"fix,omitempty"`
	FromCache   bool   `json:"from_cache,omitempty"`
}

// Vulnerability is a security weakness detected in the submitted code.
type Vulnerability struct {
	Description     string   `json:"description"`
	CodeSnippet     string   `json:"code_snippet"`
	Severity        string   `json:"severity"`
	Mitigation      string   `json:"mitigation,omitempty"`
	AttackVectors   []string `json:"attack_vectors,omitempty"`
	PotentialImpact string   `json:"potential_impact,omitempty"`
	FromCache       bool     `json:"from_cache,omitempty"`
}

// Recommendation is a suggested improvement to the submitted code.
type Recommendation struct {
	Description  string `json:"description"`
	CodeSnippet  string `json:"code_snippet"`
	ImprovedCode string `json:"improved_code,omitempty"`
	Reason       string `json:"reason,omitempty"`
	FromCache    bool   `json:"from_cache,omitempty"`
}

// RequirementVerdict records whether one requirement is satisfied by the
// submitted code, together with the code pattern that justified the call.
type RequirementVerdict struct {
	Requirement string `json:"requirement"`
	Satisfied   bool   `json:"satisfied"`
	CodePattern string `json:"code_pattern,omitempty"`
	FromCache   bool   `json:"from_cache,omitempty"`
}

// FormattedDocument is the output of the document formatter dialogue.
type FormattedDocument struct {
	Content            string   `json:"content"`
	Completed          bool     `json:"completed"`
	MissingInformation []string `json:"missing_information,omitempty"`
	Comments           string   `json:"comments,omitempty"`
}

// Payload is a tagged union over the artifact kinds. Exactly one of the
// pointer fields matching Kind is set.
type Payload struct {
	Kind           Kind
	Bug            *Bug
	Vulnerability  *Vulnerability
	Recommendation *Recommendation
	Requirement    *RequirementVerdict
	Document       *FormattedDocument
}

// envelope is the serialized form: a kind discriminator plus the data object.
type envelope struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Validate checks that the payload carries data matching its kind.
func (p Payload) Validate() error {
	switch p.Kind {
	case KindBug:
		if p.Bug == nil {
			return fmt.Errorf("bug payload has no data")
		}
	case KindVulnerability:
		if p.Vulnerability == nil {
			return fmt.Errorf("vulnerability payload has no data")
		}
	case KindRecommendation:
		if p.Recommendation == nil {
			return fmt.Errorf("recommendation payload has no data")
		}
	case KindRequirement:
		if p.Requirement == nil {
			return fmt.Errorf("requirement payload has no data")
		}
	case KindDocument:
		if p.Document == nil {
			return fmt.Errorf("document payload has no data")
		}
	default:
		return fmt.Errorf("unknown artifact kind: %q", p.Kind)
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (p Payload) MarshalJSON() ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	var data any
	switch p.Kind {
	case KindBug:
		data = p.Bug
	case KindVulnerability:
		data = p.Vulnerability
	case KindRecommendation:
		data = p.Recommendation
	case KindRequirement:
		data = p.Requirement
	case KindDocument:
		data = p.Document
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Kind: p.Kind, Data: raw})
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Payload) UnmarshalJSON(b []byte) error {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	*p = Payload{Kind: env.Kind}
	switch env.Kind {
	case KindBug:
		p.Bug = &Bug{}
		return json.Unmarshal(env.Data, p.Bug)
	case KindVulnerability:
		p.Vulnerability = &Vulnerability{}
		return json.Unmarshal(env.Data, p.Vulnerability)
	case KindRecommendation:
		p.Recommendation = &Recommendation{}
		return json.Unmarshal(env.Data, p.Recommendation)
	case KindRequirement:
		p.Requirement = &RequirementVerdict{}
		return json.Unmarshal(env.Data, p.Requirement)
	case KindDocument:
		p.Document = &FormattedDocument{}
		return json.Unmarshal(env.Data, p.Document)
	default:
		return fmt.Errorf("unknown artifact kind: %q", env.Kind)
	}
}

// BugPayload wraps a Bug.
func BugPayload(b Bug) Payload { return Payload{Kind: KindBug, Bug: &b} }

// VulnerabilityPayload wraps a Vulnerability.
func VulnerabilityPayload(v Vulnerability) Payload {
	return Payload{Kind: KindVulnerability, Vulnerability: &v}
}

// RecommendationPayload wraps a Recommendation.
func RecommendationPayload(r Recommendation) Payload {
	return Payload{Kind: KindRecommendation, Recommendation: &r}
}

// RequirementPayload wraps a RequirementVerdict.
func RequirementPayload(r RequirementVerdict) Payload {
	return Payload{Kind: KindRequirement, Requirement: &r}
}

// DocumentPayload wraps a FormattedDocument.
func DocumentPayload(d FormattedDocument) Payload {
	return Payload{Kind: KindDocument, Document: &d}
}
