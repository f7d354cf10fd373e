package analysis

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"riskai/internal/artifact"
	"riskai/internal/cache"
	"riskai/internal/redact"
)

// RequirementsRequest is a requirements quality analysis request.
type RequirementsRequest struct {
	Requirements string `json:"requirements"`
	Guidelines   string `json:"guidelines,omitempty"`
	UseCache     bool   `json:"use_cache"`
}

// AnalyzeRequirements assesses requirement quality. Texts larger than
// the configured chunk size are split with overlap, analyzed per chunk
// in parallel, and merged.
func (e *Engine) AnalyzeRequirements(ctx context.Context, req RequirementsRequest) (*RequirementsResult, error) {
	chunkSize := e.cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 4000
	}
	overlap := e.cfg.ChunkOverlap
	if overlap <= 0 || overlap >= chunkSize {
		overlap = chunkSize / 8
	}

	text := req.Requirements
	if e.cfg.Privacy.RedactSecrets {
		text = redact.Secrets(text)
	}

	var result *RequirementsResult
	if len(text) <= chunkSize {
		single, err := e.analyzeRequirementsChunk(ctx, text, req.Guidelines, "")
		if err != nil {
			return nil, err
		}
		result = single
	} else {
		chunks := splitText(text, chunkSize, overlap)
		e.log.Info("requirements text split for chunked analysis",
			zap.Int("chars", len(text)), zap.Int("chunks", len(chunks)))

		results := make([]*RequirementsResult, len(chunks))
		errs := make([]error, len(chunks))
		var wg sync.WaitGroup
		sem := make(chan struct{}, maxConcurrency)

		for i, chunk := range chunks {
			wg.Add(1)
			go func(i int, chunk string) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()

				info := fmt.Sprintf("This is part %d of %d of the full requirements text.", i+1, len(chunks))
				results[i], errs[i] = e.analyzeRequirementsChunk(ctx, chunk, req.Guidelines, info)
			}(i, chunk)
		}
		wg.Wait()

		for i, err := range errs {
			if err != nil {
				return nil, fmt.Errorf("chunk %d: %w", i, err)
			}
		}
		result = mergeRequirementsResults(results)
	}

	if req.UseCache && e.store != nil {
		e.saveProblematicRequirements(ctx, result.ProblematicRequirements)
	}
	return result, nil
}

func (e *Engine) analyzeRequirementsChunk(ctx context.Context, requirements, guidelines, chunkInfo string) (*RequirementsResult, error) {
	var out RequirementsResult
	err := e.callAgent(ctx, "requirements_analyzer", requirementsAnalyzerPrompt,
		buildRequirementsPrompt(requirements, guidelines, chunkInfo), &out)
	if err != nil {
		return nil, err
	}
	if out.ProblematicRequirements == nil {
		out.ProblematicRequirements = []ProblematicRequirement{}
	}
	return &out, nil
}

// saveProblematicRequirements records each flawed requirement as an
// unsatisfied verdict. Storage failures only forfeit caching.
func (e *Engine) saveProblematicRequirements(ctx context.Context, problems []ProblematicRequirement) {
	for _, p := range problems {
		digest, err := cache.Fingerprint(p.Requirement)
		if err != nil {
			continue
		}
		id := cache.ItemID("req", digest)
		payload := artifact.RequirementPayload(artifact.RequirementVerdict{
			Requirement: p.Requirement,
			Satisfied:   false,
		})
		if _, _, err := e.store.PutIfAbsent(ctx, id, digest, payload, []string{"requirement", "unsatisfied", p.Severity}); err != nil {
			e.log.Warn("saving requirement to cache failed", zap.String("item_id", id), zap.Error(err))
		}
	}
}

// mergeRequirementsResults combines per-chunk analyses: scores are
// averaged, lists concatenated, and the assessment taken from the last
// chunk with a note that it covers a partial view.
func mergeRequirementsResults(results []*RequirementsResult) *RequirementsResult {
	if len(results) == 0 {
		return &RequirementsResult{ProblematicRequirements: []ProblematicRequirement{}}
	}
	if len(results) == 1 {
		return results[0]
	}

	merged := &RequirementsResult{
		ProblematicRequirements: []ProblematicRequirement{},
	}
	n := float64(len(results))
	for _, r := range results {
		merged.TotalScore += r.TotalScore
		merged.ClarityScore += r.ClarityScore
		merged.CompletenessScore += r.CompletenessScore
		merged.ConsistencyScore += r.ConsistencyScore
		merged.TestabilityScore += r.TestabilityScore
		merged.FeasibilityScore += r.FeasibilityScore
		merged.ProblematicRequirements = append(merged.ProblematicRequirements, r.ProblematicRequirements...)
		merged.MissingAspects = append(merged.MissingAspects, r.MissingAspects...)
		merged.ImprovementSuggestions = append(merged.ImprovementSuggestions, r.ImprovementSuggestions...)
	}
	merged.TotalScore /= n
	merged.ClarityScore /= n
	merged.CompletenessScore /= n
	merged.ConsistencyScore /= n
	merged.TestabilityScore /= n
	merged.FeasibilityScore /= n

	last := results[len(results)-1].OverallAssessment
	if last == "" {
		merged.OverallAssessment = "Analysis could not be completed."
	} else {
		merged.OverallAssessment = last + "\n\nNote: this assessment is based on the analysis of several parts of the requirements."
	}
	return merged
}

// splitText splits text into chunks of at most chunkSize characters with
// the given overlap between consecutive chunks. Chunks break at the last
// newline before the limit when one exists, otherwise at the last space.
func splitText(text string, chunkSize, overlap int) []string {
	if len(text) <= chunkSize {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + chunkSize
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			break
		}

		cut := end
		if idx := strings.LastIndexByte(text[start:end], '\n'); idx > chunkSize/2 {
			cut = start + idx + 1
		} else if idx := strings.LastIndexByte(text[start:end], ' '); idx > chunkSize/2 {
			cut = start + idx + 1
		}
		chunks = append(chunks, text[start:cut])

		next := cut - overlap
		if next <= start {
			next = cut
		}
		start = next
	}
	return chunks
}
