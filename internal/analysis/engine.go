package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"riskai/internal/artifact"
	"riskai/internal/cache"
	"riskai/internal/config"
	"riskai/internal/errors"
	"riskai/internal/llm"
	"riskai/internal/redact"
)

// maxConcurrency limits parallel LLM calls.
const maxConcurrency = 4

// Engine orchestrates the analysis agents over an LLM client, consulting
// the artifact store before invoking the model and saving new artifacts
// after.
type Engine struct {
	client llm.Client
	store  *cache.Store
	cfg    config.Config
	log    *zap.Logger
}

// NewEngine creates an analysis engine. store may be nil when caching is
// disabled.
func NewEngine(client llm.Client, store *cache.Store, cfg config.Config, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{client: client, store: store, cfg: cfg, log: log}
}

// Analyze runs the full agent pipeline over the request.
func (e *Engine) Analyze(ctx context.Context, req Request) (*Result, error) {
	in := prepareInputs(req)

	var processed *Inputs
	if req.EnablePreprocessing {
		in = e.Preprocess(ctx, in, req.ExtremeMode)
		cp := in
		processed = &cp
	}

	if e.cfg.Privacy.RedactSecrets {
		in = redactInputs(in)
	}

	useCache := req.UseCache && e.store != nil
	var codeHash string
	if useCache {
		h, err := cache.CodeFingerprint(in.Code)
		if err != nil {
			useCache = false
		} else {
			codeHash = h
		}
	}

	cachedBugs := e.cachedBugs(ctx, useCache, codeHash)
	cachedVulns := e.cachedVulnerabilities(ctx, useCache, codeHash)
	cachedRecs := e.cachedRecommendations(ctx, useCache, codeHash)
	cachedVerdicts := e.cachedVerdicts(ctx, useCache, codeHash)

	userPrompt := buildAnalysisPrompt(in)

	var (
		codeReq  codeRequirementsResult
		testReq  testRequirementsResult
		testCode testCodeResult
		bugs     bugDetectorResult
		vulns    vulnerabilityDetectorResult
		recs     bestPracticesResult
	)

	agents := []struct {
		name   string
		skip   bool
		system string
		out    any
	}{
		{"code_requirements", false, codeRequirementsPrompt, &codeReq},
		{"test_requirements", false, testRequirementsPrompt, &testReq},
		{"test_code", false, testCodePrompt, &testCode},
		{"bug_detector", len(cachedBugs) > 0, bugDetectorPrompt, &bugs},
		{"vulnerability_detector", len(cachedVulns) > 0, vulnerabilityDetectorPrompt, &vulns},
		{"best_practices", len(cachedRecs) > 0, bestPracticesPrompt, &recs},
	}

	errs := make([]error, len(agents))
	var wg sync.WaitGroup
	sem := make(chan struct{}, maxConcurrency)

	for i, agent := range agents {
		if agent.skip {
			continue
		}
		wg.Add(1)
		go func(i int, name, system string, out any) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			e.log.Info("running agent", zap.String("agent", name))
			errs[i] = e.callAgent(ctx, name, system, userPrompt, out)
		}(i, agent.name, agent.system, agent.out)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", agents[i].name, err)
		}
	}

	bugs.Bugs = append(bugs.Bugs, cachedBugs...)
	vulns.Vulnerabilities = append(vulns.Vulnerabilities, cachedVulns...)
	recs.Recommendations = append(recs.Recommendations, cachedRecs...)

	final, err := e.finalReport(ctx, map[string]any{
		"code_requirements_result":      codeReq,
		"test_requirements_result":      testReq,
		"test_code_result":              testCode,
		"bug_detector_result":           bugs,
		"vulnerability_detector_result": vulns,
		"best_practices_result":         recs,
	})
	if err != nil {
		return nil, err
	}

	result := &Result{
		Metrics:                 final.Metrics,
		Bugs:                    final.Bugs,
		Vulnerabilities:         final.Vulnerabilities,
		Recommendations:         final.Recommendations,
		Summary:                 final.Summary,
		SatisfiedRequirements:   final.SatisfiedRequirements,
		UnsatisfiedRequirements: final.UnsatisfiedRequirements,
		ProcessedData:           processed,
	}
	if result.Bugs == nil {
		result.Bugs = []artifact.Bug{}
	}
	if result.Vulnerabilities == nil {
		result.Vulnerabilities = []artifact.Vulnerability{}
	}
	if result.Recommendations == nil {
		result.Recommendations = []artifact.Recommendation{}
	}

	for _, v := range cachedVerdicts {
		if v.Satisfied {
			result.SatisfiedRequirements = appendUnique(result.SatisfiedRequirements, v.Requirement)
		} else {
			result.UnsatisfiedRequirements = appendUnique(result.UnsatisfiedRequirements, v.Requirement)
		}
	}

	if useCache {
		e.saveArtifacts(ctx, codeHash, result)
	}

	return result, nil
}

// finalReport merges the individual agent outputs into one result. When
// the model reply cannot be parsed, a default result with an explanatory
// summary is returned instead of failing the analysis.
func (e *Engine) finalReport(ctx context.Context, reportData map[string]any) (finalReportResult, error) {
	payload, err := json.Marshal(reportData)
	if err != nil {
		return finalReportResult{}, errors.NewInternal(err)
	}

	resp, err := e.client.Complete(ctx, llm.Request{
		SystemPrompt: finalReportPrompt,
		UserPrompt:   "Agent outputs:\n" + string(payload),
		MaxTokens:    8192,
	})
	if err != nil {
		return finalReportResult{}, upstreamError("final_report", err)
	}

	var final finalReportResult
	if !llm.ExtractJSON(resp.Content, &final) {
		e.log.Warn("final report reply had no parseable JSON, using defaults")
		final.Summary = "Could not extract analysis results. Please try again."
	}
	return final, nil
}

// callAgent invokes one agent and parses its JSON reply into out. A
// reply with no parseable JSON degrades to the zero value, matching the
// defaults the pipeline uses when a model answer is unusable.
func (e *Engine) callAgent(ctx context.Context, name, system, user string, out any) error {
	resp, err := e.client.Complete(ctx, llm.Request{
		SystemPrompt: system,
		UserPrompt:   user,
		MaxTokens:    8192,
	})
	if err != nil {
		return upstreamError(name, err)
	}
	if !llm.ExtractJSON(resp.Content, out) {
		e.log.Warn("agent reply had no parseable JSON, using defaults", zap.String("agent", name))
	}
	return nil
}

// Preprocess cleans up each non-empty input field through the
// preprocessor agent. A failed field keeps its original text.
func (e *Engine) Preprocess(ctx context.Context, in Inputs, extreme bool) Inputs {
	prompt := preprocessorNormalPrompt
	if extreme {
		prompt = preprocessorExtremePrompt
	}

	out := in
	fields := []struct {
		name string
		text string
		dst  *string
	}{
		{"story", in.Story, &out.Story},
		{"requirements", in.Requirements, &out.Requirements},
		{"code", in.Code, &out.Code},
		{"test_cases", in.TestCases, &out.TestCases},
	}

	for _, f := range fields {
		if f.text == "" {
			continue
		}
		resp, err := e.client.Complete(ctx, llm.Request{
			SystemPrompt: prompt,
			UserPrompt:   buildPreprocessPrompt(f.name, f.text),
			MaxTokens:    8192,
		})
		if err != nil || resp.Content == "" {
			e.log.Warn("preprocessing failed, keeping original text",
				zap.String("field", f.name), zap.Error(err))
			continue
		}
		*f.dst = resp.Content
	}
	return out
}

func (e *Engine) cachedBugs(ctx context.Context, useCache bool, codeHash string) []artifact.Bug {
	if !useCache {
		return nil
	}
	records, err := e.store.FindByContentHash(ctx, artifact.KindBug, codeHash)
	if err != nil {
		e.log.Warn("bug cache lookup failed", zap.Error(err))
		return nil
	}
	var out []artifact.Bug
	for _, rec := range records {
		if rec.Payload.Bug == nil {
			continue
		}
		b := *rec.Payload.Bug
		b.FromCache = true
		out = append(out, b)
	}
	return out
}

func (e *Engine) cachedVulnerabilities(ctx context.Context, useCache bool, codeHash string) []artifact.Vulnerability {
	if !useCache {
		return nil
	}
	records, err := e.store.FindByContentHash(ctx, artifact.KindVulnerability, codeHash)
	if err != nil {
		e.log.Warn("vulnerability cache lookup failed", zap.Error(err))
		return nil
	}
	var out []artifact.Vulnerability
	for _, rec := range records {
		if rec.Payload.Vulnerability == nil {
			continue
		}
		v := *rec.Payload.Vulnerability
		v.FromCache = true
		out = append(out, v)
	}
	return out
}

func (e *Engine) cachedRecommendations(ctx context.Context, useCache bool, codeHash string) []artifact.Recommendation {
	if !useCache {
		return nil
	}
	records, err := e.store.FindByContentHash(ctx, artifact.KindRecommendation, codeHash)
	if err != nil {
		e.log.Warn("recommendation cache lookup failed", zap.Error(err))
		return nil
	}
	var out []artifact.Recommendation
	for _, rec := range records {
		if rec.Payload.Recommendation == nil {
			continue
		}
		r := *rec.Payload.Recommendation
		r.FromCache = true
		out = append(out, r)
	}
	return out
}

func (e *Engine) cachedVerdicts(ctx context.Context, useCache bool, codeHash string) []artifact.RequirementVerdict {
	if !useCache {
		return nil
	}
	records, err := e.store.FindByContentHash(ctx, artifact.KindRequirement, codeHash)
	if err != nil {
		e.log.Warn("requirement cache lookup failed", zap.Error(err))
		return nil
	}
	var out []artifact.RequirementVerdict
	for _, rec := range records {
		if rec.Payload.Requirement == nil {
			continue
		}
		v := *rec.Payload.Requirement
		v.FromCache = true
		out = append(out, v)
	}
	return out
}

// saveArtifacts persists freshly produced artifacts. Adds are
// idempotent: an item ID already stored keeps its record and
// bookkeeping, so a re-analysis never resets use_count or created_at.
// Storage failures only forfeit caching; they never fail the analysis.
func (e *Engine) saveArtifacts(ctx context.Context, codeHash string, result *Result) {
	for _, b := range result.Bugs {
		if b.FromCache {
			continue
		}
		digest, err := cache.Fingerprint(b.Description + b.CodeSnippet)
		if err != nil {
			continue
		}
		id := cache.ItemID("bug", digest)
		if _, _, err := e.store.PutIfAbsent(ctx, id, codeHash, artifact.BugPayload(b), []string{"bug", b.Severity}); err != nil {
			e.log.Warn("saving bug to cache failed", zap.String("item_id", id), zap.Error(err))
		}
	}

	for _, v := range result.Vulnerabilities {
		if v.FromCache {
			continue
		}
		digest, err := cache.Fingerprint(v.Description + v.CodeSnippet)
		if err != nil {
			continue
		}
		id := cache.ItemID("vuln", digest)
		if _, _, err := e.store.PutIfAbsent(ctx, id, codeHash, artifact.VulnerabilityPayload(v), []string{"vulnerability", v.Severity}); err != nil {
			e.log.Warn("saving vulnerability to cache failed", zap.String("item_id", id), zap.Error(err))
		}
	}

	for _, r := range result.Recommendations {
		if r.FromCache {
			continue
		}
		digest, err := cache.Fingerprint(r.Description + r.CodeSnippet)
		if err != nil {
			continue
		}
		id := cache.ItemID("rec", digest)
		if _, _, err := e.store.PutIfAbsent(ctx, id, codeHash, artifact.RecommendationPayload(r), []string{"recommendation"}); err != nil {
			e.log.Warn("saving recommendation to cache failed", zap.String("item_id", id), zap.Error(err))
		}
	}

	e.saveVerdicts(ctx, codeHash, result.SatisfiedRequirements, true)
	e.saveVerdicts(ctx, codeHash, result.UnsatisfiedRequirements, false)
}

func (e *Engine) saveVerdicts(ctx context.Context, codeHash string, requirements []string, satisfied bool) {
	status := "unsatisfied"
	if satisfied {
		status = "satisfied"
	}
	for _, req := range requirements {
		digest, err := cache.Fingerprint(req)
		if err != nil {
			continue
		}
		id := cache.ItemID("req", digest)
		payload := artifact.RequirementPayload(artifact.RequirementVerdict{
			Requirement: req,
			Satisfied:   satisfied,
		})
		if _, _, err := e.store.PutIfAbsent(ctx, id, codeHash, payload, []string{"requirement", status}); err != nil {
			e.log.Warn("saving requirement verdict to cache failed", zap.String("item_id", id), zap.Error(err))
		}
	}
}

func prepareInputs(req Request) Inputs {
	in := Inputs{
		Story:        req.Story,
		Requirements: req.Requirements,
		Code:         req.Code,
		TestCases:    req.TestCases,
	}
	if in.Story == "" {
		in.Story = config.DefaultStory
	}
	if in.Requirements == "" {
		in.Requirements = config.DefaultRequirements
	}
	if in.Code == "" {
		in.Code = config.DefaultCode
	}
	if in.TestCases == "" {
		in.TestCases = config.DefaultTestCases
	}
	return in
}

func redactInputs(in Inputs) Inputs {
	return Inputs{
		Story:        redact.Secrets(in.Story),
		Requirements: redact.Secrets(in.Requirements),
		Code:         redact.Secrets(in.Code),
		TestCases:    redact.Secrets(in.TestCases),
	}
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}

func upstreamError(op string, err error) error {
	if llm.IsAuthError(err) {
		return errors.NewAuth(err.Error())
	}
	return errors.NewUpstream("model call failed during "+op, err)
}
