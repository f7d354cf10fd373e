package analysis

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskai/internal/artifact"
	"riskai/internal/cache"
	"riskai/internal/config"
	"riskai/internal/llm"
)

// fakeClient is a scripted LLM client. respond picks the reply from the
// request; calls records every request for inspection.
type fakeClient struct {
	mu      sync.Mutex
	calls   []llm.Request
	respond func(req llm.Request) (llm.Response, error)
}

func (f *fakeClient) Complete(_ context.Context, req llm.Request) (llm.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	return f.respond(req)
}

func (f *fakeClient) Name() string { return "fake" }

func (f *fakeClient) callCount(systemFragment string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.Contains(c.SystemPrompt, systemFragment) {
			n++
		}
	}
	return n
}

// scriptedClient answers each agent with canned JSON keyed by a
// distinctive fragment of its system prompt.
func scriptedClient() *fakeClient {
	return &fakeClient{respond: func(req llm.Request) (llm.Response, error) {
		switch {
		case strings.Contains(req.SystemPrompt, "implements the stated requirements"):
			return llm.Response{Content: `{"code_requirements_match": 80, "missing_requirements": [], "incorrect_implementations": []}`}, nil
		case strings.Contains(req.SystemPrompt, "test cases cover the stated requirements"):
			return llm.Response{Content: `{"test_requirements_match": 70}`}, nil
		case strings.Contains(req.SystemPrompt, "test cases match the submitted code"):
			return llm.Response{Content: `{"test_code_match": 60}`}, nil
		case strings.Contains(req.SystemPrompt, "bug hunter"):
			return llm.Response{Content: `{"bugs": [{"description": "nil deref", "code_snippet": "p.x", "severity": "high", "fix": "check nil"}]}`}, nil
		case strings.Contains(req.SystemPrompt, "security analyst"):
			return llm.Response{Content: `{"vulnerabilities": [{"description": "sql injection", "code_snippet": "query + input", "severity": "critical", "mitigation": "use placeholders"}]}`}, nil
		case strings.Contains(req.SystemPrompt, "best practices"):
			return llm.Response{Content: `{"recommendations": [{"description": "extract function", "code_snippet": "long block", "reason": "readability"}]}`}, nil
		case strings.Contains(req.SystemPrompt, "lead reviewer"):
			return llm.Response{Content: `{
				"metrics": {"code_requirements_match": 80, "test_requirements_match": 70, "test_code_match": 60},
				"bugs": [{"description": "nil deref", "code_snippet": "p.x", "severity": "high", "fix": "check nil"}],
				"vulnerabilities": [{"description": "sql injection", "code_snippet": "query + input", "severity": "critical", "mitigation": "use placeholders"}],
				"recommendations": [{"description": "extract function", "code_snippet": "long block", "reason": "readability"}],
				"summary": "needs work",
				"satisfied_requirements": ["login works"],
				"unsatisfied_requirements": ["rate limiting"]
			}`}, nil
		default:
			return llm.Response{Content: "{}"}, nil
		}
	}}
}

func newTestEngine(t *testing.T, client llm.Client, withStore bool) (*Engine, *cache.Store) {
	t.Helper()
	var store *cache.Store
	if withStore {
		store = cache.NewStore(cache.NewMemoryBackend())
		t.Cleanup(func() { store.Close() })
	}
	cfg := config.Default()
	return NewEngine(client, store, cfg, nil), store
}

func TestAnalyze_MergesAgentFindings(t *testing.T) {
	client := scriptedClient()
	engine, _ := newTestEngine(t, client, false)

	result, err := engine.Analyze(context.Background(), Request{
		Story:        "login feature",
		Requirements: "users can log in",
		Code:         "func Login() {}",
		TestCases:    "TestLogin",
	})
	require.NoError(t, err)

	assert.Equal(t, 80.0, result.Metrics.CodeRequirementsMatch)
	assert.Equal(t, 70.0, result.Metrics.TestRequirementsMatch)
	assert.Equal(t, 60.0, result.Metrics.TestCodeMatch)
	require.Len(t, result.Bugs, 1)
	assert.Equal(t, "nil deref", result.Bugs[0].Description)
	assert.False(t, result.Bugs[0].FromCache)
	require.Len(t, result.Vulnerabilities, 1)
	require.Len(t, result.Recommendations, 1)
	assert.Equal(t, "needs work", result.Summary)
	assert.Equal(t, []string{"login works"}, result.SatisfiedRequirements)
	assert.Nil(t, result.ProcessedData)
}

func TestAnalyze_CachedArtifactsSkipAgents(t *testing.T) {
	client := scriptedClient()
	engine, store := newTestEngine(t, client, true)

	code := "func Login() { // with comment\n}"
	_, err := engine.Analyze(context.Background(), Request{Code: code, UseCache: true})
	require.NoError(t, err)
	assert.Equal(t, 1, client.callCount("bug hunter"))

	// Same code modulo comments and whitespace must hit the cache.
	second, err := engine.Analyze(context.Background(), Request{
		Code:     "func Login() {\n}",
		UseCache: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, client.callCount("bug hunter"), "bug agent must not run again on cache hit")
	assert.Equal(t, 1, client.callCount("security analyst"))

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Greater(t, stats.Hits, 0)
	assert.Greater(t, stats.Saves, 0)

	// The final report echoes the agent outputs, which now carry the
	// cached copies.
	require.NotEmpty(t, second.Bugs)
}

func TestAnalyze_ReanalysisKeepsCacheBookkeeping(t *testing.T) {
	client := scriptedClient()
	engine, store := newTestEngine(t, client, true)

	code := "func Login() {}"
	_, err := engine.Analyze(context.Background(), Request{Code: code, UseCache: true})
	require.NoError(t, err)
	_, err = engine.Analyze(context.Background(), Request{Code: code, UseCache: true})
	require.NoError(t, err)

	hash, err := cache.CodeFingerprint(code)
	require.NoError(t, err)
	recs, err := store.FindByContentHash(context.Background(), artifact.KindBug, hash)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	// Saved once, hit by the second run, touched by this find. A re-save
	// would have reset the count.
	assert.Equal(t, 3, recs[0].UseCount)
}

func TestAnalyze_NoCacheWhenDisabled(t *testing.T) {
	client := scriptedClient()
	engine, store := newTestEngine(t, client, true)

	_, err := engine.Analyze(context.Background(), Request{Code: "func F() {}", UseCache: false})
	require.NoError(t, err)

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Saves)
	assert.Equal(t, 0, stats.Records)
}

func TestAnalyze_DefaultsForEmptyFields(t *testing.T) {
	client := scriptedClient()
	engine, _ := newTestEngine(t, client, false)

	_, err := engine.Analyze(context.Background(), Request{})
	require.NoError(t, err)

	var prompt string
	for _, c := range client.calls {
		if strings.Contains(c.SystemPrompt, "bug hunter") {
			prompt = c.UserPrompt
		}
	}
	assert.Contains(t, prompt, config.DefaultCode)
	assert.Contains(t, prompt, config.DefaultStory)
}

func TestAnalyze_RedactsSecretsBeforeModel(t *testing.T) {
	client := scriptedClient()
	engine, _ := newTestEngine(t, client, false)

	_, err := engine.Analyze(context.Background(), Request{
		Code: `api_key = "sk-1234567890abcdefghijklmn"`,
	})
	require.NoError(t, err)

	for _, c := range client.calls {
		assert.NotContains(t, c.UserPrompt, "sk-1234567890abcdefghijklmn")
	}
}

func TestAnalyze_UpstreamErrorPropagates(t *testing.T) {
	client := &fakeClient{respond: func(req llm.Request) (llm.Response, error) {
		return llm.Response{}, fmt.Errorf("connection refused")
	}}
	engine, _ := newTestEngine(t, client, false)

	_, err := engine.Analyze(context.Background(), Request{Code: "x"})
	require.Error(t, err)
}

func TestAnalyze_UnparseableAgentReplyDegrades(t *testing.T) {
	client := &fakeClient{respond: func(req llm.Request) (llm.Response, error) {
		return llm.Response{Content: "I cannot answer in JSON today."}, nil
	}}
	engine, _ := newTestEngine(t, client, false)

	result, err := engine.Analyze(context.Background(), Request{Code: "x"})
	require.NoError(t, err)
	assert.Empty(t, result.Bugs)
	assert.NotEmpty(t, result.Summary)
}

func TestPreprocess_KeepsOriginalOnError(t *testing.T) {
	client := &fakeClient{respond: func(req llm.Request) (llm.Response, error) {
		return llm.Response{}, fmt.Errorf("boom")
	}}
	engine, _ := newTestEngine(t, client, false)

	in := Inputs{Story: "a story", Code: "some code"}
	out := engine.Preprocess(context.Background(), in, false)
	assert.Equal(t, in, out)
}

func TestPreprocess_ExtremeModeUsesExtremePrompt(t *testing.T) {
	client := &fakeClient{respond: func(req llm.Request) (llm.Response, error) {
		return llm.Response{Content: "cleaned"}, nil
	}}
	engine, _ := newTestEngine(t, client, false)

	out := engine.Preprocess(context.Background(), Inputs{Story: "verbose story"}, true)
	assert.Equal(t, "cleaned", out.Story)
	require.NotEmpty(t, client.calls)
	assert.Contains(t, client.calls[0].SystemPrompt, "aggressive")
}
