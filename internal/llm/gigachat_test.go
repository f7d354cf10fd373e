package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"riskai/internal/config"
)

func chatOK(content string, tokens int) chatResponse {
	return chatResponse{
		Choices: []chatChoice{
			{Message: chatMessage{Role: "assistant", Content: content}},
		},
		Usage: chatUsage{TotalTokens: tokens},
	}
}

// testServer serves both the OAuth and chat-completions endpoints and
// returns a GigaChat wired to it.
func testServer(t *testing.T, chat http.HandlerFunc) (*GigaChat, *httptest.Server) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Basic test-auth-key" {
			t.Error("missing or wrong Authorization header on token request")
		}
		if r.Header.Get("RqUID") == "" {
			t.Error("missing RqUID header on token request")
		}
		json.NewEncoder(w).Encode(oauthResponse{
			AccessToken: "test-token",
			ExpiresAt:   time.Now().Add(30 * time.Minute).UnixMilli(),
		})
	})
	mux.HandleFunc("/api/v1/chat/completions", chat)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	g := &GigaChat{
		authKey: "test-auth-key",
		model:   "GigaChat-2-Pro",
		authURL: server.URL + "/oauth",
		baseURL: server.URL + "/api/v1",
		client:  server.Client(),
	}
	return g, server
}

func TestGigaChat_Complete(t *testing.T) {
	g, _ := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Error("missing or wrong Authorization header on chat request")
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding chat request: %v", err)
		}
		if req.Model != "GigaChat-2-Pro" {
			t.Errorf("Model = %q, want GigaChat-2-Pro", req.Model)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		json.NewEncoder(w).Encode(chatOK(`{"ok":true}`, 42))
	})

	resp, err := g.Complete(context.Background(), Request{
		SystemPrompt: "system",
		UserPrompt:   "user",
		MaxTokens:    100,
	})
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if resp.Content != `{"ok":true}` {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.TokensUsed != 42 {
		t.Errorf("TokensUsed = %d, want 42", resp.TokensUsed)
	}
}

func TestGigaChat_TokenReused(t *testing.T) {
	g, _ := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatOK("hi", 1))
	})

	for i := 0; i < 3; i++ {
		if _, err := g.Complete(context.Background(), Request{UserPrompt: "x", SystemPrompt: "s"}); err != nil {
			t.Fatalf("Complete #%d error: %v", i, err)
		}
	}
	// A cached unexpired token must survive across calls.
	if g.accessToken != "test-token" {
		t.Errorf("accessToken = %q, want test-token", g.accessToken)
	}
}

func TestGigaChat_RateLimitRetried(t *testing.T) {
	attempts := 0
	g, _ := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts <= 2 {
			w.WriteHeader(429)
			w.Write([]byte(`{"error":"rate limited"}`))
			return
		}
		json.NewEncoder(w).Encode(chatOK("[]", 5))
	})

	resp, err := g.Complete(context.Background(), Request{SystemPrompt: "s", UserPrompt: "u"})
	if err != nil {
		t.Fatalf("Complete error after retries: %v", err)
	}
	if resp.Content != "[]" {
		t.Errorf("Content = %q, want []", resp.Content)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestGigaChat_AuthErrorNotRetried(t *testing.T) {
	attempts := 0
	g, _ := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(401)
		w.Write([]byte(`{"error":"bad token"}`))
	})

	_, err := g.Complete(context.Background(), Request{SystemPrompt: "s", UserPrompt: "u"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsAuthError(err) {
		t.Errorf("expected auth error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("auth errors must not be retried, got %d attempts", attempts)
	}
	if g.accessToken != "" {
		t.Error("token should be invalidated after 401")
	}
}

func TestGigaChat_TokenEndpointFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte("invalid credentials"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	g := &GigaChat{
		authKey: "bad-key",
		model:   "GigaChat-2-Pro",
		authURL: server.URL + "/oauth",
		baseURL: server.URL + "/api/v1",
		client:  server.Client(),
	}

	_, err := g.Complete(context.Background(), Request{SystemPrompt: "s", UserPrompt: "u"})
	if !IsAuthError(err) {
		t.Errorf("expected auth error from token endpoint, got %v", err)
	}
}

func TestNewGigaChat_RequiresAuthKey(t *testing.T) {
	cfg := config.Default()
	_, err := NewGigaChat(cfg)
	if !IsAuthError(err) {
		t.Errorf("expected auth error for missing AUTH_KEY, got %v", err)
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	cfg := config.Default()
	cfg.Provider = "nope"
	if _, err := New(cfg); err == nil {
		t.Error("expected error for unknown provider")
	}
}
