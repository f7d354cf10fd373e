package llm

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"riskai/internal/config"
)

const oauthScope = "GIGACHAT_API_PERS"

// GigaChat implements the Client interface for the GigaChat API.
// Authentication is OAuth client-credentials: the configured auth key is
// exchanged for a short-lived access token which is cached until close
// to its expiry.
type GigaChat struct {
	authKey string
	model   string
	authURL string
	baseURL string
	client  *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewGigaChat creates a new GigaChat provider from config.
func NewGigaChat(cfg config.Config) (*GigaChat, error) {
	if cfg.AuthKey == "" {
		return nil, &authError{message: "AUTH_KEY is not set"}
	}

	transport := http.DefaultTransport
	if cfg.InsecureTLS {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return &GigaChat{
		authKey: cfg.AuthKey,
		model:   cfg.Model,
		authURL: cfg.AuthURL,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client: &http.Client{
			Timeout:   120 * time.Second,
			Transport: transport,
		},
	}, nil
}

func (g *GigaChat) Name() string { return "gigachat" }

// token returns a valid access token, refreshing it when it is absent
// or within a minute of expiry.
func (g *GigaChat) token(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.accessToken != "" && time.Until(g.tokenExpiry) > time.Minute {
		return g.accessToken, nil
	}

	form := "scope=" + oauthScope
	req, err := http.NewRequestWithContext(ctx, "POST", g.authURL, strings.NewReader(form))
	if err != nil {
		return "", fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("RqUID", uuid.NewString())
	req.Header.Set("Authorization", "Basic "+g.authKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading token response: %w", err)
	}

	if resp.StatusCode == 401 || resp.StatusCode == 403 {
		return "", &authError{message: string(body)}
	}
	if resp.StatusCode != 200 {
		return "", fmt.Errorf("token endpoint error (status %d): %s", resp.StatusCode, string(body))
	}

	var tok oauthResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("parsing token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", &authError{message: "empty access token in response"}
	}

	g.accessToken = tok.AccessToken
	// expires_at is unix milliseconds
	g.tokenExpiry = time.UnixMilli(tok.ExpiresAt)
	return g.accessToken, nil
}

func (g *GigaChat) invalidateToken() {
	g.mu.Lock()
	g.accessToken = ""
	g.mu.Unlock()
}

func (g *GigaChat) Complete(ctx context.Context, req Request) (Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	messages := []chatMessage{
		{Role: "system", Content: req.SystemPrompt},
		{Role: "user", Content: req.UserPrompt},
	}

	body := chatRequest{
		Model:     g.model,
		Messages:  messages,
		MaxTokens: maxTokens,
	}
	if req.Temperature > 0 {
		body.Temperature = &req.Temperature
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("marshaling request: %w", err)
	}

	var resp Response
	err = retryWithBackoff(ctx, func() error {
		tok, err := g.token(ctx)
		if err != nil {
			return err
		}

		httpReq, err := http.NewRequestWithContext(ctx, "POST", g.baseURL+"/chat/completions", bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+tok)

		httpResp, err := g.client.Do(httpReq)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer httpResp.Body.Close()

		respBody, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}

		if httpResp.StatusCode == 429 {
			return &rateLimitError{}
		}
		if httpResp.StatusCode == 401 || httpResp.StatusCode == 403 {
			// Token may simply have expired; drop it so a caller's next
			// attempt re-authenticates.
			g.invalidateToken()
			return &authError{message: string(respBody)}
		}
		if httpResp.StatusCode >= 500 {
			return &serverError{statusCode: httpResp.StatusCode, body: string(respBody)}
		}
		if httpResp.StatusCode != 200 {
			return fmt.Errorf("API error (status %d): %s", httpResp.StatusCode, string(respBody))
		}

		var result chatResponse
		if err := json.Unmarshal(respBody, &result); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}

		if len(result.Choices) == 0 {
			return fmt.Errorf("no choices in response")
		}
		if result.Choices[0].Message.Content == "" {
			return fmt.Errorf("empty text content in API response")
		}

		resp = Response{
			Content:    result.Choices[0].Message.Content,
			TokensUsed: result.Usage.TotalTokens,
		}
		return nil
	})

	return resp, err
}

type oauthResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type chatUsage struct {
	TotalTokens int `json:"total_tokens"`
}
