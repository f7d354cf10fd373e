package analysis

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"riskai/internal/errors"
	"riskai/internal/llm"
)

// Message is one turn of a formatter dialogue.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// FormatRequest starts a document formatting dialogue.
type FormatRequest struct {
	TemplateRules   string `json:"template_rules"`
	DocumentContent string `json:"document_content"`
	UseCache        bool   `json:"use_cache"`
}

// FormatResult is the state of a formatting dialogue after one model turn.
type FormatResult struct {
	SessionID           string    `json:"session_id"`
	FormattedContent    string    `json:"formatted_content"`
	IsCompleted         bool      `json:"is_completed"`
	MissingInformation  []string  `json:"missing_information,omitempty"`
	Comments            string    `json:"comments,omitempty"`
	ConversationHistory []Message `json:"conversation_history"`
}

type formatterSession struct {
	// mu serializes turns of one dialogue; concurrent Continue calls
	// on the same session take strict turns instead of interleaving
	// history appends.
	mu              sync.Mutex
	templateRules   string
	documentContent string
	history         []Message
}

// Formatter runs document formatting dialogues. Sessions live in memory
// and are identified by a uuid handed back to the caller.
type Formatter struct {
	client llm.Client
	log    *zap.Logger

	mu       sync.Mutex
	sessions map[string]*formatterSession
}

// NewFormatter creates a document formatter.
func NewFormatter(client llm.Client, log *zap.Logger) *Formatter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Formatter{
		client:   client,
		log:      log,
		sessions: make(map[string]*formatterSession),
	}
}

// Format starts a new formatting dialogue and returns its first turn.
func (f *Formatter) Format(ctx context.Context, req FormatRequest) (*FormatResult, error) {
	if strings.TrimSpace(req.TemplateRules) == "" {
		return nil, errors.NewInvalidInput("template_rules must not be empty")
	}
	if strings.TrimSpace(req.DocumentContent) == "" {
		return nil, errors.NewInvalidInput("document_content must not be empty")
	}

	session := &formatterSession{
		templateRules:   req.TemplateRules,
		documentContent: req.DocumentContent,
		history: []Message{{
			Role:      "user",
			Content:   fmt.Sprintf("Template/rules: %s\n\nDocument to format: %s", req.TemplateRules, req.DocumentContent),
			Timestamp: time.Now(),
		}},
	}

	id := uuid.NewString()
	f.mu.Lock()
	f.sessions[id] = session
	f.mu.Unlock()

	f.log.Info("formatter session started", zap.String("session_id", id))

	session.mu.Lock()
	defer session.mu.Unlock()
	return f.turn(ctx, id, session)
}

// Continue appends a user answer to an existing dialogue and runs the
// next model turn.
func (f *Formatter) Continue(ctx context.Context, sessionID, userMessage string) (*FormatResult, error) {
	if strings.TrimSpace(userMessage) == "" {
		return nil, errors.NewInvalidInput("message must not be empty")
	}

	f.mu.Lock()
	session, ok := f.sessions[sessionID]
	f.mu.Unlock()
	if !ok {
		return nil, errors.NewNotFound("session " + sessionID)
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	session.history = append(session.history, Message{
		Role:      "user",
		Content:   userMessage,
		Timestamp: time.Now(),
	})
	return f.turn(ctx, sessionID, session)
}

// turn sends the dialogue so far to the model and interprets the
// reply. The caller holds session.mu.
func (f *Formatter) turn(ctx context.Context, sessionID string, session *formatterSession) (*FormatResult, error) {
	resp, err := f.client.Complete(ctx, llm.Request{
		SystemPrompt: formatterPrompt,
		UserPrompt:   transcript(session.history),
		MaxTokens:    8192,
	})
	if err != nil {
		return nil, upstreamError("document_formatter", err)
	}

	session.history = append(session.history, Message{
		Role:      "assistant",
		Content:   resp.Content,
		Timestamp: time.Now(),
	})

	completed, missing, comments := interpretReply(resp.Content)
	if completed {
		f.mu.Lock()
		delete(f.sessions, sessionID)
		f.mu.Unlock()
		f.log.Info("formatter session completed", zap.String("session_id", sessionID))
	}

	history := make([]Message, len(session.history))
	copy(history, session.history)

	return &FormatResult{
		SessionID:           sessionID,
		FormattedContent:    resp.Content,
		IsCompleted:         completed,
		MissingInformation:  missing,
		Comments:            comments,
		ConversationHistory: history,
	}, nil
}

// interpretReply decides whether the dialogue is finished. A reply that
// still asks questions means information is missing; an explicit final
// marker overrides that.
func interpretReply(reply string) (completed bool, missing []string, comments string) {
	completed = true

	if strings.Contains(reply, "?") {
		completed = false
		for _, line := range strings.Split(reply, "\n") {
			line = strings.TrimSpace(line)
			if strings.Contains(line, "?") && len(line) > 10 {
				missing = append(missing, line)
			}
		}
	}

	lower := strings.ToLower(reply)
	if strings.Contains(lower, "final version") || strings.Contains(lower, "окончательн") || strings.Contains(lower, "финальн") {
		completed = true
		if idx := strings.Index(reply, "Comments"); idx >= 0 {
			comments = reply[idx:]
		}
	}
	return completed, missing, comments
}

// transcript flattens the dialogue into one prompt, newest turn last.
func transcript(history []Message) string {
	var b strings.Builder
	for _, msg := range history {
		fmt.Fprintf(&b, "[%s]\n%s\n\n", msg.Role, msg.Content)
	}
	b.WriteString("Reply to the latest user message, continuing the formatting dialogue.")
	return b.String()
}
