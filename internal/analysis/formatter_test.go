package analysis

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskai/internal/errors"
	"riskai/internal/llm"
)

func TestFormat_QuestionsKeepSessionOpen(t *testing.T) {
	replies := []string{
		"Draft document.\n\nWhat is the author's full name, please?",
		"Completed document with author name.\n\nThis is the final version.",
	}
	i := 0
	client := &fakeClient{respond: func(req llm.Request) (llm.Response, error) {
		r := replies[i]
		i++
		return llm.Response{Content: r}, nil
	}}

	f := NewFormatter(client, nil)
	first, err := f.Format(context.Background(), FormatRequest{
		TemplateRules:   "Report template: title, author, body.",
		DocumentContent: "Some meeting notes.",
	})
	require.NoError(t, err)
	assert.False(t, first.IsCompleted)
	require.NotEmpty(t, first.MissingInformation)
	assert.Contains(t, first.MissingInformation[0], "full name")
	assert.NotEmpty(t, first.SessionID)
	assert.Len(t, first.ConversationHistory, 2)

	second, err := f.Continue(context.Background(), first.SessionID, "The author is Jordan Lee.")
	require.NoError(t, err)
	assert.True(t, second.IsCompleted)
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Len(t, second.ConversationHistory, 4)

	// A completed session is gone.
	_, err = f.Continue(context.Background(), first.SessionID, "anything else")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrNotFound))
}

func TestFormat_DialogueTranscriptSentToModel(t *testing.T) {
	client := &fakeClient{respond: func(req llm.Request) (llm.Response, error) {
		return llm.Response{Content: "This is the final version."}, nil
	}}
	f := NewFormatter(client, nil)

	_, err := f.Format(context.Background(), FormatRequest{
		TemplateRules:   "rules here",
		DocumentContent: "content here",
	})
	require.NoError(t, err)
	require.Len(t, client.calls, 1)
	assert.Contains(t, client.calls[0].UserPrompt, "rules here")
	assert.Contains(t, client.calls[0].UserPrompt, "content here")
}

func TestFormat_RejectsEmptyInputs(t *testing.T) {
	f := NewFormatter(&fakeClient{}, nil)

	_, err := f.Format(context.Background(), FormatRequest{DocumentContent: "doc"})
	assert.True(t, errors.IsInvalidInput(err))

	_, err = f.Format(context.Background(), FormatRequest{TemplateRules: "rules"})
	assert.True(t, errors.IsInvalidInput(err))
}

func TestContinue_ConcurrentSameSession(t *testing.T) {
	client := &fakeClient{respond: func(req llm.Request) (llm.Response, error) {
		return llm.Response{Content: "Still drafting. What should the title be, exactly?"}, nil
	}}
	f := NewFormatter(client, nil)

	first, err := f.Format(context.Background(), FormatRequest{
		TemplateRules:   "rules",
		DocumentContent: "content",
	})
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := f.Continue(context.Background(), first.SessionID, fmt.Sprintf("answer %d", n))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// Each Continue appends a user and an assistant message on top of
	// the opening pair.
	last, err := f.Continue(context.Background(), first.SessionID, "one more")
	require.NoError(t, err)
	assert.Len(t, last.ConversationHistory, 2+2*(workers+1))
}

func TestContinue_UnknownSession(t *testing.T) {
	f := NewFormatter(&fakeClient{}, nil)
	_, err := f.Continue(context.Background(), "no-such-session", "hello")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrNotFound))
}

func TestInterpretReply(t *testing.T) {
	completed, missing, _ := interpretReply("Here is the document.\n\nWhich date should the report carry?")
	assert.False(t, completed)
	require.Len(t, missing, 1)

	completed, _, _ = interpretReply("All done. This is the final version.")
	assert.True(t, completed)

	// A final marker wins even when the text contains a question mark.
	completed, _, _ = interpretReply("Did you know? Anyway, this is the final version.")
	assert.True(t, completed)
}
