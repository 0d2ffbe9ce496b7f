package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sseServer(t *testing.T, lines []string, capture *chatCompletionRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		if capture != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(capture))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			fmt.Fprintf(w, "data: %s\n\n", line)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func collect(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func TestStreamCompletion_DeltasAndUsage(t *testing.T) {
	var captured chatCompletionRequest
	srv := sseServer(t, []string{
		`{"choices":[{"delta":{"content":"Hel"}}]}`,
		`{"choices":[{"delta":{"content":"lo"}}]}`,
		`{"choices":[],"usage":{"prompt_tokens":9,"completion_tokens":2,"total_tokens":11}}`,
		`[DONE]`,
	}, &captured)

	p := NewOpenAIProvider(srv.URL, "test-key", 5*time.Second)
	events, err := p.StreamCompletion(context.Background(), CompletionRequest{
		Model:  "gpt-4o",
		System: "Be terse.",
		Messages: []PromptMessage{
			{Role: "user", Content: "hi"},
		},
	})
	require.NoError(t, err)

	got := collect(t, events)
	require.Len(t, got, 3)
	assert.Equal(t, EventDelta, got[0].Type)
	assert.Equal(t, "Hel", got[0].Delta)
	assert.Equal(t, "lo", got[1].Delta)
	assert.Equal(t, EventDone, got[2].Type)
	require.NotNil(t, got[2].Usage)
	assert.Equal(t, 2, got[2].Usage.CompletionTokens)

	// Request carries stream flags and the system message first.
	assert.True(t, captured.Stream)
	require.NotNil(t, captured.StreamOptions)
	assert.True(t, captured.StreamOptions.IncludeUsage)
	require.NotEmpty(t, captured.Messages)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "Be terse.", captured.Messages[0].Content)
}

func TestStreamCompletion_MalformedChunkSkipped(t *testing.T) {
	srv := sseServer(t, []string{
		`{"choices":[{"delta":{"content":"ok"}}]}`,
		`{not json`,
		`[DONE]`,
	}, nil)

	p := NewOpenAIProvider(srv.URL, "", 5*time.Second)
	events, err := p.StreamCompletion(context.Background(), CompletionRequest{
		Model:    "gpt-4o",
		Messages: []PromptMessage{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)

	got := collect(t, events)
	require.Len(t, got, 2)
	assert.Equal(t, "ok", got[0].Delta)
	assert.Equal(t, EventDone, got[1].Type)
}

func TestStreamCompletion_EOFWithoutDoneStillTerminates(t *testing.T) {
	srv := sseServer(t, []string{
		`{"choices":[{"delta":{"content":"partial"}}]}`,
	}, nil)

	p := NewOpenAIProvider(srv.URL, "", 5*time.Second)
	events, err := p.StreamCompletion(context.Background(), CompletionRequest{
		Model:    "gpt-4o",
		Messages: []PromptMessage{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)

	got := collect(t, events)
	require.Len(t, got, 2)
	assert.Equal(t, EventDone, got[1].Type)
}

func TestStreamCompletion_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	p := NewOpenAIProvider(srv.URL, "", 5*time.Second)
	_, err := p.StreamCompletion(context.Background(), CompletionRequest{
		Model:    "nope",
		Messages: []PromptMessage{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestStreamCompletion_AuthHeaderSetWhenKeyPresent(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)

	p := NewOpenAIProvider(srv.URL, "sk-test", 5*time.Second)
	events, err := p.StreamCompletion(context.Background(), CompletionRequest{
		Model:    "gpt-4o",
		Messages: []PromptMessage{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	collect(t, events)

	assert.Equal(t, "Bearer sk-test", gotAuth)
}
