package summarizer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryosukesatoh/paper-digest/internal/config"
)

func openAIReply(t *testing.T, content string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1720396800,
		"model":   "llama-3.1-8b-instant",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
	require.NoError(t, err)
	return body
}

func anthropicReply(t *testing.T, text string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"id":            "msg_1",
		"type":          "message",
		"role":          "assistant",
		"model":         "claude-sonnet-4-20250514",
		"content":       []map[string]any{{"type": "text", "text": text}},
		"stop_reason":   "end_turn",
		"stop_sequence": nil,
		"usage":         map[string]any{"input_tokens": 10, "output_tokens": 10},
	})
	require.NoError(t, err)
	return body
}

func TestOpenAISummarizer(t *testing.T) {
	var got map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(raw, &got))

		w.Header().Set("Content-Type", "application/json")
		w.Write(openAIReply(t, `{"brief": "B1", "potential_applications": "P1"}`))
	}))
	defer ts.Close()

	s := NewOpenAISummarizer("test-key", ts.URL+"/", "llama-3.1-8b-instant")
	summary, err := s.Summarize(context.Background(), "Paper: Paper X, Summary: ...")
	require.NoError(t, err)
	assert.Equal(t, &Summary{Brief: "B1", PotentialApplications: "P1"}, summary)

	assert.Equal(t, "llama-3.1-8b-instant", got["model"])
	messages, ok := got["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Contains(t, messages[1].(map[string]any)["content"], "Paper X")
	format, ok := got["response_format"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "json_schema", format["type"])
}

func TestOpenAISummarizerMalformed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(openAIReply(t, "not json at all"))
	}))
	defer ts.Close()

	s := NewOpenAISummarizer("test-key", ts.URL+"/", "m")
	_, err := s.Summarize(context.Background(), "q")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedOutput)
}

func TestOpenAISummarizerStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "rate limited", "type": "rate_limit"}}`))
	}))
	defer ts.Close()

	s := NewOpenAISummarizer("test-key", ts.URL+"/", "m")
	_, err := s.Summarize(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
}

func TestAnthropicSummarizer(t *testing.T) {
	var got map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v1/messages"))
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(raw, &got))

		w.Header().Set("Content-Type", "application/json")
		w.Write(anthropicReply(t, "```json\n{\"brief\": \"B1\", \"potential_applications\": \"P1\"}\n```"))
	}))
	defer ts.Close()

	s := NewAnthropicSummarizer("test-key", ts.URL+"/", "claude-sonnet-4-20250514", 512)
	summary, err := s.Summarize(context.Background(), "Paper: Paper X, Summary: ...")
	require.NoError(t, err)
	assert.Equal(t, &Summary{Brief: "B1", PotentialApplications: "P1"}, summary)

	assert.Equal(t, "claude-sonnet-4-20250514", got["model"])
	assert.EqualValues(t, 512, got["max_tokens"])
	assert.NotEmpty(t, got["system"])
}

func TestAnthropicSummarizerEmpty(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := json.Marshal(map[string]any{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "m",
			"content": []any{}, "stop_reason": "end_turn",
			"usage": map[string]any{"input_tokens": 1, "output_tokens": 0},
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}))
	defer ts.Close()

	s := NewAnthropicSummarizer("test-key", ts.URL+"/", "m", 0)
	_, err := s.Summarize(context.Background(), "q")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestNew(t *testing.T) {
	s, err := New(&config.Config{Summarizer: config.SummarizerConfig{Type: "openai", APIKey: "k", Model: "m"}})
	require.NoError(t, err)
	assert.IsType(t, &OpenAISummarizer{}, s)

	s, err = New(&config.Config{Summarizer: config.SummarizerConfig{Type: "anthropic", APIKey: "k", Model: "m"}})
	require.NoError(t, err)
	assert.IsType(t, &AnthropicSummarizer{}, s)

	_, err = New(&config.Config{Summarizer: config.SummarizerConfig{Type: "ollama"}})
	assert.ErrorIs(t, err, ErrUnsupportedSummarizerType)
}
