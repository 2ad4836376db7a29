package llm

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSSE(w http.ResponseWriter, event, data string) {
	if event != "" {
		fmt.Fprintf(w, "event: %s\n", event)
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

func sseHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

func newTestOpenAIResponsesProvider(t *testing.T, serverURL string) Provider {
	t.Helper()
	provider, err := NewOpenAIResponsesProvider(ProviderConfig{
		APIKey:       "sk-test-0123456789",
		BaseURL:      serverURL + "/v1/",
		SystemPrompt: "You are a helpful assistant. Be concise.",
	})
	require.NoError(t, err)
	return provider
}

func TestOpenAIResponsesProvider_Stream(t *testing.T) {
	t.Parallel()

	var requestBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &requestBody)
		assert.Equal(t, "Bearer sk-test-0123456789", r.Header.Get("Authorization"))

		sseHeaders(w)
		writeSSE(w, "response.created", `{"type":"response.created","sequence_number":0,"response":{"id":"resp_123","object":"response","status":"in_progress","output":[]}}`)
		writeSSE(w, "response.output_text.delta", `{"type":"response.output_text.delta","item_id":"msg_1","output_index":0,"content_index":0,"delta":"Hi","sequence_number":1}`)
		writeSSE(w, "response.output_text.delta", `{"type":"response.output_text.delta","item_id":"msg_1","output_index":0,"content_index":0,"delta":" there","sequence_number":2}`)
		writeSSE(w, "response.output_text.done", `{"type":"response.output_text.done","item_id":"msg_1","output_index":0,"content_index":0,"text":"Hi there","sequence_number":3}`)
		writeSSE(w, "response.completed", `{"type":"response.completed","sequence_number":4,"response":{"id":"resp_123","object":"response","status":"completed","output":[]}}`)
	}))
	defer server.Close()

	provider := newTestOpenAIResponsesProvider(t, server.URL)
	events, err := streamAll(t, provider, ChatRequest{Message: "Hello", PreviousResponseId: "resp_prev"})
	require.NoError(t, err)

	assert.Equal(t, []Event{DeltaEvent("Hi"), DeltaEvent(" there"), DoneEvent("resp_123")}, events)

	require.NotNil(t, requestBody)
	assert.Equal(t, "Hello", requestBody["input"])
	assert.Equal(t, "resp_prev", requestBody["previous_response_id"])
	assert.Equal(t, "You are a helpful assistant. Be concise.", requestBody["instructions"])
	assert.Equal(t, openaiDefaultModel, requestBody["model"])
	assert.Equal(t, true, requestBody["stream"])
}

func TestOpenAIResponsesProvider_OmitsEmptyPreviousResponseId(t *testing.T) {
	t.Parallel()

	var requestBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &requestBody)
		sseHeaders(w)
		writeSSE(w, "response.completed", `{"type":"response.completed","sequence_number":0,"response":{"id":"resp_1","object":"response","status":"completed","output":[]}}`)
	}))
	defer server.Close()

	provider := newTestOpenAIResponsesProvider(t, server.URL)
	events, err := streamAll(t, provider, ChatRequest{Message: "Hello"})
	require.NoError(t, err)
	assert.Equal(t, []Event{DoneEvent("resp_1")}, events)

	_, present := requestBody["previous_response_id"]
	assert.False(t, present)
}

func TestOpenAIResponsesProvider_Unauthorized(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"Incorrect API key provided: sk-test-0123456789","type":"invalid_request_error","code":"invalid_api_key"}}`)
	}))
	defer server.Close()

	provider := newTestOpenAIResponsesProvider(t, server.URL)
	events, err := streamAll(t, provider, ChatRequest{Message: "Hello"})
	assert.Empty(t, events)
	require.Error(t, err)

	llmErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, ErrKindAuth, llmErr.Kind)
	assert.Equal(t, http.StatusUnauthorized, llmErr.StatusCode)
	assert.NotContains(t, llmErr.Error(), "sk-test-0123456789")
}

func TestOpenAIResponsesProvider_ErrorEventMidStream(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sseHeaders(w)
		writeSSE(w, "response.output_text.delta", `{"type":"response.output_text.delta","item_id":"msg_1","output_index":0,"content_index":0,"delta":"Hi","sequence_number":1}`)
		writeSSE(w, "response.failed", `{"type":"response.failed","sequence_number":2,"response":{"id":"resp_9","object":"response","status":"failed","output":[],"error":{"code":"server_error","message":"upstream overloaded"}}}`)
	}))
	defer server.Close()

	provider := newTestOpenAIResponsesProvider(t, server.URL)
	events, err := streamAll(t, provider, ChatRequest{Message: "Hello"})

	assert.Equal(t, []Event{DeltaEvent("Hi")}, events)
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrKindServer))
	assert.Contains(t, err.Error(), "upstream overloaded")
}

func TestOpenAIResponsesProvider_ResponseFailedRedactsKey(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sseHeaders(w)
		writeSSE(w, "response.failed", `{"type":"response.failed","sequence_number":1,"response":{"id":"resp_10","object":"response","status":"failed","output":[],"error":{"code":"invalid_prompt","message":"key sk-test-0123456789 is not permitted for this model"}}}`)
	}))
	defer server.Close()

	provider := newTestOpenAIResponsesProvider(t, server.URL)
	events, err := streamAll(t, provider, ChatRequest{Message: "Hello"})

	assert.Empty(t, events)
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrKindServer))
	assert.NotContains(t, err.Error(), "sk-test-0123456789")
	assert.Contains(t, err.Error(), "[REDACTED]")
}

func TestOpenAIResponsesProvider_StreamEndsWithoutCompletion(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sseHeaders(w)
		writeSSE(w, "response.output_text.delta", `{"type":"response.output_text.delta","item_id":"msg_1","output_index":0,"content_index":0,"delta":"Hi","sequence_number":1}`)
	}))
	defer server.Close()

	provider := newTestOpenAIResponsesProvider(t, server.URL)
	events, err := streamAll(t, provider, ChatRequest{Message: "Hello"})

	assert.Equal(t, []Event{DeltaEvent("Hi")}, events)
	assert.True(t, IsKind(err, ErrKindParse))
}
