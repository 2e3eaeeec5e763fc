package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateChatCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req ChatCompletionRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		assert.Len(t, req.Messages, 2)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"It was founded in 2015."}}],"usage":{"prompt_tokens":10,"completion_tokens":6,"total_tokens":16}}`))
	}))
	defer srv.Close()

	client := NewClient("sk-test", srv.URL+"/", time.Second)
	resp, err := client.CreateChatCompletion(context.Background(), ChatCompletionRequest{
		Model: "gpt-4o-mini",
		Messages: []ChatMessage{
			{Role: RoleSystem, Content: "be brief"},
			{Role: RoleUser, Content: "when was it founded?"},
		},
	})
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	require.Equal(t, "It was founded in 2015.", resp.Choices[0].Message.Content)
	require.Equal(t, 16, resp.Usage.TotalTokens)
}

func TestCreateChatCompletionStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	_, err := NewClient("sk-test", srv.URL, time.Second).CreateChatCompletion(context.Background(), ChatCompletionRequest{Model: "m"})
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusTooManyRequests, statusErr.Code)
	require.Equal(t, "rate limited", statusErr.Message)
	require.True(t, IsRetryable(err))
}

func TestIsRetryable(t *testing.T) {
	require.False(t, IsRetryable(nil))
	require.False(t, IsRetryable(&StatusError{Code: http.StatusBadRequest}))
	require.True(t, IsRetryable(&StatusError{Code: http.StatusBadGateway}))

	_, err := NewClient("", "", 0).CreateChatCompletion(context.Background(), ChatCompletionRequest{})
	require.Error(t, err)
	require.False(t, IsRetryable(err))
}
