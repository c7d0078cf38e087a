package llmproviders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fenwicklabs/brainloop/internal/domain/llm"
	pkgerrors "github.com/fenwicklabs/brainloop/pkg/errors"
)

func contextBG() context.Context { return context.Background() }

func newAdapterAgainst(t *testing.T, handler http.HandlerFunc) (*HTTPAdapter, *httptest.Server) {
	ts := httptest.NewServer(handler)
	adapter := NewHTTPAdapter(HTTPAdapterConfig{Name: "test", BaseURL: ts.URL, APIKey: "secret"}, nil)
	return adapter, ts
}

func TestHTTPAdapter_CompleteParsesTextResponse(t *testing.T) {
	adapter, ts := newAdapterAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var body wireRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "gpt-test", body.Model)

		resp := wireResponse{
			Choices: []wireChoice{{Message: wireMessage{Content: "hello there"}, FinishReason: "stop"}},
			Usage:   wireUsage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5},
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	defer ts.Close()

	resp, err := adapter.Complete(contextBG(), llm.Request{Model: "bailian/gpt-test", Messages: []llm.Message{{Role: "user", Content: "hi"}}})
	require.NoError(t, err)
	require.Equal(t, "hello there", resp.Text)
	require.Equal(t, 5, resp.Usage.TotalTokens)
}

func TestHTTPAdapter_CompleteParsesToolCalls(t *testing.T) {
	adapter, ts := newAdapterAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		resp := wireResponse{
			Choices: []wireChoice{{
				Message: wireMessage{ToolCalls: []wireToolCall{{
					ID:   "call-1",
					Type: "function",
					Function: wireToolCallFunc{
						Name:      "fs.read_text",
						Arguments: `{"path":"a.txt"}`,
					},
				}}},
				FinishReason: "tool_calls",
			}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	defer ts.Close()

	resp, err := adapter.Complete(contextBG(), llm.Request{Model: "gpt-test"})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	require.Equal(t, "fs.read_text", resp.ToolCalls[0].Name)
	require.Equal(t, "a.txt", resp.ToolCalls[0].Arguments["path"])
}

func TestHTTPAdapter_RateLimitedResponseIsRetryable(t *testing.T) {
	adapter, ts := newAdapterAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
	})
	defer ts.Close()

	_, err := adapter.Complete(contextBG(), llm.Request{Model: "gpt-test"})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeServiceUnavail, pkgerrors.Code(err))
	require.True(t, pkgerrors.IsRetryable(err))
}

func TestHTTPAdapter_BadRequestIsNotRetryable(t *testing.T) {
	adapter, ts := newAdapterAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad schema"}}`))
	})
	defer ts.Close()

	_, err := adapter.Complete(contextBG(), llm.Request{Model: "gpt-test"})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeInvalidInput, pkgerrors.Code(err))
	require.False(t, pkgerrors.IsRetryable(err))
}

func TestHTTPAdapter_SupportsModelRespectsAllowlist(t *testing.T) {
	adapter := NewHTTPAdapter(HTTPAdapterConfig{Name: "test", Models: []string{"gpt-a"}}, nil)
	require.True(t, adapter.SupportsModel("gpt-a"))
	require.False(t, adapter.SupportsModel("gpt-b"))
}

func TestHTTPAdapter_IsAvailableRequiresAPIKey(t *testing.T) {
	withKey := NewHTTPAdapter(HTTPAdapterConfig{Name: "test", APIKey: "k"}, nil)
	withoutKey := NewHTTPAdapter(HTTPAdapterConfig{Name: "test"}, nil)
	require.True(t, withKey.IsAvailable(contextBG()))
	require.False(t, withoutKey.IsAvailable(contextBG()))
}
