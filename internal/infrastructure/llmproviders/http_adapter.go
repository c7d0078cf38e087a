// Package llmproviders implements concrete internal/domain/llm.Adapter
// backends: an OpenAI-compatible HTTP adapter reachable by any
// provider speaking that wire format (OpenAI, Bailian, MiniMax,
// DeepSeek, Ollama, vLLM, ...), and a deterministic fixture adapter for
// tests that must not reach the network.
//
// The HTTP adapter is grounded on the teacher's
// internal/infrastructure/llm/openai.Provider: same custom
// http.Transport tuning, same Bearer-auth chat-completions call shape,
// same provider-prefixed model stripping ("bailian/qwen3-max" ->
// "qwen3-max"). It narrows that provider's service.LLMClient-shaped
// request/response to this module's llm.Adapter contract instead.
package llmproviders

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fenwicklabs/brainloop/internal/domain/llm"
	pkgerrors "github.com/fenwicklabs/brainloop/pkg/errors"
)

// HTTPAdapterConfig configures one OpenAI-compatible HTTP backend.
type HTTPAdapterConfig struct {
	Name    string
	BaseURL string
	APIKey  string
	Models  []string // empty means "accepts any model"
}

// HTTPAdapter speaks the OpenAI chat-completions wire format over a
// tuned http.Client, same transport shape as the teacher's openai
// provider (bounded dial/TLS/idle timeouts, small idle-conn pool sized
// for a handful of concurrent sessions rather than a public-facing
// fleet).
type HTTPAdapter struct {
	cfg    HTTPAdapterConfig
	client *http.Client
	logger *zap.Logger
}

// NewHTTPAdapter builds an adapter bound to one OpenAI-compatible base URL.
func NewHTTPAdapter(cfg HTTPAdapterConfig, logger *zap.Logger) *HTTPAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	cfg.BaseURL = baseURL

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: 300 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   5,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}

	return &HTTPAdapter{
		cfg:    cfg,
		client: &http.Client{Transport: transport},
		logger: logger.With(zap.String("component", "llmproviders"), zap.String("adapter", cfg.Name)),
	}
}

var _ llm.Adapter = (*HTTPAdapter)(nil)

func (a *HTTPAdapter) Name() string { return a.cfg.Name }

func (a *HTTPAdapter) SupportsModel(model string) bool {
	if len(a.cfg.Models) == 0 {
		return true
	}
	for _, m := range a.cfg.Models {
		if m == model {
			return true
		}
	}
	return false
}

func (a *HTTPAdapter) IsAvailable(ctx context.Context) bool {
	return a.cfg.APIKey != ""
}

// Complete issues one non-streaming chat-completions call.
func (a *HTTPAdapter) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	wireReq := a.buildWireRequest(req)
	body, err := json.Marshal(wireReq)
	if err != nil {
		return llm.Response{}, pkgerrors.Wrap(pkgerrors.CodeInvalidInput, "marshal llm request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return llm.Response{}, pkgerrors.Wrap(pkgerrors.CodeInternal, "build llm http request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return llm.Response{}, pkgerrors.Wrap(pkgerrors.CodeServiceUnavail, "llm http request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return llm.Response{}, pkgerrors.Wrap(pkgerrors.CodeServiceUnavail, "read llm response body", err)
	}

	if resp.StatusCode != http.StatusOK {
		return llm.Response{}, httpStatusError(resp.StatusCode, resp.Header, respBody)
	}

	return parseWireResponse(respBody)
}

func (a *HTTPAdapter) buildWireRequest(req llm.Request) wireRequest {
	model := req.Model
	if idx := strings.Index(model, "/"); idx >= 0 {
		model = model[idx+1:]
	}

	wireReq := wireRequest{
		Model:       model,
		MaxTokens:   req.Sampling.MaxTokens,
		Temperature: req.Sampling.Temperature,
		TopP:        req.Sampling.TopP,
	}

	for _, msg := range req.Messages {
		wm := wireMessage{Role: msg.Role, Content: msg.Content, ToolCallID: msg.ToolCallID}
		for _, tc := range msg.ToolCalls {
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: wireToolCallFunc{
					Name:      tc.Name,
					Arguments: marshalArgs(tc.Arguments),
				},
			})
		}
		wireReq.Messages = append(wireReq.Messages, wm)
	}

	for _, td := range req.Tools {
		wireReq.Tools = append(wireReq.Tools, wireTool{
			Type: "function",
			Function: wireToolFunction{
				Name:        td.Name,
				Description: td.Description,
				Parameters:  schemaOrDefault(td.ArgSchema),
			},
		})
	}

	return wireReq
}

func parseWireResponse(body []byte) (llm.Response, error) {
	var wr wireResponse
	if err := json.Unmarshal(body, &wr); err != nil {
		return llm.Response{}, pkgerrors.Wrap(pkgerrors.CodeServiceUnavail, "parse llm response", err)
	}
	if wr.Error != nil {
		return llm.Response{}, pkgerrors.New(pkgerrors.CodeServiceUnavail, "llm provider error: "+wr.Error.Message)
	}
	if len(wr.Choices) == 0 {
		return llm.Response{}, pkgerrors.New(pkgerrors.CodeServiceUnavail, "llm response had no choices")
	}

	choice := wr.Choices[0]
	resp := llm.Response{
		Text:       choice.Message.Content,
		StopReason: choice.FinishReason,
		RawPreview: previewOf(body, 2048),
		Usage: llm.Usage{
			PromptTokens:     wr.Usage.PromptTokens,
			CompletionTokens: wr.Usage.CompletionTokens,
			TotalTokens:      wr.Usage.TotalTokens,
		},
	}

	for _, tc := range choice.Message.ToolCalls {
		args, err := unmarshalArgs(tc.Function.Arguments)
		if err != nil {
			return llm.Response{}, pkgerrors.Wrap(pkgerrors.CodeInvalidInput, "parse tool call arguments for "+tc.Function.Name, err)
		}
		resp.ToolCalls = append(resp.ToolCalls, llm.ToolCallRequest{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}

	return resp, nil
}

func previewOf(body []byte, max int) string {
	if len(body) <= max {
		return string(body)
	}
	return string(body[:max]) + "...(truncated)"
}

// httpStatusError classifies a non-200 response: 429 and 5xx feed the
// retry/escalation policy (CodeServiceUnavail is retryable by
// pkg/errors' default classification); everything else is treated as
// a non-retryable input problem the retry budget should not spend
// attempts on.
func httpStatusError(status int, header http.Header, body []byte) error {
	msg := fmt.Sprintf("llm http error %d: %s", status, previewOf(body, 512))
	if status == http.StatusTooManyRequests || status >= 500 {
		appErr := pkgerrors.New(pkgerrors.CodeServiceUnavail, msg)
		if ra := parseRetryAfter(header.Get("Retry-After")); ra > 0 {
			appErr.RepairHint = fmt.Sprintf("retry after %s", ra)
		}
		return appErr
	}
	return pkgerrors.New(pkgerrors.CodeInvalidInput, msg)
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := time.ParseDuration(header + "s"); err == nil {
		return secs
	}
	return 0
}
