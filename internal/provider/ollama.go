package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tafreeman/prompteval/internal/model"
)

// OllamaAdapter generates text through a local Ollama server's REST API.
type OllamaAdapter struct {
	baseURL    string
	httpClient *http.Client
}

// OllamaConfig holds configuration for the Ollama adapter.
type OllamaConfig struct {
	// BaseURL is the Ollama address; empty uses http://localhost:11434.
	BaseURL string
	// HTTPClient overrides the HTTP client; nil uses a default with a
	// generous timeout (local models can be slow to first load).
	HTTPClient *http.Client
}

// NewOllamaAdapter creates an adapter for a local Ollama instance.
func NewOllamaAdapter(cfg OllamaConfig) *OllamaAdapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		if info, ok := model.Info(model.ProviderLocal); ok {
			baseURL = info.DefaultBaseURL
		}
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	return &OllamaAdapter{baseURL: baseURL, httpClient: httpClient}
}

// Provider returns "local".
func (a *OllamaAdapter) Provider() model.Provider {
	return model.ProviderLocal
}

// ollamaChatRequest is the JSON body sent to /api/chat.
type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  map[string]any      `json:"options,omitempty"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ollamaChatResponse is the JSON body returned by /api/chat (non-streaming).
type ollamaChatResponse struct {
	Model           string            `json:"model"`
	Message         ollamaChatMessage `json:"message"`
	PromptEvalCount int64             `json:"prompt_eval_count"`
	EvalCount       int64             `json:"eval_count"`
}

// Generate performs one chat call against /api/chat.
func (a *OllamaAdapter) Generate(ctx context.Context, req model.GenerationRequest) (*model.GenerationResponse, error) {
	ctx, span := genTracer.Start(ctx, "chat "+req.Model.Name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("gen_ai.operation.name", "chat"),
			attribute.String("gen_ai.provider.name", "ollama"),
			attribute.String("gen_ai.request.model", req.Model.Name),
			attribute.Int64("gen_ai.request.max_tokens", req.MaxTokens),
		),
	)
	defer span.End()

	var msgs []ollamaChatMessage
	if req.System != "" {
		msgs = append(msgs, ollamaChatMessage{Role: "system", Content: req.System})
	}
	msgs = append(msgs, ollamaChatMessage{Role: "user", Content: req.Prompt})

	body := ollamaChatRequest{
		Model:    req.Model.Name,
		Messages: msgs,
		Stream:   false,
	}
	// Cap output tokens. Small local models tend to loop without a limit.
	options := map[string]any{}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	if req.Temperature > 0 {
		options["temperature"] = req.Temperature
	}
	if len(options) > 0 {
		body.Options = options
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		span.SetAttributes(attribute.String("error.type", "api_error"))
		return nil, fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		span.SetAttributes(attribute.String("error.type", "api_error"))
		return nil, &statusError{status: resp.StatusCode, body: string(respBody)}
	}

	var chatResp ollamaChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	span.SetAttributes(
		attribute.String("gen_ai.response.model", chatResp.Model),
		attribute.Int64("gen_ai.usage.input_tokens", chatResp.PromptEvalCount),
		attribute.Int64("gen_ai.usage.output_tokens", chatResp.EvalCount),
	)

	return &model.GenerationResponse{
		Text: chatResp.Message.Content,
		Usage: model.TokenUsage{
			InputTokens:  chatResp.PromptEvalCount,
			OutputTokens: chatResp.EvalCount,
		},
	}, nil
}

// ollamaTagsResponse is the JSON body returned by /api/tags.
type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels enumerates the models the local Ollama server has pulled.
func (a *OllamaAdapter) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{status: resp.StatusCode, body: string(respBody)}
	}

	var tags ollamaTagsResponse
	if err := json.Unmarshal(respBody, &tags); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}
