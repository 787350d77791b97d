package provider

import (
	"context"
	"fmt"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tafreeman/prompteval/internal/model"
)

// OpenAIAdapter generates text through an OpenAI-compatible Chat Completions
// API. The same adapter serves three provider families: OpenAI itself,
// GitHub Models, and Azure AI Foundry (which differ only in endpoint,
// credential, and extra headers).
type OpenAIAdapter struct {
	client   openai.Client
	provider model.Provider
}

// OpenAIConfig holds configuration for an OpenAI-compatible adapter.
type OpenAIConfig struct {
	// BaseURL is the API endpoint; empty uses the SDK default.
	BaseURL string
	// APIKey is the API key or token.
	APIKey string
	// ExtraHeaders are additional HTTP headers (e.g. "api-key" for Azure).
	ExtraHeaders map[string]string
}

// NewOpenAIAdapter creates an adapter for the OpenAI API.
func NewOpenAIAdapter(cfg OpenAIConfig) *OpenAIAdapter {
	return newOpenAICompatible(cfg, model.ProviderOpenAI)
}

// NewGitHubAdapter creates an adapter for GitHub Models. The token comes
// from cfg.APIKey or GITHUB_TOKEN.
func NewGitHubAdapter(cfg OpenAIConfig) *OpenAIAdapter {
	if cfg.BaseURL == "" {
		if info, ok := model.Info(model.ProviderGH); ok {
			cfg.BaseURL = info.DefaultBaseURL
		}
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GITHUB_TOKEN")
	}
	return newOpenAICompatible(cfg, model.ProviderGH)
}

// NewAzureAdapter creates an adapter for an Azure AI Foundry endpoint.
// Azure wants the key in an "api-key" header in addition to the bearer
// token the SDK sends.
func NewAzureAdapter(cfg OpenAIConfig) *OpenAIAdapter {
	if cfg.APIKey != "" {
		if cfg.ExtraHeaders == nil {
			cfg.ExtraHeaders = map[string]string{}
		}
		cfg.ExtraHeaders["api-key"] = cfg.APIKey
	}
	return newOpenAICompatible(cfg, model.ProviderAzure)
}

func newOpenAICompatible(cfg OpenAIConfig, p model.Provider) *OpenAIAdapter {
	var opts []option.RequestOption

	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	for k, v := range cfg.ExtraHeaders {
		opts = append(opts, option.WithHeader(k, v))
	}

	return &OpenAIAdapter{client: openai.NewClient(opts...), provider: p}
}

// Provider returns the provider family this adapter was built for.
func (a *OpenAIAdapter) Provider() model.Provider {
	return a.provider
}

// Generate performs one Chat Completions call.
func (a *OpenAIAdapter) Generate(ctx context.Context, req model.GenerationRequest) (*model.GenerationResponse, error) {
	ctx, span := genTracer.Start(ctx, "chat "+req.Model.Name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("gen_ai.operation.name", "chat"),
			attribute.String("gen_ai.provider.name", string(a.provider)),
			attribute.String("gen_ai.request.model", req.Model.Name),
			attribute.Int64("gen_ai.request.max_tokens", req.MaxTokens),
		),
	)
	defer span.End()

	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:               req.Model.Name,
		Messages:            messages,
		MaxCompletionTokens: openai.Int(req.MaxTokens),
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	resp, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		span.SetAttributes(attribute.String("error.type", "api_error"))
		return nil, fmt.Errorf("%s API call failed: %w", a.provider, err)
	}

	if len(resp.Choices) == 0 {
		span.SetAttributes(attribute.String("error.type", "empty_response"))
		return nil, fmt.Errorf("%s API returned empty response", a.provider)
	}

	span.SetAttributes(
		attribute.String("gen_ai.response.model", resp.Model),
		attribute.String("gen_ai.response.id", resp.ID),
		attribute.Int64("gen_ai.usage.input_tokens", resp.Usage.PromptTokens),
		attribute.Int64("gen_ai.usage.output_tokens", resp.Usage.CompletionTokens),
	)
	if resp.Choices[0].FinishReason != "" {
		span.SetAttributes(attribute.StringSlice("gen_ai.response.finish_reasons", []string{string(resp.Choices[0].FinishReason)}))
	}

	return &model.GenerationResponse{
		Text: resp.Choices[0].Message.Content,
		Usage: model.TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}
