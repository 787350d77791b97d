package provider

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tafreeman/prompteval/internal/model"
)

// AnthropicAdapter generates text through the Anthropic Messages API.
type AnthropicAdapter struct {
	client anthropic.Client
}

// AnthropicConfig holds configuration for the Anthropic adapter.
type AnthropicConfig struct {
	// BaseURL overrides the API endpoint; empty uses the SDK default.
	BaseURL string
	// APIKey is the API key.
	APIKey string
	// ExtraHeaders are additional HTTP headers.
	ExtraHeaders map[string]string
}

// NewAnthropicAdapter creates an adapter for the Anthropic API.
func NewAnthropicAdapter(cfg AnthropicConfig) *AnthropicAdapter {
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

	return &AnthropicAdapter{client: anthropic.NewClient(opts...)}
}

// Provider returns "anthropic".
func (a *AnthropicAdapter) Provider() model.Provider {
	return model.ProviderAnthropic
}

var genTracer = otel.Tracer("prompteval/provider")

// Generate performs one Messages API call.
func (a *AnthropicAdapter) Generate(ctx context.Context, req model.GenerationRequest) (*model.GenerationResponse, error) {
	// GenAI generation span; span name is "{operation} {model}" per the
	// OTel semantic conventions.
	ctx, span := genTracer.Start(ctx, "chat "+req.Model.Name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("gen_ai.operation.name", "chat"),
			attribute.String("gen_ai.provider.name", "anthropic"),
			attribute.String("gen_ai.request.model", req.Model.Name),
			attribute.Int64("gen_ai.request.max_tokens", req.MaxTokens),
		),
	)
	defer span.End()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model.Name),
		MaxTokens: req.MaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(req.Prompt),
			),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		span.SetAttributes(attribute.String("error.type", "api_error"))
		return nil, fmt.Errorf("anthropic API call failed: %w", err)
	}

	if len(resp.Content) == 0 {
		span.SetAttributes(attribute.String("error.type", "empty_response"))
		return nil, fmt.Errorf("anthropic API returned empty response")
	}

	span.SetAttributes(
		attribute.String("gen_ai.response.model", req.Model.Name),
		attribute.Int64("gen_ai.usage.input_tokens", resp.Usage.InputTokens),
		attribute.Int64("gen_ai.usage.output_tokens", resp.Usage.OutputTokens),
	)
	if string(resp.StopReason) != "" {
		span.SetAttributes(attribute.StringSlice("gen_ai.response.finish_reasons", []string{string(resp.StopReason)}))
	}

	return &model.GenerationResponse{
		Text: resp.Content[0].Text,
		Usage: model.TokenUsage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}, nil
}
