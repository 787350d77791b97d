package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "prompteval"

// Metrics holds all OTEL metric instruments for prompteval.
// All counters are cumulative (monotonic) and safe for concurrent use.
type Metrics struct {
	// LLM token counters (partitioned by provider + model via attributes)
	InputTokens  metric.Int64Counter
	OutputTokens metric.Int64Counter

	// Probe counters
	Probes           metric.Int64Counter
	ProbeCacheHits   metric.Int64Counter
	ProbeCacheMisses metric.Int64Counter

	// Evaluation counters (partitioned by verdict: pass, fail, error)
	Evaluations metric.Int64Counter
	// Judge run counters (partitioned by outcome: ok, parse_failed)
	JudgeRuns metric.Int64Counter
	// Retry counter for batch items
	Retries metric.Int64Counter
}

// NewMetrics creates all metric instruments. Returns no-op instruments
// when no MeterProvider is registered (safe to call unconditionally).
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	// --- LLM token counters ---

	m.InputTokens, err = meter.Int64Counter("llm.tokens.input",
		metric.WithDescription("Total LLM input tokens consumed"),
		metric.WithUnit("{token}"))
	if err != nil {
		return nil, err
	}

	m.OutputTokens, err = meter.Int64Counter("llm.tokens.output",
		metric.WithDescription("Total LLM output tokens consumed"),
		metric.WithUnit("{token}"))
	if err != nil {
		return nil, err
	}

	// --- Probe counters ---

	m.Probes, err = meter.Int64Counter("probe.checks",
		metric.WithDescription("Total availability probes partitioned by outcome class"))
	if err != nil {
		return nil, err
	}

	m.ProbeCacheHits, err = meter.Int64Counter("probe_cache.hits",
		metric.WithDescription("Number of probe cache hits (fresh result served without a backend call)"))
	if err != nil {
		return nil, err
	}

	m.ProbeCacheMisses, err = meter.Int64Counter("probe_cache.misses",
		metric.WithDescription("Number of probe cache misses (no entry or TTL expired)"))
	if err != nil {
		return nil, err
	}

	// --- Evaluation counters ---

	m.Evaluations, err = meter.Int64Counter("evaluations.total",
		metric.WithDescription("Total item evaluations partitioned by verdict (pass, fail, error)"))
	if err != nil {
		return nil, err
	}

	m.JudgeRuns, err = meter.Int64Counter("judge.runs",
		metric.WithDescription("Total judge model runs partitioned by outcome (ok, parse_failed)"))
	if err != nil {
		return nil, err
	}

	m.Retries, err = meter.Int64Counter("batch.retries",
		metric.WithDescription("Total per-item retries attempted by the batch runner"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordTokens records LLM token usage on the metric counters.
func (m *Metrics) RecordTokens(ctx context.Context, provider, model string, input, output int64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("llm.provider", provider),
		attribute.String("llm.model", model),
	)
	m.InputTokens.Add(ctx, input, attrs)
	m.OutputTokens.Add(ctx, output, attrs)
}

// RecordProbe records an availability probe with its outcome class.
func (m *Metrics) RecordProbe(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.Probes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("probe.outcome", outcome),
	))
}

// RecordProbeCacheHit records a probe cache hit.
func (m *Metrics) RecordProbeCacheHit(ctx context.Context) {
	if m == nil {
		return
	}
	m.ProbeCacheHits.Add(ctx, 1)
}

// RecordProbeCacheMiss records a probe cache miss.
func (m *Metrics) RecordProbeCacheMiss(ctx context.Context) {
	if m == nil {
		return
	}
	m.ProbeCacheMisses.Add(ctx, 1)
}

// RecordEvaluation records an item evaluation with the given verdict.
func (m *Metrics) RecordEvaluation(ctx context.Context, verdict string) {
	if m == nil {
		return
	}
	m.Evaluations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("evaluation.verdict", verdict),
	))
}

// RecordJudgeRun records one judge model run with its outcome.
func (m *Metrics) RecordJudgeRun(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.JudgeRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("judge.outcome", outcome),
	))
}

// RecordRetry records one batch item retry.
func (m *Metrics) RecordRetry(ctx context.Context) {
	if m == nil {
		return
	}
	m.Retries.Add(ctx, 1)
}
