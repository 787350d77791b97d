// Package evaluator runs a rubric-driven judgment prompt against a candidate
// output several times, parses structured per-dimension scores, and
// aggregates them into a pass/fail verdict with statistical confidence.
//
// Go code constructs the judging prompt and parses the response; the scores
// themselves are entirely the judge model's call.
package evaluator

import (
	"context"

	"github.com/tafreeman/prompteval/internal/model"
	telem "github.com/tafreeman/prompteval/internal/otel"
	"github.com/tafreeman/prompteval/internal/rubric"
)

// GenerateFunc performs one generation call; the dispatcher's Generate
// satisfies it.
type GenerateFunc func(ctx context.Context, req model.GenerationRequest) (*model.GenerationResponse, error)

// Engine evaluates candidate outputs with a judge model.
type Engine struct {
	generate GenerateFunc

	// Temperature for judge calls. Nonzero temperature plus several runs
	// is the point: the spread across runs measures judgment stability.
	Temperature float64
	// MaxTokens per judge call.
	MaxTokens int64
	// PassThreshold is the minimum PassRate for an overall pass.
	PassThreshold float64

	// Metrics receives per-run outcome counters; nil-safe.
	Metrics *telem.Metrics
}

// DefaultPassThreshold is the minimum fraction of runs that must clear all
// hard gates.
const DefaultPassThreshold = 0.75

// NewEngine creates an engine over the given generate function.
func NewEngine(generate GenerateFunc) *Engine {
	return &Engine{
		generate:      generate,
		Temperature:   0.3,
		MaxTokens:     1024,
		PassThreshold: DefaultPassThreshold,
	}
}

// Evaluate judges candidate against rb using the given model, runs times,
// and aggregates the results.
//
// A run whose response cannot be parsed into valid scores is recorded with
// ParseFailed and excluded from the numeric aggregate, but still counts
// against the pass rate. Only a configuration error (no adapter for the
// model's provider) aborts the whole evaluation.
func (e *Engine) Evaluate(ctx context.Context, candidate string, rb *rubric.Rubric, id model.ID, runs int) (*Aggregate, []Run, error) {
	if runs < 1 {
		runs = 1
	}
	prompt := buildJudgePrompt(rb, candidate)

	var inTokens, outTokens int64
	results := make([]Run, 0, runs)
	for i := 0; i < runs; i++ {
		run := Run{Index: i}

		resp, err := e.generate(ctx, model.GenerationRequest{
			Model:       id,
			Prompt:      prompt,
			System:      SystemPrompt,
			Temperature: e.Temperature,
			MaxTokens:   e.MaxTokens,
		})
		if err != nil {
			return nil, nil, err
		}
		inTokens += resp.Usage.InputTokens
		outTokens += resp.Usage.OutputTokens

		if resp.Failed() {
			run.ParseFailed = true
			run.Err = string(resp.Code)
		} else if scores, perr := parseScores(resp.Text, rb); perr != nil {
			run.ParseFailed = true
			run.Err = string(model.CodeParseError)
		} else {
			run.Scores = scores
		}

		if run.Err != "" {
			e.Metrics.RecordJudgeRun(ctx, run.Err)
		} else {
			e.Metrics.RecordJudgeRun(ctx, "ok")
		}
		results = append(results, run)
	}

	agg := aggregate(results, rb, e.PassThreshold)
	agg.InputTokens = inTokens
	agg.OutputTokens = outTokens
	return agg, results, nil
}
