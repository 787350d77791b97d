package batch

import (
	"context"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/tafreeman/prompteval/internal/evaluator"
	"github.com/tafreeman/prompteval/internal/model"
	telem "github.com/tafreeman/prompteval/internal/otel"
	"github.com/tafreeman/prompteval/internal/probe"
)

// EvaluateFunc judges one candidate document; the evaluator engine's
// Evaluate (with rubric, model, and run count bound) satisfies it.
type EvaluateFunc func(ctx context.Context, candidate string) (*evaluator.Aggregate, []evaluator.Run, error)

// ItemFailure describes one item the batch could not pass.
type ItemFailure struct {
	ID      string `json:"id"`
	Code    string `json:"code,omitempty"`
	Reason  string `json:"reason"`
	Retries int    `json:"retries"`
}

// Report summarizes a batch run. Every scheduled item is accounted for:
// Skipped + Interrupted + Passed + Failed == Total.
type Report struct {
	Total       int `json:"total"`
	Passed      int `json:"passed"`
	Failed      int `json:"failed"`
	Skipped     int `json:"skipped"`
	Interrupted int `json:"interrupted"`

	// DimensionAverages is the mean of per-dimension medians across
	// evaluated items, for the end-of-run summary.
	DimensionAverages map[string]float64 `json:"dimension_averages,omitempty"`

	FailedItems []ItemFailure `json:"failed_items,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Runner executes a batch of work items through the probe-dispatch-evaluate
// pipeline with bounded concurrency.
type Runner struct {
	Prober   *probe.Prober
	Evaluate EvaluateFunc
	// Model is the judge model every item is evaluated with.
	Model model.ID
	// Parallel bounds concurrent workers; below 1 means sequential.
	Parallel int
	// Retries caps per-item retries for retryable failures.
	Retries int
	// RetryBackoff is the base delay for the exponential backoff between
	// retries.
	RetryBackoff time.Duration

	Checkpoint *Checkpoint
	Log        *ResultLog
	Metrics    *telem.Metrics // nil-safe
}

// itemOutcome is the terminal state of one processed item.
type itemOutcome struct {
	agg     *evaluator.Aggregate
	failure *ItemFailure
}

// Run processes items, skipping any the checkpoint marks complete. On
// context cancellation it stops scheduling, lets in-flight items finish,
// and still returns a complete report.
func (r *Runner) Run(ctx context.Context, items []Item) (*Report, error) {
	rep := &Report{
		Total:             len(items),
		DimensionAverages: make(map[string]float64),
		StartedAt:         time.Now().UTC(),
	}

	var pending []Item
	for _, it := range items {
		if r.Checkpoint != nil && r.Checkpoint.Done(it.ID) {
			rep.Skipped++
			continue
		}
		pending = append(pending, it)
	}

	parallel := r.Parallel
	if parallel < 1 {
		parallel = 1
	}

	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		dimTotals = make(map[string]float64)
		evaluated int
	)
	sem := make(chan struct{}, parallel)

	for _, it := range pending {
		// Stop scheduling once interrupted; in-flight items run to
		// completion below.
		if ctx.Err() != nil {
			rep.Interrupted++
			continue
		}
		select {
		case <-ctx.Done():
			rep.Interrupted++
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(it Item) {
			defer wg.Done()
			defer func() { <-sem }()

			// In-flight work finishes cleanly even after an interrupt;
			// per-call timeouts still bound each backend call.
			outcome := r.processItem(context.WithoutCancel(ctx), it)

			mu.Lock()
			defer mu.Unlock()
			if outcome.failure != nil {
				rep.Failed++
				rep.FailedItems = append(rep.FailedItems, *outcome.failure)
			} else {
				rep.Passed++
			}
			if outcome.agg != nil {
				evaluated++
				for name, stats := range outcome.agg.PerDimension {
					dimTotals[name] += stats.Median
				}
			}
		}(it)
	}

	wg.Wait()

	if evaluated > 0 {
		for name, total := range dimTotals {
			rep.DimensionAverages[name] = total / float64(evaluated)
		}
	}
	sort.Slice(rep.FailedItems, func(i, j int) bool {
		return rep.FailedItems[i].ID < rep.FailedItems[j].ID
	})
	rep.FinishedAt = time.Now().UTC()
	return rep, ctx.Err()
}

// processItem runs the probe-dispatch-evaluate pipeline for one item,
// retrying retryable failures with exponential backoff. The result is
// logged immediately and, when a verdict was reached, checkpointed before
// the worker moves on.
func (r *Runner) processItem(ctx context.Context, it Item) itemOutcome {
	start := time.Now()

	content, err := os.ReadFile(it.Path)
	if err != nil {
		return r.finishFailed(ctx, it, start, model.CodeInternalError, "reading item: "+err.Error(), 0)
	}

	var lastCode model.Code
	var lastReason string
	retries := 0

	for attempt := 0; ; attempt++ {
		code, reason, agg := r.attempt(ctx, string(content))
		if code == "" {
			return r.finishEvaluated(ctx, it, start, agg, retries)
		}

		lastCode, lastReason = code, reason
		if !model.ShouldRetry(code) || attempt >= r.Retries {
			break
		}

		// A cached transient probe result would short-circuit the next
		// attempt; drop it so the retry really re-probes.
		if r.Prober != nil {
			r.Prober.Cache().Invalidate(r.Model)
		}
		retries++
		r.Metrics.RecordRetry(ctx)
		if err := sleepCtx(ctx, backoffDelay(r.RetryBackoff, attempt)); err != nil {
			break
		}
	}

	return r.finishFailed(ctx, it, start, lastCode, lastReason, retries)
}

// attempt performs one probe + evaluate cycle. An empty code means the item
// was evaluated and agg holds the verdict.
func (r *Runner) attempt(ctx context.Context, candidate string) (model.Code, string, *evaluator.Aggregate) {
	if r.Prober != nil {
		pr := r.Prober.Check(ctx, r.Model)
		if !pr.Usable {
			return pr.Code, "model unavailable: " + string(pr.Code), nil
		}
	}

	agg, runs, err := r.Evaluate(ctx, candidate)
	if err != nil {
		return model.CodeInternalError, err.Error(), nil
	}

	// Every run failing before a score was parsed means the item was not
	// evaluated at all; surface the first run's classification so the
	// retry decision matches what the backend reported.
	if agg.Runs > 0 && agg.ParseFailures == agg.Runs {
		code := model.CodeParseError
		for _, run := range runs {
			if run.Err != "" {
				code = model.Code(run.Err)
				break
			}
		}
		return code, "no run produced parseable scores", nil
	}

	return "", "", agg
}

func (r *Runner) finishEvaluated(ctx context.Context, it Item, start time.Time, agg *evaluator.Aggregate, retries int) itemOutcome {
	rec := Record{
		Item:       it.ID,
		Model:      r.Model.String(),
		Scores:     medians(agg),
		Overall:    agg.Overall,
		PassRate:   agg.PassRate,
		Pass:       agg.Pass,
		Retries:    retries,
		InTokens:   agg.InputTokens,
		OutTokens:  agg.OutputTokens,
		DurationMs: time.Since(start).Milliseconds(),
		Timestamp:  time.Now().UTC(),
	}
	r.appendLog(rec)

	// A reached verdict, pass or fail, is completed work; resume must
	// not re-evaluate it. Items that errored out stay uncheckpointed so
	// resume retries them.
	if r.Checkpoint != nil {
		_ = r.Checkpoint.Append(it.ID)
	}

	if agg.Pass {
		r.Metrics.RecordEvaluation(ctx, "pass")
		return itemOutcome{agg: agg}
	}
	r.Metrics.RecordEvaluation(ctx, "fail")
	return itemOutcome{
		agg: agg,
		failure: &ItemFailure{
			ID:      it.ID,
			Reason:  "hard gates or pass rate below threshold",
			Retries: retries,
		},
	}
}

func (r *Runner) finishFailed(ctx context.Context, it Item, start time.Time, code model.Code, reason string, retries int) itemOutcome {
	rec := Record{
		Item:       it.ID,
		Model:      r.Model.String(),
		Code:       string(code),
		Retries:    retries,
		DurationMs: time.Since(start).Milliseconds(),
		Timestamp:  time.Now().UTC(),
	}
	r.appendLog(rec)
	r.Metrics.RecordEvaluation(ctx, "error")

	return itemOutcome{failure: &ItemFailure{
		ID:      it.ID,
		Code:    string(code),
		Reason:  reason,
		Retries: retries,
	}}
}

func (r *Runner) appendLog(rec Record) {
	if r.Log != nil {
		_ = r.Log.Append(rec)
	}
}

func medians(agg *evaluator.Aggregate) map[string]float64 {
	out := make(map[string]float64, len(agg.PerDimension))
	for name, stats := range agg.PerDimension {
		out[name] = stats.Median
	}
	return out
}
