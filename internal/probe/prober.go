// Package probe determines whether a model backend is currently reachable
// and authorized, caching outcomes with outcome-dependent TTLs so expensive
// batch jobs never waste calls on a dead backend.
package probe

import (
	"context"
	"sync"
	"time"

	"github.com/tafreeman/prompteval/internal/model"
	telem "github.com/tafreeman/prompteval/internal/otel"
)

// Result is the outcome of one probe at one point in time. It is never
// mutated; a newer probe produces a new result that supersedes this one in
// the cache.
type Result struct {
	Model     model.ID   `json:"model"`
	Usable    bool       `json:"usable"`
	Code      model.Code `json:"code,omitempty"`
	CheckedAt time.Time  `json:"checked_at"`
	Retryable bool       `json:"retryable"`
}

// GenerateFunc performs one generation call; the dispatcher's Generate
// satisfies it. Injected so tests can probe without a backend.
type GenerateFunc func(ctx context.Context, req model.GenerationRequest) (*model.GenerationResponse, error)

// Prober performs cheap liveness checks per model id.
//
// The cache is owned explicitly by the prober (no package-level state) and
// is the only state shared across concurrent batch workers.
type Prober struct {
	cache    *Cache
	generate GenerateFunc
	parallel int
	now      func() time.Time

	// Metrics receives probe and cache counters; nil-safe.
	Metrics *telem.Metrics
}

// New creates a prober over the given cache and generate function.
// parallel bounds FilterRunnable/DiscoverAll concurrency; values below 1
// mean sequential.
func New(cache *Cache, generate GenerateFunc, parallel int) *Prober {
	if parallel < 1 {
		parallel = 1
	}
	return &Prober{cache: cache, generate: generate, parallel: parallel, now: time.Now}
}

// Cache exposes the prober's cache for stats and invalidation.
func (p *Prober) Cache() *Cache {
	return p.cache
}

// Check returns the availability of id, cache-first. On a miss it performs a
// minimal one-token generation, classifies the outcome, and caches it with
// the TTL matching its class. A probe that cannot complete (timeout,
// connection refused) is recorded as a transient failure, never dropped.
func (p *Prober) Check(ctx context.Context, id model.ID) Result {
	if cached, ok := p.cache.Lookup(id, p.now()); ok {
		p.Metrics.RecordProbeCacheHit(ctx)
		return *cached
	}
	p.Metrics.RecordProbeCacheMiss(ctx)

	resp, err := p.generate(ctx, model.GenerationRequest{
		Model:     id,
		Prompt:    "ping",
		MaxTokens: 1,
	})

	r := Result{Model: id, CheckedAt: p.now()}
	switch {
	case err != nil:
		// Configuration error (no adapter registered): the model is not
		// usable here and retrying will not change that.
		r.Code = model.CodeInternalError
	case resp.Failed():
		r.Code = resp.Code
	default:
		r.Usable = true
	}
	r.Retryable = model.ShouldRetry(r.Code)

	if r.Usable {
		p.Metrics.RecordProbe(ctx, "usable")
	} else {
		p.Metrics.RecordProbe(ctx, string(r.Code))
	}

	p.cache.Store(r)
	return r
}

// FilterRunnable probes each id with bounded parallelism and returns only
// the usable subset, preserving input order.
func (p *Prober) FilterRunnable(ctx context.Context, ids []model.ID) []model.ID {
	results := p.checkAll(ctx, ids)

	runnable := make([]model.ID, 0, len(ids))
	for i, id := range ids {
		if results[i].Usable {
			runnable = append(runnable, id)
		}
	}
	return runnable
}

// checkAll probes every id concurrently, results indexed like ids.
func (p *Prober) checkAll(ctx context.Context, ids []model.ID) []Result {
	results := make([]Result, len(ids))

	var wg sync.WaitGroup
	sem := make(chan struct{}, p.parallel)
	for i, id := range ids {
		wg.Add(1)
		go func(idx int, id model.ID) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[idx] = p.Check(ctx, id)
		}(i, id)
	}
	wg.Wait()

	return results
}
