// Package provider implements the backend adapters and the dispatcher that
// routes generation requests to them.
//
// One adapter exists per backend family: local Ollama, OpenAI-compatible
// cloud endpoints (OpenAI, GitHub Models, Azure AI Foundry), and Anthropic.
// Go code only provides transport; adapter failures are classified into the
// closed error taxonomy before they reach a caller.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"

	"github.com/tafreeman/prompteval/internal/model"
	telem "github.com/tafreeman/prompteval/internal/otel"
)

// Adapter is a single "generate text" capability for one backend family.
type Adapter interface {
	// Generate performs one generation call. A transport or API failure
	// is returned as an error; the dispatcher classifies it.
	Generate(ctx context.Context, req model.GenerationRequest) (*model.GenerationResponse, error)

	// Provider returns the backend family this adapter serves.
	Provider() model.Provider
}

// Cataloger is implemented by adapters whose backend can enumerate its own
// model catalog (e.g. Ollama's /api/tags). Adapters without it fall back to
// the static catalog in the provider registry.
type Cataloger interface {
	ListModels(ctx context.Context) ([]string, error)
}

// Registry maps providers to registered adapters. New providers register an
// adapter at startup without touching dispatch logic.
type Registry struct {
	mu       sync.RWMutex
	adapters map[model.Provider]Adapter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[model.Provider]Adapter)}
}

// Register installs an adapter for its provider, replacing any previous one.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Provider()] = a
}

// Get returns the adapter registered for p.
func (r *Registry) Get(p model.Provider) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[p]
	return a, ok
}

// Providers returns the providers with a registered adapter, in the stable
// order of the closed provider set.
func (r *Registry) Providers() []model.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.Provider
	for _, p := range model.Providers() {
		if _, ok := r.adapters[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Dispatcher routes generation requests to the adapter registered for the
// request's provider. It does not probe availability itself; batch callers
// consult the prober first so the probe cache keeps its value.
type Dispatcher struct {
	registry *Registry
	timeout  time.Duration

	// Metrics receives token counters per call; nil-safe.
	Metrics *telem.Metrics
}

// NewDispatcher creates a dispatcher over the given registry. timeout is the
// per-call ceiling applied to every backend call; zero means no extra
// deadline beyond the caller's context.
func NewDispatcher(registry *Registry, timeout time.Duration) *Dispatcher {
	return &Dispatcher{registry: registry, timeout: timeout}
}

// Generate resolves the request's provider and performs the call.
//
// A missing adapter is a configuration error and is returned as a Go error:
// the caller is misconfigured and no backend was contacted. Adapter failures
// are classified and returned inside the response so batch callers can
// decide per item whether to retry.
func (d *Dispatcher) Generate(ctx context.Context, req model.GenerationRequest) (*model.GenerationResponse, error) {
	adapter, ok := d.registry.Get(req.Model.Provider)
	if !ok {
		return nil, fmt.Errorf("no adapter registered for provider %q (model %s)", req.Model.Provider, req.Model)
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	resp, err := adapter.Generate(ctx, req)
	if err != nil {
		return &model.GenerationResponse{
			Code:   Classify(err),
			Detail: err.Error(),
		}, nil
	}
	d.Metrics.RecordTokens(ctx, string(req.Model.Provider), req.Model.Name,
		resp.Usage.InputTokens, resp.Usage.OutputTokens)
	return resp, nil
}

// statusError carries an HTTP status from a hand-rolled HTTP adapter
// (Ollama) so Classify can map it like an SDK error.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.status, e.body)
}

// Classify maps an adapter error into the closed taxonomy. SDK errors are
// classified by HTTP status; everything else falls through to the
// transport-level classifier.
func Classify(err error) model.Code {
	if err == nil {
		return ""
	}
	var se *statusError
	if errors.As(err, &se) {
		return model.ClassifyStatus(se.status)
	}
	var oaErr *openai.Error
	if errors.As(err, &oaErr) {
		return model.ClassifyStatus(oaErr.StatusCode)
	}
	var anErr *anthropic.Error
	if errors.As(err, &anErr) {
		return model.ClassifyStatus(anErr.StatusCode)
	}
	return model.ClassifyErr(err)
}
