package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tafreeman/prompteval/internal/model"
)

// fakeAdapter returns canned responses for dispatcher tests.
type fakeAdapter struct {
	provider model.Provider
	resp     *model.GenerationResponse
	err      error
	calls    int
}

func (f *fakeAdapter) Generate(ctx context.Context, req model.GenerationRequest) (*model.GenerationResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakeAdapter) Provider() model.Provider {
	return f.provider
}

func TestDispatcher_RoutesToRegisteredAdapter(t *testing.T) {
	reg := NewRegistry()
	fake := &fakeAdapter{
		provider: model.ProviderLocal,
		resp:     &model.GenerationResponse{Text: "hello"},
	}
	reg.Register(fake)

	d := NewDispatcher(reg, 0)
	resp, err := d.Generate(context.Background(), model.GenerationRequest{
		Model:  model.MustParseID("local:phi4"),
		Prompt: "ping",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Text != "hello" {
		t.Errorf("Text: got %q, want %q", resp.Text, "hello")
	}
	if resp.Failed() {
		t.Errorf("unexpected error code %s", resp.Code)
	}
	if fake.calls != 1 {
		t.Errorf("adapter calls: got %d, want 1", fake.calls)
	}
}

func TestDispatcher_MissingAdapterIsConfigError(t *testing.T) {
	d := NewDispatcher(NewRegistry(), 0)
	_, err := d.Generate(context.Background(), model.GenerationRequest{
		Model: model.MustParseID("openai:gpt-4o-mini"),
	})
	if err == nil {
		t.Fatal("expected configuration error for unregistered provider")
	}
}

func TestDispatcher_ClassifiesAdapterFailure(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeAdapter{
		provider: model.ProviderLocal,
		err:      &statusError{status: http.StatusTooManyRequests, body: "slow down"},
	})

	d := NewDispatcher(reg, 0)
	resp, err := d.Generate(context.Background(), model.GenerationRequest{
		Model: model.MustParseID("local:phi4"),
	})
	if err != nil {
		t.Fatalf("adapter failures must be returned in the response, got error: %v", err)
	}
	if resp.Code != model.CodeRateLimited {
		t.Errorf("Code: got %s, want %s", resp.Code, model.CodeRateLimited)
	}
}

func TestDispatcher_TimeoutClassified(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeAdapter{
		provider: model.ProviderLocal,
		err:      context.DeadlineExceeded,
	})

	d := NewDispatcher(reg, time.Second)
	resp, err := d.Generate(context.Background(), model.GenerationRequest{
		Model: model.MustParseID("local:phi4"),
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Code != model.CodeTimeout {
		t.Errorf("Code: got %s, want %s", resp.Code, model.CodeTimeout)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want model.Code
	}{
		{"nil", nil, ""},
		{"status 404", &statusError{status: 404}, model.CodeUnavailableModel},
		{"status 401", &statusError{status: 401}, model.CodePermissionDenied},
		{"status 429", &statusError{status: 429}, model.CodeRateLimited},
		{"deadline", context.DeadlineExceeded, model.CodeTimeout},
		{"opaque", errors.New("boom"), model.CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestOllamaAdapter_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"phi4","message":{"role":"assistant","content":"pong"},"prompt_eval_count":12,"eval_count":3}`))
	}))
	defer srv.Close()

	a := NewOllamaAdapter(OllamaConfig{BaseURL: srv.URL})
	resp, err := a.Generate(context.Background(), model.GenerationRequest{
		Model:     model.MustParseID("local:phi4"),
		Prompt:    "ping",
		MaxTokens: 8,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Text != "pong" {
		t.Errorf("Text: got %q, want %q", resp.Text, "pong")
	}
	if resp.Usage.InputTokens != 12 || resp.Usage.OutputTokens != 3 {
		t.Errorf("Usage: got %+v", resp.Usage)
	}
}

func TestOllamaAdapter_NotFoundClassifies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	a := NewOllamaAdapter(OllamaConfig{BaseURL: srv.URL})
	_, err := a.Generate(context.Background(), model.GenerationRequest{
		Model:  model.MustParseID("local:nope"),
		Prompt: "ping",
	})
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if got := Classify(err); got != model.CodeUnavailableModel {
		t.Errorf("Classify: got %s, want %s", got, model.CodeUnavailableModel)
	}
}

func TestOllamaAdapter_ListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"models":[{"name":"phi4"},{"name":"qwen2.5:3b"}]}`))
	}))
	defer srv.Close()

	a := NewOllamaAdapter(OllamaConfig{BaseURL: srv.URL})
	names, err := a.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(names) != 2 || names[0] != "phi4" || names[1] != "qwen2.5:3b" {
		t.Errorf("ListModels: got %v", names)
	}
}

func TestRegistry_ProvidersStableOrder(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeAdapter{provider: model.ProviderAnthropic})
	reg.Register(&fakeAdapter{provider: model.ProviderLocal})

	got := reg.Providers()
	if len(got) != 2 || got[0] != model.ProviderLocal || got[1] != model.ProviderAnthropic {
		t.Errorf("Providers: got %v, want [local anthropic]", got)
	}
}
