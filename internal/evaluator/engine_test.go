package evaluator

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/tafreeman/prompteval/internal/model"
)

// scriptedGenerate serves one canned response per call, in order.
func scriptedGenerate(responses ...*model.GenerationResponse) GenerateFunc {
	i := 0
	return func(ctx context.Context, req model.GenerationRequest) (*model.GenerationResponse, error) {
		if i >= len(responses) {
			return nil, fmt.Errorf("unexpected call %d", i)
		}
		resp := responses[i]
		i++
		return resp, nil
	}
}

func scoreJSON(clarity, completeness float64) *model.GenerationResponse {
	return &model.GenerationResponse{
		Text: fmt.Sprintf(`{"scores":{"Clarity":%v,"Completeness":%v}}`, clarity, completeness),
	}
}

func TestEvaluate_AggregatesRuns(t *testing.T) {
	e := NewEngine(scriptedGenerate(
		scoreJSON(8, 8),
		scoreJSON(7, 9),
		scoreJSON(8, 8),
	))

	agg, runs, err := e.Evaluate(context.Background(), "candidate", testRubric(t), model.MustParseID("gh:gpt-4o-mini"), 3)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("runs: got %d, want 3", len(runs))
	}
	if !agg.Pass {
		t.Errorf("Pass: got false, want true (agg %+v)", agg)
	}
	if got := agg.PerDimension["Clarity"].Median; got != 8 {
		t.Errorf("Clarity median: got %v, want 8", got)
	}
}

func TestEvaluate_FencedResponseParsed(t *testing.T) {
	e := NewEngine(scriptedGenerate(&model.GenerationResponse{
		Text: "```json\n{\"scores\":{\"Clarity\":8,\"Completeness\":8}}\n```",
	}))

	agg, runs, err := e.Evaluate(context.Background(), "candidate", testRubric(t), model.MustParseID("local:phi4"), 1)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if runs[0].ParseFailed {
		t.Fatal("ParseFailed: got true for a fenced but valid response")
	}
	if !agg.Pass {
		t.Error("Pass: got false, want true")
	}
}

func TestEvaluate_MalformedRunRecordedNotDropped(t *testing.T) {
	e := NewEngine(scriptedGenerate(
		scoreJSON(8, 8),
		&model.GenerationResponse{Text: "I think this prompt is quite good overall."},
		scoreJSON(8, 8),
		scoreJSON(8, 8),
	))

	agg, runs, err := e.Evaluate(context.Background(), "candidate", testRubric(t), model.MustParseID("local:phi4"), 4)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !runs[1].ParseFailed {
		t.Fatal("run 1 ParseFailed: got false, want true")
	}
	if runs[1].Err != string(model.CodeParseError) {
		t.Errorf("run 1 Err: got %q, want %q", runs[1].Err, model.CodeParseError)
	}
	if agg.PassRate != 0.75 {
		t.Errorf("PassRate: got %v, want 0.75", agg.PassRate)
	}
}

func TestEvaluate_BackendFailureBecomesFailedRun(t *testing.T) {
	e := NewEngine(scriptedGenerate(
		&model.GenerationResponse{Code: model.CodeRateLimited, Detail: "429"},
		scoreJSON(8, 8),
	))

	_, runs, err := e.Evaluate(context.Background(), "candidate", testRubric(t), model.MustParseID("gh:gpt-4o-mini"), 2)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !runs[0].ParseFailed {
		t.Error("run 0 ParseFailed: got false, want true for a failed backend call")
	}
	if runs[0].Err != string(model.CodeRateLimited) {
		t.Errorf("run 0 Err: got %q, want %q", runs[0].Err, model.CodeRateLimited)
	}
}

func TestEvaluate_ConfigurationErrorAborts(t *testing.T) {
	e := NewEngine(func(ctx context.Context, req model.GenerationRequest) (*model.GenerationResponse, error) {
		return nil, fmt.Errorf("no adapter registered for provider %q", req.Model.Provider)
	})

	_, _, err := e.Evaluate(context.Background(), "candidate", testRubric(t), model.MustParseID("azure:gpt-4o-mini"), 2)
	if err == nil {
		t.Fatal("expected configuration error to abort evaluation")
	}
}

func TestBuildJudgePrompt_ContainsRubricAndCandidate(t *testing.T) {
	rb := testRubric(t)
	prompt := buildJudgePrompt(rb, "THE CANDIDATE TEXT")

	for _, d := range rb.Dimensions {
		if !strings.Contains(prompt, d.Name) {
			t.Errorf("prompt missing dimension %q", d.Name)
		}
	}
	if !strings.Contains(prompt, "THE CANDIDATE TEXT") {
		t.Error("prompt missing candidate text")
	}
}

func TestParseScores(t *testing.T) {
	rb := testRubric(t)

	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"plain json", `{"scores":{"Clarity":8,"Completeness":7}}`, false},
		{"fenced", "```json\n{\"scores\":{\"Clarity\":8,\"Completeness\":7}}\n```", false},
		{"bare fence", "```\n{\"scores\":{\"Clarity\":8,\"Completeness\":7}}\n```", false},
		{"not json", "looks good to me", true},
		{"missing dimension", `{"scores":{"Clarity":8}}`, true},
		{"out of range", `{"scores":{"Clarity":14,"Completeness":7}}`, true},
		{"negative", `{"scores":{"Clarity":-1,"Completeness":7}}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseScores(tt.raw, rb)
			if tt.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestEmbeddedPrompts(t *testing.T) {
	if strings.TrimSpace(SystemPrompt) == "" {
		t.Error("SystemPrompt is empty — embed directive may have failed")
	}
	if strings.TrimSpace(UserPromptTemplate) == "" {
		t.Error("UserPromptTemplate is empty — embed directive may have failed")
	}
}
