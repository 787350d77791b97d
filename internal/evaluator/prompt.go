package evaluator

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tafreeman/prompteval/internal/rubric"
)

// SystemPrompt is the system-level instruction for the judge model.
// Loaded from prompts/system.md at compile time.
//
//go:embed prompts/system.md
var SystemPrompt string

// UserPromptTemplate precedes the rubric and candidate in the user message.
// Loaded from prompts/user.md at compile time.
//
//go:embed prompts/user.md
var UserPromptTemplate string

// buildJudgePrompt renders the user message: template, rubric dimensions,
// then the candidate output fenced off from the instructions.
func buildJudgePrompt(rb *rubric.Rubric, candidate string) string {
	var b strings.Builder
	b.WriteString(UserPromptTemplate)

	b.WriteString("[Rubric: ")
	b.WriteString(rb.Name)
	b.WriteString("]\n")
	if rb.Guidance != "" {
		b.WriteString(rb.Guidance)
		if !strings.HasSuffix(rb.Guidance, "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("\nDimensions:\n")
	for _, d := range rb.Dimensions {
		fmt.Fprintf(&b, "- %s: %s\n", d.Name, d.Description)
	}

	b.WriteString("\n[Candidate]\n")
	b.WriteString(candidate)
	return b.String()
}

// judgeResponse is the JSON structure the judge model returns.
type judgeResponse struct {
	Scores map[string]float64 `json:"scores"`
}

// parseScores parses a judge response into per-dimension scores. It fails if
// the body is not valid JSON, any rubric dimension is missing, or a score
// falls outside 0-10: fail-closed rather than guessing.
func parseScores(raw string, rb *rubric.Rubric) (map[string]float64, error) {
	text := stripMarkdownFences(raw)

	var resp judgeResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return nil, fmt.Errorf("judge response is not valid JSON: %w", err)
	}

	scores := make(map[string]float64, len(rb.Dimensions))
	for _, d := range rb.Dimensions {
		v, ok := resp.Scores[d.Name]
		if !ok {
			return nil, fmt.Errorf("judge response missing dimension %q", d.Name)
		}
		if v < 0 || v > 10 {
			return nil, fmt.Errorf("dimension %q score %v out of range 0-10", d.Name, v)
		}
		scores[d.Name] = v
	}
	return scores, nil
}

// stripMarkdownFences removes a surrounding ```json ... ``` (or bare ```)
// fence. Judge models wrap JSON in fences despite instructions not to.
func stripMarkdownFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		// Drop the language tag line ("json", "JSON", or empty).
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
