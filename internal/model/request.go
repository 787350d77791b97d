package model

// GenerationRequest is a single text-generation call. Stateless; the caller
// owns it for the lifetime of the call.
type GenerationRequest struct {
	Model       ID      `json:"model"`
	Prompt      string  `json:"prompt"`
	System      string  `json:"system,omitempty"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int64   `json:"max_tokens"`
}

// GenerationResponse is the outcome of a generation call. On failure Code is
// set to one of the closed taxonomy and Text is empty; the dispatcher never
// surfaces raw provider error types.
type GenerationResponse struct {
	Text string `json:"text"`
	// Code is empty on success.
	Code Code `json:"code,omitempty"`
	// Detail is a human-readable failure description for logs; callers
	// must branch on Code, not Detail.
	Detail string `json:"detail,omitempty"`
	// Usage tracks token consumption when the backend reports it.
	Usage TokenUsage `json:"usage,omitempty"`
}

// Failed reports whether the response carries an error code.
func (r *GenerationResponse) Failed() bool {
	return r.Code != ""
}

// TokenUsage tracks token consumption for a single generation call.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}
