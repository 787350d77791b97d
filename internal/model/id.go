// Package model defines the core value types shared across the evaluation
// pipeline: model identifiers, generation requests/responses, and the closed
// error taxonomy used by the prober and dispatcher.
package model

import (
	"fmt"
	"strings"
)

// Provider identifies a backend family.
type Provider string

const (
	// ProviderLocal is an on-device Ollama server.
	ProviderLocal Provider = "local"
	// ProviderGH is GitHub Models (token-based, OpenAI-compatible).
	ProviderGH Provider = "gh"
	// ProviderOpenAI is the OpenAI API (API-key based).
	ProviderOpenAI Provider = "openai"
	// ProviderAnthropic is the Anthropic API (API-key based).
	ProviderAnthropic Provider = "anthropic"
	// ProviderAzure is Azure AI Foundry (enterprise endpoint + api-key header).
	ProviderAzure Provider = "azure"
)

// Providers lists every known provider in stable order.
func Providers() []Provider {
	return []Provider{ProviderLocal, ProviderGH, ProviderOpenAI, ProviderAnthropic, ProviderAzure}
}

// KnownProvider reports whether p is one of the closed provider set.
func KnownProvider(p Provider) bool {
	switch p {
	case ProviderLocal, ProviderGH, ProviderOpenAI, ProviderAnthropic, ProviderAzure:
		return true
	default:
		return false
	}
}

// ID identifies a model as "<provider>:<name>" (e.g. "local:phi4",
// "gh:gpt-4o-mini"). It is a comparable value type usable as a map key.
type ID struct {
	Provider Provider
	Name     string
}

// ParseID parses a "provider:name" string. An unknown provider prefix or a
// missing name is a hard parse error, never deferred to call time.
func ParseID(s string) (ID, error) {
	prefix, name, ok := strings.Cut(s, ":")
	if !ok || name == "" {
		return ID{}, fmt.Errorf("invalid model id %q: expected \"provider:name\"", s)
	}
	p := Provider(prefix)
	if !KnownProvider(p) {
		return ID{}, fmt.Errorf("unknown provider %q in model id %q (supported: local, gh, openai, anthropic, azure)", prefix, s)
	}
	return ID{Provider: p, Name: name}, nil
}

// MustParseID is ParseID for statically known ids; it panics on error.
func MustParseID(s string) ID {
	id, err := ParseID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String renders the id back to "provider:name" form.
func (id ID) String() string {
	return string(id.Provider) + ":" + id.Name
}

// Key returns a filesystem-safe key for the id, used by the disk-backed
// probe cache.
func (id ID) Key() string {
	r := strings.NewReplacer(":", "_", "/", "_", "\\", "_", " ", "_")
	return r.Replace(id.String())
}

// ProviderInfo holds static capability metadata for a provider.
type ProviderInfo struct {
	// DisplayName is the human-readable provider name.
	DisplayName string
	// CredentialEnv is the environment variable holding the credential,
	// empty for providers that need none.
	CredentialEnv string
	// DefaultBaseURL is the default API endpoint, empty when the SDK
	// default applies.
	DefaultBaseURL string
	// DefaultCatalog lists models to probe when the backend cannot be
	// asked for its catalog dynamically.
	DefaultCatalog []string
}

// registry holds per-provider capability metadata for the closed provider set.
var registry = map[Provider]ProviderInfo{
	ProviderLocal: {
		DisplayName:    "Ollama (local)",
		DefaultBaseURL: "http://localhost:11434",
		DefaultCatalog: []string{"phi4", "llama3.2", "qwen2.5"},
	},
	ProviderGH: {
		DisplayName:    "GitHub Models",
		CredentialEnv:  "GITHUB_TOKEN",
		DefaultBaseURL: "https://models.github.ai/inference",
		DefaultCatalog: []string{"gpt-4o-mini", "gpt-4o", "Phi-4"},
	},
	ProviderOpenAI: {
		DisplayName:    "OpenAI",
		CredentialEnv:  "OPENAI_API_KEY",
		DefaultCatalog: []string{"gpt-4o-mini", "gpt-4o"},
	},
	ProviderAnthropic: {
		DisplayName:    "Anthropic",
		CredentialEnv:  "ANTHROPIC_API_KEY",
		DefaultCatalog: []string{"claude-sonnet-4-5", "claude-haiku-4-5"},
	},
	ProviderAzure: {
		DisplayName:    "Azure AI Foundry",
		CredentialEnv:  "AZURE_OPENAI_API_KEY",
		DefaultCatalog: []string{"gpt-4o-mini"},
	},
}

// Info returns the capability metadata for a provider. The second return is
// false for providers outside the closed set.
func Info(p Provider) (ProviderInfo, bool) {
	info, ok := registry[p]
	return info, ok
}
