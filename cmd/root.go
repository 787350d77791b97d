package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tafreeman/prompteval/internal/config"
	"github.com/tafreeman/prompteval/internal/model"
	"github.com/tafreeman/prompteval/internal/provider"
	"github.com/tafreeman/prompteval/internal/rubric"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	// Global flags.
	flagModel   string
	flagBaseURL string
	flagAPIKey  string
	flagRubric  string
	flagTimeout string
	flagJSON    bool
)

var rootCmd = &cobra.Command{
	Use:   "prompteval",
	Short: "LLM-judged quality evaluation for prompt files",
	Long: `prompteval scores prompt documents against a weighted rubric using an
LLM judge, with repeated runs aggregated by median so a single flaky
judgment never decides a verdict.

Models are addressed as "provider:name" (e.g. "local:phi4",
"gh:gpt-4o-mini"). Before any evaluation the target backend is probed
with a minimal request, and probe outcomes are cached so batch jobs
never waste calls on a dead backend.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagModel, "model", "", "judge model as provider:name (default from config, gh:gpt-4o-mini)")
	rootCmd.PersistentFlags().StringVar(&flagBaseURL, "base-url", "", "override the provider API base URL")
	rootCmd.PersistentFlags().StringVar(&flagAPIKey, "api-key", "", "override the provider API key")
	rootCmd.PersistentFlags().StringVar(&flagRubric, "rubric", "", "path to a rubric YAML file (default: built-in prompt-quality rubric)")
	rootCmd.PersistentFlags().StringVar(&flagTimeout, "timeout", "", "per-call timeout, e.g. 60s")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "emit JSON instead of human-readable output")
}

// loadConfig loads file + environment config and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flagModel != "" {
		cfg.Model = flagModel
	}
	if flagBaseURL != "" {
		cfg.BaseURL = flagBaseURL
	}
	if flagAPIKey != "" {
		cfg.APIKey = flagAPIKey
	}
	if flagRubric != "" {
		cfg.Rubric = flagRubric
	}
	if flagTimeout != "" {
		cfg.Timeout = flagTimeout
		cfg.TimeoutDuration, err = time.ParseDuration(flagTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout %q: %w", flagTimeout, err)
		}
	}
	return cfg, nil
}

// buildRegistry registers an adapter for every provider whose credentials
// are present. The local provider needs none and is always registered.
func buildRegistry(cfg *config.Config) *provider.Registry {
	reg := provider.NewRegistry()

	reg.Register(provider.NewOllamaAdapter(provider.OllamaConfig{
		BaseURL: baseURLFor(cfg, model.ProviderLocal),
	}))

	if key := credential(cfg, model.ProviderGH); key != "" {
		reg.Register(provider.NewGitHubAdapter(provider.OpenAIConfig{
			BaseURL: baseURLFor(cfg, model.ProviderGH),
			APIKey:  key,
		}))
	}
	if key := credential(cfg, model.ProviderOpenAI); key != "" {
		reg.Register(provider.NewOpenAIAdapter(provider.OpenAIConfig{
			BaseURL: baseURLFor(cfg, model.ProviderOpenAI),
			APIKey:  key,
		}))
	}
	if key := credential(cfg, model.ProviderAnthropic); key != "" {
		reg.Register(provider.NewAnthropicAdapter(provider.AnthropicConfig{
			BaseURL: baseURLFor(cfg, model.ProviderAnthropic),
			APIKey:  key,
		}))
	}
	if key := credential(cfg, model.ProviderAzure); key != "" {
		if url := azureBaseURL(cfg); url != "" {
			reg.Register(provider.NewAzureAdapter(provider.OpenAIConfig{
				BaseURL: url,
				APIKey:  key,
			}))
		}
	}

	return reg
}

// credential resolves the API key for a provider: explicit config first,
// then the provider's conventional environment variable.
func credential(cfg *config.Config, p model.Provider) string {
	if cfg.APIKey != "" && selectedProvider(cfg) == p {
		return cfg.APIKey
	}
	info, _ := model.Info(p)
	if info.CredentialEnv == "" {
		return ""
	}
	return os.Getenv(info.CredentialEnv)
}

// baseURLFor returns the base URL override for p, but only when p is the
// selected model's provider so one override never leaks across backends.
func baseURLFor(cfg *config.Config, p model.Provider) string {
	if cfg.BaseURL != "" && selectedProvider(cfg) == p {
		return cfg.BaseURL
	}
	return ""
}

// azureBaseURL derives the Azure endpoint from config or AZURE_RESOURCE_NAME.
func azureBaseURL(cfg *config.Config) string {
	if url := baseURLFor(cfg, model.ProviderAzure); url != "" {
		return url
	}
	if rn := os.Getenv("AZURE_RESOURCE_NAME"); rn != "" {
		return fmt.Sprintf("https://%s.openai.azure.com/openai/v1", rn)
	}
	return ""
}

func selectedProvider(cfg *config.Config) model.Provider {
	id, err := model.ParseID(cfg.Model)
	if err != nil {
		return ""
	}
	return id.Provider
}

// requireAdapter fails fast when the selected model's provider has no
// registered adapter, before any batch work starts.
func requireAdapter(reg *provider.Registry, id model.ID) error {
	if _, ok := reg.Get(id.Provider); ok {
		return nil
	}
	info, _ := model.Info(id.Provider)
	if info.CredentialEnv != "" {
		return fmt.Errorf("no credentials for provider %q: set %s or api_key in config", id.Provider, info.CredentialEnv)
	}
	return fmt.Errorf("provider %q is not configured", id.Provider)
}

// loadRubric returns the configured rubric, or the built-in default.
func loadRubric(cfg *config.Config) (*rubric.Rubric, error) {
	if cfg.Rubric == "" {
		return rubric.Default(), nil
	}
	return rubric.Load(cfg.Rubric)
}
