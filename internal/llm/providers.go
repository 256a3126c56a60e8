package llm

import (
	"slices"
	"strings"

	"github.com/book-expert/voice-assistant/internal/core"
)

// ProviderID names a chat completion backend.
type ProviderID string

// Known providers.
const (
	ProviderDeepSeek ProviderID = "deepseek"
	ProviderKimi     ProviderID = "kimi"
)

// Default provider endpoints.
const (
	DeepSeekEndpoint = "https://api.modelarts-maas.com/v1/chat/completions"
	KimiEndpoint     = "https://api.moonshot.cn/v1/chat/completions"
)

// MinCredentialLength is the length below which a credential draws a warning.
const MinCredentialLength = 10

type providerSpec struct {
	endpoint     string
	defaultModel string
	models       []string
	// fixedModel is always sent regardless of the requested model.
	fixedModel bool
}

var providerSpecs = map[ProviderID]providerSpec{
	ProviderDeepSeek: {
		endpoint:     DeepSeekEndpoint,
		defaultModel: "DeepSeek-V3",
		models:       []string{"DeepSeek-V3"},
		fixedModel:   true,
	},
	ProviderKimi: {
		endpoint:     KimiEndpoint,
		defaultModel: "moonshot-v1-8k",
		models:       []string{"moonshot-v1-8k", "moonshot-v1-32k", "moonshot-v1-128k"},
	},
}

// ParseProvider maps a configuration string onto a known provider.
func ParseProvider(name string) (ProviderID, error) {
	switch ProviderID(strings.TrimSpace(name)) {
	case ProviderDeepSeek:
		return ProviderDeepSeek, nil
	case ProviderKimi:
		return ProviderKimi, nil
	default:
		return "", core.Errorf(core.KindUnsupported, name, "unsupported provider: %s", name)
	}
}

// Providers lists the supported providers.
func Providers() []string {
	return []string{string(ProviderDeepSeek), string(ProviderKimi)}
}

// Models returns the allow-listed models of a provider.
func Models(provider string) []string {
	id, err := ParseProvider(provider)
	if err != nil {
		return []string{}
	}

	return slices.Clone(providerSpecs[id].models)
}

// DefaultModel returns the model used when a request names none.
func DefaultModel(provider string) string {
	id, err := ParseProvider(provider)
	if err != nil {
		return ""
	}

	return providerSpecs[id].defaultModel
}

// ProviderConfig is the per-request chat configuration.
type ProviderConfig struct {
	Provider    string
	Credential  string
	Model       string
	Temperature float64
}

// Validate checks cfg. A short credential is only a warning.
func Validate(cfg ProviderConfig) core.ValidationResult {
	result := core.NewValidationResult()

	id, providerErr := ParseProvider(cfg.Provider)
	if providerErr != nil {
		result.AddError("unsupported provider: %s", cfg.Provider)
	}

	switch {
	case cfg.Credential == "":
		result.AddError("API key cannot be empty")
	case len([]rune(strings.TrimSpace(cfg.Credential))) < MinCredentialLength:
		result.AddWarning("API key length may be incorrect")
	}

	if providerErr == nil && !slices.Contains(providerSpecs[id].models, cfg.Model) {
		result.AddError("model '%s' is not available for provider '%s'", cfg.Model, cfg.Provider)
	}

	return result
}
