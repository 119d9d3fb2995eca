// Package llm provides the language-model client used for filing validation.
// Callers pass a system prompt and a user prompt and receive the raw reply text.
package llm

// ModelTier selects how capable (and how expensive) a model a call needs
type ModelTier string

const (
	// TierLite is for short classification-style prompts
	TierLite ModelTier = "lite"
	// TierStandard is for row, taxonomy and period validation
	TierStandard ModelTier = "standard"
	// TierAdvanced is reserved for prompts that need longer reasoning
	TierAdvanced ModelTier = "advanced"
)

// Provider identifies an LLM backend
type Provider string

// ProviderGemini is the Google Gemini provider
const ProviderGemini Provider = "gemini"

// DefaultTemperature keeps validation replies close to deterministic
const DefaultTemperature float32 = 0.1

// Config holds the model configuration for the application
type Config struct {
	Provider    Provider             `json:"provider"`
	Models      map[ModelTier]string `json:"models"`
	Temperature float32              `json:"temperature"`
}

// DefaultConfig returns the Gemini configuration used when none is supplied
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderGemini,
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.5-flash-lite",
			TierStandard: "gemini-2.5-flash",
			TierAdvanced: "gemini-2.5-pro",
		},
		Temperature: DefaultTemperature,
	}
}

// GetModel returns the model name for a tier, falling back to standard then lite
func (c *Config) GetModel(tier ModelTier) string {
	for _, t := range []ModelTier{tier, TierStandard, TierLite} {
		if model, ok := c.Models[t]; ok && model != "" {
			return model
		}
	}
	return ""
}

// WithModel returns a copy of the config with tier mapped to model
func (c *Config) WithModel(tier ModelTier, model string) *Config {
	out := &Config{
		Provider:    c.Provider,
		Models:      make(map[ModelTier]string, len(c.Models)+1),
		Temperature: c.Temperature,
	}
	for k, v := range c.Models {
		out.Models[k] = v
	}
	out.Models[tier] = model
	return out
}
