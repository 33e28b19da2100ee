// Package llm provides the extraction oracle: clients that send document text
// or page images to a hosted model and return its raw JSON answer.
package llm

import (
	"time"

	"github.com/jonathan/resume-intake/internal/config"
	"github.com/jonathan/resume-intake/internal/tasks"
)

// Provider represents an LLM provider
type Provider string

// Provider constants define supported LLM providers
const (
	// ProviderGemini is the Google Gemini provider
	ProviderGemini Provider = "gemini"
	// ProviderOpenAI is the OpenAI provider, including Azure and compatible endpoints
	ProviderOpenAI Provider = "openai"
)

// DefaultMaxPages caps how many page images a visual request carries
const DefaultMaxPages = 10

// ModeSettings are the sampling and deadline parameters for one extraction mode
type ModeSettings struct {
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// Config holds the oracle configuration
type Config struct {
	Provider Provider
	Model    string
	APIKey   string
	BaseURL  string
	MaxPages int
	Text     ModeSettings
	Visual   ModeSettings
}

// DefaultConfig returns the default configuration (currently Gemini)
func DefaultConfig() Config {
	return Config{
		Provider: ProviderGemini,
		Model:    "gemini-2.5-flash",
		MaxPages: DefaultMaxPages,
		Text: ModeSettings{
			Temperature: 0.05,
			MaxTokens:   12000,
			Timeout:     120 * time.Second,
		},
		Visual: ModeSettings{
			Temperature: 0.01,
			MaxTokens:   16000,
			Timeout:     240 * time.Second,
		},
	}
}

// FromServiceConfig builds the oracle configuration from the service config,
// keeping the built-in sampling parameters.
func FromServiceConfig(oc config.OracleConfig) Config {
	c := DefaultConfig()
	c.Provider = Provider(oc.Provider)
	c.Model = oc.Model
	if c.Model == "" && c.Provider != ProviderOpenAI {
		c.Model = DefaultConfig().Model
	}
	c.APIKey = oc.APIKey
	c.BaseURL = oc.BaseURL
	if oc.MaxPages > 0 {
		c.MaxPages = oc.MaxPages
	}
	if oc.TextTimeout > 0 {
		c.Text.Timeout = oc.TextTimeout
	}
	if oc.VisualTimeout > 0 {
		c.Visual.Timeout = oc.VisualTimeout
	}
	return c
}

// Settings returns the parameters for mode
func (c Config) Settings(mode tasks.Strategy) ModeSettings {
	if mode == tasks.StrategyVisual {
		return c.Visual
	}
	return c.Text
}

func (c Config) maxPages() int {
	if c.MaxPages <= 0 {
		return DefaultMaxPages
	}
	return c.MaxPages
}
