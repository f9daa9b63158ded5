// Package llm calls hosted Gemini models for structured JSON output and
// walks an ordered fallback chain of models when one is throttled or misbehaves.
package llm

import (
	"fmt"
	"time"
)

// Provider represents an LLM provider
type Provider string

// Provider constants define supported LLM providers
const (
	// ProviderGemini is the Gemini API, authenticated with an API key
	ProviderGemini Provider = "gemini"
	// ProviderVertex is Gemini on Vertex AI, authenticated with application default credentials
	ProviderVertex Provider = "vertex"
)

// Config holds the model configuration for the application
type Config struct {
	Provider Provider
	// Models is the fallback chain, tried in order
	Models []string
	// AttemptsPerModel bounds the rate-limit retries on one model
	AttemptsPerModel int
	// BaseDelay is added per retry on top of the provider's retry hint,
	// and slept once before moving on from a throttled model
	BaseDelay time.Duration

	// Vertex only
	ProjectID string
	Location  string
}

// DefaultModels is the fallback chain used when none is configured
var DefaultModels = []string{
	"gemini-2.5-flash",
	"gemini-2.0-flash",
	"gemini-2.5-pro",
	"gemini-2.0-flash-lite",
	"gemini-flash-latest",
	"gemini-flash-lite-latest",
}

// DefaultConfig returns the default configuration (Gemini API)
func DefaultConfig() *Config {
	return &Config{
		Provider:         ProviderGemini,
		Models:           append([]string(nil), DefaultModels...),
		AttemptsPerModel: 3,
		BaseDelay:        time.Second,
		Location:         "us-central1",
	}
}

// Validate checks the configuration before a client is built
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderGemini:
	case ProviderVertex:
		if c.ProjectID == "" || c.Location == "" {
			return fmt.Errorf("vertex provider requires a project id and location")
		}
	default:
		return fmt.Errorf("unknown llm provider %q", c.Provider)
	}
	if len(c.Models) == 0 {
		return fmt.Errorf("at least one model is required")
	}
	for i, m := range c.Models {
		if m == "" {
			return fmt.Errorf("model %d is empty", i)
		}
	}
	if c.AttemptsPerModel < 1 {
		return fmt.Errorf("attempts per model must be at least 1, got %d", c.AttemptsPerModel)
	}
	if c.BaseDelay < 0 {
		return fmt.Errorf("base delay must not be negative")
	}
	return nil
}

// WithModels returns a copy of the config using the given fallback chain
func (c *Config) WithModels(models ...string) *Config {
	newConfig := *c
	newConfig.Models = append([]string(nil), models...)
	return &newConfig
}
