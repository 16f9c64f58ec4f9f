package ai

import (
	"errors"
	"time"

	"github.com/mindgate/intake/internal/profile"
)

// LLMConfig represents the generative model client configuration.
type LLMConfig struct {
	Provider    string // openai, deepseek, ollama
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int           // default: 2048
	Temperature float32       // default: 0.7
	Timeout     time.Duration // per-call deadline
	MaxRetries  int           // transient failures only
}

// NewLLMConfigFromProfile creates an LLM config from the server profile.
func NewLLMConfigFromProfile(p *profile.Profile) *LLMConfig {
	cfg := &LLMConfig{
		Provider:    p.LLMProvider,
		Model:       p.LLMModel,
		APIKey:      p.LLMAPIKey,
		BaseURL:     p.LLMBaseURL,
		MaxTokens:   2048,
		Temperature: 0.7,
		Timeout:     p.LLMTimeout,
		MaxRetries:  p.LLMMaxRetries,
	}

	switch p.LLMProvider {
	case "deepseek":
		if cfg.BaseURL == "" {
			cfg.BaseURL = "https://api.deepseek.com"
		}
	case "ollama":
		if cfg.BaseURL == "" {
			cfg.BaseURL = "http://localhost:11434/v1"
		}
	}

	return cfg
}

// Validate validates the configuration.
func (c *LLMConfig) Validate() error {
	if c.Provider == "" {
		return errors.New("LLM provider is required")
	}
	if c.Model == "" {
		return errors.New("LLM model is required")
	}
	if c.Provider != "ollama" && c.APIKey == "" {
		return errors.New("LLM API key is required")
	}
	return nil
}
