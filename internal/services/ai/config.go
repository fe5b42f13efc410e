// File: internal/services/ai/config.go
package ai

import (
	"fmt"
	"time"
)

type Config struct {
	APIKey  string
	BaseURL string
	Model   string

	Timeout time.Duration

	// Model Parameters
	Temperature float32
	TopP        float32
}

func (c *Config) Validate() error {
	if c.APIKey == "" {
		return NewConfigError("OPENAI_API_KEY is required")
	}
	if c.Model == "" {
		return NewConfigError("OPENAI_MODEL is required")
	}
	if c.Timeout <= 0 {
		return NewConfigError(fmt.Sprintf("timeout must be positive, got %s", c.Timeout))
	}
	return nil
}

func DefaultConfig() *Config {
	return &Config{
		Model:       "gpt-4o-mini",
		Timeout:     2 * time.Minute,
		Temperature: 0.2,
		TopP:        0.9,
	}
}
