package generator

import (
	"fmt"

	cfg "github.com/maheshrc27/postflow/configs"
)

// New returns the generator of the configured provider, or nil when it has no API key.
func New(c cfg.LLM) (Generator, error) {
	switch c.Provider {
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return nil, nil
		}
		return NewAnthropicGenerator(c.AnthropicAPIKey, c.AnthropicModel), nil
	case "openai":
		if c.OpenAIAPIKey == "" {
			return nil, nil
		}
		return NewOpenAIGenerator(c.OpenAIAPIKey, c.OpenAIModel), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", c.Provider)
	}
}
