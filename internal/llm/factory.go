package llm

import (
	"errors"
	"fmt"

	"github.com/Turnstyle/ria-hunter-sub007/internal/config"
	"github.com/Turnstyle/ria-hunter-sub007/internal/observability"
)

// NewFromConfig builds the configured provider wrapped with retries.
// It returns (nil, nil) when generation is disabled or uncredentialed: callers
// treat a nil provider as "not configured" and fall back deterministically.
func NewFromConfig(cfg config.GenerationConfig, logger *observability.Logger) (Provider, error) {
	var (
		p   Provider
		err error
	)
	switch cfg.Provider {
	case "none", "":
		return nil, nil
	case "openai":
		p, err = NewOpenAIProvider(OpenAIConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
	case "anthropic":
		p, err = NewAnthropicProvider(AnthropicConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
	if errors.Is(err, ErrNotConfigured) {
		logger.Warn().Str("provider", cfg.Provider).Msg("Generation provider has no credentials, answers will use structured fallback")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	retry := DefaultRetryConfig()
	retry.MaxRetries = cfg.MaxRetries
	return WithRetry(p, retry, logger), nil
}
