package config

import (
	"fmt"
	"strings"
	"time"

	"aihub/pkg/ai"
)

// BuildRegistry constructs the provider adapters declared in cfg, in order.
func BuildRegistry(cfg FileConfig) (*ai.Registry, error) {
	timeout, err := ParseDuration("providerTimeout", cfg.ProviderTimeout)
	if err != nil {
		return nil, err
	}
	declared := cfg.Providers
	if len(declared) == 0 {
		declared = DefaultProviders()
	}
	providers := make([]ai.Provider, 0, len(declared))
	for _, p := range declared {
		adapter, err := buildProvider(p, timeout)
		if err != nil {
			return nil, err
		}
		providers = append(providers, adapter)
	}
	return ai.NewRegistry(providers...)
}

func buildProvider(p ProviderConfig, timeout time.Duration) (ai.Provider, error) {
	switch p.Kind {
	case KindOpenAI:
		return ai.NewOpenAICompatProvider(ai.OpenAICompatConfig{
			Name:         strings.TrimSpace(p.Name),
			BaseURL:      p.BaseURL,
			Model:        p.Model,
			ValidatePath: p.ValidatePath,
			Timeout:      timeout,
		}), nil
	case KindClaude:
		if name := strings.TrimSpace(p.Name); name != ai.ProviderClaude {
			return nil, fmt.Errorf("config: claude adapter must be named %q, got %q", ai.ProviderClaude, name)
		}
		return ai.NewClaudeProvider(ai.ClaudeConfig{
			BaseURL: p.BaseURL,
			Model:   p.Model,
			Timeout: timeout,
		}), nil
	default:
		return nil, fmt.Errorf("config: provider %q has unsupported kind %q", p.Name, p.Kind)
	}
}
