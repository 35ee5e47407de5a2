package ai

import (
	"fmt"
	"strings"
)

// Built-in provider names.
const (
	ProviderChatGPT  = "ChatGPT"
	ProviderGemini   = "Gemini"
	ProviderClaude   = "Claude"
	ProviderDeepSeek = "DeepSeek"
)

// Registry maps provider names to adapters. It is built once at startup and
// read-only afterwards, so it is safe for concurrent use.
type Registry struct {
	providers map[string]Provider
	names     []string
}

// NewRegistry registers providers in order. Names must be non-empty and unique.
func NewRegistry(providers ...Provider) (*Registry, error) {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		if p == nil {
			continue
		}
		name := strings.TrimSpace(p.Name())
		if name == "" {
			return nil, fmt.Errorf("provider name required")
		}
		if _, exists := r.providers[name]; exists {
			return nil, fmt.Errorf("duplicate provider %q", name)
		}
		r.providers[name] = p
		r.names = append(r.names, name)
	}
	return r, nil
}

// Lookup resolves a provider by exact name.
func (r *Registry) Lookup(name string) (Provider, bool) {
	if r == nil {
		return nil, false
	}
	p, ok := r.providers[name]
	return p, ok
}

// Names returns registered provider names in registration order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}
