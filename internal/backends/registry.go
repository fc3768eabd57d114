package backends

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/inkwell-ai/chunkrouter/internal/config"
)

// Registry manages backend adapters by name.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

func (r *Registry) Register(name string, adapter Adapter) {
	r.adapters[name] = adapter
}

func (r *Registry) Get(name string) (Adapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}

func (r *Registry) Len() int { return len(r.adapters) }

// BuildFromConfig builds adapters for every configured backend that has a
// credential. Backends without one are skipped permanently, not failed.
func BuildFromConfig(cfg *config.BackendsConfig) *Registry {
	registry := NewRegistry()
	for name, bc := range cfg.Backends {
		if bc.APIKey == "" {
			slog.Warn("backend has no credential, excluding from routing", "backend", name)
			continue
		}

		timeout := bc.Timeout.Std()
		if timeout == 0 {
			timeout = 60 * time.Second
		}
		maxConcurrent := bc.MaxConcurrent
		if maxConcurrent == 0 {
			maxConcurrent = 8
		}
		client := &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        maxConcurrent,
				MaxIdleConnsPerHost: maxConcurrent,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		}

		var adapter Adapter
		switch bc.Provider {
		case "gemini":
			adapter = NewGeminiAdapter(name, bc, client)
		case "together":
			adapter = NewTogetherAdapter(name, bc, client)
		default:
			// groq, openrouter, and anything else OpenAI-compatible
			adapter = NewOpenAIAdapter(name, bc, client)
		}
		registry.Register(name, adapter)
	}
	return registry
}
