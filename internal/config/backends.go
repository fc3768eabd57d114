package config

// BackendsConfig is the static backend inventory loaded at startup. The set
// is fixed for the life of the process; a backend with an empty API key is
// excluded from routing entirely (not an error).
type BackendsConfig struct {
	Backends map[string]BackendConfig `yaml:"backends"`
}

type BackendConfig struct {
	// Provider family: "gemini", "groq", "together", "openrouter", or any
	// OpenAI-compatible endpoint.
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`

	// Priority ranks backends, lower = preferred.
	Priority int `yaml:"priority"`

	// MinDelay is the mandatory pause before each call to this backend,
	// approximating its per-minute request allowance.
	MinDelay Duration `yaml:"min_delay"`

	// ScriptsCapable marks backends that handle Devanagari/Arabic/Bengali
	// reliably; they form the primary routing tier.
	ScriptsCapable bool `yaml:"scripts_capable"`

	// FastInference selects the shorter rate-limit cooldown family.
	FastInference bool `yaml:"fast_inference"`

	// HighCapacity marks the secondary tier preferred for complex content
	// when no primary-tier backend is available.
	HighCapacity bool `yaml:"high_capacity"`

	Timeout       Duration `yaml:"timeout"`
	MaxConcurrent int      `yaml:"max_concurrent"`
}
