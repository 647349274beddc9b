package engine

import "fmt"

// Provider names accepted by New.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Config selects and configures a backend.
type Config struct {
	Provider      string
	OllamaBaseURL string
	APIKey        string
	BaseURL       string
	Options       Options
}

// New returns the Engine for cfg.Provider. An empty provider means Ollama.
func New(cfg Config) (Engine, error) {
	switch cfg.Provider {
	case "", ProviderOllama:
		return NewOllamaEngine(cfg.OllamaBaseURL, cfg.Options), nil
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("provider %q requires an API key", cfg.Provider)
		}
		return NewOpenAIEngine(cfg.APIKey, cfg.BaseURL, cfg.Options), nil
	default:
		return nil, fmt.Errorf("unknown engine provider %q", cfg.Provider)
	}
}
