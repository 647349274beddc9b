package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Ollama    OllamaConfig
	Generator GeneratorConfig
	RAG       RAGConfig
	Ingest    IngestConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type StorageConfig struct {
	DataDir             string
	VectorstoreBasePath string
}

type OllamaConfig struct {
	BaseURL    string
	EmbedModel string
	ChatModel  string
}

// GeneratorConfig selects the chat backend that answers questions.
// Provider is "ollama" or "openai"; the latter talks to any
// OpenAI-compatible endpoint.
type GeneratorConfig struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
}

type RAGConfig struct {
	TopK               int
	SummarizeThreshold int
}

type IngestConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 8000,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			EmbedModel: "nomic-embed-text",
			ChatModel:  "llama3.2",
		},
		Generator: GeneratorConfig{
			Provider:    "ollama",
			BaseURL:     "https://api.groq.com/openai/v1",
			Model:       "meta-llama/llama-4-scout-17b-16e-instruct",
			Temperature: 0,
			MaxTokens:   1024,
		},
		RAG: RAGConfig{
			TopK:               5,
			SummarizeThreshold: 10,
		},
		Ingest: IngestConfig{
			ChunkSize:    512,
			ChunkOverlap: 100,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON config file, RAGDESK_* environment
// variables and the secrets file, in that order of increasing precedence for
// plain keys. Secrets come from the environment first and the secrets file
// second; they are never read from the config file.
func Load() (Config, error) {
	return loadWith(newFileBackend(ConfigFilePath()), fileSecrets{path: SecretsFilePath()})
}

func loadWith(b ConfigBackend, secrets secretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	applySecrets(&cfg, secrets)

	if cfg.Storage.VectorstoreBasePath == "" {
		cfg.Storage.VectorstoreBasePath = filepath.Join(cfg.Storage.DataDir, "vectorstores")
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch strings.ToLower(c.Generator.Provider) {
	case "ollama":
	case "openai":
		if c.Generator.APIKey == "" {
			return fmt.Errorf("missing required config: generator API key. " +
				"Set it via environment variable RAGDESK_GENERATOR_API_KEY or %s", SecretsFilePath())
		}
	default:
		return fmt.Errorf("unknown generator provider %q (want ollama or openai)", c.Generator.Provider)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.RAG.TopK <= 0 {
		return fmt.Errorf("rag.top_k must be positive, got %d", c.RAG.TopK)
	}
	if c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("ingest.chunk_overlap (%d) must be smaller than ingest.chunk_size (%d)",
			c.Ingest.ChunkOverlap, c.Ingest.ChunkSize)
	}
	return nil
}

// LogLevel maps Log.Level onto a slog level. Unknown values mean info.
func (c Config) LogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ChatModel is the model name used with the configured generator.
func (c Config) ChatModel() string {
	if strings.EqualFold(c.Generator.Provider, "openai") {
		return c.Generator.Model
	}
	return c.Ollama.ChatModel
}
