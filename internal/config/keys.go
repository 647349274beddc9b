package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "RAGDESK_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "RAGDESK_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "storage.data_dir", typ: kString, env: "RAGDESK_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.vectorstore_base_path", typ: kString, env: "RAGDESK_VECTORSTORE_BASE_PATH",
		apply:   func(cfg *Config, v any) { cfg.Storage.VectorstoreBasePath = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.VectorstoreBasePath },
	},
	{
		key: "ollama.base_url", typ: kString, env: "RAGDESK_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.embed_model", typ: kString, env: "RAGDESK_OLLAMA_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.EmbedModel },
	},
	{
		key: "ollama.chat_model", typ: kString, env: "RAGDESK_OLLAMA_CHAT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.ChatModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.ChatModel },
	},
	{
		key: "generator.provider", typ: kString, env: "RAGDESK_GENERATOR_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.Generator.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.Generator.Provider },
	},
	{
		key: "generator.base_url", typ: kString, env: "RAGDESK_GENERATOR_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Generator.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Generator.BaseURL },
	},
	{
		key: "generator.api_key", typ: kString, env: "RAGDESK_GENERATOR_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Generator.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Generator.APIKey },
	},
	{
		key: "generator.model", typ: kString, env: "RAGDESK_GENERATOR_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Generator.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Generator.Model },
	},
	{
		key: "generator.temperature", typ: kFloat, env: "RAGDESK_GENERATOR_TEMPERATURE",
		apply:   func(cfg *Config, v any) { cfg.Generator.Temperature = v.(float64) },
		extract: func(cfg Config) any { return cfg.Generator.Temperature },
	},
	{
		key: "generator.max_tokens", typ: kInt, env: "RAGDESK_GENERATOR_MAX_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.Generator.MaxTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.Generator.MaxTokens },
	},
	{
		key: "rag.top_k", typ: kInt, env: "RAGDESK_RAG_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.RAG.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.RAG.TopK },
	},
	{
		key: "rag.summarize_threshold", typ: kInt, env: "RAGDESK_RAG_SUMMARIZE_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.RAG.SummarizeThreshold = v.(int) },
		extract: func(cfg Config) any { return cfg.RAG.SummarizeThreshold },
	},
	{
		key: "ingest.chunk_size", typ: kInt, env: "RAGDESK_INGEST_CHUNK_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Ingest.ChunkSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Ingest.ChunkSize },
	},
	{
		key: "ingest.chunk_overlap", typ: kInt, env: "RAGDESK_INGEST_CHUNK_OVERLAP",
		apply:   func(cfg *Config, v any) { cfg.Ingest.ChunkOverlap = v.(int) },
		extract: func(cfg Config) any { return cfg.Ingest.ChunkOverlap },
	},
	{
		key: "log.level", typ: kString, env: "RAGDESK_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func warnf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "[WARN] config: "+format+"\n", args...)
}

// parseValue converts raw text to the Go type of t.
func parseValue(t keyType, raw string) (any, error) {
	switch t {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	default:
		return raw, nil
	}
}

// applyBackend copies persisted values into cfg. Secrets are never read from
// the plain config file. A malformed integer is an error; other unparsable
// values are warned about and skipped.
func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		if s.typ == kInt {
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
			continue
		}

		raw, ok, err := b.GetString(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || (raw == "" && s.typ != kString) {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			warnf("%s=%q: %v, keeping %v", s.key, raw, err, s.extract(*cfg))
			continue
		}
		s.apply(cfg, v)
	}
	return nil
}

// applyEnvOverrides applies every non-empty RAGDESK_* variable.
func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if s.env == "" || raw == "" {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			warnf("%s=%q: %v, keeping %v", s.env, raw, err, s.extract(*cfg))
			continue
		}
		s.apply(cfg, v)
	}
}

// applySecrets fills secret keys the environment left empty.
func applySecrets(cfg *Config, secrets secretStore) {
	if secrets == nil {
		return
	}
	for _, s := range specs {
		if !s.secret || s.extract(*cfg) != "" {
			continue
		}
		if v, err := secrets.Get(s.key); err == nil {
			s.apply(cfg, v)
		}
	}
}
