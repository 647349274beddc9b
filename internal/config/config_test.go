package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// mockSecrets is a test double for the secret store.
type mockSecrets map[string]string

func (m mockSecrets) Get(key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", errSecretNotFound
	}
	return v, nil
}

func writeTempConfig(t *testing.T, content string) *fileBackend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return newFileBackend(path)
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(writeTempConfig(t, `{}`), mockSecrets{})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}

	if cfg.Server.Port != 8000 {
		t.Errorf("Server.Port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.Ollama.BaseURL != "http://localhost:11434" {
		t.Errorf("Ollama.BaseURL = %q", cfg.Ollama.BaseURL)
	}
	if cfg.Ollama.EmbedModel != "nomic-embed-text" {
		t.Errorf("Ollama.EmbedModel = %q", cfg.Ollama.EmbedModel)
	}
	if cfg.Generator.Provider != "ollama" {
		t.Errorf("Generator.Provider = %q", cfg.Generator.Provider)
	}
	if cfg.Generator.MaxTokens != 1024 {
		t.Errorf("Generator.MaxTokens = %d, want 1024", cfg.Generator.MaxTokens)
	}
	if cfg.RAG.TopK != 5 {
		t.Errorf("RAG.TopK = %d, want 5", cfg.RAG.TopK)
	}
	if cfg.RAG.SummarizeThreshold != 10 {
		t.Errorf("RAG.SummarizeThreshold = %d, want 10", cfg.RAG.SummarizeThreshold)
	}
	if cfg.Ingest.ChunkSize != 512 || cfg.Ingest.ChunkOverlap != 100 {
		t.Errorf("Ingest = %+v, want 512/100", cfg.Ingest)
	}
	want := filepath.Join(cfg.Storage.DataDir, "vectorstores")
	if cfg.Storage.VectorstoreBasePath != want {
		t.Errorf("VectorstoreBasePath = %q, want %q", cfg.Storage.VectorstoreBasePath, want)
	}
	if cfg.ChatModel() != "llama3.2" {
		t.Errorf("ChatModel() = %q, want llama3.2", cfg.ChatModel())
	}
}

func TestFileValues(t *testing.T) {
	clearEnv(t)

	b := writeTempConfig(t, `{
  "server.port": 9100,
  "storage.data_dir": "/tmp/ragdesk-test",
  "ollama.embed_model": "mxbai-embed-large",
  "generator.temperature": "0.3",
  "rag.top_k": "7",
  "log.level": "debug"
}`)
	cfg, err := loadWith(b, mockSecrets{})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("Server.Port = %d, want 9100", cfg.Server.Port)
	}
	if cfg.Storage.DataDir != "/tmp/ragdesk-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Storage.VectorstoreBasePath != filepath.Join("/tmp/ragdesk-test", "vectorstores") {
		t.Errorf("VectorstoreBasePath = %q", cfg.Storage.VectorstoreBasePath)
	}
	if cfg.Ollama.EmbedModel != "mxbai-embed-large" {
		t.Errorf("Ollama.EmbedModel = %q", cfg.Ollama.EmbedModel)
	}
	if cfg.Generator.Temperature != 0.3 {
		t.Errorf("Generator.Temperature = %v, want 0.3", cfg.Generator.Temperature)
	}
	if cfg.RAG.TopK != 7 {
		t.Errorf("RAG.TopK = %d, want 7", cfg.RAG.TopK)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("RAGDESK_SERVER_PORT", "9200")
	t.Setenv("RAGDESK_OLLAMA_CHAT_MODEL", "qwen2.5")

	cfg, err := loadWith(writeTempConfig(t, `{"server.port": 9100}`), mockSecrets{})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 9200 {
		t.Errorf("Server.Port = %d, want 9200", cfg.Server.Port)
	}
	if cfg.Ollama.ChatModel != "qwen2.5" {
		t.Errorf("Ollama.ChatModel = %q", cfg.Ollama.ChatModel)
	}
}

func TestEnvOverride_BadIntKeepsValue(t *testing.T) {
	clearEnv(t)
	t.Setenv("RAGDESK_RAG_TOP_K", "many")

	cfg, err := loadWith(writeTempConfig(t, `{}`), mockSecrets{})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.RAG.TopK != 5 {
		t.Errorf("RAG.TopK = %d, want default 5", cfg.RAG.TopK)
	}
}

func TestSecretsNotReadFromConfigFile(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(writeTempConfig(t, `{"server.api_token": "from-file"}`), mockSecrets{})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.APIToken != "" {
		t.Errorf("APIToken = %q, want empty", cfg.Server.APIToken)
	}
}

func TestOpenAIProvider_RequiresAPIKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("RAGDESK_GENERATOR_PROVIDER", "openai")

	_, err := loadWith(writeTempConfig(t, `{}`), mockSecrets{})
	if err == nil {
		t.Fatal("expected error for missing API key")
	}
	if !strings.Contains(err.Error(), "missing required config") {
		t.Errorf("error = %q", err.Error())
	}
}

func TestOpenAIProvider_SecretsFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("RAGDESK_GENERATOR_PROVIDER", "openai")

	cfg, err := loadWith(writeTempConfig(t, `{}`), mockSecrets{"generator.api_key": "stored-key"})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Generator.APIKey != "stored-key" {
		t.Errorf("APIKey = %q, want stored-key", cfg.Generator.APIKey)
	}
	if cfg.ChatModel() != "meta-llama/llama-4-scout-17b-16e-instruct" {
		t.Errorf("ChatModel() = %q", cfg.ChatModel())
	}
}

func TestOpenAIProvider_EnvBeatsSecrets(t *testing.T) {
	clearEnv(t)
	t.Setenv("RAGDESK_GENERATOR_PROVIDER", "openai")
	t.Setenv("RAGDESK_GENERATOR_API_KEY", "env-key")

	cfg, err := loadWith(writeTempConfig(t, `{}`), mockSecrets{"generator.api_key": "stored-key"})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Generator.APIKey != "env-key" {
		t.Errorf("APIKey = %q, want env-key", cfg.Generator.APIKey)
	}
}

func TestValidate(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name string
		file string
	}{
		{"unknown provider", `{"generator.provider": "bedrock"}`},
		{"overlap not below size", `{"ingest.chunk_size": 100, "ingest.chunk_overlap": 100}`},
		{"zero top k", `{"rag.top_k": 0}`},
		{"bad port", `{"server.port": 70000}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := loadWith(writeTempConfig(t, tt.file), mockSecrets{}); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestSetKey(t *testing.T) {
	dir := t.TempDir()
	b := newFileBackend(filepath.Join(dir, "config.json"))
	secrets := fileSecrets{path: filepath.Join(dir, "secrets.json")}

	if err := setKey(b, secrets, "rag.top_k", "8"); err != nil {
		t.Fatalf("setKey rag.top_k: %v", err)
	}
	if err := setKey(b, secrets, "generator.temperature", "0.2"); err != nil {
		t.Fatalf("setKey generator.temperature: %v", err)
	}
	if err := setKey(b, secrets, "generator.api_key", "sk-1"); err != nil {
		t.Fatalf("setKey generator.api_key: %v", err)
	}

	if err := setKey(b, secrets, "rag.top_k", "eight"); err == nil {
		t.Error("expected error for non-integer value")
	}
	if err := setKey(b, secrets, "no.such.key", "x"); err == nil {
		t.Error("expected error for unknown key")
	}

	reloaded := newFileBackend(filepath.Join(dir, "config.json"))
	if v, ok, err := reloaded.GetInt("rag.top_k"); err != nil || !ok || v != 8 {
		t.Errorf("rag.top_k = %d ok=%v err=%v, want 8", v, ok, err)
	}
	if _, ok, _ := reloaded.GetString("generator.api_key"); ok {
		t.Error("secret leaked into the config file")
	}
	if v, err := secrets.Get("generator.api_key"); err != nil || v != "sk-1" {
		t.Errorf("secret = %q err=%v, want sk-1", v, err)
	}
}

func TestShowAll_MasksSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Generator.APIKey = "sk-secret"

	for _, ki := range ShowAll(cfg) {
		if strings.Contains(ki.Value, "sk-secret") {
			t.Errorf("%s shows the raw secret", ki.Key)
		}
		if ki.Key == "generator.api_key" && !ki.Secret {
			t.Error("generator.api_key not flagged secret")
		}
	}
	if len(ValidKeys()) != len(specs) {
		t.Errorf("ValidKeys = %d, want %d", len(ValidKeys()), len(specs))
	}
}

func TestWriteJSONFile_OwnerOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "secrets.json")

	if err := writeJSONFile(path, map[string]string{"generator.api_key": "sk-1"}); err != nil {
		t.Fatalf("writeJSONFile: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("mode = %o, want 600", perm)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want only the target file", len(entries))
	}

	var got map[string]string
	if err := readJSONFile(path, &got); err != nil {
		t.Fatalf("readJSONFile: %v", err)
	}
	if got["generator.api_key"] != "sk-1" {
		t.Errorf("read back %v", got)
	}
}

func TestReadJSONFile_Missing(t *testing.T) {
	got := map[string]any{"kept": true}
	if err := readJSONFile(filepath.Join(t.TempDir(), "absent.json"), &got); err != nil {
		t.Fatalf("readJSONFile: %v", err)
	}
	if got["kept"] != true {
		t.Error("missing file must leave the target untouched")
	}
}
