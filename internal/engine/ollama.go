package engine

import (
	"context"

	"github.com/kalambet/ragdesk/internal/ollama"
)

// OllamaEngine serves chat and embeddings from a local Ollama server.
type OllamaEngine struct {
	client *ollama.Client
}

// NewOllamaEngine returns an engine for the server at baseURL. MaxTokens maps
// to Ollama's num_predict.
func NewOllamaEngine(baseURL string, opts Options) *OllamaEngine {
	return &OllamaEngine{
		client: ollama.New(baseURL).WithOptions(ollama.Options{
			Temperature: opts.Temperature,
			NumPredict:  opts.MaxTokens,
		}),
	}
}

func (e *OllamaEngine) Chat(ctx context.Context, model string, messages []Message) (string, error) {
	wire := make([]ollama.Message, 0, len(messages))
	for _, m := range messages {
		wire = append(wire, ollama.Message(m))
	}
	return e.client.Chat(ctx, model, wire)
}

func (e *OllamaEngine) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	return e.client.Embed(ctx, model, text)
}

func (e *OllamaEngine) EmbedBatch(ctx context.Context, model string, texts []string) ([][]float32, error) {
	return e.client.EmbedBatch(ctx, model, texts)
}

func (e *OllamaEngine) IsRunning(ctx context.Context) bool { return e.client.IsRunning(ctx) }

func (e *OllamaEngine) ListModels(ctx context.Context) ([]string, error) {
	return e.client.ListModels(ctx)
}

func (e *OllamaEngine) HasModel(ctx context.Context, name string) bool {
	return e.client.HasModel(ctx, name)
}

func (e *OllamaEngine) PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error {
	if onProgress == nil {
		return e.client.PullModel(ctx, name, nil)
	}
	return e.client.PullModel(ctx, name, func(p ollama.PullProgress) {
		onProgress(PullProgress{Status: p.Status, Total: p.Total, Completed: p.Completed})
	})
}
