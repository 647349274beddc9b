package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kalambet/ragdesk/internal/openaicompat"
)

// ErrPullUnsupported is returned by engines that cannot download models.
var ErrPullUnsupported = errors.New("model pull is not supported by this engine")

// OpenAIEngine talks to a hosted OpenAI-compatible API such as Groq.
type OpenAIEngine struct {
	client *openaicompat.Client
	opts   Options
}

// NewOpenAIEngine creates an engine for the API at baseURL authenticated with apiKey.
func NewOpenAIEngine(apiKey, baseURL string, opts Options) *OpenAIEngine {
	return &OpenAIEngine{client: openaicompat.NewClient(apiKey, baseURL), opts: opts}
}

func (e *OpenAIEngine) Chat(ctx context.Context, model string, messages []Message) (string, error) {
	msgs := make([]openaicompat.Message, len(messages))
	for i, m := range messages {
		msgs[i] = openaicompat.Message{Role: m.Role, Content: m.Content}
	}
	temp := e.opts.Temperature
	return e.client.Chat(ctx, openaicompat.ChatRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: &temp,
		MaxTokens:   e.opts.MaxTokens,
	})
}

func (e *OpenAIEngine) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	vecs, err := e.client.Embed(ctx, model, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("embed: empty embedding")
	}
	return vecs[0], nil
}

func (e *OpenAIEngine) EmbedBatch(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return e.client.Embed(ctx, model, texts)
}

func (e *OpenAIEngine) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := e.client.ListModels(ctx)
	return err == nil
}

func (e *OpenAIEngine) ListModels(ctx context.Context) ([]string, error) {
	models, err := e.client.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(models))
	for i, m := range models {
		names[i] = m.ID
	}
	return names, nil
}

func (e *OpenAIEngine) HasModel(ctx context.Context, name string) bool {
	names, err := e.ListModels(ctx)
	if err != nil {
		return false
	}
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func (e *OpenAIEngine) PullModel(_ context.Context, name string, _ func(PullProgress)) error {
	return fmt.Errorf("pulling %s: %w", name, ErrPullUnsupported)
}
