package history

import (
	"context"

	"github.com/kalambet/ragdesk/internal/engine"
)

const summarizePrompt = "Summarize the following conversation into a concise summary:"

// LLMSummarizer asks a chat model for the summary.
type LLMSummarizer struct {
	engine engine.Engine
	model  string
}

// NewLLMSummarizer returns a Summarizer backed by model on e.
func NewLLMSummarizer(e engine.Engine, model string) *LLMSummarizer {
	return &LLMSummarizer{engine: e, model: model}
}

func (s *LLMSummarizer) Summarize(ctx context.Context, conversation string) (string, error) {
	return s.engine.Chat(ctx, s.model, []engine.Message{
		{Role: engine.RoleSystem, Content: summarizePrompt},
		{Role: engine.RoleUser, Content: conversation},
	})
}
