// Package rag wires a user's vector index, the session history and a
// generator into a single answer function.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kalambet/ragdesk/internal/composer"
	"github.com/kalambet/ragdesk/internal/engine"
	"github.com/kalambet/ragdesk/internal/errs"
	"github.com/kalambet/ragdesk/internal/retrieval"
	"github.com/kalambet/ragdesk/internal/storage"
)

// AnswerFunc answers question given the session history.
type AnswerFunc func(ctx context.Context, question string, history []storage.Message) (string, error)

// Generator produces a completion for a composed message list.
type Generator interface {
	Generate(ctx context.Context, messages []engine.Message) (string, error)
}

// IndexLoader loads a user's persisted index.
type IndexLoader interface {
	Load(ctx context.Context, userID string) (*retrieval.Index, error)
	Embedder() *retrieval.Embedder
}

// Builder creates answer functions bound to one user's index.
type Builder struct {
	loader    IndexLoader
	generator Generator
	composer  *composer.Composer
	topK      int
}

// NewBuilder returns a Builder retrieving topK chunks per question.
func NewBuilder(loader IndexLoader, generator Generator, comp *composer.Composer, topK int) *Builder {
	if comp == nil {
		comp = composer.New(0)
	}
	if topK <= 0 {
		topK = retrieval.DefaultTopK
	}
	return &Builder{loader: loader, generator: generator, composer: comp, topK: topK}
}

// Build loads the user's index and returns an AnswerFunc over it. A user
// without an index gets errs.ErrNotFound.
func (b *Builder) Build(ctx context.Context, userID, sessionID string) (AnswerFunc, error) {
	ix, err := b.loader.Load(ctx, userID)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, fmt.Errorf("vectorstore not found for this user, call ingest first: %w", errs.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	retriever := retrieval.NewRetriever(b.loader.Embedder(), ix, b.topK)

	return func(ctx context.Context, question string, history []storage.Message) (string, error) {
		chunks, err := retriever.Retrieve(ctx, question)
		if err != nil {
			return "", errs.Upstream("retrieving context", err)
		}

		answer, err := b.generator.Generate(ctx, b.composer.Compose(question, chunks, history))
		if err != nil {
			return "", errs.Upstream("generating answer", err)
		}
		answer = strings.TrimSpace(answer)
		if answer == "" {
			return "", fmt.Errorf("session %s: %w", sessionID, errs.ErrNoAnswer)
		}
		return answer, nil
	}, nil
}

// EngineGenerator generates with a chat model on an Engine.
type EngineGenerator struct {
	engine engine.Engine
	model  string
}

// NewEngineGenerator returns a Generator calling model on e.
func NewEngineGenerator(e engine.Engine, model string) *EngineGenerator {
	return &EngineGenerator{engine: e, model: model}
}

func (g *EngineGenerator) Generate(ctx context.Context, messages []engine.Message) (string, error) {
	return g.engine.Chat(ctx, g.model, messages)
}
