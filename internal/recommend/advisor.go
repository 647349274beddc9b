// Package recommend suggests follow-up courses from a completed course and
// the score achieved in it.
package recommend

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/ragdesk/internal/engine"
	"github.com/kalambet/ragdesk/internal/errs"
)

const recommendTimeout = 60 * time.Second

// Chatter is the chat completion capability the advisor needs.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []engine.Message) (string, error)
}

// Advisor asks an LLM for next-step course recommendations.
type Advisor struct {
	client Chatter
	model  string
}

// NewAdvisor creates an Advisor using the given chat client and model name.
func NewAdvisor(client Chatter, model string) *Advisor {
	return &Advisor{client: client, model: model}
}

// Recommend returns course names suggested after course with the given
// percentage score. marks must be within [0, 100].
func (a *Advisor) Recommend(ctx context.Context, course string, marks float64) ([]string, error) {
	course = strings.TrimSpace(course)
	if course == "" {
		return nil, errs.InvalidInput("course is required")
	}
	if marks < 0 || marks > 100 {
		return nil, errs.InvalidInput("marks must be between 0 and 100, got %v", marks)
	}

	ctx, cancel := context.WithTimeout(ctx, recommendTimeout)
	defer cancel()

	raw, err := a.client.Chat(ctx, a.model, BuildPrompt(course, marks))
	if err != nil {
		slog.Error("course recommendation failed", "course", course, "error", err)
		return nil, errs.Upstream("generating recommendations", err)
	}

	list := ParseList(raw)
	if len(list) == 0 {
		slog.Warn("course recommendation returned nothing usable", "course", course, "response", raw)
		return nil, fmt.Errorf("recommendations for %q: %w", course, errs.ErrNoAnswer)
	}
	return list, nil
}
