// Package chat runs one question-answer turn against a session. It is the
// only place where failures are turned into a soft result instead of an
// error.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/kalambet/ragdesk/internal/errs"
	"github.com/kalambet/ragdesk/internal/history"
	"github.com/kalambet/ragdesk/internal/rag"
	"github.com/kalambet/ragdesk/internal/storage"
)

// History is the subset of history.Manager a turn uses.
type History interface {
	CreateSession(ctx context.Context, sessionID string) error
	GetMessages(ctx context.Context, sessionID string) ([]storage.Message, error)
	AddMessage(ctx context.Context, sessionID, role, content string) error
	SummarizeIfNeeded(ctx context.Context, sessionID string, threshold int) (bool, error)
}

// ChainBuilder builds the answer function for a user and session.
type ChainBuilder interface {
	Build(ctx context.Context, userID, sessionID string) (rag.AnswerFunc, error)
}

// TurnResult is the outcome of a chat turn. Failures are reported here
// rather than as an error; Err keeps the failure's kind for callers that
// classify it with errors.Is.
type TurnResult struct {
	Success bool   `json:"success"`
	Answer  string `json:"answer,omitempty"`
	Error   string `json:"error,omitempty"`
	Err     error  `json:"-"`
}

// Service orchestrates chat turns.
type Service struct {
	history   History
	chains    ChainBuilder
	threshold int
	locks     *keyedMutex
	logger    *slog.Logger
}

// NewService returns a Service that summarizes sessions longer than
// threshold messages. threshold <= 0 selects history.DefaultThreshold.
func NewService(h History, chains ChainBuilder, threshold int) *Service {
	if threshold <= 0 {
		threshold = history.DefaultThreshold
	}
	return &Service{
		history:   h,
		chains:    chains,
		threshold: threshold,
		locks:     newKeyedMutex(),
		logger:    slog.Default(),
	}
}

// NewSession creates a session with a fresh id and returns the id.
func (s *Service) NewSession(ctx context.Context, userID string) (string, error) {
	id := uuid.New().String()
	if err := s.history.CreateSession(ctx, id); err != nil {
		s.logger.Error("creating chat session", "user_id", userID, "error", err)
		return "", err
	}
	s.logger.Info("chat session created", "user_id", userID, "session_id", id)
	return id, nil
}

// Turn records question in the session, answers it from the user's index
// and records the answer. Any failure yields Success=false with the error
// text; the question stays recorded even when answering fails.
//
// Turns on the same session are serialized within this process. A turn
// still waiting for the session when ctx ends fails without touching it.
func (s *Service) Turn(ctx context.Context, userID, sessionID, question string) TurnResult {
	question = strings.TrimSpace(question)

	unlock, err := s.locks.Lock(ctx, sessionID)
	if err != nil {
		return s.fail(userID, sessionID, fmt.Errorf("waiting for session %s: %w", sessionID, err))
	}
	defer unlock()

	answer, err := s.turn(ctx, userID, sessionID, question)
	if err != nil {
		return s.fail(userID, sessionID, err)
	}
	return TurnResult{Success: true, Answer: answer}
}

func (s *Service) fail(userID, sessionID string, err error) TurnResult {
	s.logger.Error("chat turn failed", "user_id", userID, "session_id", sessionID, "error", err)
	return TurnResult{Success: false, Error: err.Error(), Err: err}
}

func (s *Service) turn(ctx context.Context, userID, sessionID, question string) (string, error) {
	if question == "" {
		return "", errs.InvalidInput("question is empty")
	}
	if err := s.history.CreateSession(ctx, sessionID); err != nil {
		return "", err
	}
	if _, err := s.history.SummarizeIfNeeded(ctx, sessionID, s.threshold); err != nil {
		return "", err
	}
	if err := s.history.AddMessage(ctx, sessionID, storage.RoleHuman, question); err != nil {
		return "", err
	}

	answer, err := s.chains.Build(ctx, userID, sessionID)
	if err != nil {
		return "", err
	}
	msgs, err := s.history.GetMessages(ctx, sessionID)
	if err != nil {
		return "", err
	}
	text, err := answer(ctx, question, msgs)
	if err != nil {
		return "", err
	}

	if err := s.history.AddMessage(ctx, sessionID, storage.RoleAI, text); err != nil {
		return "", err
	}
	return text, nil
}
