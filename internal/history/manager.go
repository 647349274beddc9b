// Package history keeps the per-session chat log: creating sessions,
// appending turns, and compacting long logs into a single summary message.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/ragdesk/internal/errs"
	"github.com/kalambet/ragdesk/internal/storage"
)

// DefaultThreshold is the message count above which a session is summarized.
const DefaultThreshold = 10

// Store is the persistence the manager needs.
type Store interface {
	CreateSession(ctx context.Context, sessionID string) error
	GetMessages(ctx context.Context, sessionID string) ([]storage.Message, error)
	AppendMessage(ctx context.Context, sessionID, role, content string) (storage.Message, bool, error)
	ReplaceMessages(ctx context.Context, sessionID string, msgs []storage.Message) error
	SessionExists(ctx context.Context, sessionID string) (bool, error)
	ListSessions(ctx context.Context, limit int) ([]string, error)
}

// Summarizer condenses a flattened conversation into a short text.
type Summarizer interface {
	Summarize(ctx context.Context, conversation string) (string, error)
}

// SummarizerFunc adapts a function to the Summarizer interface.
type SummarizerFunc func(ctx context.Context, conversation string) (string, error)

func (f SummarizerFunc) Summarize(ctx context.Context, conversation string) (string, error) {
	return f(ctx, conversation)
}

// Manager implements the chat history operations over a Store.
type Manager struct {
	store      Store
	summarizer Summarizer
	logger     *slog.Logger
}

// NewManager returns a Manager using store for persistence and summarizer
// for compaction.
func NewManager(store Store, summarizer Summarizer) *Manager {
	return &Manager{store: store, summarizer: summarizer, logger: slog.Default()}
}

// CreateSession makes sure the session exists. Existing messages are kept.
func (m *Manager) CreateSession(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return errs.InvalidInput("session id is empty")
	}
	return m.store.CreateSession(ctx, sessionID)
}

// GetMessages returns the session log in stored order. Unknown sessions
// yield an empty slice.
func (m *Manager) GetMessages(ctx context.Context, sessionID string) ([]storage.Message, error) {
	return m.store.GetMessages(ctx, sessionID)
}

// NormalizeRole maps accepted role names onto the stored roles.
func NormalizeRole(role string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case storage.RoleHuman, "user":
		return storage.RoleHuman, nil
	case storage.RoleAI, "assistant":
		return storage.RoleAI, nil
	default:
		return "", errs.InvalidInput("unknown role %q", role)
	}
}

// AddMessage appends a message with a server-assigned timestamp. The session
// must already exist; appending to an absent session stores nothing and
// only logs a warning.
func (m *Manager) AddMessage(ctx context.Context, sessionID, role, content string) error {
	r, err := NormalizeRole(role)
	if err != nil {
		return err
	}
	_, ok, err := m.store.AppendMessage(ctx, sessionID, r, content)
	if err != nil {
		return err
	}
	if !ok {
		m.logger.Warn("message dropped for missing session", "session_id", sessionID, "role", r)
	}
	return nil
}

// Flatten renders messages as "ROLE: content" lines in order.
func Flatten(msgs []storage.Message) string {
	lines := make([]string, len(msgs))
	for i, msg := range msgs {
		lines[i] = strings.ToUpper(msg.Role) + ": " + msg.Content
	}
	return strings.Join(lines, "\n")
}

// SummarizeIfNeeded compacts the session into one ai message holding a
// summary once it has more than threshold messages. It reports whether the
// log was replaced. If summarizing fails the log is left as it was.
func (m *Manager) SummarizeIfNeeded(ctx context.Context, sessionID string, threshold int) (bool, error) {
	msgs, err := m.store.GetMessages(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if len(msgs) <= threshold {
		return false, nil
	}

	summary, err := m.summarizer.Summarize(ctx, Flatten(msgs))
	if err != nil {
		return false, errs.Upstream("summarizing session", err)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return false, fmt.Errorf("summarizing session %s: %w", sessionID, errs.ErrNoAnswer)
	}

	compacted := []storage.Message{{Role: storage.RoleAI, Content: summary, Timestamp: time.Now().UTC()}}
	if err := m.store.ReplaceMessages(ctx, sessionID, compacted); err != nil {
		return false, fmt.Errorf("replacing messages for %s: %w", sessionID, err)
	}

	m.logger.Info("session summarized", "session_id", sessionID, "messages", len(msgs))
	return true, nil
}

// GetRetrievedContext returns the contents of the session's human messages
// joined by newlines.
func (m *Manager) GetRetrievedContext(ctx context.Context, sessionID string) (string, error) {
	msgs, err := m.store.GetMessages(ctx, sessionID)
	if err != nil {
		return "", err
	}
	var parts []string
	for _, msg := range msgs {
		if msg.Role == storage.RoleHuman {
			parts = append(parts, msg.Content)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// SessionExists reports whether the session was ever created. It tells an
// unknown session apart from an empty one, which GetMessages does not.
func (m *Manager) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	return m.store.SessionExists(ctx, sessionID)
}

// ListSessions returns up to limit session ids, newest first.
func (m *Manager) ListSessions(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, errs.InvalidInput("limit must be positive, got %d", limit)
	}
	ids, err := m.store.ListSessions(ctx, limit)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}
