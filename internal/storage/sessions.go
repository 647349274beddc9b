package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// --- Chat sessions ---

// CreateSession inserts an empty session if none exists with this id.
// An existing session and its messages are left untouched.
func (s *Store) CreateSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (session_id, created_at) VALUES (?, ?)
		ON CONFLICT(session_id) DO NOTHING`,
		sessionID, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("creating session %s: %w", sessionID, err)
	}
	return nil
}

// SessionExists reports whether a session row exists.
func (s *Store) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_sessions WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking session %s: %w", sessionID, err)
	}
	return n > 0, nil
}

// GetMessages returns the session's messages in insertion order.
// An unknown session yields an empty slice.
func (s *Store) GetMessages(ctx context.Context, sessionID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, created_at FROM chat_messages
		WHERE session_id = ? ORDER BY id ASC`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying messages for %s: %w", sessionID, err)
	}
	defer rows.Close()

	msgs := []Message{}
	for rows.Next() {
		var m Message
		var createdAt string
		if err := rows.Scan(&m.Role, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		t, err := parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		m.Timestamp = t
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// AppendMessage adds a message to the end of an existing session and returns
// the stored copy. When the session does not exist nothing is written and ok
// is false.
//
// The timestamp never goes backwards within a session: if the clock reads
// earlier than the last stored message, the last timestamp is reused.
func (s *Store) AppendMessage(ctx context.Context, sessionID, role, content string) (msg Message, ok bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, false, fmt.Errorf("beginning append transaction: %w", err)
	}
	defer tx.Rollback()

	now, err := nextTimestamp(ctx, tx, sessionID)
	if err != nil {
		return Message{}, false, err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO chat_messages (session_id, role, content, created_at)
		SELECT ?, ?, ?, ? WHERE EXISTS (SELECT 1 FROM chat_sessions WHERE session_id = ?)`,
		sessionID, role, content, formatTime(now), sessionID,
	)
	if err != nil {
		return Message{}, false, fmt.Errorf("appending message to %s: %w", sessionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Message{}, false, err
	}
	if n == 0 {
		return Message{}, false, nil
	}

	if err := tx.Commit(); err != nil {
		return Message{}, false, fmt.Errorf("committing append: %w", err)
	}
	return Message{Role: role, Content: content, Timestamp: now}, true, nil
}

// ReplaceMessages atomically swaps the session's entire log for msgs.
// Returns ErrNotFound if the session does not exist.
func (s *Store) ReplaceMessages(ctx context.Context, sessionID string, msgs []Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning replace transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_sessions WHERE session_id = ?`, sessionID).Scan(&exists); err != nil {
		return fmt.Errorf("checking session %s: %w", sessionID, err)
	}
	if exists == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chat_messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("clearing messages for %s: %w", sessionID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chat_messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	for _, m := range msgs {
		ts := m.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, sessionID, m.Role, m.Content, formatTime(ts)); err != nil {
			return fmt.Errorf("inserting message: %w", err)
		}
	}

	return tx.Commit()
}

// ListSessions returns session ids ordered by creation time, newest first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id FROM chat_sessions ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nextTimestamp(ctx context.Context, tx *sql.Tx, sessionID string) (time.Time, error) {
	now := time.Now().UTC()

	var last sql.NullString
	err := tx.QueryRowContext(ctx,
		`SELECT MAX(created_at) FROM chat_messages WHERE session_id = ?`, sessionID,
	).Scan(&last)
	if err != nil {
		return time.Time{}, fmt.Errorf("reading last timestamp: %w", err)
	}
	if !last.Valid {
		return now, nil
	}
	lastT, err := parseTime(last.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing last timestamp: %w", err)
	}
	if now.Before(lastT) {
		return lastT, nil
	}
	return now, nil
}
