package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// --- Vectorstore metadata ---

// UpsertVectorstoreMetadata records where userID's index lives. One row per
// user; the last write wins.
func (s *Store) UpsertVectorstoreMetadata(ctx context.Context, userID, path string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vectorstore_metadata (user_id, vectorstore_path, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET vectorstore_path = excluded.vectorstore_path, updated_at = excluded.updated_at`,
		userID, path, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("upserting vectorstore metadata for %s: %w", userID, err)
	}
	return nil
}

func (s *Store) GetVectorstoreMetadata(ctx context.Context, userID string) (VectorstoreMetadata, error) {
	var m VectorstoreMetadata
	var updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, vectorstore_path, updated_at FROM vectorstore_metadata WHERE user_id = ?`, userID,
	).Scan(&m.UserID, &m.VectorstorePath, &updatedAt)
	if err == sql.ErrNoRows {
		return VectorstoreMetadata{}, ErrNotFound
	}
	if err != nil {
		return VectorstoreMetadata{}, err
	}
	t, err := parseTime(updatedAt)
	if err != nil {
		return VectorstoreMetadata{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	m.UpdatedAt = t
	return m, nil
}
