// Package vectorstore owns the lifecycle of per-user vector indexes: where
// they live on disk, how they are built from raw texts, and the metadata
// record that points at them.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/kalambet/ragdesk/internal/errs"
	"github.com/kalambet/ragdesk/internal/retrieval"
	"github.com/kalambet/ragdesk/internal/storage"
)

// IndexDir is the bundle directory name inside a user's storage location.
const IndexDir = "vector_index"

// ErrEmbedModelMismatch is returned when a bundle was built with a different
// embedding model than the one the manager is configured with.
var ErrEmbedModelMismatch = errors.New("vector index was built with a different embedding model")

// MetadataStore records where each user's index lives.
type MetadataStore interface {
	UpsertVectorstoreMetadata(ctx context.Context, userID, path string) error
	GetVectorstoreMetadata(ctx context.Context, userID string) (storage.VectorstoreMetadata, error)
}

// Splitter cuts a document into chunks.
type Splitter interface {
	Split(text string) []string
}

// Manager resolves, builds, persists and loads per-user indexes.
type Manager struct {
	base     string
	embedder *retrieval.Embedder
	meta     MetadataStore
	splitter Splitter
	logger   *slog.Logger
}

// NewManager returns a Manager rooted at base.
func NewManager(base string, embedder *retrieval.Embedder, meta MetadataStore, splitter Splitter) *Manager {
	return &Manager{
		base:     base,
		embedder: embedder,
		meta:     meta,
		splitter: splitter,
		logger:   slog.Default(),
	}
}

// Embedder returns the embedder used for builds and queries.
func (m *Manager) Embedder() *retrieval.Embedder { return m.embedder }

// ResolveStorageLocation returns the user's directory under the base path,
// creating it if needed. The same user id always maps to the same path.
func (m *Manager) ResolveStorageLocation(userID string) (string, error) {
	if err := ValidateUserID(userID); err != nil {
		return "", err
	}
	dir := filepath.Join(m.base, userID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating storage location: %w", err)
	}
	return dir, nil
}

// ValidateUserID rejects ids that cannot name a directory under the base
// path. It fails with errs.ErrInvalidInput.
func ValidateUserID(userID string) error {
	switch {
	case strings.TrimSpace(userID) == "":
		return errs.InvalidInput("user id is empty")
	case userID == "." || userID == "..":
		return errs.InvalidInput("user id %q is reserved", userID)
	case strings.ContainsAny(userID, `/\`) || strings.ContainsRune(userID, os.PathSeparator):
		return errs.InvalidInput("user id %q contains a path separator", userID)
	case strings.ContainsRune(userID, 0):
		return errs.InvalidInput("user id contains a NUL byte")
	}
	return nil
}

// BuildIndex embeds chunks into a fresh index.
func (m *Manager) BuildIndex(ctx context.Context, chunks []string) (*retrieval.Index, error) {
	if len(chunks) == 0 {
		return nil, errs.InvalidInput("no chunks to index")
	}
	ix, err := retrieval.Build(ctx, m.embedder, chunks)
	if err != nil {
		return nil, errs.Upstream("building index", err)
	}
	return ix, nil
}

// Persist writes ix to the user's bundle directory, replacing any previous
// index, and returns that directory.
func (m *Manager) Persist(ctx context.Context, ix *retrieval.Index, userID string) (string, error) {
	loc, err := m.ResolveStorageLocation(userID)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(loc, IndexDir)
	if err := retrieval.WriteBundle(ctx, dir, ix); err != nil {
		return "", fmt.Errorf("persisting index for %s: %w", userID, err)
	}
	return dir, nil
}

// Load reads the user's persisted index from the location in its metadata
// record, or from the default bundle directory when no record exists. A
// user who never ingested gets errs.ErrNotFound.
func (m *Manager) Load(ctx context.Context, userID string) (*retrieval.Index, error) {
	dir, err := m.indexDir(ctx, userID)
	if err != nil {
		return nil, err
	}
	ix, err := retrieval.ReadBundle(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("loading index for %s: %w", userID, err)
	}
	if want := m.embedder.Model(); ix.EmbedModel() != want {
		return nil, fmt.Errorf("%w: index has %q, configured %q", ErrEmbedModelMismatch, ix.EmbedModel(), want)
	}
	return ix, nil
}

func (m *Manager) indexDir(ctx context.Context, userID string) (string, error) {
	if err := ValidateUserID(userID); err != nil {
		return "", err
	}
	md, err := m.meta.GetVectorstoreMetadata(ctx, userID)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return filepath.Join(m.base, userID, IndexDir), nil
	case err != nil:
		return "", errs.Upstream("reading vectorstore metadata", err)
	}
	return md.VectorstorePath, nil
}

// RecordMetadata upserts the user's index location.
func (m *Manager) RecordMetadata(ctx context.Context, userID, path string) error {
	if err := m.meta.UpsertVectorstoreMetadata(ctx, userID, path); err != nil {
		return fmt.Errorf("recording vectorstore metadata: %w", err)
	}
	return nil
}

// Ingest joins the non-empty texts in order, splits them into chunks, builds
// and persists a new index, and records its location. Input with nothing to
// index fails with errs.ErrInvalidInput before anything is written.
func (m *Manager) Ingest(ctx context.Context, userID string, texts []string) (string, error) {
	if err := ValidateUserID(userID); err != nil {
		return "", err
	}

	kept := make([]string, 0, len(texts))
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		return "", errs.InvalidInput("no valid documents uploaded")
	}

	chunks := m.splitter.Split(strings.Join(kept, "\n\n"))
	if len(chunks) == 0 {
		return "", errs.InvalidInput("documents produced no indexable text")
	}

	ix, err := m.BuildIndex(ctx, chunks)
	if err != nil {
		return "", err
	}
	path, err := m.Persist(ctx, ix, userID)
	if err != nil {
		return "", err
	}
	if err := m.RecordMetadata(ctx, userID, path); err != nil {
		return "", err
	}

	m.logger.Info("vectorstore built", "user_id", userID, "chunks", ix.Len(), "path", path)
	return path, nil
}
