package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kalambet/ragdesk/internal/errs"
	"github.com/kalambet/ragdesk/internal/storage"
)

// JobTypeIngest is the job type handled by Worker.
const JobTypeIngest = "ingest_documents"

// JobStore is the queue side of storage.Store used by Worker.
type JobStore interface {
	ClaimNextJob(ctx context.Context, jobType string) (*storage.Job, error)
	CompleteJob(ctx context.Context, id, result string) error
	FailJob(ctx context.Context, id, errMsg string, retry bool) error
}

// Ingester builds and persists a user's vector index from raw texts and
// returns the index location.
type Ingester interface {
	Ingest(ctx context.Context, userID string, texts []string) (string, error)
}

// URLFetcher downloads and extracts remote documents.
type URLFetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]string, error)
}

// Payload is the JSON body of an ingest_documents job.
type Payload struct {
	UserID string   `json:"user_id"`
	Texts  []string `json:"texts,omitempty"`
	URLs   []string `json:"urls,omitempty"`
}

// NewJob builds a queue entry for p with a fresh id.
func NewJob(p Payload) (storage.Job, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return storage.Job{}, fmt.Errorf("encoding payload: %w", err)
	}
	return storage.Job{
		ID:          uuid.New().String(),
		Type:        JobTypeIngest,
		PayloadJSON: string(b),
	}, nil
}

// Worker processes ingest_documents jobs from the SQLite job queue.
type Worker struct {
	store    JobStore
	ingester Ingester
	fetcher  URLFetcher
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker returns a Worker polling every pollInterval (500ms when not
// positive). fetcher may be nil when jobs never carry URLs.
func NewWorker(store JobStore, ingester Ingester, fetcher URLFetcher, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:    store,
		ingester: ingester,
		fetcher:  fetcher,
		poll:     pollInterval,
		logger:   slog.Default().With("component", "ingest-worker"),
	}
}

// Run drains the queue on every tick until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	tick := time.NewTicker(w.poll)
	defer tick.Stop()

	for {
		for ctx.Err() == nil {
			handled, err := w.RunOnce(ctx)
			if err != nil {
				w.logger.Error("processing queue", "error", err)
			}
			if !handled {
				break
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}
}

// RunOnce handles at most one due job and reports whether it found one.
// A failing job is recorded on the job row, not returned.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob(ctx, JobTypeIngest)
	if err != nil || job == nil {
		return false, err
	}
	log := w.logger.With("job_id", job.ID, "attempt", job.Attempts+1)

	path, err := w.processJob(ctx, job)
	if err == nil {
		if err := w.store.CompleteJob(ctx, job.ID, path); err != nil {
			return true, fmt.Errorf("completing job %s: %w", job.ID, err)
		}
		log.Info("ingest finished", "vectorstore_path", path)
		return true, nil
	}

	// Bad input fails the same way on every attempt.
	retry := !errors.Is(err, errs.ErrInvalidInput)
	log.Warn("ingest failed", "error", err, "retry", retry)
	if err := w.store.FailJob(ctx, job.ID, err.Error(), retry); err != nil {
		return true, fmt.Errorf("recording failure of job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) (string, error) {
	var p Payload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &p); err != nil {
		return "", errs.InvalidInput("parsing payload: %v", err)
	}

	texts := append([]string(nil), p.Texts...)
	for _, u := range p.URLs {
		if w.fetcher == nil {
			return "", errs.InvalidInput("job carries urls but no fetcher is configured")
		}
		fetched, err := w.fetcher.Fetch(ctx, u)
		if err != nil {
			return "", err
		}
		texts = append(texts, fetched...)
	}

	return w.ingester.Ingest(ctx, p.UserID, texts)
}
