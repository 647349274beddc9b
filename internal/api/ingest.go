package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/ragdesk/internal/errs"
	"github.com/kalambet/ragdesk/internal/ingest"
	"github.com/kalambet/ragdesk/internal/storage"
	"github.com/kalambet/ragdesk/internal/vectorstore"
)

const (
	maxIngestBodySize  = 50 << 20 // 50MB
	maxMultipartMemory = 32 << 20
)

// IngestRequest is the JSON form of an ingest call.
type IngestRequest struct {
	Texts []string `json:"texts"`
	URLs  []string `json:"urls"`
}

type ingestResponse struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	UserID          string `json:"user_id"`
	VectorstorePath string `json:"vectorstore_path,omitempty"`
	JobID           string `json:"job_id,omitempty"`
}

type jobResponse struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	Result    string    `json:"result,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func handleIngest(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "user_id")
		if err := vectorstore.ValidateUserID(userID); err != nil {
			writeError(w, err)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxIngestBodySize)
		defer r.Body.Close()

		var (
			req IngestRequest
			err error
		)
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if mediaType == "multipart/form-data" {
			req.Texts, err = readUploadedFiles(r)
		} else {
			err = json.NewDecoder(r.Body).Decode(&req)
			if err != nil {
				err = errs.InvalidInput("invalid request body: %v", err)
			}
		}
		if err != nil {
			writeError(w, err)
			return
		}

		async, _ := strconv.ParseBool(r.URL.Query().Get("async"))
		if async {
			enqueueIngest(w, r, deps, userID, req)
			return
		}

		texts := req.Texts
		for _, u := range req.URLs {
			if deps.Fetcher == nil {
				writeError(w, errs.InvalidInput("url ingestion is not enabled"))
				return
			}
			fetched, err := deps.Fetcher.Fetch(r.Context(), u)
			if err != nil {
				writeError(w, err)
				return
			}
			texts = append(texts, fetched...)
		}

		path, err := deps.Vectors.Ingest(r.Context(), userID, texts)
		if err != nil {
			slog.Error("ingest failed", "user_id", userID, "error", err)
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, ingestResponse{
			Success:         true,
			Message:         "Vectorstore created successfully.",
			UserID:          userID,
			VectorstorePath: path,
		})
	}
}

// readUploadedFiles extracts text from every part named "files". The first
// unsupported file rejects the whole request.
func readUploadedFiles(r *http.Request) ([]string, error) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return nil, errs.InvalidInput("invalid multipart body: %v", err)
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		return nil, errs.InvalidInput("no files uploaded")
	}

	var texts []string
	for _, fh := range files {
		ext := strings.ToLower(filepath.Ext(fh.Filename))
		if !slices.Contains(ingest.SupportedExtensions, ext) {
			return nil, errs.InvalidInput("Unsupported file type: %s", fh.Filename)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, errs.InvalidInput("opening %s: %v", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, errs.InvalidInput("reading %s: %v", fh.Filename, err)
		}
		extracted, err := ingest.Extract(fh.Filename, data)
		if err != nil {
			return nil, err
		}
		texts = append(texts, extracted...)
	}
	return texts, nil
}

func enqueueIngest(w http.ResponseWriter, r *http.Request, deps Deps, userID string, req IngestRequest) {
	if deps.Jobs == nil {
		writeError(w, errs.InvalidInput("async ingestion is not enabled"))
		return
	}
	if len(req.Texts) == 0 && len(req.URLs) == 0 {
		writeError(w, errs.InvalidInput("No valid documents uploaded."))
		return
	}

	job, err := ingest.NewJob(ingest.Payload{UserID: userID, Texts: req.Texts, URLs: req.URLs})
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to create job: %v", err)
		return
	}
	if err := deps.Jobs.EnqueueJob(r.Context(), job); err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue job: %v", err)
		return
	}

	slog.Info("ingest job queued", "user_id", userID, "job_id", job.ID)
	writeJSON(w, http.StatusAccepted, ingestResponse{
		Success: true,
		Message: "Ingest job queued.",
		UserID:  userID,
		JobID:   job.ID,
	})
}

func handleGetJob(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Jobs == nil {
			httpError(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		id := chi.URLParam(r, "job_id")

		job, err := deps.Jobs.GetJob(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get job: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, jobResponse{
			ID:        job.ID,
			Status:    job.Status,
			Attempts:  job.Attempts,
			LastError: job.LastError,
			Result:    job.Result,
			CreatedAt: job.CreatedAt,
			UpdatedAt: job.UpdatedAt,
		})
	}
}
