// Package api exposes the RAG operations over HTTP and as MCP tools.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/ragdesk/internal/chat"
	"github.com/kalambet/ragdesk/internal/errs"
	"github.com/kalambet/ragdesk/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

const welcomeMessage = "Welcome to the RAG API! Use /rag/ingest to upload documents or /rag/chat to start chatting."

// Ingester builds a user's vector index from raw texts.
type Ingester interface {
	Ingest(ctx context.Context, userID string, texts []string) (string, error)
}

// JobQueue stores asynchronous ingest jobs.
type JobQueue interface {
	EnqueueJob(ctx context.Context, job storage.Job) error
	GetJob(ctx context.Context, id string) (storage.Job, error)
}

// ChatService runs chat turns and creates sessions.
type ChatService interface {
	NewSession(ctx context.Context, userID string) (string, error)
	Turn(ctx context.Context, userID, sessionID, question string) chat.TurnResult
}

// HistoryReader reads sessions and their stored messages.
type HistoryReader interface {
	GetMessages(ctx context.Context, sessionID string) ([]storage.Message, error)
	GetRetrievedContext(ctx context.Context, sessionID string) (string, error)
	SessionExists(ctx context.Context, sessionID string) (bool, error)
	ListSessions(ctx context.Context, limit int) ([]string, error)
}

// Recommender suggests follow-up courses.
type Recommender interface {
	Recommend(ctx context.Context, course string, marks float64) ([]string, error)
}

// URLFetcher downloads and extracts a remote document.
type URLFetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]string, error)
}

// Deps holds what the HTTP handlers need. Fetcher and Jobs are optional;
// without them url ingestion and async ingestion are rejected.
type Deps struct {
	Vectors Ingester
	Jobs    JobQueue
	Chat    ChatService
	History HistoryReader
	Advisor Recommender
	Fetcher URLFetcher
	Token   string
}

// NewHandler returns the HTTP handler for the RAG API. When deps.Token is
// set every route except /health requires it as a bearer token.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}

		r.Get("/", handleWelcome)
		r.Route("/rag", func(r chi.Router) {
			r.Get("/", handleWelcome)
			r.Post("/ingest/{user_id}", handleIngest(deps))
			r.Get("/jobs/{job_id}", handleGetJob(deps))
			r.Get("/chat/sessions", handleListSessions(deps))
			r.Post("/chat/create/{user_id}", handleCreateChat(deps))
			r.Post("/chat/{user_id}/{chat_id}", handleChatTurn(deps))
			r.Get("/chat/{chat_id}/messages", handleGetMessages(deps))
			r.Get("/chat/{chat_id}/context", handleGetContext(deps))
			r.Post("/recommendations", handleRecommendations(deps))
		})
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleWelcome(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": welcomeMessage})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// writeError picks the status and type from the error's kind.
func writeError(w http.ResponseWriter, err error) {
	httpError(w, errs.HTTPStatus(err), errs.Type(err), "%v", err)
}
