package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/ragdesk/internal/errs"
	"github.com/kalambet/ragdesk/internal/storage"
)

type createChatResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	UserID  string `json:"user_id"`
	ChatID  string `json:"chat_id,omitempty"`
}

// ChatRequest is the body of a chat turn.
type ChatRequest struct {
	Question string `json:"question"`
}

// ChatResponse reports a chat turn. Answer and Error are null when absent.
type ChatResponse struct {
	Success bool    `json:"success"`
	Answer  *string `json:"answer"`
	Error   *string `json:"error"`
	ChatID  string  `json:"chat_id"`
	UserID  string  `json:"user_id"`
}

func handleCreateChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "user_id")

		chatID, err := deps.Chat.NewSession(r.Context(), userID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "Failed to create chat session: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, createChatResponse{
			Success: true,
			Message: "Chat session created.",
			UserID:  userID,
			ChatID:  chatID,
		})
	}
}

// handleChatTurn answers 200 once the body parses and reports failures in
// the response. The one exception is a user without an index, which is a
// 404 so clients can tell "ingest first" from an upstream outage.
func handleChatTurn(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "user_id")
		chatID := chi.URLParam(r, "chat_id")

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		slog.Info("chat request", "user_id", userID, "chat_id", chatID, "question", strings.TrimSpace(req.Question))
		res := deps.Chat.Turn(r.Context(), userID, chatID, req.Question)

		if errors.Is(res.Err, errs.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "%s", res.Error)
			return
		}

		resp := ChatResponse{Success: res.Success, ChatID: chatID, UserID: userID}
		if res.Success {
			resp.Answer = &res.Answer
		} else {
			resp.Error = &res.Error
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleGetMessages(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chatID := chi.URLParam(r, "chat_id")

		msgs, err := deps.History.GetMessages(r.Context(), chatID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get messages: %v", err)
			return
		}
		if msgs == nil {
			msgs = []storage.Message{}
		}
		exists, err := deps.History.SessionExists(r.Context(), chatID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to look up session: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"chat_id":  chatID,
			"exists":   exists,
			"messages": msgs,
		})
	}
}

func handleGetContext(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chatID := chi.URLParam(r, "chat_id")

		text, err := deps.History.GetRetrievedContext(r.Context(), chatID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get context: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"chat_id": chatID,
			"context": text,
		})
	}
}

const (
	defaultSessionLimit = 50
	maxSessionLimit     = 1000
)

// handleListSessions returns the newest session ids; ?limit caps the count.
func handleListSessions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultSessionLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 || n > maxSessionLimit {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "limit must be between 1 and %d", maxSessionLimit)
				return
			}
			limit = n
		}

		ids, err := deps.History.ListSessions(r.Context(), limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sessions": ids})
	}
}
