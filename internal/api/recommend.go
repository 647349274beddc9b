package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kalambet/ragdesk/internal/errs"
)

// RecommendRequest is the body of POST /rag/recommendations.
type RecommendRequest struct {
	Course string   `json:"course"`
	Marks  *float64 `json:"marks"`
}

func handleRecommendations(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req RecommendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Marks == nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "marks is required")
			return
		}

		courses, err := deps.Advisor.Recommend(r.Context(), req.Course, *req.Marks)
		if err != nil {
			slog.Error("course recommendation failed", "course", req.Course, "error", err)
			if errs.HTTPStatus(err) == http.StatusBadRequest {
				writeError(w, err)
				return
			}
			httpError(w, http.StatusInternalServerError, errs.Type(err), "Could not generate course recommendations.")
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"recommendations": strings.Join(courses, ", "),
		})
	}
}
