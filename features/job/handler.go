package job

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"

	"webchat/internal/apperr"
	"webchat/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

// List returns failed ingest jobs, newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobs, err := h.service.List(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list failed jobs", "error", err)
		middleware.WriteError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	if jobs == nil {
		jobs = []Job{}
	}

	middleware.WriteJSON(ctx, w, http.StatusOK, map[string]interface{}{
		"data": jobs,
		"meta": map[string]int{"count": len(jobs)},
	})
}

// Retry requeues the job's ingest task. The record is removed once the task is published.
func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	err := h.service.Retry(ctx, id)
	switch {
	case err == nil:
		slog.InfoContext(ctx, "failed job requeued", "id", id)
		middleware.WriteJSON(ctx, w, http.StatusOK, map[string]interface{}{"data": map[string]string{"id": id, "status": "requeued"}})
	case errors.Is(err, sql.ErrNoRows):
		middleware.WriteError(ctx, w, "NOT_FOUND", "Job not found", http.StatusNotFound)
	case errors.Is(err, apperr.ErrInvalidInput):
		middleware.WriteError(ctx, w, "INVALID_PAYLOAD", err.Error(), http.StatusUnprocessableEntity)
	default:
		slog.ErrorContext(ctx, "failed to requeue job", "id", id, "error", err)
		middleware.WriteError(ctx, w, "INTERNAL_ERROR", err.Error(), apperr.HTTPStatus(err))
	}
}
