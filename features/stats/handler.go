package stats

import (
	"context"
	"log/slog"
	"net/http"

	"webchat/internal/middleware"
)

type Counter interface {
	Count(ctx context.Context) (int, error)
}

type ChunkCounter interface {
	CountAll(ctx context.Context) (int, error)
}

type SessionCounter interface {
	ActiveSessions() int
}

type Handler struct {
	sites    Counter
	jobs     Counter
	chunks   ChunkCounter
	sessions SessionCounter
}

func NewHandler(sites, jobs Counter, chunks ChunkCounter, sessions SessionCounter) *Handler {
	return &Handler{sites: sites, jobs: jobs, chunks: chunks, sessions: sessions}
}

type StatsResponse struct {
	Sites          int `json:"sites"`
	Chunks         int `json:"chunks"`
	FailedJobs     int `json:"failed_jobs"`
	ActiveSessions int `json:"active_sessions"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sCount, err := h.sites.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count sites", "error", err)
		middleware.WriteError(ctx, w, "INTERNAL_ERROR", "failed to count sites", http.StatusInternalServerError)
		return
	}

	jCount, err := h.jobs.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count jobs", "error", err)
		middleware.WriteError(ctx, w, "INTERNAL_ERROR", "failed to count jobs", http.StatusInternalServerError)
		return
	}

	cCount, err := h.chunks.CountAll(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count chunks", "error", err)
		middleware.WriteError(ctx, w, "INTERNAL_ERROR", "failed to count chunks", http.StatusInternalServerError)
		return
	}

	resp := StatsResponse{
		Sites:      sCount,
		Chunks:     cCount,
		FailedJobs: jCount,
	}
	if h.sessions != nil {
		resp.ActiveSessions = h.sessions.ActiveSessions()
	}

	middleware.WriteJSON(ctx, w, http.StatusOK, map[string]interface{}{"data": resp})
}
