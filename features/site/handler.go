package site

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"webchat/internal/apperr"
	"webchat/internal/middleware"
)

type Handler struct {
	service *Service
	timeout time.Duration
}

func NewHandler(service *Service, ingestTimeout time.Duration) *Handler {
	return &Handler{service: service, timeout: ingestTimeout}
}

type ingestRequest struct {
	URL   string `json:"url"`
	Async bool   `json:"async"`
}

type ingestResponse struct {
	Status         string `json:"status"`
	URL            string `json:"url"`
	CollectionName string `json:"collection_name,omitempty"`
	NumChunks      int    `json:"num_chunks"`
	SiteID         string `json:"site_id,omitempty"`
}

func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if req.Async {
		rec, err := h.service.Enqueue(ctx, req.URL)
		if err != nil {
			h.writeIngestError(ctx, w, req.URL, err)
			return
		}
		middleware.WriteJSON(ctx, w, http.StatusAccepted, ingestResponse{Status: StatusQueued, URL: rec.URL, SiteID: rec.ID})
		return
	}

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	res, err := h.service.Ingest(ctx, req.URL)
	if err != nil {
		h.writeIngestError(ctx, w, req.URL, err)
		return
	}
	middleware.WriteJSON(ctx, w, http.StatusOK, ingestResponse{
		Status:         "ok",
		URL:            res.URL,
		CollectionName: res.CollectionName,
		NumChunks:      res.NumChunks,
	})
}

func (h *Handler) writeIngestError(ctx context.Context, w http.ResponseWriter, url string, err error) {
	if errors.Is(err, apperr.ErrInvalidInput) {
		slog.WarnContext(ctx, "ingest rejected", "url", url, "error", err)
		middleware.WriteError(ctx, w, "UNPROCESSABLE", err.Error(), http.StatusUnprocessableEntity)
		return
	}
	slog.ErrorContext(ctx, "ingest failed", "url", url, "error", err)
	middleware.WriteError(ctx, w, "INGESTION_FAILED", "Ingestion failed: "+err.Error(), http.StatusInternalServerError)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	sites, err := h.service.List(r.Context())
	if err != nil {
		middleware.WriteError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	if sites == nil {
		sites = []Site{}
	}
	middleware.WriteJSON(r.Context(), w, http.StatusOK, map[string]interface{}{
		"data": sites,
		"meta": map[string]int{"count": len(sites)},
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeLookupError(r.Context(), w, err)
		return
	}
	middleware.WriteJSON(r.Context(), w, http.StatusOK, map[string]interface{}{"data": s})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeLookupError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) Resync(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.service.Resync(r.Context(), id); err != nil {
		h.writeLookupError(r.Context(), w, err)
		return
	}
	middleware.WriteJSON(r.Context(), w, http.StatusAccepted, map[string]interface{}{"data": map[string]string{"id": id, "status": StatusQueued}})
}

func (h *Handler) writeLookupError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, sql.ErrNoRows) {
		middleware.WriteError(ctx, w, "NOT_FOUND", "Site not found", http.StatusNotFound)
		return
	}
	middleware.WriteError(ctx, w, "INTERNAL_ERROR", err.Error(), apperr.HTTPStatus(err))
}
