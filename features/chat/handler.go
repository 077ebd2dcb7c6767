package chat

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"webchat/internal/apperr"
	"webchat/internal/middleware"
	"webchat/internal/retrieval"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type chatRequest struct {
	URL     string `json:"url"`
	Message string `json:"message"`
}

type chatResponse struct {
	Response string `json:"response"`
	URL      string `json:"url"`
}

type retrieveRequest struct {
	URL   string `json:"url"`
	Query string `json:"query"`
	K     int    `json:"k"`
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.URL) == "" || strings.TrimSpace(req.Message) == "" {
		middleware.WriteError(ctx, w, "VALIDATION_ERROR", "url and message are required", http.StatusBadRequest)
		return
	}

	answer, err := h.service.Chat(ctx, req.URL, req.Message)
	if err != nil {
		slog.ErrorContext(ctx, "chat failed", "url", req.URL, "error", err)
		middleware.WriteError(ctx, w, "CHAT_FAILED", "Chat failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	middleware.WriteJSON(ctx, w, http.StatusOK, chatResponse{Response: answer, URL: req.URL})
}

func (h *Handler) Retrieve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	chunks, err := h.service.Retrieve(ctx, req.URL, req.Query, req.K)
	if err != nil {
		if errors.Is(err, apperr.ErrInvalidInput) {
			middleware.WriteError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
			return
		}
		slog.ErrorContext(ctx, "retrieve failed", "url", req.URL, "error", err)
		middleware.WriteError(ctx, w, "RETRIEVAL_FAILED", err.Error(), apperr.HTTPStatus(err))
		return
	}
	if chunks == nil {
		chunks = []retrieval.RetrievedChunk{}
	}
	middleware.WriteJSON(ctx, w, http.StatusOK, map[string]interface{}{"data": chunks})
}
