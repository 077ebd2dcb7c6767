package settings

import (
	"encoding/json"
	"errors"
	"net/http"

	"webchat/internal/middleware"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// GetSettings returns the effective settings with API keys masked.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, err := h.svc.Get(ctx)
	if err != nil {
		middleware.WriteError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	middleware.WriteJSON(ctx, w, http.StatusOK, map[string]interface{}{"data": s.Redacted()})
}

// UpdateSettings stores the body and echoes it back masked.
// A masked key in the body keeps the stored key.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var s Settings
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		middleware.WriteError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.svc.Update(ctx, &s); err != nil {
		if errors.Is(err, ErrInvalidSettings) {
			middleware.WriteError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
			return
		}
		middleware.WriteError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	middleware.WriteJSON(ctx, w, http.StatusOK, map[string]interface{}{"data": s.Redacted()})
}

// Redacted masks API keys for display.
func (s *Settings) Redacted() *Settings {
	cp := *s
	cp.GeminiAPIKey = mask(cp.GeminiAPIKey)
	cp.RerankAPIKey = mask(cp.RerankAPIKey)
	return &cp
}

const maskPrefix = "****"

func mask(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return maskPrefix
	}
	return maskPrefix + key[len(key)-4:]
}
