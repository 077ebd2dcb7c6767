package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorBody is the envelope every handler uses for failures.
type ErrorBody struct {
	Error         ErrorDetail `json:"error"`
	CorrelationID string      `json:"correlationId"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func WriteJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func WriteError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	WriteJSON(ctx, w, status, ErrorBody{
		Error:         ErrorDetail{Code: code, Message: message},
		CorrelationID: GetCorrelationID(ctx),
	})
}
