package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/solarboard/solarboard/board"
	"github.com/solarboard/solarboard/database"
	"github.com/solarboard/solarboard/services"
)

var (
	errUnauthorized = errors.New("unauthorized")
	errForbidden    = errors.New("forbidden")
)

type errorResponse struct {
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]any{
		"status": "success",
		"data":   data,
	}); err != nil {
		slog.Warn("failed to write response", "err", err)
	}
}

// writeError maps err to a status code and writes the error envelope.
// Unexpected errors are logged and their message is not exposed.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := errorResponse{Status: "error", Message: err.Error()}
	var ve *board.ValidationError
	switch {
	case errors.As(err, &ve):
		resp.Code = http.StatusBadRequest
		resp.Field = ve.Field
	case errors.Is(err, board.ErrNotFound):
		resp.Code = http.StatusNotFound
	case errors.Is(err, errUnauthorized), errors.Is(err, services.ErrInvalidCredentials):
		resp.Code = http.StatusUnauthorized
	case errors.Is(err, errForbidden):
		resp.Code = http.StatusForbidden
	case errors.Is(err, database.ErrUserExists):
		resp.Code = http.StatusConflict
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		resp.Code = http.StatusInternalServerError
		resp.Message = "internal server error"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Code)
	json.NewEncoder(w).Encode(resp)
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &board.ValidationError{Message: "invalid request format"}
	}
	return nil
}
