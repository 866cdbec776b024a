package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/notes-bin/imghost/internal/model"
)

func respondError(w http.ResponseWriter, status int, message string) {
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "status", status, "message", message)
	}
	respondJSON(w, status, map[string]string{"error": message})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondFailure maps the domain error taxonomy onto status codes. Anything
// unrecognised becomes a bare 500 so internal paths never leak.
func respondFailure(w http.ResponseWriter, err error) {
	status, message := classify(err)
	if status == http.StatusInternalServerError {
		slog.Error("Unexpected error", "error", err)
	}
	respondError(w, status, message)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrAuthRequired):
		return http.StatusUnauthorized, "Authentication required"
	case errors.Is(err, model.ErrInvalidToken):
		return http.StatusForbidden, "Invalid token"
	case errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, "Image not found"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}
