package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/raaihank/lvs-console/internal/backend"
	"github.com/raaihank/lvs-console/internal/session"
)

type errorResponse struct {
	Error        string   `json:"error"`
	Mode         string   `json:"mode,omitempty"`
	MissingFiles []string `json:"missingFiles,omitempty"`
	Names        []string `json:"names,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeFailure maps an operation error onto an HTTP status
func writeFailure(w http.ResponseWriter, err error) {
	var (
		guard   *session.GuardError
		unknown *session.UnknownNamesError
		be      *backend.Error
	)

	switch {
	case errors.As(err, &guard):
		writeJSON(w, http.StatusConflict, errorResponse{Error: guard.Error(), Mode: guard.Mode})
	case errors.As(err, &unknown):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: unknown.Error(), Names: unknown.Names})
	case errors.Is(err, backend.ErrSuperseded):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &be):
		status := http.StatusBadGateway
		if be.Status >= 400 && be.Status < 500 {
			status = be.Status
		}
		writeJSON(w, status, errorResponse{Error: be.Message, MissingFiles: be.MissingFiles})
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "backend timed out")
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}
