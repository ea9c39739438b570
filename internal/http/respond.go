package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Joram-tec/expense-pro/internal/core"
	"github.com/Joram-tec/expense-pro/internal/ledger"
	"github.com/Joram-tec/expense-pro/internal/storage"
)

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON serializes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed encoding response", "error", err)
	}
}

// writeError maps domain errors to HTTP status codes. Unknown errors
// come back as 500 without leaking internals.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"

	var pe *ledger.PersistenceError

	switch {
	case errors.Is(err, core.ErrNotAuthenticated):
		status = http.StatusUnauthorized
		msg = err.Error()
	case errors.Is(err, core.ErrAuthFailed):
		status = http.StatusUnauthorized
		msg = err.Error()
	case errors.Is(err, core.ErrEmailInUse):
		status = http.StatusConflict
		msg = err.Error()
	case errors.Is(err, core.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
		msg = err.Error()
	case errors.Is(err, core.ErrWalletInUse):
		status = http.StatusConflict
		msg = err.Error()
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidName),
		errors.Is(err, core.ErrInvalidLimit),
		errors.Is(err, core.ErrUnknownWallet),
		errors.Is(err, core.ErrWeakPassword):
		status = http.StatusBadRequest
		msg = err.Error()
	case errors.As(err, &pe):
		status = http.StatusServiceUnavailable
		msg = "persistence unavailable"
	case errors.Is(err, storage.ErrUnavailable):
		// Transient adapter failure outside a mutation, e.g. a failed
		// hydration retry. Callers may try again.
		status = http.StatusServiceUnavailable
		msg = "storage unavailable"
	}

	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed", "error", err, "path", r.URL.Path)
	}

	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeBody parses a JSON request body into dst, rejecting unknown fields.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
