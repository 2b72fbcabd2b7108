package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	domainerrors "fortuna/pkg/domain-errors"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

// writeError maps a coded error onto the response envelope. The envelope is
// {"error": <code>} plus any structured fields the error carries; messages and
// causes stay in the logs.
func writeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	code := domainerrors.CodeOf(err)
	status := domainerrors.HTTPStatus(code)

	if status >= http.StatusInternalServerError {
		log.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err.Error(),
		)
	}

	body := map[string]any{"error": string(code)}
	for k, v := range domainerrors.FieldsOf(err) {
		body[k] = v
	}
	writeJSON(w, status, body)
}
