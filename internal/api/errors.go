package api

import (
	"encoding/json"
	"net/http"

	"github.com/cohortlab/cohortd/internal/log"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the standard error envelope. The request ID is included
// so a client can correlate the failure with server logs.
func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, map[string]string{
		"error":     msg,
		"requestId": log.RequestIDFromContext(r.Context()),
	})
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="cohortd"`)
	writeError(w, r, http.StatusUnauthorized, "unauthorized")
}

func writeNotFound(w http.ResponseWriter, r *http.Request, msg string) {
	writeError(w, r, http.StatusNotFound, msg)
}
