package http

import (
	"encoding/json"
	"net/http"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"status": "error", "message": msg})
}

// Scanner screens show this message verbatim, so rejections are 200s
// with an error status rather than transport-level failures.
func respondScanError(w http.ResponseWriter, msg string) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "error", "message": msg})
}
