// Package respond writes JSON HTTP responses.
package respond

import (
	"encoding/json"
	"net/http"

	"github.com/codex-k8s/tool-relay/internal/protocol"
)

// JSON writes payload with the given status code.
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Error writes {"error": msg} with the given status code.
func Error(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, protocol.ErrorResponse{Error: msg})
}
