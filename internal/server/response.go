package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// errorBody is the error half of the envelope.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response", slog.String("error", err.Error()))
	}
}

// respondOK writes {"data": data}.
func respondOK(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": data})
}

// respondError writes {"error": {"code", "message"}}.
func respondError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]errorBody{"error": {Code: code, Message: message}})
}
