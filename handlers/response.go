package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// messageBody is the envelope of every non-list response: a human-readable
// message plus an optional payload.
type messageBody struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, log *zap.Logger, code int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Error("failed to marshal JSON response", zap.Int("status", code), zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(body); err != nil {
		log.Debug("failed to write response", zap.Error(err))
	}
}

func writeMessage(w http.ResponseWriter, log *zap.Logger, code int, message string) {
	writeJSON(w, log, code, messageBody{Message: message})
}

func writeData(w http.ResponseWriter, log *zap.Logger, message string, data any) {
	writeJSON(w, log, http.StatusOK, messageBody{Message: message, Data: data})
}
