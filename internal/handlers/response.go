package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/zelenivrt/storefront-backend/internal/models"
)

type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Helper functions
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, lang models.Language, key messageKey) {
	writeJSON(w, status, Response{Success: false, Message: message(lang, key)})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	return dec.Decode(dst)
}
