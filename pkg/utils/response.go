package utils

import (
	"net/http"

	"github.com/goccy/go-json"
)

func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}

// ErrorBody is the JSON shape of every rejected request.
type ErrorBody struct {
	Error         string `json:"error"`
	Code          string `json:"code,omitempty"`
	CurrentStatus string `json:"currentStatus,omitempty"`
}

func WriteErrorBody(w http.ResponseWriter, status int, body ErrorBody) {
	WriteJSON(w, status, body)
}

// DecodeJSON decodes a request body, rejecting unknown fields.
func DecodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
