package middleware

import (
	"encoding/json"
	"net/http"
)

// errorBody mirrors the API failure shape so middleware rejections look like
// handler errors to clients.
type errorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: message, Code: code, Details: details})
}
