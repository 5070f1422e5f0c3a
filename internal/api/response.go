package api

import (
	"encoding/json"
	"net/http"
)

// errorBody is the JSON shape of every error response: the HTTP code, a
// stable errno where the failing subsystem defines one, and a
// human-readable message. Validation failures add structured params.
type errorBody struct {
	Code    int            `json:"code"`
	ErrNo   int            `json:"errno,omitempty"`
	Message string         `json:"message"`
	Params  map[string]any `json:"params,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func writeError(w http.ResponseWriter, status, errno int, message string) {
	writeJSON(w, status, &errorBody{Code: status, ErrNo: errno, Message: message})
}
