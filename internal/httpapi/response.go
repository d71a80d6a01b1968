package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/ideacrew/gluedb-sub000/internal/engine"
)

type SuccessResponse struct {
	Status string `json:"status"`
	Data   any    `json:"data"`
}

type ErrorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	// Report covers the chunks handled before a batch failed.
	Report *engine.Report `json:"report,omitempty"`
}

type MarkersResponse struct {
	HbxEnrollmentID string           `json:"hbx_enrollment_id"`
	Markers         []MarkerResponse `json:"markers"`
}

type MarkerResponse struct {
	ActionURI   string `json:"action_uri"`
	ContentHash string `json:"content_hash"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, SuccessResponse{Status: "success", Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Status: "error", Code: code, Message: message})
}
