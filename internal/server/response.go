package server

import (
	"encoding/json"
	"net/http"
	"time"
)

// healthResponse is returned from GET /.
type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// uploadImageResponse is returned from a successful POST /upload-image.
type uploadImageResponse struct {
	Message  string         `json:"message"`
	FileName string         `json:"fileName"`
	Size     int64          `json:"size"`
	Metadata map[string]any `json:"metadata"`
}

// getUploadURLRequest is the JSON body for POST /get-upload-url.
type getUploadURLRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType,omitempty"`
}

// getUploadURLResponse is returned from a successful POST /get-upload-url.
type getUploadURLResponse struct {
	UploadURL string `json:"uploadUrl"`
	FileName  string `json:"fileName"`
	PublicURL string `json:"publicUrl"`
}

// errorResponse is the only error shape the API produces.
type errorResponse struct {
	Error string `json:"error"`
}

// isoMillis matches JavaScript's Date.prototype.toISOString.
const isoMillis = "2006-01-02T15:04:05.000Z"

func timestamp(t time.Time) string {
	return t.UTC().Format(isoMillis)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
