package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ineyio/voicepool"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps pool errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, voicepool.ErrEmptyText),
		errors.Is(err, voicepool.ErrInvalidRequest),
		errors.Is(err, voicepool.ErrInvalidCredential):
		return http.StatusBadRequest
	case errors.Is(err, voicepool.ErrCredentialNotFound):
		return http.StatusNotFound
	case errors.Is(err, voicepool.ErrDuplicateCredential):
		return http.StatusConflict
	case errors.Is(err, voicepool.ErrSplitShortfall):
		return http.StatusUnprocessableEntity
	case errors.Is(err, voicepool.ErrInsufficientQuota),
		errors.Is(err, voicepool.ErrNoCredentialAvailable),
		errors.Is(err, voicepool.ErrRetriesExhausted):
		return http.StatusServiceUnavailable
	case errors.Is(err, voicepool.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, voicepool.ErrProviderUnavailable),
		errors.Is(err, voicepool.ErrProviderError),
		errors.Is(err, voicepool.ErrSyncFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// SynthesisRequest is the JSON body of POST /api/v1/tts.
type SynthesisRequest struct {
	Text          string                   `json:"text"`
	VoiceID       string                   `json:"voice_id"`
	ModelID       string                   `json:"model_id"`
	VoiceSettings *voicepool.VoiceSettings `json:"voice_settings"`
}

// SplitRequest is the JSON body of POST /api/v1/split.
type SplitRequest struct {
	Text    string `json:"text"`
	Refresh bool   `json:"refresh"`
}

// SplitResponse lists the planned chunks. Uncovered is set when the pool
// cannot take the whole text.
type SplitResponse struct {
	Chunks     []voicepool.TextChunk `json:"chunks"`
	TotalChars int64                 `json:"total_chars"`
	Uncovered  int                   `json:"uncovered,omitempty"`
}

// QuotaResponse is the public view of the pool's capacity.
type QuotaResponse struct {
	MaxPerRequest  int64 `json:"max_per_request"`
	TotalAvailable int64 `json:"total_available"`
	ActiveCount    int   `json:"active_count"`
}

// LoginRequest is the JSON body of POST /api/v1/admin/login.
type LoginRequest struct {
	Password string `json:"password"`
}

// LoginResponse carries a new admin session token.
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// CreateCredentialRequest is the JSON body for adding a credential.
type CreateCredentialRequest struct {
	Label      string `json:"label"`
	Secret     string `json:"secret"`
	TotalQuota int64  `json:"total_quota"`
}

// UpdateCredentialRequest toggles a credential.
type UpdateCredentialRequest struct {
	Active *bool `json:"active"`
}

// Pagination describes one page of a list.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// CredentialListResponse is one page of credentials, newest first.
type CredentialListResponse struct {
	Data       []voicepool.CredentialSummary `json:"data"`
	Pagination Pagination                    `json:"pagination"`
}

// SyncAllResponse reports a bulk sync.
type SyncAllResponse struct {
	Synced int               `json:"synced"`
	Failed int               `json:"failed"`
	Quota  voicepool.Summary `json:"quota"`
}
