package elevenlabs

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ineyio/voicepool"
)

// quotaExceeded is the detail status ElevenLabs reports for an exhausted account.
const quotaExceeded = "quota_exceeded"

// APIError is a non-2xx ElevenLabs response.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("%v: elevenlabs %d %s: %s", e.Err, e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("%v: elevenlabs %d: %s", e.Err, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// mapHTTPError wraps a non-2xx response. A quota_exceeded detail wins over
// the status code.
func mapHTTPError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{StatusCode: resp.StatusCode}
	apiErr.Status, apiErr.Message = parseDetail(body)

	switch {
	case apiErr.Status == quotaExceeded || strings.Contains(apiErr.Message, quotaExceeded):
		apiErr.Err = voicepool.ErrQuotaExceeded
	case resp.StatusCode == http.StatusUnauthorized:
		apiErr.Err = voicepool.ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		apiErr.Err = voicepool.ErrRateLimited
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusUnprocessableEntity:
		apiErr.Err = voicepool.ErrInvalidRequest
	case resp.StatusCode >= 500:
		apiErr.Err = voicepool.ErrProviderUnavailable
	default:
		apiErr.Err = voicepool.ErrProviderError
	}
	return apiErr
}

// parseDetail extracts status and message from an ElevenLabs error body.
// detail is an object, a plain string, or a list of validation errors.
func parseDetail(body []byte) (status, message string) {
	detail := gjson.GetBytes(body, "detail")
	switch {
	case detail.IsObject():
		return detail.Get("status").String(), detail.Get("message").String()
	case detail.IsArray():
		return "", detail.Get("0.msg").String()
	case detail.Exists():
		return "", detail.String()
	}
	if len(body) > 0 && !gjson.ValidBytes(body) {
		return "", string(body)
	}
	return "", ""
}
