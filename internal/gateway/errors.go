package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrSessionExpired means the credential could not be renewed. The store has
// already been cleared when a caller sees it.
var ErrSessionExpired = errors.New("session expired")

// APIError is any non-success response other than a recoverable 401.
type APIError struct {
	Status  int
	Body    []byte
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

func newAPIError(status int, body []byte) *APIError {
	return &APIError{Status: status, Body: body, Message: messageFromBody(status, body)}
}

// messageFromBody prefers the backend's own explanation: DRF uses "detail",
// our handlers use "error", others use "message".
func messageFromBody(status int, body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed != "" {
		var payload map[string]interface{}
		if err := json.Unmarshal(body, &payload); err == nil {
			for _, key := range []string{"detail", "error", "message"} {
				if msg, ok := payload[key].(string); ok && msg != "" {
					return msg
				}
			}
		} else if len(trimmed) <= 200 {
			return trimmed
		}
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return "request failed"
}

func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

func IsSessionExpired(err error) bool {
	return errors.Is(err, ErrSessionExpired)
}

// UserMessage is the text a front-end may show. Session expiry never leaks
// transport details.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if IsSessionExpired(err) {
		return "session expired, please log in again"
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}
