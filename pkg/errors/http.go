package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// HTTPError is the JSON error body returned by the remote API.
type HTTPError struct {
	Status  int    `json:"-"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return e.Message
}

// ParseHTTPError decodes an error body. Non-JSON bodies become the message.
func ParseHTTPError(status int, body []byte) *HTTPError {
	httpErr := &HTTPError{Status: status}
	if err := json.Unmarshal(body, httpErr); err != nil || httpErr.Message == "" {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status))
		}
		httpErr.Message = msg
	}
	return httpErr
}

// FromHTTPStatus converts a failed REST response into a typed error.
// resource and id name the object the request addressed, if any.
func FromHTTPStatus(status int, body []byte, resource, id string) error {
	httpErr := ParseHTTPError(status, body)

	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return NewValidationError("", httpErr.Message, nil)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return NewAuthRejectedError(httpErr.Message, status)
	case status == http.StatusNotFound:
		if resource == "" {
			resource = "resource"
		}
		return NewNotFoundError(resource, id)
	case status == http.StatusTooManyRequests || status >= 500:
		return NewConnectionFaultError(fmt.Sprintf("HTTP %d", status), httpErr)
	default:
		return NewInternalError(fmt.Sprintf("unexpected HTTP %d", status), httpErr)
	}
}
