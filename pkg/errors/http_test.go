package errors

import (
	"net/http"
	"testing"
)

func TestFromHTTPStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		check    func(error) bool
		expected string
	}{
		{
			name:     "bad request",
			status:   http.StatusBadRequest,
			body:     `{"message":"name is required"}`,
			check:    IsValidation,
			expected: "validation error: name is required",
		},
		{
			name:     "unauthorized",
			status:   http.StatusUnauthorized,
			body:     `{"message":"invalid api key"}`,
			check:    IsAuthRejected,
			expected: "invalid api key",
		},
		{
			name:     "forbidden",
			status:   http.StatusForbidden,
			body:     ``,
			check:    IsAuthRejected,
			expected: "HTTP 403: Forbidden",
		},
		{
			name:     "not found",
			status:   http.StatusNotFound,
			body:     `{"message":"no such stream"}`,
			check:    IsNotFound,
			expected: "log stream with ID 'ls-9' not found",
		},
		{
			name:     "server error",
			status:   http.StatusBadGateway,
			body:     `upstream down`,
			check:    IsConnectionFault,
			expected: "HTTP 502 failed: upstream down",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FromHTTPStatus(tt.status, []byte(tt.body), "log stream", "ls-9")
			if !tt.check(err) {
				t.Fatalf("unexpected error type %T: %v", err, err)
			}
			if err.Error() != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, err.Error())
			}
		})
	}
}
