package modelservice

import (
	"errors"
	"testing"
)

func TestErrorFromStatusCode(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{400, false},
		{401, false},
		{403, false},
		{404, false},
		{408, true},
		{413, false},
		{422, false},
		{429, true},
		{500, true},
		{502, true},
		{503, true},
		{504, true},
		{418, true}, // unknown status codes default to retryable
	}

	for _, tt := range tests {
		err := ErrorFromStatusCode(tt.status, "test error", "gemini")
		if IsRetryable(err) != tt.retryable {
			t.Errorf("status %d: expected retryable=%v", tt.status, tt.retryable)
		}
	}
}

func TestErrorTypes(t *testing.T) {
	err := ErrorFromStatusCode(401, "bad key", "gemini")
	var authErr *AuthenticationError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthenticationError, got %T", err)
	}
	if authErr.Provider != "gemini" {
		t.Errorf("expected provider gemini, got %q", authErr.Provider)
	}
	if authErr.StatusCode != 401 {
		t.Errorf("expected status 401, got %d", authErr.StatusCode)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"auth error", &AuthenticationError{}, false},
		{"access denied", &AccessDeniedError{}, false},
		{"not found", &NotFoundError{}, false},
		{"invalid request", &InvalidRequestError{}, false},
		{"context length", &ContextLengthError{}, false},
		{"config error", &ConfigurationError{}, false},
		{"abort error", &AbortError{}, false},
		{"rate limit", &RateLimitError{}, true},
		{"server error", &ServerError{}, true},
		{"network error", &NetworkError{}, true},
		{"timeout error", &RequestTimeoutError{}, true},
		{"unknown error", errors.New("unknown"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if IsRetryable(tt.err) != tt.retryable {
				t.Errorf("expected retryable=%v for %T", tt.retryable, tt.err)
			}
		})
	}
}

func TestServiceErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := &NetworkError{ServiceError: ServiceError{Message: "request failed", Cause: cause}}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
	if err.Error() != "request failed: connection refused" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}
