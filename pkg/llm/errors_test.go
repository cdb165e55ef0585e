package llm

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	err := &Error{
		Type:       ErrorTypeEndpoint,
		Message:    "server error",
		StatusCode: 503,
		Model:      "gpt-4o-mini",
		Endpoint:   "https://api.openai.com/v1",
	}

	got := err.Error()
	for _, want := range []string{"endpoint", "HTTP 503", "model=gpt-4o-mini", "server error"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected error message to contain %q, got: %s", want, got)
		}
	}
}

func TestErrorEndpointRedactedToHost(t *testing.T) {
	err := &Error{
		Type:     ErrorTypeEndpoint,
		Message:  "connection failed",
		Endpoint: "https://api.openai.com/v1",
	}

	got := err.Error()
	if !strings.Contains(got, "endpoint=api.openai.com") {
		t.Errorf("expected host-only endpoint, got: %s", got)
	}
	if strings.Contains(got, "/v1") {
		t.Errorf("endpoint should be redacted to host only, got: %s", got)
	}
}

func TestErrorIncludesCause(t *testing.T) {
	cause := errors.New("underlying connection error")
	err := NewError(ErrorTypeEndpoint, "connection failed", true, cause)

	if !strings.Contains(err.Error(), "underlying connection error") {
		t.Errorf("expected error message to contain cause, got: %s", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause through Unwrap")
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantType      ErrorType
		wantRetryable bool
	}{
		{"unauthorized", errors.New("401 Unauthorized"), ErrorTypeAuth, false},
		{"invalid api key", errors.New("error: invalid API key provided"), ErrorTypeAuth, false},
		{"model missing", errors.New("the model 'nope' does not exist"), ErrorTypeModel, false},
		{"endpoint 404", errors.New("404 page not found"), ErrorTypeEndpoint, false},
		{"connection refused", errors.New("dial tcp: connection refused"), ErrorTypeEndpoint, true},
		{"no such host", errors.New("dial tcp: lookup llm.internal: no such host"), ErrorTypeEndpoint, true},
		{"deadline", errors.New("context deadline exceeded"), ErrorTypeEndpoint, true},
		{"rate limited", errors.New("429 Too Many Requests"), ErrorTypeUnknown, true},
		{"overloaded", errors.New("Overloaded"), ErrorTypeUnknown, true},
		{"gpu", errors.New("CUDA error: out of memory"), ErrorTypeEndpoint, true},
		{"server error", errors.New("502 Bad Gateway"), ErrorTypeEndpoint, true},
		{"unknown", errors.New("something odd"), ErrorTypeUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyError(tt.err)
			if got.Type != tt.wantType {
				t.Errorf("type = %q, want %q", got.Type, tt.wantType)
			}
			if got.Retryable != tt.wantRetryable {
				t.Errorf("retryable = %v, want %v", got.Retryable, tt.wantRetryable)
			}
			if !errors.Is(got, tt.err) {
				t.Error("classified error should wrap the original")
			}
		})
	}
}

func TestClassifyErrorExtractsStatusCode(t *testing.T) {
	got := ClassifyError(errors.New("error, status code: 429, message: slow down"))
	if got.StatusCode != 429 {
		t.Errorf("status code = %d, want 429", got.StatusCode)
	}
}

func TestClassifyErrorNil(t *testing.T) {
	if got := ClassifyError(nil); got != nil {
		t.Errorf("expected nil for nil input, got: %v", got)
	}
}

func TestClassifyErrorPassesThroughStructured(t *testing.T) {
	orig := NewError(ErrorTypeAuth, "authentication failed", false, nil)
	wrapped := fmt.Errorf("request failed: %w", orig)

	got := ClassifyError(wrapped)
	if got != orig {
		t.Error("expected the existing *Error to be returned unchanged")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(NewError(ErrorTypeEndpoint, "server error", true, nil)) {
		t.Error("expected retryable error to report true")
	}
	if IsRetryable(NewError(ErrorTypeAuth, "authentication failed", false, nil)) {
		t.Error("expected non-retryable error to report false")
	}
	if IsRetryable(errors.New("plain error")) {
		t.Error("expected plain error to report false")
	}
}

func TestGetErrorType(t *testing.T) {
	if got := GetErrorType(NewError(ErrorTypeModel, "model not found", false, nil)); got != ErrorTypeModel {
		t.Errorf("got %q, want %q", got, ErrorTypeModel)
	}
	if got := GetErrorType(errors.New("plain")); got != ErrorTypeUnknown {
		t.Errorf("got %q, want %q", got, ErrorTypeUnknown)
	}
}
