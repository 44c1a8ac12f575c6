package tiktok

import (
	"errors"
	"fmt"
	"testing"
)

func TestDefaultClassifier(t *testing.T) {
	c := DefaultClassifier{}

	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"plain error is transient", errors.New("connection reset"), ErrorTransient},
		{"server error is transient", &APIError{StatusCode: 500, Code: "internal_error"}, ErrorTransient},
		{"rate limited is transient", &APIError{StatusCode: 429, Code: "rate_limit_exceeded"}, ErrorTransient},
		{"403 is capability", &APIError{StatusCode: 403, Code: "whatever"}, ErrorCapability},
		{"404 is capability", &APIError{StatusCode: 404}, ErrorCapability},
		{"scope marker is capability", &APIError{StatusCode: 400, Code: "scope_not_authorized"}, ErrorCapability},
		{"unsupported marker is capability", &APIError{StatusCode: 200, Message: "feature unsupported for this account"}, ErrorCapability},
		{"permission marker is capability", &APIError{StatusCode: 400, Message: "Permission denied"}, ErrorCapability},
		{"not available marker is capability", &APIError{StatusCode: 400, Message: "photo mode not available"}, ErrorCapability},
		{"plain 400 is permanent", &APIError{StatusCode: 400, Code: "invalid_param", Message: "bad title"}, ErrorPermanent},
		{"plain 422 is permanent", &APIError{StatusCode: 422, Code: "invalid_file_format"}, ErrorPermanent},
		{"wrapped 403 is capability", fmt.Errorf("publish video: %w", &APIError{StatusCode: 403}), ErrorCapability},
		{"wrapped 400 is permanent", fmt.Errorf("init photos: %w", &APIError{StatusCode: 400, Code: "invalid_param"}), ErrorPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

// 429 must never be mistaken for a permanent 4xx, or posts get dropped on
// every burst.
func TestRateLimitedIsRetried(t *testing.T) {
	c := DefaultClassifier{}
	if got := c.Classify(&APIError{StatusCode: 429, Message: "too many requests"}); got != ErrorTransient {
		t.Fatalf("429 classified as %v, want transient", got)
	}
}
