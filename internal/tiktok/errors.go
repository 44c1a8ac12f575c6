package tiktok

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorClass decides how a failed publish attempt is handled: capability
// errors trigger the fallback chain, transient errors go back to the queue,
// permanent errors end the delivery.
type ErrorClass int

const (
	ErrorTransient ErrorClass = iota
	ErrorCapability
	ErrorPermanent
)

func (c ErrorClass) String() string {
	switch c {
	case ErrorCapability:
		return "capability"
	case ErrorPermanent:
		return "permanent"
	default:
		return "transient"
	}
}

// APIError is a structured error returned by the content posting endpoints.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	LogID      string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tiktok api error: status=%d code=%s message=%s log_id=%s",
		e.StatusCode, e.Code, e.Message, e.LogID)
}

// Classifier maps an attempt error to an ErrorClass. It is pluggable so the
// publisher can be tested without real API failures.
type Classifier interface {
	Classify(err error) ErrorClass
}

// capabilityMarkers are substrings that indicate the account or mode cannot
// perform the requested operation regardless of retries.
var capabilityMarkers = []string{
	"unsupported",
	"not support",
	"permission",
	"scope",
	"forbidden",
	"insufficient",
	"not authorized",
	"not available",
}

// DefaultClassifier implements the stock classification rules. An *APIError
// anywhere in the chain with HTTP 403/404 or a capability marker in its code or message is a
// capability error; 408 and 429 are transient; any other *APIError with a
// 4xx status is permanent; everything else, including transport failures, is
// transient.
type DefaultClassifier struct{}

func (DefaultClassifier) Classify(err error) ErrorClass {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return ErrorTransient
	}

	if apiErr.StatusCode == 403 || apiErr.StatusCode == 404 {
		return ErrorCapability
	}

	haystack := strings.ToLower(apiErr.Code + " " + apiErr.Message)
	for _, marker := range capabilityMarkers {
		if strings.Contains(haystack, marker) {
			return ErrorCapability
		}
	}

	// Throttling and timeouts resolve on their own; retry them.
	if apiErr.StatusCode == 408 || apiErr.StatusCode == 429 {
		return ErrorTransient
	}

	if apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
		return ErrorPermanent
	}
	return ErrorTransient
}
