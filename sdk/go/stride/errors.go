// Package stride provides a Go client for the Stride training-plan API.
package stride

import (
	"errors"
	"fmt"
)

// Error represents an error from the Stride API with the HTTP status code
// and the server's error envelope.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("stride: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// IsBadRequest returns true if the error is a 400.
func IsBadRequest(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 400
	}
	return false
}

// IsOutOfPlanRange returns true if the server rejected an adjustment because
// the date falls outside the plan (422).
func IsOutOfPlanRange(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 422
	}
	return false
}

// IsUpstreamUnavailable returns true if the retrieval index or generation
// backend was unavailable after the server's retry (503).
func IsUpstreamUnavailable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 503
	}
	return false
}
