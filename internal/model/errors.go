package model

import "errors"

// Input faults: rejected immediately, never retried.
var (
	ErrUnrecognizedRequestKind = errors.New("model: unrecognized request kind")
	ErrDateOutOfPlanRange      = errors.New("model: date outside plan range")
)

// Transient service faults: retried exactly once with identical inputs,
// then surfaced. No artifact is produced on the second failure.
var (
	ErrIndexUnavailable  = errors.New("model: retrieval index unavailable")
	ErrGenerationTimeout = errors.New("model: generation timed out")
	ErrGenerationRefused = errors.New("model: generation backend refused the request")
)

// ErrPlanGenerationFailed is surfaced when the generator returns a
// structurally invalid plan twice in a row.
var ErrPlanGenerationFailed = errors.New("model: plan generation failed")

// API error codes used in HTTP error envelopes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeUnrecognized   = "unrecognized_request_kind"
	ErrCodeOutOfPlanRange = "date_out_of_plan_range"
	ErrCodeUpstream       = "upstream_unavailable"
	ErrCodeInternal       = "internal_error"
)
