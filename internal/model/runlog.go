package model

import (
	"time"

	"github.com/google/uuid"
)

// RunLogEntry is the append-only record of one workflow execution.
// Created exactly once per router invocation and never mutated afterward.
// Raw payloads are stored as serialized JSON so the log survives schema
// drift in the domain types.
type RunLogEntry struct {
	ID          uuid.UUID      `json:"id"`
	Seq         int64          `json:"seq"` // store-assigned commit order; 0 until appended
	Timestamp   time.Time      `json:"timestamp"`
	RequestKind RequestKind    `json:"request_kind"`
	Profile     RunnerProfile  `json:"profile"`
	Context     *AdjustmentContext `json:"context,omitempty"`
	Evidence    []Evidence     `json:"evidence"`
	RawOutput   []byte         `json:"raw_output"` // generator output before guards
	Verdict     SafetyVerdict  `json:"verdict"`
	Artifact    []byte         `json:"artifact"` // final artifact, kind-tagged JSON
	ChainHash   string         `json:"chain_hash,omitempty"` // store-assigned tamper-evidence hash
}
