package model

import "encoding/json"

// ArtifactKind tags the concrete type carried by an Artifact.
type ArtifactKind string

const (
	ArtifactPlan     ArtifactKind = "training_plan"
	ArtifactWorkout  ArtifactKind = "daily_workout"
	ArtifactFallback ArtifactKind = "fallback"
)

// Artifact is the output of a workflow node: a full plan, a single adjusted
// workout, or a conservative fallback. The set of implementations is closed;
// guards switch exhaustively on the concrete type.
type Artifact interface {
	Kind() ArtifactKind
}

func (*TrainingPlan) Kind() ArtifactKind { return ArtifactPlan }
func (*DailyWorkout) Kind() ArtifactKind { return ArtifactWorkout }
func (*Fallback) Kind() ArtifactKind     { return ArtifactFallback }

// Fallback is the conservative artifact substituted when generated content
// lacks sufficient grounding. It is structurally distinct from generated
// output so callers can never mistake it for a real plan, and it still
// passes through safety validation because its placeholder workout is a
// prescription like any other.
type Fallback struct {
	InsufficientGrounding bool         `json:"insufficient_grounding"`
	Reason                string       `json:"reason"`
	Placeholder           DailyWorkout `json:"placeholder"`
}

// MarshalArtifact serializes an artifact with its kind tag for persistence.
func MarshalArtifact(a Artifact) ([]byte, error) {
	if a == nil {
		return json.Marshal(nil)
	}
	return json.Marshal(struct {
		Kind     ArtifactKind `json:"kind"`
		Artifact Artifact     `json:"artifact"`
	}{Kind: a.Kind(), Artifact: a})
}
