package model

// VerdictOutcome classifies the result of safety validation.
type VerdictOutcome string

const (
	VerdictApproved VerdictOutcome = "APPROVED"
	VerdictModified VerdictOutcome = "MODIFIED"
	VerdictRejected VerdictOutcome = "REJECTED"
)

// Safety rule names, recorded in SafetyVerdict.Rules when triggered.
const (
	RuleProgressiveOverloadCap = "progressive-overload-cap"
	RuleLongRunCap             = "long-run-cap"
	RuleInjuryVeto             = "injury-veto"
	RulePlausibilityBounds     = "plausibility-bounds"
	RuleBackToBackQuality      = "back-to-back-quality" // advisory only, never mutates
)

// InjuryDisclaimer is attached to every injury-veto rewrite.
const InjuryDisclaimer = "An active injury flag was reported. Training has been reduced to rest or easy effort. Consult a medical professional before resuming structured training."

// SafetyVerdict is the outcome of safety validation. The guard is its sole
// writer. Artifact holds the repaired version when MODIFIED, the original
// when APPROVED, and a safe placeholder when REJECTED.
type SafetyVerdict struct {
	Outcome     VerdictOutcome `json:"outcome"`
	Rules       []string       `json:"rules,omitempty"` // triggered rule names, evaluation order
	Explanation string         `json:"explanation"`
	// Artifact is carried in-process only; on the wire and in the run log the
	// final artifact is serialized separately with its kind tag.
	Artifact Artifact `json:"-"`
}

// Triggered reports whether the named rule fired.
func (v SafetyVerdict) Triggered(rule string) bool {
	for _, r := range v.Rules {
		if r == rule {
			return true
		}
	}
	return false
}
