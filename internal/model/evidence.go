package model

// CorpusDomain tags the section of the reference corpus a passage came from.
type CorpusDomain string

const (
	DomainPlans   CorpusDomain = "plans"
	DomainSafety  CorpusDomain = "safety"
	DomainFueling CorpusDomain = "fueling"
	DomainBiomech CorpusDomain = "biomech"
)

// Evidence is a single retrieved passage with provenance.
// An ordered sequence of Evidence is attached to every generated artifact;
// guards consume it but never mutate it.
type Evidence struct {
	Source string  `json:"source"` // document identifier, e.g. "daniels_running_formula.md#12"
	Text   string  `json:"text"`
	Score  float32 `json:"score"` // relevance in [0, 1], descending by rank
	Rank   int     `json:"rank"`  // 1-based position in the retrieval result
}
