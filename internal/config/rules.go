package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Rules holds every numeric threshold used by the guards and the adjuster.
// All values are injected at construction so the rule set is testable with
// synthetic thresholds; nothing is hard-coded at the call sites.
type Rules struct {
	// SafetyGuard thresholds.
	OverloadCapPct  float64 `yaml:"overload_cap_pct"`  // max week-over-week mileage increase, fraction (0.10 = 10%)
	LongRunFraction float64 `yaml:"long_run_fraction"` // max single run as a fraction of week total
	LongRunCeiling  float64 `yaml:"long_run_ceiling"`  // absolute single-run cap in miles

	// HallucinationGuard thresholds.
	MinEvidence    int     `yaml:"min_evidence"`    // qualifying passages required to accept an artifact
	RelevanceFloor float32 `yaml:"relevance_floor"` // passages below this score do not qualify

	// Retrieval.
	RetrievalK int `yaml:"retrieval_k"` // top-K passages per port call

	// Adjuster thresholds.
	FatigueThreshold  int     `yaml:"fatigue_threshold"`  // fatigue >= threshold triggers reduction
	HeatTempF         float64 `yaml:"heat_temp_f"`        // temperature above which pace is widened
	HumidityThreshold float64 `yaml:"humidity_threshold"` // humidity fraction above which pace is widened
	FatigueReduction  float64 `yaml:"fatigue_reduction"`  // distance reduction fraction under high fatigue
	PaceWiden         float64 `yaml:"pace_widen"`         // minutes per mile added to the slow bound in heat
}

// DefaultRules returns the documented defaults.
func DefaultRules() Rules {
	return Rules{
		OverloadCapPct:    0.10,
		LongRunFraction:   0.30,
		LongRunCeiling:    22.0,
		MinEvidence:       2,
		RelevanceFloor:    0.25,
		RetrievalK:        6,
		FatigueThreshold:  7,
		HeatTempF:         82.0,
		HumidityThreshold: 0.70,
		FatigueReduction:  0.30,
		PaceWiden:         0.75,
	}
}

// Validate checks threshold sanity.
func (r Rules) Validate() error {
	if r.OverloadCapPct <= 0 {
		return fmt.Errorf("config: overload_cap_pct must be positive")
	}
	if r.LongRunFraction <= 0 || r.LongRunFraction > 1 {
		return fmt.Errorf("config: long_run_fraction must be in (0, 1]")
	}
	if r.LongRunCeiling <= 0 {
		return fmt.Errorf("config: long_run_ceiling must be positive")
	}
	if r.MinEvidence < 1 {
		return fmt.Errorf("config: min_evidence must be at least 1")
	}
	if r.RelevanceFloor < 0 || r.RelevanceFloor > 1 {
		return fmt.Errorf("config: relevance_floor must be in [0, 1]")
	}
	if r.RetrievalK < 1 {
		return fmt.Errorf("config: retrieval_k must be at least 1")
	}
	if r.FatigueReduction < 0 || r.FatigueReduction >= 1 {
		return fmt.Errorf("config: fatigue_reduction must be in [0, 1)")
	}
	return nil
}

// rulesFromEnv overlays per-threshold environment overrides onto base.
func rulesFromEnv(base Rules) Rules {
	base.OverloadCapPct = envFloat("STRIDE_OVERLOAD_CAP_PCT", base.OverloadCapPct)
	base.LongRunFraction = envFloat("STRIDE_LONG_RUN_FRACTION", base.LongRunFraction)
	base.LongRunCeiling = envFloat("STRIDE_LONG_RUN_CEILING", base.LongRunCeiling)
	base.MinEvidence = envInt("STRIDE_MIN_EVIDENCE", base.MinEvidence)
	base.RelevanceFloor = float32(envFloat("STRIDE_RELEVANCE_FLOOR", float64(base.RelevanceFloor)))
	base.RetrievalK = envInt("STRIDE_RETRIEVAL_K", base.RetrievalK)
	base.FatigueThreshold = envInt("STRIDE_FATIGUE_THRESHOLD", base.FatigueThreshold)
	base.HeatTempF = envFloat("STRIDE_HEAT_TEMP_F", base.HeatTempF)
	base.HumidityThreshold = envFloat("STRIDE_HUMIDITY_THRESHOLD", base.HumidityThreshold)
	base.FatigueReduction = envFloat("STRIDE_FATIGUE_REDUCTION", base.FatigueReduction)
	base.PaceWiden = envFloat("STRIDE_PACE_WIDEN", base.PaceWiden)
	return base
}

// LoadRulesFile reads a YAML rules file and overlays it onto base.
// Fields absent from the file keep their base values.
func LoadRulesFile(path string, base Rules) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read %s: %w", path, err)
	}
	rules := base
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return Rules{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := rules.Validate(); err != nil {
		return Rules{}, err
	}
	return rules, nil
}
