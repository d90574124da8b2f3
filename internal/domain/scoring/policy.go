package scoring

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/target/mmk-site-audit/internal/domain/model"
)

// NotEvaluatedPolicy controls how categories without findings affect the overall score.
type NotEvaluatedPolicy string

const (
	// NotEvaluatedExclude drops the category and renormalizes the remaining weights.
	NotEvaluatedExclude NotEvaluatedPolicy = "exclude"
	// NotEvaluatedNeutral counts the category at a neutral 100.
	NotEvaluatedNeutral NotEvaluatedPolicy = "neutral"
)

// UnmarshalText implements encoding.TextUnmarshaler to parse the policy from env or text.
func (p *NotEvaluatedPolicy) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch NotEvaluatedPolicy(v) {
	case NotEvaluatedExclude, NotEvaluatedNeutral:
		*p = NotEvaluatedPolicy(v)
		return nil
	default:
		return fmt.Errorf("invalid NotEvaluatedPolicy: %q", v)
	}
}

// Default penalties and label thresholds.
const (
	DefaultWarningPenalty  = 10
	DefaultCriticalPenalty = 20

	goodThreshold    = 80
	warningThreshold = 50

	// env values like 0.1+0.2 do not add up exactly
	weightSumTolerance = 1e-6
)

// DefaultWeights returns the stock category weights. They sum to 1.0.
func DefaultWeights() map[model.Category]float64 {
	return map[model.Category]float64{
		model.CategoryTechnical:   0.25,
		model.CategoryOnPage:      0.20,
		model.CategoryOffPage:     0.10,
		model.CategoryUX:          0.15,
		model.CategorySecurity:    0.15,
		model.CategoryPerformance: 0.15,
	}
}

// Policy holds the tunables of the scoring engine.
type Policy struct {
	WarningPenalty  int
	CriticalPenalty int
	Weights         map[model.Category]float64
	NotEvaluated    NotEvaluatedPolicy
}

// DefaultPolicy returns the stock scoring policy.
func DefaultPolicy() Policy {
	return Policy{
		WarningPenalty:  DefaultWarningPenalty,
		CriticalPenalty: DefaultCriticalPenalty,
		Weights:         DefaultWeights(),
		NotEvaluated:    NotEvaluatedExclude,
	}
}

// Validate checks that the policy can produce meaningful scores.
func (p Policy) Validate() error {
	if p.WarningPenalty < 0 || p.CriticalPenalty < 0 {
		return errors.New("penalties must be non-negative")
	}
	if p.NotEvaluated != NotEvaluatedExclude && p.NotEvaluated != NotEvaluatedNeutral {
		return fmt.Errorf("invalid not-evaluated policy %q", p.NotEvaluated)
	}
	total := 0.0
	for cat, w := range p.Weights {
		if !cat.Valid() {
			return fmt.Errorf("unknown category %q in weights", cat)
		}
		if w < 0 {
			return fmt.Errorf("weight for %s must be non-negative", cat)
		}
		total += w
	}
	if total <= 0 {
		return errors.New("at least one category weight must be positive")
	}
	if math.Abs(total-1) > weightSumTolerance {
		return fmt.Errorf("category weights must sum to 1.0, got %.4f", total)
	}
	return nil
}

// WeightsFromStrings converts env-style "category:weight" maps into typed weights.
func WeightsFromStrings(in map[string]float64) (map[model.Category]float64, error) {
	out := make(map[model.Category]float64, len(in))
	for k, v := range in {
		cat := model.Category(strings.ToLower(strings.TrimSpace(k)))
		if !cat.Valid() {
			return nil, fmt.Errorf("unknown category %q", k)
		}
		out[cat] = v
	}
	return out, nil
}
