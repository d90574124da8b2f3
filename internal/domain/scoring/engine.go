// Package scoring turns audit findings into category and overall scores.
// Everything here is pure: the same findings always yield the same report.
package scoring

import (
	"fmt"
	"math"

	"github.com/target/mmk-site-audit/internal/domain/model"
)

// Report is the scoring output for one audit.
type Report struct {
	Categories map[model.Category]model.CategoryScore
	Overall    float64
}

// Engine scores findings according to a Policy.
type Engine struct {
	policy Policy
}

// NewEngine validates the policy and returns an Engine.
func NewEngine(policy Policy) (*Engine, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("validate scoring policy: %w", err)
	}
	weights := make(map[model.Category]float64, len(policy.Weights))
	for k, v := range policy.Weights {
		weights[k] = v
	}
	policy.Weights = weights
	return &Engine{policy: policy}, nil
}

// Policy returns a copy of the engine's policy.
func (e *Engine) Policy() Policy {
	p := e.policy
	p.Weights = make(map[model.Category]float64, len(e.policy.Weights))
	for k, v := range e.policy.Weights {
		p.Weights[k] = v
	}
	return p
}

// Score computes every category score and the weighted overall score.
// Findings with an unknown category are ignored.
func (e *Engine) Score(findings []model.Finding) Report {
	sorted := make([]model.Finding, len(findings))
	copy(sorted, findings)
	model.SortFindings(sorted)

	byCategory := make(map[model.Category][]model.Finding, len(model.Categories))
	for _, f := range sorted {
		if f.Category.Valid() {
			byCategory[f.Category] = append(byCategory[f.Category], f)
		}
	}

	categories := make(map[model.Category]model.CategoryScore, len(model.Categories))
	for _, cat := range model.Categories {
		categories[cat] = e.ScoreCategory(cat, byCategory[cat])
	}

	overall := e.applyWeights(categories)
	return Report{Categories: categories, Overall: overall}
}

// ScoreCategory scores one category. A category without findings is not evaluated.
func (e *Engine) ScoreCategory(cat model.Category, findings []model.Finding) model.CategoryScore {
	cs := model.CategoryScore{
		Category:        cat,
		Score:           100,
		FindingStatuses: make([]model.FindingStatus, 0, len(findings)),
	}
	if len(findings) == 0 {
		cs.Status = model.CategoryStatusNotEvaluated
		return cs
	}

	penalty := 0
	for _, f := range findings {
		status := f.Status
		if !status.Valid() {
			// unknown classifications count as worst case
			status = model.FindingCritical
		}
		switch status {
		case model.FindingGood:
			cs.Counts.Good++
		case model.FindingWarning:
			cs.Counts.Warning++
			penalty += e.policy.WarningPenalty
		case model.FindingCritical:
			cs.Counts.Critical++
			penalty += e.policy.CriticalPenalty
		}
		cs.FindingStatuses = append(cs.FindingStatuses, status)
	}

	cs.Score = max(100-penalty, 0)
	cs.Status = label(cs.Score)
	return cs
}

// applyWeights sets each category's effective weight and returns the overall score.
func (e *Engine) applyWeights(categories map[model.Category]model.CategoryScore) float64 {
	var weighted, total float64
	included := make([]model.Category, 0, len(model.Categories))

	for _, cat := range model.Categories {
		w := e.policy.Weights[cat]
		cs := categories[cat]
		if w <= 0 || (cs.Status == model.CategoryStatusNotEvaluated && e.policy.NotEvaluated == NotEvaluatedExclude) {
			continue
		}
		weighted += w * float64(cs.Score)
		total += w
		included = append(included, cat)
	}
	if total == 0 {
		return 0
	}

	for _, cat := range included {
		cs := categories[cat]
		cs.Weight = round(e.policy.Weights[cat]/total, 4)
		categories[cat] = cs
	}
	return round(weighted/total, 1)
}

func label(score int) model.CategoryStatus {
	switch {
	case score >= goodThreshold:
		return model.CategoryStatusGood
	case score >= warningThreshold:
		return model.CategoryStatusWarning
	default:
		return model.CategoryStatusCritical
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
