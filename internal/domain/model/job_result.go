package model

import (
	"encoding/json"
	"sort"
	"time"
)

// Category is one of the fixed audit dimensions.
type Category string

const (
	CategoryTechnical   Category = "technical"
	CategoryOnPage      Category = "on-page"
	CategoryOffPage     Category = "off-page"
	CategoryUX          Category = "ux"
	CategorySecurity    Category = "security"
	CategoryPerformance Category = "performance"
)

// Categories lists every category in report order.
var Categories = []Category{
	CategoryTechnical,
	CategoryOnPage,
	CategoryOffPage,
	CategoryUX,
	CategorySecurity,
	CategoryPerformance,
}

// Valid returns true if the Category is one of the known categories.
func (c Category) Valid() bool {
	return c.order() >= 0
}

func (c Category) order() int {
	for i, cat := range Categories {
		if cat == c {
			return i
		}
	}
	return -1
}

// FindingStatus classifies a single finding.
type FindingStatus string

const (
	FindingGood     FindingStatus = "good"
	FindingWarning  FindingStatus = "warning"
	FindingCritical FindingStatus = "critical"
)

// Valid returns true if the FindingStatus is valid.
func (s FindingStatus) Valid() bool {
	return s == FindingGood || s == FindingWarning || s == FindingCritical
}

// Finding is one collaborator's typed output for a single concern.
type Finding struct {
	Category       Category       `json:"category"`
	Check          string         `json:"check"`
	Status         FindingStatus  `json:"status"`
	Metrics        map[string]any `json:"metrics,omitempty"`
	Recommendation string         `json:"recommendation"`
	// Degraded marks a finding that stands in for a failed or timed-out collaborator call.
	Degraded bool `json:"degraded,omitempty"`
}

// DegradedFinding records a collaborator failure as a critical finding in its category.
func DegradedFinding(category Category, check, reason string) Finding {
	return Finding{
		Category:       category,
		Check:          check,
		Status:         FindingCritical,
		Metrics:        map[string]any{"error": reason},
		Recommendation: "Check " + check + " could not complete: " + reason,
		Degraded:       true,
	}
}

// SortFindings orders findings by category report order, then by check name.
func SortFindings(findings []Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		oi, oj := findings[i].Category.order(), findings[j].Category.order()
		if oi != oj {
			return oi < oj
		}
		return findings[i].Check < findings[j].Check
	})
}

// CategoryStatus labels a category score.
type CategoryStatus string

const (
	CategoryStatusGood         CategoryStatus = "good"
	CategoryStatusWarning      CategoryStatus = "warning"
	CategoryStatusCritical     CategoryStatus = "critical"
	CategoryStatusNotEvaluated CategoryStatus = "not_evaluated"
)

// FindingCounts tallies findings by status.
type FindingCounts struct {
	Good     int `json:"good"`
	Warning  int `json:"warning"`
	Critical int `json:"critical"`
}

// Total returns the number of findings counted.
func (c FindingCounts) Total() int {
	return c.Good + c.Warning + c.Critical
}

// CategoryScore is the derived score for one category.
type CategoryScore struct {
	Category        Category        `json:"category"`
	Score           int             `json:"score"`
	Status          CategoryStatus  `json:"status"`
	FindingStatuses []FindingStatus `json:"finding_statuses"`
	Counts          FindingCounts   `json:"counts"`
	// Weight is the effective weight applied in the overall score; zero when excluded.
	Weight float64 `json:"weight"`
}

// AuditResult is the payload of a completed job.
type AuditResult struct {
	TargetURL    string                     `json:"target_url"`
	Domain       string                     `json:"domain"`
	StartedAt    time.Time                  `json:"started_at"`
	CompletedAt  time.Time                  `json:"completed_at"`
	Categories   map[Category]CategoryScore `json:"categories"`
	OverallScore float64                    `json:"overall_score"`
	Findings     []Finding                  `json:"findings"`
}

// Degraded reports whether any finding stands in for a failed collaborator.
func (r *AuditResult) Degraded() bool {
	if r == nil {
		return false
	}
	for i := range r.Findings {
		if r.Findings[i].Degraded {
			return true
		}
	}
	return false
}

// CategoryScoresJSON encodes the category map for persistence.
func (r *AuditResult) CategoryScoresJSON() (json.RawMessage, error) {
	if r == nil {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(r.Categories)
}
