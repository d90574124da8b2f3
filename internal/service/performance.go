package service

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/target/mmk-site-audit/internal/domain/model"
)

// PerformanceCheckName names the finding produced for one strategy.
func PerformanceCheckName(strategy model.Strategy) string {
	return "pagespeed_" + string(strategy)
}

// PerformanceFinding turns one performance-insights answer into a finding.
func PerformanceFinding(m *model.PerformanceMetrics, strategy model.Strategy) model.Finding {
	f := model.Finding{
		Category: model.CategoryPerformance,
		Check:    PerformanceCheckName(strategy),
	}
	if m == nil {
		return model.DegradedFinding(f.Category, f.Check, "no performance metrics returned")
	}

	score := math.Round(m.PerformanceScore*10) / 10
	switch {
	case score >= 90:
		f.Status = model.FindingGood
	case score >= 50:
		f.Status = model.FindingWarning
	default:
		f.Status = model.FindingCritical
	}

	vitals := make(map[string]any, len(m.CoreWebVitals))
	for k, v := range m.CoreWebVitals {
		vitals[k] = map[string]any{
			"value":         v.Value,
			"display_value": v.DisplayValue,
			"score":         v.Score,
			"ideal_range":   v.IdealRange,
			"status":        string(v.Status),
		}
	}
	lab := make(map[string]any, len(m.LabMetrics))
	for k, v := range m.LabMetrics {
		lab[k] = map[string]any{
			"value":         v.Value,
			"display_value": v.DisplayValue,
			"score":         v.Score,
		}
	}
	opportunities := make([]map[string]any, 0, len(m.Opportunities))
	titles := make([]string, 0, len(m.Opportunities))
	for _, o := range m.Opportunities {
		opportunities = append(opportunities, map[string]any{
			"id":          o.ID,
			"title":       o.Title,
			"description": o.Description,
			"savings":     o.Savings,
			"score":       o.Score,
		})
		if o.Title != "" {
			titles = append(titles, o.Title)
		}
	}
	sort.Strings(titles)

	f.Metrics = map[string]any{
		"strategy":             string(strategy),
		"performance_score":    score,
		"accessibility_score":  math.Round(m.AccessibilityScore*10) / 10,
		"best_practices_score": math.Round(m.BestPracticesScore*10) / 10,
		"seo_score":            math.Round(m.SEOScore*10) / 10,
		"core_web_vitals":      vitals,
		"lab_metrics":          lab,
		"opportunities":        opportunities,
	}

	switch {
	case len(titles) > 0:
		f.Recommendation = fmt.Sprintf("Address %d %s opportunities: %s",
			len(titles), strategy, strings.Join(titles, ", "))
	case f.Status == model.FindingGood:
		f.Recommendation = fmt.Sprintf("%s performance is good", strategy)
	default:
		f.Recommendation = fmt.Sprintf("Improve %s performance score (currently %.0f)", strategy, score)
	}
	return f
}
