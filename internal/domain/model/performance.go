package model

// Strategy selects the device profile for performance insights.
type Strategy string

const (
	StrategyMobile  Strategy = "mobile"
	StrategyDesktop Strategy = "desktop"
)

// Strategies lists the strategies requested for every audit with an API key.
var Strategies = []Strategy{StrategyMobile, StrategyDesktop}

// Valid returns true if the Strategy is valid.
func (s Strategy) Valid() bool {
	return s == StrategyMobile || s == StrategyDesktop
}

// WebVital is one core web vital as reported by Lighthouse.
type WebVital struct {
	Value        float64       `json:"value"`
	DisplayValue string        `json:"display_value"`
	Score        float64       `json:"score"`
	IdealRange   string        `json:"ideal_range"`
	Status       FindingStatus `json:"status"`
}

// LabMetric is a Lighthouse lab measurement.
type LabMetric struct {
	Value        float64 `json:"value"`
	DisplayValue string  `json:"display_value"`
	Score        float64 `json:"score"`
}

// Opportunity is a Lighthouse improvement suggestion.
type Opportunity struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Savings     string  `json:"savings"`
	Score       float64 `json:"score"`
}

// PerformanceMetrics is the structured output of one performance-insights call.
// Category scores are on a 0-100 scale.
type PerformanceMetrics struct {
	Strategy           Strategy             `json:"strategy"`
	PerformanceScore   float64              `json:"performance_score"`
	AccessibilityScore float64              `json:"accessibility_score"`
	BestPracticesScore float64              `json:"best_practices_score"`
	SEOScore           float64              `json:"seo_score"`
	CoreWebVitals      map[string]WebVital  `json:"core_web_vitals"`
	LabMetrics         map[string]LabMetric `json:"lab_metrics"`
	Opportunities      []Opportunity        `json:"opportunities"`
}

// VitalStatus maps a Lighthouse 0-1 score to a finding status.
func VitalStatus(score float64) FindingStatus {
	switch {
	case score >= 0.9:
		return FindingGood
	case score >= 0.5:
		return FindingWarning
	default:
		return FindingCritical
	}
}
