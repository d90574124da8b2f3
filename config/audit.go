package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/target/mmk-site-audit/internal/domain/scoring"
)

// AuditConfig controls how many audits run at once and how long each may take.
type AuditConfig struct {
	// Slots is the number of audits that may run concurrently; the rest queue in FIFO order.
	Slots int `env:"SLOTS" envDefault:"5"`

	// Timeout bounds a whole audit from start to terminal state.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"300s"`

	// CallTimeout caps each check or performance call within an audit.
	CallTimeout time.Duration `env:"CALL_TIMEOUT" envDefault:"60s"`

	// FetchTimeout caps the target page fetch.
	FetchTimeout time.Duration `env:"FETCH_TIMEOUT" envDefault:"30s"`

	UserAgent    string `env:"USER_AGENT"     envDefault:"mmk-site-audit/1.0"`
	MaxBodyBytes int64  `env:"MAX_BODY_BYTES" envDefault:"10485760"`
}

// Sanitize applies guardrails to audit configuration values.
func (a *AuditConfig) Sanitize() {
	if a.Slots < 1 {
		a.Slots = 1
	}
	if a.Slots > 100 {
		a.Slots = 100
	}
	if a.Timeout < 5*time.Second {
		a.Timeout = 5 * time.Second
	}
	if a.CallTimeout <= 0 || a.CallTimeout > a.Timeout {
		a.CallTimeout = a.Timeout
	}
	if a.FetchTimeout <= 0 || a.FetchTimeout > a.Timeout {
		a.FetchTimeout = a.Timeout
	}
	if a.UserAgent = strings.TrimSpace(a.UserAgent); a.UserAgent == "" {
		a.UserAgent = "mmk-site-audit/1.0"
	}
	if a.MaxBodyBytes < 1<<10 {
		a.MaxBodyBytes = 1 << 10
	}
}

// CacheConfig controls the completed-result cache and its Redis archive.
type CacheConfig struct {
	TTL        time.Duration `env:"TTL"         envDefault:"24h"`
	MaxEntries int           `env:"MAX_ENTRIES" envDefault:"100"`
}

// Sanitize applies guardrails to cache configuration values.
func (c *CacheConfig) Sanitize() {
	if c.TTL < time.Minute {
		c.TTL = time.Minute
	}
	if c.MaxEntries < 1 {
		c.MaxEntries = 1
	}
}

// ScoringConfig tunes the scoring engine.
type ScoringConfig struct {
	WarningPenalty  int `env:"WARNING_PENALTY"  envDefault:"10"`
	CriticalPenalty int `env:"CRITICAL_PENALTY" envDefault:"20"`

	// Weights overrides category weights, e.g. "technical:0.3,on-page:0.2".
	// Categories not listed keep their default weight. The merged weights must sum to 1.0.
	Weights map[string]float64 `env:"WEIGHTS"`

	// NotEvaluated decides whether categories without findings are excluded or counted as neutral.
	NotEvaluated scoring.NotEvaluatedPolicy `env:"NOT_EVALUATED_POLICY" envDefault:"exclude"`
}

// Sanitize applies guardrails to scoring configuration values.
func (s *ScoringConfig) Sanitize() {
	if s.WarningPenalty < 0 {
		s.WarningPenalty = scoring.DefaultWarningPenalty
	}
	if s.CriticalPenalty < 0 {
		s.CriticalPenalty = scoring.DefaultCriticalPenalty
	}
	if s.NotEvaluated == "" {
		s.NotEvaluated = scoring.NotEvaluatedExclude
	}
}

// Policy builds the scoring policy, merging weight overrides onto the defaults.
func (s ScoringConfig) Policy() (scoring.Policy, error) {
	policy := scoring.DefaultPolicy()
	policy.WarningPenalty = s.WarningPenalty
	policy.CriticalPenalty = s.CriticalPenalty
	policy.NotEvaluated = s.NotEvaluated

	if len(s.Weights) > 0 {
		overrides, err := scoring.WeightsFromStrings(s.Weights)
		if err != nil {
			return scoring.Policy{}, fmt.Errorf("scoring weights: %w", err)
		}
		for cat, w := range overrides {
			policy.Weights[cat] = w
		}
	}
	if err := policy.Validate(); err != nil {
		return scoring.Policy{}, err
	}
	return policy, nil
}

// PageSpeedConfig configures the performance insights client.
type PageSpeedConfig struct {
	Endpoint string `env:"ENDPOINT" envDefault:"https://www.googleapis.com/pagespeedonline/v5/runPagespeed"`

	// APIKey is used when a submission carries no key of its own. Empty disables
	// performance insights for such submissions.
	APIKey string `env:"API_KEY"`

	Timeout     time.Duration `env:"TIMEOUT"      envDefault:"60s"`
	MaxAttempts int           `env:"MAX_ATTEMPTS" envDefault:"2"`
}

// Sanitize applies guardrails to PageSpeed configuration values.
func (p *PageSpeedConfig) Sanitize() {
	p.Endpoint = strings.TrimSpace(p.Endpoint)
	p.APIKey = strings.TrimSpace(p.APIKey)
	if p.Timeout <= 0 {
		p.Timeout = 60 * time.Second
	}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.MaxAttempts > 5 {
		p.MaxAttempts = 5
	}
}

// ChecksConfig configures the built-in checks that reach the network.
type ChecksConfig struct {
	RDAPEndpoint         string        `env:"RDAP_ENDPOINT"          envDefault:"https://rdap.org"`
	LinkCheckLimit       int           `env:"LINK_CHECK_LIMIT"       envDefault:"20"`
	LinkCheckTimeout     time.Duration `env:"LINK_CHECK_TIMEOUT"     envDefault:"5s"`
	LinkCheckConcurrency int           `env:"LINK_CHECK_CONCURRENCY" envDefault:"5"`
}

// Sanitize applies guardrails to check configuration values.
func (c *ChecksConfig) Sanitize() {
	c.RDAPEndpoint = strings.TrimRight(strings.TrimSpace(c.RDAPEndpoint), "/")
	if c.LinkCheckLimit < 0 {
		c.LinkCheckLimit = 0
	}
	if c.LinkCheckTimeout <= 0 {
		c.LinkCheckTimeout = 5 * time.Second
	}
	if c.LinkCheckConcurrency < 1 {
		c.LinkCheckConcurrency = 1
	}
}
