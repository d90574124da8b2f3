// Package pagespeed calls the PageSpeed Insights v5 API and extracts Lighthouse
// scores, core web vitals, lab metrics and improvement opportunities.
package pagespeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/target/mmk-site-audit/internal/core"
	"github.com/target/mmk-site-audit/internal/domain/model"
)

const (
	DefaultEndpoint    = "https://www.googleapis.com/pagespeedonline/v5/runPagespeed"
	DefaultTimeout     = 60 * time.Second
	DefaultMaxAttempts = 2
	DefaultBackoff     = 500 * time.Millisecond

	maxResponseBytes = 32 << 20
)

var requestedCategories = []string{"PERFORMANCE", "ACCESSIBILITY", "BEST_PRACTICES", "SEO"}

// APIError is a non-success answer from the PageSpeed API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("pagespeed api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("pagespeed api: status %d: %s", e.StatusCode, e.Message)
}

// QuotaExceeded reports whether the API rejected the call for rate or quota reasons.
func (e *APIError) QuotaExceeded() bool {
	return e != nil && e.StatusCode == http.StatusTooManyRequests
}

func (e *APIError) retryable() bool {
	return e.StatusCode >= http.StatusInternalServerError
}

// IsQuotaExceeded reports whether err carries a quota rejection.
func IsQuotaExceeded(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.QuotaExceeded()
}

// Config configures a Client.
type Config struct {
	Endpoint    string
	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration
	Client      *http.Client
	Logger      *slog.Logger
}

// Client implements core.PerformanceClient.
type Client struct {
	endpoint    string
	maxAttempts int
	backoff     time.Duration
	http        *http.Client
	logger      *slog.Logger
}

var _ core.PerformanceClient = (*Client)(nil)

// New builds a Client, applying defaults for unset fields.
func New(cfg Config) *Client {
	c := &Client{
		endpoint:    strings.TrimSpace(cfg.Endpoint),
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
		http:        cfg.Client,
		logger:      cfg.Logger,
	}
	if c.endpoint == "" {
		c.endpoint = DefaultEndpoint
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = DefaultMaxAttempts
	}
	if c.backoff <= 0 {
		c.backoff = DefaultBackoff
	}
	if c.http == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		c.http = &http.Client{Timeout: timeout}
	}
	if c.logger != nil {
		c.logger = c.logger.With("component", "pagespeed")
	}
	return c
}

// FetchInsights runs one Lighthouse analysis of target. Server errors and transport
// failures are retried up to the configured attempts; quota rejections are not.
func (c *Client) FetchInsights(
	ctx context.Context,
	target, apiKey string,
	strategy model.Strategy,
) (*model.PerformanceMetrics, error) {
	if !strategy.Valid() {
		return nil, fmt.Errorf("unknown strategy %q", strategy)
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("pagespeed api key is required")
	}

	reqURL, err := c.requestURL(target, apiKey, strategy)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		doc, err := c.do(ctx, reqURL)
		if err == nil {
			return extract(doc, strategy)
		}
		lastErr = err
		if !c.shouldRetry(ctx, err) || attempt == c.maxAttempts {
			break
		}
		if c.logger != nil {
			c.logger.DebugContext(ctx, "retrying pagespeed request",
				"strategy", strategy, "attempt", attempt, "error", err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.backoff * time.Duration(attempt)):
		}
	}
	return nil, lastErr
}

func (c *Client) requestURL(target, apiKey string, strategy model.Strategy) (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse pagespeed endpoint: %w", err)
	}
	q := u.Query()
	q.Set("url", target)
	q.Set("key", apiKey)
	q.Set("strategy", string(strategy))
	for _, cat := range requestedCategories {
		q.Add("category", cat)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.retryable()
	}
	var decodeErr *decodeError
	return !errors.As(err, &decodeErr)
}

// redactURLError blanks the key parameter in a *url.Error, whose text carries the full
// request URL. Findings built from the error are served to API clients.
func redactURLError(err error) error {
	var uerr *url.Error
	if !errors.As(err, &uerr) {
		return err
	}
	return &url.Error{Op: uerr.Op, URL: redactKey(uerr.URL), Err: uerr.Err}
}

func redactKey(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "(redacted)"
	}
	q := u.Query()
	if q.Has("key") {
		q.Set("key", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}

type decodeError struct{ err error }

func (e *decodeError) Error() string { return "decode pagespeed response: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

func (c *Client) do(ctx context.Context, reqURL string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create pagespeed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pagespeed request: %w", redactURLError(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read pagespeed response: %w", err)
	}

	var doc any
	if len(body) > 0 {
		if jerr := json.Unmarshal(body, &doc); jerr != nil && resp.StatusCode == http.StatusOK {
			return nil, &decodeError{err: jerr}
		}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: searchString("error.message", doc)}
	}
	if msg := searchString("error.message", doc); msg != "" {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if _, ok := doc.(map[string]any); !ok {
		return nil, &decodeError{err: errors.New("response is not an object")}
	}
	return doc, nil
}

var vitalAudits = []struct {
	key        string
	audit      string
	idealRange string
	scale      float64
}{
	{key: "lcp", audit: "largest-contentful-paint", idealRange: "<= 2.5s", scale: 1000},
	{key: "cls", audit: "cumulative-layout-shift", idealRange: "<= 0.1", scale: 1},
	{key: "inp", audit: "interaction-to-next-paint", idealRange: "<= 200ms", scale: 1},
}

var labAudits = []string{"first-contentful-paint", "total-blocking-time", "speed-index", "interactive"}

var opportunityAudits = []string{
	"unused-css-rules",
	"unused-javascript",
	"modern-image-formats",
	"render-blocking-resources",
}

func extract(doc any, strategy model.Strategy) (*model.PerformanceMetrics, error) {
	if searchValue("lighthouseResult", doc) == nil {
		return nil, &decodeError{err: errors.New("response has no lighthouseResult")}
	}

	out := &model.PerformanceMetrics{
		Strategy:           strategy,
		PerformanceScore:   categoryScore(doc, "performance"),
		AccessibilityScore: categoryScore(doc, "accessibility"),
		BestPracticesScore: categoryScore(doc, "best-practices"),
		SEOScore:           categoryScore(doc, "seo"),
		CoreWebVitals:      make(map[string]model.WebVital, len(vitalAudits)),
		LabMetrics:         make(map[string]model.LabMetric, len(labAudits)),
	}

	for _, v := range vitalAudits {
		audit, ok := auditOf(doc, v.audit)
		if !ok {
			continue
		}
		score := searchFloat("score", audit)
		out.CoreWebVitals[v.key] = model.WebVital{
			Value:        searchFloat("numericValue", audit) / v.scale,
			DisplayValue: searchString("displayValue", audit),
			Score:        score,
			IdealRange:   v.idealRange,
			Status:       model.VitalStatus(score),
		}
	}

	for _, key := range labAudits {
		audit, ok := auditOf(doc, key)
		if !ok {
			continue
		}
		out.LabMetrics[key] = model.LabMetric{
			Value:        searchFloat("numericValue", audit),
			DisplayValue: searchString("displayValue", audit),
			Score:        searchFloat("score", audit),
		}
	}

	for _, key := range opportunityAudits {
		audit, ok := auditOf(doc, key)
		if !ok || searchValue("details", audit) == nil {
			continue
		}
		out.Opportunities = append(out.Opportunities, model.Opportunity{
			ID:          key,
			Title:       searchString("title", audit),
			Description: searchString("description", audit),
			Savings:     searchString("displayValue", audit),
			Score:       searchFloat("score", audit),
		})
	}
	return out, nil
}

// categoryScore returns a Lighthouse category score on a 0-100 scale.
func categoryScore(doc any, category string) float64 {
	return searchFloat(fmt.Sprintf("lighthouseResult.categories.%q.score", category), doc) * 100
}

func auditOf(doc any, key string) (any, bool) {
	v := searchValue(fmt.Sprintf("lighthouseResult.audits.%q", key), doc)
	return v, v != nil
}

func searchValue(expr string, data any) any {
	if data == nil {
		return nil
	}
	v, err := jmespath.Search(expr, data)
	if err != nil {
		return nil
	}
	return v
}

func searchString(expr string, data any) string {
	s, _ := searchValue(expr, data).(string)
	return s
}

func searchFloat(expr string, data any) float64 {
	f, _ := searchValue(expr, data).(float64)
	return f
}
