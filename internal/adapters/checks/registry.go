// Package checks implements the page check collaborators and the registry the audit
// service dispatches through. Every check returns exactly one finding.
package checks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/target/mmk-site-audit/internal/core"
	"github.com/target/mmk-site-audit/internal/domain/model"
)

const (
	DefaultRDAPEndpoint         = "https://rdap.org"
	DefaultLinkCheckLimit       = 20
	DefaultLinkCheckTimeout     = 5 * time.Second
	DefaultLinkCheckConcurrency = 5
	DefaultUserAgent            = "Mozilla/5.0 (compatible; SiteAuditBot/1.0)"
)

// RunFunc is the body of a check.
type RunFunc func(ctx context.Context, page *model.PageContext) (model.Finding, error)

// Func adapts a function to core.Check.
type Func struct {
	name     string
	category model.Category
	run      RunFunc
}

// New wraps fn as a named check in category.
func New(name string, category model.Category, fn RunFunc) *Func {
	return &Func{name: name, category: category, run: fn}
}

func (f *Func) Name() string             { return f.name }
func (f *Func) Category() model.Category { return f.category }

// Run executes the check and stamps the finding with its name and category.
func (f *Func) Run(ctx context.Context, page *model.PageContext) (model.Finding, error) {
	if f.run == nil {
		return model.Finding{}, errors.New("check has no implementation")
	}
	finding, err := f.run(ctx, page)
	if err != nil {
		return model.Finding{}, err
	}
	finding.Category = f.category
	finding.Check = f.name
	return finding, nil
}

// Registry is the fixed, ordered set of checks fanned out per audit.
type Registry struct {
	checks []core.Check
}

var _ core.CheckRegistry = (*Registry)(nil)

// NewRegistry validates and orders checks by category then name.
// Nil checks, unknown categories and duplicate names are rejected.
func NewRegistry(checks ...core.Check) (*Registry, error) {
	seen := make(map[string]struct{}, len(checks))
	out := make([]core.Check, 0, len(checks))
	for _, c := range checks {
		if c == nil {
			return nil, errors.New("nil check")
		}
		name := strings.TrimSpace(c.Name())
		if name == "" {
			return nil, errors.New("check name is required")
		}
		if !c.Category().Valid() {
			return nil, fmt.Errorf("check %s: unknown category %q", name, c.Category())
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate check %s", name)
		}
		seen[name] = struct{}{}
		out = append(out, c)
	}

	order := make(map[model.Category]int, len(model.Categories))
	for i, cat := range model.Categories {
		order[cat] = i
	}
	sort.SliceStable(out, func(i, j int) bool {
		ci, cj := order[out[i].Category()], order[out[j].Category()]
		if ci != cj {
			return ci < cj
		}
		return out[i].Name() < out[j].Name()
	})
	return &Registry{checks: out}, nil
}

// Checks returns the registered checks.
func (r *Registry) Checks() []core.Check {
	if r == nil {
		return nil
	}
	out := make([]core.Check, len(r.checks))
	copy(out, r.checks)
	return out
}

// Names lists check names in dispatch order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.checks))
	for _, c := range r.checks {
		names = append(names, c.Name())
	}
	return names
}

// Options configures the built-in checks.
type Options struct {
	Client               *http.Client
	UserAgent            string
	RDAPEndpoint         string
	LinkCheckLimit       int
	LinkCheckTimeout     time.Duration
	LinkCheckConcurrency int
}

// suite carries shared dependencies for the built-in checks.
type suite struct {
	client         *http.Client
	userAgent      string
	rdapEndpoint   string
	linkLimit      int
	linkTimeout    time.Duration
	linkConcurrent int
}

func newSuite(opts Options) *suite {
	s := &suite{
		client:         opts.Client,
		userAgent:      strings.TrimSpace(opts.UserAgent),
		rdapEndpoint:   strings.TrimRight(strings.TrimSpace(opts.RDAPEndpoint), "/"),
		linkLimit:      opts.LinkCheckLimit,
		linkTimeout:    opts.LinkCheckTimeout,
		linkConcurrent: opts.LinkCheckConcurrency,
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: 15 * time.Second}
	}
	if s.userAgent == "" {
		s.userAgent = DefaultUserAgent
	}
	if s.rdapEndpoint == "" {
		s.rdapEndpoint = DefaultRDAPEndpoint
	}
	if s.linkLimit <= 0 {
		s.linkLimit = DefaultLinkCheckLimit
	}
	if s.linkTimeout <= 0 {
		s.linkTimeout = DefaultLinkCheckTimeout
	}
	if s.linkConcurrent <= 0 {
		s.linkConcurrent = DefaultLinkCheckConcurrency
	}
	return s
}

// DefaultRegistry builds the registry of every built-in check.
func DefaultRegistry(opts Options) (*Registry, error) {
	s := newSuite(opts)
	return NewRegistry(
		// technical
		New("response_time", model.CategoryTechnical, s.responseTime),
		New("https_ssl", model.CategoryTechnical, s.httpsSSL),
		New("mobile_friendly", model.CategoryTechnical, s.mobileFriendly),
		New("indexability", model.CategoryTechnical, s.indexability),
		New("xml_sitemap", model.CategoryTechnical, s.xmlSitemap),
		New("robots_txt", model.CategoryTechnical, s.robotsTxt),
		New("canonical_tags", model.CategoryTechnical, s.canonicalTags),
		New("structured_data", model.CategoryTechnical, s.structuredData),
		New("broken_links", model.CategoryTechnical, s.brokenLinks),
		// on-page
		New("title_tags", model.CategoryOnPage, s.titleTags),
		New("meta_description", model.CategoryOnPage, s.metaDescription),
		New("heading_structure", model.CategoryOnPage, s.headingStructure),
		New("image_optimization", model.CategoryOnPage, s.imageOptimization),
		New("internal_linking", model.CategoryOnPage, s.internalLinking),
		New("content_analysis", model.CategoryOnPage, s.contentAnalysis),
		// off-page
		New("domain_authority", model.CategoryOffPage, s.domainAuthority),
		New("social_signals", model.CategoryOffPage, s.socialSignals),
		// ux
		New("navigation", model.CategoryUX, s.navigation),
		New("accessibility", model.CategoryUX, s.accessibility),
		New("responsive_design", model.CategoryUX, s.responsiveDesign),
		// security
		New("security_headers", model.CategorySecurity, s.securityHeaders),
		New("performance_enhancements", model.CategorySecurity, s.performanceEnhancements),
	)
}

func finding(status model.FindingStatus, metrics map[string]any, recommendation string) model.Finding {
	return model.Finding{Status: status, Metrics: metrics, Recommendation: recommendation}
}

// referenceTime is the instant checks measure ages against.
func referenceTime(page *model.PageContext) time.Time {
	if page != nil && !page.FetchedAt.IsZero() {
		return page.FetchedAt
	}
	return time.Now().UTC()
}
