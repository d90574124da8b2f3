package checks

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/sync/errgroup"

	"github.com/target/mmk-site-audit/internal/domain/model"
)

const (
	certExpiryWarningDays = 14
	robotsSnippetBytes    = 500
)

func (s *suite) responseTime(_ context.Context, page *model.PageContext) (model.Finding, error) {
	ttfb := page.Timing.TTFB.Seconds()
	metrics := map[string]any{
		"ttfb_ms":  page.Timing.TTFB.Milliseconds(),
		"total_ms": page.Timing.Total.Milliseconds(),
	}
	switch {
	case ttfb < 1:
		return finding(model.FindingGood, metrics, "Good response time"), nil
	case ttfb < 3:
		return finding(model.FindingWarning, metrics, "Optimize server response time"), nil
	default:
		return finding(model.FindingCritical, metrics, "Server response time is too slow; investigate hosting and caching"), nil
	}
}

func (s *suite) httpsSSL(_ context.Context, page *model.PageContext) (model.Finding, error) {
	if !page.IsHTTPS() {
		return finding(model.FindingCritical, map[string]any{"is_https": false},
			"Ensure HTTPS is properly implemented"), nil
	}

	metrics := map[string]any{
		"is_https":    true,
		"tls_version": page.TLS.Version,
		"issuer":      page.TLS.Issuer,
	}
	if page.TLS.CertExpiresAt.IsZero() {
		return finding(model.FindingGood, metrics, "HTTPS properly implemented"), nil
	}

	days := int(page.TLS.CertExpiresAt.Sub(referenceTime(page)).Hours() / 24)
	metrics["days_until_expiry"] = days
	if days <= certExpiryWarningDays {
		return finding(model.FindingWarning, metrics,
			fmt.Sprintf("TLS certificate expires in %d days; renew it", days)), nil
	}
	return finding(model.FindingGood, metrics, "HTTPS properly implemented"), nil
}

func (s *suite) mobileFriendly(_ context.Context, page *model.PageContext) (model.Finding, error) {
	doc, err := document(page)
	if err != nil {
		return model.Finding{}, err
	}
	viewport, ok := meta(doc, "viewport")
	metrics := map[string]any{"has_viewport_meta": ok, "viewport_content": viewport}
	if !ok {
		return finding(model.FindingCritical, metrics, "Add viewport meta tag for mobile optimization"), nil
	}
	return finding(model.FindingGood, metrics, "Viewport meta tag found"), nil
}

func (s *suite) indexability(_ context.Context, page *model.PageContext) (model.Finding, error) {
	doc, err := document(page)
	if err != nil {
		return model.Finding{}, err
	}
	robotsMeta, _ := meta(doc, "robots")
	header := page.Header.Get("X-Robots-Tag")
	noindex := strings.Contains(strings.ToLower(robotsMeta), "noindex") ||
		strings.Contains(strings.ToLower(header), "noindex")

	metrics := map[string]any{"robots_meta": robotsMeta, "x_robots_tag": header, "noindex": noindex}
	if noindex {
		return finding(model.FindingCritical, metrics, "Remove noindex directive"), nil
	}
	return finding(model.FindingGood, metrics, "Page allows indexing"), nil
}

func (s *suite) xmlSitemap(ctx context.Context, page *model.PageContext) (model.Finding, error) {
	return s.wellKnownFile(ctx, page, wellKnown{
		path:    "/sitemap.xml",
		good:    "XML sitemap found",
		missing: "Create and submit XML sitemap",
	})
}

func (s *suite) robotsTxt(ctx context.Context, page *model.PageContext) (model.Finding, error) {
	return s.wellKnownFile(ctx, page, wellKnown{
		path:      "/robots.txt",
		good:      "Robots.txt found",
		missing:   "Create robots.txt file",
		keepBytes: robotsSnippetBytes,
	})
}

type wellKnown struct {
	path      string
	good      string
	missing   string
	keepBytes int64
}

// wellKnownFile probes a site-root file; a 200 is good, anything else a warning.
func (s *suite) wellKnownFile(ctx context.Context, page *model.PageContext, wk wellKnown) (model.Finding, error) {
	base, err := baseURL(page)
	if err != nil {
		return model.Finding{}, err
	}
	target := base.Scheme + "://" + base.Host + wk.path

	status, body, err := s.fetchStatus(ctx, http.MethodGet, target, wk.keepBytes)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return model.Finding{}, ctxErr
	}
	metrics := map[string]any{"url": target, "exists": err == nil && status == http.StatusOK}
	if err != nil {
		metrics["error"] = err.Error()
		return finding(model.FindingWarning, metrics, wk.missing), nil
	}
	metrics["status_code"] = status
	if status != http.StatusOK {
		return finding(model.FindingWarning, metrics, wk.missing), nil
	}
	if wk.keepBytes > 0 {
		metrics["content"] = string(body)
	}
	return finding(model.FindingGood, metrics, wk.good), nil
}

func (s *suite) canonicalTags(_ context.Context, page *model.PageContext) (model.Finding, error) {
	doc, err := document(page)
	if err != nil {
		return model.Finding{}, err
	}
	for _, link := range elements(doc, atom.Link) {
		if hasRel(link, "canonical") {
			href := attrValue(link, "href")
			return finding(model.FindingGood, map[string]any{"has_canonical": true, "canonical_url": href},
				"Canonical tag implemented"), nil
		}
	}
	return finding(model.FindingWarning, map[string]any{"has_canonical": false},
		"Add canonical tag to prevent duplicate content issues"), nil
}

func (s *suite) structuredData(_ context.Context, page *model.PageContext) (model.Finding, error) {
	doc, err := document(page)
	if err != nil {
		return model.Finding{}, err
	}

	jsonLD := 0
	for _, script := range elements(doc, atom.Script) {
		if strings.EqualFold(attrValue(script, "type"), "application/ld+json") {
			jsonLD++
		}
	}
	microdata, rdfa := 0, 0
	walk(doc, func(n *html.Node) bool {
		if _, ok := attr(n, "itemtype"); ok {
			microdata++
		}
		if _, ok := attr(n, "property"); ok && n.DataAtom != atom.Meta {
			rdfa++
		}
		return true
	})

	total := jsonLD + microdata + rdfa
	metrics := map[string]any{
		"json_ld":       jsonLD,
		"microdata":     microdata,
		"rdfa":          rdfa,
		"total_schemas": total,
	}
	if total == 0 {
		return finding(model.FindingWarning, metrics, "Add structured data markup"), nil
	}
	return finding(model.FindingGood, metrics, "Structured data found"), nil
}

func (s *suite) brokenLinks(ctx context.Context, page *model.PageContext) (model.Finding, error) {
	doc, err := document(page)
	if err != nil {
		return model.Finding{}, err
	}
	base, err := baseURL(page)
	if err != nil {
		return model.Finding{}, err
	}

	var targets []string
	for _, a := range elements(doc, atom.A) {
		href, ok := attr(a, "href")
		if !ok || skippedLink(href) {
			continue
		}
		ref, perr := base.Parse(strings.TrimSpace(href))
		if perr != nil || (ref.Scheme != "http" && ref.Scheme != "https") {
			continue
		}
		ref.Fragment = ""
		targets = append(targets, ref.String())
		if len(targets) == s.linkLimit {
			break
		}
	}

	broken := make([]string, len(targets))
	var brokenCount atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.linkConcurrent)
	for i, target := range targets {
		g.Go(func() error {
			if s.linkBroken(gctx, target) {
				broken[i] = target
				brokenCount.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return model.Finding{}, ctxErr
	}

	brokenURLs := make([]string, 0, brokenCount.Load())
	for _, b := range broken {
		if b != "" {
			brokenURLs = append(brokenURLs, b)
		}
	}
	metrics := map[string]any{
		"checked":      len(targets),
		"broken_count": len(brokenURLs),
		"broken_urls":  brokenURLs,
	}
	if len(brokenURLs) > 0 {
		return finding(model.FindingWarning, metrics, fmt.Sprintf("Fix %d broken links", len(brokenURLs))), nil
	}
	return finding(model.FindingGood, metrics, "No broken links found"), nil
}

func (s *suite) linkBroken(ctx context.Context, target string) bool {
	ctx, cancel := context.WithTimeout(ctx, s.linkTimeout)
	defer cancel()
	status, _, err := s.fetchStatus(ctx, http.MethodHead, target, 0)
	return err != nil || status >= http.StatusBadRequest
}
