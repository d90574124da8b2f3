package checks

import (
	"context"
	"fmt"
	"math"
	"strings"

	"golang.org/x/net/html/atom"

	"github.com/target/mmk-site-audit/internal/domain/model"
)

var securityHeaders = []struct {
	key    string
	header string
}{
	{"content_security_policy", "Content-Security-Policy"},
	{"x_frame_options", "X-Frame-Options"},
	{"x_content_type_options", "X-Content-Type-Options"},
	{"strict_transport_security", "Strict-Transport-Security"},
	{"referrer_policy", "Referrer-Policy"},
	{"x_xss_protection", "X-XSS-Protection"},
}

var cdnIndicators = []string{"cloudflare", "amazonaws", "cloudfront", "azure", "googleusercontent", "fastly", "akamai", "maxcdn"}

const (
	securityHeadersGood    = 4
	securityHeadersWarning = 2
	enhancementsGood       = 70
	enhancementsWarning    = 40
)

func (s *suite) securityHeaders(_ context.Context, page *model.PageContext) (model.Finding, error) {
	found := make(map[string]any, len(securityHeaders))
	var missing []string
	present := 0
	for _, h := range securityHeaders {
		v := strings.TrimSpace(page.Header.Get(h.header))
		if v == "" {
			found[h.key] = nil
			missing = append(missing, h.header)
			continue
		}
		found[h.key] = v
		present++
	}

	metrics := map[string]any{
		"security_headers": found,
		"headers_present":  present,
		"total_possible":   len(securityHeaders),
		"security_score":   math.Round(float64(present)/float64(len(securityHeaders))*1000) / 10,
	}
	recommendation := "All recommended security headers are present"
	if len(missing) > 0 {
		recommendation = fmt.Sprintf("Implement %d missing security headers: %s", len(missing), strings.Join(missing, ", "))
	}
	switch {
	case present >= securityHeadersGood:
		return finding(model.FindingGood, metrics, recommendation), nil
	case present >= securityHeadersWarning:
		return finding(model.FindingWarning, metrics, recommendation), nil
	default:
		return finding(model.FindingCritical, metrics, recommendation), nil
	}
}

func (s *suite) performanceEnhancements(_ context.Context, page *model.PageContext) (model.Finding, error) {
	doc, err := document(page)
	if err != nil {
		return model.Finding{}, err
	}

	encoding := page.ContentEncoding
	if encoding == "" {
		encoding = strings.ToLower(page.Header.Get("Content-Encoding"))
	}
	compressed := strings.Contains(encoding, "gzip") || strings.Contains(encoding, "br")
	cacheControl := page.Header.Get("Cache-Control") != ""
	etag := page.Header.Get("ETag") != ""
	lastModified := page.Header.Get("Last-Modified") != ""

	lazy := 0
	for _, img := range elements(doc, atom.Img) {
		if strings.EqualFold(attrValue(img, "loading"), "lazy") {
			lazy++
		}
	}
	server := strings.ToLower(page.Header.Get("Server"))
	cdn := false
	for _, indicator := range cdnIndicators {
		if strings.Contains(server, indicator) {
			cdn = true
			break
		}
	}

	score := 0
	for _, part := range []struct {
		on     bool
		points int
	}{
		{compressed, 20},
		{cacheControl, 20},
		{etag, 15},
		{lastModified, 15},
		{lazy > 0, 15},
		{cdn, 15},
	} {
		if part.on {
			score += part.points
		}
	}

	metrics := map[string]any{
		"compression":         compressed,
		"content_encoding":    encoding,
		"cache_control":       cacheControl,
		"etag":                etag,
		"last_modified":       lastModified,
		"lazy_loading_images": lazy,
		"cdn_usage":           cdn,
		"performance_score":   score,
	}
	switch {
	case score >= enhancementsGood:
		return finding(model.FindingGood, metrics, "Good performance optimizations"), nil
	case score >= enhancementsWarning:
		return finding(model.FindingWarning, metrics, "Implement performance optimizations"), nil
	default:
		return finding(model.FindingCritical, metrics,
			"Enable compression and caching headers and lazy-load images"), nil
	}
}
