// Package fetcher retrieves audit target pages over HTTP and captures the response
// details the checks inspect (headers, TLS, timing and the raw body).
package fetcher

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"strings"
	"time"

	"github.com/target/mmk-site-audit/internal/core"
	"github.com/target/mmk-site-audit/internal/domain/model"
)

const (
	DefaultTimeout      = 30 * time.Second
	DefaultUserAgent    = "Mozilla/5.0 (compatible; SiteAuditBot/1.0)"
	DefaultMaxBodyBytes = 5 << 20
)

// FetchError reports a page that could not be retrieved. It fails the whole audit.
type FetchError struct {
	URL        string
	StatusCode int
	Cause      error
}

func (e *FetchError) Error() string {
	switch {
	case e.Cause != nil:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Cause)
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	default:
		return "fetch " + e.URL + ": failed"
	}
}

func (e *FetchError) Unwrap() error { return e.Cause }

// Config configures a Fetcher.
type Config struct {
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64
	Client       *http.Client
}

// Fetcher implements core.PageFetcher.
type Fetcher struct {
	client       *http.Client
	userAgent    string
	maxBodyBytes int64
	now          func() time.Time
}

var _ core.PageFetcher = (*Fetcher)(nil)

// New builds a Fetcher, applying defaults for unset fields.
func New(cfg Config) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = DefaultUserAgent
	}
	limit := cfg.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	return &Fetcher{client: hc, userAgent: ua, maxBodyBytes: limit, now: time.Now}
}

// FetchPage GETs the target, following redirects, and returns its PageContext.
// Any transport error or a status of 400 and above is a *FetchError.
func (f *Fetcher) FetchPage(ctx context.Context, url string) (*model.PageContext, error) {
	var firstByte time.Time
	trace := &httptrace.ClientTrace{
		GotFirstResponseByte: func() { firstByte = f.now() },
	}

	req, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, trace), http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Cause: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	start := f.now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes))
	if err != nil {
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode, Cause: fmt.Errorf("read body: %w", err)}
	}
	end := f.now()

	page := &model.PageContext{
		URL:             url,
		FinalURL:        resp.Request.URL.String(),
		StatusCode:      resp.StatusCode,
		Header:          resp.Header.Clone(),
		Body:            body,
		TLS:             pageTLS(resp.TLS),
		ContentEncoding: contentEncoding(resp),
		Timing:          model.PageTiming{Total: end.Sub(start)},
		FetchedAt:       end.UTC(),
	}
	if !firstByte.IsZero() {
		page.Timing.TTFB = firstByte.Sub(start)
	} else {
		page.Timing.TTFB = page.Timing.Total
	}
	return page, nil
}

func pageTLS(state *tls.ConnectionState) *model.PageTLS {
	if state == nil {
		return nil
	}
	out := &model.PageTLS{Version: tls.VersionName(state.Version)}
	if len(state.PeerCertificates) > 0 {
		leaf := state.PeerCertificates[0]
		out.CertExpiresAt = leaf.NotAfter.UTC()
		out.Issuer = leaf.Issuer.CommonName
		if out.Issuer == "" && len(leaf.Issuer.Organization) > 0 {
			out.Issuer = leaf.Issuer.Organization[0]
		}
	}
	return out
}

func contentEncoding(resp *http.Response) string {
	if enc := strings.TrimSpace(resp.Header.Get("Content-Encoding")); enc != "" {
		return strings.ToLower(enc)
	}
	if resp.Uncompressed {
		return "gzip"
	}
	return ""
}

// IsFetchError reports whether err is a page fetch failure.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
