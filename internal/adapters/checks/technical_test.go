package checks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-site-audit/internal/domain/model"
	"github.com/target/mmk-site-audit/internal/testutil"
)

func TestResponseTime(t *testing.T) {
	tests := []struct {
		ttfb time.Duration
		want model.FindingStatus
	}{
		{ttfb: 200 * time.Millisecond, want: model.FindingGood},
		{ttfb: 999 * time.Millisecond, want: model.FindingGood},
		{ttfb: time.Second, want: model.FindingWarning},
		{ttfb: 2900 * time.Millisecond, want: model.FindingWarning},
		{ttfb: 3 * time.Second, want: model.FindingCritical},
	}
	s := newSuite(Options{})
	for _, tt := range tests {
		t.Run(tt.ttfb.String(), func(t *testing.T) {
			page := testutil.NewPage("https://example.com/").WithTiming(tt.ttfb, tt.ttfb+time.Second).Build()
			f, err := s.responseTime(context.Background(), page)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Status)
			assert.Equal(t, tt.ttfb.Milliseconds(), f.Metrics["ttfb_ms"])
		})
	}
}

func TestHTTPSSSL(t *testing.T) {
	s := newSuite(Options{})

	t.Run("plain http is critical", func(t *testing.T) {
		f, err := s.httpsSSL(context.Background(), testutil.NewPage("http://example.com/").WithoutTLS().Build())
		require.NoError(t, err)
		assert.Equal(t, model.FindingCritical, f.Status)
		assert.Equal(t, false, f.Metrics["is_https"])
	})

	t.Run("valid certificate", func(t *testing.T) {
		f, err := s.httpsSSL(context.Background(), testutil.NewPage("https://example.com/").Build())
		require.NoError(t, err)
		assert.Equal(t, model.FindingGood, f.Status)
		assert.Equal(t, "TLS 1.3", f.Metrics["tls_version"])
	})

	t.Run("expiring certificate", func(t *testing.T) {
		page := testutil.NewPage("https://example.com/").Build()
		page.TLS.CertExpiresAt = testutil.TestTime().Add(10 * 24 * time.Hour)
		f, err := s.httpsSSL(context.Background(), page)
		require.NoError(t, err)
		assert.Equal(t, model.FindingWarning, f.Status)
		assert.Equal(t, 10, f.Metrics["days_until_expiry"])
	})
}

func TestMobileFriendly(t *testing.T) {
	s := newSuite(Options{})

	with := testutil.NewPage("https://example.com/").
		WithHTML(`<html><head><meta name="viewport" content="width=device-width"></head></html>`).Build()
	f, err := s.mobileFriendly(context.Background(), with)
	require.NoError(t, err)
	assert.Equal(t, model.FindingGood, f.Status)
	assert.Equal(t, "width=device-width", f.Metrics["viewport_content"])

	without := testutil.NewPage("https://example.com/").WithHTML(`<html><head></head></html>`).Build()
	f, err = s.mobileFriendly(context.Background(), without)
	require.NoError(t, err)
	assert.Equal(t, model.FindingCritical, f.Status)
}

func TestIndexability(t *testing.T) {
	s := newSuite(Options{})
	tests := []struct {
		name   string
		html   string
		header string
		want   model.FindingStatus
	}{
		{name: "indexable", html: `<meta name="robots" content="index, follow">`, want: model.FindingGood},
		{name: "meta noindex", html: `<meta name="robots" content="NOINDEX">`, want: model.FindingCritical},
		{name: "header noindex", html: `<p>hi</p>`, header: "noindex, nofollow", want: model.FindingCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := testutil.NewPage("https://example.com/").WithHTML(tt.html)
			if tt.header != "" {
				b.WithHeader("X-Robots-Tag", tt.header)
			}
			f, err := s.indexability(context.Background(), b.Build())
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Status)
		})
	}
}

func TestWellKnownFiles(t *testing.T) {
	robots := strings.Repeat("a", 600)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			_, _ = w.Write([]byte(robots))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s := newSuite(Options{Client: srv.Client()})
	page := testutil.NewPage(srv.URL + "/some/page").Build()

	f, err := s.robotsTxt(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, model.FindingGood, f.Status)
	assert.Equal(t, true, f.Metrics["exists"])
	assert.Len(t, f.Metrics["content"], robotsSnippetBytes)

	f, err = s.xmlSitemap(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, model.FindingWarning, f.Status)
	assert.Equal(t, http.StatusNotFound, f.Metrics["status_code"])
	assert.Equal(t, srv.URL+"/sitemap.xml", f.Metrics["url"])
}

func TestWellKnownFileUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	s := newSuite(Options{Client: &http.Client{Timeout: time.Second}})
	f, err := s.xmlSitemap(context.Background(), testutil.NewPage(addr+"/").Build())
	require.NoError(t, err)
	assert.Equal(t, model.FindingWarning, f.Status)
	assert.Contains(t, f.Metrics, "error")
}

func TestCanonicalTags(t *testing.T) {
	s := newSuite(Options{})

	page := testutil.NewPage("https://example.com/").
		WithHTML(`<head><link rel="alternate stylesheet" href="/x.css"><link rel="Canonical" href="https://example.com/"></head>`).Build()
	f, err := s.canonicalTags(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, model.FindingGood, f.Status)
	assert.Equal(t, "https://example.com/", f.Metrics["canonical_url"])

	f, err = s.canonicalTags(context.Background(), testutil.NewPage("https://example.com/").WithHTML(`<p>x</p>`).Build())
	require.NoError(t, err)
	assert.Equal(t, model.FindingWarning, f.Status)
}

func TestStructuredData(t *testing.T) {
	s := newSuite(Options{})
	page := testutil.NewPage("https://example.com/").WithHTML(`
		<script type="application/ld+json">{"@type":"Organization"}</script>
		<div itemscope itemtype="https://schema.org/Product"><span property="name">x</span></div>
		<meta property="og:title" content="ignored">`).Build()

	f, err := s.structuredData(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, model.FindingGood, f.Status)
	assert.Equal(t, 1, f.Metrics["json_ld"])
	assert.Equal(t, 1, f.Metrics["microdata"])
	assert.Equal(t, 1, f.Metrics["rdfa"])
	assert.Equal(t, 3, f.Metrics["total_schemas"])

	f, err = s.structuredData(context.Background(), testutil.NewPage("https://example.com/").WithHTML(`<p>plain</p>`).Build())
	require.NoError(t, err)
	assert.Equal(t, model.FindingWarning, f.Status)
}

func TestBrokenLinks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ok" || r.URL.Path == "/also-ok" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	page := testutil.NewPage(srv.URL + "/").WithHTML(`
		<a href="/ok">ok</a>
		<a href="also-ok#section">relative</a>
		<a href="/missing">missing</a>
		<a href="#top">skip</a>
		<a href="mailto:x@example.com">mail</a>
		<a href="ftp://example.com/file">ftp</a>`).Build()

	s := newSuite(Options{Client: srv.Client()})
	f, err := s.brokenLinks(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, model.FindingWarning, f.Status)
	assert.Equal(t, 3, f.Metrics["checked"])
	assert.Equal(t, 1, f.Metrics["broken_count"])
	assert.Equal(t, []string{srv.URL + "/missing"}, f.Metrics["broken_urls"])
}

func TestBrokenLinksRespectsLimit(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var body strings.Builder
	for i := 0; i < 10; i++ {
		body.WriteString(`<a href="/p` + string(rune('a'+i)) + `">x</a>`)
	}
	s := newSuite(Options{Client: srv.Client(), LinkCheckLimit: 4, LinkCheckConcurrency: 1})
	f, err := s.brokenLinks(context.Background(), testutil.NewPage(srv.URL+"/").WithHTML(body.String()).Build())
	require.NoError(t, err)
	assert.Equal(t, model.FindingGood, f.Status)
	assert.Equal(t, 4, f.Metrics["checked"])
	assert.EqualValues(t, 4, hits.Load())
}

func TestBrokenLinksCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	page := testutil.NewPage("https://example.com/").WithHTML(`<a href="/a">a</a>`).Build()
	_, err := newSuite(Options{}).brokenLinks(ctx, page)
	require.ErrorIs(t, err, context.Canceled)
}
