package checks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-site-audit/internal/domain/model"
	"github.com/target/mmk-site-audit/internal/testutil"
)

func TestSecurityHeaders(t *testing.T) {
	s := newSuite(Options{})
	tests := []struct {
		name    string
		headers map[string]string
		want    model.FindingStatus
		score   float64
	}{
		{
			name: "all present",
			headers: map[string]string{
				"Content-Security-Policy":   "default-src 'self'",
				"X-Frame-Options":           "DENY",
				"X-Content-Type-Options":    "nosniff",
				"Strict-Transport-Security": "max-age=63072000",
				"Referrer-Policy":           "no-referrer",
				"X-XSS-Protection":          "1; mode=block",
			},
			want:  model.FindingGood,
			score: 100,
		},
		{
			name: "four present",
			headers: map[string]string{
				"X-Frame-Options":           "DENY",
				"X-Content-Type-Options":    "nosniff",
				"Strict-Transport-Security": "max-age=63072000",
				"Referrer-Policy":           "no-referrer",
			},
			want:  model.FindingGood,
			score: 66.7,
		},
		{
			name:    "two present",
			headers: map[string]string{"X-Frame-Options": "DENY", "X-Content-Type-Options": "nosniff"},
			want:    model.FindingWarning,
			score:   33.3,
		},
		{name: "one present", headers: map[string]string{"X-Frame-Options": "DENY"}, want: model.FindingCritical, score: 16.7},
		{name: "blank values ignored", headers: map[string]string{"X-Frame-Options": "  "}, want: model.FindingCritical, score: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := testutil.NewPage("https://example.com/")
			for k, v := range tt.headers {
				b.WithHeader(k, v)
			}
			f, err := s.securityHeaders(context.Background(), b.Build())
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Status)
			assert.Equal(t, tt.score, f.Metrics["security_score"])
		})
	}
}

func TestSecurityHeadersRecommendation(t *testing.T) {
	page := testutil.NewPage("https://example.com/").
		WithHeader("Content-Security-Policy", "default-src 'self'").
		WithHeader("X-Frame-Options", "DENY").
		WithHeader("X-Content-Type-Options", "nosniff").
		WithHeader("Strict-Transport-Security", "max-age=1").
		Build()

	f, err := newSuite(Options{}).securityHeaders(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, "Implement 2 missing security headers: Referrer-Policy, X-XSS-Protection", f.Recommendation)
}

func TestPerformanceEnhancements(t *testing.T) {
	s := newSuite(Options{})

	t.Run("fully optimised", func(t *testing.T) {
		page := testutil.NewPage("https://example.com/").
			WithHTML(`<img src="a.png" loading="lazy">`).
			WithHeader("Cache-Control", "max-age=600").
			WithHeader("ETag", `"abc"`).
			WithHeader("Last-Modified", "Wed, 01 Jan 2025 00:00:00 GMT").
			WithHeader("Server", "cloudflare").
			Build()
		page.ContentEncoding = "gzip"

		f, err := s.performanceEnhancements(context.Background(), page)
		require.NoError(t, err)
		assert.Equal(t, model.FindingGood, f.Status)
		assert.Equal(t, 100, f.Metrics["performance_score"])
		assert.Equal(t, true, f.Metrics["cdn_usage"])
	})

	t.Run("header encoding fallback", func(t *testing.T) {
		page := testutil.NewPage("https://example.com/").
			WithHTML(`<p>x</p>`).
			WithHeader("Content-Encoding", "br").
			WithHeader("Cache-Control", "no-cache").
			Build()

		f, err := s.performanceEnhancements(context.Background(), page)
		require.NoError(t, err)
		assert.Equal(t, model.FindingWarning, f.Status)
		assert.Equal(t, 40, f.Metrics["performance_score"])
		assert.Equal(t, true, f.Metrics["compression"])
	})

	t.Run("nothing enabled", func(t *testing.T) {
		f, err := s.performanceEnhancements(context.Background(), htmlPage(`<img src="a.png">`))
		require.NoError(t, err)
		assert.Equal(t, model.FindingCritical, f.Status)
		assert.Equal(t, 0, f.Metrics["performance_score"])
		assert.Equal(t, 0, f.Metrics["lazy_loading_images"])
	})
}
