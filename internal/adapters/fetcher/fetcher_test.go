package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetcher_FetchPage(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		if r.URL.Path == "/old" {
			http.Redirect(w, r, "/new", http.StatusMovedPermanently)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("X-Frame-Options", "DENY")
		_, _ = w.Write([]byte("<html><head><title>Hi</title></head></html>"))
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "audit-test"})
	page, err := f.FetchPage(context.Background(), srv.URL+"/old")
	require.NoError(t, err)

	assert.Equal(t, "audit-test", gotUA)
	assert.Equal(t, srv.URL+"/old", page.URL)
	assert.Equal(t, srv.URL+"/new", page.FinalURL)
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Equal(t, "DENY", page.Header.Get("X-Frame-Options"))
	assert.Contains(t, string(page.Body), "<title>Hi</title>")
	assert.Nil(t, page.TLS, "plain http has no TLS state")
	assert.False(t, page.IsHTTPS())
	assert.GreaterOrEqual(t, page.Timing.Total, page.Timing.TTFB)
}

func TestFetcher_TLS(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	f := New(Config{Client: srv.Client()})
	page, err := f.FetchPage(context.Background(), srv.URL)
	require.NoError(t, err)
	require.NotNil(t, page.TLS)
	assert.True(t, strings.HasPrefix(page.TLS.Version, "TLS"))
	assert.True(t, page.TLS.CertExpiresAt.After(time.Now()))
}

func TestFetcher_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(Config{}).FetchPage(context.Background(), srv.URL)
	require.Error(t, err)
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)
	assert.True(t, IsFetchError(err))
}

func TestFetcher_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := srv.URL
	srv.Close()

	_, err := New(Config{Timeout: time.Second}).FetchPage(context.Background(), addr)
	require.Error(t, err)
	assert.True(t, IsFetchError(err))
}

func TestFetcher_BodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", 1000)))
	}))
	defer srv.Close()

	page, err := New(Config{MaxBodyBytes: 100}).FetchPage(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, page.Body, 100)
}

func TestFetcher_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := New(Config{}).FetchPage(ctx, srv.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
