package checks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-site-audit/internal/domain/model"
	"github.com/target/mmk-site-audit/internal/testutil"
)

func rdapServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/domain/example.co.uk" {
			http.NotFound(w, r)
			return
		}
		assert.Contains(t, r.Header.Get("Accept"), "application/rdap+json")
		w.Header().Set("Content-Type", "application/rdap+json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDomainAuthority(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		want      model.FindingStatus
		registrar any
		wantErr   string
	}{
		{
			name: "established",
			body: `{"events":[{"eventAction":"last changed","eventDate":"2024-01-01T00:00:00Z"},
				{"eventAction":"registration","eventDate":"2010-06-01T00:00:00Z"}],
				"entities":[{"handle":"R-1","roles":["registrant"]},{"handle":"REG-42","roles":["registrar"]}]}`,
			want:      model.FindingGood,
			registrar: "REG-42",
		},
		{
			name:      "young domain",
			body:      `{"events":[{"eventAction":"registration","eventDate":"2024-10-01T00:00:00Z"}]}`,
			want:      model.FindingWarning,
			registrar: nil,
		},
		{name: "no registration event", body: `{"events":[]}`, wantErr: "no registration date"},
		{name: "not an object", body: `[1,2]`, wantErr: "not an object"},
		{
			name:    "bad date",
			body:    `{"events":[{"eventAction":"registration","eventDate":"June 2010"}]}`,
			wantErr: "parse rdap registration date",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := rdapServer(t, http.StatusOK, tt.body)
			s := newSuite(Options{Client: srv.Client(), RDAPEndpoint: srv.URL})
			page := testutil.NewPage("https://www.example.co.uk/").Build()

			f, err := s.domainAuthority(context.Background(), page)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Status)
			assert.Equal(t, "example.co.uk", f.Metrics["domain"])
			assert.Equal(t, tt.registrar, f.Metrics["registrar"])
		})
	}
}

func TestDomainAuthorityAge(t *testing.T) {
	srv := rdapServer(t, http.StatusOK, `{"events":[{"eventAction":"registration","eventDate":"2015-01-01T12:00:00Z"}]}`)
	s := newSuite(Options{Client: srv.Client(), RDAPEndpoint: srv.URL})

	f, err := s.domainAuthority(context.Background(), testutil.NewPage("https://example.co.uk/").Build())
	require.NoError(t, err)
	assert.Equal(t, 3653, f.Metrics["domain_age_days"])
	assert.Equal(t, 10.0, f.Metrics["domain_age_years"])
	assert.Equal(t, "2015-01-01T12:00:00Z", f.Metrics["registered_at"])
}

func TestDomainAuthorityLookupFailure(t *testing.T) {
	srv := rdapServer(t, http.StatusTooManyRequests, `{}`)
	s := newSuite(Options{Client: srv.Client(), RDAPEndpoint: srv.URL})

	_, err := s.domainAuthority(context.Background(), testutil.NewPage("https://example.co.uk/").Build())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
}

func TestSocialSignals(t *testing.T) {
	s := newSuite(Options{})
	full := `<head>
		<meta property="og:title" content="T"><meta property="og:description" content="D">
		<meta property="og:image" content="I"><meta property="og:url" content="U">
		<meta name="twitter:card" content="summary"><meta name="twitter:title" content="T">
		</head>`

	f, err := s.socialSignals(context.Background(), htmlPage(full))
	require.NoError(t, err)
	assert.Equal(t, model.FindingGood, f.Status)
	assert.Equal(t, 6, f.Metrics["tags_present"])

	f, err = s.socialSignals(context.Background(), htmlPage(`<meta property="og:title" content="T"><meta property="og:image" content="">`))
	require.NoError(t, err)
	assert.Equal(t, model.FindingWarning, f.Status)
	assert.Equal(t, 1, f.Metrics["tags_present"])
	assert.Equal(t, "Add 7 missing social media meta tags", f.Recommendation)
}
