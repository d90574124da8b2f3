package model

import (
	"bytes"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/html"
)

// PageTLS describes the TLS state observed while fetching the page.
type PageTLS struct {
	Version       string    `json:"version"`
	CertExpiresAt time.Time `json:"cert_expires_at"`
	Issuer        string    `json:"issuer"`
}

// PageTiming records how long the fetch took.
type PageTiming struct {
	TTFB  time.Duration `json:"ttfb"`
	Total time.Duration `json:"total"`
}

// PageContext is the fetched target page shared by every check of a job.
// It must not be copied after first use.
type PageContext struct {
	URL        string
	FinalURL   string
	StatusCode int
	Header     http.Header
	Body       []byte
	// ContentEncoding is the transfer compression the server applied, even when the
	// client decoded it transparently.
	ContentEncoding string
	TLS             *PageTLS
	Timing          PageTiming
	FetchedAt       time.Time

	docOnce sync.Once
	doc     *html.Node
	docErr  error
}

// Document returns the parsed HTML tree. It is parsed once and must be treated as read-only.
func (p *PageContext) Document() (*html.Node, error) {
	p.docOnce.Do(func() {
		p.doc, p.docErr = html.Parse(bytes.NewReader(p.Body))
	})
	return p.doc, p.docErr
}

// IsHTTPS reports whether the final page was served over TLS.
func (p *PageContext) IsHTTPS() bool {
	return p.TLS != nil
}
