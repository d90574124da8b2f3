package checks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/publicsuffix"

	"github.com/target/mmk-site-audit/internal/domain/model"
)

// walk visits n and its descendants depth first. Returning false from fn skips the children.
func walk(n *html.Node, fn func(*html.Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

// elements returns every element with one of the given atoms, in document order.
func elements(doc *html.Node, tags ...atom.Atom) []*html.Node {
	var out []*html.Node
	walk(doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			for _, t := range tags {
				if n.DataAtom == t {
					out = append(out, n)
					break
				}
			}
		}
		return true
	})
	return out
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

func attrValue(n *html.Node, key string) string {
	v, _ := attr(n, key)
	return strings.TrimSpace(v)
}

// text concatenates the text content below n, skipping script and style.
func text(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) bool {
		if c.Type == html.ElementNode {
			switch c.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Template:
				return false
			}
		}
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
			b.WriteByte(' ')
		}
		return true
	})
	return strings.Join(strings.Fields(b.String()), " ")
}

// meta returns the content of the first <meta> whose name or property matches key.
func meta(doc *html.Node, key string) (string, bool) {
	for _, m := range elements(doc, atom.Meta) {
		if strings.EqualFold(attrValue(m, "name"), key) || strings.EqualFold(attrValue(m, "property"), key) {
			return attrValue(m, "content"), true
		}
	}
	return "", false
}

func hasRel(n *html.Node, rel string) bool {
	for _, r := range strings.Fields(attrValue(n, "rel")) {
		if strings.EqualFold(r, rel) {
			return true
		}
	}
	return false
}

// document returns the parsed page, wrapping parse failures.
func document(page *model.PageContext) (*html.Node, error) {
	if page == nil {
		return nil, fmt.Errorf("page context is nil")
	}
	doc, err := page.Document()
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// baseURL is the page URL after redirects.
func baseURL(page *model.PageContext) (*url.URL, error) {
	raw := page.FinalURL
	if raw == "" {
		raw = page.URL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	return u, nil
}

// skippedLink reports hrefs that never point at a fetchable document.
func skippedLink(href string) bool {
	h := strings.ToLower(strings.TrimSpace(href))
	return h == "" || strings.HasPrefix(h, "#") || strings.HasPrefix(h, "mailto:") ||
		strings.HasPrefix(h, "tel:") || strings.HasPrefix(h, "javascript:")
}

// registrableDomain returns the eTLD+1 of host, falling back to the host itself.
func registrableDomain(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if d, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return d
	}
	return host
}

// fetchStatus performs a request and returns the status code plus up to limit bytes of body.
func (s *suite) fetchStatus(ctx context.Context, method, target string, limit int64) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("User-Agent", s.userAgent)
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	var body []byte
	if limit > 0 {
		body, err = io.ReadAll(io.LimitReader(resp.Body, limit))
		if err != nil {
			return resp.StatusCode, nil, fmt.Errorf("read body: %w", err)
		}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return resp.StatusCode, body, nil
}
