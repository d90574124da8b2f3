package checks

import (
	"context"
	"math"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/target/mmk-site-audit/internal/domain/model"
)

const (
	navigationLinksGood  = 5
	accessibilityGood    = 70.0
	accessibilityWarning = 40.0
)

func (s *suite) navigation(_ context.Context, page *model.PageContext) (model.Finding, error) {
	doc, err := document(page)
	if err != nil {
		return model.Finding{}, err
	}

	navs := elements(doc, atom.Nav, atom.Menu)
	var sample []string
	links := 0
	for _, nav := range navs {
		for _, a := range elements(nav, atom.A) {
			href, ok := attr(a, "href")
			if !ok {
				continue
			}
			links++
			if len(sample) < 10 {
				sample = append(sample, strings.TrimSpace(href))
			}
		}
	}

	metrics := map[string]any{
		"navigation_elements": len(navs),
		"navigation_links":    links,
		"sample_nav_links":    sample,
	}
	if links > navigationLinksGood {
		return finding(model.FindingGood, metrics, "Good navigation structure"), nil
	}
	return finding(model.FindingWarning, metrics, "Improve navigation structure"), nil
}

func (s *suite) accessibility(_ context.Context, page *model.PageContext) (model.Finding, error) {
	doc, err := document(page)
	if err != nil {
		return model.Finding{}, err
	}

	images := elements(doc, atom.Img)
	withAlt := 0
	for _, img := range images {
		if attrValue(img, "alt") != "" {
			withAlt++
		}
	}
	labels := len(elements(doc, atom.Label))
	inputs := len(elements(doc, atom.Input, atom.Textarea, atom.Select))
	ariaLabels := 0
	walk(doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			if _, ok := attr(n, "aria-label"); ok {
				ariaLabels++
			}
		}
		return true
	})
	hasH1 := len(elements(doc, atom.H1)) > 0
	skipLinks := 0
	for _, a := range elements(doc, atom.A) {
		if href, ok := attr(a, "href"); ok && strings.HasPrefix(href, "#") {
			skipLinks++
		}
	}

	score := 0.0
	if len(images) > 0 {
		score += float64(withAlt) / float64(len(images)) * 30
	}
	if inputs > 0 {
		score += math.Min(float64(labels)/float64(inputs), 1) * 30
	}
	score += math.Min(float64(ariaLabels*5), 20)
	if hasH1 {
		score += 10
	}
	score += math.Min(float64(skipLinks*5), 10)
	score = math.Round(score*10) / 10

	metrics := map[string]any{
		"images_with_alt":     withAlt,
		"total_images":        len(images),
		"form_labels":         labels,
		"total_inputs":        inputs,
		"aria_labels":         ariaLabels,
		"has_h1":              hasH1,
		"skip_links":          skipLinks,
		"accessibility_score": score,
	}
	switch {
	case score >= accessibilityGood:
		return finding(model.FindingGood, metrics, "Good accessibility implementation"), nil
	case score >= accessibilityWarning:
		return finding(model.FindingWarning, metrics, "Improve accessibility features"), nil
	default:
		return finding(model.FindingCritical, metrics,
			"Accessibility is poor: add alt text, form labels and ARIA attributes"), nil
	}
}

func (s *suite) responsiveDesign(_ context.Context, page *model.PageContext) (model.Finding, error) {
	doc, err := document(page)
	if err != nil {
		return model.Finding{}, err
	}

	viewport, hasViewport := meta(doc, "viewport")
	mediaQueries := strings.Count(strings.ToLower(string(page.Body)), "@media")
	metrics := map[string]any{
		"has_viewport_meta":       hasViewport,
		"viewport_content":        viewport,
		"css_media_queries_found": mediaQueries,
	}
	switch {
	case !hasViewport:
		return finding(model.FindingCritical, metrics, "Implement responsive design"), nil
	case mediaQueries == 0:
		return finding(model.FindingWarning, metrics, "Add CSS media queries for smaller screens"), nil
	default:
		return finding(model.FindingGood, metrics, "Responsive design indicators found"), nil
	}
}
