package checks

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"

	"golang.org/x/net/html/atom"

	"github.com/target/mmk-site-audit/internal/domain/model"
)

const (
	titleMinChars       = 30
	titleMaxChars       = 60
	descriptionMinChars = 120
	descriptionMaxChars = 160
	altCoverageGood     = 90.0
	internalLinksGood   = 5
	contentWordsGood    = 300
	readingWordsPerMin  = 200
)

func (s *suite) titleTags(_ context.Context, page *model.PageContext) (model.Finding, error) {
	doc, err := document(page)
	if err != nil {
		return model.Finding{}, err
	}

	title := ""
	if titles := elements(doc, atom.Title); len(titles) > 0 {
		title = text(titles[0])
	}
	length := len([]rune(title))
	metrics := map[string]any{"title": title, "length": length}

	if length >= titleMinChars && length <= titleMaxChars {
		return finding(model.FindingGood, metrics,
			fmt.Sprintf("Title length is %d characters. Optimal range is 30-60 characters.", length)), nil
	}
	if length == 0 {
		return finding(model.FindingWarning, metrics, "Add a descriptive title tag of 30-60 characters"), nil
	}
	return finding(model.FindingWarning, metrics,
		fmt.Sprintf("Title length is %d characters. Optimal range is 30-60 characters.", length)), nil
}

func (s *suite) metaDescription(_ context.Context, page *model.PageContext) (model.Finding, error) {
	doc, err := document(page)
	if err != nil {
		return model.Finding{}, err
	}

	desc, _ := meta(doc, "description")
	length := len([]rune(desc))
	metrics := map[string]any{"description": desc, "length": length}
	switch {
	case length == 0:
		return finding(model.FindingCritical, metrics, "Add a meta description of 120-160 characters"), nil
	case length >= descriptionMinChars && length <= descriptionMaxChars:
		return finding(model.FindingGood, metrics,
			fmt.Sprintf("Meta description length is %d characters. Optimal range is 120-160 characters.", length)), nil
	default:
		return finding(model.FindingWarning, metrics,
			fmt.Sprintf("Meta description length is %d characters. Optimal range is 120-160 characters.", length)), nil
	}
}

func (s *suite) headingStructure(_ context.Context, page *model.PageContext) (model.Finding, error) {
	doc, err := document(page)
	if err != nil {
		return model.Finding{}, err
	}

	levels := []atom.Atom{atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6}
	counts := make(map[string]any, len(levels))
	for i, lvl := range levels {
		counts[fmt.Sprintf("h%d", i+1)] = len(elements(doc, lvl))
	}
	h1, _ := counts["h1"].(int)
	h2, _ := counts["h2"].(int)

	if h1 == 1 && h2 > 0 {
		return finding(model.FindingGood, counts, "Good heading structure"), nil
	}
	return finding(model.FindingWarning, counts, "Ensure single H1 and proper heading hierarchy"), nil
}

func (s *suite) imageOptimization(_ context.Context, page *model.PageContext) (model.Finding, error) {
	doc, err := document(page)
	if err != nil {
		return model.Finding{}, err
	}

	images := elements(doc, atom.Img)
	withAlt, lazy := 0, 0
	for _, img := range images {
		if attrValue(img, "alt") != "" {
			withAlt++
		}
		if strings.EqualFold(attrValue(img, "loading"), "lazy") {
			lazy++
		}
	}
	coverage := 100.0
	if len(images) > 0 {
		coverage = float64(withAlt) / float64(len(images)) * 100
	}
	metrics := map[string]any{
		"total_images":    len(images),
		"images_with_alt": withAlt,
		"lazy_images":     lazy,
		"alt_percentage":  math.Round(coverage*10) / 10,
	}
	if coverage >= altCoverageGood {
		return finding(model.FindingGood, metrics, "Good image optimization"), nil
	}
	return finding(model.FindingWarning, metrics,
		fmt.Sprintf("Add alt text to %d images", len(images)-withAlt)), nil
}

func (s *suite) internalLinking(_ context.Context, page *model.PageContext) (model.Finding, error) {
	doc, err := document(page)
	if err != nil {
		return model.Finding{}, err
	}
	base, err := baseURL(page)
	if err != nil {
		return model.Finding{}, err
	}
	site := registrableDomain(base.Hostname())

	internal, external := 0, 0
	for _, a := range elements(doc, atom.A) {
		href, ok := attr(a, "href")
		if !ok || skippedLink(href) {
			continue
		}
		ref, perr := base.Parse(strings.TrimSpace(href))
		if perr != nil {
			continue
		}
		if registrableDomain(ref.Hostname()) == site {
			internal++
		} else {
			external++
		}
	}

	metrics := map[string]any{"internal_links": internal, "external_links": external, "domain": site}
	if internal > internalLinksGood {
		return finding(model.FindingGood, metrics, "Good internal linking"), nil
	}
	return finding(model.FindingWarning, metrics, "Add more internal links for better navigation"), nil
}

func (s *suite) contentAnalysis(_ context.Context, page *model.PageContext) (model.Finding, error) {
	doc, err := document(page)
	if err != nil {
		return model.Finding{}, err
	}

	body := doc
	if bodies := elements(doc, atom.Body); len(bodies) > 0 {
		body = bodies[0]
	}
	content := text(body)
	words := len(strings.Fields(content))
	sentences := countSentences(content)

	avg := 0.0
	if sentences > 0 {
		avg = math.Round(float64(words)/float64(sentences)*10) / 10
	}
	metrics := map[string]any{
		"word_count":              words,
		"sentence_count":          sentences,
		"avg_sentence_length":     avg,
		"reading_time_minutes":    int(math.Ceil(float64(words) / readingWordsPerMin)),
		"content_to_html_percent": contentRatio(len(content), len(page.Body)),
	}
	if words >= contentWordsGood {
		return finding(model.FindingGood, metrics, "Good content length"), nil
	}
	return finding(model.FindingWarning, metrics, "Add more content for better SEO"), nil
}

// countSentences counts runs of text terminated by ., ! or ?.
func countSentences(s string) int {
	count := 0
	inSentence := false
	for _, r := range s {
		switch {
		case r == '.' || r == '!' || r == '?':
			if inSentence {
				count++
				inSentence = false
			}
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			inSentence = true
		}
	}
	if inSentence {
		count++
	}
	return count
}

func contentRatio(textLen, htmlLen int) float64 {
	if htmlLen == 0 {
		return 0
	}
	return math.Round(float64(textLen)/float64(htmlLen)*1000) / 10
}
