package checks

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-site-audit/internal/domain/model"
	"github.com/target/mmk-site-audit/internal/testutil"
)

func htmlPage(html string) *model.PageContext {
	return testutil.NewPage("https://www.example.com/blog/post").WithHTML(html).Build()
}

func TestTitleTags(t *testing.T) {
	s := newSuite(Options{})
	tests := []struct {
		name  string
		title string
		want  model.FindingStatus
	}{
		{name: "missing", title: "", want: model.FindingWarning},
		{name: "short", title: "Home", want: model.FindingWarning},
		{name: "lower bound", title: strings.Repeat("t", 30), want: model.FindingGood},
		{name: "upper bound", title: strings.Repeat("t", 60), want: model.FindingGood},
		{name: "long", title: strings.Repeat("t", 61), want: model.FindingWarning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			html := "<html><head></head></html>"
			if tt.title != "" {
				html = "<html><head><title>  " + tt.title + " </title></head></html>"
			}
			f, err := s.titleTags(context.Background(), htmlPage(html))
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Status)
			assert.Equal(t, len(tt.title), f.Metrics["length"])
		})
	}
}

func TestMetaDescription(t *testing.T) {
	s := newSuite(Options{})
	tests := []struct {
		name string
		desc string
		want model.FindingStatus
	}{
		{name: "missing", desc: "", want: model.FindingCritical},
		{name: "short", desc: "A site.", want: model.FindingWarning},
		{name: "optimal", desc: strings.Repeat("d", 140), want: model.FindingGood},
		{name: "long", desc: strings.Repeat("d", 161), want: model.FindingWarning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			html := `<head></head>`
			if tt.desc != "" {
				html = `<head><meta name="description" content="` + tt.desc + `"></head>`
			}
			f, err := s.metaDescription(context.Background(), htmlPage(html))
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Status)
		})
	}
}

func TestHeadingStructure(t *testing.T) {
	s := newSuite(Options{})

	f, err := s.headingStructure(context.Background(), htmlPage(`<h1>a</h1><h2>b</h2><h2>c</h2><h3>d</h3>`))
	require.NoError(t, err)
	assert.Equal(t, model.FindingGood, f.Status)
	assert.Equal(t, 2, f.Metrics["h2"])
	assert.Equal(t, 0, f.Metrics["h6"])

	f, err = s.headingStructure(context.Background(), htmlPage(`<h1>a</h1><h1>b</h1><h2>c</h2>`))
	require.NoError(t, err)
	assert.Equal(t, model.FindingWarning, f.Status)

	f, err = s.headingStructure(context.Background(), htmlPage(`<h1>only</h1>`))
	require.NoError(t, err)
	assert.Equal(t, model.FindingWarning, f.Status)
}

func TestImageOptimization(t *testing.T) {
	s := newSuite(Options{})

	f, err := s.imageOptimization(context.Background(), htmlPage(`<p>no images</p>`))
	require.NoError(t, err)
	assert.Equal(t, model.FindingGood, f.Status)
	assert.Equal(t, 100.0, f.Metrics["alt_percentage"])

	f, err = s.imageOptimization(context.Background(),
		htmlPage(`<img src="a.png" alt="A" loading="lazy"><img src="b.png" alt=""><img src="c.png">`))
	require.NoError(t, err)
	assert.Equal(t, model.FindingWarning, f.Status)
	assert.Equal(t, 3, f.Metrics["total_images"])
	assert.Equal(t, 1, f.Metrics["images_with_alt"])
	assert.Equal(t, 1, f.Metrics["lazy_images"])
	assert.Equal(t, 33.3, f.Metrics["alt_percentage"])
	assert.Equal(t, "Add alt text to 2 images", f.Recommendation)
}

func TestInternalLinking(t *testing.T) {
	s := newSuite(Options{})
	html := `
		<a href="/a">a</a><a href="b">b</a><a href="https://shop.example.com/c">c</a>
		<a href="//www.example.com/d">d</a><a href="https://example.com/e">e</a><a href="/f">f</a>
		<a href="https://other.org/">ext</a><a href="#top">skip</a><a href="mailto:a@b.c">mail</a>`

	f, err := s.internalLinking(context.Background(), htmlPage(html))
	require.NoError(t, err)
	assert.Equal(t, model.FindingGood, f.Status)
	assert.Equal(t, 6, f.Metrics["internal_links"])
	assert.Equal(t, 1, f.Metrics["external_links"])
	assert.Equal(t, "example.com", f.Metrics["domain"])

	f, err = s.internalLinking(context.Background(), htmlPage(`<a href="/a">a</a>`))
	require.NoError(t, err)
	assert.Equal(t, model.FindingWarning, f.Status)
}

func TestContentAnalysis(t *testing.T) {
	s := newSuite(Options{})

	long := strings.Repeat("Search engines reward useful pages. ", 60)
	f, err := s.contentAnalysis(context.Background(),
		htmlPage(`<html><body><script>var ignored = "words words";</script><p>`+long+`</p></body></html>`))
	require.NoError(t, err)
	assert.Equal(t, model.FindingGood, f.Status)
	assert.Equal(t, 300, f.Metrics["word_count"])
	assert.Equal(t, 60, f.Metrics["sentence_count"])
	assert.Equal(t, 5.0, f.Metrics["avg_sentence_length"])
	assert.Equal(t, 2, f.Metrics["reading_time_minutes"])

	f, err = s.contentAnalysis(context.Background(), htmlPage(`<body><p>Too short.</p></body>`))
	require.NoError(t, err)
	assert.Equal(t, model.FindingWarning, f.Status)
}

func TestCountSentences(t *testing.T) {
	assert.Equal(t, 0, countSentences(""))
	assert.Equal(t, 0, countSentences("...!?"))
	assert.Equal(t, 3, countSentences("One. Two! Three"))
	assert.Equal(t, 2, countSentences("Wait... what?"))
}

func TestContentRatio(t *testing.T) {
	assert.Equal(t, 0.0, contentRatio(10, 0))
	assert.Equal(t, 25.0, contentRatio(25, 100))
}
