package checks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/jmespath-community/go-jmespath"

	"github.com/target/mmk-site-audit/internal/domain/model"
)

const (
	establishedDomainDays = 365
	rdapMaxBytes          = 1 << 20

	rdapRegistrationExpr = "events[?eventAction=='registration'].eventDate | [0]"
	rdapRegistrarExpr    = "entities[?contains(roles, 'registrar')].handle | [0]"
)

var socialTags = []string{
	"og:title",
	"og:description",
	"og:image",
	"og:url",
	"twitter:card",
	"twitter:title",
	"twitter:description",
	"twitter:image",
}

const socialTagsGood = 6

// domainAuthority estimates trust from the registrable domain's age using RDAP.
func (s *suite) domainAuthority(ctx context.Context, page *model.PageContext) (model.Finding, error) {
	base, err := baseURL(page)
	if err != nil {
		return model.Finding{}, err
	}
	domain := registrableDomain(base.Hostname())

	doc, err := s.rdapLookup(ctx, domain)
	if err != nil {
		return model.Finding{}, err
	}

	raw, err := jmespath.Search(rdapRegistrationExpr, doc)
	if err != nil {
		return model.Finding{}, fmt.Errorf("evaluate rdap registration: %w", err)
	}
	stamp, _ := raw.(string)
	if stamp == "" {
		return model.Finding{}, fmt.Errorf("rdap record for %s has no registration date", domain)
	}
	registered, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return model.Finding{}, fmt.Errorf("parse rdap registration date: %w", err)
	}

	ageDays := int(referenceTime(page).Sub(registered).Hours() / 24)
	metrics := map[string]any{
		"domain":           domain,
		"registered_at":    registered.UTC().Format(time.RFC3339),
		"domain_age_days":  ageDays,
		"domain_age_years": math.Round(float64(ageDays)/365.25*10) / 10,
	}
	if registrar, rerr := jmespath.Search(rdapRegistrarExpr, doc); rerr == nil {
		if name, ok := registrar.(string); ok && name != "" {
			metrics["registrar"] = name
		}
	}

	if ageDays > establishedDomainDays {
		return finding(model.FindingGood, metrics, "Established domain"), nil
	}
	return finding(model.FindingWarning, metrics, "Domain age affects trust signals"), nil
}

func (s *suite) rdapLookup(ctx context.Context, domain string) (any, error) {
	endpoint := s.rdapEndpoint + "/domain/" + url.PathEscape(domain)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create rdap request: %w", err)
	}
	req.Header.Set("Accept", "application/rdap+json, application/json")
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rdap request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rdap lookup for %s: status %d", domain, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, rdapMaxBytes))
	if err != nil {
		return nil, fmt.Errorf("read rdap response: %w", err)
	}
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode rdap response: %w", err)
	}
	if _, ok := doc.(map[string]any); !ok {
		return nil, errors.New("rdap response is not an object")
	}
	return doc, nil
}

func (s *suite) socialSignals(_ context.Context, page *model.PageContext) (model.Finding, error) {
	doc, err := document(page)
	if err != nil {
		return model.Finding{}, err
	}

	present := 0
	tags := make(map[string]any, len(socialTags))
	for _, tag := range socialTags {
		content, ok := meta(doc, tag)
		if ok && content != "" {
			present++
			tags[tag] = content
		} else {
			tags[tag] = nil
		}
	}

	metrics := map[string]any{
		"social_meta_tags": tags,
		"tags_present":     present,
		"total_possible":   len(socialTags),
	}
	if present >= socialTagsGood {
		return finding(model.FindingGood, metrics, "Social media meta tags are in place"), nil
	}
	return finding(model.FindingWarning, metrics,
		fmt.Sprintf("Add %d missing social media meta tags", len(socialTags)-present)), nil
}
