package checks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-site-audit/internal/core"
	"github.com/target/mmk-site-audit/internal/domain/model"
	"github.com/target/mmk-site-audit/internal/testutil"
)

func goodCheck(name string, cat model.Category) core.Check {
	return New(name, cat, func(context.Context, *model.PageContext) (model.Finding, error) {
		return model.Finding{Status: model.FindingGood, Recommendation: "ok"}, nil
	})
}

func TestFuncRunStampsIdentity(t *testing.T) {
	c := goodCheck("title_tags", model.CategoryOnPage)

	f, err := c.Run(context.Background(), testutil.NewPage("https://example.com/").Build())
	require.NoError(t, err)
	assert.Equal(t, "title_tags", f.Check)
	assert.Equal(t, model.CategoryOnPage, f.Category)
	assert.Equal(t, model.FindingGood, f.Status)
}

func TestFuncRunPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	c := New("x", model.CategoryUX, func(context.Context, *model.PageContext) (model.Finding, error) {
		return model.Finding{}, boom
	})
	_, err := c.Run(context.Background(), testutil.NewPage("https://example.com/").Build())
	require.ErrorIs(t, err, boom)

	_, err = New("y", model.CategoryUX, nil).Run(context.Background(), nil)
	require.Error(t, err)
}

func TestNewRegistryRejectsInvalidChecks(t *testing.T) {
	tests := []struct {
		name    string
		checks  []core.Check
		wantErr string
	}{
		{name: "nil check", checks: []core.Check{nil}, wantErr: "nil check"},
		{name: "empty name", checks: []core.Check{goodCheck(" ", model.CategoryUX)}, wantErr: "name is required"},
		{name: "unknown category", checks: []core.Check{goodCheck("a", model.Category("social"))}, wantErr: "unknown category"},
		{
			name:    "duplicate",
			checks:  []core.Check{goodCheck("a", model.CategoryUX), goodCheck("a", model.CategoryTechnical)},
			wantErr: "duplicate check a",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.checks...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewRegistryOrdersByCategoryThenName(t *testing.T) {
	reg, err := NewRegistry(
		goodCheck("zeta", model.CategorySecurity),
		goodCheck("beta", model.CategoryTechnical),
		goodCheck("alpha", model.CategoryTechnical),
		goodCheck("gamma", model.CategoryOnPage),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta", "gamma", "zeta"}, reg.Names())

	checks := reg.Checks()
	checks[0] = nil
	assert.NotNil(t, reg.Checks()[0], "Checks must return a copy")
}

func TestDefaultRegistry(t *testing.T) {
	reg, err := DefaultRegistry(Options{})
	require.NoError(t, err)

	names := reg.Names()
	assert.Len(t, names, 22)

	perCategory := map[model.Category]int{}
	for _, c := range reg.Checks() {
		perCategory[c.Category()]++
	}
	assert.Equal(t, 9, perCategory[model.CategoryTechnical])
	assert.Equal(t, 6, perCategory[model.CategoryOnPage])
	assert.Equal(t, 2, perCategory[model.CategoryOffPage])
	assert.Equal(t, 3, perCategory[model.CategoryUX])
	assert.Equal(t, 2, perCategory[model.CategorySecurity])
	assert.Zero(t, perCategory[model.CategoryPerformance])
}

func TestNewSuiteDefaults(t *testing.T) {
	s := newSuite(Options{RDAPEndpoint: " https://rdap.example/ "})
	assert.Equal(t, "https://rdap.example", s.rdapEndpoint)
	assert.Equal(t, DefaultUserAgent, s.userAgent)
	assert.Equal(t, DefaultLinkCheckLimit, s.linkLimit)
	assert.Equal(t, DefaultLinkCheckTimeout, s.linkTimeout)
	assert.Equal(t, DefaultLinkCheckConcurrency, s.linkConcurrent)
	assert.NotNil(t, s.client)
}

func TestReferenceTime(t *testing.T) {
	page := testutil.NewPage("https://example.com/").Build()
	assert.Equal(t, testutil.TestTime(), referenceTime(page))
	assert.False(t, referenceTime(nil).IsZero())
}
