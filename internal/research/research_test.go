package research

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/compete-cli/internal/extract"
	"github.com/sells-group/compete-cli/internal/llm"
	"github.com/sells-group/compete-cli/internal/model"
	"github.com/sells-group/compete-cli/internal/normalize"
	"github.com/sells-group/compete-cli/internal/scrape"
	"github.com/sells-group/compete-cli/pkg/firecrawl"
	"github.com/sells-group/compete-cli/pkg/tavily"
)

type mockSearch struct {
	mock.Mock
}

func (m *mockSearch) Search(ctx context.Context, query string, opts ...tavily.SearchOption) (*tavily.SearchResponse, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tavily.SearchResponse), args.Error(1)
}

type mockFirecrawl struct {
	mock.Mock
}

func (m *mockFirecrawl) Scrape(ctx context.Context, req firecrawl.ScrapeRequest) (*firecrawl.ScrapeResponse, error) {
	args := m.Called(ctx, req.URL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*firecrawl.ScrapeResponse), args.Error(1)
}

type mockLLM struct {
	mock.Mock
}

func (m *mockLLM) Complete(ctx context.Context, req llm.Request) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

const extractResponse = `{
	"pricing_tiers": [{"name": "Pro", "price": "$49/mo", "features": ["API"]}],
	"recent_news": [{"title": "Funding round", "summary": null, "url": null, "date": null}],
	"feature_list": ["API", "Webhooks"],
	"swot_analysis": {"strength": ["Fast"], "weakness": [], "opportunity": [], "threat": []}
}`

func longContent(s string) string {
	return strings.Repeat(s+" ", 40)
}

func page(markdown string) *firecrawl.ScrapeResponse {
	return &firecrawl.ScrapeResponse{Success: true, Data: firecrawl.PageData{Markdown: markdown}}
}

func TestRun_HappyPath(t *testing.T) {
	search := &mockSearch{}
	search.On("Search", mock.Anything, "site:acme.io pricing").
		Return(&tavily.SearchResponse{Results: []tavily.SearchResult{
			{URL: "https://other.com/review-of-acme"},
			{URL: "https://acme.io/pricing"},
		}}, nil).Once()
	search.On("Search", mock.Anything, "site:acme.io news OR blog").
		Return(&tavily.SearchResponse{Results: []tavily.SearchResult{
			{URL: "https://acme.io/blog"},
		}}, nil).Once()

	fc := &mockFirecrawl{}
	fc.On("Scrape", mock.Anything, "https://acme.io/pricing").Return(page(longContent("pricing")), nil).Once()
	fc.On("Scrape", mock.Anything, "https://acme.io/blog").Return(page(longContent("news")), nil).Once()

	m := &mockLLM{}
	m.On("Complete", mock.Anything, mock.Anything).Return(extractResponse, nil).Once()

	p := New(search, scrape.New(fc, 0), extract.New(m))
	res := p.Run(context.Background(), "https://acme.io")

	require.NotNil(t, res.Competitor)
	assert.Empty(t, res.Notes)
	require.Len(t, res.Competitor.Sources, 2)
	assert.Equal(t, model.SourceTypePricingPage, res.Competitor.Sources[0].SourceType)
	assert.Equal(t, model.ConfidenceHigh, res.Competitor.Sources[0].Confidence)
	assert.Equal(t, model.SourceTypeNewsPage, res.Competitor.Sources[1].SourceType)

	require.Len(t, res.Competitor.PricingTiers, 1)
	require.NotNil(t, res.Competitor.PricingTiers[0].Source)
	assert.Equal(t, "https://acme.io/pricing", res.Competitor.PricingTiers[0].Source.SourceURL)
	require.Len(t, res.Competitor.RecentNews, 1)
	assert.Equal(t, model.SourceTypeScraped, res.Competitor.RecentNews[0].SourceType)
	require.NotNil(t, res.Competitor.SWOTAnalysis.Source)
	search.AssertExpectations(t)
	fc.AssertExpectations(t)
}

func TestRun_NilSearchUsesURLPatterns(t *testing.T) {
	fc := &mockFirecrawl{}
	fc.On("Scrape", mock.Anything, "https://acme.io/pricing").Return(page(longContent("pricing")), nil).Once()
	fc.On("Scrape", mock.Anything, "https://acme.io/blog").Return(page(longContent("news")), nil).Once()

	m := &mockLLM{}
	m.On("Complete", mock.Anything, mock.Anything).Return(extractResponse, nil).Once()

	p := New(nil, scrape.New(fc, 0), extract.New(m))
	res := p.Run(context.Background(), "https://acme.io")

	require.Len(t, res.Notes, 1)
	assert.Equal(t, model.NoteKindConfig, res.Notes[0].Kind)
	assert.Equal(t, "search", res.Notes[0].Stage)
	fc.AssertExpectations(t)
}

func TestRun_SearchFailureFallsBack(t *testing.T) {
	search := &mockSearch{}
	search.On("Search", mock.Anything, mock.Anything).
		Return(nil, assert.AnError).Twice()

	fc := &mockFirecrawl{}
	fc.On("Scrape", mock.Anything, "https://acme.io/pricing").Return(page(longContent("pricing")), nil).Once()
	fc.On("Scrape", mock.Anything, "https://acme.io/blog").Return(page(longContent("news")), nil).Once()

	m := &mockLLM{}
	m.On("Complete", mock.Anything, mock.Anything).Return(extractResponse, nil).Once()

	p := New(search, scrape.New(fc, 0), extract.New(m))
	res := p.Run(context.Background(), "https://acme.io")

	assert.Len(t, res.Notes, 2)
	for _, n := range res.Notes {
		assert.Equal(t, model.NoteKindTransient, n.Kind)
	}
	fc.AssertExpectations(t)
}

func TestRun_SameNewsAndPricingURL(t *testing.T) {
	search := &mockSearch{}
	search.On("Search", mock.Anything, mock.Anything).
		Return(&tavily.SearchResponse{Results: []tavily.SearchResult{
			{URL: "https://acme.io/pricing"},
		}}, nil).Twice()

	fc := &mockFirecrawl{}
	fc.On("Scrape", mock.Anything, "https://acme.io/pricing").Return(page(longContent("pricing")), nil).Once()

	m := &mockLLM{}
	m.On("Complete", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		req := args.Get(1).(llm.Request)
		assert.Contains(t, req.Prompt, normalize.PlaceholderNoNewsURL)
	}).Return(extractResponse, nil).Once()

	p := New(search, scrape.New(fc, 0), extract.New(m))
	res := p.Run(context.Background(), "https://acme.io")

	require.Len(t, res.Competitor.Sources, 1)
	assert.Equal(t, model.SourceTypePricingPage, res.Competitor.Sources[0].SourceType)
	assert.Equal(t, model.ConfidenceMedium, res.Competitor.Sources[0].Confidence)
	fc.AssertExpectations(t)
}

func TestRun_BothScrapesFailRecordBothNotes(t *testing.T) {
	fc := &mockFirecrawl{}
	fc.On("Scrape", mock.Anything, "https://acme.io/pricing").Return(nil, assert.AnError).Once()
	fc.On("Scrape", mock.Anything, "https://acme.io/blog").Return(nil, assert.AnError).Once()
	// Homepage fallback tries the company URL and the origin, same here.
	fc.On("Scrape", mock.Anything, "https://acme.io").Return(nil, assert.AnError).Twice()

	m := &mockLLM{}
	m.On("Complete", mock.Anything, mock.Anything).Return(`{}`, nil).Once()

	p := New(nil, scrape.New(fc, 0), extract.New(m))
	res := p.Run(context.Background(), "https://acme.io")

	// One config note, both parallel fetch failures in pricing-then-news
	// order, then the two homepage attempts.
	require.Len(t, res.Notes, 5)
	assert.Equal(t, "search", res.Notes[0].Stage)
	assert.Contains(t, res.Notes[1].Message, "pricing https://acme.io/pricing")
	assert.Contains(t, res.Notes[2].Message, "news https://acme.io/blog")
	for _, n := range res.Notes[1:] {
		assert.Equal(t, model.NoteKindTransient, n.Kind)
		assert.Equal(t, "scrape", n.Stage)
	}
	fc.AssertExpectations(t)
}

func TestRun_HomepageFallback(t *testing.T) {
	fc := &mockFirecrawl{}
	fc.On("Scrape", mock.Anything, "https://acme.io/pricing").Return(nil, assert.AnError).Once()
	fc.On("Scrape", mock.Anything, "https://acme.io/blog").Return(nil, assert.AnError).Once()
	fc.On("Scrape", mock.Anything, "https://acme.io").Return(page(longContent("homepage copy")), nil).Once()

	m := &mockLLM{}
	m.On("Complete", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		req := args.Get(1).(llm.Request)
		assert.Contains(t, req.Prompt, "## Homepage content")
		assert.Contains(t, req.Prompt, normalize.PlaceholderNewsHomepage)
	}).Return(extractResponse, nil).Once()

	p := New(nil, scrape.New(fc, 0), extract.New(m))
	res := p.Run(context.Background(), "https://acme.io")

	require.Len(t, res.Competitor.Sources, 1)
	assert.Equal(t, model.SourceTypeHomepage, res.Competitor.Sources[0].SourceType)
	assert.Equal(t, model.ConfidenceMedium, res.Competitor.Sources[0].Confidence)
	require.NotNil(t, res.Competitor.PricingTiers[0].Source)
	assert.Equal(t, "https://acme.io", res.Competitor.PricingTiers[0].Source.SourceURL)
	fc.AssertExpectations(t)
}

func TestRun_HomepageTooShortYieldsLowConfidenceSources(t *testing.T) {
	fc := &mockFirecrawl{}
	fc.On("Scrape", mock.Anything, "https://acme.io/pricing").Return(nil, assert.AnError).Once()
	fc.On("Scrape", mock.Anything, "https://acme.io/blog").Return(nil, assert.AnError).Once()
	// Both homepage candidates resolve to the same origin here.
	fc.On("Scrape", mock.Anything, "https://acme.io").Return(page(strings.Repeat("x", 150)), nil).Twice()

	m := &mockLLM{}
	m.On("Complete", mock.Anything, mock.Anything).Return(`{}`, nil).Once()

	p := New(nil, scrape.New(fc, 0), extract.New(m))
	res := p.Run(context.Background(), "https://acme.io")

	require.NotNil(t, res.Competitor)
	assert.NotEmpty(t, res.Notes)
	require.Len(t, res.Competitor.Sources, 2)
	assert.Equal(t, model.ConfidenceLow, res.Competitor.Sources[0].Confidence)
	assert.Equal(t, model.ConfidenceLow, res.Competitor.Sources[1].Confidence)
}

func TestRun_ExtractFailureYieldsEmptyProfile(t *testing.T) {
	fc := &mockFirecrawl{}
	fc.On("Scrape", mock.Anything, "https://acme.io/pricing").Return(page(longContent("pricing")), nil).Once()
	fc.On("Scrape", mock.Anything, "https://acme.io/blog").Return(page(longContent("news")), nil).Once()

	m := &mockLLM{}
	m.On("Complete", mock.Anything, mock.Anything).Return("not json at all", nil).Once()

	p := New(nil, scrape.New(fc, 0), extract.New(m))
	res := p.Run(context.Background(), "https://acme.io")

	require.NotNil(t, res.Competitor)
	assert.Empty(t, res.Competitor.PricingTiers)
	assert.NotNil(t, res.Competitor.FeatureList)

	var kinds []string
	for _, n := range res.Notes {
		kinds = append(kinds, n.Kind)
	}
	assert.Contains(t, kinds, model.NoteKindMalformed)
	// Attributions are still attached even when extraction fails.
	assert.Len(t, res.Competitor.Sources, 2)
}

func TestDomainToName(t *testing.T) {
	assert.Equal(t, "Sage", DomainToName("www.sage.com"))
	assert.Equal(t, "Quickbooks", DomainToName("quickbooks.intuit.com"))
	assert.Equal(t, "Acme", DomainToName("ACME.io"))
	assert.Equal(t, "Company", DomainToName(""))
}
