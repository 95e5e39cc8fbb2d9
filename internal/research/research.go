// Package research runs the single-entity pipeline: for one company URL,
// find its pricing and news pages, scrape them, and extract a structured
// profile. The pipeline is total: for any input it terminates with a
// (possibly empty) profile and a trail of notes, never an error.
package research

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/compete-cli/internal/extract"
	"github.com/sells-group/compete-cli/internal/model"
	"github.com/sells-group/compete-cli/internal/normalize"
	"github.com/sells-group/compete-cli/internal/scrape"
	"github.com/sells-group/compete-cli/internal/urlutil"
	"github.com/sells-group/compete-cli/pkg/tavily"
)

// searchMaxResults caps each site-scoped search query.
const searchMaxResults = 5

// minHomepageChars is the minimum content length for the homepage fallback
// to be accepted as a substitute for pricing/news text.
const minHomepageChars = 200

// Pipeline wires the three stages' collaborators. A nil search client is
// allowed; the search stage then falls back to deterministic URL patterns.
type Pipeline struct {
	search    tavily.Client
	scraper   *scrape.Service
	extractor *extract.Extractor
}

// New creates a research pipeline.
func New(search tavily.Client, scraper *scrape.Service, extractor *extract.Extractor) *Pipeline {
	return &Pipeline{search: search, scraper: scraper, extractor: extractor}
}

// Result is the pipeline output: always a structurally valid profile plus
// the accumulated non-fatal notes.
type Result struct {
	Competitor *model.Competitor
	Notes      model.Notes
}

// state carries the pipeline's working data between stages. Each stage
// receives the state and returns an updated copy.
type state struct {
	companyURL string
	pricingURL string
	newsURL    string

	pricingText string
	newsText    string
	sources     []scrapedSource

	notes model.Notes
}

type scrapedSource struct {
	URL       string
	PageType  string
	ScrapedAt time.Time
}

// Run executes Search → Scrape → Extract for one URL.
func (p *Pipeline) Run(ctx context.Context, companyURL string) *Result {
	log := zap.L().With(zap.String("company_url", companyURL))
	log.Info("research: starting pipeline")

	st := state{companyURL: companyURL}
	st = p.searchStage(ctx, st)
	st = p.scrapeStage(ctx, st)
	competitor := p.extractStage(ctx, &st)

	log.Info("research: pipeline complete",
		zap.Int("pricing_tiers", len(competitor.PricingTiers)),
		zap.Int("features", len(competitor.FeatureList)),
		zap.Int("news", len(competitor.RecentNews)),
		zap.Int("notes", len(st.notes)),
	)

	return &Result{Competitor: competitor, Notes: st.notes}
}

// searchStage finds the entity's pricing and news pages via site-scoped
// search, falling back to {origin}/pricing and {origin}/blog. Never fatal:
// it always produces some best-guess URLs.
func (p *Pipeline) searchStage(ctx context.Context, st state) state {
	domain := urlutil.Domain(st.companyURL)
	origin := urlutil.Origin(st.companyURL)

	if p.search == nil {
		st.notes.Add("search", model.NoteKindConfig, "search provider not configured, using URL-pattern fallback")
		st.pricingURL = origin + "/pricing"
		st.newsURL = origin + "/blog"
		return st
	}

	st.pricingURL = p.searchForPage(ctx, &st, domain, "site:"+domain+" pricing", origin+"/pricing")
	st.newsURL = p.searchForPage(ctx, &st, domain, "site:"+domain+" news OR blog", origin+"/blog")

	// A news URL identical to the pricing URL adds nothing; scrape stage
	// treats empty as "same as pricing".
	if st.newsURL == st.pricingURL {
		st.newsURL = ""
	}
	return st
}

func (p *Pipeline) searchForPage(ctx context.Context, st *state, domain, query, fallback string) string {
	resp, err := p.search.Search(ctx, query, tavily.WithMaxResults(searchMaxResults))
	if err != nil {
		st.notes.Addf("search", model.NoteKindTransient, "query %q failed: %v", query, err)
		return fallback
	}
	for _, r := range resp.Results {
		if r.URL != "" && strings.Contains(r.URL, domain) {
			return r.URL
		}
	}
	return fallback
}

// scrapeStage fetches the pricing and news pages in parallel (two bounded
// tasks, joined before returning). When both come back as placeholders it
// falls back to the entity URL and then the bare origin, accepting the
// first fetch yielding real content as a synthetic homepage substitute.
func (p *Pipeline) scrapeStage(ctx context.Context, st state) state {
	scrapedAt := time.Now().UTC()

	// Each goroutine writes only its own note trail; the shared trail is
	// touched after the join.
	g, gCtx := errgroup.WithContext(ctx)
	var pricingNotes model.Notes
	g.Go(func() error {
		st.pricingText = p.fetchOr(gCtx, &pricingNotes, st.pricingURL, "pricing",
			normalize.PlaceholderNoPricingURL, normalize.PlaceholderPricingFailed)
		return nil
	})

	var newsText string
	var newsNotes model.Notes
	g.Go(func() error {
		newsText = p.fetchOr(gCtx, &newsNotes, st.newsURL, "news",
			normalize.PlaceholderNoNewsURL, normalize.PlaceholderNewsFailed)
		return nil
	})
	_ = g.Wait()
	st.newsText = newsText
	st.notes = append(st.notes, pricingNotes...)
	st.notes = append(st.notes, newsNotes...)

	var homepageUsed string
	if normalize.IsPlaceholder(st.pricingText) && normalize.IsPlaceholder(st.newsText) {
		for _, fallbackURL := range []string{st.companyURL, urlutil.Origin(st.companyURL)} {
			if fallbackURL == "" {
				continue
			}
			content, err := p.scraper.Fetch(ctx, fallbackURL)
			if err != nil {
				st.notes.Addf("scrape", model.NoteKindTransient, "homepage %s: %v", fallbackURL, err)
				continue
			}
			if len(content) > minHomepageChars {
				homepageUsed = fallbackURL
				st.pricingText = "(Pricing page unavailable.)\n\n## Homepage content\n" + content
				st.newsText = normalize.PlaceholderNewsHomepage
				st.notes.Add("scrape", model.NoteKindTransient, "used homepage fallback")
				break
			}
		}
	}

	// Provenance trail: which URLs actually produced the text being
	// extracted, with one timestamp per stage run.
	if homepageUsed != "" {
		st.sources = append(st.sources, scrapedSource{URL: homepageUsed, PageType: model.SourceTypeHomepage, ScrapedAt: scrapedAt})
	} else {
		if st.pricingURL != "" && !normalize.IsPlaceholder(st.pricingText) {
			st.sources = append(st.sources, scrapedSource{URL: st.pricingURL, PageType: model.SourceTypePricingPage, ScrapedAt: scrapedAt})
		}
		if st.newsURL != "" && st.newsURL != st.pricingURL && !normalize.IsPlaceholder(st.newsText) {
			st.sources = append(st.sources, scrapedSource{URL: st.newsURL, PageType: model.SourceTypeNewsPage, ScrapedAt: scrapedAt})
		}
	}

	return st
}

func (p *Pipeline) fetchOr(ctx context.Context, notes *model.Notes, url, page, missingPlaceholder, failedPlaceholder string) string {
	if url == "" {
		return missingPlaceholder
	}
	content, err := p.scraper.Fetch(ctx, url)
	if err != nil {
		notes.Addf("scrape", model.NoteKindTransient, "%s %s: %v", page, url, err)
		return failedPlaceholder
	}
	return content
}

// extractStage calls the extraction adapter with whatever text resulted and
// attaches source attributions. Extractor failure yields an empty profile,
// never an abort.
func (p *Pipeline) extractStage(ctx context.Context, st *state) *model.Competitor {
	competitor, err := p.extractor.Extract(ctx, st.pricingText, st.newsText, st.companyURL)
	if err != nil {
		st.notes.Addf("extract", model.NoteKindMalformed, "%v", err)
		competitor = model.EmptyCompetitor()
	}

	sources := p.buildSources(st)
	attachSources(competitor, sources)
	return competitor
}

func (p *Pipeline) buildSources(st *state) []model.SourceAttribution {
	bothClean := !normalize.IsPlaceholder(st.pricingText) && !normalize.IsPlaceholder(st.newsText)

	var sources []model.SourceAttribution
	for _, s := range st.sources {
		conf := model.ConfidenceMedium
		if bothClean {
			conf = model.ConfidenceHigh
		}
		sources = append(sources, model.SourceAttribution{
			SourceURL:  s.URL,
			SourceType: s.PageType,
			ScrapedAt:  s.ScrapedAt,
			Confidence: conf,
		})
	}
	if len(sources) > 0 {
		return sources
	}

	// Nothing was scraped successfully; fall back to attributing the
	// URLs the pipeline attempted, at reduced confidence.
	scrapedAt := time.Now().UTC()
	if st.pricingURL != "" {
		sources = append(sources, model.SourceAttribution{
			SourceURL:  st.pricingURL,
			SourceType: model.SourceTypePricingPage,
			ScrapedAt:  scrapedAt,
			Confidence: confidenceFor(st.pricingText),
		})
	}
	if st.newsURL != "" && st.newsURL != st.pricingURL {
		sources = append(sources, model.SourceAttribution{
			SourceURL:  st.newsURL,
			SourceType: model.SourceTypeNewsPage,
			ScrapedAt:  scrapedAt,
			Confidence: confidenceFor(st.newsText),
		})
	}
	return sources
}

func confidenceFor(text string) string {
	if normalize.IsPlaceholder(text) {
		return model.ConfidenceLow
	}
	return model.ConfidenceHigh
}

// attachSources wires provenance onto the profile: pricing tiers get the
// first pricing_page/homepage source (else the first source), SWOT gets the
// first source, and news items are marked as scraped.
func attachSources(c *model.Competitor, sources []model.SourceAttribution) {
	c.Sources = sources

	var pricingSource *model.SourceAttribution
	for i := range sources {
		if sources[i].SourceType == model.SourceTypePricingPage || sources[i].SourceType == model.SourceTypeHomepage {
			pricingSource = &sources[i]
			break
		}
	}
	if pricingSource == nil && len(sources) > 0 {
		pricingSource = &sources[0]
	}

	if pricingSource != nil {
		for i := range c.PricingTiers {
			c.PricingTiers[i].Source = pricingSource
		}
	}
	if c.SWOTAnalysis != nil && len(sources) > 0 {
		c.SWOTAnalysis.Source = &sources[0]
	}
	for i := range c.RecentNews {
		c.RecentNews[i].SourceType = model.SourceTypeScraped
	}
}

var titleCaser = cases.Title(language.English)

// DomainToName turns a domain like www.sage.com into the display name "Sage".
func DomainToName(domain string) string {
	if domain == "" {
		return "Company"
	}
	name := strings.TrimPrefix(strings.ToLower(domain), "www.")
	if idx := strings.IndexByte(name, '.'); idx > 0 {
		name = name[:idx]
	}
	return titleCaser.String(name)
}
