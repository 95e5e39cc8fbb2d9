// Package discovery orchestrates the four-stage market analysis: analyze the
// base company, discover competitors, analyze each competitor in parallel,
// and synthesize a market report. Stages degrade independently; only a
// missing base URL is fatal.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/compete-cli/internal/extract"
	"github.com/sells-group/compete-cli/internal/llm"
	"github.com/sells-group/compete-cli/internal/model"
	"github.com/sells-group/compete-cli/internal/research"
	"github.com/sells-group/compete-cli/internal/urlutil"
	"github.com/sells-group/compete-cli/pkg/tavily"
)

// Progress step names, in run order. Reported to the callback with status
// "in_progress" then "done".
const (
	StepAnalyzeBase         = "Analyzing base company"
	StepDiscoverCompetitors = "Discovering competitors"
	StepAnalyzeCompetitors  = "Analyzing competitors"
	StepSynthesize          = "Generating insights"
)

// ProgressFunc receives step transitions during a run. May be nil.
type ProgressFunc func(step, status string)

// Config bounds a discovery run. Zero values take defaults.
type Config struct {
	BaseTimeout       time.Duration
	CompetitorTimeout time.Duration
	Concurrency       int
	MaxCompetitors    int
}

func (c Config) withDefaults() Config {
	if c.BaseTimeout <= 0 {
		c.BaseTimeout = 30 * time.Second
	}
	if c.CompetitorTimeout <= 0 {
		c.CompetitorTimeout = 60 * time.Second
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 5
	}
	if c.MaxCompetitors <= 0 {
		c.MaxCompetitors = 5
	}
	return c
}

// Request describes one market discovery run.
type Request struct {
	BaseURL string
	Scope   string
	Region  string
}

// Result is the run output: the report (nil only when the base URL was
// missing) plus the accumulated notes.
type Result struct {
	Report *model.MarketReport
	Notes  model.Notes
}

// Orchestrator runs the discovery workflow.
type Orchestrator struct {
	llm      llm.Client
	search   tavily.Client
	research *research.Pipeline
	synth    *Synthesizer
	cfg      Config
}

// New creates an orchestrator. search may be nil (competitor URL validation
// is skipped); llm may be nil (discovery and synthesis degrade).
func New(client llm.Client, search tavily.Client, pipeline *research.Pipeline, synth *Synthesizer, cfg Config) *Orchestrator {
	return &Orchestrator{
		llm:      client,
		search:   search,
		research: pipeline,
		synth:    synth,
		cfg:      cfg.withDefaults(),
	}
}

// Run executes the full workflow for one base URL. Only an empty base URL
// yields a nil report; every other failure shrinks the report and leaves a
// note.
func (o *Orchestrator) Run(ctx context.Context, req Request, progress ProgressFunc) *Result {
	res := &Result{}
	report := func(step, status string) {
		if progress != nil {
			progress(step, status)
		}
	}

	baseURL := strings.TrimSpace(req.BaseURL)
	log := zap.L().With(zap.String("base_url", baseURL))
	log.Info("discovery: run starting", zap.String("scope", req.Scope), zap.String("region", req.Region))

	report(StepAnalyzeBase, "in_progress")
	if baseURL == "" {
		res.Notes.Add("base", model.NoteKindFatal, "base URL is required")
		report(StepAnalyzeBase, "done")
		return res
	}
	baseProfile := o.analyzeBase(ctx, baseURL, &res.Notes)
	report(StepAnalyzeBase, "done")

	report(StepDiscoverCompetitors, "in_progress")
	candidates := o.discoverCompetitors(ctx, baseProfile.CompanyName, baseURL, req.Scope, req.Region, &res.Notes)
	report(StepDiscoverCompetitors, "done")

	report(StepAnalyzeCompetitors, "in_progress")
	profiles := o.analyzeCompetitors(ctx, candidates, &res.Notes)
	report(StepAnalyzeCompetitors, "done")

	report(StepSynthesize, "in_progress")
	comparisons, err := o.synth.Synthesize(ctx, baseProfile, profiles, req.Scope, req.Region)
	if err != nil {
		res.Notes.Addf("synthesize", model.NoteKindMalformed, "%v", err)
		comparisons = model.UnresolvedComparison()
	}
	report(StepSynthesize, "done")

	res.Report = &model.MarketReport{
		BaseCompanyData: baseProfile,
		Competitors:     profiles,
		Comparisons:     comparisons,
	}
	log.Info("discovery: run complete",
		zap.Int("competitors", len(profiles)),
		zap.Int("notes", len(res.Notes)),
	)
	return res
}

// analyzeBase runs the research pipeline for the base company under a hard
// timeout. On timeout the run proceeds with an empty profile rather than
// waiting out a stuck scrape.
func (o *Orchestrator) analyzeBase(ctx context.Context, baseURL string, notes *model.Notes) model.BaseProfile {
	companyName := research.DomainToName(urlutil.Domain(baseURL))
	profile := model.BaseProfile{
		CompanyName:  companyName,
		CompanyURL:   baseURL,
		PricingTiers: []model.PricingTier{},
		FeatureList:  []string{},
	}

	runCtx, cancel := context.WithTimeout(ctx, o.cfg.BaseTimeout)
	defer cancel()

	done := make(chan *research.Result, 1)
	go func() {
		done <- o.research.Run(runCtx, baseURL)
	}()

	select {
	case res := <-done:
		*notes = append(*notes, res.Notes...)
		if res.Competitor != nil {
			profile.PricingTiers = res.Competitor.PricingTiers
			profile.FeatureList = res.Competitor.FeatureList
		}
	case <-runCtx.Done():
		notes.Addf("base", model.NoteKindTimeout,
			"base analysis timed out (%s), proceeding with partial data", o.cfg.BaseTimeout)
	}
	return profile
}

const discoverSystemPromptFmt = `You are a market intelligence analyst. For the company %s (%s), identify the top 3-5 direct competitors that compete in the SAME product category.

Return ONLY valid JSON: an array of objects with:
- name: string (company/product name, e.g. "QuickBooks" not "Intuit")
- url: string (the OFFICIAL product website, e.g. "https://quickbooks.intuit.com" not "https://www.intuit.com")
- reason: string (one sentence on why they compete)

CRITICAL RULES:
- Use the company's MAIN PRODUCT website, not parent company sites
- Never use review sites (trustpilot, g2, capterra)
- Never use documentation sites (learn.microsoft.com, docs.oracle.com)
- Never use education/academy sites
- Never use book publisher sites
- The URL should be where a customer would go to BUY or SIGN UP for the competing product
- For example: QuickBooks = https://quickbooks.intuit.com, Xero = https://www.xero.com, NetSuite = https://www.netsuite.com`

// candidate is one discovered competitor before analysis.
type candidate struct {
	Name string
	URL  string
}

// wireCandidate mirrors the JSON array items the discovery prompt requests.
type wireCandidate struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// URL path fragments that mark non-product pages during validation.
var skipPaths = []string{"/docs", "/learn", "/academy", "/support", "/help", "/blog/", "/community"}

// discoverCompetitors asks the model for competitors with official product
// URLs, optionally validates each URL against a same-domain pricing-page
// search, and dedupes by normalized domain. The base company's own domain is
// always excluded.
func (o *Orchestrator) discoverCompetitors(ctx context.Context, baseName, baseURL, scope, region string, notes *model.Notes) []candidate {
	if o.llm == nil {
		notes.Add("discover", model.NoteKindConfig, "language model not configured, skipping competitor discovery")
		return nil
	}

	raw, err := o.llmDiscover(ctx, baseName, baseURL, scope, region)
	if err != nil {
		notes.Addf("discover", model.NoteKindMalformed, "%v", err)
		return nil
	}
	if len(raw) == 0 {
		notes.Add("discover", model.NoteKindMalformed, "model returned no competitors")
		return nil
	}

	baseDomain := urlutil.NormalizeDomain(baseURL)
	seen := map[string]struct{}{}
	var out []candidate

	for _, c := range raw {
		name := strings.TrimSpace(c.Name)
		candidateURL := urlutil.EnsureScheme(strings.TrimSpace(c.URL))
		if name == "" || candidateURL == "" {
			continue
		}

		finalURL := candidateURL
		if o.search != nil {
			finalURL = o.validatePricingURL(ctx, name, candidateURL, region)
		}

		domain := urlutil.NormalizeDomain(finalURL)
		if domain == "" || domain == baseDomain {
			continue
		}
		if _, dup := seen[domain]; dup {
			continue
		}
		seen[domain] = struct{}{}
		out = append(out, candidate{Name: name, URL: finalURL})
		if len(out) >= o.cfg.MaxCompetitors {
			break
		}
	}
	return out
}

func (o *Orchestrator) llmDiscover(ctx context.Context, baseName, baseURL, scope, region string) ([]wireCandidate, error) {
	scopeNormalized := strings.ToLower(strings.TrimSpace(scope))
	if scopeNormalized == "" {
		scopeNormalized = "global"
	}
	location := strings.TrimSpace(region)

	locationLabel := location
	if locationLabel == "" {
		locationLabel = "worldwide"
	}
	userPrompt := fmt.Sprintf(
		"For %s (%s), %s\n\nGeographic scope: %s. Location: %s.\n"+
			"Only include competitors that are relevant at this geographic level.\n"+
			"For regional scope, prioritize local competitors and regional market leaders.\n"+
			"For global scope, include the largest worldwide competitors.\n\n"+
			"Return ONLY a JSON array of objects with keys: name (string), url (string), reason (string).",
		baseName, baseURL, scopeInstruction(scopeNormalized, location), scopeNormalized, locationLabel,
	)

	text, err := o.llm.Complete(ctx, llm.Request{
		System:      fmt.Sprintf(discoverSystemPromptFmt, baseName, baseURL),
		Prompt:      userPrompt,
		Temperature: 0.1,
	})
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("discover: model returned no text")
	}

	var items []wireCandidate
	if err := json.Unmarshal([]byte(extract.StripCodeFence(text)), &items); err != nil {
		return nil, fmt.Errorf("discover: response not valid JSON: %w", err)
	}
	if len(items) > o.cfg.MaxCompetitors {
		items = items[:o.cfg.MaxCompetitors]
	}
	return items, nil
}

// scopeInstruction phrases the geographic ask for the user message. Scope is
// one of global, country, regional, provincial.
func scopeInstruction(scope, location string) string {
	if scope == "global" || location == "" {
		return "List the top 3-5 global direct competitors."
	}
	switch scope {
	case "country":
		return fmt.Sprintf("List the top 3-5 competitors specifically in %s. Include local/regional players that compete in that market.", location)
	case "regional":
		return fmt.Sprintf("List the top 3-5 competitors in the %s region. Include both global players with presence there and local competitors.", location)
	case "provincial":
		return fmt.Sprintf("List the top 3-5 competitors in %s. Include local businesses and regional players.", location)
	}
	return "List the top 3-5 direct competitors."
}

// validatePricingURL searches for the competitor's pricing page on its own
// domain. The model-provided URL is kept when no same-domain result passes
// the path filter.
func (o *Orchestrator) validatePricingURL(ctx context.Context, name, llmURL, region string) string {
	domain := urlutil.NormalizeDomain(llmURL)
	if domain == "" {
		return llmURL
	}

	var query string
	if r := strings.TrimSpace(region); r != "" {
		query = fmt.Sprintf("competitors of %s in %s pricing site:%s", name, r, domain)
	} else {
		query = fmt.Sprintf("%s official pricing page site:%s", name, domain)
	}

	resp, err := o.search.Search(ctx, query, tavily.WithMaxResults(5))
	if err != nil {
		zap.L().Debug("discovery: pricing URL validation failed",
			zap.String("competitor", name), zap.Error(err))
		return llmURL
	}

	for _, r := range resp.Results {
		if r.URL == "" {
			continue
		}
		full := urlutil.EnsureScheme(r.URL)
		if !urlutil.SameDomain(full, domain) {
			continue
		}
		if hasSkippedPath(full) {
			continue
		}
		return full
	}
	return llmURL
}

func hasSkippedPath(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, skip := range skipPaths {
		if strings.Contains(lower, skip) {
			return true
		}
	}
	return false
}

// analyzeCompetitors runs the research pipeline for each candidate with
// bounded parallelism and a per-competitor timeout. Timed-out competitors
// are dropped; survivors keep submission order.
func (o *Orchestrator) analyzeCompetitors(ctx context.Context, candidates []candidate, notes *model.Notes) []model.CompetitorProfile {
	results := make([]*model.CompetitorProfile, len(candidates))
	var mu sync.Mutex

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)
	for i, c := range candidates {
		g.Go(func() error {
			taskCtx, cancel := context.WithTimeout(gCtx, o.cfg.CompetitorTimeout)
			defer cancel()

			done := make(chan *research.Result, 1)
			go func() {
				done <- o.research.Run(taskCtx, c.URL)
			}()

			select {
			case res := <-done:
				name := c.Name
				if name == "" {
					name = research.DomainToName(urlutil.Domain(c.URL))
				}
				data := model.EmptyCompetitor()
				if res.Competitor != nil {
					data = res.Competitor
				}
				results[i] = &model.CompetitorProfile{
					CompanyName: name,
					CompanyURL:  c.URL,
					Data:        *data,
				}
			case <-taskCtx.Done():
				mu.Lock()
				notes.Addf("competitors", model.NoteKindTimeout,
					"analysis of %s timed out (%s), dropped", c.URL, o.cfg.CompetitorTimeout)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	profiles := make([]model.CompetitorProfile, 0, len(candidates))
	for _, r := range results {
		if r != nil {
			profiles = append(profiles, *r)
		}
	}
	return profiles
}
