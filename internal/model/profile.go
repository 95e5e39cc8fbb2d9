package model

import "time"

// Source types recorded in SourceAttribution.
const (
	SourceTypePricingPage = "pricing_page"
	SourceTypeNewsPage    = "news_page"
	SourceTypeHomepage    = "homepage"
	SourceTypeLLMEstimate = "llm_estimate"
	SourceTypeScraped     = "scraped"
	SourceTypeWebsite     = "website"
)

// Confidence levels attached to sources and metrics.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// SourceAttribution records where a piece of extracted data came from.
// It is attached by reference and never mutated after attachment.
type SourceAttribution struct {
	SourceURL  string    `json:"source_url"`
	SourceType string    `json:"source_type"`
	ScrapedAt  time.Time `json:"scraped_at"`
	Confidence string    `json:"confidence"`
}

// PricingTier is a single priced plan (e.g. Starter, Pro, Enterprise).
type PricingTier struct {
	Name     string             `json:"name"`
	Price    string             `json:"price,omitempty"`
	Features []string           `json:"features"`
	Source   *SourceAttribution `json:"source,omitempty"`
}

// NewsItem is one discovered announcement about a company.
type NewsItem struct {
	Title      string `json:"title"`
	Summary    string `json:"summary,omitempty"`
	URL        string `json:"url,omitempty"`
	Date       string `json:"date,omitempty"`
	SourceType string `json:"source_type,omitempty"`
}

// SWOTItem holds the four SWOT category lists for one company.
type SWOTItem struct {
	Strength    []string           `json:"strength"`
	Weakness    []string           `json:"weakness"`
	Opportunity []string           `json:"opportunity"`
	Threat      []string           `json:"threat"`
	Source      *SourceAttribution `json:"source,omitempty"`
}

// Competitor is the structured profile produced by one research pipeline run.
// A fresh run produces a fresh profile; profiles are never partially updated.
type Competitor struct {
	PricingTiers []PricingTier       `json:"pricing_tiers"`
	RecentNews   []NewsItem          `json:"recent_news"`
	FeatureList  []string            `json:"feature_list"`
	SWOTAnalysis *SWOTItem           `json:"swot_analysis,omitempty"`
	Sources      []SourceAttribution `json:"sources"`
}

// EmptyCompetitor returns a structurally valid profile with no data.
// Used wherever the pipeline degrades instead of failing: lists are always
// present, just possibly empty.
func EmptyCompetitor() *Competitor {
	return &Competitor{
		PricingTiers: []PricingTier{},
		RecentNews:   []NewsItem{},
		FeatureList:  []string{},
	}
}

// BaseProfile is the scraped profile of the company under analysis.
type BaseProfile struct {
	CompanyName  string        `json:"company_name"`
	CompanyURL   string        `json:"company_url"`
	PricingTiers []PricingTier `json:"pricing_tiers"`
	FeatureList  []string      `json:"feature_list"`
}

// CompetitorProfile is a discovered competitor with its scraped data.
type CompetitorProfile struct {
	CompanyName string     `json:"company_name"`
	CompanyURL  string     `json:"company_url"`
	Data        Competitor `json:"data"`
}
