// Package extract turns raw scraped page text into a structured competitor
// profile by prompting the language model and defensively parsing its JSON
// response.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/compete-cli/internal/llm"
	"github.com/sells-group/compete-cli/internal/model"
	"github.com/sells-group/compete-cli/internal/normalize"
)

// ErrEmptyResponse is returned when the model produced no text at all.
var ErrEmptyResponse = eris.New("extract: model returned no text")

// Content budgets per input, matching the prompt's size assumptions.
const (
	maxPricingChars = 12000
	maxNewsChars    = 8000
)

const extractPrompt = `You are a competitive intelligence analyst. Extract structured data from the following scraped web content (from %s) into a JSON object that matches this exact schema. Return only valid JSON, no markdown or explanation.
Be concise. Respond in under 500 tokens.

The content may be from dedicated pricing/news pages OR from a homepage if those were unavailable. Extract whatever you can: pricing mentions, product features, value propositions, and infer a brief SWOT from the tone and claims. Prefer at least 3-5 feature_list items and 1-2 pricing_tiers if any price is mentioned.

Schema:
- pricing_tiers: list of objects, each with: name (string), price (string or null), features (list of strings)
- recent_news: list of objects, each with: title (string), summary (string or null), url (string or null), date (string or null)
- feature_list: list of strings (product/feature names or capabilities) — extract at least 3 if the page describes the product
- swot_analysis: one object with: strength (list of strings), weakness (list of strings), opportunity (list of strings), threat (list of strings). Infer 1-2 items per category if possible from positioning and claims.

Content:

## Pricing page content
%s

## News/Blog content
%s

Return a single JSON object with keys: pricing_tiers, recent_news, feature_list, swot_analysis.`

// Extractor prompts the model for a structured profile.
type Extractor struct {
	llm llm.Client
}

// New creates an Extractor.
func New(client llm.Client) *Extractor {
	return &Extractor{llm: client}
}

// wire types mirror the JSON the model is asked to produce. Conversion to
// model types is the only place lenient shapes are tolerated.
type wireProfile struct {
	PricingTiers []wireTier     `json:"pricing_tiers"`
	RecentNews   []wireNewsItem `json:"recent_news"`
	FeatureList  []string       `json:"feature_list"`
	SWOTAnalysis *wireSWOT      `json:"swot_analysis"`
}

type wireTier struct {
	Name     string   `json:"name"`
	Price    *string  `json:"price"`
	Features []string `json:"features"`
}

type wireNewsItem struct {
	Title   string  `json:"title"`
	Summary *string `json:"summary"`
	URL     *string `json:"url"`
	Date    *string `json:"date"`
}

type wireSWOT struct {
	Strength    []string `json:"strength"`
	Weakness    []string `json:"weakness"`
	Opportunity []string `json:"opportunity"`
	Threat      []string `json:"threat"`
}

// Extract prompts the model with the pricing and news text for one company
// and parses the response into a Competitor profile. Missing subfields
// default to empty containers; only a fully unparseable document fails.
func (e *Extractor) Extract(ctx context.Context, pricingText, newsText, companyURL string) (*model.Competitor, error) {
	prompt := fmt.Sprintf(extractPrompt,
		companyURL,
		normalize.Truncate(pricingText, maxPricingChars),
		normalize.Truncate(newsText, maxNewsChars),
	)

	text, err := e.llm.Complete(ctx, llm.Request{
		Prompt:      prompt,
		Temperature: 0.1,
	})
	if err != nil {
		return nil, eris.Wrap(err, "extract: completion")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyResponse
	}

	var wire wireProfile
	if err := json.Unmarshal([]byte(StripCodeFence(text)), &wire); err != nil {
		zap.L().Debug("extract: invalid JSON from model",
			zap.String("company_url", companyURL),
			zap.String("head", normalize.Truncate(text, 200)),
		)
		return nil, eris.Wrap(err, "extract: response not valid JSON")
	}

	return fromWire(wire), nil
}

func fromWire(w wireProfile) *model.Competitor {
	out := model.EmptyCompetitor()

	for _, t := range w.PricingTiers {
		tier := model.PricingTier{
			Name:     t.Name,
			Features: t.Features,
		}
		if tier.Features == nil {
			tier.Features = []string{}
		}
		if t.Price != nil {
			tier.Price = *t.Price
		}
		out.PricingTiers = append(out.PricingTiers, tier)
	}

	for _, n := range w.RecentNews {
		item := model.NewsItem{Title: n.Title}
		if n.Summary != nil {
			item.Summary = *n.Summary
		}
		if n.URL != nil {
			item.URL = *n.URL
		}
		if n.Date != nil {
			item.Date = *n.Date
		}
		out.RecentNews = append(out.RecentNews, item)
	}

	if w.FeatureList != nil {
		out.FeatureList = w.FeatureList
	}

	if w.SWOTAnalysis != nil {
		out.SWOTAnalysis = &model.SWOTItem{
			Strength:    orEmpty(w.SWOTAnalysis.Strength),
			Weakness:    orEmpty(w.SWOTAnalysis.Weakness),
			Opportunity: orEmpty(w.SWOTAnalysis.Opportunity),
			Threat:      orEmpty(w.SWOTAnalysis.Threat),
		}
	}

	return out
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var (
	fenceOpenRe  = regexp.MustCompile("^```(?:json)?\\s*")
	fenceCloseRe = regexp.MustCompile("\\s*```$")
)

// StripCodeFence removes a leading/trailing fenced-code-block wrapper the
// model sometimes adds around JSON output.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = fenceOpenRe.ReplaceAllString(s, "")
	return fenceCloseRe.ReplaceAllString(s, "")
}
