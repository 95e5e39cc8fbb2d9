package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/compete-cli/internal/extract"
	"github.com/sells-group/compete-cli/internal/llm"
	"github.com/sells-group/compete-cli/internal/model"
)

const maxRecommendationsPerBucket = 5

// featureSampleSize caps how many features per company are embedded in the
// synthesis prompt.
const featureSampleSize = 15

// Synthesizer turns scraped profiles into a comparison summary with audited
// metrics. Every metric carries reasoning, confidence, and the inputs used.
type Synthesizer struct {
	llm llm.Client
}

// NewSynthesizer creates a Synthesizer.
func NewSynthesizer(client llm.Client) *Synthesizer {
	return &Synthesizer{llm: client}
}

const synthesisPromptFmt = `You are a competitive intelligence analyst. Using the following scraped data plus your knowledge of this market, produce a comparison and market intelligence estimates.

%s %s

If pricing data is missing or appears incorrect for some competitors, focus your analysis on the competitors where you have good data. Use your training knowledge about these well-known companies to supplement the scraped data where needed. Always provide a substantive summary_text and every metric with its reasoning. Never return empty strings.

For EVERY metric you generate, you MUST include:
- reasoning: explain in 1-2 sentences how you arrived at this number
- confidence: "high" if based on scraped data, "medium" if inferred from scraped data, "low" if mostly estimated from your training knowledge
- inputs_used: list the specific data points (with values) that informed this metric
Do NOT generate numbers without explanation. If data is insufficient, say so in the reasoning and set confidence to "low".

%s

---

Competitors:

%s

Output a JSON object with this structure:

- summary_text: 2-3 sentences comparing the base company to competitors.

- win_rate: object with value (e.g. "62%%"), reasoning (1-2 sentences), confidence ("high"|"medium"|"low"), inputs_used (array of strings, e.g. ["Sage entry price: $25/mo", "QuickBooks entry price: $30/mo", "Feature overlap: 8/10"]).

- market_share_estimate: object with value (e.g. "8%%"), reasoning, confidence, inputs_used.

- pricing_advantage: object with value (e.g. "15%% lower on entry tier"), reasoning, confidence, inputs_used.

- total_market_size: object with value (e.g. "$8.4B"), reasoning, confidence, inputs_used. Or null if not estimated.

- total_active_users: object with value (e.g. "22M"), reasoning, confidence, inputs_used. Or null if not estimated.

- market_segments: list of 3-4 objects, each with segment_name, leader, share, growth, and reasoning (why this leader/share).

- strategic_recommendations: object with three arrays: immediate_actions, product_priorities, market_focus. Each array contains objects with text (the recommendation) and reasoning (why it was suggested). Example: { "immediate_actions": [{ "text": "Highlight lower entry pricing", "reasoning": "Scraped data shows 15%% lower entry tier vs main competitor" }], ... }.

Return only valid JSON, no markdown.`

const fallbackPromptFmt = `You are a competitive intelligence analyst. Based only on company names, write a 2-3 sentence competitive overview.

Base company: %s
Competitors: %s

Return ONLY a JSON object with these exact keys (no markdown, no code block):
- summary_text: 2-3 sentences comparing %s to these competitors in the market. Be substantive.
- win_rate: estimated win rate for %s vs these competitors (e.g. "55%%" or "Moderate")
- market_share_estimate: estimated market share for %s (e.g. "12%%" or "Mid-tier")
- pricing_advantage: one short sentence on typical pricing position (e.g. "Competitive on entry tier")`

// wire types for the lenient synthesis response. Metrics arrive either as an
// audited object or as a bare string; both shapes are accepted.
type wireSynthesis struct {
	SummaryText              string           `json:"summary_text"`
	WinRate                  json.RawMessage  `json:"win_rate"`
	MarketShareEstimate      json.RawMessage  `json:"market_share_estimate"`
	PricingAdvantage         json.RawMessage  `json:"pricing_advantage"`
	TotalMarketSize          json.RawMessage  `json:"total_market_size"`
	TotalActiveUsers         json.RawMessage  `json:"total_active_users"`
	MarketSegments           []wireSegment    `json:"market_segments"`
	StrategicRecommendations *json.RawMessage `json:"strategic_recommendations"`
}

type wireSegment struct {
	SegmentName string `json:"segment_name"`
	Leader      string `json:"leader"`
	Share       string `json:"share"`
	Growth      string `json:"growth"`
	Reasoning   string `json:"reasoning"`
}

type wireMetric struct {
	Value      any    `json:"value"`
	Reasoning  string `json:"reasoning"`
	Confidence string `json:"confidence"`
	InputsUsed []any  `json:"inputs_used"`
}

type wireStrategic struct {
	ImmediateActions  []json.RawMessage `json:"immediate_actions"`
	ProductPriorities []json.RawMessage `json:"product_priorities"`
	MarketFocus       []json.RawMessage `json:"market_focus"`
}

type wireFallback struct {
	SummaryText         string `json:"summary_text"`
	WinRate             string `json:"win_rate"`
	MarketShareEstimate string `json:"market_share_estimate"`
	PricingAdvantage    string `json:"pricing_advantage"`
}

// Synthesize generates a comparison summary for the base company against its
// competitor set. A degenerate primary response (no summary, or every core
// metric unresolved) triggers a minimal names-only fallback prompt whose
// estimates are force-tagged as low confidence.
func (s *Synthesizer) Synthesize(ctx context.Context, base model.BaseProfile, competitors []model.CompetitorProfile, scope, region string) (model.ComparisonSummary, error) {
	if s.llm == nil {
		return model.ComparisonSummary{}, llm.ErrNoCredentials
	}

	prompt := s.buildPrompt(base, competitors, scope, region)
	zap.L().Debug("synthesis: prompt built", zap.Int("length", len(prompt)))

	text, err := s.llm.Complete(ctx, llm.Request{Prompt: prompt, Temperature: 0.1})
	if err != nil {
		return model.ComparisonSummary{}, eris.Wrap(err, "synthesis: completion")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return model.ComparisonSummary{}, eris.New("synthesis: model returned no text")
	}

	var wire wireSynthesis
	if err := json.Unmarshal([]byte(extract.StripCodeFence(text)), &wire); err != nil {
		return model.ComparisonSummary{}, eris.Wrap(err, "synthesis: response not valid JSON")
	}

	summary := model.ComparisonSummary{
		SummaryText:         strings.TrimSpace(wire.SummaryText),
		WinRate:             parseMetric(wire.WinRate, model.MetricUnresolved),
		MarketShareEstimate: parseMetric(wire.MarketShareEstimate, model.MetricUnresolved),
		PricingAdvantage:    parseMetric(wire.PricingAdvantage, model.MetricUnresolved),
		MarketSegments:      fromWireSegments(wire.MarketSegments),
	}

	if len(wire.TotalMarketSize) > 0 && string(wire.TotalMarketSize) != "null" {
		m := parseMetric(wire.TotalMarketSize, model.MetricUnresolved)
		summary.TotalMarketSize = &m
	}
	if len(wire.TotalActiveUsers) > 0 && string(wire.TotalActiveUsers) != "null" {
		m := parseMetric(wire.TotalActiveUsers, model.MetricUnresolved)
		summary.TotalActiveUsers = &m
	}
	summary.StrategicRecommendations = parseRecommendations(wire.StrategicRecommendations)

	if s.degenerate(summary) {
		zap.L().Info("synthesis: primary response degenerate, attempting names-only fallback")
		s.applyFallback(ctx, base, competitors, &summary)
	}

	sourceURLs := []string{base.CompanyURL}
	for _, cp := range competitors {
		if cp.CompanyURL != "" && !contains(sourceURLs, cp.CompanyURL) {
			sourceURLs = append(sourceURLs, cp.CompanyURL)
		}
	}
	summary.SourcesUsed = sourceURLs
	summary.DataSources = []model.SourceAttribution{{
		SourceURL:  "(AI synthesis)",
		SourceType: model.SourceTypeLLMEstimate,
		ScrapedAt:  time.Now().UTC(),
		Confidence: model.ConfidenceMedium,
	}}
	summary.ConfidenceNote = "Market estimates generated by AI based on scraped competitor data from: " + strings.Join(sourceURLs, ", ")

	if summary.SummaryText == "" {
		summary.SummaryText = "Comparison overview could not be generated from available data."
	}
	return summary, nil
}

func (s *Synthesizer) buildPrompt(base model.BaseProfile, competitors []model.CompetitorProfile, scope, region string) string {
	scopeLabel := strings.ToLower(strings.TrimSpace(scope))
	if scopeLabel == "" {
		scopeLabel = "global"
	}
	regionLabel := strings.TrimSpace(region)

	scopeContext := "This analysis is scoped to " + scopeLabel + " level"
	geographyNote := ""
	if regionLabel != "" {
		scopeContext += ", specifically " + regionLabel + "."
		geographyNote = "Market estimates (total_market_size, total_active_users, market_segments) should reflect this scoped geography."
	} else {
		scopeContext += " (global)."
	}

	baseText := fmt.Sprintf("## Base company: %s (%s)\nPricing:\n%s\nFeatures: %s",
		base.CompanyName, base.CompanyURL,
		formatPricing(base.PricingTiers),
		formatFeatures(base.FeatureList),
	)

	compTexts := make([]string, 0, len(competitors))
	for i, cp := range competitors {
		compTexts = append(compTexts, fmt.Sprintf("### Competitor %d: %s (%s)\nPricing:\n%s\nFeatures: %s",
			i+1, cp.CompanyName, cp.CompanyURL,
			formatPricing(cp.Data.PricingTiers),
			formatFeatures(cp.Data.FeatureList),
		))
	}

	return fmt.Sprintf(synthesisPromptFmt, scopeContext, geographyNote, baseText, strings.Join(compTexts, "\n\n"))
}

// applyFallback runs the names-only prompt and, if it yields a usable
// answer, replaces the summary text and core metrics. Fallback estimates are
// not derived from scraped data, so they are always tagged low confidence.
func (s *Synthesizer) applyFallback(ctx context.Context, base model.BaseProfile, competitors []model.CompetitorProfile, summary *model.ComparisonSummary) {
	names := make([]string, 0, len(competitors))
	for _, cp := range competitors {
		names = append(names, cp.CompanyName)
	}
	namesList := "none"
	if len(names) > 0 {
		namesList = strings.Join(names, ", ")
	}

	prompt := fmt.Sprintf(fallbackPromptFmt,
		base.CompanyName, namesList, base.CompanyName, base.CompanyName, base.CompanyName)

	text, err := s.llm.Complete(ctx, llm.Request{Prompt: prompt, Temperature: 0.1})
	if err != nil {
		zap.L().Warn("synthesis: fallback failed", zap.Error(err))
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	var fb wireFallback
	if err := json.Unmarshal([]byte(extract.StripCodeFence(text)), &fb); err != nil {
		zap.L().Warn("synthesis: fallback response not valid JSON", zap.Error(err))
		return
	}

	fb.SummaryText = strings.TrimSpace(fb.SummaryText)
	winRate := metricOr(fb.WinRate, "Moderate")
	marketShare := metricOr(fb.MarketShareEstimate, "Est. mid-tier")
	pricing := metricOr(fb.PricingAdvantage, "Competitive positioning.")

	usable := fb.SummaryText != "" &&
		(!isUnresolvedValue(fb.WinRate) || !isUnresolvedValue(fb.MarketShareEstimate))
	if !usable {
		return
	}

	summary.SummaryText = fb.SummaryText
	summary.WinRate = model.MetricWithReasoning{
		Value:      winRate,
		Reasoning:  "Fallback estimate from company names only (scraped data was insufficient).",
		Confidence: model.ConfidenceLow,
		InputsUsed: []string{},
	}
	summary.MarketShareEstimate = model.MetricWithReasoning{
		Value:      marketShare,
		Reasoning:  "Fallback estimate from company names only.",
		Confidence: model.ConfidenceLow,
		InputsUsed: []string{},
	}
	summary.PricingAdvantage = model.MetricWithReasoning{
		Value:      pricing,
		Reasoning:  "Fallback estimate from company names only.",
		Confidence: model.ConfidenceLow,
		InputsUsed: []string{},
	}
	zap.L().Info("synthesis: names-only fallback succeeded")
}

// degenerate reports whether the primary synthesis produced nothing usable:
// an empty summary, or every core metric unresolved.
func (s *Synthesizer) degenerate(summary model.ComparisonSummary) bool {
	if summary.SummaryText == "" {
		return true
	}
	return summary.WinRate.Unresolved() &&
		summary.MarketShareEstimate.Unresolved() &&
		summary.PricingAdvantage.Unresolved()
}

// parseMetric accepts either an audited metric object or a bare value. Bare
// values carry no reasoning and are tagged low confidence.
func parseMetric(raw json.RawMessage, defaultValue string) model.MetricWithReasoning {
	if len(raw) == 0 || string(raw) == "null" {
		return model.MetricWithReasoning{
			Value:      defaultValue,
			Confidence: model.ConfidenceLow,
			InputsUsed: []string{},
		}
	}

	var obj wireMetric
	if err := json.Unmarshal(raw, &obj); err == nil && (obj.Value != nil || obj.Reasoning != "" || obj.Confidence != "") {
		value := stringify(obj.Value)
		if value == "" {
			value = defaultValue
		}
		confidence := strings.ToLower(strings.TrimSpace(obj.Confidence))
		if confidence == "" {
			confidence = model.ConfidenceMedium
		}
		inputs := []string{}
		for _, in := range obj.InputsUsed {
			if s := stringify(in); s != "" {
				inputs = append(inputs, s)
			}
		}
		return model.MetricWithReasoning{
			Value:      value,
			Reasoning:  strings.TrimSpace(obj.Reasoning),
			Confidence: confidence,
			InputsUsed: inputs,
		}
	}

	var bare any
	if err := json.Unmarshal(raw, &bare); err != nil || bare == nil {
		return model.MetricWithReasoning{
			Value:      defaultValue,
			Confidence: model.ConfidenceLow,
			InputsUsed: []string{},
		}
	}
	return model.MetricWithReasoning{
		Value:      stringify(bare),
		Confidence: model.ConfidenceLow,
		InputsUsed: []string{},
	}
}

func fromWireSegments(segments []wireSegment) []model.MarketSegment {
	if len(segments) == 0 {
		return nil
	}
	out := make([]model.MarketSegment, 0, len(segments))
	for _, seg := range segments {
		name := strings.TrimSpace(seg.SegmentName)
		if name == "" {
			name = "Segment"
		}
		out = append(out, model.MarketSegment{
			SegmentName: name,
			Leader:      strings.TrimSpace(seg.Leader),
			Share:       strings.TrimSpace(seg.Share),
			Growth:      strings.TrimSpace(seg.Growth),
			Reasoning:   strings.TrimSpace(seg.Reasoning),
		})
	}
	return out
}

func parseRecommendations(raw *json.RawMessage) *model.StrategicRecommendations {
	if raw == nil || len(*raw) == 0 || string(*raw) == "null" {
		return nil
	}
	var wire wireStrategic
	if err := json.Unmarshal(*raw, &wire); err != nil {
		return nil
	}
	return &model.StrategicRecommendations{
		ImmediateActions:  normRecommendations(wire.ImmediateActions),
		ProductPriorities: normRecommendations(wire.ProductPriorities),
		MarketFocus:       normRecommendations(wire.MarketFocus),
	}
}

// normRecommendations accepts each item as either {text|action, reasoning}
// or a bare string, capped at five per bucket.
func normRecommendations(items []json.RawMessage) []model.Recommendation {
	out := []model.Recommendation{}
	for _, raw := range items {
		if len(out) >= maxRecommendationsPerBucket {
			break
		}
		var obj struct {
			Text      string `json:"text"`
			Action    string `json:"action"`
			Reasoning string `json:"reasoning"`
		}
		if err := json.Unmarshal(raw, &obj); err == nil && (obj.Text != "" || obj.Action != "") {
			text := obj.Text
			if text == "" {
				text = obj.Action
			}
			out = append(out, model.Recommendation{
				Text:      strings.TrimSpace(text),
				Reasoning: strings.TrimSpace(obj.Reasoning),
			})
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && strings.TrimSpace(s) != "" {
			out = append(out, model.Recommendation{Text: strings.TrimSpace(s)})
		}
	}
	return out
}

func formatPricing(tiers []model.PricingTier) string {
	if len(tiers) == 0 {
		return "No pricing found"
	}
	lines := make([]string, 0, len(tiers))
	for _, t := range tiers {
		price := t.Price
		if price == "" {
			price = "(no price)"
		}
		name := t.Name
		if name == "" {
			name = "Tier"
		}
		lines = append(lines, "- "+name+": "+price)
	}
	return strings.Join(lines, "\n")
}

func formatFeatures(features []string) string {
	if len(features) == 0 {
		return "None"
	}
	if len(features) > featureSampleSize {
		features = features[:featureSampleSize]
	}
	return strings.Join(features, ", ")
}

func metricOr(value, fallback string) string {
	if isUnresolvedValue(value) {
		return fallback
	}
	return strings.TrimSpace(value)
}

func isUnresolvedValue(value string) bool {
	v := strings.ToUpper(strings.TrimSpace(value))
	return v == "" || v == model.MetricUnresolved
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", t), "0"), ".")
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", t))
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
