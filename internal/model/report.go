package model

// MetricUnresolved is the sentinel value for metrics the synthesis stage
// could not derive from evidence.
const MetricUnresolved = "N/A"

// MetricWithReasoning wraps every estimate the synthesis stage produces so
// the estimate is always auditable. A metric with confidence "low" carries
// empty or explanatory InputsUsed, signaling it was not derived from
// scraped evidence.
type MetricWithReasoning struct {
	Value      string   `json:"value"`
	Reasoning  string   `json:"reasoning"`
	Confidence string   `json:"confidence"`
	InputsUsed []string `json:"inputs_used"`
}

// UnresolvedMetric returns the placeholder metric used when synthesis fails.
func UnresolvedMetric() MetricWithReasoning {
	return MetricWithReasoning{
		Value:      MetricUnresolved,
		Confidence: ConfidenceLow,
		InputsUsed: []string{},
	}
}

// Unresolved reports whether the metric still carries the sentinel value.
func (m MetricWithReasoning) Unresolved() bool {
	return m.Value == "" || m.Value == MetricUnresolved
}

// MarketSegment is one LLM-estimated segment of the scoped market.
type MarketSegment struct {
	SegmentName string `json:"segment_name"`
	Leader      string `json:"leader"`
	Share       string `json:"share"`
	Growth      string `json:"growth"`
	Reasoning   string `json:"reasoning"`
}

// Recommendation is one strategic suggestion with its justification.
type Recommendation struct {
	Text      string `json:"text"`
	Reasoning string `json:"reasoning"`
}

// StrategicRecommendations buckets recommendations by horizon.
type StrategicRecommendations struct {
	ImmediateActions  []Recommendation `json:"immediate_actions"`
	ProductPriorities []Recommendation `json:"product_priorities"`
	MarketFocus       []Recommendation `json:"market_focus"`
}

// ComparisonSummary is the synthesis stage output: narrative plus audited
// metrics comparing the base company against its competitive set.
type ComparisonSummary struct {
	SummaryText              string                    `json:"summary_text"`
	WinRate                  MetricWithReasoning       `json:"win_rate"`
	MarketShareEstimate      MetricWithReasoning       `json:"market_share_estimate"`
	PricingAdvantage         MetricWithReasoning       `json:"pricing_advantage"`
	TotalMarketSize          *MetricWithReasoning      `json:"total_market_size,omitempty"`
	TotalActiveUsers         *MetricWithReasoning      `json:"total_active_users,omitempty"`
	MarketSegments           []MarketSegment           `json:"market_segments,omitempty"`
	StrategicRecommendations *StrategicRecommendations `json:"strategic_recommendations,omitempty"`
	DataSources              []SourceAttribution       `json:"data_sources"`
	SourcesUsed              []string                  `json:"sources_used"`
	ConfidenceNote           string                    `json:"confidence_note,omitempty"`
}

// UnresolvedComparison returns a fully populated summary whose metrics are
// the unresolved sentinel, so a MarketReport is structurally valid even when
// synthesis fails outright.
func UnresolvedComparison() ComparisonSummary {
	return ComparisonSummary{
		SummaryText:         "Comparison could not be generated.",
		WinRate:             UnresolvedMetric(),
		MarketShareEstimate: UnresolvedMetric(),
		PricingAdvantage:    UnresolvedMetric(),
		DataSources:         []SourceAttribution{},
		SourcesUsed:         []string{},
	}
}

// MarketReport is the atomic unit of a single discovery run. Immutable once
// produced; new runs append new reports to history.
type MarketReport struct {
	BaseCompanyData BaseProfile         `json:"base_company_data"`
	Competitors     []CompetitorProfile `json:"competitors"`
	Comparisons     ComparisonSummary   `json:"comparisons"`
}
