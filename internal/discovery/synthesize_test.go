package discovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/compete-cli/internal/llm"
	"github.com/sells-group/compete-cli/internal/model"
)

func baseProfile() model.BaseProfile {
	return model.BaseProfile{
		CompanyName: "Acme",
		CompanyURL:  "https://acme.io",
		PricingTiers: []model.PricingTier{
			{Name: "Starter", Price: "$20/mo"},
		},
		FeatureList: []string{"Invoicing", "Payroll"},
	}
}

func competitorProfiles() []model.CompetitorProfile {
	return []model.CompetitorProfile{
		{CompanyName: "Xero", CompanyURL: "https://www.xero.com"},
		{CompanyName: "FreshBooks", CompanyURL: "https://www.freshbooks.com"},
	}
}

const richSynthesisResponse = `{
	"summary_text": "Acme undercuts Xero on entry pricing.",
	"win_rate": {"value": 62, "reasoning": "Feature overlap and lower price", "confidence": "high", "inputs_used": ["Acme entry: $20/mo", "Xero entry: $29/mo"]},
	"market_share_estimate": {"value": "8%", "reasoning": "Known market position", "confidence": "low", "inputs_used": []},
	"pricing_advantage": "about 30% lower",
	"total_market_size": {"value": "$8.4B", "reasoning": "Industry reports", "confidence": "low", "inputs_used": []},
	"total_active_users": null,
	"market_segments": [
		{"segment_name": "SMB", "leader": "Xero", "share": "35%", "growth": "12%", "reasoning": "Largest installed base"}
	],
	"strategic_recommendations": {
		"immediate_actions": [{"text": "Highlight entry pricing", "reasoning": "30% cheaper than Xero"}],
		"product_priorities": ["Ship payroll integrations"],
		"market_focus": []
	}
}`

func TestSynthesize(t *testing.T) {
	m := &mockLLM{}
	m.On("Complete", mock.Anything, isPrompt(synthesisMarker)).Return(richSynthesisResponse, nil).Once()

	summary, err := NewSynthesizer(m).Synthesize(context.Background(), baseProfile(), competitorProfiles(), "global", "")

	require.NoError(t, err)
	assert.Equal(t, "Acme undercuts Xero on entry pricing.", summary.SummaryText)

	// Numeric metric values are stringified.
	assert.Equal(t, "62", summary.WinRate.Value)
	assert.Equal(t, model.ConfidenceHigh, summary.WinRate.Confidence)
	assert.Equal(t, []string{"Acme entry: $20/mo", "Xero entry: $29/mo"}, summary.WinRate.InputsUsed)

	// Bare-string metrics carry no reasoning and are low confidence.
	assert.Equal(t, "about 30% lower", summary.PricingAdvantage.Value)
	assert.Equal(t, model.ConfidenceLow, summary.PricingAdvantage.Confidence)

	require.NotNil(t, summary.TotalMarketSize)
	assert.Equal(t, "$8.4B", summary.TotalMarketSize.Value)
	assert.Nil(t, summary.TotalActiveUsers)

	require.Len(t, summary.MarketSegments, 1)
	assert.Equal(t, "SMB", summary.MarketSegments[0].SegmentName)

	require.NotNil(t, summary.StrategicRecommendations)
	require.Len(t, summary.StrategicRecommendations.ImmediateActions, 1)
	assert.Equal(t, "Highlight entry pricing", summary.StrategicRecommendations.ImmediateActions[0].Text)
	// Bare-string recommendations are accepted.
	require.Len(t, summary.StrategicRecommendations.ProductPriorities, 1)
	assert.Equal(t, "Ship payroll integrations", summary.StrategicRecommendations.ProductPriorities[0].Text)
	assert.Empty(t, summary.StrategicRecommendations.MarketFocus)

	assert.Equal(t, []string{"https://acme.io", "https://www.xero.com", "https://www.freshbooks.com"}, summary.SourcesUsed)
	require.Len(t, summary.DataSources, 1)
	assert.Equal(t, model.SourceTypeLLMEstimate, summary.DataSources[0].SourceType)
	assert.Equal(t, "(AI synthesis)", summary.DataSources[0].SourceURL)
	assert.Contains(t, summary.ConfidenceNote, "https://www.xero.com")
}

func TestSynthesize_RegionInPrompt(t *testing.T) {
	m := &mockLLM{}
	m.On("Complete", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		req := args.Get(1).(llm.Request)
		assert.Contains(t, req.Prompt, "scoped to country level, specifically Canada.")
		assert.Contains(t, req.Prompt, "should reflect this scoped geography")
	}).Return(richSynthesisResponse, nil).Once()

	_, err := NewSynthesizer(m).Synthesize(context.Background(), baseProfile(), nil, "country", "Canada")

	require.NoError(t, err)
	m.AssertExpectations(t)
}

func TestSynthesize_DegenerateTriggersFallback(t *testing.T) {
	degenerate := `{
		"summary_text": "Something",
		"win_rate": "N/A",
		"market_share_estimate": "N/A",
		"pricing_advantage": "N/A"
	}`
	fallback := `{
		"summary_text": "Acme is a credible challenger to Xero.",
		"win_rate": "58%",
		"market_share_estimate": "N/A",
		"pricing_advantage": "Competitive on entry tier"
	}`

	m := &mockLLM{}
	m.On("Complete", mock.Anything, isPrompt(synthesisMarker)).Return(degenerate, nil).Once()
	m.On("Complete", mock.Anything, isPrompt("Based only on company names")).Return(fallback, nil).Once()

	summary, err := NewSynthesizer(m).Synthesize(context.Background(), baseProfile(), competitorProfiles(), "global", "")

	require.NoError(t, err)
	assert.Equal(t, "Acme is a credible challenger to Xero.", summary.SummaryText)
	assert.Equal(t, "58%", summary.WinRate.Value)
	assert.Equal(t, model.ConfidenceLow, summary.WinRate.Confidence)
	assert.Contains(t, summary.WinRate.Reasoning, "company names only")
	// Unresolved fallback values get substituted placeholders.
	assert.Equal(t, "Est. mid-tier", summary.MarketShareEstimate.Value)
	assert.Equal(t, model.ConfidenceLow, summary.MarketShareEstimate.Confidence)
	m.AssertExpectations(t)
}

func TestSynthesize_FallbackUnusableKeepsUnresolved(t *testing.T) {
	degenerate := `{"summary_text": "", "win_rate": "N/A", "market_share_estimate": "N/A", "pricing_advantage": "N/A"}`
	uselessFallback := `{"summary_text": "Text", "win_rate": "N/A", "market_share_estimate": "N/A", "pricing_advantage": "N/A"}`

	m := &mockLLM{}
	m.On("Complete", mock.Anything, isPrompt(synthesisMarker)).Return(degenerate, nil).Once()
	m.On("Complete", mock.Anything, isPrompt("Based only on company names")).Return(uselessFallback, nil).Once()

	summary, err := NewSynthesizer(m).Synthesize(context.Background(), baseProfile(), competitorProfiles(), "global", "")

	require.NoError(t, err)
	assert.True(t, summary.WinRate.Unresolved())
	assert.Equal(t, "Comparison overview could not be generated from available data.", summary.SummaryText)
}

func TestSynthesize_NilClient(t *testing.T) {
	_, err := NewSynthesizer(nil).Synthesize(context.Background(), baseProfile(), nil, "global", "")

	assert.ErrorIs(t, err, llm.ErrNoCredentials)
}

func TestSynthesize_InvalidJSON(t *testing.T) {
	m := &mockLLM{}
	m.On("Complete", mock.Anything, mock.Anything).Return("no json here", nil).Once()

	_, err := NewSynthesizer(m).Synthesize(context.Background(), baseProfile(), nil, "global", "")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid JSON")
}

func TestSynthesize_EmptyResponse(t *testing.T) {
	m := &mockLLM{}
	m.On("Complete", mock.Anything, mock.Anything).Return("  ", nil).Once()

	_, err := NewSynthesizer(m).Synthesize(context.Background(), baseProfile(), nil, "global", "")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no text")
}
