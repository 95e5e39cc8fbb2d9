// Package diff compares two market reports and produces change events. The
// comparison is pure: no I/O, no stored state, and a single detection
// timestamp shared by every event from one call.
package diff

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/compete-cli/internal/model"
)

// Thresholds for pricing and feature-removal severity.
const (
	criticalPriceIncreasePct = 20
	criticalRemovedFeatures  = 3
	removedFeatureListCap    = 10
)

// ParsePrice extracts the numeric value from a price string, so "$29/mo"
// yields 29. Returns false when no number is present.
func ParsePrice(price string) (float64, bool) {
	var b strings.Builder
	for _, r := range price {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// PriceChangePct returns the percentage change between two price strings,
// positive for an increase. Returns false when either side is unparseable or
// the old price is zero.
func PriceChangePct(oldPrice, newPrice string) (float64, bool) {
	oldVal, okOld := ParsePrice(oldPrice)
	newVal, okNew := ParsePrice(newPrice)
	if !okOld || !okNew || oldVal == 0 {
		return 0, false
	}
	return (newVal - oldVal) / oldVal * 100, true
}

// competitorKey identifies a competitor across report snapshots: the URL
// when present, else the name.
func competitorKey(c model.CompetitorProfile) string {
	if c.CompanyURL != "" {
		return c.CompanyURL
	}
	return c.CompanyName
}

// DetectChanges compares two reports and returns the change events between
// them, in deterministic order. Competitors present in old but absent from
// new produce no events; absence from one discovery run is not evidence of
// exit. All events share one detection timestamp.
func DetectChanges(oldReport, newReport *model.MarketReport, monitorID string) []model.ChangeEvent {
	events := []model.ChangeEvent{}
	if oldReport == nil || newReport == nil {
		return events
	}
	detectedAt := time.Now().UTC()

	oldByKey := make(map[string]model.CompetitorProfile, len(oldReport.Competitors))
	for _, c := range oldReport.Competitors {
		oldByKey[competitorKey(c)] = c
	}

	for _, newC := range newReport.Competitors {
		if _, ok := oldByKey[competitorKey(newC)]; ok {
			continue
		}
		events = append(events, model.ChangeEvent{
			MonitoredCompanyID: monitorID,
			CompetitorName:     newC.CompanyName,
			ChangeType:         model.ChangeNewCompetitor,
			Title:              "New competitor discovered",
			Description:        fmt.Sprintf("Competitor '%s' is now in the competitive set.", newC.CompanyName),
			NewValue:           competitorKey(newC),
			Severity:           model.SeverityHigh,
			DetectedAt:         detectedAt,
			SourceURL:          newC.CompanyURL,
		})
	}

	for _, newC := range newReport.Competitors {
		oldC, ok := oldByKey[competitorKey(newC)]
		if !ok {
			continue
		}
		events = append(events, compareCompetitor(oldC, newC, monitorID, detectedAt)...)
	}

	return events
}

func compareCompetitor(oldC, newC model.CompetitorProfile, monitorID string, detectedAt time.Time) []model.ChangeEvent {
	var events []model.ChangeEvent
	name := newC.CompanyName
	url := newC.CompanyURL

	events = append(events, comparePricing(oldC.Data.PricingTiers, newC.Data.PricingTiers, monitorID, name, url, detectedAt)...)
	events = append(events, compareFeatures(oldC.Data.FeatureList, newC.Data.FeatureList, monitorID, name, url, detectedAt)...)

	if swotChanged(oldC.Data.SWOTAnalysis, newC.Data.SWOTAnalysis) {
		events = append(events, model.ChangeEvent{
			MonitoredCompanyID: monitorID,
			CompetitorName:     name,
			ChangeType:         model.ChangeSWOT,
			Title:              "SWOT analysis updated",
			Description:        fmt.Sprintf("SWOT for '%s' has changed (strengths, weaknesses, opportunities, or threats).", name),
			Severity:           model.SeverityMedium,
			DetectedAt:         detectedAt,
			SourceURL:          url,
		})
	}

	events = append(events, compareNews(oldC.Data.RecentNews, newC.Data.RecentNews, monitorID, name, detectedAt)...)
	return events
}

// comparePricing emits one event per tier whose price changed. Only tiers
// matched by name in both snapshots are compared; added or dropped tiers are
// not pricing changes, and neither is a price appearing on a tier that
// previously had none.
func comparePricing(oldTiers, newTiers []model.PricingTier, monitorID, name, url string, detectedAt time.Time) []model.ChangeEvent {
	oldByName := make(map[string]string, len(oldTiers))
	for _, t := range oldTiers {
		oldByName[tierName(t)] = t.Price
	}

	var events []model.ChangeEvent
	for _, t := range newTiers {
		tier := tierName(t)
		oldPrice, ok := oldByName[tier]
		if !ok || strings.TrimSpace(oldPrice) == "" {
			continue
		}
		if strings.TrimSpace(oldPrice) == strings.TrimSpace(t.Price) {
			continue
		}

		// Price increases of 20% or more are critical. Decreases and
		// unparseable changes stay high; a decrease still forces a
		// competitive response.
		severity := model.SeverityHigh
		if pct, ok := PriceChangePct(oldPrice, t.Price); ok && pct >= criticalPriceIncreasePct {
			severity = model.SeverityCritical
		}

		events = append(events, model.ChangeEvent{
			MonitoredCompanyID: monitorID,
			CompetitorName:     name,
			ChangeType:         model.ChangePricing,
			Title:              "Pricing change: " + tier,
			Description:        fmt.Sprintf("Price for tier '%s' changed from %s to %s.", tier, oldPrice, t.Price),
			OldValue:           oldPrice,
			NewValue:           t.Price,
			Severity:           severity,
			DetectedAt:         detectedAt,
			SourceURL:          url,
		})
	}
	return events
}

func tierName(t model.PricingTier) string {
	if t.Name == "" {
		return "Tier"
	}
	return t.Name
}

// compareFeatures emits one medium event per newly listed feature and a
// single batched event for removals. Removing more than three features at
// once reads as a product shift and is critical.
func compareFeatures(oldList, newList []string, monitorID, name, url string, detectedAt time.Time) []model.ChangeEvent {
	oldSet := toSet(oldList)
	newSet := toSet(newList)

	var events []model.ChangeEvent
	for _, f := range sortedDiff(newSet, oldSet) {
		events = append(events, model.ChangeEvent{
			MonitoredCompanyID: monitorID,
			CompetitorName:     name,
			ChangeType:         model.ChangeNewFeature,
			Title:              "New feature: " + f,
			Description:        fmt.Sprintf("Competitor '%s' now lists feature '%s'.", name, f),
			NewValue:           f,
			Severity:           model.SeverityMedium,
			DetectedAt:         detectedAt,
			SourceURL:          url,
		})
	}

	removed := sortedDiff(oldSet, newSet)
	if len(removed) > 0 {
		severity := model.SeverityHigh
		if len(removed) > criticalRemovedFeatures {
			severity = model.SeverityCritical
		}
		shown := removed
		suffix := ""
		if len(removed) > removedFeatureListCap {
			shown = removed[:removedFeatureListCap]
			suffix = "..."
		}
		events = append(events, model.ChangeEvent{
			MonitoredCompanyID: monitorID,
			CompetitorName:     name,
			ChangeType:         model.ChangeRemovedFeature,
			Title:              "Features removed from listing",
			Description:        fmt.Sprintf("Features no longer listed: %s%s.", strings.Join(shown, ", "), suffix),
			OldValue:           strings.Join(removed, ", "),
			Severity:           severity,
			DetectedAt:         detectedAt,
			SourceURL:          url,
		})
	}
	return events
}

func swotChanged(oldSWOT, newSWOT *model.SWOTItem) bool {
	o := swotOrEmpty(oldSWOT)
	n := swotOrEmpty(newSWOT)
	return !sameSet(o.Strength, n.Strength) ||
		!sameSet(o.Weakness, n.Weakness) ||
		!sameSet(o.Opportunity, n.Opportunity) ||
		!sameSet(o.Threat, n.Threat)
}

func swotOrEmpty(s *model.SWOTItem) model.SWOTItem {
	if s == nil {
		return model.SWOTItem{}
	}
	return *s
}

// compareNews emits one low event per news item not seen in the previous
// snapshot, keyed by title plus URL.
func compareNews(oldNews, newNews []model.NewsItem, monitorID, name string, detectedAt time.Time) []model.ChangeEvent {
	seen := make(map[string]struct{}, len(oldNews))
	for _, n := range oldNews {
		seen[newsKey(n)] = struct{}{}
	}

	var events []model.ChangeEvent
	for _, n := range newNews {
		if _, ok := seen[newsKey(n)]; ok {
			continue
		}
		title := n.Title
		desc := title
		if title == "" {
			title = "New news item"
			desc = "New announcement or news."
		}
		events = append(events, model.ChangeEvent{
			MonitoredCompanyID: monitorID,
			CompetitorName:     name,
			ChangeType:         model.ChangeNews,
			Title:              title,
			Description:        desc,
			NewValue:           n.Title,
			Severity:           model.SeverityLow,
			DetectedAt:         detectedAt,
			SourceURL:          n.URL,
		})
	}
	return events
}

func newsKey(n model.NewsItem) string {
	return n.Title + "|" + n.URL
}

func toSet(list []string) map[string]struct{} {
	set := make(map[string]struct{}, len(list))
	for _, s := range list {
		set[s] = struct{}{}
	}
	return set
}

// sameSet reports whether two lists contain the same members, ignoring
// order and duplicates.
func sameSet(a, b []string) bool {
	as, bs := toSet(a), toSet(b)
	if len(as) != len(bs) {
		return false
	}
	for s := range as {
		if _, ok := bs[s]; !ok {
			return false
		}
	}
	return true
}

// sortedDiff returns the members of a not in b, sorted.
func sortedDiff(a, b map[string]struct{}) []string {
	var out []string
	for s := range a {
		if _, ok := b[s]; !ok {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
