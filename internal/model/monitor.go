package model

import "time"

// ChangeType classifies a detected difference between two report snapshots.
type ChangeType string

const (
	ChangePricing        ChangeType = "pricing_change"
	ChangeNewFeature     ChangeType = "new_feature"
	ChangeRemovedFeature ChangeType = "removed_feature"
	ChangeNews           ChangeType = "news"
	ChangeNewCompetitor  ChangeType = "new_competitor"
	ChangeSWOT           ChangeType = "swot_change"
	ChangeWebsiteUpdate  ChangeType = "website_update"
)

// Severity ranks a change event. It is a pure function of the magnitude and
// kind of the underlying change, never user-assigned.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// ChangeEvent is one detected difference between two report snapshots.
// Produced only by the change detector; never mutated after creation.
type ChangeEvent struct {
	MonitoredCompanyID string     `json:"monitored_company_id"`
	CompetitorName     string     `json:"competitor_name"`
	ChangeType         ChangeType `json:"change_type"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	OldValue           string     `json:"old_value,omitempty"`
	NewValue           string     `json:"new_value,omitempty"`
	Severity           Severity   `json:"severity"`
	DetectedAt         time.Time  `json:"detected_at"`
	SourceURL          string     `json:"source_url,omitempty"`
}

// MonitoredCompany is a company tracked for changes over time.
type MonitoredCompany struct {
	ID                 string     `json:"id"`
	BaseURL            string     `json:"base_url"`
	CompanyName        string     `json:"company_name"`
	Scope              string     `json:"scope"`
	Region             string     `json:"region,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	LastChecked        *time.Time `json:"last_checked,omitempty"`
	CheckIntervalHours int        `json:"check_interval_hours"`
}

// Due reports whether the monitor's next refresh is at or before now.
// A monitor that has never been checked is always due.
func (m MonitoredCompany) Due(now time.Time) bool {
	if m.LastChecked == nil {
		return true
	}
	interval := time.Duration(m.CheckIntervalHours) * time.Hour
	return !now.Before(m.LastChecked.Add(interval))
}

// ReportSnapshot is one entry in a report history: the report plus when it
// was produced.
type ReportSnapshot struct {
	Timestamp time.Time    `json:"timestamp"`
	Report    MarketReport `json:"report"`
}
