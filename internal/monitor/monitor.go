// Package monitor tracks companies over time. Each monitored company gets a
// report history; every refresh re-runs market discovery and diffs the new
// report against the previous one to surface change events.
package monitor

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/compete-cli/internal/diff"
	"github.com/sells-group/compete-cli/internal/discovery"
	"github.com/sells-group/compete-cli/internal/model"
	"github.com/sells-group/compete-cli/internal/research"
	"github.com/sells-group/compete-cli/internal/store"
	"github.com/sells-group/compete-cli/internal/urlutil"
)

// DefaultCheckIntervalHours is the refresh cadence for new monitors.
const DefaultCheckIntervalHours = 24

// Service coordinates monitored companies: creation, refresh runs, and
// change detection against each monitor's previous report.
type Service struct {
	store store.Store
	orch  *discovery.Orchestrator
}

// New creates a monitor service on top of a store and an orchestrator.
func New(st store.Store, orch *discovery.Orchestrator) *Service {
	return &Service{store: st, orch: orch}
}

// StartRequest describes a new monitor. CompanyName is optional; when empty
// it is derived from the base URL's domain.
type StartRequest struct {
	BaseURL            string
	CompanyName        string
	Scope              string
	Region             string
	CheckIntervalHours int
}

// Start registers a company for monitoring and returns the created monitor.
// It does not run the initial analysis; callers follow up with Refresh,
// typically in the background.
func (s *Service) Start(ctx context.Context, req StartRequest) (*model.MonitoredCompany, error) {
	baseURL := strings.TrimSpace(req.BaseURL)
	if baseURL == "" {
		return nil, eris.New("monitor: base URL is required")
	}
	baseURL = urlutil.EnsureScheme(baseURL)

	name := strings.TrimSpace(req.CompanyName)
	if name == "" {
		name = research.DomainToName(urlutil.Domain(baseURL))
	}
	scope := strings.ToLower(strings.TrimSpace(req.Scope))
	if scope == "" {
		scope = "global"
	}
	interval := req.CheckIntervalHours
	if interval <= 0 {
		interval = DefaultCheckIntervalHours
	}

	m := model.MonitoredCompany{
		ID:                 uuid.NewString(),
		BaseURL:            baseURL,
		CompanyName:        name,
		Scope:              scope,
		Region:             strings.TrimSpace(req.Region),
		CreatedAt:          time.Now().UTC(),
		CheckIntervalHours: interval,
	}
	if err := s.store.CreateMonitor(ctx, m); err != nil {
		return nil, eris.Wrap(err, "monitor: create")
	}

	zap.L().Info("monitor started",
		zap.String("monitor_id", m.ID),
		zap.String("company", m.CompanyName),
		zap.String("base_url", m.BaseURL))
	return &m, nil
}

// Refresh re-runs market discovery for a monitor, appends the new report to
// its history, and returns the change events detected against the previous
// report. The first refresh has no baseline and returns no events.
func (s *Service) Refresh(ctx context.Context, monitorID string) ([]model.ChangeEvent, error) {
	m, err := s.store.GetMonitor(ctx, monitorID)
	if err != nil {
		return nil, eris.Wrap(err, "monitor: refresh")
	}
	if s.orch == nil {
		return nil, eris.New("monitor: no orchestrator configured")
	}

	res := s.orch.Run(ctx, discovery.Request{
		BaseURL: m.BaseURL,
		Scope:   m.Scope,
		Region:  m.Region,
	}, nil)
	if res.Report == nil {
		return nil, eris.New("monitor: analysis produced no report")
	}

	prev, err := s.store.LatestReport(ctx, monitorID)
	if err != nil {
		return nil, eris.Wrap(err, "monitor: load previous report")
	}

	var events []model.ChangeEvent
	if prev != nil {
		events = diff.DetectChanges(&prev.Report, res.Report, monitorID)
		if len(events) > 0 {
			if err := s.store.AppendChanges(ctx, events); err != nil {
				return nil, eris.Wrap(err, "monitor: append changes")
			}
		}
	}

	now := time.Now().UTC()
	snap := model.ReportSnapshot{Timestamp: now, Report: *res.Report}
	if err := s.store.AppendReport(ctx, monitorID, snap); err != nil {
		return nil, eris.Wrap(err, "monitor: append report")
	}
	// Keep the base-URL-keyed history in sync so ad-hoc lookups by URL see
	// monitor-driven reports too.
	if err := s.store.AppendReport(ctx, urlutil.NormalizeBaseURL(m.BaseURL), snap); err != nil {
		return nil, eris.Wrap(err, "monitor: append report by URL")
	}
	if err := s.store.TouchMonitor(ctx, monitorID, now); err != nil {
		return nil, eris.Wrap(err, "monitor: touch")
	}

	zap.L().Info("monitor refreshed",
		zap.String("monitor_id", monitorID),
		zap.String("company", m.CompanyName),
		zap.Int("changes", len(events)))
	return events, nil
}

// Changes returns detected change events for a monitor, newest first,
// along with the monitor itself. Unknown monitors yield store.ErrNotFound.
func (s *Service) Changes(ctx context.Context, monitorID string, limit int) (*model.MonitoredCompany, []model.ChangeEvent, error) {
	m, err := s.store.GetMonitor(ctx, monitorID)
	if err != nil {
		return nil, nil, eris.Wrap(err, "monitor: changes")
	}
	events, err := s.store.ListChanges(ctx, monitorID, limit)
	if err != nil {
		return nil, nil, eris.Wrap(err, "monitor: changes")
	}
	return m, events, nil
}

// LatestReport returns the most recent report for a monitor, or nil when no
// analysis has completed yet.
func (s *Service) LatestReport(ctx context.Context, monitorID string) (*model.ReportSnapshot, error) {
	if _, err := s.store.GetMonitor(ctx, monitorID); err != nil {
		return nil, eris.Wrap(err, "monitor: latest report")
	}
	snap, err := s.store.LatestReport(ctx, monitorID)
	if err != nil {
		return nil, eris.Wrap(err, "monitor: latest report")
	}
	return snap, nil
}

// Due returns the monitors whose next scheduled refresh is at or before now.
func (s *Service) Due(ctx context.Context, now time.Time) ([]model.MonitoredCompany, error) {
	monitors, err := s.store.ListMonitors(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitor: list")
	}
	var due []model.MonitoredCompany
	for _, m := range monitors {
		if m.Due(now) {
			due = append(due, m)
		}
	}
	return due, nil
}
