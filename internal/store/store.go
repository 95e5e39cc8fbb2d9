// Package store persists analysis jobs, report history, monitors, and change
// events. Three implementations: in-memory (default), SQLite, and Postgres.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/compete-cli/internal/model"
)

// ErrNotFound is returned when a job or monitor does not exist.
var ErrNotFound = eris.New("store: not found")

// JobFilter specifies criteria for listing jobs.
type JobFilter struct {
	Status model.JobStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the analysis platform.
// Report history is append-only and keyed by an opaque string (a normalized
// base URL for ad-hoc runs, a monitor ID for monitored companies).
type Store interface {
	// Jobs
	CreateJob(ctx context.Context, baseURL, scope, region string) (*model.Job, error)
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	UpdateJobStatus(ctx context.Context, jobID string, status model.JobStatus) error
	UpdateJobResult(ctx context.Context, jobID string, report *model.MarketReport, errMsg string) error
	ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error)

	// Report history
	AppendReport(ctx context.Context, historyKey string, snap model.ReportSnapshot) error
	ListReports(ctx context.Context, historyKey string, limit int) ([]model.ReportSnapshot, error)
	LatestReport(ctx context.Context, historyKey string) (*model.ReportSnapshot, error)

	// Monitors
	CreateMonitor(ctx context.Context, m model.MonitoredCompany) error
	GetMonitor(ctx context.Context, id string) (*model.MonitoredCompany, error)
	ListMonitors(ctx context.Context) ([]model.MonitoredCompany, error)
	TouchMonitor(ctx context.Context, id string, checkedAt time.Time) error

	// Change events
	AppendChanges(ctx context.Context, events []model.ChangeEvent) error
	ListChanges(ctx context.Context, monitorID string, limit int) ([]model.ChangeEvent, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// defaultListLimit bounds unfiltered list queries.
const defaultListLimit = 100
