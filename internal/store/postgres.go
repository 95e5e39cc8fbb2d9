package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/compete-cli/internal/db"
	"github.com/sells-group/compete-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.NewPool(ctx, connString, poolCfg)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool, used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY,
	base_url   TEXT NOT NULL,
	scope      TEXT NOT NULL,
	region     TEXT,
	status     TEXT NOT NULL DEFAULT 'processing',
	report     JSONB,
	error      TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS report_history (
	id          TEXT PRIMARY KEY,
	history_key TEXT NOT NULL,
	report      JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS monitors (
	id                   TEXT PRIMARY KEY,
	base_url             TEXT NOT NULL,
	company_name         TEXT,
	scope                TEXT NOT NULL,
	region               TEXT,
	check_interval_hours INTEGER NOT NULL,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_checked         TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS change_events (
	id              TEXT PRIMARY KEY,
	monitor_id      TEXT NOT NULL,
	competitor_name TEXT,
	change_type     TEXT NOT NULL,
	title           TEXT NOT NULL,
	description     TEXT,
	old_value       TEXT,
	new_value       TEXT,
	severity        TEXT NOT NULL,
	detected_at     TIMESTAMPTZ NOT NULL,
	source_url      TEXT
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_report_history_key ON report_history(history_key, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_change_events_monitor ON change_events(monitor_id, detected_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, baseURL, scope, region string) (*model.Job, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, base_url, scope, region, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, baseURL, scope, region, string(model.JobStatusProcessing), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert job")
	}

	return &model.Job{
		ID:        id,
		BaseURL:   baseURL,
		Scope:     scope,
		Region:    region,
		Status:    model.JobStatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, base_url, scope, region, status, report, error, created_at, updated_at FROM jobs WHERE id = $1`,
		jobID,
	)

	var j model.Job
	var region, errMsg *string
	var reportJSON []byte
	err := row.Scan(&j.ID, &j.BaseURL, &j.Scope, &region, &j.Status, &reportJSON, &errMsg, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get job %s", jobID)
	}

	if region != nil {
		j.Region = *region
	}
	if errMsg != nil {
		j.Error = *errMsg
	}
	if len(reportJSON) > 0 {
		j.Report = &model.MarketReport{}
		if err := json.Unmarshal(reportJSON, j.Report); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal report")
		}
	}
	return &j, nil
}

func (s *PostgresStore) UpdateJobStatus(ctx context.Context, jobID string, status model.JobStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update job status %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateJobResult(ctx context.Context, jobID string, report *model.MarketReport, errMsg string) error {
	status := model.JobStatusFailed
	var reportJSON []byte
	if report != nil {
		status = model.JobStatusReady
		var err error
		reportJSON, err = json.Marshal(report)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal report")
		}
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET report = $1, error = $2, status = $3, updated_at = $4 WHERE id = $5`,
		reportJSON, errMsg, string(status), time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update job result %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `SELECT id, base_url, scope, region, status, report, error, created_at, updated_at FROM jobs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $1`
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)
	query += placeholder(` LIMIT `, len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += placeholder(` OFFSET `, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		var j model.Job
		var region, errStr *string
		var reportJSON []byte
		if err := rows.Scan(&j.ID, &j.BaseURL, &j.Scope, &region, &j.Status, &reportJSON, &errStr, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		if region != nil {
			j.Region = *region
		}
		if errStr != nil {
			j.Error = *errStr
		}
		if len(reportJSON) > 0 {
			j.Report = &model.MarketReport{}
			if err := json.Unmarshal(reportJSON, j.Report); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal report")
			}
		}
		jobs = append(jobs, j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

func (s *PostgresStore) AppendReport(ctx context.Context, historyKey string, snap model.ReportSnapshot) error {
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now().UTC()
	}
	reportJSON, err := json.Marshal(snap.Report)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal report")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO report_history (id, history_key, report, created_at) VALUES ($1, $2, $3, $4)`,
		uuid.New().String(), historyKey, reportJSON, snap.Timestamp,
	)
	return eris.Wrap(err, "postgres: append report")
}

func (s *PostgresStore) ListReports(ctx context.Context, historyKey string, limit int) ([]model.ReportSnapshot, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT report, created_at FROM report_history WHERE history_key = $1 ORDER BY created_at DESC LIMIT $2`,
		historyKey, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list reports")
	}
	defer rows.Close()

	snaps := []model.ReportSnapshot{}
	for rows.Next() {
		var reportJSON []byte
		var snap model.ReportSnapshot
		if err := rows.Scan(&reportJSON, &snap.Timestamp); err != nil {
			return nil, eris.Wrap(err, "postgres: scan report snapshot")
		}
		if err := json.Unmarshal(reportJSON, &snap.Report); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal report")
		}
		snaps = append(snaps, snap)
	}
	return snaps, eris.Wrap(rows.Err(), "postgres: list reports iterate")
}

func (s *PostgresStore) LatestReport(ctx context.Context, historyKey string) (*model.ReportSnapshot, error) {
	snaps, err := s.ListReports(ctx, historyKey, 1)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, nil
	}
	return &snaps[0], nil
}

func (s *PostgresStore) CreateMonitor(ctx context.Context, m model.MonitoredCompany) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO monitors (id, base_url, company_name, scope, region, check_interval_hours, created_at, last_checked)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.BaseURL, m.CompanyName, m.Scope, m.Region, m.CheckIntervalHours, m.CreatedAt, m.LastChecked,
	)
	return eris.Wrap(err, "postgres: insert monitor")
}

func (s *PostgresStore) GetMonitor(ctx context.Context, id string) (*model.MonitoredCompany, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, base_url, company_name, scope, region, check_interval_hours, created_at, last_checked FROM monitors WHERE id = $1`,
		id,
	)

	var m model.MonitoredCompany
	var companyName, region *string
	var lastChecked *time.Time
	err := row.Scan(&m.ID, &m.BaseURL, &companyName, &m.Scope, &region, &m.CheckIntervalHours, &m.CreatedAt, &lastChecked)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get monitor %s", id)
	}

	if companyName != nil {
		m.CompanyName = *companyName
	}
	if region != nil {
		m.Region = *region
	}
	m.LastChecked = lastChecked
	return &m, nil
}

func (s *PostgresStore) ListMonitors(ctx context.Context) ([]model.MonitoredCompany, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, base_url, company_name, scope, region, check_interval_hours, created_at, last_checked FROM monitors ORDER BY created_at`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list monitors")
	}
	defer rows.Close()

	var monitors []model.MonitoredCompany
	for rows.Next() {
		var m model.MonitoredCompany
		var companyName, region *string
		var lastChecked *time.Time
		if err := rows.Scan(&m.ID, &m.BaseURL, &companyName, &m.Scope, &region, &m.CheckIntervalHours, &m.CreatedAt, &lastChecked); err != nil {
			return nil, eris.Wrap(err, "postgres: scan monitor")
		}
		if companyName != nil {
			m.CompanyName = *companyName
		}
		if region != nil {
			m.Region = *region
		}
		m.LastChecked = lastChecked
		monitors = append(monitors, m)
	}
	return monitors, eris.Wrap(rows.Err(), "postgres: list monitors iterate")
}

func (s *PostgresStore) TouchMonitor(ctx context.Context, id string, checkedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE monitors SET last_checked = $1 WHERE id = $2`,
		checkedAt, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: touch monitor %s", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AppendChanges(ctx context.Context, events []model.ChangeEvent) error {
	for _, e := range events {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO change_events (id, monitor_id, competitor_name, change_type, title, description, old_value, new_value, severity, detected_at, source_url)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			uuid.New().String(), e.MonitoredCompanyID, e.CompetitorName, string(e.ChangeType),
			e.Title, e.Description, e.OldValue, e.NewValue, string(e.Severity), e.DetectedAt, e.SourceURL,
		)
		if err != nil {
			return eris.Wrap(err, "postgres: insert change event")
		}
	}
	return nil
}

func (s *PostgresStore) ListChanges(ctx context.Context, monitorID string, limit int) ([]model.ChangeEvent, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT monitor_id, competitor_name, change_type, title, description, old_value, new_value, severity, detected_at, source_url
		 FROM change_events WHERE monitor_id = $1 ORDER BY detected_at DESC LIMIT $2`,
		monitorID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list changes")
	}
	defer rows.Close()

	events := []model.ChangeEvent{}
	for rows.Next() {
		var e model.ChangeEvent
		var changeType, severity string
		var competitorName, description, oldValue, newValue, sourceURL *string
		err := rows.Scan(&e.MonitoredCompanyID, &competitorName, &changeType, &e.Title,
			&description, &oldValue, &newValue, &severity, &e.DetectedAt, &sourceURL)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan change event")
		}
		e.ChangeType = model.ChangeType(changeType)
		e.Severity = model.Severity(severity)
		e.CompetitorName = deref(competitorName)
		e.Description = deref(description)
		e.OldValue = deref(oldValue)
		e.NewValue = deref(newValue)
		e.SourceURL = deref(sourceURL)
		events = append(events, e)
	}
	return events, eris.Wrap(rows.Err(), "postgres: list changes iterate")
}

func placeholder(clause string, n int) string {
	return fmt.Sprintf("%s$%d", clause, n)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
