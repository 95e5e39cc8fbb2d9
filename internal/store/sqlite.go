package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/compete-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY,
	base_url   TEXT NOT NULL,
	scope      TEXT NOT NULL,
	region     TEXT,
	status     TEXT NOT NULL DEFAULT 'processing',
	report     TEXT,
	error      TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS report_history (
	id          TEXT PRIMARY KEY,
	history_key TEXT NOT NULL,
	report      TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS monitors (
	id                   TEXT PRIMARY KEY,
	base_url             TEXT NOT NULL,
	company_name         TEXT,
	scope                TEXT NOT NULL,
	region               TEXT,
	check_interval_hours INTEGER NOT NULL,
	created_at           DATETIME NOT NULL DEFAULT (datetime('now')),
	last_checked         DATETIME
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
	detected_at     DATETIME NOT NULL,
	source_url      TEXT
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_report_history_key ON report_history(history_key, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_change_events_monitor ON change_events(monitor_id, detected_at DESC);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateJob(ctx context.Context, baseURL, scope, region string) (*model.Job, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, base_url, scope, region, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, baseURL, scope, region, string(model.JobStatusProcessing), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert job")
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

func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, base_url, scope, region, status, report, error, created_at, updated_at FROM jobs WHERE id = ?`,
		jobID,
	)
	return scanJob(row)
}

func (s *SQLiteStore) UpdateJobStatus(ctx context.Context, jobID string, status model.JobStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job status %s", jobID)
	}
	return checkRowsAffected(res, "job", jobID)
}

func (s *SQLiteStore) UpdateJobResult(ctx context.Context, jobID string, report *model.MarketReport, errMsg string) error {
	status := model.JobStatusFailed
	var reportJSON sql.NullString
	if report != nil {
		status = model.JobStatusReady
		buf, err := json.Marshal(report)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal report")
		}
		reportJSON = sql.NullString{String: string(buf), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET report = ?, error = ?, status = ?, updated_at = ? WHERE id = ?`,
		reportJSON, errMsg, string(status), time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job result %s", jobID)
	}
	return checkRowsAffected(res, "job", jobID)
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `SELECT id, base_url, scope, region, status, report, error, created_at, updated_at FROM jobs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

func (s *SQLiteStore) AppendReport(ctx context.Context, historyKey string, snap model.ReportSnapshot) error {
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now().UTC()
	}
	reportJSON, err := json.Marshal(snap.Report)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal report")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO report_history (id, history_key, report, created_at) VALUES (?, ?, ?, ?)`,
		uuid.New().String(), historyKey, string(reportJSON), snap.Timestamp,
	)
	return eris.Wrap(err, "sqlite: append report")
}

func (s *SQLiteStore) ListReports(ctx context.Context, historyKey string, limit int) ([]model.ReportSnapshot, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT report, created_at FROM report_history WHERE history_key = ? ORDER BY created_at DESC LIMIT ?`,
		historyKey, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list reports")
	}
	defer rows.Close()

	snaps := []model.ReportSnapshot{}
	for rows.Next() {
		var reportJSON string
		var snap model.ReportSnapshot
		if err := rows.Scan(&reportJSON, &snap.Timestamp); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan report snapshot")
		}
		if err := json.Unmarshal([]byte(reportJSON), &snap.Report); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal report")
		}
		snaps = append(snaps, snap)
	}
	return snaps, eris.Wrap(rows.Err(), "sqlite: list reports iterate")
}

func (s *SQLiteStore) LatestReport(ctx context.Context, historyKey string) (*model.ReportSnapshot, error) {
	snaps, err := s.ListReports(ctx, historyKey, 1)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, nil
	}
	return &snaps[0], nil
}

func (s *SQLiteStore) CreateMonitor(ctx context.Context, m model.MonitoredCompany) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO monitors (id, base_url, company_name, scope, region, check_interval_hours, created_at, last_checked)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.BaseURL, m.CompanyName, m.Scope, m.Region, m.CheckIntervalHours, m.CreatedAt, m.LastChecked,
	)
	return eris.Wrap(err, "sqlite: insert monitor")
}

func (s *SQLiteStore) GetMonitor(ctx context.Context, id string) (*model.MonitoredCompany, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, base_url, company_name, scope, region, check_interval_hours, created_at, last_checked FROM monitors WHERE id = ?`,
		id,
	)
	m, err := scanMonitor(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get monitor")
	}
	return m, nil
}

func (s *SQLiteStore) ListMonitors(ctx context.Context) ([]model.MonitoredCompany, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, base_url, company_name, scope, region, check_interval_hours, created_at, last_checked FROM monitors ORDER BY created_at`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list monitors")
	}
	defer rows.Close()

	var monitors []model.MonitoredCompany
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, err
		}
		monitors = append(monitors, *m)
	}
	return monitors, eris.Wrap(rows.Err(), "sqlite: list monitors iterate")
}

func (s *SQLiteStore) TouchMonitor(ctx context.Context, id string, checkedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE monitors SET last_checked = ? WHERE id = ?`,
		checkedAt, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: touch monitor %s", id)
	}
	return checkRowsAffected(res, "monitor", id)
}

func (s *SQLiteStore) AppendChanges(ctx context.Context, events []model.ChangeEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin append changes")
	}
	defer tx.Rollback()

	for _, e := range events {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO change_events (id, monitor_id, competitor_name, change_type, title, description, old_value, new_value, severity, detected_at, source_url)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), e.MonitoredCompanyID, e.CompetitorName, string(e.ChangeType),
			e.Title, e.Description, e.OldValue, e.NewValue, string(e.Severity), e.DetectedAt, e.SourceURL,
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: insert change event")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit append changes")
}

func (s *SQLiteStore) ListChanges(ctx context.Context, monitorID string, limit int) ([]model.ChangeEvent, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT monitor_id, competitor_name, change_type, title, description, old_value, new_value, severity, detected_at, source_url
		 FROM change_events WHERE monitor_id = ? ORDER BY detected_at DESC, rowid DESC LIMIT ?`,
		monitorID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list changes")
	}
	defer rows.Close()

	events := []model.ChangeEvent{}
	for rows.Next() {
		var e model.ChangeEvent
		var changeType, severity string
		err := rows.Scan(&e.MonitoredCompanyID, &e.CompetitorName, &changeType, &e.Title,
			&e.Description, &e.OldValue, &e.NewValue, &severity, &e.DetectedAt, &e.SourceURL)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan change event")
		}
		e.ChangeType = model.ChangeType(changeType)
		e.Severity = model.Severity(severity)
		events = append(events, e)
	}
	return events, eris.Wrap(rows.Err(), "sqlite: list changes iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanJob(row scannable) (*model.Job, error) {
	var j model.Job
	var region, reportJSON, errMsg sql.NullString

	err := row.Scan(&j.ID, &j.BaseURL, &j.Scope, &region, &j.Status, &reportJSON, &errMsg, &j.CreatedAt, &j.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan job")
	}

	j.Region = region.String
	j.Error = errMsg.String
	if reportJSON.Valid {
		j.Report = &model.MarketReport{}
		if err := json.Unmarshal([]byte(reportJSON.String), j.Report); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal report")
		}
	}
	return &j, nil
}

func scanMonitor(row scannable) (*model.MonitoredCompany, error) {
	var m model.MonitoredCompany
	var companyName, region sql.NullString
	var lastChecked sql.NullTime

	err := row.Scan(&m.ID, &m.BaseURL, &companyName, &m.Scope, &region, &m.CheckIntervalHours, &m.CreatedAt, &lastChecked)
	if err != nil {
		return nil, err
	}

	m.CompanyName = companyName.String
	m.Region = region.String
	if lastChecked.Valid {
		t := lastChecked.Time
		m.LastChecked = &t
	}
	return &m, nil
}
