package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/compete-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresWithPool(mock), mock
}

func TestPostgresStore_CreateJob(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO jobs`).
		WithArgs(pgxmock.AnyArg(), "https://acme.io", "global", "", "processing", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	job, err := s.CreateJob(context.Background(), "https://acme.io", "global", "")
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, model.JobStatusProcessing, job.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetJob_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, base_url, scope, region, status, report, error, created_at, updated_at FROM jobs WHERE id = \$1`).
		WithArgs("nonexistent-job").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetJob(context.Background(), "nonexistent-job")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateJobResult_Ready(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE jobs SET report = \$1, error = \$2, status = \$3`).
		WithArgs(pgxmock.AnyArg(), "", "ready", pgxmock.AnyArg(), "job-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	report := sampleReport("pg")
	err := s.UpdateJobResult(context.Background(), "job-1", &report, "")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateJobResult_FailedWhenNoReport(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE jobs SET report = \$1, error = \$2, status = \$3`).
		WithArgs(pgxmock.AnyArg(), "fatal: no base URL", "failed", pgxmock.AnyArg(), "job-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.UpdateJobResult(context.Background(), "job-1", nil, "fatal: no base URL")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_TouchMonitor_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE monitors SET last_checked`).
		WithArgs(pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.TouchMonitor(context.Background(), "missing", time.Now().UTC())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LatestReport_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT report, created_at FROM report_history`).
		WithArgs("https://acme.io", 1).
		WillReturnRows(pgxmock.NewRows([]string{"report", "created_at"}))

	snap, err := s.LatestReport(context.Background(), "https://acme.io")
	require.NoError(t, err)
	assert.Nil(t, snap)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListChanges(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	detectedAt := time.Now().UTC()
	name := "Xero"
	desc := "Price for tier 'Pro' changed from $20/mo to $30/mo."
	oldVal := "$20/mo"
	newVal := "$30/mo"
	srcURL := "https://www.xero.com"

	rows := pgxmock.NewRows([]string{
		"monitor_id", "competitor_name", "change_type", "title", "description",
		"old_value", "new_value", "severity", "detected_at", "source_url",
	}).AddRow("mon-1", &name, "pricing_change", "Pricing change: Pro", &desc, &oldVal, &newVal, "critical", detectedAt, &srcURL)

	mock.ExpectQuery(`SELECT monitor_id, competitor_name, change_type`).
		WithArgs("mon-1", 50).
		WillReturnRows(rows)

	events, err := s.ListChanges(context.Background(), "mon-1", 50)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.ChangePricing, events[0].ChangeType)
	assert.Equal(t, model.SeverityCritical, events[0].Severity)
	assert.Equal(t, "Xero", events[0].CompetitorName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendChanges_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	require.NoError(t, s.AppendChanges(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}
