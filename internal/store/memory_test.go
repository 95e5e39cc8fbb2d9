package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/compete-cli/internal/model"
)

func sampleReport(summary string) model.MarketReport {
	return model.MarketReport{
		BaseCompanyData: model.BaseProfile{CompanyName: "Acme", CompanyURL: "https://acme.io"},
		Comparisons:     model.ComparisonSummary{SummaryText: summary},
	}
}

func TestMemoryStore_JobLifecycle(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	job, err := s.CreateJob(ctx, "https://acme.io", "global", "")
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, model.JobStatusProcessing, job.Status)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)

	report := sampleReport("done")
	require.NoError(t, s.UpdateJobResult(ctx, job.ID, &report, ""))

	got, err = s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusReady, got.Status)
	require.NotNil(t, got.Report)
	assert.Equal(t, "done", got.Report.Comparisons.SummaryText)
}

func TestMemoryStore_JobFailure(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	job, err := s.CreateJob(ctx, "https://acme.io", "global", "")
	require.NoError(t, err)

	require.NoError(t, s.UpdateJobResult(ctx, job.ID, nil, "base: base URL is required"))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, got.Status)
	assert.Nil(t, got.Report)
	assert.Contains(t, got.Error, "base URL is required")
}

func TestMemoryStore_JobNotFound(t *testing.T) {
	s := NewMemory()

	_, err := s.GetJob(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.UpdateJobStatus(context.Background(), "nope", model.JobStatusReady)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ListJobsFilter(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	a, _ := s.CreateJob(ctx, "https://a.io", "global", "")
	_, _ = s.CreateJob(ctx, "https://b.io", "global", "")
	require.NoError(t, s.UpdateJobStatus(ctx, a.ID, model.JobStatusReady))

	ready, err := s.ListJobs(ctx, JobFilter{Status: model.JobStatusReady})
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, a.ID, ready[0].ID)

	all, err := s.ListJobs(ctx, JobFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMemoryStore_ReportHistory(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	key := "https://acme.io"

	latest, err := s.LatestReport(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, latest)

	first := model.ReportSnapshot{Timestamp: time.Now().UTC().Add(-time.Hour), Report: sampleReport("first")}
	second := model.ReportSnapshot{Timestamp: time.Now().UTC(), Report: sampleReport("second")}
	require.NoError(t, s.AppendReport(ctx, key, first))
	require.NoError(t, s.AppendReport(ctx, key, second))

	latest, err = s.LatestReport(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "second", latest.Report.Comparisons.SummaryText)

	// Newest first.
	snaps, err := s.ListReports(ctx, key, 0)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "second", snaps[0].Report.Comparisons.SummaryText)
	assert.Equal(t, "first", snaps[1].Report.Comparisons.SummaryText)

	snaps, err = s.ListReports(ctx, key, 1)
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}

func TestMemoryStore_Monitors(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	m := model.MonitoredCompany{
		ID:                 "mon-1",
		BaseURL:            "https://acme.io",
		CompanyName:        "Acme",
		Scope:              "global",
		CreatedAt:          time.Now().UTC(),
		CheckIntervalHours: 24,
	}
	require.NoError(t, s.CreateMonitor(ctx, m))

	got, err := s.GetMonitor(ctx, "mon-1")
	require.NoError(t, err)
	assert.Nil(t, got.LastChecked)
	assert.True(t, got.Due(time.Now()))

	checkedAt := time.Now().UTC()
	require.NoError(t, s.TouchMonitor(ctx, "mon-1", checkedAt))

	got, err = s.GetMonitor(ctx, "mon-1")
	require.NoError(t, err)
	require.NotNil(t, got.LastChecked)
	assert.False(t, got.Due(checkedAt.Add(time.Hour)))
	assert.True(t, got.Due(checkedAt.Add(25*time.Hour)))

	monitors, err := s.ListMonitors(ctx)
	require.NoError(t, err)
	assert.Len(t, monitors, 1)

	_, err = s.GetMonitor(ctx, "mon-2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Changes(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	events := []model.ChangeEvent{
		{MonitoredCompanyID: "mon-1", ChangeType: model.ChangePricing, Title: "Pricing change: Pro", Severity: model.SeverityHigh},
		{MonitoredCompanyID: "mon-1", ChangeType: model.ChangeNews, Title: "Series B", Severity: model.SeverityLow},
		{MonitoredCompanyID: "mon-2", ChangeType: model.ChangeSWOT, Title: "SWOT analysis updated", Severity: model.SeverityMedium},
	}
	require.NoError(t, s.AppendChanges(ctx, events))

	got, err := s.ListChanges(ctx, "mon-1", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Newest first.
	assert.Equal(t, "Series B", got[0].Title)

	got, err = s.ListChanges(ctx, "mon-2", 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = s.ListChanges(ctx, "mon-3", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}
