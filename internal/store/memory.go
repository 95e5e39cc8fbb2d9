package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/compete-cli/internal/model"
)

// MemoryStore implements Store with in-process maps. The default backend for
// single-run CLI usage; nothing survives the process.
type MemoryStore struct {
	mu       sync.RWMutex
	jobs     map[string]model.Job
	history  map[string][]model.ReportSnapshot
	monitors map[string]model.MonitoredCompany
	changes  map[string][]model.ChangeEvent
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		jobs:     map[string]model.Job{},
		history:  map[string][]model.ReportSnapshot{},
		monitors: map[string]model.MonitoredCompany{},
		changes:  map[string][]model.ChangeEvent{},
	}
}

func (s *MemoryStore) Migrate(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) CreateJob(ctx context.Context, baseURL, scope, region string) (*model.Job, error) {
	now := time.Now().UTC()
	job := model.Job{
		ID:        uuid.New().String(),
		BaseURL:   baseURL,
		Scope:     scope,
		Region:    region,
		Status:    model.JobStatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	return &job, nil
}

func (s *MemoryStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return &job, nil
}

func (s *MemoryStore) UpdateJobStatus(ctx context.Context, jobID string, status model.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	job.Status = status
	job.UpdatedAt = time.Now().UTC()
	s.jobs[jobID] = job
	return nil
}

func (s *MemoryStore) UpdateJobResult(ctx context.Context, jobID string, report *model.MarketReport, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	job.Report = report
	job.Error = errMsg
	if report != nil {
		job.Status = model.JobStatusReady
	} else {
		job.Status = model.JobStatusFailed
	}
	job.UpdatedAt = time.Now().UTC()
	s.jobs[jobID] = job
	return nil
}

func (s *MemoryStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var jobs []model.Job
	for _, job := range s.jobs {
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	return paginate(jobs, filter.Offset, filter.Limit), nil
}

func (s *MemoryStore) AppendReport(ctx context.Context, historyKey string, snap model.ReportSnapshot) error {
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now().UTC()
	}
	s.mu.Lock()
	s.history[historyKey] = append(s.history[historyKey], snap)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ListReports(ctx context.Context, historyKey string, limit int) ([]model.ReportSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.history[historyKey]
	out := make([]model.ReportSnapshot, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, entries[i])
	}
	return paginate(out, 0, limit), nil
}

func (s *MemoryStore) LatestReport(ctx context.Context, historyKey string) (*model.ReportSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.history[historyKey]
	if len(entries) == 0 {
		return nil, nil
	}
	latest := entries[len(entries)-1]
	return &latest, nil
}

func (s *MemoryStore) CreateMonitor(ctx context.Context, m model.MonitoredCompany) error {
	s.mu.Lock()
	s.monitors[m.ID] = m
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetMonitor(ctx context.Context, id string) (*model.MonitoredCompany, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.monitors[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

func (s *MemoryStore) ListMonitors(ctx context.Context) ([]model.MonitoredCompany, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.MonitoredCompany, 0, len(s.monitors))
	for _, m := range s.monitors {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) TouchMonitor(ctx context.Context, id string, checkedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.monitors[id]
	if !ok {
		return ErrNotFound
	}
	m.LastChecked = &checkedAt
	s.monitors[id] = m
	return nil
}

func (s *MemoryStore) AppendChanges(ctx context.Context, events []model.ChangeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range events {
		s.changes[e.MonitoredCompanyID] = append(s.changes[e.MonitoredCompanyID], e)
	}
	return nil
}

func (s *MemoryStore) ListChanges(ctx context.Context, monitorID string, limit int) ([]model.ChangeEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.changes[monitorID]
	out := make([]model.ChangeEvent, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, entries[i])
	}
	return paginate(out, 0, limit), nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}
