package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fentz26/priora/internal/models"
	"github.com/google/uuid"
)

// Memory is an in-process Repository with the same semantics as SQLStore.
// Records are copied in and out so callers never share state with the store.
type Memory struct {
	mu        sync.RWMutex
	records   []models.TaskRecord
	accuracy  []models.AccuracyLog
	decisions []models.DecisionRecord
	analyses  []models.Analysis
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

// Ping always succeeds.
func (m *Memory) Ping(ctx context.Context) error { return ctx.Err() }

// InsertTask stores a copy of rec.
func (m *Memory) InsertTask(ctx context.Context, rec *models.TaskRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedDate.IsZero() {
		rec.CreatedDate = time.Now().UTC()
	}
	if rec.Status == "" {
		rec.Status = models.TaskStatusScheduled
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, cloneRecord(*rec))
	return nil
}

// FindCompleted returns the user's donor records in creation order.
func (m *Memory) FindCompleted(ctx context.Context, userID string) ([]models.TaskRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.TaskRecord
	for i := range m.records {
		r := &m.records[i]
		if r.UserID == userID && r.IsDonor() {
			out = append(out, cloneRecord(*r))
		}
	}
	sortByCreated(out)
	return out, nil
}

// ListTasks returns a user's records, optionally filtered by status.
func (m *Memory) ListTasks(ctx context.Context, userID string, status models.TaskStatus) ([]models.TaskRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.TaskRecord
	for _, r := range m.records {
		if r.UserID != userID || (status != "" && r.Status != status) {
			continue
		}
		out = append(out, cloneRecord(r))
	}
	sortByCreated(out)
	return out, nil
}

// GetTask returns a copy of the record with the given ID.
func (m *Memory) GetTask(ctx context.Context, id string) (*models.TaskRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.records {
		if r.ID == id {
			rec := cloneRecord(r)
			return &rec, nil
		}
	}
	return nil, nil
}

// CompleteTask completes the oldest scheduled match under the write lock.
func (m *Memory) CompleteTask(ctx context.Context, userID, description string, actualTime int, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := -1
	for i := range m.records {
		r := &m.records[i]
		if r.UserID != userID || r.Subtask.Description != description || r.Status != models.TaskStatusScheduled {
			continue
		}
		if idx < 0 || createdBefore(r, &m.records[idx]) {
			idx = i
		}
	}
	if idx < 0 {
		return false, nil
	}

	r := &m.records[idx]
	actual := actualTime
	completed := at.UTC()
	r.Estimates.ActualTime = &actual
	r.Status = models.TaskStatusCompleted
	r.CompletedDate = &completed
	return true, nil
}

// InsertAccuracy appends an accuracy snapshot.
func (m *Memory) InsertAccuracy(ctx context.Context, log *models.AccuracyLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	if log.TrainingDate.IsZero() {
		log.TrainingDate = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.accuracy = append(m.accuracy, *log)
	return nil
}

// LatestAccuracy returns the newest snapshot for a user.
func (m *Memory) LatestAccuracy(ctx context.Context, userID string) (*models.AccuracyLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *models.AccuracyLog
	for i := range m.accuracy {
		a := &m.accuracy[i]
		if a.UserID != userID {
			continue
		}
		if latest == nil || !a.TrainingDate.Before(latest.TrainingDate) {
			latest = a
		}
	}
	if latest == nil {
		return nil, nil
	}
	out := *latest
	return &out, nil
}

// WriteDecision records an audit entry.
func (m *Memory) WriteDecision(ctx context.Context, rec *models.DecisionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions = append(m.decisions, *rec)
	return nil
}

// ListDecisions returns the most recent decisions, newest first.
func (m *Memory) ListDecisions(ctx context.Context, userID string, limit int) ([]models.DecisionRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.DecisionRecord, 0, limit)
	for i := len(m.decisions) - 1; i >= 0 && len(out) < limit; i-- {
		if userID != "" && m.decisions[i].UserID != userID {
			continue
		}
		out = append(out, m.decisions[i])
	}
	return out, nil
}

// InsertAnalysis saves a copy of a.
func (m *Memory) InsertAnalysis(ctx context.Context, a *models.Analysis) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.analyses = append(m.analyses, cloneAnalysis(*a))
	return nil
}

// ListAnalyses returns saved analyses matching the filter, in the same
// order as SQLStore.
func (m *Memory) ListAnalyses(ctx context.Context, f AnalysisFilter) ([]models.Analysis, error) {
	m.mu.RLock()
	var out []models.Analysis
	for _, a := range m.analyses {
		if f.UserID != "" && a.UserID != f.UserID {
			continue
		}
		if f.Priority != "" && a.Priority != f.Priority {
			continue
		}
		if f.MaxDaysLeft != nil && a.DaysLeft > *f.MaxDaysLeft {
			continue
		}
		out = append(out, cloneAnalysis(a))
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := &out[i], &out[j]
		if f.MaxDaysLeft != nil && a.DaysLeft != b.DaysLeft {
			return a.DaysLeft < b.DaysLeft
		}
		if (f.MaxDaysLeft != nil || f.Priority != "") && a.Score.Final != b.Score.Final {
			return a.Score.Final > b.Score.Final
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	if len(out) > f.limit() {
		out = out[:f.limit()]
	}
	return out, nil
}

// GetAnalysis returns a copy of the analysis with the given ID.
func (m *Memory) GetAnalysis(ctx context.Context, id string) (*models.Analysis, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.analyses {
		if a.ID == id {
			out := cloneAnalysis(a)
			return &out, nil
		}
	}
	return nil, nil
}

// DeleteAnalysis removes the analysis with the given ID.
func (m *Memory) DeleteAnalysis(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, a := range m.analyses {
		if a.ID == id {
			m.analyses = append(m.analyses[:i], m.analyses[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// AnalysisStats counts saved analyses per priority label.
func (m *Memory) AnalysisStats(ctx context.Context, userID string) (*models.AnalysisStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &models.AnalysisStats{}
	for _, a := range m.analyses {
		if userID == "" || a.UserID == userID {
			stats.Add(a.Priority, 1)
		}
	}
	return stats, nil
}

func cloneAnalysis(a models.Analysis) models.Analysis {
	if a.Subtasks != nil {
		a.Subtasks = append([]string(nil), a.Subtasks...)
	}
	if a.Estimates != nil {
		est := *a.Estimates
		est.Predictions = append([]models.SubtaskPrediction(nil), est.Predictions...)
		a.Estimates = &est
	}
	return a
}

func cloneRecord(r models.TaskRecord) models.TaskRecord {
	if r.Subtask.Vector != nil {
		r.Subtask.Vector = append([]float64(nil), r.Subtask.Vector...)
	}
	if r.Estimates.ActualTime != nil {
		v := *r.Estimates.ActualTime
		r.Estimates.ActualTime = &v
	}
	if r.CompletedDate != nil {
		t := *r.CompletedDate
		r.CompletedDate = &t
	}
	if r.TimeAllocationDate != nil {
		t := *r.TimeAllocationDate
		r.TimeAllocationDate = &t
	}
	return r
}

// sortByCreated orders records by creation time, then subtask position,
// then ID, matching SQLStore.
func sortByCreated(records []models.TaskRecord) {
	sort.Slice(records, func(i, j int) bool {
		return createdBefore(&records[i], &records[j])
	})
}

func createdBefore(a, b *models.TaskRecord) bool {
	if !a.CreatedDate.Equal(b.CreatedDate) {
		return a.CreatedDate.Before(b.CreatedDate)
	}
	if a.Subtask.Position != b.Subtask.Position {
		return a.Subtask.Position < b.Subtask.Position
	}
	return a.ID < b.ID
}
