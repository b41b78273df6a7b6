// Package store provides persistence for task records, accuracy logs,
// decision records and analyzed tasks.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/fentz26/priora/internal/models"
)

// Supported backends.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Repository is the task record store used by the estimator and the engine.
type Repository interface {
	// InsertTask stores a new record. Empty ID and CreatedDate are filled in.
	InsertTask(ctx context.Context, rec *models.TaskRecord) error
	// FindCompleted returns the user's donor records: completed with an actual time.
	FindCompleted(ctx context.Context, userID string) ([]models.TaskRecord, error)
	// CompleteTask transitions at most one scheduled record matching the user
	// and description to completed. It reports whether a record transitioned.
	CompleteTask(ctx context.Context, userID, description string, actualTime int, at time.Time) (bool, error)
	// ListTasks returns a user's records, optionally filtered by status.
	ListTasks(ctx context.Context, userID string, status models.TaskStatus) ([]models.TaskRecord, error)
	// GetTask returns nil, nil when no record has the ID.
	GetTask(ctx context.Context, id string) (*models.TaskRecord, error)

	// LatestAccuracy returns nil, nil when the user has no accuracy log.
	LatestAccuracy(ctx context.Context, userID string) (*models.AccuracyLog, error)
	InsertAccuracy(ctx context.Context, log *models.AccuracyLog) error

	WriteDecision(ctx context.Context, rec *models.DecisionRecord) error
	// ListDecisions returns the newest decisions first. A non-empty userID
	// restricts the result to that user's decisions before the limit applies.
	ListDecisions(ctx context.Context, userID string, limit int) ([]models.DecisionRecord, error)

	// InsertAnalysis saves an analyzed task. Empty ID and CreatedAt are filled in.
	InsertAnalysis(ctx context.Context, a *models.Analysis) error
	ListAnalyses(ctx context.Context, filter AnalysisFilter) ([]models.Analysis, error)
	// GetAnalysis returns nil, nil when no analysis has the ID.
	GetAnalysis(ctx context.Context, id string) (*models.Analysis, error)
	// DeleteAnalysis reports whether an analysis was removed.
	DeleteAnalysis(ctx context.Context, id string) (bool, error)
	AnalysisStats(ctx context.Context, userID string) (*models.AnalysisStats, error)

	Ping(ctx context.Context) error
	Close() error
}

// DefaultAnalysisLimit caps ListAnalyses when the filter sets no limit.
const DefaultAnalysisLimit = 100

// AnalysisFilter selects saved analyses. Empty fields match everything.
//
// Results are ordered by days left when MaxDaysLeft is set, by final score
// when only Priority is set, and newest first otherwise.
type AnalysisFilter struct {
	UserID      string
	Priority    string
	MaxDaysLeft *int
	Limit       int
}

func (f AnalysisFilter) limit() int {
	if f.Limit <= 0 {
		return DefaultAnalysisLimit
	}
	return f.Limit
}

var (
	_ Repository = (*SQLStore)(nil)
	_ Repository = (*Memory)(nil)
)

// Open returns the backend named by driver.
func Open(driver, dsn string) (Repository, error) {
	switch driver {
	case DriverSQLite, "":
		s, err := NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverPostgres:
		s, err := NewPostgres(dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
