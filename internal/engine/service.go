// Package engine composes the priority scorer, the difficulty resolver and
// the time estimator into the operations exposed by the server and the CLI.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fentz26/priora/internal/audit"
	"github.com/fentz26/priora/internal/difficulty"
	"github.com/fentz26/priora/internal/errs"
	"github.com/fentz26/priora/internal/estimator"
	"github.com/fentz26/priora/internal/logging"
	"github.com/fentz26/priora/internal/mcdm"
	"github.com/fentz26/priora/internal/models"
	"github.com/fentz26/priora/internal/store"
)

// Deps are the collaborators of a Service.
type Deps struct {
	Resolver  *difficulty.Resolver
	Pipeline  *mcdm.Pipeline
	Predictor *estimator.Predictor
	Repo      store.Repository
	Audit     *audit.Writer
	Logger    *slog.Logger
	Now       func() time.Time
}

// Service provides the engine business logic.
type Service struct {
	resolver  *difficulty.Resolver
	pipeline  *mcdm.Pipeline
	predictor *estimator.Predictor
	repo      store.Repository
	audit     *audit.Writer
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a new engine service.
func NewService(d Deps) *Service {
	s := &Service{
		resolver:  d.Resolver,
		pipeline:  d.Pipeline,
		predictor: d.Predictor,
		repo:      d.Repo,
		audit:     d.Audit,
		logger:    logging.WithComponent(d.Logger, "engine"),
		now:       d.Now,
	}
	if s.resolver == nil {
		s.resolver = difficulty.NewResolver(nil, difficulty.WithLogger(d.Logger))
	}
	if s.pipeline == nil {
		s.pipeline = mcdm.NewPipeline(mcdm.DefaultWeights())
	}
	if s.audit == nil {
		s.audit = audit.NewWriter(d.Repo, d.Logger)
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// --- Priority ---

// PriorityInput holds the MCDM criteria for one task.
type PriorityInput struct {
	DaysLeft   int `json:"days_left"`
	Credits    int `json:"credits"`
	Weight     int `json:"weight"`
	Difficulty int `json:"difficulty"`
}

// Validate checks the input ranges accepted by the scorer.
func (in PriorityInput) Validate() error {
	if in.Credits < 1 || in.Credits > 4 {
		return errs.Validation("credits must be between 1 and 4, got %d", in.Credits)
	}
	if in.Weight < 0 || in.Weight > 100 {
		return errs.Validation("weight must be between 0 and 100, got %d", in.Weight)
	}
	if in.Difficulty < 1 || in.Difficulty > 5 {
		return errs.Validation("difficulty must be between 1 and 5, got %d", in.Difficulty)
	}
	return nil
}

// ComputePriority scores a task.
func (s *Service) ComputePriority(in PriorityInput) (*models.ScoreResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	res := s.pipeline.Compute(in.DaysLeft, in.Credits, in.Weight, in.Difficulty)
	return &res, nil
}

// --- Difficulty ---

// ResolveDifficulty fuses the classifier prediction for text with a
// suggested rating.
func (s *Service) ResolveDifficulty(ctx context.Context, text string, suggested int) (models.DifficultyResolution, error) {
	if suggested < 1 || suggested > 5 {
		return models.DifficultyResolution{}, errs.Validation("suggested difficulty must be between 1 and 5, got %d", suggested)
	}
	return s.resolver.Resolve(ctx, text, suggested), nil
}

// ClassifierAvailable reports whether difficulty predictions use a classifier.
func (s *Service) ClassifierAvailable() bool {
	return s.resolver.Available()
}

// --- Estimation ---

// PredictTime estimates the duration of one subtask.
func (s *Service) PredictTime(ctx context.Context, text, userID string, difficulty int) (*models.Prediction, error) {
	pred, err := s.predictor.Predict(ctx, text, userID, difficulty)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.ActionPredict,
		map[string]interface{}{"subtask": text, "user_id": userID, "difficulty": difficulty},
		audit.OutcomeSuccess, userID,
		fmt.Sprintf("%s: %d minutes", pred.Method, pred.PredictedTime))
	return pred, nil
}

// PredictBatch estimates every subtask of a main task.
func (s *Service) PredictBatch(ctx context.Context, userID string, main models.MainTask, subtasks []string) (*models.BatchPrediction, error) {
	batch, err := s.predictor.PredictBatch(ctx, userID, main, subtasks)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.ActionBatch,
		map[string]interface{}{"user_id": userID, "main_task": main, "subtasks": subtasks},
		audit.OutcomeSuccess, userID,
		fmt.Sprintf("%d subtasks, %d minutes", batch.TaskCount, batch.TotalTime))
	return batch, nil
}

// SaveTasks schedules the planned subtasks of a main task.
func (s *Service) SaveTasks(ctx context.Context, userID string, main models.MainTask, planned []models.PlannedSubtask) ([]models.TaskRecord, error) {
	if main.Difficulty != 0 && (main.Difficulty < 1 || main.Difficulty > 5) {
		return nil, errs.Validation("main task difficulty must be between 1 and 5, got %d", main.Difficulty)
	}

	inputs := map[string]interface{}{"user_id": userID, "main_task": main, "subtasks": planned}
	records, err := s.predictor.Save(ctx, userID, main, planned)
	if err != nil {
		if !errs.Is(err, errs.ErrValidation) {
			s.audit.Record(ctx, audit.ActionSave, inputs, audit.OutcomeFailure, userID, err.Error())
		}
		return nil, err
	}

	s.audit.Record(ctx, audit.ActionSave, inputs, audit.OutcomeSuccess, userID,
		fmt.Sprintf("%d records scheduled", len(records)))
	return stripVectors(records), nil
}

// CompleteTask records the actual time spent on a scheduled subtask. It
// reports whether a record transitioned; no match is not an error.
func (s *Service) CompleteTask(ctx context.Context, text, userID string, actualTime int) (bool, error) {
	done, err := s.predictor.Complete(ctx, text, userID, actualTime)
	if err != nil {
		return false, err
	}

	outcome := audit.OutcomeSuccess
	if !done {
		outcome = audit.OutcomeNoop
	}
	s.audit.Record(ctx, audit.ActionComplete,
		map[string]interface{}{"subtask": text, "user_id": userID, "actual_time": actualTime},
		outcome, userID, "")
	return done, nil
}

// GetAccuracy returns the user's latest accuracy log.
func (s *Service) GetAccuracy(ctx context.Context, userID string) (*models.AccuracyLog, error) {
	log, err := s.predictor.Accuracy(ctx, userID)
	if err != nil {
		return nil, err
	}
	if log == nil {
		return nil, errs.NotFound("accuracy data for user", userID)
	}
	return log, nil
}

// SnapshotAccuracy evaluates the user's completed tasks and stores the result.
func (s *Service) SnapshotAccuracy(ctx context.Context, userID string) (*models.AccuracyLog, error) {
	log, err := s.predictor.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.ActionSnapshot, map[string]string{"user_id": userID},
		audit.OutcomeSuccess, userID,
		fmt.Sprintf("mae=%.2f accuracy_5min=%.2f size=%d", log.MAE, log.AccuracyWithin5Min, log.TrainingSize))
	return log, nil
}

// --- Records ---

// ListTasks returns a user's task records without their embeddings.
func (s *Service) ListTasks(ctx context.Context, userID string, status models.TaskStatus) ([]models.TaskRecord, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errs.Validation("user_id is required")
	}
	switch status {
	case "", models.TaskStatusScheduled, models.TaskStatusCompleted:
	default:
		return nil, errs.Validation("unknown status %q", status)
	}

	records, err := s.repo.ListTasks(ctx, userID, status)
	if err != nil {
		return nil, errs.Unavailable("task store", err)
	}
	if records == nil {
		records = []models.TaskRecord{}
	}
	return stripVectors(records), nil
}

// GetTask returns one task record by ID.
func (s *Service) GetTask(ctx context.Context, id string) (*models.TaskRecord, error) {
	rec, err := s.repo.GetTask(ctx, id)
	if err != nil {
		return nil, errs.Unavailable("task store", err)
	}
	if rec == nil {
		return nil, errs.NotFound("task", id)
	}
	rec.Subtask.Vector = nil
	return rec, nil
}

// Decisions returns recent decision records, optionally for one user.
func (s *Service) Decisions(ctx context.Context, userID string, limit int) ([]models.DecisionRecord, error) {
	out, err := s.repo.ListDecisions(ctx, userID, limit)
	if err != nil {
		return nil, errs.Unavailable("task store", err)
	}
	if out == nil {
		out = []models.DecisionRecord{}
	}
	return out, nil
}

// Ping checks the store.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func stripVectors(records []models.TaskRecord) []models.TaskRecord {
	for i := range records {
		records[i].Subtask.Vector = nil
	}
	return records
}
