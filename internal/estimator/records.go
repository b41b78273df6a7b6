package estimator

import (
	"context"
	"math"
	"strings"

	"github.com/fentz26/priora/internal/errs"
	"github.com/fentz26/priora/internal/models"
)

// DefaultCategory is stored for subtasks saved without a category.
const DefaultCategory = "general"

// Save schedules the planned subtasks of a main task. Each description is
// embedded once; the vector never changes afterwards.
func (p *Predictor) Save(ctx context.Context, userID string, main models.MainTask, planned []models.PlannedSubtask) ([]models.TaskRecord, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errs.Validation("user_id is required")
	}
	if strings.TrimSpace(main.Name) == "" {
		return nil, errs.Validation("main task name is required")
	}
	if len(planned) == 0 {
		return nil, errs.Validation("no subtasks to save")
	}
	for i, ps := range planned {
		if strings.TrimSpace(ps.SubtaskText) == "" {
			return nil, errs.Validation("subtask %d is empty", i+1)
		}
		if ps.PredictedTime < 0 {
			return nil, errs.Validation("subtask %d has negative predicted time", i+1)
		}
		if ps.UserEstimate != nil && *ps.UserEstimate < 0 {
			return nil, errs.Validation("subtask %d has negative user estimate", i+1)
		}
	}
	if p.embedder == nil {
		return nil, errs.Unavailable("embedding service", nil)
	}

	vectors := make([][]float64, len(planned))
	err := p.scheduler.Run(ctx, len(planned), func(ctx context.Context, i int) error {
		vec, err := p.embedder.Embed(ctx, planned[i].SubtaskText)
		if err != nil {
			if errs.Is(err, errs.ErrDependencyUnavailable) {
				return err
			}
			return errs.Unavailable("embedding service", err)
		}
		vectors[i] = vec
		return nil
	})
	if err != nil {
		return nil, err
	}

	now := p.now()
	records := make([]models.TaskRecord, 0, len(planned))
	for i, ps := range planned {
		rec := newRecord(userID, main, ps, vectors[i])
		rec.CreatedDate = now
		if err := p.repo.InsertTask(ctx, &rec); err != nil {
			return records, errs.Unavailable("task store", err)
		}
		records = append(records, rec)
	}

	p.logger.Info("tasks saved", "user_id", userID, "main_task", main.Name, "count", len(records))
	return records, nil
}

func newRecord(userID string, main models.MainTask, ps models.PlannedSubtask, vector []float64) models.TaskRecord {
	category := ps.Category
	if category == "" {
		category = DefaultCategory
	}
	method := ps.Method
	if method == "" {
		method = models.MethodColdStart
	}
	confidence := ps.Confidence
	if confidence == "" {
		confidence = models.ConfidenceFor(method)
	}
	userEstimate := ps.PredictedTime
	if ps.UserEstimate != nil {
		userEstimate = *ps.UserEstimate
	}

	return models.TaskRecord{
		UserID:   userID,
		MainTask: main,
		Subtask: models.Subtask{
			Description: ps.SubtaskText,
			Vector:      vector,
			Category:    category,
			Position:    ps.SubtaskNumber,
		},
		Estimates: models.Estimates{
			PredictionMethod: method,
			SystemEstimate:   ps.PredictedTime,
			UserEstimate:     userEstimate,
			Confidence:       confidence,
		},
		Status:             models.TaskStatusScheduled,
		TimeAllocationDate: ps.TimeAllocationDate,
	}
}

// Complete records the actual time of the oldest scheduled record matching
// the user and description. No matching record is not an error; the result
// reports whether a record transitioned.
func (p *Predictor) Complete(ctx context.Context, subtaskText, userID string, actualTime int) (bool, error) {
	if strings.TrimSpace(subtaskText) == "" {
		return false, errs.Validation("subtask text is required")
	}
	if strings.TrimSpace(userID) == "" {
		return false, errs.Validation("user_id is required")
	}
	if actualTime < 0 {
		return false, errs.Validation("actual_time must be non-negative, got %d", actualTime)
	}

	done, err := p.repo.CompleteTask(ctx, userID, subtaskText, actualTime, p.now())
	if err != nil {
		return false, errs.Unavailable("task store", err)
	}
	if !done {
		p.logger.Info("no scheduled task to complete", "user_id", userID, "subtask", subtaskText)
		return false, nil
	}

	p.logger.Info("task completed", "user_id", userID, "actual_time", actualTime)
	return true, nil
}

// Accuracy returns the user's latest accuracy log, or nil when none exists.
func (p *Predictor) Accuracy(ctx context.Context, userID string) (*models.AccuracyLog, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errs.Validation("user_id is required")
	}
	log, err := p.repo.LatestAccuracy(ctx, userID)
	if err != nil {
		return nil, errs.Unavailable("task store", err)
	}
	return log, nil
}

// Snapshot measures how well stored system estimates matched the actual
// times of the user's completed tasks and appends the result as an
// accuracy log.
func (p *Predictor) Snapshot(ctx context.Context, userID string) (*models.AccuracyLog, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errs.Validation("user_id is required")
	}

	completed, err := p.repo.FindCompleted(ctx, userID)
	if err != nil {
		return nil, errs.Unavailable("task store", err)
	}
	if len(completed) == 0 {
		return nil, errs.NotFound("completed tasks for user", userID)
	}

	log := Evaluate(completed)
	log.UserID = userID
	log.TrainingDate = p.now()
	if err := p.repo.InsertAccuracy(ctx, log); err != nil {
		return nil, errs.Unavailable("task store", err)
	}

	p.logger.Info("accuracy snapshot", "user_id", userID, "mae", log.MAE,
		"accuracy_5min", log.AccuracyWithin5Min, "size", log.TrainingSize)
	return log, nil
}

// Evaluate computes the mean absolute error and the percentage of estimates
// within five minutes over donor records.
func Evaluate(records []models.TaskRecord) *models.AccuracyLog {
	var (
		sumAbs float64
		within int
		n      int
	)
	for i := range records {
		r := &records[i]
		if !r.IsDonor() {
			continue
		}
		diff := math.Abs(float64(r.Estimates.SystemEstimate - *r.Estimates.ActualTime))
		sumAbs += diff
		if diff <= 5 {
			within++
		}
		n++
	}

	log := &models.AccuracyLog{TrainingSize: n}
	if n > 0 {
		log.MAE = math.Round(sumAbs/float64(n)*100) / 100
		log.AccuracyWithin5Min = math.Round(float64(within)/float64(n)*10000) / 100
	}
	return log
}
