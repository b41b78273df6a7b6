package engine

import (
	"context"
	"strings"

	"github.com/fentz26/priora/internal/audit"
	"github.com/fentz26/priora/internal/errs"
	"github.com/fentz26/priora/internal/mcdm"
	"github.com/fentz26/priora/internal/models"
	"github.com/fentz26/priora/internal/store"
)

// AnalyzeInput carries the fields already extracted from an assignment
// brief, plus the user's own criteria.
type AnalyzeInput struct {
	TaskName            string   `json:"task_name"`
	Description         string   `json:"description"`
	Subtasks            []string `json:"subtasks"`
	SuggestedDifficulty int      `json:"suggested_difficulty"`
	Deadline            string   `json:"deadline,omitempty"`
	DaysLeft            *int     `json:"days_left,omitempty"`
	Credits             int      `json:"credits"`
	Weight              int      `json:"weight"`
	UserID              string   `json:"user_id,omitempty"`
}

// Analyze resolves the task's difficulty, scores its priority and, when a
// user is given, estimates each subtask.
func (s *Service) Analyze(ctx context.Context, in AnalyzeInput) (*models.Analysis, error) {
	if strings.TrimSpace(in.TaskName) == "" {
		return nil, errs.Validation("task_name is required")
	}

	daysLeft, err := s.daysLeft(in)
	if err != nil {
		return nil, err
	}

	text := in.Description
	if strings.TrimSpace(text) == "" {
		text = in.TaskName
	}
	res, err := s.ResolveDifficulty(ctx, text, in.SuggestedDifficulty)
	if err != nil {
		return nil, err
	}

	score, err := s.ComputePriority(PriorityInput{
		DaysLeft:   daysLeft,
		Credits:    in.Credits,
		Weight:     in.Weight,
		Difficulty: res.Difficulty,
	})
	if err != nil {
		return nil, err
	}

	analysis := &models.Analysis{
		UserID:      in.UserID,
		TaskName:    in.TaskName,
		Description: in.Description,
		Subtasks:    in.Subtasks,
		Deadline:    in.Deadline,
		DaysLeft:    daysLeft,
		Credits:     in.Credits,
		Weight:      in.Weight,
		Difficulty:  res,
		Score:       *score,
		Priority:    score.Label,
		CreatedAt:   s.now().UTC(),
	}

	if in.UserID != "" && len(in.Subtasks) > 0 && s.predictor != nil {
		batch, err := s.predictor.PredictBatch(ctx, in.UserID,
			models.MainTask{Name: in.TaskName, Difficulty: res.Difficulty}, in.Subtasks)
		if err != nil {
			return nil, err
		}
		analysis.Estimates = batch
	}

	s.saveAnalysis(ctx, analysis)
	s.audit.Record(ctx, audit.ActionAnalyze, in, audit.OutcomeSuccess, in.UserID, analysis.Priority)
	s.logger.Info("task analyzed", "task", in.TaskName, "priority", analysis.Priority,
		"difficulty", res.Difficulty, "difficulty_method", res.Method)
	return analysis, nil
}

// saveAnalysis stores the result for later listing. A store failure is
// logged and the analysis is still returned, without an ID.
func (s *Service) saveAnalysis(ctx context.Context, a *models.Analysis) {
	if s.repo == nil {
		return
	}
	if err := s.repo.InsertAnalysis(ctx, a); err != nil {
		a.ID = ""
		s.logger.Warn("failed to save analysis", "task", a.TaskName, "error", err)
	}
}

// AnalysisQuery selects saved analyses.
type AnalysisQuery struct {
	UserID      string
	Priority    string
	MaxDaysLeft *int
	Limit       int
}

// ListAnalyses returns saved analyses, filtered by priority label and/or
// an upcoming-deadline window.
func (s *Service) ListAnalyses(ctx context.Context, q AnalysisQuery) ([]models.Analysis, error) {
	switch q.Priority {
	case "", mcdm.LabelHigh, mcdm.LabelMedium, mcdm.LabelLow:
	default:
		return nil, errs.Validation("priority must be High, Medium or Low, got %q", q.Priority)
	}
	if q.Limit < 0 {
		return nil, errs.Validation("limit must be non-negative, got %d", q.Limit)
	}

	out, err := s.repo.ListAnalyses(ctx, store.AnalysisFilter{
		UserID:      q.UserID,
		Priority:    q.Priority,
		MaxDaysLeft: q.MaxDaysLeft,
		Limit:       q.Limit,
	})
	if err != nil {
		return nil, errs.Unavailable("task store", err)
	}
	if out == nil {
		out = []models.Analysis{}
	}
	return out, nil
}

// GetAnalysis returns one saved analysis.
func (s *Service) GetAnalysis(ctx context.Context, id string) (*models.Analysis, error) {
	a, err := s.repo.GetAnalysis(ctx, id)
	if err != nil {
		return nil, errs.Unavailable("task store", err)
	}
	if a == nil {
		return nil, errs.NotFound("analysis", id)
	}
	return a, nil
}

// DeleteAnalysis removes a saved analysis.
func (s *Service) DeleteAnalysis(ctx context.Context, id, userID string) error {
	deleted, err := s.repo.DeleteAnalysis(ctx, id)
	if err != nil {
		return errs.Unavailable("task store", err)
	}
	if !deleted {
		return errs.NotFound("analysis", id)
	}
	s.audit.Record(ctx, audit.ActionDeleteAnalysis, map[string]string{"id": id}, audit.OutcomeSuccess, userID, "")
	s.logger.Info("analysis deleted", "id", id)
	return nil
}

// AnalysisStats counts saved analyses per priority label.
func (s *Service) AnalysisStats(ctx context.Context, userID string) (*models.AnalysisStats, error) {
	stats, err := s.repo.AnalysisStats(ctx, userID)
	if err != nil {
		return nil, errs.Unavailable("task store", err)
	}
	return stats, nil
}

func (s *Service) daysLeft(in AnalyzeInput) (int, error) {
	if in.DaysLeft != nil {
		return *in.DaysLeft, nil
	}
	if in.Deadline == "" {
		return 0, errs.Validation("either deadline or days_left is required")
	}
	deadline, err := mcdm.ParseDeadline(in.Deadline)
	if err != nil {
		return 0, errs.Validation("deadline must be YYYY-MM-DD, got %q", in.Deadline)
	}
	return mcdm.DaysUntil(deadline, s.now()), nil
}
