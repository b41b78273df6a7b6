// Package estimator predicts subtask durations from a user's completed
// history (warm start) or from the task difficulty (cold start), and records
// the outcomes that feed future predictions.
package estimator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/fentz26/priora/internal/embedding"
	"github.com/fentz26/priora/internal/errs"
	"github.com/fentz26/priora/internal/logging"
	"github.com/fentz26/priora/internal/models"
	"github.com/fentz26/priora/internal/scheduler"
	"github.com/fentz26/priora/internal/similarity"
	"github.com/fentz26/priora/internal/store"
)

// DefaultColdStartMinutes applies to difficulties outside the cold-start table.
const DefaultColdStartMinutes = 20

var coldStartTable = map[int]int{1: 10, 2: 15, 3: 20, 4: 30, 5: 45}

// ColdStartMinutes returns the baseline duration for a difficulty rating.
func ColdStartMinutes(difficulty int) int {
	if m, ok := coldStartTable[difficulty]; ok {
		return m
	}
	return DefaultColdStartMinutes
}

// WarmStartMinutes is the similarity-weighted mean of the matches' actual
// times, rounded to the nearest minute. It reports false when the weights
// do not sum to a positive value.
func WarmStartMinutes(matches []models.SimilarTaskMatch) (int, bool) {
	var total float64
	for _, m := range matches {
		total += m.Similarity
	}
	if len(matches) == 0 || total <= 0 {
		return 0, false
	}

	var weighted float64
	for _, m := range matches {
		weighted += (m.Similarity / total) * float64(m.ActualTime)
	}
	return int(math.Round(weighted)), true
}

// SimilarFinder looks up a user's completed tasks near a vector.
type SimilarFinder interface {
	FindSimilar(ctx context.Context, vector []float64, userID string, opts ...similarity.SearchOption) ([]models.SimilarTaskMatch, error)
}

// Predictor estimates subtask durations.
type Predictor struct {
	embedder  embedding.Embedder
	searcher  SimilarFinder
	repo      store.Repository
	scheduler *scheduler.Scheduler
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Predictor.
type Option func(*Predictor)

// WithScheduler sets the worker pool used for batch work.
func WithScheduler(s *scheduler.Scheduler) Option {
	return func(p *Predictor) { p.scheduler = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Predictor) { p.logger = logging.WithComponent(l, "estimator") }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Predictor) { p.now = now }
}

// New creates a Predictor. A nil embedder makes every prediction cold start.
func New(embedder embedding.Embedder, searcher SimilarFinder, repo store.Repository, opts ...Option) *Predictor {
	p := &Predictor{
		embedder: embedder,
		searcher: searcher,
		repo:     repo,
		logger:   logging.Nop(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.scheduler == nil {
		p.scheduler = scheduler.New(nil, p.logger)
	}
	return p
}

// Predict estimates the duration of one subtask. Only invalid input is an
// error: when the embedder or the history is unavailable the prediction
// degrades to cold start.
func (p *Predictor) Predict(ctx context.Context, subtaskText, userID string, difficulty int) (*models.Prediction, error) {
	if strings.TrimSpace(subtaskText) == "" {
		return nil, errs.Validation("subtask text is required")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, errs.Validation("user_id is required")
	}

	matches := p.similar(ctx, subtaskText, userID)
	if minutes, ok := WarmStartMinutes(matches); ok {
		p.logger.Info("warm start prediction",
			"user_id", userID, "matches", len(matches), "predicted_time", minutes)
		return &models.Prediction{
			Method:        models.MethodWarmStart,
			PredictedTime: minutes,
			Confidence:    models.ConfidenceHigh,
			Explanation:   fmt.Sprintf("Based on %d similar tasks", len(matches)),
			SimilarTasks:  matches,
		}, nil
	}

	minutes := ColdStartMinutes(difficulty)
	p.logger.Info("cold start prediction",
		"user_id", userID, "difficulty", difficulty, "predicted_time", minutes)
	return &models.Prediction{
		Method:        models.MethodColdStart,
		PredictedTime: minutes,
		Confidence:    models.ConfidenceLow,
		Explanation:   fmt.Sprintf("Based on difficulty level %d/5", difficulty),
		SimilarTasks:  []models.SimilarTaskMatch{},
	}, nil
}

// similar returns the matches for text, or nil when there is no usable history.
func (p *Predictor) similar(ctx context.Context, text, userID string) []models.SimilarTaskMatch {
	if p.embedder == nil || p.searcher == nil {
		return nil
	}

	vec, err := p.embedder.Embed(ctx, text)
	if err != nil {
		p.logger.Warn("history unavailable: embedding failed", "user_id", userID, "error", err)
		return nil
	}

	matches, err := p.searcher.FindSimilar(ctx, vec, userID)
	if err != nil {
		p.logger.Warn("history unavailable: similarity search failed", "user_id", userID, "error", err)
		return nil
	}
	if len(matches) == 0 {
		p.logger.Info("no similar history", "user_id", userID)
	}
	return matches
}

// PredictBatch predicts every subtask of a main task using the main task's
// difficulty. Results keep input order and are numbered from 1.
func (p *Predictor) PredictBatch(ctx context.Context, userID string, main models.MainTask, subtasks []string) (*models.BatchPrediction, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errs.Validation("user_id is required")
	}
	for i, s := range subtasks {
		if strings.TrimSpace(s) == "" {
			return nil, errs.Validation("subtask %d is empty", i+1)
		}
	}

	difficulty := main.Difficulty
	if difficulty == 0 {
		difficulty = 3
	}

	out := make([]models.SubtaskPrediction, len(subtasks))
	err := p.scheduler.Run(ctx, len(subtasks), func(ctx context.Context, i int) error {
		pred, err := p.Predict(ctx, subtasks[i], userID, difficulty)
		if err != nil {
			return err
		}
		out[i] = models.SubtaskPrediction{
			Prediction:    *pred,
			SubtaskNumber: i + 1,
			SubtaskText:   subtasks[i],
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	batch := &models.BatchPrediction{Predictions: out, TaskCount: len(out)}
	for _, sp := range out {
		batch.TotalTime += sp.PredictedTime
	}
	if batch.TaskCount > 0 {
		batch.AverageTime = float64(batch.TotalTime) / float64(batch.TaskCount)
	}
	return batch, nil
}
