package estimator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/fentz26/priora/internal/errs"
	"github.com/fentz26/priora/internal/models"
	"github.com/fentz26/priora/internal/scheduler"
	"github.com/fentz26/priora/internal/similarity"
	"github.com/fentz26/priora/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder returns fixed vectors per text.
type fakeEmbedder struct {
	vectors map[string][]float64
	err     error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float64{0, 0, 1}, nil
}

var fixedNow = time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC)

func newTestPredictor(t *testing.T, emb *fakeEmbedder) (*Predictor, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	p := New(emb, similarity.NewSearcher(mem), mem,
		WithScheduler(scheduler.New(&scheduler.Config{MaxWorkers: 3}, nil)),
		WithClock(func() time.Time { return fixedNow }))
	return p, mem
}

func intPtr(v int) *int { return &v }

func TestColdStartMinutes(t *testing.T) {
	want := map[int]int{1: 10, 2: 15, 3: 20, 4: 30, 5: 45, 0: 20, 6: 20, -1: 20}
	for d, m := range want {
		assert.Equal(t, m, ColdStartMinutes(d), "difficulty %d", d)
	}
}

func TestWarmStartMinutes(t *testing.T) {
	got, ok := WarmStartMinutes([]models.SimilarTaskMatch{
		{Similarity: 0.9, ActualTime: 30},
		{Similarity: 0.7, ActualTime: 10},
	})
	require.True(t, ok)
	assert.Equal(t, 21, got) // 34 / 1.6 = 21.25

	got, ok = WarmStartMinutes([]models.SimilarTaskMatch{
		{Similarity: 0.8, ActualTime: 10},
		{Similarity: 0.4, ActualTime: 20},
	})
	require.True(t, ok)
	assert.Equal(t, 13, got) // 16 / 1.2 = 13.33

	got, ok = WarmStartMinutes([]models.SimilarTaskMatch{{Similarity: 0.8, ActualTime: 42}})
	require.True(t, ok)
	assert.Equal(t, 42, got)

	_, ok = WarmStartMinutes(nil)
	assert.False(t, ok)
}

func TestWarmStartMinutes_BoundedByActuals(t *testing.T) {
	matches := []models.SimilarTaskMatch{
		{Similarity: 0.95, ActualTime: 12},
		{Similarity: 0.66, ActualTime: 90},
		{Similarity: 0.8, ActualTime: 45},
	}
	got, ok := WarmStartMinutes(matches)
	require.True(t, ok)
	assert.GreaterOrEqual(t, got, 12)
	assert.LessOrEqual(t, got, 90)
}

func TestPredict_ColdStartWithoutHistory(t *testing.T) {
	p, _ := newTestPredictor(t, &fakeEmbedder{})

	pred, err := p.Predict(context.Background(), "Write introduction", "u1", 4)
	require.NoError(t, err)

	assert.Equal(t, models.MethodColdStart, pred.Method)
	assert.Equal(t, 30, pred.PredictedTime)
	assert.Equal(t, models.ConfidenceLow, pred.Confidence)
	assert.Equal(t, "Based on difficulty level 4/5", pred.Explanation)
	assert.NotNil(t, pred.SimilarTasks)
	assert.Empty(t, pred.SimilarTasks)
}

func TestPredict_WarmStartFromCompletedHistory(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float64{
		"Create login page":        {1, 0, 0},
		"Create signup page":       {0.9, 0.1, 0},
		"Build registration form":  {0.8, 0.3, 0},
		"Write database migration": {0, 1, 0},
	}}
	p, _ := newTestPredictor(t, emb)
	ctx := context.Background()

	_, err := p.Save(ctx, "u1", models.MainTask{Name: "Web app", Difficulty: 3}, []models.PlannedSubtask{
		{SubtaskNumber: 1, SubtaskText: "Create signup page", PredictedTime: 20},
		{SubtaskNumber: 2, SubtaskText: "Build registration form", PredictedTime: 20},
		{SubtaskNumber: 3, SubtaskText: "Write database migration", PredictedTime: 20},
	})
	require.NoError(t, err)

	for desc, actual := range map[string]int{
		"Create signup page":       30,
		"Build registration form":  40,
		"Write database migration": 90,
	} {
		done, err := p.Complete(ctx, desc, "u1", actual)
		require.NoError(t, err)
		require.True(t, done)
	}

	pred, err := p.Predict(ctx, "Create login page", "u1", 3)
	require.NoError(t, err)

	assert.Equal(t, models.MethodWarmStart, pred.Method)
	assert.Equal(t, models.ConfidenceHigh, pred.Confidence)
	require.Len(t, pred.SimilarTasks, 2)
	assert.Equal(t, "Based on 2 similar tasks", pred.Explanation)
	assert.Equal(t, "Create signup page", pred.SimilarTasks[0].Description)

	want, _ := WarmStartMinutes(pred.SimilarTasks)
	assert.Equal(t, want, pred.PredictedTime)
	assert.True(t, pred.PredictedTime >= 30 && pred.PredictedTime <= 40)

	// Another user's history is never consulted.
	other, err := p.Predict(ctx, "Create login page", "u2", 3)
	require.NoError(t, err)
	assert.Equal(t, models.MethodColdStart, other.Method)
}

func TestPredict_EmbeddingFailureDegradesToColdStart(t *testing.T) {
	p, _ := newTestPredictor(t, &fakeEmbedder{err: errs.Unavailable("embedding service", errors.New("timeout"))})

	pred, err := p.Predict(context.Background(), "Anything", "u1", 2)
	require.NoError(t, err)
	assert.Equal(t, models.MethodColdStart, pred.Method)
	assert.Equal(t, 15, pred.PredictedTime)
}

type brokenFinder struct{}

func (brokenFinder) FindSimilar(ctx context.Context, v []float64, u string, _ ...similarity.SearchOption) ([]models.SimilarTaskMatch, error) {
	return nil, errs.Unavailable("task store", errors.New("down"))
}

func TestPredict_HistoryFailureDegradesToColdStart(t *testing.T) {
	p := New(&fakeEmbedder{}, brokenFinder{}, store.NewMemory())

	pred, err := p.Predict(context.Background(), "Anything", "u1", 5)
	require.NoError(t, err)
	assert.Equal(t, models.MethodColdStart, pred.Method)
	assert.Equal(t, 45, pred.PredictedTime)
}

func TestPredict_Validation(t *testing.T) {
	p, _ := newTestPredictor(t, &fakeEmbedder{})

	_, err := p.Predict(context.Background(), "  ", "u1", 3)
	assert.True(t, errors.Is(err, errs.ErrValidation))

	_, err = p.Predict(context.Background(), "task", "", 3)
	assert.True(t, errors.Is(err, errs.ErrValidation))
}

func TestPredictBatch(t *testing.T) {
	p, _ := newTestPredictor(t, &fakeEmbedder{})

	subtasks := make([]string, 7)
	for i := range subtasks {
		subtasks[i] = fmt.Sprintf("step %d", i+1)
	}

	batch, err := p.PredictBatch(context.Background(), "u1", models.MainTask{Name: "Lab report", Difficulty: 2}, subtasks)
	require.NoError(t, err)

	require.Len(t, batch.Predictions, 7)
	for i, sp := range batch.Predictions {
		assert.Equal(t, i+1, sp.SubtaskNumber)
		assert.Equal(t, subtasks[i], sp.SubtaskText)
		assert.Equal(t, 15, sp.PredictedTime)
	}
	assert.Equal(t, 105, batch.TotalTime)
	assert.Equal(t, 7, batch.TaskCount)
	assert.InDelta(t, 15.0, batch.AverageTime, 1e-9)
}

func TestPredictBatch_DefaultsAndEmpty(t *testing.T) {
	p, _ := newTestPredictor(t, &fakeEmbedder{})

	batch, err := p.PredictBatch(context.Background(), "u1", models.MainTask{Name: "x"}, []string{"only"})
	require.NoError(t, err)
	assert.Equal(t, 20, batch.TotalTime)

	empty, err := p.PredictBatch(context.Background(), "u1", models.MainTask{Name: "x"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.TaskCount)
	assert.Equal(t, 0.0, empty.AverageTime)

	_, err = p.PredictBatch(context.Background(), "u1", models.MainTask{Name: "x"}, []string{"ok", ""})
	assert.True(t, errors.Is(err, errs.ErrValidation))
}

func TestSave_Defaults(t *testing.T) {
	p, mem := newTestPredictor(t, &fakeEmbedder{})
	alloc := fixedNow.Add(48 * time.Hour)

	records, err := p.Save(context.Background(), "u1", models.MainTask{Name: "Essay", Difficulty: 4}, []models.PlannedSubtask{
		{SubtaskNumber: 1, SubtaskText: "Outline", Method: models.MethodWarmStart, PredictedTime: 25},
		{SubtaskNumber: 2, SubtaskText: "Draft", Category: "writing", PredictedTime: 60, UserEstimate: intPtr(90), TimeAllocationDate: &alloc},
	})
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, DefaultCategory, first.Subtask.Category)
	assert.Equal(t, 25, first.Estimates.UserEstimate)
	assert.Equal(t, models.ConfidenceHigh, first.Estimates.Confidence)
	assert.Equal(t, models.TaskStatusScheduled, first.Status)
	assert.Nil(t, first.Estimates.ActualTime)
	assert.Equal(t, fixedNow, first.CreatedDate)
	assert.NotEmpty(t, first.Subtask.Vector)

	second := records[1]
	assert.Equal(t, "writing", second.Subtask.Category)
	assert.Equal(t, 90, second.Estimates.UserEstimate)
	assert.Equal(t, models.MethodColdStart, second.Estimates.PredictionMethod)
	assert.Equal(t, models.ConfidenceLow, second.Estimates.Confidence)
	assert.Equal(t, 2, second.Subtask.Position)

	stored, err := mem.ListTasks(context.Background(), "u1", models.TaskStatusScheduled)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestSave_EmbeddingFailure(t *testing.T) {
	p, mem := newTestPredictor(t, &fakeEmbedder{err: errors.New("model not loaded")})

	_, err := p.Save(context.Background(), "u1", models.MainTask{Name: "Essay"}, []models.PlannedSubtask{
		{SubtaskNumber: 1, SubtaskText: "Outline", PredictedTime: 10},
	})
	assert.True(t, errors.Is(err, errs.ErrDependencyUnavailable))

	stored, _ := mem.ListTasks(context.Background(), "u1", "")
	assert.Empty(t, stored)
}

func TestSave_Validation(t *testing.T) {
	p, _ := newTestPredictor(t, &fakeEmbedder{})
	ctx := context.Background()
	main := models.MainTask{Name: "Essay"}

	cases := map[string]struct {
		user    string
		main    models.MainTask
		planned []models.PlannedSubtask
	}{
		"no user":           {"", main, []models.PlannedSubtask{{SubtaskText: "a"}}},
		"no main task name": {"u1", models.MainTask{}, []models.PlannedSubtask{{SubtaskText: "a"}}},
		"no subtasks":       {"u1", main, nil},
		"blank subtask":     {"u1", main, []models.PlannedSubtask{{SubtaskText: " "}}},
		"negative estimate": {"u1", main, []models.PlannedSubtask{{SubtaskText: "a", UserEstimate: intPtr(-1)}}},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := p.Save(ctx, c.user, c.main, c.planned)
			assert.True(t, errors.Is(err, errs.ErrValidation), "got %v", err)
		})
	}
}

func TestComplete(t *testing.T) {
	p, mem := newTestPredictor(t, &fakeEmbedder{})
	ctx := context.Background()

	_, err := p.Save(ctx, "u1", models.MainTask{Name: "Essay"}, []models.PlannedSubtask{
		{SubtaskNumber: 1, SubtaskText: "Outline", PredictedTime: 10},
	})
	require.NoError(t, err)

	done, err := p.Complete(ctx, "Outline", "u1", 0)
	require.NoError(t, err)
	assert.True(t, done)

	// Already completed: silent no-op.
	done, err = p.Complete(ctx, "Outline", "u1", 15)
	require.NoError(t, err)
	assert.False(t, done)

	donors, _ := mem.FindCompleted(ctx, "u1")
	require.Len(t, donors, 1)
	assert.Equal(t, 0, *donors[0].Estimates.ActualTime)
	assert.Equal(t, fixedNow, *donors[0].CompletedDate)

	_, err = p.Complete(ctx, "Outline", "u1", -5)
	assert.True(t, errors.Is(err, errs.ErrValidation))
}

func TestAccuracyAndSnapshot(t *testing.T) {
	p, _ := newTestPredictor(t, &fakeEmbedder{})
	ctx := context.Background()

	none, err := p.Accuracy(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = p.Snapshot(ctx, "u1")
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	_, err = p.Save(ctx, "u1", models.MainTask{Name: "Essay"}, []models.PlannedSubtask{
		{SubtaskNumber: 1, SubtaskText: "a", PredictedTime: 20},
		{SubtaskNumber: 2, SubtaskText: "b", PredictedTime: 20},
		{SubtaskNumber: 3, SubtaskText: "c", PredictedTime: 20},
	})
	require.NoError(t, err)
	p.Complete(ctx, "a", "u1", 22)
	p.Complete(ctx, "b", "u1", 35)
	p.Complete(ctx, "c", "u1", 17)

	snap, err := p.Snapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, snap.TrainingSize)
	assert.InDelta(t, 6.67, snap.MAE, 1e-9)
	assert.InDelta(t, 66.67, snap.AccuracyWithin5Min, 1e-9)

	latest, err := p.Accuracy(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, snap.ID, latest.ID)
}

func TestEvaluate_IgnoresNonDonors(t *testing.T) {
	log := Evaluate([]models.TaskRecord{
		{Status: models.TaskStatusScheduled, Estimates: models.Estimates{SystemEstimate: 10}},
	})
	assert.Equal(t, 0, log.TrainingSize)
	assert.Equal(t, 0.0, log.MAE)
}
