package similarity

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"

	"github.com/fentz26/priora/internal/errs"
	"github.com/fentz26/priora/internal/logging"
	"github.com/fentz26/priora/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	records []models.TaskRecord
	err     error
}

func (f *fakeSource) FindCompleted(ctx context.Context, userID string) ([]models.TaskRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.TaskRecord
	for _, r := range f.records {
		if r.UserID == userID && r.IsDonor() {
			out = append(out, r)
		}
	}
	return out, nil
}

func donor(id, user, desc string, vec []float64, actual int) models.TaskRecord {
	return models.TaskRecord{
		ID:        id,
		UserID:    user,
		Subtask:   models.Subtask{Description: desc, Vector: vec, Category: "general"},
		Estimates: models.Estimates{ActualTime: &actual},
		Status:    models.TaskStatusCompleted,
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1},
		{"scaled", []float64{1, 2, 3}, []float64{2, 4, 6}, 1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"opposite", []float64{1, 1}, []float64{-1, -1}, -1},
		{"zero vector", []float64{0, 0, 0}, []float64{1, 2, 3}, 0},
		{"length mismatch", []float64{1, 2}, []float64{1, 2, 3}, 0},
		{"empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Cosine(tt.a, tt.b), 1e-9)
		})
	}
}

func TestCosine_Properties(t *testing.T) {
	vectors := [][]float64{
		{0.3, -1.2, 4.5},
		{2, 2, 2},
		{-0.1, 0.7, 0.05},
		{10, -3, 0},
	}
	for _, a := range vectors {
		assert.InDelta(t, 1.0, Cosine(a, a), 1e-9)
		for _, b := range vectors {
			got := Cosine(a, b)
			assert.InDelta(t, got, Cosine(b, a), 1e-12, "symmetry")
			assert.True(t, got >= -1-1e-9 && got <= 1+1e-9, "range")
			assert.False(t, math.IsNaN(got))
		}
	}
}

func TestFindSimilar_FiltersSortsAndTruncates(t *testing.T) {
	query := []float64{1, 0}
	src := &fakeSource{records: []models.TaskRecord{
		donor("a", "u1", "close", []float64{1, 0.1}, 30),
		donor("b", "u1", "far", []float64{0, 1}, 99),
		donor("c", "u1", "exact", []float64{2, 0}, 40),
		donor("d", "u2", "other user", []float64{1, 0}, 5),
		donor("e", "u1", "medium", []float64{1, 0.5}, 20),
	}}

	matches, err := NewSearcher(src).FindSimilar(context.Background(), query, "u1")
	require.NoError(t, err)
	require.Len(t, matches, 3)

	assert.Equal(t, "exact", matches[0].Description)
	assert.Equal(t, "close", matches[1].Description)
	assert.Equal(t, "medium", matches[2].Description)
	for i, m := range matches {
		assert.GreaterOrEqual(t, m.Similarity, DefaultThreshold)
		if i > 0 {
			assert.LessOrEqual(t, m.Similarity, matches[i-1].Similarity)
		}
	}

	top1, err := NewSearcher(src).FindSimilar(context.Background(), query, "u1", WithTopK(1))
	require.NoError(t, err)
	require.Len(t, top1, 1)
	assert.Equal(t, 40, top1[0].ActualTime)
}

func TestFindSimilar_TiesKeepStoreOrder(t *testing.T) {
	src := &fakeSource{records: []models.TaskRecord{
		donor("1", "u1", "first", []float64{1, 1}, 10),
		donor("2", "u1", "second", []float64{2, 2}, 20),
		donor("3", "u1", "third", []float64{3, 3}, 30),
	}}

	matches, err := NewSearcher(src).FindSimilar(context.Background(), []float64{1, 1}, "u1")
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, []string{"first", "second", "third"},
		[]string{matches[0].Description, matches[1].Description, matches[2].Description})
}

func TestFindSimilar_EmptyHistory(t *testing.T) {
	matches, err := NewSearcher(&fakeSource{}).FindSimilar(context.Background(), []float64{1}, "nobody")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestFindSimilar_ThresholdOverride(t *testing.T) {
	src := &fakeSource{records: []models.TaskRecord{
		donor("1", "u1", "orthogonal", []float64{0, 1}, 10),
	}}
	s := NewSearcher(src)

	matches, err := s.FindSimilar(context.Background(), []float64{1, 0}, "u1")
	require.NoError(t, err)
	assert.Empty(t, matches)

	matches, err = s.FindSimilar(context.Background(), []float64{1, 0}, "u1", WithThreshold(0))
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	_, err = s.FindSimilar(context.Background(), []float64{1, 0}, "u1", WithTopK(0))
	assert.True(t, errors.Is(err, errs.ErrValidation))
}

func TestFindSimilar_SkipsMismatchedDimension(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf, logging.Config{Level: "debug"})
	src := &fakeSource{records: []models.TaskRecord{
		donor("corrupt", "u1", "bad", []float64{1, 0, 0}, 50),
		donor("ok", "u1", "good", []float64{1, 0}, 15),
	}}

	matches, err := NewSearcher(src, WithLogger(logger)).FindSimilar(context.Background(), []float64{1, 0}, "u1")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "good", matches[0].Description)
	assert.Contains(t, buf.String(), "corrupt")
	assert.Contains(t, buf.String(), "ERROR")
}

func TestFindSimilar_StoreFailure(t *testing.T) {
	src := &fakeSource{err: errors.New("connection refused")}

	_, err := NewSearcher(src).FindSimilar(context.Background(), []float64{1}, "u1")
	assert.True(t, errors.Is(err, errs.ErrDependencyUnavailable))
}
