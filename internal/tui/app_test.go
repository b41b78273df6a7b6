package tui

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fentz26/priora/internal/engine"
	"github.com/fentz26/priora/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAnalyzer struct {
	got engine.AnalyzeInput
	res *models.Analysis
	err error
}

func (s *stubAnalyzer) Analyze(ctx context.Context, in engine.AnalyzeInput) (*models.Analysis, error) {
	s.got = in
	return s.res, s.err
}

func filledForm() *FormModel {
	f := NewFormModel(Defaults{UserID: "u1"})
	f.SetValue(fieldName, "Database coursework")
	f.SetValue(fieldDescription, "Design a schema")
	f.SetValue(fieldDeadline, "2025-12-04")
	f.SetValue(fieldCredits, "3")
	f.SetValue(fieldWeight, "50%")
	f.SetValue(fieldDifficulty, "4")
	f.SetValue(fieldSubtasks, "Draw ER diagram; ; Write queries ")
	return f
}

func TestFormInput(t *testing.T) {
	in, err := filledForm().Input()
	require.NoError(t, err)

	assert.Equal(t, "Database coursework", in.TaskName)
	assert.Equal(t, "2025-12-04", in.Deadline)
	assert.Equal(t, 3, in.Credits)
	assert.Equal(t, 50, in.Weight)
	assert.Equal(t, 4, in.SuggestedDifficulty)
	assert.Equal(t, []string{"Draw ER diagram", "Write queries"}, in.Subtasks)
	assert.Equal(t, "u1", in.UserID)
}

func TestFormInput_Validation(t *testing.T) {
	tests := []struct {
		name  string
		field int
		value string
		want  string
	}{
		{"missing name", fieldName, "", "task name"},
		{"bad date", fieldDeadline, "04/12/2025", "YYYY-MM-DD"},
		{"credits not a number", fieldCredits, "x", "whole number"},
		{"credits too high", fieldCredits, "5", "between 1 and 4"},
		{"weight too high", fieldWeight, "101", "between 0 and 100"},
		{"difficulty", fieldDifficulty, "0", "between 1 and 5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := filledForm()
			f.SetValue(tt.field, tt.value)
			_, err := f.Input()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFormNavigation(t *testing.T) {
	f := NewFormModel(Defaults{})
	assert.Equal(t, fieldName, f.Focused())

	f, _ = f.Update(tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, fieldDescription, f.Focused())

	f, _ = f.Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	f, _ = f.Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	assert.Equal(t, fieldUser, f.Focused())

	// Enter on the last field submits, which fails on an empty form.
	_, cmd := f.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Contains(t, f.View(), "task name is required")
}

func TestAppFlow(t *testing.T) {
	stub := &stubAnalyzer{res: &models.Analysis{
		TaskName: "Database coursework",
		Priority: "High",
		Score:    models.ScoreResult{Urgency: 80, Impact: 90, DifficultyScore: 60, Final: 79},
		Estimates: &models.BatchPrediction{
			Predictions: []models.SubtaskPrediction{
				{Prediction: models.Prediction{Method: models.MethodColdStart, PredictedTime: 30}, SubtaskNumber: 1, SubtaskText: "Draw ER diagram"},
				{Prediction: models.Prediction{Method: models.MethodWarmStart, PredictedTime: 90}, SubtaskNumber: 2, SubtaskText: "Write queries"},
			},
			TotalTime: 120,
			TaskCount: 2,
		},
	}}
	app := New(stub, Defaults{UserID: "u1"})
	app.form = filledForm()

	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyCtrlS})
	require.NotNil(t, cmd)
	sub, ok := cmd().(submitMsg)
	require.True(t, ok)

	_, cmd = app.Update(sub)
	assert.Equal(t, modeLoading, app.mode)
	require.NotNil(t, cmd)

	done := app.analyze(sub.input)()
	app.Update(done)
	assert.Equal(t, modeResult, app.mode)
	assert.Equal(t, "Database coursework", stub.got.TaskName)
	require.NotNil(t, app.Result())

	view := app.View()
	assert.Contains(t, view, "High")
	assert.Contains(t, view, "1 hour 30 minutes")
	assert.Contains(t, view, "Total: 2 hours across 2 subtasks")

	app.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, modeForm, app.mode)
}

func TestAppAnalyzeError(t *testing.T) {
	app := New(&stubAnalyzer{err: errors.New("daemon unreachable")}, Defaults{})
	app.Update(app.analyze(engine.AnalyzeInput{TaskName: "x"})())

	assert.Equal(t, modeForm, app.mode)
	assert.Contains(t, app.View(), "daemon unreachable")
}

func TestRenderAnalysis_WithoutEstimates(t *testing.T) {
	out := RenderAnalysis(&models.Analysis{
		TaskName:   "Essay",
		Difficulty: models.DifficultyResolution{Difficulty: 3, Method: "fallback"},
		Priority:   "Low",
	})
	assert.Contains(t, out, "Difficulty: 3/5 (fallback")
	assert.NotContains(t, out, "Total:")
}

func TestClientAnalyze(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/analyze", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var in engine.AnalyzeInput
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		if in.Credits > 4 {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "credits must be between 1 and 4"})
			return
		}
		json.NewEncoder(w).Encode(models.Analysis{TaskName: in.TaskName, Priority: "Medium"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	got, err := c.Analyze(context.Background(), engine.AnalyzeInput{TaskName: "Essay", Credits: 2})
	require.NoError(t, err)
	assert.Equal(t, "Medium", got.Priority)

	_, err = c.Analyze(context.Background(), engine.AnalyzeInput{TaskName: "Essay", Credits: 9})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "(400)"))
}
