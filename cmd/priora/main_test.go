package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fentz26/priora/internal/config"
	"github.com/fentz26/priora/internal/logging"
	"github.com/fentz26/priora/internal/models"
	"github.com/fentz26/priora/internal/server"
	"github.com/fentz26/priora/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withAPI points the command client at url for the duration of the test.
func withAPI(t *testing.T, url, token string) {
	t.Helper()
	oldAddr, oldToken := apiAddr, apiToken
	apiAddr, apiToken = url, token
	t.Cleanup(func() { apiAddr, apiToken = oldAddr, oldToken })
}

func memoryConfig() *config.Config {
	cfg := config.Default()
	cfg.Store.Driver = store.DriverMemory
	cfg.Store.DSN = ""
	return cfg
}

func TestBuildRuntime_ServesAPI(t *testing.T) {
	rt, err := buildRuntime(context.Background(), memoryConfig(), logging.Nop())
	require.NoError(t, err)
	defer rt.Close()

	srv := httptest.NewServer(server.NewServer(rt.service, server.Config{Version: "test"}, logging.Nop()).Handler())
	defer srv.Close()
	withAPI(t, srv.URL, "")

	health, err := CheckHealth()
	require.NoError(t, err)
	assert.True(t, health.OK)
	assert.Equal(t, "unavailable", health.Classifier)

	resp, err := apiPost("/predict-batch", map[string]interface{}{
		"user_id":   "u1",
		"main_task": models.MainTask{Name: "Essay", Difficulty: 2},
		"subtasks":  []string{"Outline", "Draft"},
	})
	require.NoError(t, err)

	var batch models.BatchPrediction
	require.NoError(t, json.Unmarshal(resp, &batch))
	assert.Equal(t, 30, batch.TotalTime)
	assert.Equal(t, 2, batch.TaskCount)

	_, err = apiGet("/accuracy/u1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No training data found for this user")
}

func TestAPIClient_SendsTokenAndReportsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret-token" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "missing bearer token"})
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	withAPI(t, srv.URL, "")
	_, err := apiGet("/tasks", nil)
	require.Error(t, err)
	assert.Equal(t, "API error (401): missing bearer token", err.Error())

	withAPI(t, srv.URL, "secret-token")
	body, err := apiGet("/tasks", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}

func TestCheckHealth_Unhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(HealthResponse{OK: false, DB: "error"})
	}))
	defer srv.Close()
	withAPI(t, srv.URL, "")

	health, err := CheckHealth()
	require.Error(t, err)
	require.NotNil(t, health)
	assert.Equal(t, "error", health.DB)
}

func TestAnalyzeInput(t *testing.T) {
	reset := analyzeFlags
	t.Cleanup(func() { analyzeFlags = reset })

	in, interactive, err := analyzeInput()
	require.NoError(t, err)
	assert.True(t, interactive)

	analyzeFlags.name = "Essay"
	analyzeFlags.deadline = "2025-12-10"
	analyzeFlags.credits = 2
	analyzeFlags.weight = 40
	analyzeFlags.subtasks = []string{"Outline"}
	analyzeFlags.userID = "u1"
	in, interactive, err = analyzeInput()
	require.NoError(t, err)
	assert.False(t, interactive)
	assert.Equal(t, "Essay", in.TaskName)
	assert.Equal(t, 40, in.Weight)
	assert.Equal(t, []string{"Outline"}, in.Subtasks)

	path := filepath.Join(t.TempDir(), "request.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"task_name":"Lab report","deadline":"2025-12-01","credits":4,"weight":25,"suggested_difficulty":2}`), 0o600))
	analyzeFlags.input = path
	in, interactive, err = analyzeInput()
	require.NoError(t, err)
	assert.False(t, interactive)
	assert.Equal(t, "Lab report", in.TaskName)
	assert.Equal(t, 2, in.SuggestedDifficulty)
	assert.Equal(t, "u1", in.UserID)
}

func TestPrintBatch(t *testing.T) {
	var buf bytes.Buffer
	printBatch(&buf, &models.BatchPrediction{
		Predictions: []models.SubtaskPrediction{
			{Prediction: models.Prediction{Method: models.MethodColdStart, PredictedTime: 45, Confidence: models.ConfidenceLow}, SubtaskNumber: 1, SubtaskText: "Outline"},
			{Prediction: models.Prediction{Method: models.MethodWarmStart, PredictedTime: 75, Confidence: models.ConfidenceHigh}, SubtaskNumber: 2, SubtaskText: "Draft"},
		},
		TotalTime:   120,
		TaskCount:   2,
		AverageTime: 60,
	})

	out := buf.String()
	assert.Contains(t, out, "45 minutes")
	assert.Contains(t, out, "1 hour 15 minutes")
	assert.True(t, strings.Contains(out, "Total: 2 hours across 2 subtasks (average 60.0 minutes)"), out)
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "abcdefgh", shortID("abcdefgh-1234"))
	assert.Equal(t, "abc", shortID("abc"))
}

func TestAnalysesCommands(t *testing.T) {
	rt, err := buildRuntime(context.Background(), memoryConfig(), logging.Nop())
	require.NoError(t, err)
	defer rt.Close()

	srv := httptest.NewServer(server.NewServer(rt.service, server.Config{Version: "test"}, logging.Nop()).Handler())
	defer srv.Close()
	withAPI(t, srv.URL, "")

	resp, err := apiPost("/analyze", map[string]interface{}{
		"task_name":            "Exam revision",
		"days_left":            1,
		"credits":              4,
		"weight":               50,
		"suggested_difficulty": 3,
		"user_id":              "u1",
	})
	require.NoError(t, err)
	var saved models.Analysis
	require.NoError(t, json.Unmarshal(resp, &saved))
	require.NotEmpty(t, saved.ID)

	reset := analysesFlags
	t.Cleanup(func() { analysesFlags = reset })
	analysesFlags.userID = "u1"
	analysesFlags.priority = "High"
	analysesFlags.days = 3
	q := analysesQuery(true)
	assert.Equal(t, "3", q.Get("days"))
	assert.Empty(t, analysesQuery(false).Get("days"))

	resp, err = apiGet("/analyses", q)
	require.NoError(t, err)
	var result struct {
		Analyses []models.Analysis `json:"analyses"`
	}
	require.NoError(t, json.Unmarshal(resp, &result))
	require.Len(t, result.Analyses, 1)

	var buf bytes.Buffer
	printAnalyses(&buf, result.Analyses)
	assert.Contains(t, buf.String(), "Exam revision")
	assert.Contains(t, buf.String(), shortID(saved.ID))

	_, err = apiDelete("/analyses/" + saved.ID)
	require.NoError(t, err)
	_, err = apiDelete("/analyses/" + saved.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "(404)")

	buf.Reset()
	printAnalyses(&buf, nil)
	assert.Equal(t, "No analyses found.\n", buf.String())
}
