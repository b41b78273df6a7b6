package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/fentz26/priora/internal/auth"
	"github.com/fentz26/priora/internal/engine"
	"github.com/fentz26/priora/internal/errs"
	"github.com/fentz26/priora/internal/models"
	"github.com/fentz26/priora/internal/store"
	"github.com/go-chi/chi/v5"
)

// --- Info & Health ---

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	OK         bool   `json:"ok"`
	DB         string `json:"db"`
	Classifier string `json:"classifier"`
	Version    string `json:"version"`
	Time       string `json:"time"`
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":    "priora",
		"version": s.config.Version,
		"status":  "running",
		"endpoints": map[string]string{
			"POST /priority":                    "Compute MCDM priority",
			"POST /difficulty":                  "Resolve task difficulty",
			"POST /analyze":                     "Difficulty, priority and estimates for one task",
			"POST /predict":                     "Time prediction for a subtask",
			"POST /predict-batch":               "Predict multiple subtasks at once",
			"POST /save-tasks":                  "Schedule planned subtasks",
			"POST /complete":                    "Mark a subtask as complete",
			"GET /tasks":                        "List a user's task records",
			"GET /analyses":                     "List saved analyses (priority, days filters)",
			"GET /analyses/stats":               "Count saved analyses per priority",
			"DELETE /analyses/{id}":             "Delete a saved analysis",
			"GET /accuracy/{user_id}":           "Latest estimation accuracy for a user",
			"POST /accuracy/{user_id}/snapshot": "Evaluate and store accuracy",
			"GET /health":                       "Check API health",
		},
		"timestamp": timestamp(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{
		OK:         true,
		DB:         "ok",
		Classifier: "loaded",
		Version:    s.config.Version,
		Time:       time.Now().Format(time.RFC3339),
	}
	if !s.service.ClassifierAvailable() {
		resp.Classifier = "unavailable"
	}

	status := http.StatusOK
	if err := s.service.Ping(ctx); err != nil {
		s.logger.Warn("health check failed", "error", err)
		resp.OK = false
		resp.DB = "error"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// --- Priority & Difficulty ---

type priorityResponse struct {
	*models.ScoreResult
	Timestamp string `json:"timestamp"`
}

func (s *Server) handlePriority(w http.ResponseWriter, r *http.Request) {
	var req engine.PriorityInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := s.service.ComputePriority(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, priorityResponse{ScoreResult: res, Timestamp: timestamp()})
}

type difficultyRequest struct {
	Text      string `json:"text"`
	Suggested int    `json:"suggested_difficulty"`
}

type difficultyResponse struct {
	models.DifficultyResolution
	Timestamp string `json:"timestamp"`
}

func (s *Server) handleDifficulty(w http.ResponseWriter, r *http.Request) {
	var req difficultyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := s.service.ResolveDifficulty(r.Context(), req.Text, req.Suggested)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, difficultyResponse{DifficultyResolution: res, Timestamp: timestamp()})
}

type analyzeResponse struct {
	*models.Analysis
	Timestamp string `json:"timestamp"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req engine.AnalyzeInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	userID, err := bindUser(r, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	req.UserID = userID

	res, err := s.service.Analyze(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analyzeResponse{Analysis: res, Timestamp: timestamp()})
}

// --- Estimation ---

type predictRequest struct {
	Subtask    string `json:"subtask"`
	UserID     string `json:"user_id"`
	Difficulty *int   `json:"difficulty"`
}

type predictResponse struct {
	*models.Prediction
	Timestamp string `json:"timestamp"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	userID, err := bindUser(r, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	switch {
	case req.Subtask == "":
		writeError(w, errs.Validation("missing 'subtask' field"))
		return
	case userID == "":
		writeError(w, errs.Validation("missing 'user_id' field"))
		return
	case req.Difficulty == nil:
		writeError(w, errs.Validation("missing 'difficulty' field"))
		return
	}

	pred, err := s.service.PredictTime(r.Context(), req.Subtask, userID, *req.Difficulty)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, predictResponse{Prediction: pred, Timestamp: timestamp()})
}

type batchRequest struct {
	UserID   string          `json:"user_id"`
	MainTask models.MainTask `json:"main_task"`
	Subtasks []string        `json:"subtasks"`
}

type batchResponse struct {
	*models.BatchPrediction
	Timestamp string `json:"timestamp"`
}

func (s *Server) handlePredictBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	userID, err := bindUser(r, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	batch, err := s.service.PredictBatch(r.Context(), userID, req.MainTask, req.Subtasks)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batchResponse{BatchPrediction: batch, Timestamp: timestamp()})
}

type saveRequest struct {
	UserID      string                  `json:"user_id"`
	MainTask    models.MainTask         `json:"main_task"`
	Predictions []models.PlannedSubtask `json:"predictions"`
}

type saveResponse struct {
	Status    string              `json:"status"`
	TaskCount int                 `json:"task_count"`
	Records   []models.TaskRecord `json:"records"`
	Timestamp string              `json:"timestamp"`
}

func (s *Server) handleSaveTasks(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	userID, err := bindUser(r, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	records, err := s.service.SaveTasks(r.Context(), userID, req.MainTask, req.Predictions)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, saveResponse{
		Status:    "saved",
		TaskCount: len(records),
		Records:   records,
		Timestamp: timestamp(),
	})
}

type completeRequest struct {
	Subtask    string `json:"subtask"`
	UserID     string `json:"user_id"`
	ActualTime *int   `json:"actual_time"`
}

type completeResponse struct {
	Status    string `json:"status"`
	Updated   bool   `json:"updated"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	userID, err := bindUser(r, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.ActualTime == nil {
		writeError(w, errs.Validation("missing 'actual_time' field"))
		return
	}

	done, err := s.service.CompleteTask(r.Context(), req.Subtask, userID, *req.ActualTime)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := completeResponse{
		Status:    "completed",
		Updated:   true,
		Message:   "Task marked as complete",
		Timestamp: timestamp(),
	}
	if !done {
		resp.Status = "unchanged"
		resp.Updated = false
		resp.Message = "No scheduled task matched"
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Records ---

type listResponse struct {
	Tasks     []models.TaskRecord `json:"tasks"`
	Count     int                 `json:"count"`
	Timestamp string              `json:"timestamp"`
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	userID, err := bindUser(r, r.URL.Query().Get("user_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	status := models.TaskStatus(r.URL.Query().Get("status"))

	tasks, err := s.service.ListTasks(r.Context(), userID, status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Tasks: tasks, Count: len(tasks), Timestamp: timestamp()})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	rec, err := s.service.GetTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := bindUser(r, rec.UserID); err != nil {
		// Hide other users' records.
		writeError(w, errs.NotFound("task", rec.ID))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type accuracyResponse struct {
	*models.AccuracyLog
	Timestamp string `json:"timestamp"`
}

func (s *Server) handleGetAccuracy(w http.ResponseWriter, r *http.Request) {
	userID, err := bindUser(r, chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err)
		return
	}

	log, err := s.service.GetAccuracy(r.Context(), userID)
	if errs.Is(err, errs.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"message":   "No training data found for this user",
			"timestamp": timestamp(),
		})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accuracyResponse{AccuracyLog: log, Timestamp: timestamp()})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	userID, err := bindUser(r, chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err)
		return
	}

	log, err := s.service.SnapshotAccuracy(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, accuracyResponse{AccuracyLog: log, Timestamp: timestamp()})
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	userID, err := bindUser(r, r.URL.Query().Get("user_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := limitParam(r, 50)
	if err != nil {
		writeError(w, err)
		return
	}

	out, err := s.service.Decisions(r.Context(), userID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// --- Analyses ---

type analysesResponse struct {
	Analyses  []models.Analysis `json:"analyses"`
	Count     int               `json:"count"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID, err := bindUser(r, q.Get("user_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := limitParam(r, store.DefaultAnalysisLimit)
	if err != nil {
		writeError(w, err)
		return
	}

	query := engine.AnalysisQuery{UserID: userID, Priority: q.Get("priority"), Limit: limit}
	if v := q.Get("days"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, errs.Validation("days must be an integer, got %q", v))
			return
		}
		query.MaxDaysLeft = &days
	}

	out, err := s.service.ListAnalyses(r.Context(), query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analysesResponse{Analyses: out, Count: len(out), Timestamp: timestamp()})
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	a, err := s.ownAnalysis(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleDeleteAnalysis(w http.ResponseWriter, r *http.Request) {
	a, err := s.ownAnalysis(r)
	if err != nil {
		writeError(w, err)
		return
	}
	actor, _ := auth.UserID(r.Context())
	if err := s.service.DeleteAnalysis(r.Context(), a.ID, actor); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"deleted":   true,
		"id":        a.ID,
		"timestamp": timestamp(),
	})
}

// ownAnalysis loads the analysis named in the path. Other users' analyses
// are reported as not found.
func (s *Server) ownAnalysis(r *http.Request) (*models.Analysis, error) {
	id := chi.URLParam(r, "id")
	a, err := s.service.GetAnalysis(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if !ownedBy(r, a.UserID) {
		return nil, errs.NotFound("analysis", id)
	}
	return a, nil
}

type statsResponse struct {
	*models.AnalysisStats
	Timestamp string `json:"timestamp"`
}

func (s *Server) handleAnalysisStats(w http.ResponseWriter, r *http.Request) {
	userID, err := bindUser(r, r.URL.Query().Get("user_id"))
	if err != nil {
		writeError(w, err)
		return
	}

	stats, err := s.service.AnalysisStats(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{AnalysisStats: stats, Timestamp: timestamp()})
}
