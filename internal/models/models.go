// Package models defines the core domain types for priora.
package models

import "time"

// TaskStatus represents the current state of a task record.
type TaskStatus string

const (
	TaskStatusScheduled TaskStatus = "scheduled"
	TaskStatusCompleted TaskStatus = "completed"
)

// PredictionMethod names the algorithm that produced an estimate.
type PredictionMethod string

const (
	MethodWarmStart PredictionMethod = "warm_start"
	MethodColdStart PredictionMethod = "cold_start"
)

// Confidence is the qualitative label attached to a prediction.
type Confidence string

const (
	ConfidenceHigh Confidence = "HIGH"
	ConfidenceLow  Confidence = "LOW"
)

// ConfidenceFor returns the confidence implied by a prediction method.
func ConfidenceFor(method PredictionMethod) Confidence {
	if method == MethodWarmStart {
		return ConfidenceHigh
	}
	return ConfidenceLow
}

// MainTask is the denormalized reference to a parent assignment.
type MainTask struct {
	Name       string `json:"name"`
	Difficulty int    `json:"difficulty"`
}

// Subtask holds the immutable text of a subtask and its embedding.
type Subtask struct {
	Description string    `json:"description"`
	Vector      []float64 `json:"vector,omitempty"`
	Category    string    `json:"category,omitempty"`
	Position    int       `json:"position"`
}

// Estimates records estimate provenance for one subtask.
// ActualTime stays nil until the record is completed.
type Estimates struct {
	PredictionMethod PredictionMethod `json:"prediction_method"`
	SystemEstimate   int              `json:"system_estimate"`
	UserEstimate     int              `json:"user_estimate"`
	ActualTime       *int             `json:"actual_time"`
	Confidence       Confidence       `json:"confidence"`
}

// TaskRecord is one subtask instance belonging to one user.
type TaskRecord struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"user_id"`
	MainTask           MainTask   `json:"main_task"`
	Subtask            Subtask    `json:"sub_task"`
	Estimates          Estimates  `json:"estimates"`
	Status             TaskStatus `json:"status"`
	CreatedDate        time.Time  `json:"created_date"`
	CompletedDate      *time.Time `json:"completed_date,omitempty"`
	TimeAllocationDate *time.Time `json:"time_allocation_date,omitempty"`
}

// IsDonor reports whether the record may feed a similarity search.
func (r *TaskRecord) IsDonor() bool {
	return r.Status == TaskStatusCompleted && r.Estimates.ActualTime != nil
}

// SimilarTaskMatch is a completed task close enough to a query to inform a prediction.
type SimilarTaskMatch struct {
	Description string  `json:"task_description"`
	Similarity  float64 `json:"similarity"`
	ActualTime  int     `json:"actual_time"`
	Category    string  `json:"category"`
}

// Prediction is the duration estimate for one subtask.
type Prediction struct {
	Method        PredictionMethod   `json:"method"`
	PredictedTime int                `json:"predicted_time"`
	Confidence    Confidence         `json:"confidence"`
	Explanation   string             `json:"explanation"`
	SimilarTasks  []SimilarTaskMatch `json:"similar_tasks"`
}

// SubtaskPrediction is a Prediction tagged with its subtask.
type SubtaskPrediction struct {
	Prediction
	SubtaskNumber int    `json:"subtask_number"`
	SubtaskText   string `json:"subtask_text"`
}

// BatchPrediction aggregates predictions for all subtasks of one main task.
type BatchPrediction struct {
	Predictions []SubtaskPrediction `json:"predictions"`
	TotalTime   int                 `json:"total_time"`
	TaskCount   int                 `json:"task_count"`
	AverageTime float64             `json:"average_time"`
}

// PlannedSubtask is a subtask about to be scheduled, with its accepted estimate.
type PlannedSubtask struct {
	SubtaskNumber      int              `json:"subtask_number"`
	SubtaskText        string           `json:"subtask_text"`
	Category           string           `json:"category,omitempty"`
	Method             PredictionMethod `json:"method"`
	PredictedTime      int              `json:"predicted_time"`
	UserEstimate       *int             `json:"user_estimate,omitempty"`
	Confidence         Confidence       `json:"confidence,omitempty"`
	TimeAllocationDate *time.Time       `json:"time_allocation_date,omitempty"`
}

// AccuracyLog is a per-user snapshot of estimation accuracy.
type AccuracyLog struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"user_id"`
	MAE                float64   `json:"mae"`
	AccuracyWithin5Min float64   `json:"accuracy_5min"`
	TrainingSize       int       `json:"training_size"`
	TrainingDate       time.Time `json:"training_date"`
}

// ScoreResult is the output of the MCDM priority computation.
type ScoreResult struct {
	Urgency         int     `json:"urgency_score"`
	Impact          int     `json:"impact_score"`
	DifficultyScore int     `json:"difficulty_score"`
	Final           float64 `json:"final_weighted_score"`
	Label           string  `json:"priority"`
}

// DifficultyResolution is the fused difficulty rating and how it was chosen.
type DifficultyResolution struct {
	Difficulty int     `json:"difficulty"`
	Method     string  `json:"method"`
	Confidence float64 `json:"confidence"`
	Label      string  `json:"label,omitempty"`
}

// Analysis is the full pipeline output for one extracted task. Saved
// analyses carry an ID and their creation time.
type Analysis struct {
	ID          string               `json:"id,omitempty"`
	UserID      string               `json:"user_id,omitempty"`
	TaskName    string               `json:"task_name"`
	Description string               `json:"task_description,omitempty"`
	Subtasks    []string             `json:"sub_tasks,omitempty"`
	Deadline    string               `json:"deadline,omitempty"`
	DaysLeft    int                  `json:"days_left"`
	Credits     int                  `json:"credits"`
	Weight      int                  `json:"percentage"`
	Difficulty  DifficultyResolution `json:"difficulty"`
	Score       ScoreResult          `json:"mcdm_calculation"`
	Priority    string               `json:"priority"`
	Estimates   *BatchPrediction     `json:"estimates,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
}

// AnalysisStats counts saved analyses per priority label.
type AnalysisStats struct {
	Total  int `json:"total_tasks"`
	High   int `json:"high_priority"`
	Medium int `json:"medium_priority"`
	Low    int `json:"low_priority"`
}

// Add counts n analyses carrying the priority label.
func (s *AnalysisStats) Add(priority string, n int) {
	s.Total += n
	switch priority {
	case "High":
		s.High += n
	case "Medium":
		s.Medium += n
	case "Low":
		s.Low += n
	}
}

// DecisionRecord is an audit entry for an engine decision or state change.
type DecisionRecord struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	InputsHash string    `json:"inputs_hash"`
	Outcome    string    `json:"outcome"`
	UserID     string    `json:"user_id,omitempty"`
	Details    string    `json:"details,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
