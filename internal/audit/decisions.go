// Package audit writes decision records for predictions and state changes.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"

	"github.com/fentz26/priora/internal/logging"
	"github.com/fentz26/priora/internal/models"
)

// Actions recorded by the engine.
const (
	ActionPredict  = "predict"
	ActionBatch    = "predict.batch"
	ActionSave     = "tasks.save"
	ActionComplete = "task.complete"
	ActionSnapshot = "accuracy.snapshot"
	ActionAnalyze  = "analyze"

	ActionDeleteAnalysis = "analysis.delete"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeNoop    = "noop"
	OutcomeFailure = "failure"
)

// Sink persists decision records.
type Sink interface {
	WriteDecision(ctx context.Context, rec *models.DecisionRecord) error
}

// Writer writes decision records for audit trails. Write failures are logged
// and never propagate to the caller.
type Writer struct {
	sink   Sink
	logger *slog.Logger
}

// NewWriter creates a new decision writer. A nil sink discards records.
func NewWriter(sink Sink, logger *slog.Logger) *Writer {
	return &Writer{sink: sink, logger: logging.WithComponent(logger, "audit")}
}

// Record writes a decision entry and returns it.
func (w *Writer) Record(ctx context.Context, action string, inputs interface{}, outcome, userID, details string) *models.DecisionRecord {
	rec := &models.DecisionRecord{
		Action:     action,
		InputsHash: HashInputs(inputs),
		Outcome:    outcome,
		UserID:     userID,
		Details:    details,
	}
	if w == nil || w.sink == nil {
		return rec
	}

	if err := w.sink.WriteDecision(ctx, rec); err != nil {
		w.logger.Warn("failed to write decision record", "action", action, "error", err)
	}
	return rec
}

// HashInputs creates a SHA256 hash of the inputs for reproducibility.
func HashInputs(inputs interface{}) string {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "hash_error"
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
