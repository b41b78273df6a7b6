package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/fentz26/priora/internal/models"
	"github.com/fentz26/priora/internal/store"
)

type failingSink struct{}

func (failingSink) WriteDecision(ctx context.Context, rec *models.DecisionRecord) error {
	return errors.New("disk full")
}

func TestRecord(t *testing.T) {
	mem := store.NewMemory()
	w := NewWriter(mem, nil)

	inputs := map[string]interface{}{"user_id": "u1", "text": "Draft outline"}
	rec := w.Record(context.Background(), ActionComplete, inputs, OutcomeSuccess, "u1", "completed in 30m")

	if rec.ID == "" {
		t.Error("Decision ID should be assigned by the store")
	}
	if rec.InputsHash != HashInputs(inputs) {
		t.Error("Inputs hash mismatch")
	}

	got, err := mem.ListDecisions(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("ListDecisions failed: %v", err)
	}
	if len(got) != 1 || got[0].Action != ActionComplete || got[0].UserID != "u1" {
		t.Errorf("Unexpected decisions: %+v", got)
	}
}

func TestRecord_SinkFailureIsSwallowed(t *testing.T) {
	w := NewWriter(failingSink{}, nil)
	rec := w.Record(context.Background(), ActionPredict, "x", OutcomeSuccess, "", "")
	if rec == nil || rec.Action != ActionPredict {
		t.Errorf("Expected the record back, got %+v", rec)
	}

	var nilWriter *Writer
	if nilWriter.Record(context.Background(), ActionPredict, "x", OutcomeSuccess, "", "") == nil {
		t.Error("Nil writer should still return the record")
	}
}

func TestHashInputs(t *testing.T) {
	a := HashInputs(map[string]int{"a": 1, "b": 2})
	b := HashInputs(map[string]int{"b": 2, "a": 1})
	if a != b {
		t.Error("Map key order must not change the hash")
	}
	if len(a) != 64 {
		t.Errorf("Expected hex sha256, got %q", a)
	}
	if HashInputs(make(chan int)) != "hash_error" {
		t.Error("Unmarshalable inputs should hash to hash_error")
	}
}
