package mcdm

import (
	"fmt"
	"time"

	"github.com/fentz26/priora/internal/models"
)

// DeadlineLayout is the accepted deadline format.
const DeadlineLayout = "2006-01-02"

// Pipeline composes the scoring functions with a set of weights.
type Pipeline struct {
	Weights Weights
}

// NewPipeline returns a pipeline using w.
func NewPipeline(w Weights) *Pipeline {
	return &Pipeline{Weights: w}
}

// Compute scores one task. It has no side effects.
func (p *Pipeline) Compute(daysLeft, credits, weightPct, rating int) models.ScoreResult {
	urgency := Urgency(daysLeft)
	impact := Impact(credits, weightPct)
	difficulty := DifficultyScore(rating)
	final := p.Weights.Final(urgency, impact, difficulty)

	return models.ScoreResult{
		Urgency:         urgency,
		Impact:          impact,
		DifficultyScore: difficulty,
		Final:           final,
		Label:           Label(final),
	}
}

// ComputePriority scores one task with DefaultWeights.
func ComputePriority(daysLeft, credits, weightPct, rating int) models.ScoreResult {
	return NewPipeline(DefaultWeights()).Compute(daysLeft, credits, weightPct, rating)
}

// ParseDeadline parses a YYYY-MM-DD deadline.
func ParseDeadline(s string) (time.Time, error) {
	d, err := time.Parse(DeadlineLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse deadline %q: expected YYYY-MM-DD", s)
	}
	return d, nil
}

// DaysUntil counts calendar days from today to deadline. Both are reduced to
// their dates first, so the time of day does not matter.
func DaysUntil(deadline, today time.Time) int {
	d := time.Date(deadline.Year(), deadline.Month(), deadline.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	return int(d.Sub(t).Hours() / 24)
}
