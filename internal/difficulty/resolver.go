// Package difficulty fuses a trained classifier's prediction with an
// externally suggested difficulty rating.
package difficulty

import (
	"context"
	"log/slog"
	"strings"

	"github.com/fentz26/priora/internal/logging"
	"github.com/fentz26/priora/internal/models"
)

// Resolution methods.
const (
	MethodML          = "ML Prediction (high confidence)"
	MethodAISuggested = "AI Suggested (low ML confidence)"
	MethodFallback    = "fallback"
)

const (
	DefaultThreshold = 50.0
	DefaultFallback  = 3
)

// Classification is the raw output of a three-class difficulty classifier.
// Probabilities are ordered Easy, Medium, Hard.
type Classification struct {
	ClassID       int       `json:"class_id"`
	Probabilities []float64 `json:"probabilities"`
}

// Classifier predicts the difficulty class of a task description.
type Classifier interface {
	Classify(ctx context.Context, text string) (Classification, error)
}

var (
	classScores = map[int]int{0: 1, 1: 3, 2: 5}
	classLabels = map[int]string{0: "Easy", 1: "Medium", 2: "Hard"}
)

// Resolver decides a task's difficulty rating.
type Resolver struct {
	classifier Classifier
	threshold  float64
	fallback   int
	logger     *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithThreshold sets the confidence percentage below which the suggested
// difficulty wins.
func WithThreshold(threshold float64) Option {
	return func(r *Resolver) { r.threshold = threshold }
}

// WithFallback sets the rating used when the classifier cannot answer.
func WithFallback(rating int) Option {
	return func(r *Resolver) {
		if rating >= 1 && rating <= 5 {
			r.fallback = rating
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logging.WithComponent(l, "difficulty") }
}

// NewResolver creates a Resolver. A nil classifier is allowed and makes every
// resolution fall back.
func NewResolver(classifier Classifier, opts ...Option) *Resolver {
	r := &Resolver{
		classifier: classifier,
		threshold:  DefaultThreshold,
		fallback:   DefaultFallback,
		logger:     logging.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Available reports whether a classifier is configured.
func (r *Resolver) Available() bool {
	return r.classifier != nil
}

// Resolve returns the difficulty for text. It never fails: any classifier
// problem yields the fallback rating.
func (r *Resolver) Resolve(ctx context.Context, text string, suggested int) models.DifficultyResolution {
	if r.classifier == nil {
		return r.fallbackResolution("classifier not loaded", nil)
	}
	if strings.TrimSpace(text) == "" {
		return r.fallbackResolution("empty description", nil)
	}

	c, err := r.classifier.Classify(ctx, text)
	if err != nil {
		return r.fallbackResolution("classifier failed", err)
	}

	score, ok := classScores[c.ClassID]
	if !ok {
		r.logger.Warn("classifier returned unknown class", "class_id", c.ClassID)
		return r.fallbackResolution("unknown class", nil)
	}
	if len(c.Probabilities) != len(classScores) {
		r.logger.Warn("classifier returned malformed probabilities", "count", len(c.Probabilities))
		return r.fallbackResolution("malformed probabilities", nil)
	}

	confidence := maxOf(c.Probabilities) * 100

	if confidence < r.threshold {
		if suggested < 1 || suggested > 5 {
			r.logger.Warn("suggested difficulty out of range", "suggested", suggested, "confidence", confidence)
			return r.fallbackResolution("invalid suggested difficulty", nil)
		}
		res := models.DifficultyResolution{
			Difficulty: suggested,
			Method:     MethodAISuggested,
			Confidence: confidence,
			Label:      classLabels[c.ClassID],
		}
		r.logger.Debug("difficulty resolved", "method", res.Method, "difficulty", res.Difficulty, "confidence", confidence)
		return res
	}

	res := models.DifficultyResolution{
		Difficulty: score,
		Method:     MethodML,
		Confidence: confidence,
		Label:      classLabels[c.ClassID],
	}
	r.logger.Debug("difficulty resolved", "method", res.Method, "difficulty", res.Difficulty, "confidence", confidence)
	return res
}

func (r *Resolver) fallbackResolution(reason string, err error) models.DifficultyResolution {
	args := []any{"reason", reason, "difficulty", r.fallback}
	if err != nil {
		args = append(args, "error", err)
	}
	r.logger.Warn("difficulty fallback", args...)
	return models.DifficultyResolution{
		Difficulty: r.fallback,
		Method:     MethodFallback,
		Confidence: 0,
	}
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
