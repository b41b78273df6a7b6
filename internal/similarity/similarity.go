// Package similarity finds a user's completed tasks whose embeddings are
// close to a query vector.
package similarity

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"github.com/fentz26/priora/internal/errs"
	"github.com/fentz26/priora/internal/logging"
	"github.com/fentz26/priora/internal/models"
)

const (
	DefaultThreshold = 0.65
	DefaultTopK      = 5
)

// Cosine returns the cosine similarity of a and b. Vectors of different
// lengths, empty vectors and zero-norm vectors have similarity 0.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// DonorSource supplies a user's completed task records.
type DonorSource interface {
	FindCompleted(ctx context.Context, userID string) ([]models.TaskRecord, error)
}

// Searcher ranks donor records against a query vector.
type Searcher struct {
	source    DonorSource
	threshold float64
	topK      int
	logger    *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithDefaults sets the threshold and top-k used when a call does not override them.
func WithDefaults(threshold float64, topK int) Option {
	return func(s *Searcher) {
		s.threshold = threshold
		if topK > 0 {
			s.topK = topK
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Searcher) { s.logger = logging.WithComponent(l, "similarity") }
}

// NewSearcher creates a Searcher over source.
func NewSearcher(source DonorSource, opts ...Option) *Searcher {
	s := &Searcher{
		source:    source,
		threshold: DefaultThreshold,
		topK:      DefaultTopK,
		logger:    logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type searchParams struct {
	threshold float64
	topK      int
}

// SearchOption overrides search parameters for one call.
type SearchOption func(*searchParams)

// WithThreshold sets the minimum similarity for a match.
func WithThreshold(threshold float64) SearchOption {
	return func(p *searchParams) { p.threshold = threshold }
}

// WithTopK caps the number of matches returned.
func WithTopK(k int) SearchOption {
	return func(p *searchParams) { p.topK = k }
}

// FindSimilar returns up to top-k of the user's donor records whose similarity
// to vector is at least the threshold, most similar first. Ties keep store
// order. An empty result is not an error.
func (s *Searcher) FindSimilar(ctx context.Context, vector []float64, userID string, opts ...SearchOption) ([]models.SimilarTaskMatch, error) {
	p := searchParams{threshold: s.threshold, topK: s.topK}
	for _, opt := range opts {
		opt(&p)
	}
	if p.topK <= 0 {
		return nil, errs.Validation("top_k must be positive, got %d", p.topK)
	}

	donors, err := s.source.FindCompleted(ctx, userID)
	if err != nil {
		return nil, errs.Unavailable("task store", err)
	}

	matches := make([]models.SimilarTaskMatch, 0, len(donors))
	for i := range donors {
		d := &donors[i]
		if !d.IsDonor() {
			continue
		}
		if len(d.Subtask.Vector) != len(vector) {
			s.logger.Error("skipping donor with mismatched embedding dimension",
				"record_id", d.ID,
				"user_id", userID,
				"donor_dim", len(d.Subtask.Vector),
				"query_dim", len(vector))
			continue
		}

		sim := Cosine(vector, d.Subtask.Vector)
		if sim < p.threshold {
			continue
		}
		matches = append(matches, models.SimilarTaskMatch{
			Description: d.Subtask.Description,
			Similarity:  sim,
			ActualTime:  *d.Estimates.ActualTime,
			Category:    d.Subtask.Category,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > p.topK {
		matches = matches[:p.topK]
	}
	return matches, nil
}
