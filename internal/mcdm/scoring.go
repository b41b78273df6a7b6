// Package mcdm implements the multi-criteria priority scorer.
//
// Each criterion (urgency, impact, difficulty) is normalized to a 0-100 score
// and the three are combined with fixed weights into one final score that maps
// to a High/Medium/Low label. Every function here is pure and total.
package mcdm

// Priority labels.
const (
	LabelHigh   = "High"
	LabelMedium = "Medium"
	LabelLow    = "Low"
)

// Label thresholds are inclusive lower bounds.
const (
	highThreshold   = 70.0
	mediumThreshold = 40.0
)

// Weights are the MCDM criterion weights. They are expected to sum to 1.
type Weights struct {
	Urgency    float64 `mapstructure:"urgency_weight" yaml:"urgency_weight"`
	Impact     float64 `mapstructure:"impact_weight" yaml:"impact_weight"`
	Difficulty float64 `mapstructure:"difficulty_weight" yaml:"difficulty_weight"`
}

// DefaultWeights returns the standard 50/30/20 weighting.
func DefaultWeights() Weights {
	return Weights{Urgency: 0.50, Impact: 0.30, Difficulty: 0.20}
}

// Final combines normalized criterion scores into the weighted score.
func (w Weights) Final(urgency, impact, difficulty int) float64 {
	return float64(urgency)*w.Urgency + float64(impact)*w.Impact + float64(difficulty)*w.Difficulty
}

// Urgency maps days until the deadline onto a step score. Overdue tasks
// (negative days) fall into the top bucket.
func Urgency(daysLeft int) int {
	switch {
	case daysLeft <= 1:
		return 100
	case daysLeft <= 3:
		return 80
	case daysLeft <= 7:
		return 60
	case daysLeft <= 14:
		return 40
	default:
		return 20
	}
}

// RawImpact is credits scaled by the assignment weight percentage.
func RawImpact(credits, weightPct int) float64 {
	return float64(credits) * (float64(weightPct) / 100)
}

// Impact buckets the raw impact. Values in [0.2, 0.5) are interpolated as
// raw*50 and truncated.
func Impact(credits, weightPct int) int {
	raw := RawImpact(credits, weightPct)

	switch {
	case raw >= 2.0:
		return 100
	case raw >= 1.5:
		return 90
	case raw >= 1.0:
		return 75
	case raw >= 0.5:
		return 50
	case raw < 0.2:
		return 10
	default:
		return int(raw * 50)
	}
}

// DifficultyScore normalizes a 1-5 rating to 0-100. Out of range ratings are
// not clamped; callers validate.
func DifficultyScore(rating int) int {
	return rating * 20
}

// Final applies DefaultWeights.
func Final(urgency, impact, difficulty int) float64 {
	return DefaultWeights().Final(urgency, impact, difficulty)
}

// Label assigns the priority label for a final score.
func Label(finalScore float64) string {
	switch {
	case finalScore >= highThreshold:
		return LabelHigh
	case finalScore >= mediumThreshold:
		return LabelMedium
	default:
		return LabelLow
	}
}
