package learner

import (
	"math"
	"sort"
	"time"

	"github.com/byteos/intelligence/internal/models"
)

// CompletionRate is completions over exposures plus idle timeouts, capped
// at 1. A modality with completions but no recorded exposure rates 1.
func CompletionRate(s models.ModalitySignal) float64 {
	denom := s.Exposures + s.IdleTimeouts
	if denom <= 0 {
		if s.Completions > 0 {
			return 1
		}
		return 0
	}
	return math.Min(1, s.Completions/denom)
}

// RecencyWeight is 1 at the signal's last update and halves every halfLife.
func RecencyWeight(s models.ModalitySignal, asOf time.Time, halfLife time.Duration) float64 {
	return DecayFactor(asOf.Sub(s.LastUpdated), halfLife)
}

func ModalityScore(s models.ModalitySignal, asOf time.Time, halfLife time.Duration) float64 {
	return clamp01(CompletionRate(s) * RecencyWeight(s, asOf, halfLife))
}

func ModalityScores(signals map[string]models.ModalitySignal, asOf time.Time, halfLife time.Duration) map[string]float64 {
	out := make(map[string]float64, len(signals))
	for m, s := range signals {
		out[m] = ModalityScore(s, asOf, halfLife)
	}
	return out
}

// EngagementScore weights each modality score by its share of exposures.
// With no exposures at all every modality weighs the same.
func EngagementScore(signals map[string]models.ModalitySignal, scores map[string]float64) float64 {
	if len(signals) == 0 {
		return 0
	}
	var total float64
	for _, s := range signals {
		total += s.Exposures
	}

	var sum float64
	for m, s := range signals {
		w := 1 / float64(len(signals))
		if total > 0 {
			w = s.Exposures / total
		}
		sum += w * scores[m]
	}
	return clamp01(sum)
}

// DominantModality returns the modality with the largest decayed exposure.
// Ties break toward the lexicographically smaller name.
func DominantModality(signals map[string]models.ModalitySignal) (string, bool) {
	if len(signals) == 0 {
		return "", false
	}
	names := make([]string, 0, len(signals))
	for m := range signals {
		names = append(names, m)
	}
	sort.Strings(names)

	best := names[0]
	for _, m := range names[1:] {
		if signals[m].Exposures > signals[best].Exposures {
			best = m
		}
	}
	return best, true
}

// Derive recomputes the derived scores of p as of asOf. Scores are never
// stored independently of the signals they come from.
func Derive(p *models.LearnerProfile, asOf time.Time, halfLife time.Duration) {
	p.ModalityScores = ModalityScores(p.Signals, asOf, halfLife)
	p.EngagementScore = EngagementScore(p.Signals, p.ModalityScores)
	p.ScoredAt = asOf
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
