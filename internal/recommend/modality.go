package recommend

import (
	"fmt"
	"strings"

	"github.com/byteos/intelligence/internal/models"
)

const DefaultModalityMargin = 0.15

// Advise recommends switching away from current only when another modality
// beats it by more than margin. Otherwise it explicitly recommends staying.
// A current modality with no score counts as 0.
func Advise(scores map[string]float64, current string, margin float64) models.ModalityAdvice {
	current = strings.ToLower(strings.TrimSpace(current))
	if current == "" {
		current = models.DefaultModality
	}
	curScore := scores[current]

	alt, altScore, ok := bestOther(scores, current)
	if !ok {
		return models.ModalityAdvice{
			RecommendedModality: current,
			Confidence:          1,
			Reason:              fmt.Sprintf("Stay with %s. There is no other format to compare yet.", current),
		}
	}

	gap := altScore - curScore
	if gap > margin+epsilon {
		return models.ModalityAdvice{
			RecommendedModality: alt,
			Switch:              true,
			Confidence:          clamp01(gap),
			Reason: fmt.Sprintf("Your engagement with %s (%.2f) is %.2f higher than with %s (%.2f).",
				alt, altScore, gap, current, curScore),
		}
	}

	if gap < 0 {
		gap = 0
	}
	return models.ModalityAdvice{
		RecommendedModality: current,
		Confidence:          clamp01(1 - gap),
		Reason: fmt.Sprintf("Stay with %s (%.2f). The best alternative, %s (%.2f), is within %.2f.",
			current, curScore, alt, altScore, margin),
	}
}
