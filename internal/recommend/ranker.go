package recommend

import (
	"fmt"
	"math"
	"sort"

	"github.com/byteos/intelligence/internal/learner"
	"github.com/byteos/intelligence/internal/models"
)

// Thresholds tune the ranking cascade.
type Thresholds struct {
	SeverityThreshold float64
	LowEngagement     float64
	ModalityGapMin    float64
	ConfidenceCap     float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		SeverityThreshold: 0.7,
		LowEngagement:     0.3,
		ModalityGapMin:    0.2,
		ConfidenceCap:     0.9,
	}
}

// epsilon absorbs float noise at threshold boundaries.
const epsilon = 1e-9

type Decision struct {
	Action     models.ActionCandidate
	Confidence float64
	// Facts are the plain-language grounds for the action, used to phrase it.
	Facts []string
}

// Rank picks exactly one next action by strict priority: skill review,
// then modality switch, then continuing a course, then something new.
func Rank(p *models.LearnerProfile, enrollments []models.Enrollment, gaps []models.SkillGap, th Thresholds) Decision {
	if d, ok := rankSkillGap(gaps, th); ok {
		return d
	}
	if d, ok := rankModality(p, th); ok {
		return d
	}
	if d, ok := rankEnrollment(enrollments); ok {
		return d
	}
	return Decision{
		Action: models.ActionCandidate{
			ActionType: models.ActionStartNew,
			Reason:     "You're all caught up. A new course is a great next step.",
		},
		Confidence: 0.5,
	}
}

func rankSkillGap(gaps []models.SkillGap, th Thresholds) (Decision, bool) {
	var best *models.SkillGap
	for i := range gaps {
		g := &gaps[i]
		if g.Severity+epsilon < th.SeverityThreshold {
			continue
		}
		if best == nil || moreUrgent(g, best) {
			best = g
		}
	}
	if best == nil {
		return Decision{}, false
	}
	return Decision{
		Action: models.ActionCandidate{
			ActionType: models.ActionReviewSkill,
			TargetID:   best.SkillID,
			BaseScore:  best.Severity,
			Reason:     fmt.Sprintf("Recent quiz answers show %s needs another look. A short review will lock it in.", best.SkillID),
		},
		Confidence: clamp01(best.Severity),
		Facts: []string{
			fmt.Sprintf("missed %d recent questions on %s", best.Failures, best.SkillID),
		},
	}, true
}

// moreUrgent orders gaps by severity, then most recent detection, then id.
func moreUrgent(a, b *models.SkillGap) bool {
	if a.Severity != b.Severity {
		return a.Severity > b.Severity
	}
	if !a.DetectedAt.Equal(b.DetectedAt) {
		return a.DetectedAt.After(b.DetectedAt)
	}
	return a.SkillID < b.SkillID
}

func rankModality(p *models.LearnerProfile, th Thresholds) (Decision, bool) {
	if p == nil {
		return Decision{}, false
	}
	dominant, ok := learner.DominantModality(p.Signals)
	if !ok {
		return Decision{}, false
	}
	domScore := p.ModalityScores[dominant]
	if domScore >= th.LowEngagement {
		return Decision{}, false
	}

	alt, altScore, ok := bestOther(p.ModalityScores, dominant)
	if !ok {
		return Decision{}, false
	}
	gap := altScore - domScore
	if gap+epsilon < th.ModalityGapMin {
		return Decision{}, false
	}
	return Decision{
		Action: models.ActionCandidate{
			ActionType: models.ActionTryModality,
			TargetID:   alt,
			BaseScore:  gap,
			Reason:     fmt.Sprintf("You've been finishing more in %s than in %s lately. Try your next module as %s.", alt, dominant, alt),
		},
		Confidence: math.Min(gap, th.ConfidenceCap),
		Facts: []string{
			fmt.Sprintf("engagement with %s is %.0f%% versus %.0f%% for %s", alt, altScore*100, domScore*100, dominant),
		},
	}, true
}

// bestOther returns the highest-scoring modality other than exclude.
// Ties break toward the lexicographically smaller name.
func bestOther(scores map[string]float64, exclude string) (string, float64, bool) {
	names := make([]string, 0, len(scores))
	for m := range scores {
		if m != exclude {
			names = append(names, m)
		}
	}
	if len(names) == 0 {
		return "", 0, false
	}
	sort.Strings(names)
	best := names[0]
	for _, m := range names[1:] {
		if scores[m] > scores[best] {
			best = m
		}
	}
	return best, scores[best], true
}

func rankEnrollment(enrollments []models.Enrollment) (Decision, bool) {
	var best *models.Enrollment
	for i := range enrollments {
		e := &enrollments[i]
		if !e.Active() {
			continue
		}
		if best == nil || e.LastTouched.After(best.LastTouched) ||
			(e.LastTouched.Equal(best.LastTouched) && e.CourseID < best.CourseID) {
			best = e
		}
	}
	if best == nil {
		return Decision{}, false
	}
	pct := int(math.Round(best.Progress * 100))
	return Decision{
		Action: models.ActionCandidate{
			ActionType: models.ActionContinueCourse,
			TargetID:   best.CourseID,
			BaseScore:  best.Progress,
			Reason:     fmt.Sprintf("You're %d%% through this course. Pick up where you left off.", pct),
		},
		Confidence: 0.8,
		Facts: []string{
			fmt.Sprintf("already %d%% through the course", pct),
		},
	}, true
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
