package learner

import (
	"math"
	"sort"
	"time"

	"github.com/byteos/intelligence/internal/models"
)

// GapPolicy controls skill-gap detection.
type GapPolicy struct {
	// Window is how long a failure counts toward opening a gap.
	Window time.Duration
	// OpenAt is the number of in-window failures that opens a gap.
	OpenAt int
	// ClearAfter consecutive successes close an open gap.
	ClearAfter int
	// MaxFailures bounds the per-skill history.
	MaxFailures int
}

func DefaultGapPolicy(window time.Duration) GapPolicy {
	return GapPolicy{Window: window, OpenAt: 2, ClearAfter: 2, MaxFailures: 10}
}

// Severity is 1-0.5^failures, reduced 25% per consecutive success.
func Severity(failures, consecutiveSuccesses int) float64 {
	if failures <= 0 {
		return 0
	}
	s := 1 - math.Pow(0.5, float64(failures))
	s *= 1 - 0.25*float64(consecutiveSuccesses)
	return clamp01(s)
}

// GapChanges lists skill ids by what happened to their gap.
type GapChanges struct {
	Opened  []string
	Updated []string
	Cleared []string
}

// TrackSkills folds quiz outcomes into the per-skill tallies and the open
// gap set. Neither input is modified. Events must be in timestamp order.
func TrackSkills(learnerID string, tallies map[string]models.SkillTally, gaps []models.SkillGap, events []models.LearningEvent, policy GapPolicy) (map[string]models.SkillTally, []models.SkillGap, GapChanges) {
	nextTallies := make(map[string]models.SkillTally, len(tallies))
	for k, v := range tallies {
		v.Failures = append([]time.Time(nil), v.Failures...)
		nextTallies[k] = v
	}
	before := make(map[string]models.SkillGap, len(gaps))
	open := make(map[string]models.SkillGap, len(gaps))
	for _, g := range gaps {
		before[g.SkillID] = g
		open[g.SkillID] = g
	}

	for _, ev := range events {
		if ev.Type != models.EventQuizAttempt || ev.Quiz == nil {
			continue
		}
		q := ev.Quiz
		t := nextTallies[q.SkillID]
		t.Failures = pruneFailures(t.Failures, ev.Timestamp.Add(-policy.Window))
		t.LastQuestionID = q.QuestionID

		if q.Correct {
			t.ConsecutiveSuccesses++
		} else {
			t.ConsecutiveSuccesses = 0
			t.Failures = append(t.Failures, ev.Timestamp)
			if policy.MaxFailures > 0 && len(t.Failures) > policy.MaxFailures {
				t.Failures = t.Failures[len(t.Failures)-policy.MaxFailures:]
			}
		}

		g, isOpen := open[q.SkillID]
		switch {
		case isOpen && t.ConsecutiveSuccesses >= policy.ClearAfter:
			delete(open, q.SkillID)
			t.Failures = nil
			t.ConsecutiveSuccesses = 0
		case isOpen:
			if !q.Correct {
				if policy.MaxFailures <= 0 || g.Failures < policy.MaxFailures {
					g.Failures++
				}
				g.SourceQuestionID = q.QuestionID
			}
			g.ConsecutiveSuccesses = t.ConsecutiveSuccesses
			g.Severity = Severity(g.Failures, g.ConsecutiveSuccesses)
			g.UpdatedAt = ev.Timestamp
			open[q.SkillID] = g
		case len(t.Failures) >= policy.OpenAt:
			open[q.SkillID] = models.SkillGap{
				LearnerID:        learnerID,
				SkillID:          q.SkillID,
				Severity:         Severity(len(t.Failures), 0),
				SourceQuestionID: q.QuestionID,
				Failures:         len(t.Failures),
				DetectedAt:       ev.Timestamp,
				UpdatedAt:        ev.Timestamp,
			}
		}
		nextTallies[q.SkillID] = t
	}

	var changes GapChanges
	out := make([]models.SkillGap, 0, len(open))
	for id, g := range open {
		out = append(out, g)
		prev, existed := before[id]
		switch {
		case !existed:
			changes.Opened = append(changes.Opened, id)
		case gapChanged(prev, g):
			changes.Updated = append(changes.Updated, id)
		}
	}
	for id := range before {
		if _, ok := open[id]; !ok {
			changes.Cleared = append(changes.Cleared, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SkillID < out[j].SkillID })
	sort.Strings(changes.Opened)
	sort.Strings(changes.Updated)
	sort.Strings(changes.Cleared)
	return nextTallies, out, changes
}

func pruneFailures(failures []time.Time, cutoff time.Time) []time.Time {
	kept := failures[:0]
	for _, f := range failures {
		if !f.Before(cutoff) {
			kept = append(kept, f)
		}
	}
	return kept
}

func gapChanged(a, b models.SkillGap) bool {
	return a.Severity != b.Severity ||
		a.Failures != b.Failures ||
		a.ConsecutiveSuccesses != b.ConsecutiveSuccesses ||
		a.SourceQuestionID != b.SourceQuestionID
}
