package learner

import (
	"sort"
	"time"

	"github.com/byteos/intelligence/internal/models"
)

// Policy holds the tunables of the pure update step.
type Policy struct {
	HalfLife time.Duration
	Gaps     GapPolicy
}

// Updater computes the next profile snapshot from a batch of events. It
// performs no I/O.
type Updater struct {
	policy Policy
}

func NewUpdater(policy Policy) *Updater {
	return &Updater{policy: policy}
}

func (u *Updater) Policy() Policy { return u.policy }

// Result is a proposed snapshot. Nothing is persisted until a store
// commits it.
type Result struct {
	Profile *models.LearnerProfile
	Gaps    []models.SkillGap
	Diff    models.ProfileDiff
}

// Apply folds events into a copy of profile. With no events the copy is
// returned unchanged with an empty diff.
func (u *Updater) Apply(profile *models.LearnerProfile, gaps []models.SkillGap, events []models.LearningEvent, now time.Time) Result {
	next := profile.Clone()
	if len(events) == 0 {
		return Result{Profile: next, Gaps: append([]models.SkillGap(nil), gaps...)}
	}

	ordered := make([]models.LearningEvent, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	next.Signals = Aggregate(profile.Signals, ordered, u.policy.HalfLife)
	Derive(next, now, u.policy.HalfLife)
	UpdateStreak(next, ordered)

	var changes GapChanges
	next.SkillTallies, gaps, changes = TrackSkills(next.LearnerID, profile.SkillTallies, gaps, ordered, u.policy.Gaps)

	if next.CreatedAt.IsZero() {
		next.CreatedAt = now
	}
	next.UpdatedAt = now

	diff := models.ProfileDiff{
		EventsApplied: len(events),
		GapsOpened:    changes.Opened,
		GapsUpdated:   changes.Updated,
		GapsCleared:   changes.Cleared,
	}
	diff.ModalityScores = scoreChanges(profile.ModalityScores, next.ModalityScores)
	if profile.EngagementScore != next.EngagementScore {
		diff.Engagement = &models.ScoreChange{Before: profile.EngagementScore, After: next.EngagementScore}
	}
	if profile.StreakDays != next.StreakDays {
		diff.Streak = &models.IntChange{Before: profile.StreakDays, After: next.StreakDays}
	}

	return Result{Profile: next, Gaps: gaps, Diff: diff}
}

func scoreChanges(before, after map[string]float64) map[string]models.ScoreChange {
	out := map[string]models.ScoreChange{}
	for m, a := range after {
		if b, ok := before[m]; !ok || b != a {
			out[m] = models.ScoreChange{Before: before[m], After: a}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
