package learner

import (
	"reflect"
	"testing"
	"time"

	"github.com/byteos/intelligence/internal/models"
)

func testPolicy() Policy {
	return Policy{HalfLife: testHalfLife, Gaps: DefaultGapPolicy(testHalfLife)}
}

func TestApplyEmptyBatchIsNoop(t *testing.T) {
	u := NewUpdater(testPolicy())
	p := models.NewLearnerProfile("l1")
	p.Signals["text"] = models.ModalitySignal{Exposures: 2, Completions: 1, LastUpdated: t0}
	p.StreakDays = 4
	p.Version = 7
	Derive(p, t0, testHalfLife)

	res := u.Apply(p, nil, nil, t0.Add(time.Hour))
	if !res.Diff.IsEmpty() {
		t.Errorf("Diff = %+v, want empty", res.Diff)
	}
	if !reflect.DeepEqual(res.Profile, p) {
		t.Errorf("profile changed on empty batch:\n got %+v\nwant %+v", res.Profile, p)
	}
	if res.Profile == p {
		t.Errorf("Apply returned the input pointer, want a copy")
	}
}

func TestApplyBuildsSnapshot(t *testing.T) {
	u := NewUpdater(testPolicy())
	p := models.NewLearnerProfile("l1")
	now := t0.Add(time.Hour)

	events := []models.LearningEvent{
		ev(models.EventContentView, "video", t0),
		ev(models.EventModuleComplete, "video", t0.Add(10*time.Minute)),
		quizEv("fractions", "q1", false, t0.Add(20*time.Minute)),
		quizEv("fractions", "q2", false, t0.Add(21*time.Minute)),
	}
	res := u.Apply(p, nil, events, now)

	if res.Diff.EventsApplied != 4 {
		t.Errorf("EventsApplied = %d, want 4", res.Diff.EventsApplied)
	}
	if res.Profile.StreakDays != 1 || res.Diff.Streak == nil || res.Diff.Streak.After != 1 {
		t.Errorf("streak = %d, diff %+v; want 1", res.Profile.StreakDays, res.Diff.Streak)
	}
	if _, ok := res.Diff.ModalityScores["video"]; !ok {
		t.Errorf("diff missing video score change: %+v", res.Diff.ModalityScores)
	}
	if len(res.Gaps) != 1 || len(res.Diff.GapsOpened) != 1 {
		t.Errorf("gaps = %+v, opened %v; want fractions opened", res.Gaps, res.Diff.GapsOpened)
	}
	if !res.Profile.ScoredAt.Equal(now) || !res.Profile.CreatedAt.Equal(now) {
		t.Errorf("ScoredAt/CreatedAt = %v/%v, want %v", res.Profile.ScoredAt, res.Profile.CreatedAt, now)
	}
	if len(p.Signals) != 0 || p.StreakDays != 0 {
		t.Errorf("input profile mutated: %+v", p)
	}
	if res.Profile.EngagementScore < 0 || res.Profile.EngagementScore > 1 {
		t.Errorf("EngagementScore = %v, want within [0,1]", res.Profile.EngagementScore)
	}
}

func TestApplyIsDeterministic(t *testing.T) {
	u := NewUpdater(testPolicy())
	p := models.NewLearnerProfile("l1")
	p.Signals["text"] = models.ModalitySignal{Exposures: 1, LastUpdated: t0.Add(-24 * time.Hour)}
	events := []models.LearningEvent{
		ev(models.EventReplay, "text", t0.Add(2*time.Minute)),
		ev(models.EventContentView, "text", t0),
	}

	a := u.Apply(p, nil, events, t0.Add(time.Hour))
	b := u.Apply(p, nil, events, t0.Add(time.Hour))
	if !reflect.DeepEqual(a, b) {
		t.Errorf("same inputs produced different results")
	}
}
