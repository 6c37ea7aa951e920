package learner

import (
	"testing"
	"time"

	"github.com/byteos/intelligence/internal/models"
)

func day(n int) time.Time {
	return time.Date(2026, 3, n, 0, 0, 0, 0, time.UTC)
}

func TestUpdateStreak(t *testing.T) {
	tests := []struct {
		name        string
		streak      int
		last        *time.Time
		events      []models.LearningEvent
		wantStreak  int
		wantLongest int
	}{
		{
			name:        "first activity",
			events:      []models.LearningEvent{ev(models.EventContentView, "text", day(5).Add(9*time.Hour))},
			wantStreak:  1,
			wantLongest: 1,
		},
		{
			name:        "consecutive day",
			streak:      3,
			last:        ptr(day(4)),
			events:      []models.LearningEvent{ev(models.EventContentView, "text", day(5).Add(23*time.Hour))},
			wantStreak:  4,
			wantLongest: 4,
		},
		{
			name:        "same day unchanged",
			streak:      3,
			last:        ptr(day(5)),
			events:      []models.LearningEvent{ev(models.EventReplay, "text", day(5).Add(time.Hour))},
			wantStreak:  3,
			wantLongest: 3,
		},
		{
			name:        "gap resets",
			streak:      6,
			last:        ptr(day(2)),
			events:      []models.LearningEvent{ev(models.EventModuleComplete, "text", day(5))},
			wantStreak:  1,
			wantLongest: 6,
		},
		{
			name:        "idle timeout does not qualify",
			streak:      2,
			last:        ptr(day(4)),
			events:      []models.LearningEvent{ev(models.EventIdleTimeout, "text", day(5))},
			wantStreak:  2,
			wantLongest: 2,
		},
		{
			name:   "multi-day session",
			streak: 1,
			last:   ptr(day(3)),
			events: []models.LearningEvent{
				ev(models.EventContentView, "text", day(4)),
				ev(models.EventContentView, "text", day(4).Add(time.Hour)),
				ev(models.EventContentView, "text", day(5)),
			},
			wantStreak:  3,
			wantLongest: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := models.NewLearnerProfile("l1")
			p.StreakDays = tt.streak
			p.LongestStreak = tt.streak
			p.LastActiveDate = tt.last
			UpdateStreak(p, tt.events)
			if p.StreakDays != tt.wantStreak {
				t.Errorf("StreakDays = %d, want %d", p.StreakDays, tt.wantStreak)
			}
			if p.LongestStreak != tt.wantLongest {
				t.Errorf("LongestStreak = %d, want %d", p.LongestStreak, tt.wantLongest)
			}
		})
	}
}

func ptr(t time.Time) *time.Time { return &t }
