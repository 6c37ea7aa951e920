package learner

import (
	"time"

	"github.com/byteos/intelligence/internal/models"
)

// calendarDay truncates t to its UTC date.
func calendarDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// advanceStreak records activity on day. Activity on a day before the last
// active date is ignored.
func advanceStreak(p *models.LearnerProfile, day time.Time) {
	day = calendarDay(day)

	if p.LastActiveDate != nil {
		last := calendarDay(*p.LastActiveDate)
		if !day.After(last) {
			return
		}
		if day.Equal(last.AddDate(0, 0, 1)) {
			p.StreakDays++
		} else {
			p.StreakDays = 1
		}
	} else {
		p.StreakDays = 1
	}

	if p.StreakDays > p.LongestStreak {
		p.LongestStreak = p.StreakDays
	}
	p.LastActiveDate = &day
}

// UpdateStreak applies every qualifying event to the streak counters.
// Events must be in timestamp order.
func UpdateStreak(p *models.LearnerProfile, events []models.LearningEvent) {
	for _, ev := range events {
		if ev.Qualifying() {
			advanceStreak(p, ev.Timestamp)
		}
	}
}
