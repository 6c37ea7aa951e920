package models

import "time"

// ── Learner Profile ───────────────────────────────────────

// ModalitySignal is the decayed engagement aggregate for one modality.
type ModalitySignal struct {
	Exposures    float64   `json:"exposures"`
	DurationSecs float64   `json:"duration_secs"`
	Completions  float64   `json:"completions"`
	Replays      float64   `json:"replays"`
	IdleTimeouts float64   `json:"idle_timeouts"`
	QuizCorrect  float64   `json:"quiz_correct"`
	QuizAttempts float64   `json:"quiz_attempts"`
	LastUpdated  time.Time `json:"last_updated"`
}

// QuizAccuracy returns successes/attempts, or 0 without attempts.
func (s ModalitySignal) QuizAccuracy() float64 {
	if s.QuizAttempts <= 0 {
		return 0
	}
	return s.QuizCorrect / s.QuizAttempts
}

// SkillTally is the bounded recent quiz history for one skill. It survives
// across sessions so failures in separate sessions can open a gap.
type SkillTally struct {
	Failures             []time.Time `json:"failures,omitempty"`
	ConsecutiveSuccesses int         `json:"consecutive_successes"`
	LastQuestionID       string      `json:"last_question_id,omitempty"`
}

type LearnerProfile struct {
	LearnerID      string                    `json:"learner_id"`
	Signals        map[string]ModalitySignal `json:"signals"`
	ModalityScores map[string]float64        `json:"modality_scores"`
	// EngagementScore is derived from Signals; stores keep it only as a
	// read-side copy and recompute it on load.
	EngagementScore float64               `json:"engagement_score"`
	StreakDays      int                   `json:"streak_days"`
	LongestStreak   int                   `json:"longest_streak"`
	LastActiveDate  *time.Time            `json:"last_active_date,omitempty"`
	SkillTallies    map[string]SkillTally `json:"skill_tallies,omitempty"`
	ScoredAt        time.Time             `json:"scored_at"`
	Version         int64                 `json:"version"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// NewLearnerProfile returns an empty profile for a learner seen for the first time.
func NewLearnerProfile(learnerID string) *LearnerProfile {
	return &LearnerProfile{
		LearnerID:      learnerID,
		Signals:        map[string]ModalitySignal{},
		ModalityScores: map[string]float64{},
		SkillTallies:   map[string]SkillTally{},
	}
}

// Clone returns a deep copy so callers can build a new snapshot without
// touching the one they were given.
func (p *LearnerProfile) Clone() *LearnerProfile {
	out := *p
	out.Signals = make(map[string]ModalitySignal, len(p.Signals))
	for k, v := range p.Signals {
		out.Signals[k] = v
	}
	out.ModalityScores = make(map[string]float64, len(p.ModalityScores))
	for k, v := range p.ModalityScores {
		out.ModalityScores[k] = v
	}
	out.SkillTallies = make(map[string]SkillTally, len(p.SkillTallies))
	for k, v := range p.SkillTallies {
		v.Failures = append([]time.Time(nil), v.Failures...)
		out.SkillTallies[k] = v
	}
	if p.LastActiveDate != nil {
		d := *p.LastActiveDate
		out.LastActiveDate = &d
	}
	return &out
}

// ── Skill Gaps & Enrollments ──────────────────────────────

type SkillGap struct {
	LearnerID            string    `json:"learner_id"`
	SkillID              string    `json:"skill_id"`
	Severity             float64   `json:"severity"`
	SourceQuestionID     string    `json:"source_question_id"`
	Failures             int       `json:"failures"`
	ConsecutiveSuccesses int       `json:"consecutive_successes"`
	DetectedAt           time.Time `json:"detected_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// Enrollment is owned by the course platform; the engine only reads it.
type Enrollment struct {
	ID          string    `json:"id"`
	LearnerID   string    `json:"learner_id"`
	CourseID    string    `json:"course_id"`
	Progress    float64   `json:"progress"`
	LastTouched time.Time `json:"last_touched"`
}

// Active reports whether the course was started but not finished.
func (e Enrollment) Active() bool {
	return e.Progress > 0 && e.Progress < 1
}

// ── Diff ──────────────────────────────────────────────────

type ScoreChange struct {
	Before float64 `json:"before"`
	After  float64 `json:"after"`
}

type IntChange struct {
	Before int `json:"before"`
	After  int `json:"after"`
}

// ProfileDiff describes what one update call changed.
type ProfileDiff struct {
	EventsApplied  int                    `json:"events_applied"`
	ModalityScores map[string]ScoreChange `json:"modality_scores,omitempty"`
	Engagement     *ScoreChange           `json:"engagement,omitempty"`
	Streak         *IntChange             `json:"streak,omitempty"`
	GapsOpened     []string               `json:"gaps_opened,omitempty"`
	GapsUpdated    []string               `json:"gaps_updated,omitempty"`
	GapsCleared    []string               `json:"gaps_cleared,omitempty"`
}

func (d ProfileDiff) IsEmpty() bool {
	return d.EventsApplied == 0
}
