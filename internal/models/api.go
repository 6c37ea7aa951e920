package models

import "time"

// ── API Request Types ─────────────────────────────────────

type ProfileUpdateRequest struct {
	UserID        string     `json:"user_id" validate:"required,uuid"`
	SessionEvents []RawEvent `json:"session_events"`
}

type NextActionRequest struct {
	UserID               string   `json:"user_id" validate:"required,uuid"`
	CurrentEnrollmentIDs []string `json:"current_enrollment_ids"`
	Force                bool     `json:"force,omitempty"`
}

type ModalityRecommendRequest struct {
	UserID          string `json:"user_id" validate:"required,uuid"`
	ModuleID        string `json:"module_id" validate:"required"`
	CurrentModality string `json:"current_modality" validate:"required"`
}

// ── API Response Types ────────────────────────────────────

// UpdateMetadata reports everything the update dropped or retried so no
// data loss is silent.
type UpdateMetadata struct {
	EventsReceived int                  `json:"events_received"`
	EventsApplied  int                  `json:"events_applied"`
	EventsSkipped  int                  `json:"events_skipped"`
	SkipReasons    map[string]int       `json:"skip_reasons,omitempty"`
	Skipped        []SkippedEventDetail `json:"skipped,omitempty"`
	StoreRetries   int                  `json:"store_retries"`
	Written        bool                 `json:"written"`
}

type SkippedEventDetail struct {
	Index  int    `json:"index"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

type ProfileUpdateResponse struct {
	ModalityScoresUpdated map[string]float64 `json:"modality_scores_updated"`
	EngagementScore       float64            `json:"engagement_score"`
	StreakDays            int                `json:"streak_days"`
	Diff                  ProfileDiff        `json:"diff"`
	Metadata              UpdateMetadata     `json:"metadata"`
}

type NextActionResponse struct {
	ActionType ActionType         `json:"action_type"`
	TargetID   string             `json:"target_id"`
	Reason     string             `json:"reason"`
	Confidence float64            `json:"confidence"`
	Metadata   NextActionMetadata `json:"metadata"`
}

type NextActionMetadata struct {
	Cached                bool      `json:"cached"`
	Narrated              bool      `json:"narrated"`
	ComputedAt            time.Time `json:"computed_at"`
	EnrollmentsConsidered int       `json:"enrollments_considered"`
	OpenSkillGaps         int       `json:"open_skill_gaps"`
}

type ModalityRecommendResponse struct {
	RecommendedModality string  `json:"recommended_modality"`
	Confidence          float64 `json:"confidence"`
	Reason              string  `json:"reason"`
	Switch              bool    `json:"switch"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// ErrorResponse carries the failed store operation and attempt count on
// retryable failures so callers can back off meaningfully.
type ErrorResponse struct {
	Error     string `json:"error"`
	Operation string `json:"operation,omitempty"`
	Attempts  int    `json:"attempts,omitempty"`
}
