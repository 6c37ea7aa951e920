package models

import "time"

type ActionType string

const (
	ActionContinueCourse ActionType = "continue_course"
	ActionStartNew       ActionType = "start_new"
	ActionTryModality    ActionType = "try_modality"
	ActionReviewSkill    ActionType = "review_skill"
)

// ActionCandidate is a transient next-action proposal; it is never persisted.
type ActionCandidate struct {
	ActionType ActionType `json:"action_type"`
	TargetID   string     `json:"target_id"`
	BaseScore  float64    `json:"base_score"`
	Reason     string     `json:"reason"`
}

// NextBestAction is the ranked winner plus bookkeeping for callers and the cache.
type NextBestAction struct {
	ActionCandidate
	Confidence float64   `json:"confidence"`
	ComputedAt time.Time `json:"computed_at"`
	Narrated   bool      `json:"narrated"`
}

type ModalityAdvice struct {
	RecommendedModality string  `json:"recommended_modality"`
	Switch              bool    `json:"switch"`
	Confidence          float64 `json:"confidence"`
	Reason              string  `json:"reason"`
}
