package models

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	EventContentView    EventType = "content_view"
	EventQuizAttempt    EventType = "quiz_attempt"
	EventReplay         EventType = "replay"
	EventModuleComplete EventType = "module_complete"
	EventIdleTimeout    EventType = "idle_timeout"
)

var ValidEventTypes = map[EventType]bool{
	EventContentView:    true,
	EventQuizAttempt:    true,
	EventReplay:         true,
	EventModuleComplete: true,
	EventIdleTimeout:    true,
}

// DefaultModality is applied to events that arrive without a modality tag.
const DefaultModality = "text"

// RawEvent is a session event exactly as the client sent it. Every field is
// loosely typed so a single bad record cannot fail decoding of the batch.
type RawEvent struct {
	EventType    string          `json:"event_type"`
	ModuleID     string          `json:"module_id"`
	CourseID     string          `json:"course_id,omitempty"`
	Modality     string          `json:"modality,omitempty"`
	Timestamp    string          `json:"timestamp"`
	DurationSecs *float64        `json:"duration_secs,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// QuizPayload is the expected shape of a quiz_attempt payload. Either a
// single graded question (correct + question_id) or a module quiz summary
// listing the topics answered wrong.
type QuizPayload struct {
	Correct     *bool    `json:"correct"`
	QuestionID  string   `json:"question_id"`
	SkillID     string   `json:"skill_id,omitempty"`
	WrongTopics []string `json:"wrong_topics,omitempty"`
}

type QuizResult struct {
	Correct    bool   `json:"correct"`
	QuestionID string `json:"question_id"`
	SkillID    string `json:"skill_id"`
}

// LearningEvent is one validated learner action.
type LearningEvent struct {
	Type         EventType   `json:"event_type"`
	ModuleID     string      `json:"module_id"`
	CourseID     string      `json:"course_id,omitempty"`
	Modality     string      `json:"modality"`
	Timestamp    time.Time   `json:"timestamp"`
	DurationSecs *float64    `json:"duration_secs,omitempty"`
	Quiz         *QuizResult `json:"quiz,omitempty"`
}

// Qualifying reports whether the event counts toward the daily streak.
func (e LearningEvent) Qualifying() bool {
	return e.Type != EventIdleTimeout
}
