package learner

import (
	"errors"
	"fmt"
)

var (
	ErrProfileNotFound  = errors.New("learner profile not found")
	ErrStoreConflict    = errors.New("learner profile version conflict")
	ErrStoreUnavailable = errors.New("learner store unavailable")
	ErrInvalidLearnerID = errors.New("learner id must be a UUID")
)

// Skip reasons, used as metric labels and in response metadata.
const (
	ReasonInvalidType      = "invalid_event_type"
	ReasonMissingModule    = "missing_module_id"
	ReasonInvalidTimestamp = "invalid_timestamp"
	ReasonInvalidDuration  = "invalid_duration"
	ReasonInvalidQuiz      = "invalid_quiz_payload"
)

// MalformedEventError describes one event that failed validation. It never
// aborts a batch; the event is skipped and counted.
type MalformedEventError struct {
	Index  int
	Field  string
	Reason string
	Detail string
}

func (e *MalformedEventError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("event %d: %s: %s", e.Index, e.Field, e.Reason)
	}
	return fmt.Sprintf("event %d: %s: %s (%s)", e.Index, e.Field, e.Reason, e.Detail)
}

// StoreError is the escalated form of a store failure after retries.
type StoreError struct {
	Op        string
	LearnerID string
	Attempts  int
	Err       error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s learner %s after %d attempt(s): %v", e.Op, e.LearnerID, e.Attempts, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
