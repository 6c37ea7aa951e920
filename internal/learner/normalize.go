package learner

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/byteos/intelligence/internal/models"
)

// NormalizeReport accounts for every input record. A quiz summary with
// several wrong topics is one record but yields one event per topic.
type NormalizeReport struct {
	Received int
	Skipped  []*MalformedEventError
	Reasons  map[string]int
}

func (r NormalizeReport) Applied() int { return r.Received - len(r.Skipped) }

// Normalize validates raw session events and coerces them into
// LearningEvents. Invalid records are skipped and reported, never fatal.
// Output order matches input order.
func Normalize(raws []models.RawEvent) ([]models.LearningEvent, NormalizeReport) {
	report := NormalizeReport{Received: len(raws), Reasons: map[string]int{}}
	events := make([]models.LearningEvent, 0, len(raws))

	for i, raw := range raws {
		evs, err := normalizeOne(i, raw)
		if err != nil {
			report.Skipped = append(report.Skipped, err)
			report.Reasons[err.Reason]++
			continue
		}
		events = append(events, evs...)
	}
	return events, report
}

func normalizeOne(i int, raw models.RawEvent) ([]models.LearningEvent, *MalformedEventError) {
	typ := models.EventType(strings.ToLower(strings.TrimSpace(raw.EventType)))
	if !models.ValidEventTypes[typ] {
		return nil, &MalformedEventError{Index: i, Field: "event_type", Reason: ReasonInvalidType, Detail: raw.EventType}
	}

	moduleID := strings.TrimSpace(raw.ModuleID)
	if moduleID == "" {
		return nil, &MalformedEventError{Index: i, Field: "module_id", Reason: ReasonMissingModule}
	}

	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(raw.Timestamp))
	if err != nil {
		return nil, &MalformedEventError{Index: i, Field: "timestamp", Reason: ReasonInvalidTimestamp, Detail: raw.Timestamp}
	}

	if d := raw.DurationSecs; d != nil && (*d < 0 || math.IsNaN(*d) || math.IsInf(*d, 0)) {
		return nil, &MalformedEventError{Index: i, Field: "duration_secs", Reason: ReasonInvalidDuration}
	}

	modality := strings.ToLower(strings.TrimSpace(raw.Modality))
	if modality == "" {
		modality = models.DefaultModality
	}

	ev := models.LearningEvent{
		Type:      typ,
		ModuleID:  moduleID,
		CourseID:  strings.TrimSpace(raw.CourseID),
		Modality:  modality,
		Timestamp: ts.UTC(),
	}
	if raw.DurationSecs != nil {
		d := *raw.DurationSecs
		ev.DurationSecs = &d
	}

	if typ != models.EventQuizAttempt {
		return []models.LearningEvent{ev}, nil
	}

	results, detail := parseQuiz(raw.Payload, moduleID)
	if len(results) == 0 {
		return nil, &MalformedEventError{Index: i, Field: "payload", Reason: ReasonInvalidQuiz, Detail: detail}
	}
	out := make([]models.LearningEvent, len(results))
	for k := range results {
		out[k] = ev
		out[k].Quiz = &results[k]
	}
	return out, nil
}

func parseQuiz(payload json.RawMessage, moduleID string) ([]models.QuizResult, string) {
	if len(payload) == 0 {
		return nil, "missing"
	}
	var p models.QuizPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, "not an object"
	}
	if p.Correct == nil && p.WrongTopics != nil {
		return topicResults(p.WrongTopics, moduleID), ""
	}
	if p.Correct == nil {
		return nil, "correct or wrong_topics is required"
	}
	qid := strings.TrimSpace(p.QuestionID)
	if qid == "" {
		return nil, "question_id is required"
	}
	skill := strings.TrimSpace(p.SkillID)
	if skill == "" {
		skill = qid
	}
	return []models.QuizResult{{Correct: *p.Correct, QuestionID: qid, SkillID: skill}}, ""
}

// topicResults turns a module quiz summary into one failed attempt per
// distinct wrong topic. A summary with no wrong topics is one correct
// attempt on the module itself.
func topicResults(topics []string, moduleID string) []models.QuizResult {
	seen := make(map[string]bool, len(topics))
	var out []models.QuizResult
	for _, t := range topics {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, models.QuizResult{Correct: false, QuestionID: moduleID, SkillID: t})
	}
	if len(out) == 0 {
		out = append(out, models.QuizResult{Correct: true, QuestionID: moduleID, SkillID: moduleID})
	}
	return out
}
