package learner

import (
	"math"
	"time"

	"github.com/byteos/intelligence/internal/models"
)

// DecayFactor is 0.5^(dt/halfLife). Non-positive dt means no decay.
func DecayFactor(dt, halfLife time.Duration) float64 {
	if dt <= 0 || halfLife <= 0 {
		return 1
	}
	return math.Pow(0.5, float64(dt)/float64(halfLife))
}

func decaySignal(s models.ModalitySignal, f float64) models.ModalitySignal {
	if f == 1 {
		return s
	}
	s.Exposures *= f
	s.DurationSecs *= f
	s.Completions *= f
	s.Replays *= f
	s.IdleTimeouts *= f
	s.QuizCorrect *= f
	s.QuizAttempts *= f
	return s
}

// Aggregate folds events into the prior per-modality signals and returns a
// new map. Each signal is decayed to the event's own timestamp before the
// event is added, so results never depend on wall-clock time. prior is not
// modified.
func Aggregate(prior map[string]models.ModalitySignal, events []models.LearningEvent, halfLife time.Duration) map[string]models.ModalitySignal {
	out := make(map[string]models.ModalitySignal, len(prior))
	for k, v := range prior {
		out[k] = v
	}

	for _, ev := range events {
		s, seen := out[ev.Modality]
		if seen {
			s = decaySignal(s, DecayFactor(ev.Timestamp.Sub(s.LastUpdated), halfLife))
		}

		switch ev.Type {
		case models.EventContentView:
			s.Exposures++
		case models.EventModuleComplete:
			s.Completions++
		case models.EventReplay:
			s.Replays++
		case models.EventIdleTimeout:
			s.IdleTimeouts++
		case models.EventQuizAttempt:
			s.QuizAttempts++
			if ev.Quiz != nil && ev.Quiz.Correct {
				s.QuizCorrect++
			}
		}
		if ev.DurationSecs != nil {
			s.DurationSecs += *ev.DurationSecs
		}

		if !seen || ev.Timestamp.After(s.LastUpdated) {
			s.LastUpdated = ev.Timestamp
		}
		out[ev.Modality] = s
	}
	return out
}
