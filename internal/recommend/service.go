package recommend

import (
	"context"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/byteos/intelligence/internal/learner"
	"github.com/byteos/intelligence/internal/logger"
	"github.com/byteos/intelligence/internal/metrics"
	"github.com/byteos/intelligence/internal/models"
)

// LearnerReader is the read side of the learner service.
type LearnerReader interface {
	LoadProfile(ctx context.Context, learnerID string) (*models.LearnerProfile, error)
	Enrollments(ctx context.Context, learnerID string) ([]models.Enrollment, error)
	SkillGaps(ctx context.Context, learnerID string) ([]models.SkillGap, error)
}

type Config struct {
	Thresholds     Thresholds
	ModalityMargin float64
}

// Recommendation is a decided next action plus the inputs it was ranked on.
type Recommendation struct {
	Action                models.NextBestAction `json:"action"`
	EnrollmentsConsidered int                   `json:"enrollments_considered"`
	OpenSkillGaps         int                   `json:"open_skill_gaps"`
	Cached                bool                  `json:"-"`
}

type Service struct {
	learners LearnerReader
	cache    Cache
	narrator *Narrator
	cfg      Config
	log      *logger.Logger
	now      func() time.Time
}

func NewService(learners LearnerReader, cache Cache, narrator *Narrator, cfg Config, log *logger.Logger) *Service {
	if cache == nil {
		cache = NopCache{}
	}
	return &Service{
		learners: learners,
		cache:    cache,
		narrator: narrator,
		cfg:      cfg,
		log:      log.With("component", "recommend"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// NextAction returns the single best next step for a learner. Cached
// decisions are reused unless force is set. enrollmentIDs narrows the
// enrollments considered; each id may name an enrollment or its course.
func (s *Service) NextAction(ctx context.Context, learnerID string, enrollmentIDs []string, force bool) (*Recommendation, error) {
	if err := learner.ValidateLearnerID(learnerID); err != nil {
		return nil, err
	}

	filter := FilterKey(enrollmentIDs)
	if force {
		metrics.NextActionCache.WithLabelValues("bypass").Inc()
	} else {
		rec, ok, err := s.cache.Get(ctx, learnerID, filter)
		switch {
		case err != nil:
			metrics.NextActionCache.WithLabelValues("error").Inc()
			s.log.Warn("recommendation cache read failed", "learner_id", learnerID, "error", err)
		case ok:
			metrics.NextActionCache.WithLabelValues("hit").Inc()
			rec.Cached = true
			return rec, nil
		default:
			metrics.NextActionCache.WithLabelValues("miss").Inc()
		}
	}

	// The generation is read before any input so a commit that lands
	// while ranking makes the write below a no-op.
	gen, err := s.cache.Generation(ctx, learnerID)
	cacheable := err == nil
	if err != nil {
		s.log.Warn("recommendation cache generation read failed", "learner_id", learnerID, "error", err)
	}

	var (
		profile     *models.LearnerProfile
		enrollments []models.Enrollment
		gaps        []models.SkillGap
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		profile, err = s.learners.LoadProfile(gctx, learnerID)
		return err
	})
	g.Go(func() error {
		var err error
		enrollments, err = s.learners.Enrollments(gctx, learnerID)
		return err
	})
	g.Go(func() error {
		var err error
		gaps, err = s.learners.SkillGaps(gctx, learnerID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	enrollments = filterEnrollments(enrollments, enrollmentIDs)
	d := Rank(profile, enrollments, gaps, s.cfg.Thresholds)
	reason, narrated := s.narrator.Narrate(ctx, d)

	action := d.Action
	action.Reason = reason
	rec := &Recommendation{
		Action: models.NextBestAction{
			ActionCandidate: action,
			Confidence:      d.Confidence,
			ComputedAt:      s.now(),
			Narrated:        narrated,
		},
		EnrollmentsConsidered: len(enrollments),
		OpenSkillGaps:         len(gaps),
	}
	metrics.NextActions.WithLabelValues(string(action.ActionType)).Inc()
	s.log.Debug("next action ranked", "learner_id", learnerID, "action", action.ActionType, "target", action.TargetID, "confidence", d.Confidence)

	if cacheable {
		stored, err := s.cache.Set(ctx, learnerID, filter, gen, rec)
		switch {
		case err != nil:
			s.log.Warn("recommendation cache write failed", "learner_id", learnerID, "error", err)
		case !stored:
			metrics.NextActionCache.WithLabelValues("stale").Inc()
			s.log.Debug("recommendation not cached, profile changed while ranking", "learner_id", learnerID)
		}
	}
	return rec, nil
}

// Invalidate drops cached decisions for a learner. It matches
// learner.CommitHook so it can run after every profile commit.
func (s *Service) Invalidate(ctx context.Context, learnerID string) {
	if err := s.cache.Invalidate(ctx, learnerID); err != nil {
		s.log.Warn("recommendation cache invalidation failed", "learner_id", learnerID, "error", err)
	}
}

// RecommendModality advises which format to use for the next module.
func (s *Service) RecommendModality(ctx context.Context, learnerID, moduleID, current string) (models.ModalityAdvice, error) {
	if err := learner.ValidateLearnerID(learnerID); err != nil {
		return models.ModalityAdvice{}, err
	}
	profile, err := s.learners.LoadProfile(ctx, learnerID)
	if err != nil {
		return models.ModalityAdvice{}, err
	}

	advice := Advise(profile.ModalityScores, current, s.cfg.ModalityMargin)
	metrics.ModalityAdvice.WithLabelValues(strconv.FormatBool(advice.Switch)).Inc()
	s.log.Debug("modality advised", "learner_id", learnerID, "module_id", moduleID, "current", current,
		"recommended", advice.RecommendedModality, "switch", advice.Switch)
	return advice, nil
}

// filterEnrollments keeps enrollments whose id or course id is listed.
// An empty list keeps everything.
func filterEnrollments(all []models.Enrollment, ids []string) []models.Enrollment {
	if len(ids) == 0 {
		return all
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[strings.TrimSpace(id)] = true
	}
	out := make([]models.Enrollment, 0, len(all))
	for _, e := range all {
		if want[e.ID] || want[e.CourseID] {
			out = append(out, e)
		}
	}
	return out
}
