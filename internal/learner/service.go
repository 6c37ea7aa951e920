package learner

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/byteos/intelligence/internal/lock"
	"github.com/byteos/intelligence/internal/logger"
	"github.com/byteos/intelligence/internal/metrics"
	"github.com/byteos/intelligence/internal/models"
)

type ServiceConfig struct {
	Policy             Policy
	MaxConflictRetries int
	StoreTimeout       time.Duration
}

// CommitHook runs after a profile snapshot is committed.
type CommitHook func(ctx context.Context, learnerID string)

type Service struct {
	store   Store
	locker  lock.Locker
	updater *Updater
	cfg     ServiceConfig
	log     *logger.Logger
	hooks   []CommitHook
	now     func() time.Time
}

func NewService(store Store, locker lock.Locker, cfg ServiceConfig, log *logger.Logger) *Service {
	if cfg.MaxConflictRetries < 1 {
		cfg.MaxConflictRetries = 1
	}
	return &Service{
		store:   store,
		locker:  locker,
		updater: NewUpdater(cfg.Policy),
		cfg:     cfg,
		log:     log.With("component", "learner"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// OnCommit registers fn to run after every committed update.
func (s *Service) OnCommit(fn CommitHook) {
	s.hooks = append(s.hooks, fn)
}

// hookTimeout bounds all commit hooks of one update.
const hookTimeout = 2 * time.Second

// runHooks detaches from the request so a client that disconnects right
// after the commit cannot skip cache invalidation.
func (s *Service) runHooks(ctx context.Context, learnerID string) {
	if len(s.hooks) == 0 {
		return
	}
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), hookTimeout)
	defer cancel()
	for _, hook := range s.hooks {
		hook(hctx, learnerID)
	}
}

func (s *Service) HalfLife() time.Duration { return s.cfg.Policy.HalfLife }

type UpdateResult struct {
	Profile  *models.LearnerProfile
	Diff     models.ProfileDiff
	Metadata models.UpdateMetadata
}

// ValidateLearnerID rejects ids that are not UUIDs.
func ValidateLearnerID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrInvalidLearnerID
	}
	return nil
}

// LoadProfile returns the learner's profile with scores derived as of now.
// A learner with no stored profile gets an empty, unsaved one.
func (s *Service) LoadProfile(ctx context.Context, learnerID string) (*models.LearnerProfile, error) {
	if err := ValidateLearnerID(learnerID); err != nil {
		return nil, err
	}
	p, err := s.getProfile(ctx, learnerID)
	if err != nil {
		return nil, &StoreError{Op: "get profile", LearnerID: learnerID, Attempts: 1, Err: err}
	}
	return p, nil
}

// Enrollments returns the learner's enrollments for ranking.
func (s *Service) Enrollments(ctx context.Context, learnerID string) ([]models.Enrollment, error) {
	sctx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	es, err := s.store.GetEnrollments(sctx, learnerID)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("get_enrollments").Inc()
		return nil, &StoreError{Op: "get enrollments", LearnerID: learnerID, Attempts: 1, Err: normalizeStoreErr(err)}
	}
	return es, nil
}

// SkillGaps returns the learner's open skill gaps.
func (s *Service) SkillGaps(ctx context.Context, learnerID string) ([]models.SkillGap, error) {
	gaps, err := s.getSkillGaps(ctx, learnerID)
	if err != nil {
		return nil, &StoreError{Op: "get skill gaps", LearnerID: learnerID, Attempts: 1, Err: err}
	}
	return gaps, nil
}

func (s *Service) getProfile(ctx context.Context, learnerID string) (*models.LearnerProfile, error) {
	sctx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	p, err := s.store.GetProfile(sctx, learnerID)
	if errors.Is(err, ErrProfileNotFound) {
		p = models.NewLearnerProfile(learnerID)
	} else if err != nil {
		metrics.StoreErrors.WithLabelValues("get_profile").Inc()
		return nil, normalizeStoreErr(err)
	}
	Derive(p, s.now(), s.cfg.Policy.HalfLife)
	return p, nil
}

func (s *Service) getSkillGaps(ctx context.Context, learnerID string) ([]models.SkillGap, error) {
	sctx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	gaps, err := s.store.GetSkillGaps(sctx, learnerID)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("get_skill_gaps").Inc()
		return nil, normalizeStoreErr(err)
	}
	return gaps, nil
}

// UpdateProfile normalizes raws and commits the resulting snapshot. Invalid
// events are skipped and reported in the metadata. A batch with nothing
// applicable performs no write. Version conflicts are retried with a fresh
// read up to MaxConflictRetries attempts.
func (s *Service) UpdateProfile(ctx context.Context, learnerID string, raws []models.RawEvent) (*UpdateResult, error) {
	if err := ValidateLearnerID(learnerID); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() { metrics.ProfileUpdateDuration.Observe(time.Since(start).Seconds()) }()

	events, report := Normalize(raws)
	meta := buildMetadata(report)
	metrics.EventsReceived.Add(float64(report.Received))
	for reason, n := range report.Reasons {
		metrics.EventsSkipped.WithLabelValues(reason).Add(float64(n))
	}
	if len(report.Skipped) > 0 {
		s.log.Warn("skipped malformed events", "learner_id", learnerID, "skipped", len(report.Skipped), "reasons", report.Reasons)
	}

	if len(events) == 0 {
		p, err := s.getProfile(ctx, learnerID)
		if err != nil {
			metrics.ProfileUpdates.WithLabelValues("error").Inc()
			return nil, &StoreError{Op: "get profile", LearnerID: learnerID, Attempts: 1, Err: err}
		}
		metrics.ProfileUpdates.WithLabelValues("noop").Inc()
		return &UpdateResult{Profile: p, Metadata: meta}, nil
	}

	unlock, err := s.locker.Lock(ctx, learnerID)
	if err != nil {
		metrics.ProfileUpdates.WithLabelValues("error").Inc()
		return nil, &StoreError{Op: "lock profile", LearnerID: learnerID, Attempts: 0, Err: errors.Join(ErrStoreUnavailable, err)}
	}
	defer unlock()

	for attempt := 1; attempt <= s.cfg.MaxConflictRetries; attempt++ {
		res, err := s.attempt(ctx, learnerID, events)
		if err == nil {
			meta.StoreRetries = attempt - 1
			meta.Written = true
			metrics.ProfileUpdates.WithLabelValues("committed").Inc()
			s.log.Debug("profile committed", "learner_id", learnerID, "version", res.Profile.Version, "events", len(events))
			s.runHooks(ctx, learnerID)
			return &UpdateResult{Profile: res.Profile, Diff: res.Diff, Metadata: meta}, nil
		}

		if !errors.Is(err, ErrStoreConflict) {
			metrics.ProfileUpdates.WithLabelValues("error").Inc()
			s.log.Error("profile update failed", "learner_id", learnerID, "attempt", attempt, "error", err)
			return nil, &StoreError{Op: "update profile", LearnerID: learnerID, Attempts: attempt, Err: err}
		}
		metrics.ProfileUpdateRetries.Inc()
		s.log.Info("profile version conflict, retrying", "learner_id", learnerID, "attempt", attempt)
	}

	metrics.ProfileUpdates.WithLabelValues("conflict_exhausted").Inc()
	return nil, &StoreError{Op: "update profile", LearnerID: learnerID, Attempts: s.cfg.MaxConflictRetries, Err: ErrStoreConflict}
}

// attempt is one read-apply-write cycle.
func (s *Service) attempt(ctx context.Context, learnerID string, events []models.LearningEvent) (Result, error) {
	profile, err := s.getProfile(ctx, learnerID)
	if err != nil {
		return Result{}, err
	}
	gaps, err := s.getSkillGaps(ctx, learnerID)
	if err != nil {
		return Result{}, err
	}

	res := s.updater.Apply(profile, gaps, events, s.now())

	sctx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	version, err := s.store.PutProfile(sctx, Snapshot{Profile: res.Profile, Diff: res.Diff, SkillGaps: res.Gaps})
	if err != nil {
		if !errors.Is(err, ErrStoreConflict) {
			metrics.StoreErrors.WithLabelValues("put_profile").Inc()
		}
		return Result{}, normalizeStoreErr(err)
	}
	res.Profile.Version = version
	return res, nil
}

// normalizeStoreErr maps context deadlines to ErrStoreUnavailable.
func normalizeStoreErr(err error) error {
	if errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrStoreConflict) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return err
}

func buildMetadata(r NormalizeReport) models.UpdateMetadata {
	meta := models.UpdateMetadata{
		EventsReceived: r.Received,
		EventsApplied:  r.Applied(),
		EventsSkipped:  len(r.Skipped),
	}
	if len(r.Reasons) > 0 {
		meta.SkipReasons = r.Reasons
	}
	for _, e := range r.Skipped {
		meta.Skipped = append(meta.Skipped, models.SkippedEventDetail{Index: e.Index, Field: e.Field, Reason: e.Reason})
	}
	return meta
}
