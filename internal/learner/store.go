package learner

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/lib/pq"

	"github.com/byteos/intelligence/internal/models"
)

// Snapshot is everything one profile update commits.
type Snapshot struct {
	Profile   *models.LearnerProfile
	Diff      models.ProfileDiff
	SkillGaps []models.SkillGap
}

// Store is the persistence contract of the engine. PutProfile commits the
// profile, its diff and the replacement gap set atomically and returns the
// new version. It must return ErrStoreConflict when the stored version no
// longer matches Snapshot.Profile.Version.
type Store interface {
	GetProfile(ctx context.Context, learnerID string) (*models.LearnerProfile, error)
	PutProfile(ctx context.Context, snap Snapshot) (int64, error)
	GetEnrollments(ctx context.Context, learnerID string) ([]models.Enrollment, error)
	GetSkillGaps(ctx context.Context, learnerID string) ([]models.SkillGap, error)
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// ── Profiles ────────────────────────────────────────────

func (s *PostgresStore) GetProfile(ctx context.Context, learnerID string) (*models.LearnerProfile, error) {
	var (
		p                        models.LearnerProfile
		signals, tallies, scores []byte
		lastActive               sql.NullTime
		scoredAt                 sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT learner_id, signals, skill_tallies, modality_scores, engagement_score,
		        streak_days, longest_streak, last_active_date, scored_at,
		        version, created_at, updated_at
		 FROM learner_profiles WHERE learner_id = $1`,
		learnerID,
	).Scan(&p.LearnerID, &signals, &tallies, &scores, &p.EngagementScore,
		&p.StreakDays, &p.LongestStreak, &lastActive, &scoredAt,
		&p.Version, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, wrapStoreErr("get profile", err)
	}

	if err := json.Unmarshal(signals, &p.Signals); err != nil {
		return nil, fmt.Errorf("decode signals: %w", err)
	}
	if err := json.Unmarshal(tallies, &p.SkillTallies); err != nil {
		return nil, fmt.Errorf("decode skill tallies: %w", err)
	}
	if err := json.Unmarshal(scores, &p.ModalityScores); err != nil {
		return nil, fmt.Errorf("decode modality scores: %w", err)
	}
	if p.Signals == nil {
		p.Signals = map[string]models.ModalitySignal{}
	}
	if p.SkillTallies == nil {
		p.SkillTallies = map[string]models.SkillTally{}
	}
	if lastActive.Valid {
		d := calendarDay(lastActive.Time)
		p.LastActiveDate = &d
	}
	if scoredAt.Valid {
		p.ScoredAt = scoredAt.Time
	}
	return &p, nil
}

func (s *PostgresStore) PutProfile(ctx context.Context, snap Snapshot) (int64, error) {
	p := snap.Profile
	signals, err := json.Marshal(p.Signals)
	if err != nil {
		return 0, fmt.Errorf("encode signals: %w", err)
	}
	tallies, err := json.Marshal(p.SkillTallies)
	if err != nil {
		return 0, fmt.Errorf("encode skill tallies: %w", err)
	}
	scores, err := json.Marshal(p.ModalityScores)
	if err != nil {
		return 0, fmt.Errorf("encode modality scores: %w", err)
	}
	diff, err := json.Marshal(snap.Diff)
	if err != nil {
		return 0, fmt.Errorf("encode diff: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, wrapStoreErr("begin transaction", err)
	}
	defer tx.Rollback()

	var lastActive interface{}
	if p.LastActiveDate != nil {
		lastActive = p.LastActiveDate.Format("2006-01-02")
	}

	var res sql.Result
	newVersion := p.Version + 1
	if p.Version == 0 {
		res, err = tx.ExecContext(ctx,
			`INSERT INTO learner_profiles
			    (learner_id, signals, skill_tallies, modality_scores, engagement_score,
			     streak_days, longest_streak, last_active_date, scored_at,
			     version, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1, $10, $11)
			 ON CONFLICT (learner_id) DO NOTHING`,
			p.LearnerID, signals, tallies, scores, p.EngagementScore,
			p.StreakDays, p.LongestStreak, lastActive, p.ScoredAt,
			p.CreatedAt, p.UpdatedAt,
		)
	} else {
		res, err = tx.ExecContext(ctx,
			`UPDATE learner_profiles SET
			    signals = $2, skill_tallies = $3, modality_scores = $4,
			    engagement_score = $5, streak_days = $6, longest_streak = $7,
			    last_active_date = $8, scored_at = $9,
			    version = version + 1, updated_at = $10
			 WHERE learner_id = $1 AND version = $11`,
			p.LearnerID, signals, tallies, scores,
			p.EngagementScore, p.StreakDays, p.LongestStreak,
			lastActive, p.ScoredAt, p.UpdatedAt, p.Version,
		)
	}
	if err != nil {
		return 0, wrapStoreErr("write profile", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapStoreErr("write profile", err)
	}
	if n == 0 {
		return 0, ErrStoreConflict
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO learner_profile_diffs (learner_id, version, events_applied, diff)
		 VALUES ($1, $2, $3, $4)`,
		p.LearnerID, newVersion, snap.Diff.EventsApplied, diff,
	)
	if err != nil {
		return 0, wrapStoreErr("write diff", err)
	}

	if err := putSkillGaps(ctx, tx, p.LearnerID, snap.SkillGaps); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, wrapStoreErr("commit profile", err)
	}
	return newVersion, nil
}

// putSkillGaps replaces the learner's open gap set inside tx.
func putSkillGaps(ctx context.Context, tx *sql.Tx, learnerID string, gaps []models.SkillGap) error {
	ids := make([]string, 0, len(gaps))
	for _, g := range gaps {
		ids = append(ids, g.SkillID)
	}
	_, err := tx.ExecContext(ctx,
		`DELETE FROM skill_gaps WHERE learner_id = $1 AND NOT (skill_id = ANY($2))`,
		learnerID, pq.Array(ids),
	)
	if err != nil {
		return wrapStoreErr("clear skill gaps", err)
	}

	for _, g := range gaps {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO skill_gaps
			    (learner_id, skill_id, severity, source_question_id, failures,
			     consecutive_successes, detected_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (learner_id, skill_id) DO UPDATE SET
			    severity = EXCLUDED.severity,
			    source_question_id = EXCLUDED.source_question_id,
			    failures = EXCLUDED.failures,
			    consecutive_successes = EXCLUDED.consecutive_successes,
			    updated_at = EXCLUDED.updated_at`,
			learnerID, g.SkillID, g.Severity, g.SourceQuestionID, g.Failures,
			g.ConsecutiveSuccesses, g.DetectedAt, g.UpdatedAt,
		)
		if err != nil {
			return wrapStoreErr("upsert skill gap", err)
		}
	}
	return nil
}

// ── Read-only inputs ────────────────────────────────────

func (s *PostgresStore) GetEnrollments(ctx context.Context, learnerID string) ([]models.Enrollment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, course_id::text, progress_pct,
		        COALESCE(completed_at, started_at, created_at)
		 FROM enrollments
		 WHERE user_id = $1 AND course_id IS NOT NULL`,
		learnerID,
	)
	if err != nil {
		return nil, wrapStoreErr("get enrollments", err)
	}
	defer rows.Close()

	var out []models.Enrollment
	for rows.Next() {
		var (
			e   models.Enrollment
			pct float64
		)
		if err := rows.Scan(&e.ID, &e.LearnerID, &e.CourseID, &pct, &e.LastTouched); err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		e.Progress = clamp01(pct / 100)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreErr("get enrollments", err)
	}
	return out, nil
}

func (s *PostgresStore) GetSkillGaps(ctx context.Context, learnerID string) ([]models.SkillGap, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT learner_id, skill_id, severity, source_question_id, failures,
		        consecutive_successes, detected_at, updated_at
		 FROM skill_gaps WHERE learner_id = $1
		 ORDER BY severity DESC, skill_id`,
		learnerID,
	)
	if err != nil {
		return nil, wrapStoreErr("get skill gaps", err)
	}
	defer rows.Close()

	var out []models.SkillGap
	for rows.Next() {
		var g models.SkillGap
		if err := rows.Scan(&g.LearnerID, &g.SkillID, &g.Severity, &g.SourceQuestionID,
			&g.Failures, &g.ConsecutiveSuccesses, &g.DetectedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan skill gap: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreErr("get skill gaps", err)
	}
	return out, nil
}

// wrapStoreErr tags deadline and connection failures as ErrStoreUnavailable
// so callers can tell retryable outages from data errors.
func wrapStoreErr(op string, err error) error {
	if isUnavailable(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// Class 08: connection exception. Class 57: operator intervention.
		class := pqErr.Code.Class()
		return class == "08" || class == "57"
	}
	return false
}

var _ Store = (*PostgresStore)(nil)

// withStoreTimeout bounds a single store call.
func withStoreTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
