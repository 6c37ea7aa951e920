package learner

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/byteos/intelligence/internal/lock"
	"github.com/byteos/intelligence/internal/logger"
	"github.com/byteos/intelligence/internal/models"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet sql expectations: %v", err)
		}
		db.Close()
	})
	return NewPostgresStore(db), mock
}

func snapshotAt(version int64, gaps ...models.SkillGap) Snapshot {
	p := models.NewLearnerProfile(learnerA)
	p.Version = version
	p.CreatedAt, p.UpdatedAt, p.ScoredAt = t0, t0, t0
	return Snapshot{Profile: p, Diff: models.ProfileDiff{EventsApplied: 1}, SkillGaps: gaps}
}

var profileColumns = []string{
	"learner_id", "signals", "skill_tallies", "modality_scores", "engagement_score",
	"streak_days", "longest_streak", "last_active_date", "scored_at",
	"version", "created_at", "updated_at",
}

func profileRow(version int64) *sqlmock.Rows {
	return sqlmock.NewRows(profileColumns).AddRow(
		learnerA, []byte("{}"), []byte("{}"), []byte("{}"), 0.0,
		int64(0), int64(0), nil, nil,
		version, t0, t0,
	)
}

var gapColumns = []string{
	"learner_id", "skill_id", "severity", "source_question_id", "failures",
	"consecutive_successes", "detected_at", "updated_at",
}

func TestPutProfileFirstWriteCommits(t *testing.T) {
	store, mock := newMockStore(t)
	gap := models.SkillGap{LearnerID: learnerA, SkillID: "fractions", Severity: 0.75, Failures: 2, DetectedAt: t0, UpdatedAt: t0}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO learner_profiles").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO learner_profile_diffs").
		WithArgs(learnerA, int64(1), 1, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM skill_gaps").
		WithArgs(learnerA, `{"fractions"}`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO skill_gaps").
		WithArgs(learnerA, "fractions", 0.75, "", 2, 0, t0, t0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	v, err := store.PutProfile(context.Background(), snapshotAt(0, gap))
	if err != nil {
		t.Fatalf("PutProfile() error = %v", err)
	}
	if v != 1 {
		t.Errorf("version = %d, want 1", v)
	}
}

func TestPutProfileEmptyGapSetClearsAll(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE learner_profiles SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO learner_profile_diffs").
		WithArgs(learnerA, int64(5), 1, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM skill_gaps").
		WithArgs(learnerA, "{}").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	v, err := store.PutProfile(context.Background(), snapshotAt(4))
	if err != nil {
		t.Fatalf("PutProfile() error = %v", err)
	}
	if v != 5 {
		t.Errorf("version = %d, want 5", v)
	}
}

func TestPutProfileConflict(t *testing.T) {
	tests := []struct {
		name    string
		version int64
		stmt    string
	}{
		{"insert lost race", 0, "INSERT INTO learner_profiles"},
		{"stale version", 3, "UPDATE learner_profiles SET"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			mock.ExpectBegin()
			mock.ExpectExec(tt.stmt).WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectRollback()

			if _, err := store.PutProfile(context.Background(), snapshotAt(tt.version)); !errors.Is(err, ErrStoreConflict) {
				t.Errorf("PutProfile() error = %v, want ErrStoreConflict", err)
			}
		})
	}
}

func TestPutProfileRollsBackOnLaterFailure(t *testing.T) {
	gap := models.SkillGap{LearnerID: learnerA, SkillID: "fractions", Severity: 0.75, DetectedAt: t0, UpdatedAt: t0}
	tests := []struct {
		name  string
		setup func(mock sqlmock.Sqlmock)
	}{
		{"diff insert fails", func(mock sqlmock.Sqlmock) {
			mock.ExpectExec("INSERT INTO learner_profile_diffs").WillReturnError(errors.New("unique violation"))
		}},
		{"gap delete fails", func(mock sqlmock.Sqlmock) {
			mock.ExpectExec("INSERT INTO learner_profile_diffs").WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectExec("DELETE FROM skill_gaps").WillReturnError(errors.New("boom"))
		}},
		{"gap upsert fails", func(mock sqlmock.Sqlmock) {
			mock.ExpectExec("INSERT INTO learner_profile_diffs").WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectExec("DELETE FROM skill_gaps").WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectExec("INSERT INTO skill_gaps").WillReturnError(errors.New("check violation"))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			mock.ExpectBegin()
			mock.ExpectExec("UPDATE learner_profiles SET").WillReturnResult(sqlmock.NewResult(0, 1))
			tt.setup(mock)
			mock.ExpectRollback()

			_, err := store.PutProfile(context.Background(), snapshotAt(2, gap))
			if err == nil {
				t.Fatalf("PutProfile() succeeded, want error")
			}
			if errors.Is(err, ErrStoreConflict) || errors.Is(err, ErrStoreUnavailable) {
				t.Errorf("PutProfile() error = %v, want a plain write error", err)
			}
		})
	}
}

func TestGetProfileNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("(?s)SELECT (.+) FROM learner_profiles").
		WithArgs(learnerA).
		WillReturnRows(sqlmock.NewRows(profileColumns))

	if _, err := store.GetProfile(context.Background(), learnerA); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("GetProfile() error = %v, want ErrProfileNotFound", err)
	}
}

func TestGetEnrollmentsScalesProgress(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("(?s)SELECT (.+) FROM enrollments").
		WithArgs(learnerA).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "course_id", "progress_pct", "last_touched"}).
			AddRow("e1", learnerA, "algebra", 40.0, t0).
			AddRow("e2", learnerA, "geometry", 150.0, t0))

	es, err := store.GetEnrollments(context.Background(), learnerA)
	if err != nil {
		t.Fatalf("GetEnrollments() error = %v", err)
	}
	if len(es) != 2 || !approx(es[0].Progress, 0.4) || es[1].Progress != 1 {
		t.Errorf("enrollments = %+v, want progress 0.4 and 1", es)
	}
}

func TestIsUnavailable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{context.DeadlineExceeded, true},
		{fmt.Errorf("exec: %w", driver.ErrBadConn), true},
		{&pq.Error{Code: "08006"}, true},
		{&pq.Error{Code: "57P01"}, true},
		{&pq.Error{Code: "23505"}, false},
		{errors.New("syntax error"), false},
	}
	for _, tt := range tests {
		if got := isUnavailable(tt.err); got != tt.want {
			t.Errorf("isUnavailable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestPostgresStoreUnavailableOnWrite(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE learner_profiles SET").WillReturnError(&pq.Error{Code: "08006", Message: "connection failure"})
	mock.ExpectRollback()

	if _, err := store.PutProfile(context.Background(), snapshotAt(1)); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("PutProfile() error = %v, want ErrStoreUnavailable", err)
	}
}

func TestUpdateProfileRetriesPostgresConflict(t *testing.T) {
	store, mock := newMockStore(t)
	svc := NewService(store, lock.NewLocal(), ServiceConfig{
		Policy:             testPolicy(),
		MaxConflictRetries: 3,
		StoreTimeout:       time.Second,
	}, logger.Nop())
	svc.now = func() time.Time { return t0.Add(time.Hour) }

	// First attempt reads version 1 and loses to a concurrent writer.
	mock.ExpectQuery("(?s)SELECT (.+) FROM learner_profiles").WillReturnRows(profileRow(1))
	mock.ExpectQuery("(?s)SELECT (.+) FROM skill_gaps").WillReturnRows(sqlmock.NewRows(gapColumns))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE learner_profiles SET").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	// The retry rereads version 2 and commits version 3.
	mock.ExpectQuery("(?s)SELECT (.+) FROM learner_profiles").WillReturnRows(profileRow(2))
	mock.ExpectQuery("(?s)SELECT (.+) FROM skill_gaps").WillReturnRows(sqlmock.NewRows(gapColumns))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE learner_profiles SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO learner_profile_diffs").
		WithArgs(learnerA, int64(3), 1, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM skill_gaps").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	res, err := svc.UpdateProfile(context.Background(), learnerA, []models.RawEvent{rawView(t0)})
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if res.Profile.Version != 3 || res.Metadata.StoreRetries != 1 {
		t.Errorf("version %d, retries %d; want 3 and 1", res.Profile.Version, res.Metadata.StoreRetries)
	}
}
