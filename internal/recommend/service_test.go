package recommend

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/byteos/intelligence/internal/learner"
	"github.com/byteos/intelligence/internal/lock"
	"github.com/byteos/intelligence/internal/logger"
	"github.com/byteos/intelligence/internal/models"
)

const learnerA = "6f1c2d3e-4b5a-4c7d-8e9f-0a1b2c3d4e5f"

type fakeReader struct {
	profile     *models.LearnerProfile
	enrollments []models.Enrollment
	gaps        []models.SkillGap
	err         error

	mu    sync.Mutex
	loads int
}

func (f *fakeReader) LoadProfile(context.Context, string) (*models.LearnerProfile, error) {
	f.mu.Lock()
	f.loads++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.profile == nil {
		return models.NewLearnerProfile(learnerA), nil
	}
	return f.profile, nil
}

func (f *fakeReader) Enrollments(context.Context, string) ([]models.Enrollment, error) {
	return f.enrollments, nil
}

func (f *fakeReader) SkillGaps(context.Context, string) ([]models.SkillGap, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gaps, nil
}

// mapCache is an in-memory Cache with the same generation rules as RedisCache.
type mapCache struct {
	mu      sync.Mutex
	entries map[string]map[string]Recommendation
	gens    map[string]int64
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[string]map[string]Recommendation{}, gens: map[string]int64{}}
}

func (c *mapCache) Get(_ context.Context, learnerID, filterKey string) (*Recommendation, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.entries[learnerID][filterKey]
	if !ok {
		return nil, false, nil
	}
	return &rec, true, nil
}

func (c *mapCache) Generation(_ context.Context, learnerID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[learnerID], nil
}

func (c *mapCache) Set(_ context.Context, learnerID, filterKey string, gen int64, rec *Recommendation) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[learnerID] != gen {
		return false, nil
	}
	if c.entries[learnerID] == nil {
		c.entries[learnerID] = map[string]Recommendation{}
	}
	c.entries[learnerID][filterKey] = *rec
	return true, nil
}

func (c *mapCache) Invalidate(_ context.Context, learnerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[learnerID]++
	delete(c.entries, learnerID)
	return nil
}

func testConfig() Config {
	return Config{Thresholds: DefaultThresholds(), ModalityMargin: DefaultModalityMargin}
}

func TestNextActionCaching(t *testing.T) {
	reader := &fakeReader{enrollments: []models.Enrollment{
		{ID: "e1", CourseID: "algebra", Progress: 0.5, LastTouched: t0},
	}}
	cache := newMapCache()
	svc := NewService(reader, cache, nil, testConfig(), logger.Nop())
	ctx := context.Background()

	first, err := svc.NextAction(ctx, learnerA, nil, false)
	if err != nil {
		t.Fatalf("NextAction: %v", err)
	}
	if first.Cached || first.Action.ActionType != models.ActionContinueCourse || first.Action.TargetID != "algebra" {
		t.Fatalf("first = %+v, want uncached continue_course algebra", first)
	}

	second, err := svc.NextAction(ctx, learnerA, nil, false)
	if err != nil {
		t.Fatalf("NextAction: %v", err)
	}
	if !second.Cached || reader.loads != 1 {
		t.Errorf("second call cached=%v loads=%d, want cached with 1 load", second.Cached, reader.loads)
	}

	forced, err := svc.NextAction(ctx, learnerA, nil, true)
	if err != nil {
		t.Fatalf("NextAction: %v", err)
	}
	if forced.Cached || reader.loads != 2 {
		t.Errorf("forced call cached=%v loads=%d, want fresh with 2 loads", forced.Cached, reader.loads)
	}

	svc.Invalidate(ctx, learnerA)
	if _, err := svc.NextAction(ctx, learnerA, nil, false); err != nil {
		t.Fatalf("NextAction: %v", err)
	}
	if reader.loads != 3 {
		t.Errorf("loads after invalidate = %d, want 3", reader.loads)
	}
}

func TestNextActionEnrollmentFilter(t *testing.T) {
	reader := &fakeReader{enrollments: []models.Enrollment{
		{ID: "e1", CourseID: "algebra", Progress: 0.5, LastTouched: t0},
		{ID: "e2", CourseID: "geometry", Progress: 0.5, LastTouched: t0.Add(time.Hour)},
	}}
	svc := NewService(reader, nil, nil, testConfig(), logger.Nop())

	tests := []struct {
		ids        []string
		wantTarget string
		wantCount  int
	}{
		{nil, "geometry", 2},
		{[]string{"e1"}, "algebra", 1},
		{[]string{"algebra"}, "algebra", 1},
		{[]string{"missing"}, "", 0},
	}
	for _, tt := range tests {
		rec, err := svc.NextAction(context.Background(), learnerA, tt.ids, false)
		if err != nil {
			t.Fatalf("NextAction(%v): %v", tt.ids, err)
		}
		if rec.Action.TargetID != tt.wantTarget || rec.EnrollmentsConsidered != tt.wantCount {
			t.Errorf("NextAction(%v) = %q over %d, want %q over %d",
				tt.ids, rec.Action.TargetID, rec.EnrollmentsConsidered, tt.wantTarget, tt.wantCount)
		}
	}
}

func TestNextActionErrors(t *testing.T) {
	svc := NewService(&fakeReader{}, nil, nil, testConfig(), logger.Nop())
	if _, err := svc.NextAction(context.Background(), "not-a-uuid", nil, false); !errors.Is(err, learner.ErrInvalidLearnerID) {
		t.Errorf("err = %v, want ErrInvalidLearnerID", err)
	}

	storeErr := &learner.StoreError{Op: "get profile", LearnerID: learnerA, Attempts: 1, Err: learner.ErrStoreUnavailable}
	svc = NewService(&fakeReader{err: storeErr}, nil, nil, testConfig(), logger.Nop())
	if _, err := svc.NextAction(context.Background(), learnerA, nil, false); !errors.Is(err, learner.ErrStoreUnavailable) {
		t.Errorf("err = %v, want ErrStoreUnavailable", err)
	}
}

// gatedReader blocks SkillGaps until release is closed.
type gatedReader struct {
	fakeReader
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedReader) SkillGaps(ctx context.Context, id string) ([]models.SkillGap, error) {
	gaps, _ := g.fakeReader.SkillGaps(ctx, id)
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return gaps, nil
}

func TestNextActionDoesNotCacheAcrossInvalidation(t *testing.T) {
	reader := &gatedReader{
		fakeReader: fakeReader{gaps: []models.SkillGap{{SkillID: "fractions", Severity: 0.9, Failures: 4, DetectedAt: t0}}},
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	svc := NewService(reader, newMapCache(), nil, testConfig(), logger.Nop())
	ctx := context.Background()

	done := make(chan *Recommendation, 1)
	go func() {
		rec, err := svc.NextAction(ctx, learnerA, nil, false)
		if err != nil {
			t.Errorf("NextAction: %v", err)
		}
		done <- rec
	}()

	<-reader.entered
	reader.mu.Lock()
	reader.gaps = nil
	reader.mu.Unlock()
	svc.Invalidate(ctx, learnerA)
	close(reader.release)

	if rec := <-done; rec == nil || rec.Action.ActionType != models.ActionReviewSkill {
		t.Fatalf("in-flight decision = %+v, want review_skill from the earlier read", rec)
	}

	after, err := svc.NextAction(ctx, learnerA, nil, false)
	if err != nil {
		t.Fatalf("NextAction: %v", err)
	}
	if after.Cached {
		t.Errorf("decision ranked before invalidation was served from cache")
	}
	if after.Action.ActionType == models.ActionReviewSkill {
		t.Errorf("action = review_skill, want a decision without the cleared gap")
	}
}

func TestRecommendModality(t *testing.T) {
	p := models.NewLearnerProfile(learnerA)
	p.ModalityScores = map[string]float64{"video": 0.8, "text": 0.3}
	svc := NewService(&fakeReader{profile: p}, nil, nil, testConfig(), logger.Nop())

	advice, err := svc.RecommendModality(context.Background(), learnerA, "m1", "text")
	if err != nil {
		t.Fatalf("RecommendModality: %v", err)
	}
	if !advice.Switch || advice.RecommendedModality != "video" || !approx(advice.Confidence, 0.5) {
		t.Errorf("advice = %+v, want switch to video with confidence 0.5", advice)
	}
}

// A learner who misses two fraction questions in one session should be told
// to review fractions, and the cached decision must not survive that update.
func TestFractionsSessionLeadsToReview(t *testing.T) {
	store := learner.NewMemoryStore()
	halfLife := 14 * 24 * time.Hour
	learners := learner.NewService(store, lock.NewLocal(), learner.ServiceConfig{
		Policy:             learner.Policy{HalfLife: halfLife, Gaps: learner.DefaultGapPolicy(halfLife)},
		MaxConflictRetries: 3,
		StoreTimeout:       time.Second,
	}, logger.Nop())
	recs := NewService(learners, newMapCache(), nil, testConfig(), logger.Nop())
	learners.OnCommit(recs.Invalidate)
	ctx := context.Background()

	before, err := recs.NextAction(ctx, learnerA, nil, false)
	if err != nil {
		t.Fatalf("NextAction: %v", err)
	}
	if before.Action.ActionType != models.ActionStartNew {
		t.Fatalf("new learner action = %s, want start_new", before.Action.ActionType)
	}

	now := time.Now().UTC()
	quiz := func(q string, at time.Time) models.RawEvent {
		payload, _ := json.Marshal(map[string]any{"correct": false, "question_id": q, "skill_id": "fractions"})
		return models.RawEvent{EventType: "quiz_attempt", ModuleID: "m1", Modality: "text", Timestamp: at.Format(time.RFC3339), Payload: payload}
	}
	_, err = learners.UpdateProfile(ctx, learnerA, []models.RawEvent{
		quiz("q1", now.Add(-2*time.Minute)),
		quiz("q2", now.Add(-time.Minute)),
	})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}

	after, err := recs.NextAction(ctx, learnerA, nil, false)
	if err != nil {
		t.Fatalf("NextAction: %v", err)
	}
	if after.Cached {
		t.Errorf("decision served from cache after profile commit")
	}
	if after.Action.ActionType != models.ActionReviewSkill || after.Action.TargetID != "fractions" {
		t.Errorf("action = %s/%q, want review_skill/fractions", after.Action.ActionType, after.Action.TargetID)
	}
	if after.Action.Confidence < 0.7 {
		t.Errorf("Confidence = %v, want >= 0.7", after.Action.Confidence)
	}
}
