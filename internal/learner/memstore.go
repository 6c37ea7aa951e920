package learner

import (
	"context"
	"sort"
	"sync"

	"github.com/byteos/intelligence/internal/models"
)

// MemoryStore keeps everything in process. It enforces the same version
// contract as PostgresStore and backs local runs without a database.
type MemoryStore struct {
	mu          sync.Mutex
	profiles    map[string]*models.LearnerProfile
	gaps        map[string][]models.SkillGap
	enrollments map[string][]models.Enrollment
	diffs       map[string][]models.ProfileDiff
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles:    map[string]*models.LearnerProfile{},
		gaps:        map[string][]models.SkillGap{},
		enrollments: map[string][]models.Enrollment{},
		diffs:       map[string][]models.ProfileDiff{},
	}
}

func (m *MemoryStore) GetProfile(ctx context.Context, learnerID string) (*models.LearnerProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapStoreErr("get profile", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[learnerID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return p.Clone(), nil
}

func (m *MemoryStore) PutProfile(ctx context.Context, snap Snapshot) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, wrapStoreErr("write profile", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	id := snap.Profile.LearnerID
	var current int64
	if p, ok := m.profiles[id]; ok {
		current = p.Version
	}
	if current != snap.Profile.Version {
		return 0, ErrStoreConflict
	}

	next := snap.Profile.Clone()
	next.Version = current + 1
	m.profiles[id] = next
	m.gaps[id] = append([]models.SkillGap(nil), snap.SkillGaps...)
	m.diffs[id] = append(m.diffs[id], snap.Diff)
	return next.Version, nil
}

func (m *MemoryStore) GetEnrollments(ctx context.Context, learnerID string) ([]models.Enrollment, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapStoreErr("get enrollments", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Enrollment(nil), m.enrollments[learnerID]...), nil
}

func (m *MemoryStore) GetSkillGaps(ctx context.Context, learnerID string) ([]models.SkillGap, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapStoreErr("get skill gaps", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]models.SkillGap(nil), m.gaps[learnerID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Severity > out[j].Severity })
	return out, nil
}

// SetEnrollments replaces the enrollments of a learner.
func (m *MemoryStore) SetEnrollments(learnerID string, es []models.Enrollment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enrollments[learnerID] = append([]models.Enrollment(nil), es...)
}

// Diffs returns the committed diff log of a learner, oldest first.
func (m *MemoryStore) Diffs(learnerID string) []models.ProfileDiff {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ProfileDiff(nil), m.diffs[learnerID]...)
}

var _ Store = (*MemoryStore)(nil)
