package service

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-validator/internal/constraint"
	"github.com/noah-isme/sma-timetable-validator/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-validator/pkg/errors"
	"github.com/noah-isme/sma-timetable-validator/pkg/jobs"
)

func newEngine() *constraint.Manager {
	m := constraint.NewManager(constraint.NewMemorySettingsStore(), zap.NewNop(), constraint.ManagerConfig{})
	m.RegisterDefaults()
	return m
}

type timetableRepoStub struct {
	timetables map[string]*models.Timetable
	entries    map[string][]models.TimetableEntry
	refs       *models.TimetableReferences
	err        error
	calls      int
}

func (s *timetableRepoStub) GetByID(ctx context.Context, id string) (*models.Timetable, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	tt, ok := s.timetables[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return tt, nil
}

func (s *timetableRepoStub) ListEntries(ctx context.Context, id string) ([]models.TimetableEntry, error) {
	return s.entries[id], nil
}

func (s *timetableRepoStub) LoadReferences(ctx context.Context, id string) (*models.TimetableReferences, error) {
	if s.refs == nil {
		return &models.TimetableReferences{}, nil
	}
	return s.refs, nil
}

func (s *timetableRepoStub) DB() sqlx.QueryerContext {
	return nil
}

type stubCacheRepo struct {
	mu       sync.Mutex
	items    map[string]interface{}
	patterns []string
	setErr   error
}

func newStubCacheRepo() *stubCacheRepo {
	return &stubCacheRepo{items: map[string]interface{}{}}
}

func (s *stubCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return copyJSON(value, dest)
}

func (s *stubCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.items[key] = value
	return nil
}

func (s *stubCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns = append(s.patterns, pattern)
	s.items = map[string]interface{}{}
	return nil
}

type queueStub struct {
	jobs []jobs.Job
	err  error
}

func (q *queueStub) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func schoolTimetable() *timetableRepoStub {
	room := "r-1"
	return &timetableRepoStub{
		timetables: map[string]*models.Timetable{
			"tt-1": {ID: "tt-1", SchoolID: "school-1", SchoolType: "SMA", SaturdayHours: 0},
		},
		entries: map[string][]models.TimetableEntry{
			"tt-1": {
				{ID: "e-1", TimetableID: "tt-1", ClassID: "c-1", SubjectID: "s-1", TeacherID: "t-1", ClassroomID: &room, DayOfWeek: 1, Period: 1},
				{ID: "e-2", TimetableID: "tt-1", ClassID: "c-2", SubjectID: "s-2", TeacherID: "t-1", DayOfWeek: 1, Period: 1},
			},
		},
		refs: &models.TimetableReferences{
			Classes:  []models.Class{{ID: "c-1", Name: "X IPA 1", StudentCount: 30}, {ID: "c-2", Name: "X IPA 2"}},
			Teachers: []models.Teacher{{ID: "t-1", FullName: "Budi"}},
		},
	}
}
