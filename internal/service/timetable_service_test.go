package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smartcampus/timetable-engine/internal/dto"
	"github.com/smartcampus/timetable-engine/internal/engine"
	"github.com/smartcampus/timetable-engine/internal/models"
	appErrors "github.com/smartcampus/timetable-engine/pkg/errors"
	"github.com/smartcampus/timetable-engine/pkg/metrics"
)

type fakeTimetableRepo struct {
	created    *models.Timetable
	statuses   []models.TimetableStatus
	findResult *models.Timetable
	findErr    error
	listResult []models.Timetable
	deleted    []string
}

func (f *fakeTimetableRepo) CreateVersioned(ctx context.Context, exec sqlx.ExtContext, timetable *models.Timetable) error {
	timetable.ID = "tt-1"
	timetable.Version = 1
	f.created = timetable
	return nil
}

func (f *fakeTimetableRepo) List(ctx context.Context, department string, semester int, academicYear string) ([]models.Timetable, error) {
	return f.listResult, nil
}

func (f *fakeTimetableRepo) FindByID(ctx context.Context, id string) (*models.Timetable, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.findResult, nil
}

func (f *fakeTimetableRepo) Delete(ctx context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeTimetableRepo) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.TimetableStatus, meta types.JSONText) error {
	f.statuses = append(f.statuses, status)
	return nil
}

type fakeSlotRepo struct {
	inserted   []models.TimetableSlot
	listResult []models.TimetableSlot
	listCalls  int
}

func (f *fakeSlotRepo) InsertBatch(ctx context.Context, exec sqlx.ExtContext, slots []models.TimetableSlot) error {
	f.inserted = append(f.inserted, slots...)
	return nil
}

func (f *fakeSlotRepo) ListByTimetable(ctx context.Context, timetableID string) ([]models.TimetableSlot, error) {
	f.listCalls++
	return f.listResult, nil
}

type fakeCache struct {
	values map[string][]models.TimetableSlot
	sets   int
}

func (f *fakeCache) Get(ctx context.Context, key string, dest interface{}) error {
	slots, ok := f.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	*(dest.(*[]models.TimetableSlot)) = slots
	return nil
}

func (f *fakeCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	f.sets++
	return nil
}

func (f *fakeCache) Invalidate(ctx context.Context, pattern string) error { return nil }

type fakeGenerator struct {
	result   *engine.MultiSolutionResult
	err      error
	captured engine.Request
}

func (f *fakeGenerator) Generate(req engine.Request) (*engine.MultiSolutionResult, error) {
	f.captured = req
	return f.result, f.err
}

func validGenerateRequest() dto.GenerateTimetableRequest {
	return dto.GenerateTimetableRequest{
		Department:   "CSE",
		Semester:     3,
		AcademicYear: "2026-27",
		Sections:     []string{"A"},
		Courses: []dto.CourseRequest{{
			CourseID:   "CS101",
			CourseName: "Data Structures",
			Theory:     dto.SessionSpecRequest{TeacherID: "T1", WeeklyCount: 2, Duration: 60},
		}},
		Time: dto.TimeConfigRequest{
			StartTime:     "09:00",
			EndTime:       "12:00",
			ClassDuration: 60,
			WorkingDays:   []string{"Monday", "Tuesday"},
		},
		RequestedBy: "registrar",
	}
}

func newServiceFixture(t *testing.T, generator portfolioGenerator) (*TimetableService, *fakeTimetableRepo, *fakeSlotRepo, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := &fakeTimetableRepo{}
	slots := &fakeSlotRepo{}
	svc := NewTimetableService(
		generator, repo, slots, nil, sqlx.NewDb(db, "sqlmock"),
		nil, zap.NewNop(), metrics.New(),
		TimetableServiceConfig{ProposalTTL: time.Minute},
	)
	return svc, repo, slots, mock, func() { db.Close() }
}

func realOrchestrator() *engine.Orchestrator {
	return engine.NewOrchestrator(engine.SolverOptions{
		MaxTime:       5 * time.Second,
		MaxBacktracks: 2000,
		Propagation:   true,
		Seed:          42,
	}, zap.NewNop())
}

func TestTimetableServiceGenerate(t *testing.T) {
	svc, _, _, _, cleanup := newServiceFixture(t, realOrchestrator())
	defer cleanup()

	resp, err := svc.Generate(context.Background(), validGenerateRequest())
	require.NoError(t, err)
	require.NotEmpty(t, resp.ProposalID)
	require.NotNil(t, resp.Result)
	assert.True(t, resp.Result.Success)
	assert.NotEmpty(t, resp.Result.Solutions)
}

func TestTimetableServiceGenerateValidation(t *testing.T) {
	svc, _, _, _, cleanup := newServiceFixture(t, &fakeGenerator{})
	defer cleanup()

	req := validGenerateRequest()
	req.Department = ""
	_, err := svc.Generate(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceGenerateOverconstrained(t *testing.T) {
	gen := &fakeGenerator{err: &engine.OverconstrainedError{
		RequiredPerSection: 10,
		AvailableSlots:     8,
		TotalSessions:      10,
		SectionCount:       1,
	}}
	svc, _, _, _, cleanup := newServiceFixture(t, gen)
	defer cleanup()

	_, err := svc.Generate(context.Background(), validGenerateRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrOverconstrained.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceSave(t *testing.T) {
	svc, repo, slots, mock, cleanup := newServiceFixture(t, realOrchestrator())
	defer cleanup()

	resp, err := svc.Generate(context.Background(), validGenerateRequest())
	require.NoError(t, err)
	require.NotEmpty(t, resp.Result.Solutions)
	solution := resp.Result.Solutions[0]

	mock.ExpectBegin()
	mock.ExpectCommit()

	id, err := svc.Save(context.Background(), dto.SaveTimetableRequest{
		ProposalID: resp.ProposalID,
		SolutionID: solution.ID,
		Publish:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, "tt-1", id)

	require.NotNil(t, repo.created)
	assert.Equal(t, "CSE", repo.created.Department)
	assert.Equal(t, solution.GoalKey, repo.created.GoalKey)
	assert.Equal(t, []models.TimetableStatus{models.TimetableStatusPublished}, repo.statuses)

	// Two weekly theory sessions for one section.
	require.Len(t, slots.inserted, 2)
	for _, slot := range slots.inserted {
		assert.Equal(t, "tt-1", slot.TimetableID)
		assert.Equal(t, "CS101", slot.CourseID)
		assert.Equal(t, "T1", slot.TeacherID)
		assert.NotEmpty(t, slot.Day)
		assert.Less(t, slot.StartMinute, slot.EndMinute)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableServiceSaveExpiredProposal(t *testing.T) {
	svc, _, _, _, cleanup := newServiceFixture(t, &fakeGenerator{})
	defer cleanup()

	_, err := svc.Save(context.Background(), dto.SaveTimetableRequest{
		ProposalID: "gone",
		SolutionID: "sol-1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrProposalExpired.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceSaveUnknownSolution(t *testing.T) {
	svc, _, _, _, cleanup := newServiceFixture(t, realOrchestrator())
	defer cleanup()

	resp, err := svc.Generate(context.Background(), validGenerateRequest())
	require.NoError(t, err)

	_, err = svc.Save(context.Background(), dto.SaveTimetableRequest{
		ProposalID: resp.ProposalID,
		SolutionID: "nope",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceGetSlotsCaches(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := &fakeTimetableRepo{findResult: &models.Timetable{ID: "tt-1", Status: models.TimetableStatusDraft}}
	slotRepo := &fakeSlotRepo{listResult: []models.TimetableSlot{{ID: "slot-1"}}}
	cache := &fakeCache{values: map[string][]models.TimetableSlot{}}
	svc := NewTimetableService(
		&fakeGenerator{}, repo, slotRepo, cache, sqlx.NewDb(db, "sqlmock"),
		nil, zap.NewNop(), nil,
		TimetableServiceConfig{ProposalTTL: time.Minute},
	)

	first, err := svc.GetSlots(context.Background(), "tt-1")
	require.NoError(t, err)
	assert.Len(t, first, 1)
	assert.Equal(t, 1, slotRepo.listCalls)
	assert.Equal(t, 1, cache.sets)

	cache.values["timetable:slots:tt-1"] = first
	second, err := svc.GetSlots(context.Background(), "tt-1")
	require.NoError(t, err)
	assert.Len(t, second, 1)
	assert.Equal(t, 1, slotRepo.listCalls, "cache hit must skip the repository")
}

func TestTimetableServiceGetSlotsNotFound(t *testing.T) {
	svc, repo, _, _, cleanup := newServiceFixture(t, &fakeGenerator{})
	defer cleanup()
	repo.findErr = sql.ErrNoRows

	_, err := svc.GetSlots(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceDeleteOnlyDrafts(t *testing.T) {
	svc, repo, _, _, cleanup := newServiceFixture(t, &fakeGenerator{})
	defer cleanup()

	repo.findResult = &models.Timetable{ID: "tt-1", Status: models.TimetableStatusPublished}
	err := svc.Delete(context.Background(), "tt-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.deleted)

	repo.findResult = &models.Timetable{ID: "tt-1", Status: models.TimetableStatusDraft}
	require.NoError(t, svc.Delete(context.Background(), "tt-1"))
	assert.Equal(t, []string{"tt-1"}, repo.deleted)
}

func TestTimetableServiceListValidation(t *testing.T) {
	svc, _, _, _, cleanup := newServiceFixture(t, &fakeGenerator{})
	defer cleanup()

	_, err := svc.List(context.Background(), dto.TimetableQuery{Department: "CSE"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceAsyncGenerate(t *testing.T) {
	svc, _, _, _, cleanup := newServiceFixture(t, realOrchestrator())
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.StartWorkers(ctx)
	defer svc.StopWorkers()

	resp, err := svc.GenerateAsync(ctx, validGenerateRequest())
	require.NoError(t, err)
	require.NotEmpty(t, resp.JobID)

	deadline := time.After(10 * time.Second)
	for {
		snap, err := svc.JobStatus(resp.JobID)
		require.NoError(t, err)
		if snap.Status == "DONE" {
			require.NotNil(t, snap.Result)
			break
		}
		if snap.Status == "FAILED" {
			t.Fatalf("generation job failed: %s", snap.Error)
		}
		select {
		case <-deadline:
			t.Fatal("generation job did not finish in time")
		case <-time.After(50 * time.Millisecond):
		}
	}
}
