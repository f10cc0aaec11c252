package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/smartcampus/timetable-engine/internal/dto"
	"github.com/smartcampus/timetable-engine/internal/engine"
	"github.com/smartcampus/timetable-engine/internal/models"
	appErrors "github.com/smartcampus/timetable-engine/pkg/errors"
	"github.com/smartcampus/timetable-engine/pkg/jobs"
	"github.com/smartcampus/timetable-engine/pkg/metrics"
)

type timetableRepository interface {
	CreateVersioned(ctx context.Context, exec sqlx.ExtContext, timetable *models.Timetable) error
	List(ctx context.Context, department string, semester int, academicYear string) ([]models.Timetable, error)
	FindByID(ctx context.Context, id string) (*models.Timetable, error)
	Delete(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.TimetableStatus, meta types.JSONText) error
}

type timetableSlotRepository interface {
	InsertBatch(ctx context.Context, exec sqlx.ExtContext, slots []models.TimetableSlot) error
	ListByTimetable(ctx context.Context, timetableID string) ([]models.TimetableSlot, error)
}

type portfolioGenerator interface {
	Generate(req engine.Request) (*engine.MultiSolutionResult, error)
}

type resultCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) error
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

const slotCacheTTL = 10 * time.Minute

// TimetableService validates generation requests, runs the engine, keeps
// proposals alive until one of their solutions is saved, and persists the
// chosen timetable.
type TimetableService struct {
	generator  portfolioGenerator
	timetables timetableRepository
	slots      timetableSlotRepository
	cache      resultCache
	tx         txProvider
	validator  *validator.Validate
	logger     *zap.Logger
	metrics    *metrics.Metrics
	store      *proposalStore
	queue      *jobs.Queue
}

// TimetableServiceConfig governs service behaviour.
type TimetableServiceConfig struct {
	ProposalTTL  time.Duration
	AsyncWorkers int
	AsyncBuffer  int
}

// NewTimetableService wires the generation pipeline dependencies.
func NewTimetableService(
	generator portfolioGenerator,
	timetables timetableRepository,
	slots timetableSlotRepository,
	cache resultCache,
	tx txProvider,
	validate *validator.Validate,
	logger *zap.Logger,
	m *metrics.Metrics,
	cfg TimetableServiceConfig,
) *TimetableService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ProposalTTL <= 0 {
		cfg.ProposalTTL = 30 * time.Minute
	}
	s := &TimetableService{
		generator:  generator,
		timetables: timetables,
		slots:      slots,
		cache:      cache,
		tx:         tx,
		validator:  validate,
		logger:     logger,
		metrics:    m,
		store:      newProposalStore(cfg.ProposalTTL),
	}
	s.queue = jobs.NewQueue("timetable-generation", s.handleGenerateJob, jobs.QueueConfig{
		Workers:    cfg.AsyncWorkers,
		BufferSize: cfg.AsyncBuffer,
		Logger:     logger,
	})
	return s
}

// StartWorkers begins the async generation queue.
func (s *TimetableService) StartWorkers(ctx context.Context) {
	s.queue.Start(ctx)
}

// StopWorkers drains the async generation queue.
func (s *TimetableService) StopWorkers() {
	s.queue.Stop()
}

// Generate runs the full multi-goal pipeline synchronously and stores the
// resulting portfolio under a proposal id.
func (s *TimetableService) Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable generation payload")
	}

	engineReq := buildEngineRequest(req)
	start := time.Now()
	result, err := s.generator.Generate(engineReq)
	elapsed := time.Since(start)
	if err != nil {
		s.observeGeneration("rejected", elapsed, nil)
		var oc *engine.OverconstrainedError
		if errors.As(err, &oc) {
			return nil, appErrors.Wrap(err, appErrors.ErrOverconstrained.Code, appErrors.ErrOverconstrained.Status, oc.Error())
		}
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	outcome := "success"
	if !result.Success {
		outcome = "no_solution"
	}
	s.observeGeneration(outcome, elapsed, result)

	proposal := timetableProposal{
		ProposalID:  uuid.NewString(),
		Request:     engineReq,
		Result:      result,
		RequestedAt: time.Now().UTC(),
	}
	s.store.Save(proposal)

	s.logger.Info("timetable portfolio generated",
		zap.String("proposal_id", proposal.ProposalID),
		zap.String("department", req.Department),
		zap.Bool("success", result.Success),
		zap.Int("solutions", len(result.Solutions)),
	)

	return &dto.GenerateTimetableResponse{
		ProposalID: proposal.ProposalID,
		Result:     result,
	}, nil
}

// GenerateAsync queues a generation run and returns a job id for polling.
func (s *TimetableService) GenerateAsync(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.AsyncGenerateResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable generation payload")
	}
	job := jobs.Job{
		ID:      uuid.NewString(),
		Type:    "generate",
		Payload: req,
	}
	if err := s.queue.Enqueue(job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue generation job")
	}
	return &dto.AsyncGenerateResponse{JobID: job.ID}, nil
}

// JobStatus returns the state of a queued generation run.
func (s *TimetableService) JobStatus(id string) (jobs.Snapshot, error) {
	snap, ok := s.queue.Lookup(id)
	if !ok {
		return jobs.Snapshot{}, appErrors.Clone(appErrors.ErrNotFound, "generation job not found")
	}
	return snap, nil
}

func (s *TimetableService) handleGenerateJob(ctx context.Context, job jobs.Job) (interface{}, error) {
	req, ok := job.Payload.(dto.GenerateTimetableRequest)
	if !ok {
		return nil, fmt.Errorf("unexpected payload type for job %s", job.ID)
	}
	return s.Generate(ctx, req)
}

// Save persists one solution out of a stored proposal as a new timetable
// version. The proposal stays alive so alternative solutions remain
// redeemable until the TTL expires.
func (s *TimetableService) Save(ctx context.Context, req dto.SaveTimetableRequest) (string, error) {
	if err := s.validator.Struct(req); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid save timetable payload")
	}
	proposal, ok := s.store.Get(req.ProposalID)
	if !ok {
		return "", appErrors.Clone(appErrors.ErrProposalExpired, "proposal not found or expired")
	}
	solution := findSolution(proposal.Result, req.SolutionID)
	if solution == nil {
		return "", appErrors.Clone(appErrors.ErrNotFound, "solution not found in proposal")
	}
	if len(solution.Issues.HardViolations) > 0 {
		return "", appErrors.Clone(appErrors.ErrConflict, "solution contains hard constraint violations")
	}
	if s.tx == nil {
		return "", appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}

	slotModels, err := materializeSlots(proposal.Request, solution)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to materialize timetable slots")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	metaPayload := map[string]any{
		"scores":    solution.Scores,
		"stats":     solution.Stats,
		"issues":    solution.Issues,
		"goal":      solution.GoalKey,
		"generated": proposal.RequestedAt,
		"algorithm": "csp_backtracking_v1",
	}
	metaBytes, marshalErr := json.Marshal(metaPayload)
	if marshalErr != nil {
		err = appErrors.Wrap(marshalErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode timetable metadata")
		return "", err
	}

	record := &models.Timetable{
		Department:   proposal.Request.Department,
		Semester:     proposal.Request.Semester,
		AcademicYear: proposal.Request.AcademicYear,
		Status:       models.TimetableStatusDraft,
		GoalKey:      solution.GoalKey,
		Score:        solution.Scores.Overall,
		Meta:         types.JSONText(metaBytes),
		CreatedBy:    proposal.Request.RequestedBy,
	}
	if err = s.timetables.CreateVersioned(ctx, tx, record); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create timetable")
		return "", err
	}

	for i := range slotModels {
		slotModels[i].TimetableID = record.ID
	}
	if err = s.slots.InsertBatch(ctx, tx, slotModels); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist timetable slots")
		return "", err
	}

	if req.Publish {
		if err = s.timetables.UpdateStatus(ctx, tx, record.ID, models.TimetableStatusPublished, nil); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to publish timetable")
			return "", err
		}
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit timetable transaction")
		return "", err
	}

	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, "timetable:*")
	}
	return record.ID, nil
}

// List returns stored timetable versions for the query tuple.
func (s *TimetableService) List(ctx context.Context, query dto.TimetableQuery) ([]models.Timetable, error) {
	if query.Department == "" || query.Semester == 0 || query.AcademicYear == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "department, semester and academicYear are required")
	}
	list, err := s.timetables.List(ctx, query.Department, query.Semester, query.AcademicYear)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetables")
	}
	return list, nil
}

// GetSlots returns slot detail for a stored timetable, served from cache
// when possible.
func (s *TimetableService) GetSlots(ctx context.Context, timetableID string) ([]models.TimetableSlot, error) {
	if timetableID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "timetable id is required")
	}

	cacheKey := "timetable:slots:" + timetableID
	if s.cache != nil {
		var cached []models.TimetableSlot
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return cached, nil
		}
	}

	if _, err := s.timetables.FindByID(ctx, timetableID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	slots, err := s.slots.ListByTimetable(ctx, timetableID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetable slots")
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, cacheKey, slots, slotCacheTTL)
	}
	return slots, nil
}

// Delete removes a draft timetable version.
func (s *TimetableService) Delete(ctx context.Context, timetableID string) error {
	record, err := s.timetables.FindByID(ctx, timetableID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	if record.Status != models.TimetableStatusDraft {
		return appErrors.Clone(appErrors.ErrConflict, "only draft timetables can be deleted")
	}
	if err := s.timetables.Delete(ctx, timetableID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete timetable")
	}
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, "timetable:slots:"+timetableID)
	}
	return nil
}

func (s *TimetableService) observeGeneration(outcome string, elapsed time.Duration, result *engine.MultiSolutionResult) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveGeneration(outcome, elapsed)
	if result == nil {
		return
	}
	for _, attempt := range result.Summary.Attempts {
		attemptOutcome := "success"
		if !attempt.Success {
			attemptOutcome = "failure"
			if attempt.TimedOut {
				attemptOutcome = "timeout"
			}
		}
		s.metrics.ObserveAttempt(attempt.Goal, attemptOutcome, attempt.Backtracks, attempt.Assignments)
	}
}

// buildEngineRequest maps the transport payload onto the engine input,
// applying defaults for omitted durations and constraint preferences.
func buildEngineRequest(req dto.GenerateTimetableRequest) engine.Request {
	courses := make([]engine.CourseAssignment, 0, len(req.Courses))
	for _, course := range req.Courses {
		courses = append(courses, engine.CourseAssignment{
			CourseID:   course.CourseID,
			CourseName: course.CourseName,
			Department: req.Department,
			Semester:   req.Semester,
			Theory:     buildSessionSpec(course.Theory, req.Time.ClassDuration),
			Lab:        buildSessionSpec(course.Lab, req.Time.ClassDuration),
			Tutorial:   buildSessionSpec(course.Tutorial, req.Time.ClassDuration),
		})
	}

	timeCfg := engine.TimeConfig{
		StartTime:     req.Time.StartTime,
		EndTime:       req.Time.EndTime,
		ClassDuration: req.Time.ClassDuration,
		WorkingDays:   req.Time.WorkingDays,
		MorningEnd:    req.Time.MorningEnd,
	}
	if req.Time.LunchBreak != nil {
		timeCfg.LunchBreak = &engine.TimeRange{
			Start: req.Time.LunchBreak.Start,
			End:   req.Time.LunchBreak.End,
		}
	}

	hard := engine.DefaultHardPreferences()
	soft := engine.DefaultSoftPreferences()
	if req.Constraints != nil {
		if req.Constraints.Hard != nil {
			hard = *req.Constraints.Hard
		}
		if req.Constraints.Soft != nil {
			soft = *req.Constraints.Soft
		}
	}

	return engine.Request{
		Courses:      courses,
		Sections:     req.Sections,
		Time:         timeCfg,
		Hard:         hard,
		Soft:         soft,
		Department:   req.Department,
		Semester:     req.Semester,
		AcademicYear: req.AcademicYear,
		RequestedBy:  req.RequestedBy,
	}
}

func buildSessionSpec(spec dto.SessionSpecRequest, fallbackDuration int) engine.SessionSpec {
	duration := spec.Duration
	if duration == 0 {
		duration = fallbackDuration
	}
	return engine.SessionSpec{
		TeacherID:   spec.TeacherID,
		WeeklyCount: spec.WeeklyCount,
		Duration:    duration,
	}
}

func findSolution(result *engine.MultiSolutionResult, solutionID string) *engine.TimetableSolution {
	if result == nil {
		return nil
	}
	for i := range result.Solutions {
		if result.Solutions[i].ID == solutionID {
			return &result.Solutions[i]
		}
	}
	return nil
}

// materializeSlots rebuilds the slot and session lookup tables from the
// stored request (both expansions are deterministic) and flattens the chosen
// solution's schedule into persistence models.
func materializeSlots(req engine.Request, solution *engine.TimetableSolution) ([]models.TimetableSlot, error) {
	slots, err := engine.GenerateTimeSlots(req.Time)
	if err != nil {
		return nil, err
	}
	slotIndex := make(map[string]*engine.TimeSlot, len(slots))
	for _, slot := range slots {
		slotIndex[slot.ID] = slot
	}
	sessionIndex := make(map[string]*engine.CourseSession)
	for _, session := range engine.BuildSessions(req.Courses, req.Sections) {
		sessionIndex[session.ID] = session
	}

	out := make([]models.TimetableSlot, 0, len(solution.Schedule))
	for _, entry := range solution.Schedule {
		session := sessionIndex[entry.SessionID]
		slot := slotIndex[entry.TimeSlotID]
		if session == nil || slot == nil {
			return nil, fmt.Errorf("schedule entry %s/%s does not resolve", entry.SessionID, entry.TimeSlotID)
		}
		out = append(out, models.TimetableSlot{
			SessionID:   session.ID,
			CourseID:    session.CourseID,
			CourseName:  session.CourseName,
			SessionType: string(session.Type),
			Section:     session.Section,
			TeacherID:   session.TeacherID,
			Day:         slot.Day,
			StartMinute: slot.StartMinute,
			EndMinute:   slot.EndMinute,
		})
	}
	return out, nil
}

// --- Proposal cache ---

type timetableProposal struct {
	ProposalID  string
	Request     engine.Request
	Result      *engine.MultiSolutionResult
	RequestedAt time.Time
}

type proposalStore struct {
	ttl   time.Duration
	mu    sync.RWMutex
	items map[string]timetableProposal
}

func newProposalStore(ttl time.Duration) *proposalStore {
	return &proposalStore{
		ttl:   ttl,
		items: make(map[string]timetableProposal),
	}
}

func (s *proposalStore) Save(proposal timetableProposal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[proposal.ProposalID] = proposal
}

func (s *proposalStore) Get(id string) (timetableProposal, bool) {
	s.mu.RLock()
	proposal, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return timetableProposal{}, false
	}
	if time.Since(proposal.RequestedAt) > s.ttl {
		s.Delete(id)
		return timetableProposal{}, false
	}
	return proposal, true
}

func (s *proposalStore) Delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}
