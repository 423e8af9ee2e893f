package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-validator/internal/constraint"
	"github.com/noah-isme/sma-timetable-validator/internal/dto"
	"github.com/noah-isme/sma-timetable-validator/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-validator/pkg/errors"
)

type timetableReader interface {
	GetByID(ctx context.Context, id string) (*models.Timetable, error)
	ListEntries(ctx context.Context, timetableID string) ([]models.TimetableEntry, error)
	LoadReferences(ctx context.Context, timetableID string) (*models.TimetableReferences, error)
	DB() sqlx.QueryerContext
}

type constraintEngine interface {
	ValidateAll(ctx context.Context, vctx *constraint.ValidationContext) constraint.SweepResult
	ValidateByCategory(ctx context.Context, vctx *constraint.ValidationContext, category constraint.Category) (constraint.ValidationResult, error)
}

type reportCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type sweepObserver interface {
	ObserveSweep(valid bool, duration time.Duration)
}

// ValidationServiceConfig tunes report caching.
type ValidationServiceConfig struct {
	CacheTTL time.Duration
}

// ValidationService turns requests and persisted timetables into engine runs.
type ValidationService struct {
	engine     constraintEngine
	timetables timetableReader
	cache      reportCache
	observer   sweepObserver
	validator  *validator.Validate
	logger     *zap.Logger
	cfg        ValidationServiceConfig
	now        func() time.Time
}

// NewValidationService wires the validation service.
func NewValidationService(engine constraintEngine, timetables timetableReader, cache reportCache, observer sweepObserver, validate *validator.Validate, logger *zap.Logger, cfg ValidationServiceConfig) *ValidationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	validate.RegisterStructValidation(saturdayHoursRule, dto.ValidateTimetableRequest{})
	return &ValidationService{
		engine:     engine,
		timetables: timetables,
		cache:      cache,
		observer:   observer,
		validator:  validate,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

// saturdayHoursRule rejects Saturday lessons beyond the configured hours.
func saturdayHoursRule(sl validator.StructLevel) {
	req, ok := sl.Current().Interface().(dto.ValidateTimetableRequest)
	if !ok {
		return
	}
	for i, s := range req.Schedules {
		if s.DayOfWeek == 6 && s.Period > req.SaturdayHours {
			sl.ReportError(s.Period, fmt.Sprintf("Schedules[%d].Period", i), "period", "saturday_hours", fmt.Sprintf("%d", req.SaturdayHours))
		}
	}
}

// ValidatePayload runs a full sweep over a candidate timetable.
func (s *ValidationService) ValidatePayload(ctx context.Context, req dto.ValidateTimetableRequest) (*dto.ValidationReport, error) {
	if err := s.checkRequest(req); err != nil {
		return nil, err
	}
	return s.sweep(ctx, contextFromRequest(req, s.dbHandle())), nil
}

// ValidateCategory runs only the validators of one category. Validator
// failures are returned as internal errors.
func (s *ValidationService) ValidateCategory(ctx context.Context, rawCategory string, req dto.ValidateTimetableRequest) (*dto.CategoryValidationResponse, error) {
	category, ok := constraint.ParseCategory(rawCategory)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown constraint category %q", rawCategory))
	}
	if err := s.checkRequest(req); err != nil {
		return nil, err
	}
	result, err := s.engine.ValidateByCategory(ctx, contextFromRequest(req, s.dbHandle()), category)
	if err != nil {
		s.logger.Warn("category validation failed", zap.String("category", string(category)), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "category validation failed")
	}
	return &dto.CategoryValidationResponse{
		Category:    category,
		IsValid:     result.IsValid,
		Violations:  result.Violations,
		Performance: result.Performance,
	}, nil
}

// ValidateTimetable sweeps a persisted timetable, serving from the report
// cache when possible. The boolean reports a cache hit.
func (s *ValidationService) ValidateTimetable(ctx context.Context, timetableID string) (*dto.ValidationReport, bool, error) {
	key := ReportCacheKey(timetableID)
	if s.cache != nil {
		var cached dto.ValidationReport
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return &cached, true, nil
		}
	}
	report, err := s.SweepTimetable(ctx, timetableID)
	if err != nil {
		return nil, false, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, report, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("failed to cache validation report", zap.String("timetable_id", timetableID), zap.Error(err))
		}
	}
	return report, false, nil
}

// SweepTimetable always recomputes the report of a persisted timetable.
func (s *ValidationService) SweepTimetable(ctx context.Context, timetableID string) (*dto.ValidationReport, error) {
	vctx, err := s.BuildContext(ctx, timetableID)
	if err != nil {
		return nil, err
	}
	return s.sweep(ctx, vctx), nil
}

// BuildContext loads a timetable and everything it references.
func (s *ValidationService) BuildContext(ctx context.Context, timetableID string) (*constraint.ValidationContext, error) {
	if s.timetables == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "timetable storage unavailable")
	}
	timetable, err := s.timetables.GetByID(ctx, timetableID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	entries, err := s.timetables.ListEntries(ctx, timetableID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable entries")
	}
	refs, err := s.timetables.LoadReferences(ctx, timetableID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable references")
	}
	return contextFromTimetable(timetable, entries, refs, s.timetables.DB()), nil
}

func (s *ValidationService) checkRequest(req dto.ValidateTimetableRequest) error {
	if err := s.validator.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			details := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				details = append(details, describeRequestError(fe))
			}
			return appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "invalid validation payload"), details)
		}
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid validation payload")
	}
	return nil
}

func (s *ValidationService) sweep(ctx context.Context, vctx *constraint.ValidationContext) *dto.ValidationReport {
	start := time.Now()
	result := s.engine.ValidateAll(ctx, vctx)
	if s.observer != nil {
		s.observer.ObserveSweep(result.IsValid, time.Since(start))
	}
	return &dto.ValidationReport{
		ReportID:    uuid.NewString(),
		TimetableID: vctx.TimetableID,
		IsValid:     result.IsValid,
		Violations:  result.Violations,
		Summary:     result.Summary,
		GeneratedAt: s.now().UTC(),
	}
}

func (s *ValidationService) dbHandle() sqlx.QueryerContext {
	if s.timetables == nil {
		return nil
	}
	return s.timetables.DB()
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func describeRequestError(fe validator.FieldError) string {
	field := fe.Namespace()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "saturday_hours":
		return fmt.Sprintf("%s exceeds saturdayHours (%s)", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

func contextFromRequest(req dto.ValidateTimetableRequest, db sqlx.QueryerContext) *constraint.ValidationContext {
	return &constraint.ValidationContext{
		DB:            db,
		TimetableID:   req.TimetableID,
		SchoolID:      req.SchoolID,
		SchoolType:    req.SchoolType,
		SaturdayHours: req.SaturdayHours,
		Schedules:     req.Assignments(),
		Metadata:      req.Metadata,
	}
}

func contextFromTimetable(timetable *models.Timetable, entries []models.TimetableEntry, refs *models.TimetableReferences, db sqlx.QueryerContext) *constraint.ValidationContext {
	schedules := make([]constraint.ScheduleAssignment, len(entries))
	for i, e := range entries {
		classroom := ""
		if e.ClassroomID != nil {
			classroom = *e.ClassroomID
		}
		schedules[i] = constraint.ScheduleAssignment{
			ClassID:     e.ClassID,
			SubjectID:   e.SubjectID,
			TeacherID:   e.TeacherID,
			ClassroomID: classroom,
			DayOfWeek:   e.DayOfWeek,
			Period:      e.Period,
		}
	}

	meta := constraint.Metadata{}
	if refs != nil {
		for _, c := range refs.Classes {
			meta.Classes = append(meta.Classes, constraint.ClassInfo{ID: c.ID, Name: c.Name, StudentCount: c.StudentCount})
		}
		for _, t := range refs.Teachers {
			meta.Teachers = append(meta.Teachers, constraint.TeacherInfo{ID: t.ID, Name: t.FullName})
		}
		for _, sub := range refs.Subjects {
			meta.Subjects = append(meta.Subjects, constraint.SubjectInfo{ID: sub.ID, Name: sub.Name})
		}
		for _, r := range refs.Classrooms {
			meta.Classrooms = append(meta.Classrooms, constraint.ClassroomInfo{ID: r.ID, Name: r.Name, Capacity: r.Capacity})
		}
	}

	return &constraint.ValidationContext{
		DB:            db,
		TimetableID:   timetable.ID,
		SchoolID:      timetable.SchoolID,
		SchoolType:    timetable.SchoolType,
		SaturdayHours: timetable.SaturdayHours,
		Schedules:     schedules,
		Metadata:      meta,
	}
}
