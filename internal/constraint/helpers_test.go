package constraint

import (
	"context"
	"errors"
	"time"
)

func assign(classID, subjectID, teacherID, roomID string, day, period int) ScheduleAssignment {
	return ScheduleAssignment{
		ClassID:     classID,
		SubjectID:   subjectID,
		TeacherID:   teacherID,
		ClassroomID: roomID,
		DayOfWeek:   day,
		Period:      period,
	}
}

func newContext(schedules ...ScheduleAssignment) *ValidationContext {
	return &ValidationContext{
		TimetableID: "tt-1",
		SchoolID:    "school-1",
		Schedules:   schedules,
	}
}

func defaultDef(v Validator) Definition {
	return v.Definition()
}

func withParams(v Validator, params Parameters) Definition {
	def := v.Definition()
	def.Parameters = def.Parameters.Merge(params)
	return def
}

func codes(violations []Violation) []string {
	out := make([]string, len(violations))
	for i, v := range violations {
		out[i] = v.Code
	}
	return out
}

// stubValidator is a configurable validator used by manager tests.
type stubValidator struct {
	Base
	violations []Violation
	err        error
	panicWith  any
	delay      time.Duration
	applicable *bool
	calls      int
}

func newStub(id string, category Category, priority int) *stubValidator {
	return &stubValidator{Base: NewBase(Definition{
		ID:         id,
		Name:       id,
		Category:   category,
		Enabled:    true,
		Priority:   priority,
		Parameters: Parameters{"limit": 1},
	})}
}

func (s *stubValidator) IsApplicable(vctx *ValidationContext, def Definition) bool {
	if s.applicable != nil {
		return *s.applicable && def.Enabled
	}
	return s.Base.IsApplicable(vctx, def)
}

func (s *stubValidator) ValidateParameters(params Parameters) ParameterValidation {
	limit, ok := params["limit"].(int)
	if !ok || limit < 0 {
		return ParameterValidation{IsValid: false, Errors: []string{"limit must be a non-negative integer"}}
	}
	return ParameterValidation{IsValid: true}
}

func (s *stubValidator) Validate(ctx context.Context, vctx *ValidationContext, def Definition) (ValidationResult, error) {
	s.calls++
	if s.panicWith != nil {
		panic(s.panicWith)
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ValidationResult{}, ctx.Err()
		}
	}
	if s.err != nil {
		return ValidationResult{}, s.err
	}
	out := make([]Violation, len(s.violations))
	copy(out, s.violations)
	return s.Result(out, 0.1), nil
}

func (s *stubValidator) warn(localCode string) *stubValidator {
	s.violations = append(s.violations, s.CreateViolation(localCode, localCode, SeverityWarning, nil, nil))
	return s
}

func (s *stubValidator) fail(localCode string) *stubValidator {
	s.violations = append(s.violations, s.CreateViolation(localCode, localCode, SeverityError, nil, nil))
	return s
}

var errBroken = errors.New("broken rule")

func boolPtr(v bool) *bool {
	return &v
}
