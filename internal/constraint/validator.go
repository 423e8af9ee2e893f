package constraint

import (
	"context"
	"time"
)

// Validator is one pluggable scheduling rule. Implementations must not keep
// mutable state: the Manager hands the current definition to every call.
type Validator interface {
	// Definition returns the static default definition. Its ID never changes.
	Definition() Definition
	// IsApplicable gates the validator before Validate is invoked.
	IsApplicable(vctx *ValidationContext, def Definition) bool
	// ValidateParameters checks a parameter set without side effects.
	ValidateParameters(params Parameters) ParameterValidation
	// Validate evaluates the candidate schedules.
	Validate(ctx context.Context, vctx *ValidationContext, def Definition) (ValidationResult, error)
}

// Base provides the shared helpers every shipped validator embeds.
type Base struct {
	def Definition
}

// NewBase normalises the default definition.
func NewBase(def Definition) Base {
	def.Priority = clampPriority(def.Priority)
	if def.Parameters == nil {
		def.Parameters = Parameters{}
	}
	if def.Version == "" {
		def.Version = "1.0.0"
	}
	return Base{def: def}
}

// Definition returns a copy of the default definition.
func (b Base) Definition() Definition {
	return b.def.withSettings(Settings{Enabled: b.def.Enabled, Parameters: b.def.Parameters})
}

// ID is the constraint id used to namespace violation codes.
func (b Base) ID() string {
	return b.def.ID
}

// IsApplicable requires the constraint to be enabled and to allow the school type.
func (b Base) IsApplicable(vctx *ValidationContext, def Definition) bool {
	if !def.Enabled {
		return false
	}
	if vctx == nil {
		return true
	}
	return def.AppliesToSchoolType(vctx.SchoolType)
}

// CreateViolation builds a violation whose code is prefixed with the constraint id.
func (b Base) CreateViolation(localCode, message string, severity Severity, affected []AffectedSchedule, metadata map[string]any) Violation {
	if affected == nil {
		affected = []AffectedSchedule{}
	}
	return Violation{
		Code:              violationCode(b.def.ID, localCode),
		Message:           message,
		Severity:          severity,
		AffectedSchedules: affected,
		Metadata:          metadata,
	}
}

// Result wraps violations with this validator's performance record.
func (b Base) Result(violations []Violation, elapsedMs float64) ValidationResult {
	return NewResult(violations, &Performance{ExecutionTimeMs: elapsedMs, ConstraintType: b.def.ID})
}

func violationCode(id, localCode string) string {
	return id + "_" + localCode
}

// MeasurePerformance runs fn and reports its duration in milliseconds using the monotonic clock.
func MeasurePerformance[T any](fn func() (T, error)) (T, float64, error) {
	start := time.Now()
	result, err := fn()
	return result, durationMs(time.Since(start)), err
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
