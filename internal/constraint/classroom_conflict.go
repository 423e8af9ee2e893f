package constraint

import (
	"context"
	"fmt"
	"strings"
)

// ClassroomConflictID identifies the classroom double-booking rule.
const ClassroomConflictID = "classroom_conflict"

// ClassroomConflictConfig is the parameter schema of ClassroomConflictValidator.
type ClassroomConflictConfig struct {
	CapacityCheck bool `mapstructure:"capacityCheck"`
	// DefaultClassSize is the headcount assumed for classes without a known student count.
	DefaultClassSize int `mapstructure:"defaultClassSize" validate:"min=1,max=500"`
}

var classroomConflictDefaults = Parameters{
	"capacityCheck":    true,
	"defaultClassSize": 30,
}

// ClassroomConflictValidator rejects double-booked classrooms and warns on overcrowding.
type ClassroomConflictValidator struct {
	Base
}

// NewClassroomConflictValidator builds the validator with its default definition.
func NewClassroomConflictValidator() *ClassroomConflictValidator {
	return &ClassroomConflictValidator{Base: NewBase(Definition{
		ID:          ClassroomConflictID,
		Name:        "Classroom conflict",
		Description: "A classroom cannot host more than one class at the same day and period",
		Category:    CategoryClassroom,
		Enabled:     true,
		Priority:    9,
		Parameters:  classroomConflictDefaults.Clone(),
		Version:     "1.0.0",
	})}
}

// ValidateParameters checks the parameter set against ClassroomConflictConfig.
func (v *ClassroomConflictValidator) ValidateParameters(params Parameters) ParameterValidation {
	return CheckParameters(classroomConflictDefaults, params, &ClassroomConflictConfig{})
}

// Validate emits an error per double-booked room slot and, when capacity
// checking is on, a warning per slot whose headcount exceeds the room capacity.
func (v *ClassroomConflictValidator) Validate(ctx context.Context, vctx *ValidationContext, def Definition) (ValidationResult, error) {
	violations, elapsed, err := MeasurePerformance(func() ([]Violation, error) {
		var cfg ClassroomConflictConfig
		if err := DecodeParameters(classroomConflictDefaults, def.Parameters, &cfg); err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		keys, buckets := bucketBySlot(vctx.Schedules, func(a ScheduleAssignment) string { return a.ClassroomID })
		var out []Violation
		for _, key := range keys {
			items := buckets[key]
			roomName := vctx.Metadata.ClassroomName(key.owner)
			if len(items) > 1 {
				classes := distinctClasses(items)
				names := classNames(classes, vctx.Metadata)
				out = append(out, v.CreateViolation(
					"DOUBLE_BOOKING",
					fmt.Sprintf("Classroom %s is double-booked on %s period %d: %s",
						roomName, DayName(key.day), key.period, strings.Join(names, ", ")),
					SeverityError,
					affectedFromAll(items),
					map[string]any{
						"classroomId":   key.owner,
						"classroomName": roomName,
						"dayOfWeek":     key.day,
						"period":        key.period,
						"classIds":      classes,
						"classNames":    names,
					},
				))
			}
			if !cfg.CapacityCheck {
				continue
			}
			room, ok := vctx.Metadata.Classroom(key.owner)
			if !ok || room.Capacity <= 0 {
				continue
			}
			headcount := 0
			for _, item := range items {
				headcount += classSize(item.ClassID, vctx.Metadata, cfg.DefaultClassSize)
			}
			if headcount <= room.Capacity {
				continue
			}
			out = append(out, v.CreateViolation(
				"CAPACITY_EXCEEDED",
				fmt.Sprintf("Classroom %s holds %d students but %d are scheduled on %s period %d",
					roomName, room.Capacity, headcount, DayName(key.day), key.period),
				SeverityWarning,
				affectedFromAll(items),
				map[string]any{
					"classroomId": key.owner,
					"capacity":    room.Capacity,
					"headcount":   headcount,
					"dayOfWeek":   key.day,
					"period":      key.period,
				},
			))
		}
		return out, nil
	})
	if err != nil {
		return ValidationResult{}, err
	}
	return v.Result(violations, elapsed), nil
}

func classSize(classID string, meta Metadata, fallback int) int {
	if c, ok := meta.Class(classID); ok && c.StudentCount > 0 {
		return c.StudentCount
	}
	return fallback
}
