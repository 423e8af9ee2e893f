package constraint

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// TeacherConflictID identifies the teacher double-booking rule.
const TeacherConflictID = "teacher_conflict"

// TeacherConflictConfig is the parameter schema of TeacherConflictValidator.
type TeacherConflictConfig struct {
	// StrictMode is reserved; every conflict is an error today.
	StrictMode bool `mapstructure:"strictMode"`
}

var teacherConflictDefaults = Parameters{"strictMode": true}

// TeacherConflictValidator rejects a teacher teaching two classes in the same slot.
type TeacherConflictValidator struct {
	Base
}

// NewTeacherConflictValidator builds the validator with its default definition.
func NewTeacherConflictValidator() *TeacherConflictValidator {
	return &TeacherConflictValidator{Base: NewBase(Definition{
		ID:          TeacherConflictID,
		Name:        "Teacher conflict",
		Description: "A teacher cannot be scheduled in more than one class at the same day and period",
		Category:    CategoryTeacher,
		Enabled:     true,
		Priority:    10,
		Parameters:  teacherConflictDefaults.Clone(),
		Version:     "1.0.0",
	})}
}

// ValidateParameters checks the parameter set against TeacherConflictConfig.
func (v *TeacherConflictValidator) ValidateParameters(params Parameters) ParameterValidation {
	return CheckParameters(teacherConflictDefaults, params, &TeacherConflictConfig{})
}

type slotKey struct {
	owner  string
	day    int
	period int
}

// bucketBySlot groups assignments by owner and time slot, in a deterministic order.
func bucketBySlot(items []ScheduleAssignment, owner func(ScheduleAssignment) string) ([]slotKey, map[slotKey][]ScheduleAssignment) {
	buckets := make(map[slotKey][]ScheduleAssignment)
	for _, item := range items {
		id := owner(item)
		if id == "" {
			continue
		}
		key := slotKey{owner: id, day: item.DayOfWeek, period: item.Period}
		buckets[key] = append(buckets[key], item)
	}
	keys := make([]slotKey, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].day != keys[j].day {
			return keys[i].day < keys[j].day
		}
		if keys[i].period != keys[j].period {
			return keys[i].period < keys[j].period
		}
		return keys[i].owner < keys[j].owner
	})
	return keys, buckets
}

func distinctClasses(items []ScheduleAssignment) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, item := range items {
		if seen[item.ClassID] {
			continue
		}
		seen[item.ClassID] = true
		out = append(out, item.ClassID)
	}
	return out
}

func classNames(ids []string, meta Metadata) []string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = meta.ClassName(id)
	}
	return names
}

// Validate emits one error per teacher slot holding more than one assignment.
func (v *TeacherConflictValidator) Validate(ctx context.Context, vctx *ValidationContext, def Definition) (ValidationResult, error) {
	violations, elapsed, err := MeasurePerformance(func() ([]Violation, error) {
		var cfg TeacherConflictConfig
		if err := DecodeParameters(teacherConflictDefaults, def.Parameters, &cfg); err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		keys, buckets := bucketBySlot(vctx.Schedules, func(a ScheduleAssignment) string { return a.TeacherID })
		var out []Violation
		for _, key := range keys {
			items := buckets[key]
			if len(items) < 2 {
				continue
			}
			classes := distinctClasses(items)
			names := classNames(classes, vctx.Metadata)
			teacherName := vctx.Metadata.TeacherName(key.owner)
			out = append(out, v.CreateViolation(
				"DOUBLE_BOOKING",
				fmt.Sprintf("Teacher %s is double-booked on %s period %d: %s",
					teacherName, DayName(key.day), key.period, strings.Join(names, ", ")),
				SeverityError,
				affectedFromAll(items),
				map[string]any{
					"teacherId":   key.owner,
					"teacherName": teacherName,
					"dayOfWeek":   key.day,
					"period":      key.period,
					"classIds":    classes,
					"classNames":  names,
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

var dayNames = map[int]string{
	1: "Monday",
	2: "Tuesday",
	3: "Wednesday",
	4: "Thursday",
	5: "Friday",
	6: "Saturday",
}

// DayName renders a 1-based day of week.
func DayName(day int) string {
	if name, ok := dayNames[day]; ok {
		return name
	}
	return fmt.Sprintf("day %d", day)
}
