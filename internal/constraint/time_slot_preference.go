package constraint

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// TimeSlotPreferenceID identifies the morning/afternoon preference rule.
const TimeSlotPreferenceID = "time_slot_preference"

// TimeSlotPreferenceConfig is the parameter schema of TimeSlotPreferenceValidator.
type TimeSlotPreferenceConfig struct {
	MorningPeriods      []int    `mapstructure:"morningPeriods" validate:"min=1,unique,dive,min=1,max=6"`
	AfternoonPeriods    []int    `mapstructure:"afternoonPeriods" validate:"min=1,unique,dive,min=1,max=6"`
	MorningSubjects     []string `mapstructure:"morningSubjects" validate:"dive,required"`
	AfternoonSubjects   []string `mapstructure:"afternoonSubjects" validate:"dive,required"`
	StrictMode          bool     `mapstructure:"strictMode"`
	MaxImbalancePercent float64  `mapstructure:"maxImbalancePercent" validate:"min=0,max=100"`
}

func (c *TimeSlotPreferenceConfig) crossCheck() []string {
	afternoon := intSet(c.AfternoonPeriods)
	var overlap []int
	for _, p := range c.MorningPeriods {
		if _, ok := afternoon[p]; ok {
			overlap = append(overlap, p)
		}
	}
	if len(overlap) == 0 {
		return nil
	}
	sort.Ints(overlap)
	return []string{fmt.Sprintf("morningPeriods and afternoonPeriods overlap on period(s) %v", overlap)}
}

var timeSlotPreferenceDefaults = Parameters{
	"morningPeriods":      []int{1, 2, 3},
	"afternoonPeriods":    []int{4, 5, 6},
	"morningSubjects":     []string{},
	"afternoonSubjects":   []string{},
	"strictMode":          false,
	"maxImbalancePercent": 30.0,
}

// TimeSlotPreferenceValidator keeps subjects in their preferred half of the day
// and flags a lopsided morning/afternoon load.
type TimeSlotPreferenceValidator struct {
	Base
}

// NewTimeSlotPreferenceValidator builds the validator with its default definition.
func NewTimeSlotPreferenceValidator() *TimeSlotPreferenceValidator {
	return &TimeSlotPreferenceValidator{Base: NewBase(Definition{
		ID:          TimeSlotPreferenceID,
		Name:        "Time slot preference",
		Description: "Schedules morning subjects in the morning and afternoon subjects in the afternoon",
		Category:    CategoryTime,
		Enabled:     true,
		Priority:    5,
		Parameters:  timeSlotPreferenceDefaults.Clone(),
		Version:     "1.0.0",
	})}
}

// ValidateParameters checks the parameter set against TimeSlotPreferenceConfig,
// rejecting overlapping period sets.
func (v *TimeSlotPreferenceValidator) ValidateParameters(params Parameters) ParameterValidation {
	return CheckParameters(timeSlotPreferenceDefaults, params, &TimeSlotPreferenceConfig{})
}

// Validate reports subjects placed in the wrong half of the day and an overall imbalance.
func (v *TimeSlotPreferenceValidator) Validate(ctx context.Context, vctx *ValidationContext, def Definition) (ValidationResult, error) {
	violations, elapsed, err := MeasurePerformance(func() ([]Violation, error) {
		var cfg TimeSlotPreferenceConfig
		if err := DecodeParameters(timeSlotPreferenceDefaults, def.Parameters, &cfg); err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		morning := intSet(cfg.MorningPeriods)
		afternoon := intSet(cfg.AfternoonPeriods)
		morningSubjects := newSubjectMatcher(cfg.MorningSubjects)
		afternoonSubjects := newSubjectMatcher(cfg.AfternoonSubjects)
		severity := SeverityWarning
		if cfg.StrictMode {
			severity = SeverityError
		}

		var out []Violation
		morningCount, afternoonCount := 0, 0
		for _, item := range vctx.Schedules {
			_, inMorning := morning[item.Period]
			_, inAfternoon := afternoon[item.Period]
			if inMorning {
				morningCount++
			}
			if inAfternoon {
				afternoonCount++
			}

			subject := vctx.Metadata.SubjectName(item.SubjectID)
			switch {
			case inAfternoon && morningSubjects.matches(item.SubjectID, vctx.Metadata):
				out = append(out, v.CreateViolation(
					"MORNING_SUBJECT_IN_AFTERNOON",
					fmt.Sprintf("%s for class %s is a morning subject but is scheduled on %s period %d",
						subject, vctx.Metadata.ClassName(item.ClassID), DayName(item.DayOfWeek), item.Period),
					severity,
					[]AffectedSchedule{AffectedFrom(item)},
					map[string]any{"subjectId": item.SubjectID, "preferred": "morning", "period": item.Period},
				))
			case inMorning && afternoonSubjects.matches(item.SubjectID, vctx.Metadata):
				out = append(out, v.CreateViolation(
					"AFTERNOON_SUBJECT_IN_MORNING",
					fmt.Sprintf("%s for class %s is an afternoon subject but is scheduled on %s period %d",
						subject, vctx.Metadata.ClassName(item.ClassID), DayName(item.DayOfWeek), item.Period),
					severity,
					[]AffectedSchedule{AffectedFrom(item)},
					map[string]any{"subjectId": item.SubjectID, "preferred": "afternoon", "period": item.Period},
				))
			}
		}

		if total := len(vctx.Schedules); total > 0 {
			morningRatio := float64(morningCount) / float64(total) * 100
			afternoonRatio := float64(afternoonCount) / float64(total) * 100
			if math.Abs(morningRatio-afternoonRatio) > cfg.MaxImbalancePercent {
				out = append(out, v.CreateViolation(
					"TIME_IMBALANCE",
					fmt.Sprintf("Morning and afternoon load is unbalanced: %.1f%% morning vs %.1f%% afternoon", morningRatio, afternoonRatio),
					SeverityInfo,
					nil,
					map[string]any{
						"morningCount":   morningCount,
						"afternoonCount": afternoonCount,
						"morningRatio":   round1(morningRatio),
						"afternoonRatio": round1(afternoonRatio),
						"threshold":      cfg.MaxImbalancePercent,
					},
				))
			}
		}
		return out, nil
	})
	if err != nil {
		return ValidationResult{}, err
	}
	return v.Result(violations, elapsed), nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
