package constraint

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// SubjectDistributionID identifies the subject distribution rule.
const SubjectDistributionID = "subject_distribution"

// SubjectDistributionConfig is the parameter schema of SubjectDistributionValidator.
type SubjectDistributionConfig struct {
	MaxConsecutiveHours int      `mapstructure:"maxConsecutiveHours" validate:"min=1,max=10"`
	MinDaySpread        int      `mapstructure:"minDaySpread" validate:"min=1,max=6"`
	AvoidFirstPeriod    []string `mapstructure:"avoidFirstPeriod" validate:"dive,required"`
	AvoidLastPeriod     []string `mapstructure:"avoidLastPeriod" validate:"dive,required"`
}

var subjectDistributionDefaults = Parameters{
	"maxConsecutiveHours": 2,
	"minDaySpread":        3,
	"avoidFirstPeriod":    []string{},
	"avoidLastPeriod":     []string{},
}

// SubjectDistributionValidator checks how each class's subject hours spread over the week.
type SubjectDistributionValidator struct {
	Base
}

// NewSubjectDistributionValidator builds the validator with its default definition.
func NewSubjectDistributionValidator() *SubjectDistributionValidator {
	return &SubjectDistributionValidator{Base: NewBase(Definition{
		ID:          SubjectDistributionID,
		Name:        "Subject distribution",
		Description: "Limits consecutive hours, spreads subjects across days and keeps selected subjects out of the first or last period",
		Category:    CategorySubject,
		Enabled:     true,
		Priority:    7,
		Parameters:  subjectDistributionDefaults.Clone(),
		Version:     "1.0.0",
	})}
}

// ValidateParameters checks the parameter set against SubjectDistributionConfig.
func (v *SubjectDistributionValidator) ValidateParameters(params Parameters) ParameterValidation {
	return CheckParameters(subjectDistributionDefaults, params, &SubjectDistributionConfig{})
}

type subjectGroupKey struct {
	classID   string
	subjectID string
}

type subjectGroup struct {
	key   subjectGroupKey
	items []ScheduleAssignment
}

func groupByClassSubject(items []ScheduleAssignment) []subjectGroup {
	index := make(map[subjectGroupKey]int)
	var groups []subjectGroup
	for _, item := range items {
		key := subjectGroupKey{classID: item.ClassID, subjectID: item.SubjectID}
		pos, ok := index[key]
		if !ok {
			pos = len(groups)
			index[key] = pos
			groups = append(groups, subjectGroup{key: key})
		}
		groups[pos].items = append(groups[pos].items, item)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].key.classID != groups[j].key.classID {
			return groups[i].key.classID < groups[j].key.classID
		}
		return groups[i].key.subjectID < groups[j].key.subjectID
	})
	return groups
}

// Validate runs the consecutive-hours, day-spread and first/last period checks per class subject.
func (v *SubjectDistributionValidator) Validate(ctx context.Context, vctx *ValidationContext, def Definition) (ValidationResult, error) {
	violations, elapsed, err := MeasurePerformance(func() ([]Violation, error) {
		var cfg SubjectDistributionConfig
		if err := DecodeParameters(subjectDistributionDefaults, def.Parameters, &cfg); err != nil {
			return nil, err
		}
		avoidFirst := newSubjectMatcher(cfg.AvoidFirstPeriod)
		avoidLast := newSubjectMatcher(cfg.AvoidLastPeriod)
		lastPeriod := vctx.LastPeriod()

		var out []Violation
		for _, group := range groupByClassSubject(vctx.Schedules) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			out = append(out, v.checkConsecutive(vctx.Metadata, group, cfg.MaxConsecutiveHours)...)
			if violation, ok := v.checkDaySpread(vctx.Metadata, group, cfg.MinDaySpread); ok {
				out = append(out, violation)
			}
			if avoidFirst.matches(group.key.subjectID, vctx.Metadata) {
				if violation, ok := v.checkEdgePeriod(vctx.Metadata, group, 1, "FIRST_PERIOD", "first"); ok {
					out = append(out, violation)
				}
			}
			if avoidLast.matches(group.key.subjectID, vctx.Metadata) {
				if violation, ok := v.checkEdgePeriod(vctx.Metadata, group, lastPeriod, "LAST_PERIOD", "last"); ok {
					out = append(out, violation)
				}
			}
		}
		return out, nil
	})
	if err != nil {
		return ValidationResult{}, err
	}
	return v.Result(violations, elapsed), nil
}

func (v *SubjectDistributionValidator) checkConsecutive(meta Metadata, group subjectGroup, limit int) []Violation {
	byDay := make(map[int][]ScheduleAssignment)
	for _, item := range group.items {
		byDay[item.DayOfWeek] = append(byDay[item.DayOfWeek], item)
	}
	days := make([]int, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Ints(days)

	var out []Violation
	for _, day := range days {
		items := byDay[day]
		sort.SliceStable(items, func(i, j int) bool { return items[i].Period < items[j].Period })

		runStart := 0
		for i := 1; i <= len(items); i++ {
			if i < len(items) && items[i].Period <= items[i-1].Period+1 {
				continue
			}
			run := items[runStart:i]
			runStart = i
			count := distinctPeriods(run)
			if count <= limit {
				continue
			}
			out = append(out, v.CreateViolation(
				"CONSECUTIVE_HOURS",
				fmt.Sprintf("%s for class %s runs %d consecutive periods on %s (limit %d)",
					meta.SubjectName(group.key.subjectID), meta.ClassName(group.key.classID), count, DayName(day), limit),
				SeverityWarning,
				affectedFromAll(run),
				map[string]any{
					"classId":             group.key.classID,
					"subjectId":           group.key.subjectID,
					"dayOfWeek":           day,
					"startPeriod":         run[0].Period,
					"endPeriod":           run[len(run)-1].Period,
					"consecutiveCount":    count,
					"maxConsecutiveHours": limit,
				},
			))
		}
	}
	return out
}

func distinctPeriods(items []ScheduleAssignment) int {
	count := 0
	for i, item := range items {
		if i == 0 || item.Period != items[i-1].Period {
			count++
		}
	}
	return count
}

func (v *SubjectDistributionValidator) checkDaySpread(meta Metadata, group subjectGroup, minSpread int) (Violation, bool) {
	if len(group.items) < minSpread {
		return Violation{}, false
	}
	days := make(map[int]struct{})
	for _, item := range group.items {
		days[item.DayOfWeek] = struct{}{}
	}
	if len(days) >= minSpread {
		return Violation{}, false
	}
	return v.CreateViolation(
		"DAY_SPREAD",
		fmt.Sprintf("%s for class %s has %d periods on only %d day(s); spread it over at least %d days",
			meta.SubjectName(group.key.subjectID), meta.ClassName(group.key.classID), len(group.items), len(days), minSpread),
		SeverityInfo,
		affectedFromAll(group.items),
		map[string]any{
			"classId":      group.key.classID,
			"subjectId":    group.key.subjectID,
			"occurrences":  len(group.items),
			"distinctDays": len(days),
			"minDaySpread": minSpread,
		},
	), true
}

func (v *SubjectDistributionValidator) checkEdgePeriod(meta Metadata, group subjectGroup, period int, localCode, label string) (Violation, bool) {
	var hits []ScheduleAssignment
	var days []int
	seen := make(map[int]bool)
	for _, item := range group.items {
		if item.Period != period {
			continue
		}
		hits = append(hits, item)
		if !seen[item.DayOfWeek] {
			seen[item.DayOfWeek] = true
			days = append(days, item.DayOfWeek)
		}
	}
	if len(hits) == 0 {
		return Violation{}, false
	}
	sort.Ints(days)
	names := make([]string, len(days))
	for i, day := range days {
		names[i] = DayName(day)
	}
	return v.CreateViolation(
		localCode,
		fmt.Sprintf("%s for class %s should avoid the %s period but is scheduled there on %s",
			meta.SubjectName(group.key.subjectID), meta.ClassName(group.key.classID), label, strings.Join(names, ", ")),
		SeverityWarning,
		affectedFromAll(hits),
		map[string]any{
			"classId":   group.key.classID,
			"subjectId": group.key.subjectID,
			"period":    period,
			"days":      days,
		},
	), true
}
