package constraint

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.uber.org/zap"
)

func genAssignment() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(0, 3),
		gen.IntRange(0, 2),
		gen.IntRange(0, 2),
		gen.IntRange(0, 2),
		gen.IntRange(1, 6),
		gen.IntRange(1, 6),
	).Map(func(vals []interface{}) ScheduleAssignment {
		return assign(
			fmt.Sprintf("c%d", vals[0].(int)),
			fmt.Sprintf("s%d", vals[1].(int)),
			fmt.Sprintf("t%d", vals[2].(int)),
			fmt.Sprintf("r%d", vals[3].(int)),
			vals[4].(int),
			vals[5].(int),
		)
	})
}

func genSchedules() gopter.Gen {
	return gen.SliceOfN(12, genAssignment())
}

func TestValidationProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)
	manager := NewManager(NewMemorySettingsStore(), zap.NewNop(), ManagerConfig{})
	manager.RegisterDefaults()

	properties.Property("validate all is idempotent", prop.ForAll(
		func(schedules []ScheduleAssignment) bool {
			vctx := newContext(schedules...)
			first := manager.ValidateAll(context.Background(), vctx)
			second := manager.ValidateAll(context.Background(), vctx)
			if first.IsValid != second.IsValid || len(first.Violations) != len(second.Violations) {
				return false
			}
			for i := range first.Violations {
				if first.Violations[i].Code != second.Violations[i].Code || first.Violations[i].Message != second.Violations[i].Message {
					return false
				}
			}
			return true
		},
		genSchedules(),
	))

	properties.Property("affected schedules come from the input", prop.ForAll(
		func(schedules []ScheduleAssignment) bool {
			known := make(map[AffectedSchedule]bool, len(schedules))
			for _, s := range schedules {
				known[AffectedFrom(s)] = true
			}
			result := manager.ValidateAll(context.Background(), newContext(schedules...))
			for _, v := range result.Violations {
				for _, a := range v.AffectedSchedules {
					if !known[a] {
						return false
					}
				}
			}
			return true
		},
		genSchedules(),
	))

	properties.Property("one teacher violation per colliding slot", prop.ForAll(
		func(schedules []ScheduleAssignment) bool {
			slots := make(map[slotKey]int)
			for _, s := range schedules {
				slots[slotKey{owner: s.TeacherID, day: s.DayOfWeek, period: s.Period}]++
			}
			colliding := 0
			for _, n := range slots {
				if n > 1 {
					colliding++
				}
			}

			v := NewTeacherConflictValidator()
			result, err := v.Validate(context.Background(), newContext(schedules...), v.Definition())
			if err != nil {
				return false
			}
			return len(result.Violations) == colliding && result.IsValid == (colliding == 0)
		},
		genSchedules(),
	))

	properties.Property("validity matches absence of errors", prop.ForAll(
		func(schedules []ScheduleAssignment) bool {
			result := manager.ValidateAll(context.Background(), newContext(schedules...))
			counts := result.Summary.ViolationsBySeverity
			return result.IsValid == !HasErrors(result.Violations) &&
				counts[SeverityError]+counts[SeverityWarning]+counts[SeverityInfo] == len(result.Violations)
		},
		genSchedules(),
	))

	properties.TestingRun(t)
}
