package constraint

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrConstraintNotFound is returned when no validator is registered under an id.
var ErrConstraintNotFound = errors.New("constraint not found")

// ValidationErrorCode is the local code of the violation synthesised for a failing validator.
const ValidationErrorCode = "VALIDATION_ERROR"

const (
	defaultValidatorTimeout = 5 * time.Second
	defaultConcurrency      = 4
)

// Observer receives one record per executed validator.
type Observer interface {
	ObserveConstraint(run ConstraintRun)
}

// ManagerConfig tunes sweep execution.
type ManagerConfig struct {
	ValidatorTimeout time.Duration
	Concurrency      int
	Observer         Observer
}

// ConstraintRun is the execution record of one validator within a sweep.
type ConstraintRun struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Category        Category `json:"category"`
	Priority        int      `json:"priority"`
	ExecutionTimeMs float64  `json:"executionTimeMs"`
	Violations      int      `json:"violations"`
	Failed          bool     `json:"failed"`
	Error           string   `json:"error,omitempty"`
}

// Summary describes a full sweep.
type Summary struct {
	TotalConstraints     int              `json:"totalConstraints"`
	AppliedConstraints   int              `json:"appliedConstraints"`
	ExecutionTimeMs      float64          `json:"executionTime"`
	ViolationsBySeverity map[Severity]int `json:"violationsBySeverity"`
	Constraints          []ConstraintRun  `json:"constraints"`
}

// SweepResult is the aggregate outcome of ValidateAll.
type SweepResult struct {
	IsValid    bool        `json:"isValid"`
	Violations []Violation `json:"violations"`
	Summary    Summary     `json:"summary"`
}

// SettingsPatch is a partial settings update. Nil fields are left untouched.
type SettingsPatch struct {
	Enabled    *bool      `json:"enabled,omitempty"`
	Parameters Parameters `json:"parameters,omitempty"`
}

// SettingsUpdate reports the outcome of UpdateConstraintSettings.
type SettingsUpdate struct {
	Success    bool       `json:"success"`
	Errors     []string   `json:"errors,omitempty"`
	Definition Definition `json:"definition"`
}

// Manager owns the validator registry and runs sweeps.
type Manager struct {
	mu         sync.RWMutex
	validators map[string]Validator
	order      []string

	store       SettingsStore
	logger      *zap.Logger
	timeout     time.Duration
	concurrency int
	observer    Observer
}

type entry struct {
	validator Validator
	def       Definition
}

type outcome struct {
	result  ValidationResult
	err     error
	elapsed float64
}

// NewManager builds an empty registry.
func NewManager(store SettingsStore, logger *zap.Logger, cfg ManagerConfig) *Manager {
	if store == nil {
		store = NewMemorySettingsStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ValidatorTimeout <= 0 {
		cfg.ValidatorTimeout = defaultValidatorTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &Manager{
		validators:  make(map[string]Validator),
		store:       store,
		logger:      logger,
		timeout:     cfg.ValidatorTimeout,
		concurrency: cfg.Concurrency,
		observer:    cfg.Observer,
	}
}

// DefaultValidators returns the shipped rule families.
func DefaultValidators() []Validator {
	return []Validator{
		NewTeacherConflictValidator(),
		NewClassroomConflictValidator(),
		NewSubjectDistributionValidator(),
		NewTimeSlotPreferenceValidator(),
	}
}

// RegisterDefaults registers every shipped validator.
func (m *Manager) RegisterDefaults() {
	for _, v := range DefaultValidators() {
		m.Register(v)
	}
}

// Register inserts or overwrites a validator by its definition id and seeds its settings.
func (m *Manager) Register(v Validator) {
	def := v.Definition()
	if def.ID == "" {
		m.logger.Warn("ignoring validator without id")
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.validators[def.ID]; !exists {
		m.order = append(m.order, def.ID)
	}
	m.validators[def.ID] = v
	m.store.Put(def.ID, Settings{Enabled: def.Enabled, Parameters: def.Parameters})
}

// Unregister removes a validator. Unknown ids are ignored.
func (m *Manager) Unregister(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.validators[id]; !exists {
		return
	}
	delete(m.validators, id)
	m.store.Delete(id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Definition returns the current definition of a registered constraint.
func (m *Manager) Definition(id string) (Definition, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.validators[id]
	if !ok {
		return Definition{}, false
	}
	return m.currentDefinition(id, v), true
}

// GetAvailableConstraints snapshots every registered definition, enabled or not,
// by descending priority. Ties keep registration order.
func (m *Manager) GetAvailableConstraints() []Definition {
	entries, _ := m.snapshot()
	sortByPriority(entries)
	defs := make([]Definition, len(entries))
	for i, e := range entries {
		defs[i] = e.def
	}
	return defs
}

// GetEnabledConstraints returns enabled validators by descending priority,
// keeping registration order among equal priorities.
func (m *Manager) GetEnabledConstraints() []Validator {
	entries := m.enabled()
	out := make([]Validator, len(entries))
	for i, e := range entries {
		out[i] = e.validator
	}
	return out
}

func (m *Manager) currentDefinition(id string, v Validator) Definition {
	def := v.Definition()
	if settings, ok := m.store.Get(id); ok {
		def = def.withSettings(settings)
	}
	return def
}

func (m *Manager) snapshot() ([]entry, int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]entry, 0, len(m.order))
	for _, id := range m.order {
		v := m.validators[id]
		entries = append(entries, entry{validator: v, def: m.currentDefinition(id, v)})
	}
	return entries, len(m.validators)
}

func sortByPriority(entries []entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].def.Priority > entries[j].def.Priority
	})
}

func (m *Manager) enabled() []entry {
	all, _ := m.snapshot()
	out := make([]entry, 0, len(all))
	for _, e := range all {
		if e.def.Enabled {
			out = append(out, e)
		}
	}
	sortByPriority(out)
	return out
}

// ValidateAll runs every enabled, applicable validator and merges their output
// in priority order. It never fails: a validator error, panic or timeout turns
// into a single error-severity <id>_VALIDATION_ERROR violation.
func (m *Manager) ValidateAll(ctx context.Context, vctx *ValidationContext) SweepResult {
	start := time.Now()
	if vctx == nil {
		vctx = &ValidationContext{}
	}
	all, total := m.snapshot()
	candidates := make([]entry, 0, len(all))
	for _, e := range all {
		if e.def.Enabled {
			candidates = append(candidates, e)
		}
	}
	sortByPriority(candidates)

	applied := make([]entry, 0, len(candidates))
	for _, e := range candidates {
		if m.applicable(e, vctx) {
			applied = append(applied, e)
		}
	}

	outcomes := make([]outcome, len(applied))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for i := range applied {
		i := i
		g.Go(func() error {
			outcomes[i] = m.runIsolated(gctx, vctx, applied[i])
			return nil
		})
	}
	_ = g.Wait()

	violations := make([]Violation, 0)
	runs := make([]ConstraintRun, 0, len(applied))
	for i, e := range applied {
		out := outcomes[i]
		run := ConstraintRun{
			ID:              e.def.ID,
			Name:            e.def.Name,
			Category:        e.def.Category,
			Priority:        e.def.Priority,
			ExecutionTimeMs: out.elapsed,
		}
		if out.err != nil {
			m.logger.Warn("constraint validation failed",
				zap.String("constraint_id", e.def.ID),
				zap.String("timetable_id", vctx.TimetableID),
				zap.Error(out.err),
			)
			violations = append(violations, failureViolation(e.def, out.err))
			run.Failed = true
			run.Error = out.err.Error()
			run.Violations = 1
		} else {
			violations = append(violations, out.result.Violations...)
			run.Violations = len(out.result.Violations)
			if out.result.Performance != nil {
				run.ExecutionTimeMs = out.result.Performance.ExecutionTimeMs
			}
		}
		if m.observer != nil {
			m.observer.ObserveConstraint(run)
		}
		runs = append(runs, run)
	}

	return SweepResult{
		IsValid:    !HasErrors(violations),
		Violations: violations,
		Summary: Summary{
			TotalConstraints:     total,
			AppliedConstraints:   len(applied),
			ExecutionTimeMs:      durationMs(time.Since(start)),
			ViolationsBySeverity: CountBySeverity(violations),
			Constraints:          runs,
		},
	}
}

// ValidateByCategory runs the enabled, applicable validators of one category in
// priority order. Unlike ValidateAll it stops at the first validator error and
// returns it to the caller.
func (m *Manager) ValidateByCategory(ctx context.Context, vctx *ValidationContext, category Category) (ValidationResult, error) {
	start := time.Now()
	if vctx == nil {
		vctx = &ValidationContext{}
	}
	violations := make([]Violation, 0)
	for _, e := range m.enabled() {
		if e.def.Category != category || !e.validator.IsApplicable(vctx, e.def) {
			continue
		}
		out := m.run(ctx, vctx, e)
		if out.err != nil {
			return ValidationResult{}, fmt.Errorf("constraint %s: %w", e.def.ID, out.err)
		}
		violations = append(violations, out.result.Violations...)
	}
	return NewResult(violations, &Performance{
		ExecutionTimeMs: durationMs(time.Since(start)),
		ConstraintType:  string(category),
	}), nil
}

// UpdateConstraintSettings patches the enabled flag and parameters of a
// constraint. Parameters are merged shallowly over the current set and the
// merged set must pass ValidateParameters; otherwise nothing changes.
func (m *Manager) UpdateConstraintSettings(id string, patch SettingsPatch) (SettingsUpdate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.validators[id]
	if !ok {
		return SettingsUpdate{}, fmt.Errorf("%w: %s", ErrConstraintNotFound, id)
	}
	current := m.currentDefinition(id, v)
	next := Settings{Enabled: current.Enabled, Parameters: current.Parameters}

	if patch.Parameters != nil {
		merged := current.Parameters.Merge(patch.Parameters)
		check := v.ValidateParameters(merged)
		if !check.IsValid {
			return SettingsUpdate{Success: false, Errors: check.Errors, Definition: current}, nil
		}
		next.Parameters = merged
	}
	if patch.Enabled != nil {
		next.Enabled = *patch.Enabled
	}
	m.store.Put(id, next)
	return SettingsUpdate{Success: true, Definition: m.currentDefinition(id, v)}, nil
}

func (m *Manager) applicable(e entry, vctx *ValidationContext) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Warn("constraint applicability check panicked", zap.String("constraint_id", e.def.ID), zap.Any("panic", r))
			ok = false
		}
	}()
	return e.validator.IsApplicable(vctx, e.def)
}

// run invokes the validator and converts a panic into an error.
func (m *Manager) run(ctx context.Context, vctx *ValidationContext, e entry) (out outcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = outcome{err: fmt.Errorf("validator panicked: %v", r)}
		}
		out.elapsed = durationMs(time.Since(start))
	}()
	result, err := e.validator.Validate(ctx, vctx, e.def)
	return outcome{result: result, err: err}
}

// runIsolated applies the soft per-validator timeout. A validator that
// overruns keeps running in the background but its result is discarded.
func (m *Manager) runIsolated(ctx context.Context, vctx *ValidationContext, e entry) outcome {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		done <- m.run(ctx, vctx, e)
	}()

	select {
	case out := <-done:
		return out
	case <-ctx.Done():
		return outcome{
			err:     fmt.Errorf("validator did not finish within %s: %w", m.timeout, ctx.Err()),
			elapsed: durationMs(time.Since(start)),
		}
	}
}

func failureViolation(def Definition, err error) Violation {
	return Violation{
		Code:              violationCode(def.ID, ValidationErrorCode),
		Message:           fmt.Sprintf("Constraint %s could not be evaluated: %v", def.Name, err),
		Severity:          SeverityError,
		AffectedSchedules: []AffectedSchedule{},
		Metadata: map[string]any{
			"constraintId": def.ID,
			"error":        err.Error(),
		},
	}
}
