package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-validator/internal/dto"
	"github.com/noah-isme/sma-timetable-validator/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-validator/pkg/errors"
	"github.com/noah-isme/sma-timetable-validator/pkg/jobs"
	"github.com/noah-isme/sma-timetable-validator/pkg/storage"
)

// ValidationRunJobType tags queue jobs produced by ValidationJobService.
const ValidationRunJobType = "validation_run"

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type timetableSweeper interface {
	SweepTimetable(ctx context.Context, timetableID string) (*dto.ValidationReport, error)
}

type timetableLookup interface {
	GetByID(ctx context.Context, id string) (*models.Timetable, error)
}

type reportRenderer interface {
	Render(report *dto.ValidationReport, format models.ReportFormat) (*RenderedReport, error)
}

type fileStorage interface {
	Save(name string, data []byte) (string, error)
	Read(name string) ([]byte, error)
	Delete(name string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type urlSigner interface {
	Generate(runID, name string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (storage.SignedToken, error)
	TTL() time.Duration
}

type runObserver interface {
	ObserveRunTransition(status models.ValidationRunStatus)
}

// ValidationJobConfig governs run retention and export links.
type ValidationJobConfig struct {
	APIPrefix       string
	RunTTL          time.Duration
	CleanupInterval time.Duration
}

// ReportDownload aggregates resolved download data.
type ReportDownload struct {
	Filename    string
	ContentType string
	Payload     []byte
	ExpiresAt   time.Time
}

// ValidationJobService runs sweeps of persisted timetables in the background.
type ValidationJobService struct {
	sweeper    timetableSweeper
	timetables timetableLookup
	queue      jobDispatcher
	renderer   reportRenderer
	storage    fileStorage
	signer     urlSigner
	observer   runObserver
	validator  *validator.Validate
	logger     *zap.Logger
	cfg        ValidationJobConfig
	store      *runStore
}

// NewValidationJobService constructs the service. The queue may be attached
// later with SetQueue since the queue handler is the service itself.
func NewValidationJobService(
	sweeper timetableSweeper,
	timetables timetableLookup,
	renderer reportRenderer,
	files fileStorage,
	signer urlSigner,
	observer runObserver,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg ValidationJobConfig,
) *ValidationJobService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RunTTL <= 0 {
		cfg.RunTTL = 30 * time.Minute
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	return &ValidationJobService{
		sweeper:    sweeper,
		timetables: timetables,
		renderer:   renderer,
		storage:    files,
		signer:     signer,
		observer:   observer,
		validator:  validate,
		logger:     logger,
		cfg:        cfg,
		store:      newRunStore(cfg.RunTTL),
	}
}

// SetQueue attaches the dispatcher used by Create.
func (s *ValidationJobService) SetQueue(queue jobDispatcher) {
	s.queue = queue
}

// Create registers a queued run and enqueues it.
func (s *ValidationJobService) Create(ctx context.Context, timetableID string, req dto.CreateValidationRunRequest, actorID string) (*dto.ValidationRunResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid validation run payload")
	}
	if req.Format != "" && (s.renderer == nil || s.storage == nil || s.signer == nil) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "report exports are not configured")
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "validation queue unavailable")
	}
	if s.timetables != nil {
		if _, err := s.timetables.GetByID(ctx, timetableID); err != nil {
			if isNoRows(err) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
		}
	}

	run := models.ValidationRun{
		ID:          uuid.NewString(),
		TimetableID: timetableID,
		Status:      models.ValidationRunQueued,
		Format:      req.Format,
		RequestedBy: actorID,
		CreatedAt:   time.Now().UTC(),
	}
	s.store.Save(&runRecord{run: run})
	s.transition(models.ValidationRunQueued)

	if err := s.queue.Enqueue(jobs.Job{ID: run.ID, Type: ValidationRunJobType}); err != nil {
		s.fail(run.ID, "failed to enqueue validation run")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue validation run")
	}
	record, _ := s.store.Get(run.ID)
	return record.response(), nil
}

// Get exposes run state.
func (s *ValidationJobService) Get(ctx context.Context, id string) (*dto.ValidationRunResponse, error) {
	record, ok := s.store.Get(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "validation run not found")
	}
	return record.response(), nil
}

// Handle processes a queue job. Returned errors make the queue retry; the
// run is marked failed from GiveUp.
func (s *ValidationJobService) Handle(ctx context.Context, job jobs.Job) error {
	record, ok := s.store.Get(job.ID)
	if !ok {
		s.logger.Warn("validation run expired before processing", zap.String("run_id", job.ID))
		return nil
	}
	started := time.Now().UTC()
	s.store.Update(job.ID, func(r *runRecord) {
		r.run.Status = models.ValidationRunRunning
		r.run.Attempts = job.Attempt + 1
		r.run.StartedAt = &started
	})
	s.transition(models.ValidationRunRunning)

	report, err := s.sweeper.SweepTimetable(ctx, record.run.TimetableID)
	if err != nil {
		s.requeue(job.ID, err)
		return err
	}

	var exportName, downloadURL string
	var expiresAt time.Time
	if record.run.Format != "" {
		exportName, downloadURL, expiresAt, err = s.export(job.ID, report, record.run.Format)
		if err != nil {
			s.requeue(job.ID, err)
			return err
		}
	}

	finished := time.Now().UTC()
	s.store.Update(job.ID, func(r *runRecord) {
		r.run.Status = models.ValidationRunCompleted
		r.run.FinishedAt = &finished
		r.run.ErrorMessage = nil
		r.run.ExportName = exportName
		r.report = report
		r.downloadURL = downloadURL
		r.expiresAt = expiresAt
	})
	s.transition(models.ValidationRunCompleted)
	s.logger.Info("validation run completed",
		zap.String("run_id", job.ID),
		zap.String("timetable_id", record.run.TimetableID),
		zap.Bool("is_valid", report.IsValid),
		zap.Int("violations", len(report.Violations)),
	)
	return nil
}

// GiveUp marks a run failed once the queue stops retrying it.
func (s *ValidationJobService) GiveUp(job jobs.Job, err error) {
	msg := "validation run failed"
	if err != nil {
		msg = err.Error()
	}
	s.fail(job.ID, msg)
}

// ResolveDownload validates token and loads the stored export.
func (s *ValidationJobService) ResolveDownload(ctx context.Context, token string) (*ReportDownload, error) {
	if s.signer == nil || s.storage == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "report exports are not configured")
	}
	signed, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	if !strings.HasPrefix(path.Base(signed.Name), signed.RunID+".") {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	payload, err := s.storage.Read(signed.Name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read export file")
	}
	return &ReportDownload{
		Filename:    path.Base(signed.Name),
		ContentType: contentTypeFor(signed.Name),
		Payload:     payload,
		ExpiresAt:   signed.ExpiresAt,
	}, nil
}

// StartCleanup boots a goroutine that purges expired runs and exports periodically.
func (s *ValidationJobService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Cleanup()
			}
		}
	}()
}

// Cleanup drops expired run records and export files older than the link TTL.
func (s *ValidationJobService) Cleanup() {
	if purged := s.store.Purge(); len(purged) > 0 {
		s.logger.Debug("purged validation runs", zap.Int("count", len(purged)))
	}
	if s.storage == nil || s.signer == nil {
		return
	}
	deleted, err := s.storage.CleanupOlderThan(s.signer.TTL())
	if err != nil {
		s.logger.Warn("export cleanup failed", zap.Error(err))
		return
	}
	if len(deleted) > 0 {
		s.logger.Info("removed expired exports", zap.Int("count", len(deleted)))
	}
}

func (s *ValidationJobService) export(runID string, report *dto.ValidationReport, format models.ReportFormat) (string, string, time.Time, error) {
	rendered, err := s.renderer.Render(report, format)
	if err != nil {
		return "", "", time.Time{}, err
	}
	name, err := s.storage.Save(fmt.Sprintf("runs/%s.%s", runID, format), rendered.Payload)
	if err != nil {
		return "", "", time.Time{}, err
	}
	token, expiresAt, err := s.signer.Generate(runID, name)
	if err != nil {
		if delErr := s.storage.Delete(name); delErr != nil {
			s.logger.Warn("failed to remove unsigned export", zap.String("run_id", runID), zap.Error(delErr))
		}
		return "", "", time.Time{}, err
	}
	url := fmt.Sprintf("%s/validation/downloads/%s", strings.TrimRight(s.cfg.APIPrefix, "/"), token)
	return name, url, expiresAt, nil
}

func (s *ValidationJobService) requeue(id string, cause error) {
	msg := cause.Error()
	s.store.Update(id, func(r *runRecord) {
		r.run.Status = models.ValidationRunQueued
		r.run.ErrorMessage = &msg
	})
	s.logger.Warn("validation run attempt failed", zap.String("run_id", id), zap.Error(cause))
}

func (s *ValidationJobService) fail(id, msg string) {
	finished := time.Now().UTC()
	updated := s.store.Update(id, func(r *runRecord) {
		r.run.Status = models.ValidationRunFailed
		r.run.ErrorMessage = &msg
		r.run.FinishedAt = &finished
	})
	if updated {
		s.transition(models.ValidationRunFailed)
	}
}

func (s *ValidationJobService) transition(status models.ValidationRunStatus) {
	if s.observer != nil {
		s.observer.ObserveRunTransition(status)
	}
}

func contentTypeFor(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".pdf":
		return "application/pdf"
	case ".csv":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}

type runRecord struct {
	run         models.ValidationRun
	report      *dto.ValidationReport
	downloadURL string
	expiresAt   time.Time
}

func (r *runRecord) response() *dto.ValidationRunResponse {
	resp := &dto.ValidationRunResponse{
		ID:          r.run.ID,
		TimetableID: r.run.TimetableID,
		Status:      r.run.Status,
		Attempts:    r.run.Attempts,
		CreatedAt:   r.run.CreatedAt,
		FinishedAt:  r.run.FinishedAt,
		Error:       r.run.ErrorMessage,
		Report:      r.report,
	}
	if r.downloadURL != "" {
		url := r.downloadURL
		expires := r.expiresAt
		resp.DownloadURL = &url
		resp.ExpiresAt = &expires
	}
	return resp
}

// runStore keeps runs in memory. Finished runs expire ttl after finishing.
type runStore struct {
	ttl   time.Duration
	now   func() time.Time
	mu    sync.RWMutex
	items map[string]*runRecord
}

func newRunStore(ttl time.Duration) *runStore {
	return &runStore{
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string]*runRecord),
	}
}

func (s *runStore) Save(record *runRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[record.run.ID] = record
}

// Get returns a copy of the record so callers never race with Update.
func (s *runStore) Get(id string) (runRecord, bool) {
	s.mu.RLock()
	record, ok := s.items[id]
	var out runRecord
	if ok {
		out = *record
	}
	s.mu.RUnlock()
	if !ok {
		return runRecord{}, false
	}
	if s.expired(out) {
		s.Delete(id)
		return runRecord{}, false
	}
	return out, true
}

func (s *runStore) Update(id string, fn func(*runRecord)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.items[id]
	if !ok {
		return false
	}
	fn(record)
	return true
}

func (s *runStore) Delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}

// Purge removes every expired record and returns their ids.
func (s *runStore) Purge() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var purged []string
	for id, record := range s.items {
		if s.expired(*record) {
			delete(s.items, id)
			purged = append(purged, id)
		}
	}
	return purged
}

func (s *runStore) expired(record runRecord) bool {
	if record.run.FinishedAt == nil {
		return false
	}
	return s.now().Sub(*record.run.FinishedAt) > s.ttl
}
