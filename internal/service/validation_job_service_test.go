package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-validator/internal/dto"
	"github.com/noah-isme/sma-timetable-validator/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-validator/pkg/errors"
	"github.com/noah-isme/sma-timetable-validator/pkg/jobs"
	"github.com/noah-isme/sma-timetable-validator/pkg/storage"
)

type sweeperStub struct {
	report *dto.ValidationReport
	err    error
	calls  int
}

func (s *sweeperStub) SweepTimetable(ctx context.Context, timetableID string) (*dto.ValidationReport, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	report := *s.report
	report.TimetableID = timetableID
	return &report, nil
}

func sampleReport() *dto.ValidationReport {
	return &dto.ValidationReport{ReportID: "rep-1", IsValid: true, GeneratedAt: time.Now().UTC()}
}

func newJobService(t *testing.T, sweeper timetableSweeper) (*ValidationJobService, *queueStub) {
	t.Helper()
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	svc := NewValidationJobService(sweeper, schoolTimetable(), NewReportExportService(nil, nil), files, signer,
		NewMetricsService(), nil, zap.NewNop(), ValidationJobConfig{APIPrefix: "/api/v1"})
	queue := &queueStub{}
	svc.SetQueue(queue)
	return svc, queue
}

func TestValidationRunLifecycle(t *testing.T) {
	sweeper := &sweeperStub{report: sampleReport()}
	svc, queue := newJobService(t, sweeper)
	ctx := context.Background()

	created, err := svc.Create(ctx, "tt-1", dto.CreateValidationRunRequest{Format: models.ReportFormatCSV}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, models.ValidationRunQueued, created.Status)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, created.ID, queue.jobs[0].ID)
	assert.Equal(t, ValidationRunJobType, queue.jobs[0].Type)

	require.NoError(t, svc.Handle(ctx, queue.jobs[0]))

	run, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ValidationRunCompleted, run.Status)
	assert.Equal(t, 1, run.Attempts)
	require.NotNil(t, run.Report)
	assert.Equal(t, "tt-1", run.Report.TimetableID)
	require.NotNil(t, run.DownloadURL)
	assert.True(t, strings.HasPrefix(*run.DownloadURL, "/api/v1/validation/downloads/"))

	token := strings.TrimPrefix(*run.DownloadURL, "/api/v1/validation/downloads/")
	download, err := svc.ResolveDownload(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, created.ID+".csv", download.Filename)
	assert.Equal(t, "text/csv", download.ContentType)
	assert.Contains(t, string(download.Payload), "Severity")
}

func TestValidationRunWithoutExport(t *testing.T) {
	svc, queue := newJobService(t, &sweeperStub{report: sampleReport()})

	created, err := svc.Create(context.Background(), "tt-1", dto.CreateValidationRunRequest{}, "")
	require.NoError(t, err)
	require.NoError(t, svc.Handle(context.Background(), queue.jobs[0]))

	run, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Nil(t, run.DownloadURL)
	assert.NotNil(t, run.Report)
}

func TestValidationRunCreateErrors(t *testing.T) {
	svc, queue := newJobService(t, &sweeperStub{report: sampleReport()})
	ctx := context.Background()

	_, err := svc.Create(ctx, "missing", dto.CreateValidationRunRequest{}, "")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, err = svc.Create(ctx, "tt-1", dto.CreateValidationRunRequest{Format: "xlsx"}, "")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	queue.err = errors.New("queue full")
	_, err = svc.Create(ctx, "tt-1", dto.CreateValidationRunRequest{}, "")
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
}

func TestValidationRunFailureThenGiveUp(t *testing.T) {
	sweeper := &sweeperStub{err: errors.New("db unavailable")}
	svc, queue := newJobService(t, sweeper)
	ctx := context.Background()

	created, err := svc.Create(ctx, "tt-1", dto.CreateValidationRunRequest{}, "")
	require.NoError(t, err)

	job := queue.jobs[0]
	require.Error(t, svc.Handle(ctx, job))
	run, _ := svc.Get(ctx, created.ID)
	assert.Equal(t, models.ValidationRunQueued, run.Status)
	require.NotNil(t, run.Error)
	assert.Equal(t, "db unavailable", *run.Error)

	svc.GiveUp(jobs.Job{ID: job.ID, Attempt: 2}, sweeper.err)
	run, _ = svc.Get(ctx, created.ID)
	assert.Equal(t, models.ValidationRunFailed, run.Status)
	assert.NotNil(t, run.FinishedAt)
}

func TestResolveDownloadRejectsBadTokens(t *testing.T) {
	svc, _ := newJobService(t, &sweeperStub{report: sampleReport()})

	_, err := svc.ResolveDownload(context.Background(), "not-a-token")
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	signer := storage.NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Generate("run-1", "runs/run-2.csv")
	require.NoError(t, err)
	_, err = svc.ResolveDownload(context.Background(), token)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	token, _, err = signer.Generate("run-1", "runs/run-1.csv")
	require.NoError(t, err)
	_, err = svc.ResolveDownload(context.Background(), token)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestRunStoreExpiresFinishedRuns(t *testing.T) {
	store := newRunStore(time.Minute)
	finished := time.Now().Add(-2 * time.Minute)
	store.Save(&runRecord{run: models.ValidationRun{ID: "done", Status: models.ValidationRunCompleted, FinishedAt: &finished}})
	store.Save(&runRecord{run: models.ValidationRun{ID: "pending", Status: models.ValidationRunQueued}})

	_, ok := store.Get("done")
	assert.False(t, ok)
	_, ok = store.Get("pending")
	assert.True(t, ok)

	store.Save(&runRecord{run: models.ValidationRun{ID: "old", FinishedAt: &finished}})
	assert.Equal(t, []string{"old"}, store.Purge())
}
