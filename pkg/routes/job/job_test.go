package job

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/models"
)

type fakeService struct {
	created   []models.CreateJobRequest
	finished  []models.RunStatus
	job       *models.Job
	run       *models.Run
	progress  *models.JobProgress
	approval  *models.Approval
	startErr  error
	finishErr error
}

func (f *fakeService) Create(_ context.Context, req models.CreateJobRequest) (*models.Job, error) {
	f.created = append(f.created, req)
	return f.job, nil
}

func (f *fakeService) Get(_ context.Context, jobID string) (*models.Job, error) {
	if f.job == nil || f.job.ID != jobID {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "job not found")
	}
	return f.job, nil
}

func (f *fakeService) ListByChat(_ context.Context, _ string) ([]models.Job, error) {
	if f.job == nil {
		return nil, nil
	}
	return []models.Job{*f.job}, nil
}

func (f *fakeService) StartRun(_ context.Context, _ string) (*models.Run, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	return f.run, nil
}

func (f *fakeService) FinishRun(_ context.Context, _ string, status models.RunStatus, _ *string) (*models.Run, error) {
	if f.finishErr != nil {
		return nil, f.finishErr
	}
	f.finished = append(f.finished, status)
	return f.run, nil
}

func (f *fakeService) Resume(_ context.Context, _ string) (*models.Job, error) {
	return f.job, nil
}

func (f *fakeService) Progress(_ context.Context, _ string) (*models.JobProgress, error) {
	return f.progress, nil
}

func (f *fakeService) RequireApproval(_ context.Context, _, _ string, _ bool) (*models.Approval, error) {
	return f.approval, nil
}

func (f *fakeService) DecideApproval(_ context.Context, _, _ string, status models.ApprovalStatus) (*models.Approval, error) {
	out := *f.approval
	out.Status = status
	return &out, nil
}

func (f *fakeService) ListApprovals(_ context.Context, _ string) ([]models.Approval, error) {
	if f.approval == nil {
		return nil, nil
	}
	return []models.Approval{*f.approval}, nil
}

type fakeRuns struct {
	runs []models.Run
}

func (f *fakeRuns) ListByJob(_ context.Context, _ string) ([]models.Run, error) {
	return f.runs, nil
}

func newHarness() (*echo.Echo, *fakeService) {
	service := &fakeService{
		job:      &models.Job{ID: "job-1", Kind: models.JobKindSync, Name: "deploy", Title: "Deploy"},
		run:      &models.Run{ID: "run-1", JobID: "job-1", Status: models.RunStatusRunning},
		progress: &models.JobProgress{JobID: "job-1", Title: "Deploy", Status: models.ProgressStatusInProgress},
		approval: &models.Approval{JobID: "job-1", AccountID: "acct-1", Status: models.ApprovalStatusPending, Required: true},
	}

	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
	NewHandler(service, &fakeRuns{runs: []models.Run{{ID: "run-1", JobID: "job-1"}}}).Register(e.Group("/api/v1"))
	return e, service
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCreateJob(t *testing.T) {
	e, service := newHarness()

	rec := do(e, http.MethodPost, "/api/v1/jobs", `{"kind":"sync","name":"deploy","title":"Deploy"}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, service.created, 1)
	assert.Equal(t, models.JobKindSync, service.created[0].Kind)
}

func TestCreateJobRejectsUnknownKind(t *testing.T) {
	e, service := newHarness()

	rec := do(e, http.MethodPost, "/api/v1/jobs", `{"kind":"cron","name":"deploy","title":"Deploy"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, service.created)
}

func TestGetJob(t *testing.T) {
	e, _ := newHarness()

	rec := do(e, http.MethodGet, "/api/v1/jobs/job-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var job models.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, "Deploy", job.Title)
}

func TestStartRunBlockedReturns412(t *testing.T) {
	e, service := newHarness()
	service.startErr = httperror.NewHTTPError(http.StatusPreconditionFailed, "job job-1 is blocked by pending approvals")

	rec := do(e, http.MethodPost, "/api/v1/jobs/job-1/runs", "")
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
}

func TestStartRun(t *testing.T) {
	e, _ := newHarness()

	rec := do(e, http.MethodPost, "/api/v1/jobs/job-1/runs", "")
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestFinishRunValidatesStatus(t *testing.T) {
	e, service := newHarness()

	rec := do(e, http.MethodPut, "/api/v1/runs/run-1/finish", `{"status":"running"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, service.finished)

	rec = do(e, http.MethodPut, "/api/v1/runs/run-1/finish", `{"status":"success"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []models.RunStatus{models.RunStatusSuccess}, service.finished)
}

func TestFinishRunTwiceConflicts(t *testing.T) {
	e, service := newHarness()
	service.finishErr = httperror.NewHTTPError(http.StatusConflict, "run run-1 already finished")

	rec := do(e, http.MethodPut, "/api/v1/runs/run-1/finish", `{"status":"error"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestProgress(t *testing.T) {
	e, _ := newHarness()

	rec := do(e, http.MethodGet, "/api/v1/jobs/job-1/progress", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var progress models.JobProgress
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &progress))
	assert.Equal(t, models.ProgressStatusInProgress, progress.Status)
}

func TestRequireApproval(t *testing.T) {
	e, _ := newHarness()

	rec := do(e, http.MethodPost, "/api/v1/jobs/job-1/approvals", `{"account_id":"acct-1","required":true}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestDecideApprovalValidatesStatus(t *testing.T) {
	e, _ := newHarness()

	rec := do(e, http.MethodPut, "/api/v1/jobs/job-1/approvals/acct-1", `{"status":"pending"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodPut, "/api/v1/jobs/job-1/approvals/acct-1", `{"status":"approved"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	var approval models.Approval
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &approval))
	assert.Equal(t, models.ApprovalStatusApproved, approval.Status)
}

func TestListRuns(t *testing.T) {
	e, _ := newHarness()

	rec := do(e, http.MethodGet, "/api/v1/jobs/job-1/runs", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var runs []models.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	assert.Len(t, runs, 1)
}
