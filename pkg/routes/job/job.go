// Package job exposes the job, run, and approval surface.
package job

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var validate = validator.New()

// Service runs the job state machine
type Service interface {
	Create(ctx context.Context, req models.CreateJobRequest) (*models.Job, error)
	Get(ctx context.Context, jobID string) (*models.Job, error)
	ListByChat(ctx context.Context, chatID string) ([]models.Job, error)
	StartRun(ctx context.Context, jobID string) (*models.Run, error)
	FinishRun(ctx context.Context, runID string, status models.RunStatus, statusMessage *string) (*models.Run, error)
	Resume(ctx context.Context, jobID string) (*models.Job, error)
	Progress(ctx context.Context, jobID string) (*models.JobProgress, error)
	RequireApproval(ctx context.Context, jobID, accountID string, required bool) (*models.Approval, error)
	DecideApproval(ctx context.Context, jobID, accountID string, status models.ApprovalStatus) (*models.Approval, error)
	ListApprovals(ctx context.Context, jobID string) ([]models.Approval, error)
}

// RunReader reads a job's run history
type RunReader interface {
	ListByJob(ctx context.Context, jobID string) ([]models.Run, error)
}

// Handler serves job routes
type Handler struct {
	service Service
	runs    RunReader
}

// NewHandler creates the job handler
func NewHandler(service Service, runs RunReader) *Handler {
	return &Handler{
		service: service,
		runs:    runs,
	}
}

// Register registers job routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("/jobs", h.Create)
	g.GET("/jobs/:id", h.Get)
	g.GET("/jobs/:id/progress", h.Progress)
	g.POST("/jobs/:id/resume", h.Resume)

	g.GET("/jobs/:id/runs", h.ListRuns)
	g.POST("/jobs/:id/runs", h.StartRun)
	g.PUT("/runs/:id/finish", h.FinishRun)

	g.GET("/jobs/:id/approvals", h.ListApprovals)
	g.POST("/jobs/:id/approvals", h.RequireApproval)
	g.PUT("/jobs/:id/approvals/:account_id", h.DecideApproval)

	g.GET("/chats/:chat_id/jobs", h.ListByChat)
}

// Create creates a new job
func (h *Handler) Create(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "job_handler.Create")
	defer span.End()

	var req models.CreateJobRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	job, err := h.service.Create(ctx, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, job)
}

// Get retrieves one job
func (h *Handler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "job_handler.Get")
	defer span.End()

	job, err := h.service.Get(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, job)
}

// ListByChat lists a chat's jobs
func (h *Handler) ListByChat(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "job_handler.ListByChat")
	defer span.End()

	jobs, err := h.service.ListByChat(ctx, c.Param("chat_id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, jobs)
}

// Progress reports the job's run rollup
func (h *Handler) Progress(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "job_handler.Progress")
	defer span.End()

	progress, err := h.service.Progress(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, progress)
}

// Resume resumes an async job
func (h *Handler) Resume(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "job_handler.Resume")
	defer span.End()

	job, err := h.service.Resume(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, job)
}

// ListRuns lists a job's runs, newest first
func (h *Handler) ListRuns(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "job_handler.ListRuns")
	defer span.End()

	runs, err := h.runs.ListByJob(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, runs)
}

// StartRun starts a new run. Blocked jobs return 412.
func (h *Handler) StartRun(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "job_handler.StartRun")
	defer span.End()

	run, err := h.service.StartRun(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, run)
}

// FinishRunRequest moves a run to its terminal status
type FinishRunRequest struct {
	Status        models.RunStatus `json:"status" validate:"required,oneof=success warning error"`
	StatusMessage *string          `json:"status_message,omitempty"`
}

// FinishRun finishes a run with a terminal status
func (h *Handler) FinishRun(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "job_handler.FinishRun")
	defer span.End()

	var req FinishRunRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	run, err := h.service.FinishRun(ctx, c.Param("id"), req.Status, req.StatusMessage)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, run)
}

// ListApprovals lists a job's approvals
func (h *Handler) ListApprovals(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "job_handler.ListApprovals")
	defer span.End()

	approvals, err := h.service.ListApprovals(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, approvals)
}

// RequireApprovalRequest attaches an approval to a job
type RequireApprovalRequest struct {
	AccountID string `json:"account_id" validate:"required"`
	Required  bool   `json:"required"`
}

// RequireApproval attaches a pending approval to the job
func (h *Handler) RequireApproval(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "job_handler.RequireApproval")
	defer span.End()

	var req RequireApprovalRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	approval, err := h.service.RequireApproval(ctx, c.Param("id"), req.AccountID, req.Required)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, approval)
}

// DecideApprovalRequest settles a pending approval
type DecideApprovalRequest struct {
	Status models.ApprovalStatus `json:"status" validate:"required,oneof=approved rejected"`
}

// DecideApproval settles a pending approval once
func (h *Handler) DecideApproval(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "job_handler.DecideApproval")
	defer span.End()

	var req DecideApprovalRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	approval, err := h.service.DecideApproval(ctx, c.Param("id"), c.Param("account_id"), req.Status)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, approval)
}
