// Package jobs implements the job / run / approval state machine. A job is
// durable work tied to a chat; each execution attempt is a run; approvals
// gate runs behind explicit account consent.
package jobs

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/entities"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Service coordinates jobs, runs, and approval gates
type Service struct {
	jobs      JobRepo
	runs      RunRepo
	approvals ApprovalRepo
	chats     ChatRepo
	accounts  AccountRepo
	bus       Publisher
	logger    ectologger.Logger
}

// NewService creates a job service
func NewService(
	jobs JobRepo,
	runs RunRepo,
	approvals ApprovalRepo,
	chats ChatRepo,
	accounts AccountRepo,
	bus Publisher,
	logger ectologger.Logger,
) *Service {
	return &Service{
		jobs:      jobs,
		runs:      runs,
		approvals: approvals,
		chats:     chats,
		accounts:  accounts,
		bus:       bus,
		logger:    logger,
	}
}

// Create creates a job. Jobs attached to a chat emit a create event routed
// to that chat's platform; detached jobs are internal and emit nothing.
func (s *Service) Create(ctx context.Context, req models.CreateJobRequest) (*models.Job, error) {
	ctx, span := tracing.StartSpan(ctx, "jobs.Service.Create")
	defer span.End()

	var chat *models.Chat
	if req.ChatID != nil {
		var err error
		chat, err = s.chats.GetByID(ctx, *req.ChatID)
		if err != nil {
			return nil, err
		}
	}
	if req.ParentID != nil {
		if _, err := s.jobs.Get(ctx, *req.ParentID); err != nil {
			return nil, err
		}
	}

	job := &models.Job{
		ParentID:    req.ParentID,
		ChatID:      req.ChatID,
		MessageID:   req.MessageID,
		Kind:        req.Kind,
		Name:        req.Name,
		Title:       req.Title,
		Description: req.Description,
	}
	if req.Entity != nil {
		job.Entities = entities.Put(nil, *req.Entity)
	}

	created, err := s.jobs.Create(ctx, job)
	if err != nil {
		return nil, err
	}

	if chat != nil {
		s.publish(ctx, events.NewEnvelope(events.CategoryJob, events.ActionCreate, chat.SourceType, chat.TenantID, created))
	}
	return created, nil
}

// Get retrieves a job
func (s *Service) Get(ctx context.Context, jobID string) (*models.Job, error) {
	return s.jobs.Get(ctx, jobID)
}

// ListByChat retrieves a chat's jobs
func (s *Service) ListByChat(ctx context.Context, chatID string) ([]models.Job, error) {
	return s.jobs.ListByChat(ctx, chatID)
}

// StartRun begins a new execution attempt. Every required approval must be
// approved first; a blocked job fails with 412 rather than silently queueing.
func (s *Service) StartRun(ctx context.Context, jobID string) (*models.Run, error) {
	ctx, span := tracing.StartSpan(ctx, "jobs.Service.StartRun")
	defer span.End()

	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	blocking, err := s.approvals.CountBlocking(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if blocking > 0 {
		return nil, httperror.NewHTTPError(http.StatusPreconditionFailed, fmt.Sprintf("job %s has %d unapproved required approvals", jobID, blocking))
	}

	run, err := s.runs.Create(ctx, &models.Run{JobID: jobID})
	if err != nil {
		return nil, err
	}
	if err := s.jobs.SetLastRun(ctx, jobID, run.ID); err != nil {
		return nil, err
	}

	s.publishForJob(ctx, job, events.CategoryRun, events.ActionCreate, run)
	s.logger.WithContext(ctx).WithFields(map[string]any{"job_id": jobID, "run_id": run.ID}).Info("Started run")
	return run, nil
}

// FinishRun moves a run to a terminal status. Finishing twice is a conflict;
// historical runs are never rewritten.
func (s *Service) FinishRun(ctx context.Context, runID string, status models.RunStatus, statusMessage *string) (*models.Run, error) {
	ctx, span := tracing.StartSpan(ctx, "jobs.Service.FinishRun")
	defer span.End()

	run, err := s.runs.Finish(ctx, runID, status, statusMessage)
	if err != nil {
		return nil, err
	}

	job, err := s.jobs.Get(ctx, run.JobID)
	if err != nil {
		return nil, err
	}

	metrics.RecordRunFinished(string(status))
	s.publishForJob(ctx, job, events.CategoryRun, events.ActionUpdate, run)
	return run, nil
}

// Resume signals an async job to continue after external input arrived
func (s *Service) Resume(ctx context.Context, jobID string) (*models.Job, error) {
	ctx, span := tracing.StartSpan(ctx, "jobs.Service.Resume")
	defer span.End()

	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Kind != models.JobKindAsync {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("job %s is %s, only async jobs resume", jobID, job.Kind))
	}

	s.publishForJob(ctx, job, events.CategoryJob, events.ActionResume, job)
	return job, nil
}

// RequireApproval places a consent gate on a job. Re-requiring an existing
// gate is a no-op.
func (s *Service) RequireApproval(ctx context.Context, jobID, accountID string, required bool) (*models.Approval, error) {
	ctx, span := tracing.StartSpan(ctx, "jobs.Service.RequireApproval")
	defer span.End()

	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := s.checkAccount(ctx, job, accountID); err != nil {
		return nil, err
	}

	approval, err := s.approvals.Create(ctx, &models.Approval{
		JobID:     jobID,
		AccountID: accountID,
		Required:  required,
	})
	if err != nil {
		return nil, err
	}

	s.publishForJob(ctx, job, events.CategoryApproval, events.ActionCreate, approval)
	return approval, nil
}

// DecideApproval records an account's decision. The gate transitions exactly
// once; deciding a decided gate is a conflict.
func (s *Service) DecideApproval(ctx context.Context, jobID, accountID string, status models.ApprovalStatus) (*models.Approval, error) {
	ctx, span := tracing.StartSpan(ctx, "jobs.Service.DecideApproval")
	defer span.End()

	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	approval, err := s.approvals.Decide(ctx, jobID, accountID, status)
	if err != nil {
		return nil, err
	}

	s.publishForJob(ctx, job, events.CategoryApproval, events.ActionUpdate, approval)
	return approval, nil
}

// ListApprovals retrieves a job's approval gates
func (s *Service) ListApprovals(ctx context.Context, jobID string) ([]models.Approval, error) {
	return s.approvals.ListByJob(ctx, jobID)
}

// checkAccount verifies the approver exists inside the job's tenant. A
// chatless job has no tenant scope to check against.
func (s *Service) checkAccount(ctx context.Context, job *models.Job, accountID string) error {
	if job.ChatID == nil {
		return nil
	}
	chat, err := s.chats.GetByID(ctx, *job.ChatID)
	if err != nil {
		return err
	}
	if _, err := s.accounts.Get(ctx, chat.TenantID, accountID); err != nil {
		if httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == http.StatusNotFound {
			return httperror.NewHTTPError(http.StatusUnauthorized, fmt.Sprintf("account %s is outside job %s's tenant", accountID, job.ID))
		}
		return err
	}
	return nil
}

// publishForJob emits an event routed by the job's chat platform. Detached
// jobs have no platform to notify.
func (s *Service) publishForJob(ctx context.Context, job *models.Job, category events.Category, action events.Action, payload any) {
	if job.ChatID == nil {
		return
	}
	chat, err := s.chats.GetByID(ctx, *job.ChatID)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Errorf("Failed to load chat for job %s event", job.ID)
		return
	}
	s.publish(ctx, events.NewEnvelope(category, action, chat.SourceType, chat.TenantID, payload))
}

func (s *Service) publish(ctx context.Context, env events.Envelope) {
	if err := s.bus.Publish(ctx, env); err != nil {
		s.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish event %s", env.Key)
		return
	}
	metrics.RecordEventPublished(string(env.Type), string(env.Action))
}
