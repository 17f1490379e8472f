package jobs

import (
	"context"

	"github.com/Ramsey-B/fern/internal/repositories/jobrun"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/models"
)

// JobRepo defines the job persistence operations the service needs
type JobRepo interface {
	Create(ctx context.Context, job *models.Job) (*models.Job, error)
	Get(ctx context.Context, id string) (*models.Job, error)
	Update(ctx context.Context, job *models.Job) (*models.Job, error)
	SetLastRun(ctx context.Context, jobID, runID string) error
	ListByChat(ctx context.Context, chatID string) ([]models.Job, error)
}

// RunRepo defines the run persistence operations the service needs
type RunRepo interface {
	Create(ctx context.Context, run *models.Run) (*models.Run, error)
	Get(ctx context.Context, id string) (*models.Run, error)
	Finish(ctx context.Context, id string, status models.RunStatus, statusMessage *string) (*models.Run, error)
	ListByJob(ctx context.Context, jobID string) ([]models.Run, error)
	CountByStatus(ctx context.Context, jobID string) ([]jobrun.StatusCount, error)
}

// ApprovalRepo defines the approval persistence operations the service needs
type ApprovalRepo interface {
	Create(ctx context.Context, approval *models.Approval) (*models.Approval, error)
	Get(ctx context.Context, jobID, accountID string) (*models.Approval, error)
	Decide(ctx context.Context, jobID, accountID string, status models.ApprovalStatus) (*models.Approval, error)
	ListByJob(ctx context.Context, jobID string) ([]models.Approval, error)
	CountBlocking(ctx context.Context, jobID string) (int, error)
}

// ChatRepo is the read side of chats the service uses to scope jobs and
// derive the platform a job event routes to
type ChatRepo interface {
	GetByID(ctx context.Context, id string) (*models.Chat, error)
}

// AccountRepo is the read side of accounts the service uses for approvals
type AccountRepo interface {
	Get(ctx context.Context, tenantID string, id string) (*models.Account, error)
}

// Publisher is the outbound side of the event bus
type Publisher interface {
	Publish(ctx context.Context, env events.Envelope) error
}
