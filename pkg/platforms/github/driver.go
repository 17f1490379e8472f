package github

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/drivers"
	"github.com/Ramsey-B/fern/pkg/entities"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Connector is the outbound GitHub boundary
type Connector interface {
	CreateComment(ctx context.Context, repoFullName string, issueNumber int, body string) (int64, error)
}

// Driver handles events routed to the GitHub platform
type Driver struct {
	connector Connector
	chats     drivers.ChatReader
	jobs      drivers.JobReader
	registry  *entities.Registry
	logger    ectologger.Logger
}

// NewDriver creates the GitHub driver
func NewDriver(connector Connector, chats drivers.ChatReader, jobs drivers.JobReader, registry *entities.Registry, logger ectologger.Logger) *Driver {
	return &Driver{
		connector: connector,
		chats:     chats,
		jobs:      jobs,
		registry:  registry,
		logger:    logger,
	}
}

func (d *Driver) SourceType() models.SourceType {
	return models.SourceTypeGithub
}

func (d *Driver) Handle(ctx context.Context, env events.Envelope) (*drivers.Result, error) {
	ctx, span := tracing.StartSpan(ctx, "github.Driver.Handle")
	defer span.End()

	switch env.Type {
	case events.CategoryJob:
		return d.handleJob(ctx, env)
	case events.CategoryRun:
		return d.handleRun(ctx, env)
	case events.CategoryApproval:
		return d.handleApproval(ctx, env)
	default:
		d.logger.WithContext(ctx).Debugf("No GitHub side effect for %s", env.Key)
		return nil, nil
	}
}

func (d *Driver) handleJob(ctx context.Context, env events.Envelope) (*drivers.Result, error) {
	job, err := drivers.DecodePayload[models.Job](env)
	if err != nil {
		return nil, err
	}
	chat, err := d.jobChat(ctx, job)
	if err != nil || chat == nil {
		return nil, err
	}

	switch env.Action {
	case events.ActionCreate:
		return d.comment(ctx, chat, fmt.Sprintf("**%s** started.", job.Title))
	case events.ActionResume:
		return d.comment(ctx, chat, fmt.Sprintf("**%s** is resuming.", job.Title))
	}
	return nil, nil
}

func (d *Driver) handleRun(ctx context.Context, env events.Envelope) (*drivers.Result, error) {
	run, err := drivers.DecodePayload[models.Run](env)
	if err != nil {
		return nil, err
	}
	// GitHub has no ephemeral activity surface; only terminal runs comment.
	if env.Action == events.ActionCreate {
		return nil, nil
	}

	job, err := d.jobs.Get(ctx, run.JobID)
	if err != nil {
		return nil, err
	}
	chat, err := d.jobChat(ctx, job)
	if err != nil || chat == nil {
		return nil, err
	}

	switch run.Status {
	case models.RunStatusSuccess:
		return d.comment(ctx, chat, fmt.Sprintf(":white_check_mark: **%s** finished.", job.Title))
	case models.RunStatusWarning:
		return d.comment(ctx, chat, fmt.Sprintf(":warning: **%s** finished with warnings: %s", job.Title, statusMessage(run)))
	case models.RunStatusError:
		return d.comment(ctx, chat, fmt.Sprintf(":x: **%s** failed: %s", job.Title, statusMessage(run)))
	}
	return nil, nil
}

func (d *Driver) handleApproval(ctx context.Context, env events.Envelope) (*drivers.Result, error) {
	approval, err := drivers.DecodePayload[models.Approval](env)
	if err != nil {
		return nil, err
	}
	job, err := d.jobs.Get(ctx, approval.JobID)
	if err != nil {
		return nil, err
	}
	chat, err := d.jobChat(ctx, job)
	if err != nil || chat == nil {
		return nil, err
	}

	switch {
	case env.Action == events.ActionCreate:
		return d.comment(ctx, chat, fmt.Sprintf("**%s** needs approval before it can run.", job.Title))
	case approval.Status == models.ApprovalStatusApproved:
		return d.comment(ctx, chat, fmt.Sprintf("**%s** was approved.", job.Title))
	case approval.Status == models.ApprovalStatusRejected:
		return d.comment(ctx, chat, fmt.Sprintf("**%s** was rejected.", job.Title))
	}
	return nil, nil
}

// comment posts to the issue thread behind the chat and returns the comment
// for re-resolution
func (d *Driver) comment(ctx context.Context, chat *models.Chat, body string) (*drivers.Result, error) {
	location, ok, err := entities.GetAs[ChatFragment](chat.Entities, TagChat)
	if err != nil {
		d.logger.WithContext(ctx).WithError(err).Warnf("Chat %s carries a malformed %s fragment", chat.ID, TagChat)
		ok = false
	}
	if !ok {
		return nil, httperror.NewHTTPError(http.StatusUnprocessableEntity, fmt.Sprintf("chat %s has no GitHub thread location", chat.ID))
	}

	commentID, err := d.connector.CreateComment(ctx, location.RepoFullName, location.IssueNumber, body)
	if err != nil {
		return nil, err
	}

	fragment := entities.MustNew(TagMessage, MessageFragment{CommentID: commentID})
	return &drivers.Result{
		TenantID: chat.TenantID,
		Message: &models.ObserveMessageRequest{
			ChatID:     chat.ID,
			SourceID:   fmt.Sprintf("%d", commentID),
			SourceType: models.SourceTypeGithub,
			Text:       body,
			Entity:     &fragment,
		},
	}, nil
}

func (d *Driver) jobChat(ctx context.Context, job *models.Job) (*models.Chat, error) {
	if job.ChatID == nil {
		return nil, nil
	}
	return d.chats.GetByID(ctx, *job.ChatID)
}

func statusMessage(run *models.Run) string {
	if run.StatusMessage != nil {
		return *run.StatusMessage
	}
	return "no details"
}

// LogConnector records outbound GitHub calls without an API client
type LogConnector struct {
	logger ectologger.Logger
}

// NewLogConnector creates a logging connector
func NewLogConnector(logger ectologger.Logger) *LogConnector {
	return &LogConnector{logger: logger}
}

func (c *LogConnector) CreateComment(ctx context.Context, repoFullName string, issueNumber int, body string) (int64, error) {
	c.logger.WithContext(ctx).Infof("github comment -> %s#%d: %s", repoFullName, issueNumber, body)
	return rand.Int63(), nil
}
