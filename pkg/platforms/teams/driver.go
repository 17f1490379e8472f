package teams

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/drivers"
	"github.com/Ramsey-B/fern/pkg/entities"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Connector is the outbound Teams boundary. The Bot Framework transport
// behind it is deployment-specific.
type Connector interface {
	SendMessage(ctx context.Context, conversationID, text string) (string, error)
	StartTyping(ctx context.Context, conversationID string) error
	PromptSignIn(ctx context.Context, conversationID, userID string) error
}

// Driver handles events routed to the Teams platform
type Driver struct {
	connector Connector
	chats     drivers.ChatReader
	jobs      drivers.JobReader
	registry  *entities.Registry
	logger    ectologger.Logger
}

// NewDriver creates the Teams driver
func NewDriver(connector Connector, chats drivers.ChatReader, jobs drivers.JobReader, registry *entities.Registry, logger ectologger.Logger) *Driver {
	return &Driver{
		connector: connector,
		chats:     chats,
		jobs:      jobs,
		registry:  registry,
		logger:    logger,
	}
}

// SourceType identifies the platform this driver serves
func (d *Driver) SourceType() models.SourceType {
	return models.SourceTypeTeams
}

// Handle produces the Teams side effect for one event. A returned message
// is re-resolved into the store by the dispatcher.
func (d *Driver) Handle(ctx context.Context, env events.Envelope) (*drivers.Result, error) {
	ctx, span := tracing.StartSpan(ctx, "teams.Driver.Handle")
	defer span.End()

	switch env.Type {
	case events.CategoryJob:
		return d.handleJob(ctx, env)
	case events.CategoryRun:
		return d.handleRun(ctx, env)
	case events.CategoryApproval:
		return d.handleApproval(ctx, env)
	case events.CategoryMessage:
		return d.handleMessage(ctx, env)
	default:
		d.logger.WithContext(ctx).Debugf("No Teams side effect for %s", env.Key)
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

	var text string
	switch env.Action {
	case events.ActionCreate:
		text = fmt.Sprintf("**%s** started.", job.Title)
	case events.ActionResume:
		text = fmt.Sprintf("**%s** is resuming.", job.Title)
	default:
		return nil, nil
	}

	return d.post(ctx, chat, text)
}

func (d *Driver) handleRun(ctx context.Context, env events.Envelope) (*drivers.Result, error) {
	run, err := drivers.DecodePayload[models.Run](env)
	if err != nil {
		return nil, err
	}
	job, err := d.jobs.Get(ctx, run.JobID)
	if err != nil {
		return nil, err
	}
	chat, err := d.jobChat(ctx, job)
	if err != nil || chat == nil {
		return nil, err
	}

	if env.Action == events.ActionCreate {
		// A run just started; show activity instead of posting.
		return nil, d.connector.StartTyping(ctx, chat.SourceID)
	}

	// Fetch the run's current status rather than trusting the payload.
	var text string
	switch run.Status {
	case models.RunStatusSuccess:
		text = fmt.Sprintf("**%s** finished.", job.Title)
	case models.RunStatusWarning:
		text = fmt.Sprintf("**%s** finished with warnings: %s", job.Title, statusMessage(run))
	case models.RunStatusError:
		text = fmt.Sprintf("**%s** failed: %s", job.Title, statusMessage(run))
	default:
		return nil, nil
	}

	return d.post(ctx, chat, text)
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

	if env.Action == events.ActionCreate {
		if err := d.connector.PromptSignIn(ctx, chat.SourceID, approval.AccountID); err != nil {
			return nil, err
		}
		return d.post(ctx, chat, fmt.Sprintf("**%s** needs your approval.", job.Title))
	}

	switch approval.Status {
	case models.ApprovalStatusApproved:
		return d.post(ctx, chat, fmt.Sprintf("**%s** was approved.", job.Title))
	case models.ApprovalStatusRejected:
		return d.post(ctx, chat, fmt.Sprintf("**%s** was rejected.", job.Title))
	}
	return nil, nil
}

func (d *Driver) handleMessage(ctx context.Context, env events.Envelope) (*drivers.Result, error) {
	msg, err := drivers.DecodePayload[models.Message](env)
	if err != nil {
		return nil, err
	}

	// Validate the Teams fragment against its registered shape; a mismatch
	// is logged and treated as absence.
	if fragment, ok := entities.Get(msg.Entities, TagMessage); ok {
		if _, err := d.registry.Decode(fragment); err != nil {
			d.logger.WithContext(ctx).WithError(err).Warnf("Message %s carries a malformed %s fragment", msg.ID, TagMessage)
		}
	}

	d.logger.WithContext(ctx).Debugf("Observed Teams message %s in chat %s", msg.ID, msg.ChatID)
	return nil, nil
}

// post sends text to the chat and hands the sent message back for
// re-resolution, so the bot's own messages land in the store too.
func (d *Driver) post(ctx context.Context, chat *models.Chat, text string) (*drivers.Result, error) {
	activityID, err := d.connector.SendMessage(ctx, chat.SourceID, text)
	if err != nil {
		return nil, err
	}

	fragment := entities.MustNew(TagMessage, MessageFragment{ActivityID: activityID})
	return &drivers.Result{
		TenantID: chat.TenantID,
		Message: &models.ObserveMessageRequest{
			ChatID:     chat.ID,
			SourceID:   activityID,
			SourceType: models.SourceTypeTeams,
			Text:       text,
			Entity:     &fragment,
		},
	}, nil
}

// jobChat resolves the chat a job notifies, nil for detached jobs
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

// LogConnector is a Connector that records outbound activity without a Bot
// Framework connection, for local runs and tests.
type LogConnector struct {
	logger ectologger.Logger
}

// NewLogConnector creates a logging connector
func NewLogConnector(logger ectologger.Logger) *LogConnector {
	return &LogConnector{logger: logger}
}

func (c *LogConnector) SendMessage(ctx context.Context, conversationID, text string) (string, error) {
	c.logger.WithContext(ctx).Infof("teams send -> %s: %s", conversationID, text)
	return uuid.New().String(), nil
}

func (c *LogConnector) StartTyping(ctx context.Context, conversationID string) error {
	c.logger.WithContext(ctx).Debugf("teams typing -> %s", conversationID)
	return nil
}

func (c *LogConnector) PromptSignIn(ctx context.Context, conversationID, userID string) error {
	c.logger.WithContext(ctx).Infof("teams sign-in prompt -> %s for %s", conversationID, userID)
	return nil
}
