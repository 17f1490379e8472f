package slack

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/drivers"
	"github.com/Ramsey-B/fern/pkg/entities"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Connector is the outbound Slack boundary. PostMessage returns the message
// ts, Slack's message identity within a channel.
type Connector interface {
	PostMessage(ctx context.Context, channelID, threadTS, text string) (string, error)
	AddReaction(ctx context.Context, channelID, ts, emoji string) error
}

// Driver handles events routed to the Slack platform
type Driver struct {
	connector Connector
	chats     drivers.ChatReader
	jobs      drivers.JobReader
	registry  *entities.Registry
	logger    ectologger.Logger
}

// NewDriver creates the Slack driver
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
	return models.SourceTypeSlack
}

func (d *Driver) Handle(ctx context.Context, env events.Envelope) (*drivers.Result, error) {
	ctx, span := tracing.StartSpan(ctx, "slack.Driver.Handle")
	defer span.End()

	switch env.Type {
	case events.CategoryJob:
		return d.handleJob(ctx, env)
	case events.CategoryRun:
		return d.handleRun(ctx, env)
	case events.CategoryApproval:
		return d.handleApproval(ctx, env)
	default:
		d.logger.WithContext(ctx).Debugf("No Slack side effect for %s", env.Key)
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
		return d.post(ctx, chat, fmt.Sprintf(":rocket: *%s* started", job.Title))
	case events.ActionResume:
		return d.post(ctx, chat, fmt.Sprintf(":arrows_counterclockwise: *%s* is resuming", job.Title))
	}
	return nil, nil
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
		// Slack has no typing indicator for bots; acknowledge with a
		// reaction on the triggering message when we know it.
		if job.MessageID != nil {
			ts := d.threadTS(ctx, chat)
			if ts != "" {
				return nil, d.connector.AddReaction(ctx, chat.SourceID, ts, "hourglass_flowing_sand")
			}
		}
		return nil, nil
	}

	switch run.Status {
	case models.RunStatusSuccess:
		return d.post(ctx, chat, fmt.Sprintf(":white_check_mark: *%s* finished", job.Title))
	case models.RunStatusWarning:
		return d.post(ctx, chat, fmt.Sprintf(":warning: *%s* finished with warnings: %s", job.Title, statusMessage(run)))
	case models.RunStatusError:
		return d.post(ctx, chat, fmt.Sprintf(":x: *%s* failed: %s", job.Title, statusMessage(run)))
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
		return d.post(ctx, chat, fmt.Sprintf(":lock: *%s* needs approval from <@%s>", job.Title, approval.AccountID))
	case approval.Status == models.ApprovalStatusApproved:
		return d.post(ctx, chat, fmt.Sprintf(":unlock: *%s* was approved", job.Title))
	case approval.Status == models.ApprovalStatusRejected:
		return d.post(ctx, chat, fmt.Sprintf(":no_entry: *%s* was rejected", job.Title))
	}
	return nil, nil
}

func (d *Driver) post(ctx context.Context, chat *models.Chat, text string) (*drivers.Result, error) {
	threadTS := d.threadTS(ctx, chat)

	ts, err := d.connector.PostMessage(ctx, channelID(chat), threadTS, text)
	if err != nil {
		return nil, err
	}

	fragment := entities.MustNew(TagMessage, MessageFragment{TS: ts, ThreadTS: threadTS})
	return &drivers.Result{
		TenantID: chat.TenantID,
		Message: &models.ObserveMessageRequest{
			ChatID:     chat.ID,
			SourceID:   ts,
			SourceType: models.SourceTypeSlack,
			Text:       text,
			Entity:     &fragment,
		},
	}, nil
}

// threadTS extracts the thread anchor for threaded chats. A thread chat's
// message fragment carries the ts replies should attach to.
func (d *Driver) threadTS(ctx context.Context, chat *models.Chat) string {
	fragment, ok, err := entities.GetAs[MessageFragment](chat.Entities, TagMessage)
	if err != nil {
		d.logger.WithContext(ctx).WithError(err).Warnf("Chat %s carries a malformed %s fragment", chat.ID, TagMessage)
		return ""
	}
	if !ok {
		return ""
	}
	return fragment.ThreadTS
}

// channelID prefers the channel id fragment over the raw source id, which
// for thread chats encodes channel and ts together.
func channelID(chat *models.Chat) string {
	fragment, ok, err := entities.GetAs[ChatFragment](chat.Entities, TagChat)
	if err == nil && ok && fragment.ChannelID != "" {
		return fragment.ChannelID
	}
	return chat.SourceID
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

// LogConnector records outbound Slack calls without a web API client
type LogConnector struct {
	logger ectologger.Logger
}

// NewLogConnector creates a logging connector
func NewLogConnector(logger ectologger.Logger) *LogConnector {
	return &LogConnector{logger: logger}
}

func (c *LogConnector) PostMessage(ctx context.Context, channelID, threadTS, text string) (string, error) {
	c.logger.WithContext(ctx).Infof("slack post -> %s (thread %s): %s", channelID, threadTS, text)
	return fmt.Sprintf("%d.000000", time.Now().Unix()), nil
}

func (c *LogConnector) AddReaction(ctx context.Context, channelID, ts, emoji string) error {
	c.logger.WithContext(ctx).Debugf("slack react -> %s %s :%s:", channelID, ts, emoji)
	return nil
}
