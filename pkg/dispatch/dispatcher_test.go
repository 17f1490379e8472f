package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/drivers"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/redis"
)

type stubDriver struct {
	sourceType models.SourceType

	mu      sync.Mutex
	handled []events.Envelope
	result  *drivers.Result
	err     error
}

func (s *stubDriver) SourceType() models.SourceType { return s.sourceType }

func (s *stubDriver) Handle(_ context.Context, env events.Envelope) (*drivers.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handled = append(s.handled, env)
	return s.result, s.err
}

func (s *stubDriver) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handled)
}

type fakeAudit struct {
	mu   sync.Mutex
	logs []models.Log
}

func (f *fakeAudit) Create(_ context.Context, log *models.Log) (*models.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, *log)
	return log, nil
}

func (f *fakeAudit) all() []models.Log {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Log(nil), f.logs...)
}

type fakeDLQ struct {
	mu      sync.Mutex
	entries []redis.DLQEntry
}

func (f *fakeDLQ) Add(_ context.Context, entry *redis.DLQEntry) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, *entry)
	return "stream-id", nil
}

func (f *fakeDLQ) all() []redis.DLQEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]redis.DLQEntry(nil), f.entries...)
}

type fakeResolver struct {
	mu       sync.Mutex
	observed []models.ObserveMessageRequest
	tenants  []string
}

func (f *fakeResolver) ObserveMessage(_ context.Context, tenantID string, req models.ObserveMessageRequest) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observed = append(f.observed, req)
	f.tenants = append(f.tenants, tenantID)
	return &models.Message{ID: "msg-1", ChatID: req.ChatID}, nil
}

type harness struct {
	dispatcher *Dispatcher
	bus        *events.Bus
	teams      *stubDriver
	slack      *stubDriver
	github     *stubDriver
	audit      *fakeAudit
	dlq        *fakeDLQ
	resolver   *fakeResolver
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

	teams := &stubDriver{sourceType: models.SourceTypeTeams}
	slack := &stubDriver{sourceType: models.SourceTypeSlack}
	github := &stubDriver{sourceType: models.SourceTypeGithub}

	table, err := drivers.NewTable(teams, slack, github)
	require.NoError(t, err)

	bus := events.NewBus(16, logger)
	audit := &fakeAudit{}
	dlq := &fakeDLQ{}
	resolver := &fakeResolver{}

	dispatcher := NewDispatcher(bus, table, audit, dlq, resolver, Config{PollTimeout: 10 * time.Millisecond}, logger)

	return &harness{
		dispatcher: dispatcher,
		bus:        bus,
		teams:      teams,
		slack:      slack,
		github:     github,
		audit:      audit,
		dlq:        dlq,
		resolver:   resolver,
	}
}

func TestHandleWritesAuditRowAndRoutes(t *testing.T) {
	h := newHarness(t)
	env := events.NewEnvelope(events.CategoryMessage, events.ActionCreate, models.SourceTypeTeams, "tenant-1", models.Message{ID: "msg-1"})

	h.dispatcher.Handle(context.Background(), env)

	assert.Equal(t, 1, h.teams.count())
	assert.Zero(t, h.slack.count())

	logs := h.audit.all()
	require.Len(t, logs, 1)
	assert.Equal(t, "tenant-1", logs[0].TenantID)
	assert.Equal(t, models.LogLevelInfo, logs[0].Level)
	assert.Equal(t, "message", logs[0].Type)
	require.NotNil(t, logs[0].TypeID)
	assert.Equal(t, env.ID, *logs[0].TypeID)
	assert.Contains(t, logs[0].Text, "teams.message.create")

	assert.Empty(t, h.dlq.all())
}

func TestHandleRoutingGapDeadLetters(t *testing.T) {
	h := newHarness(t)
	env := events.NewEnvelope(events.CategoryMessage, events.ActionCreate, models.SourceType("discord"), "tenant-1", models.Message{ID: "msg-1"})

	h.dispatcher.Handle(context.Background(), env)

	assert.Zero(t, h.teams.count())
	assert.Zero(t, h.slack.count())
	assert.Zero(t, h.github.count())

	entries := h.dlq.all()
	require.Len(t, entries, 1)
	assert.Equal(t, redis.DLQReasonRoutingGap, entries[0].Reason)
	assert.Equal(t, "discord.message.create", entries[0].EventKey)
	require.NotNil(t, entries[0].Event)
	assert.Equal(t, env.ID, entries[0].Event.ID)

	logs := h.audit.all()
	require.Len(t, logs, 2)
	assert.Equal(t, models.LogLevelError, logs[1].Level)
}

func TestHandleHandlerErrorDeadLettersAndContinues(t *testing.T) {
	h := newHarness(t)
	h.slack.err = errors.New("slack api unavailable")

	failing := events.NewEnvelope(events.CategoryJob, events.ActionCreate, models.SourceTypeSlack, "tenant-1", models.Job{ID: "job-1"})
	h.dispatcher.Handle(context.Background(), failing)

	entries := h.dlq.all()
	require.Len(t, entries, 1)
	assert.Equal(t, redis.DLQReasonHandlerError, entries[0].Reason)
	assert.Equal(t, "slack api unavailable", entries[0].ErrorMessage)

	// The failure also lands on the log queue as a notice.
	notice, err := h.bus.Poll(context.Background(), events.CategoryLog, 50*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, notice)
	assert.Equal(t, "slack.log.create", notice.Key)

	// A later event on the same worker path still dispatches.
	h.slack.err = nil
	h.dispatcher.Handle(context.Background(), events.NewEnvelope(events.CategoryJob, events.ActionUpdate, models.SourceTypeSlack, "tenant-1", models.Job{ID: "job-1"}))
	assert.Equal(t, 2, h.slack.count())
	assert.Len(t, h.dlq.all(), 1)
}

func TestHandleFailureAfterBusCloseStillDeadLetters(t *testing.T) {
	h := newHarness(t)
	h.bus.Close()
	h.slack.err = errors.New("slack api unavailable")

	// A failure during shutdown cannot publish its notice anymore, but the
	// dead letter and audit rows must still land without crashing the worker.
	env := events.NewEnvelope(events.CategoryJob, events.ActionCreate, models.SourceTypeSlack, "tenant-1", models.Job{ID: "job-1"})
	h.dispatcher.Handle(context.Background(), env)

	entries := h.dlq.all()
	require.Len(t, entries, 1)
	assert.Equal(t, redis.DLQReasonHandlerError, entries[0].Reason)

	logs := h.audit.all()
	require.Len(t, logs, 2)
	assert.Equal(t, models.LogLevelError, logs[1].Level)
}

func TestHandleResolvesProducedMessage(t *testing.T) {
	h := newHarness(t)
	h.teams.result = &drivers.Result{
		TenantID: "tenant-1",
		Message: &models.ObserveMessageRequest{
			ChatID:     "chat-1",
			SourceID:   "activity-9",
			SourceType: models.SourceTypeTeams,
			Text:       "**Deploy** finished.",
		},
	}

	env := events.NewEnvelope(events.CategoryRun, events.ActionUpdate, models.SourceTypeTeams, "tenant-1", models.Run{ID: "run-1"})
	h.dispatcher.Handle(context.Background(), env)

	require.Len(t, h.resolver.observed, 1)
	assert.Equal(t, "activity-9", h.resolver.observed[0].SourceID)
	assert.Equal(t, []string{"tenant-1"}, h.resolver.tenants)
	assert.Empty(t, h.dlq.all())
}

func TestStartDrainsQueues(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		env := events.NewEnvelope(events.CategoryMessage, events.ActionCreate, models.SourceTypeTeams, "tenant-1", models.Message{ID: "msg"})
		require.NoError(t, h.bus.Publish(ctx, env))
	}
	env := events.NewEnvelope(events.CategoryJob, events.ActionCreate, models.SourceTypeGithub, "tenant-2", models.Job{ID: "job-1"})
	require.NoError(t, h.bus.Publish(ctx, env))

	require.NoError(t, h.dispatcher.Start(ctx))
	defer func() {
		stopCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		require.NoError(t, h.dispatcher.Stop(stopCtx))
	}()

	assert.Eventually(t, func() bool {
		return h.teams.count() == 5 && h.github.count() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestStartTwiceFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.dispatcher.Start(ctx))
	assert.Error(t, h.dispatcher.Start(ctx))
	assert.True(t, h.dispatcher.IsRunning())

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, h.dispatcher.Stop(stopCtx))
	assert.False(t, h.dispatcher.IsRunning())
}
