package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func newTestBus(size int) *Bus {
	return NewBus(size, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
}

func TestNewEnvelope_KeyFormat(t *testing.T) {
	env := NewEnvelope(CategoryMessage, ActionCreate, models.SourceTypeTeams, "t1", nil)

	assert.Equal(t, "teams.message.create", env.Key)
	assert.Equal(t, CategoryMessage, env.Type)
	assert.Equal(t, ActionCreate, env.Action)
	assert.NotEmpty(t, env.ID)
	assert.False(t, env.CreatedAt.IsZero())
}

func TestNewEnvelope_WithCreatedBy(t *testing.T) {
	env := NewEnvelope(CategoryJob, ActionResume, models.SourceTypeSlack, "t1", nil).WithCreatedBy("acct-1")

	require.NotNil(t, env.CreatedBy)
	assert.Equal(t, "acct-1", *env.CreatedBy)
	assert.Equal(t, "slack.job.resume", env.Key)
}

func TestBus_PublishAndPoll(t *testing.T) {
	bus := newTestBus(4)
	defer bus.Close()

	ctx := context.Background()
	env := NewEnvelope(CategoryAccount, ActionUpdate, models.SourceTypeGithub, "t1", map[string]string{"id": "a1"})

	require.NoError(t, bus.Publish(ctx, env))

	got, err := bus.Poll(ctx, CategoryAccount, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, env.ID, got.ID)
	assert.Equal(t, "github.account.update", got.Key)
}

func TestBus_PollTimeout(t *testing.T) {
	bus := newTestBus(4)
	defer bus.Close()

	got, err := bus.Poll(context.Background(), CategoryChat, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestBus_PreservesOrderPerCategory(t *testing.T) {
	bus := newTestBus(8)
	defer bus.Close()

	ctx := context.Background()
	first := NewEnvelope(CategoryTenant, ActionCreate, models.SourceTypeTeams, "t1", nil)
	second := NewEnvelope(CategoryTenant, ActionUpdate, models.SourceTypeTeams, "t1", nil)

	require.NoError(t, bus.Publish(ctx, first))
	require.NoError(t, bus.Publish(ctx, second))

	got, err := bus.Poll(ctx, CategoryTenant, time.Second)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	got, err = bus.Poll(ctx, CategoryTenant, time.Second)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
}

func TestBus_UnknownCategory(t *testing.T) {
	bus := newTestBus(4)
	defer bus.Close()

	ctx := context.Background()

	err := bus.Publish(ctx, Envelope{Type: Category("nope")})
	assert.ErrorIs(t, err, ErrUnknownCategory)

	_, err = bus.Poll(ctx, Category("nope"), time.Millisecond)
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestBus_PublishBlocksUntilContextCancel(t *testing.T) {
	bus := newTestBus(1)
	defer bus.Close()

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, NewEnvelope(CategoryLog, ActionCreate, models.SourceTypeTeams, "t1", nil)))

	cancelCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()

	err := bus.Publish(cancelCtx, NewEnvelope(CategoryLog, ActionCreate, models.SourceTypeTeams, "t1", nil))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBus_CloseUnblocksFullQueuePublisher(t *testing.T) {
	bus := newTestBus(1)
	ctx := context.Background()

	queued := NewEnvelope(CategoryLog, ActionCreate, models.SourceTypeTeams, "t1", nil)
	require.NoError(t, bus.Publish(ctx, queued))

	publishErr := make(chan error, 1)
	go func() {
		publishErr <- bus.Publish(ctx, NewEnvelope(CategoryLog, ActionCreate, models.SourceTypeTeams, "t1", nil))
	}()

	// Let the publisher block on the full queue before closing.
	time.Sleep(20 * time.Millisecond)
	bus.Close()

	select {
	case err := <-publishErr:
		assert.ErrorIs(t, err, ErrBusClosed)
	case <-time.After(time.Second):
		t.Fatal("publisher still blocked after Close")
	}

	// The envelope queued before Close still drains.
	got, err := bus.Poll(ctx, CategoryLog, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, queued.ID, got.ID)

	_, err = bus.Poll(ctx, CategoryLog, time.Second)
	assert.ErrorIs(t, err, ErrBusClosed)
}

func TestBus_ConcurrentPublishersDuringClose(t *testing.T) {
	bus := newTestBus(2)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				err := bus.Publish(ctx, NewEnvelope(CategoryMessage, ActionCreate, models.SourceTypeSlack, "t1", nil))
				if err != nil {
					assert.ErrorIs(t, err, ErrBusClosed)
					return
				}
			}
		}()
	}

	go func() {
		for {
			if _, err := bus.Poll(ctx, CategoryMessage, 10*time.Millisecond); err != nil {
				return
			}
		}
	}()

	time.Sleep(20 * time.Millisecond)
	bus.Close()
	wg.Wait()
}

func TestBus_ClosedBus(t *testing.T) {
	bus := newTestBus(4)
	ctx := context.Background()

	env := NewEnvelope(CategoryRun, ActionCreate, models.SourceTypeSlack, "t1", nil)
	require.NoError(t, bus.Publish(ctx, env))

	bus.Close()
	bus.Close() // idempotent

	err := bus.Publish(ctx, NewEnvelope(CategoryRun, ActionUpdate, models.SourceTypeSlack, "t1", nil))
	assert.ErrorIs(t, err, ErrBusClosed)

	// queued envelopes drain after close
	got, err := bus.Poll(ctx, CategoryRun, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, env.ID, got.ID)

	_, err = bus.Poll(ctx, CategoryRun, time.Second)
	assert.ErrorIs(t, err, ErrBusClosed)
}
