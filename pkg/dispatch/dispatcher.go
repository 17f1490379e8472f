// Package dispatch drains the event bus. One worker goroutine per category
// polls its queue, appends an audit row for every event, routes the event to
// its platform driver, and dead-letters whatever fails so the queue keeps
// moving.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/drivers"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// DefaultPollTimeout bounds each queue poll so workers notice stop requests.
const DefaultPollTimeout = 500 * time.Millisecond

// AuditWriter appends audit rows for dispatched events
type AuditWriter interface {
	Create(ctx context.Context, log *models.Log) (*models.Log, error)
}

// DeadLetterer receives events whose dispatch failed
type DeadLetterer interface {
	Add(ctx context.Context, entry *redis.DLQEntry) (string, error)
}

// MessageResolver folds driver-produced messages back into the store
type MessageResolver interface {
	ObserveMessage(ctx context.Context, tenantID string, req models.ObserveMessageRequest) (*models.Message, error)
}

// Config holds dispatcher tuning
type Config struct {
	// PollTimeout is how long a worker blocks per poll
	PollTimeout time.Duration
}

// Dispatcher runs the event workers
type Dispatcher struct {
	bus      *events.Bus
	table    *drivers.Table
	audit    AuditWriter
	dlq      DeadLetterer
	resolver MessageResolver
	config   Config
	logger   ectologger.Logger

	stopCh   chan struct{}
	stoppedC chan struct{}

	running bool
	mu      sync.RWMutex
}

// NewDispatcher creates a dispatcher over the bus and routing table
func NewDispatcher(
	bus *events.Bus,
	table *drivers.Table,
	audit AuditWriter,
	dlq DeadLetterer,
	resolver MessageResolver,
	config Config,
	logger ectologger.Logger,
) *Dispatcher {
	if config.PollTimeout <= 0 {
		config.PollTimeout = DefaultPollTimeout
	}

	return &Dispatcher{
		bus:      bus,
		table:    table,
		audit:    audit,
		dlq:      dlq,
		resolver: resolver,
		config:   config,
		logger:   logger,
		stopCh:   make(chan struct{}),
		stoppedC: make(chan struct{}),
	}
}

// Start launches one worker per event category
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return errors.New("dispatcher already running")
	}
	d.running = true
	d.mu.Unlock()

	categories := events.Categories()
	d.logger.WithContext(ctx).Infof("Starting dispatcher: %d category workers", len(categories))

	var wg sync.WaitGroup
	for _, cat := range categories {
		wg.Add(1)
		go d.worker(ctx, &wg, cat)
	}

	go func() {
		wg.Wait()
		close(d.stoppedC)
	}()

	return nil
}

// Stop drains the workers gracefully
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.mu.Unlock()

	d.logger.WithContext(ctx).Info("Stopping dispatcher...")
	close(d.stopCh)

	select {
	case <-d.stoppedC:
		d.logger.WithContext(ctx).Info("Dispatcher stopped gracefully")
		return nil
	case <-ctx.Done():
		d.logger.WithContext(ctx).Warn("Dispatcher shutdown timed out")
		return ctx.Err()
	}
}

// IsRunning reports whether workers are active
func (d *Dispatcher) IsRunning() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

// worker drains one category queue until stopped
func (d *Dispatcher) worker(ctx context.Context, wg *sync.WaitGroup, category events.Category) {
	defer wg.Done()

	d.logger.WithContext(ctx).Debugf("Dispatch worker started for %s", category)

	for {
		select {
		case <-d.stopCh:
			d.logger.WithContext(ctx).Debugf("Dispatch worker stopping for %s", category)
			return
		default:
		}

		env, err := d.bus.Poll(ctx, category, d.config.PollTimeout)
		if err != nil {
			if errors.Is(err, events.ErrBusClosed) || ctx.Err() != nil {
				return
			}
			d.logger.WithContext(ctx).WithError(err).Warnf("Failed to poll %s queue", category)
			time.Sleep(time.Second)
			continue
		}

		metrics.QueueDepth.WithLabelValues(string(category)).Set(float64(d.bus.Depth(category)))
		if env == nil {
			continue
		}

		d.Handle(ctx, *env)
	}
}

// Handle processes one envelope: audit, route, execute, re-resolve. Failures
// are dead-lettered and never stop the worker.
func (d *Dispatcher) Handle(ctx context.Context, env events.Envelope) {
	ctx, span := tracing.StartSpan(ctx, "dispatch.Dispatcher.Handle")
	defer span.End()

	start := time.Now()

	d.writeAudit(ctx, env, models.LogLevelInfo, fmt.Sprintf("event %s received", env.Key))

	driver, err := d.table.Get(env.SourceType)
	if err != nil {
		// A routing gap means a platform shipped events without a driver;
		// make it impossible to miss.
		d.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_key":   env.Key,
			"event_id":    env.ID,
			"source_type": env.SourceType,
		}).Error("Routing gap: event has no driver")
		d.writeAudit(ctx, env, models.LogLevelError, fmt.Sprintf("event %s has no driver for %s", env.Key, env.SourceType))
		d.deadLetter(ctx, env, redis.DLQReasonRoutingGap, err)
		metrics.RecordDispatch(string(env.Type), string(env.SourceType), "routing_gap", time.Since(start).Seconds())
		return
	}

	result, err := driver.Handle(ctx, env)
	if err != nil {
		d.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_key": env.Key,
			"event_id":  env.ID,
		}).Error("Event handler failed")
		d.writeAudit(ctx, env, models.LogLevelError, fmt.Sprintf("event %s failed: %s", env.Key, err.Error()))
		d.deadLetter(ctx, env, redis.DLQReasonHandlerError, err)
		metrics.RecordDispatch(string(env.Type), string(env.SourceType), "error", time.Since(start).Seconds())
		return
	}

	if result != nil && result.Message != nil {
		if _, err := d.resolver.ObserveMessage(ctx, result.TenantID, *result.Message); err != nil {
			// The side effect happened; losing its record is worth a log
			// line, not a dead letter.
			d.logger.WithContext(ctx).WithError(err).Warnf("Failed to resolve message produced by %s", env.Key)
		}
	}

	metrics.RecordDispatch(string(env.Type), string(env.SourceType), "success", time.Since(start).Seconds())
}

func (d *Dispatcher) writeAudit(ctx context.Context, env events.Envelope, level models.LogLevel, text string) {
	log := &models.Log{
		TenantID: env.TenantID,
		Level:    level,
		Type:     string(env.Type),
		TypeID:   &env.ID,
		Text:     text,
	}
	if _, err := d.audit.Create(ctx, log); err != nil {
		d.logger.WithContext(ctx).WithError(err).Warnf("Failed to write audit row for %s", env.Key)
	}
}

func (d *Dispatcher) deadLetter(ctx context.Context, env events.Envelope, reason redis.DeadLetterReason, cause error) {
	entry := &redis.DLQEntry{
		TenantID:     env.TenantID,
		EventKey:     env.Key,
		Event:        &env,
		Reason:       reason,
		ErrorMessage: cause.Error(),
	}
	if _, err := d.dlq.Add(ctx, entry); err != nil {
		d.logger.WithContext(ctx).WithError(err).Errorf("Failed to dead-letter event %s", env.Key)
		return
	}
	metrics.RecordDLQEvent(env.TenantID, string(reason))

	// Surface handler failures on the log queue so drivers can show them.
	// Routing gaps stay off the bus: their source type has no driver, and a
	// derived log event would just gap again.
	if reason == redis.DLQReasonHandlerError && env.Type != events.CategoryLog {
		notice := events.NewEnvelope(events.CategoryLog, events.ActionCreate, env.SourceType, env.TenantID, entry)
		if err := d.bus.Publish(ctx, notice); err != nil {
			d.logger.WithContext(ctx).WithError(err).Warnf("Failed to publish failure notice for %s", env.Key)
		}
	}
}
