// Package kafka consumes inbound platform observations. Connectors publish
// what they saw (a workspace, a user, a conversation, an utterance) and the
// consumer folds each observation into the identity store.
package kafka

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Resolver folds observations into the store
type Resolver interface {
	ObserveTenant(ctx context.Context, req models.ObserveTenantRequest) (*models.Tenant, error)
	ObserveAccount(ctx context.Context, req models.ObserveAccountRequest) (*models.Account, error)
	ObserveChat(ctx context.Context, req models.ObserveChatRequest) (*models.Chat, error)
	ObserveMessage(ctx context.Context, tenantID string, req models.ObserveMessageRequest) (*models.Message, error)
}

// Consumer handles Kafka observation consumption
type Consumer struct {
	reader   *kafka.Reader
	resolver Resolver
	logger   ectologger.Logger
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

// NewConsumer creates a new observation consumer
func NewConsumer(cfg config.Config, resolver Resolver, logger ectologger.Logger) *Consumer {
	return NewConsumerWithConfig(ConsumerConfig{
		Brokers:       cfg.KafkaBrokers,
		Topic:         cfg.KafkaInputTopic,
		ConsumerGroup: cfg.KafkaConsumerGroup,
	}, resolver, logger)
}

// ConsumerConfig holds Kafka consumer configuration
type ConsumerConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
}

// NewConsumerWithConfig creates a new observation consumer with explicit config
func NewConsumerWithConfig(cfg ConsumerConfig, resolver Resolver, logger ectologger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        500 * time.Millisecond,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})

	return &Consumer{
		reader:   reader,
		resolver: resolver,
		logger:   logger,
	}
}

// Start begins consuming observations
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.consumeLoop(ctx)

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"topic": c.reader.Config().Topic,
	}).Info("Kafka consumer started")
	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return c.reader.Close()
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			c.logger.WithContext(ctx).Info("Consumer loop stopping")
			return
		default:
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if isShutdown(err) {
					return
				}
				c.logger.WithContext(ctx).WithError(err).Error("Failed to fetch message")
				continue
			}

			c.processMessage(ctx, msg)
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) {
	ctx, span := tracing.StartSpan(ctx, "kafka.Consumer.processMessage")
	defer span.End()

	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	headers := make(map[string]string)
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}

	incoming := &IncomingMessage{
		Key:       string(msg.Key),
		Value:     msg.Value,
		Headers:   headers,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
		Topic:     msg.Topic,
	}

	if err := incoming.ParseObservation(); err != nil {
		log.WithError(err).Error("Failed to parse observation")
		metrics.RecordObservation("unknown", "malformed")
		// Still commit to avoid getting stuck
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			log.WithError(err).Error("Failed to commit message")
		}
		return
	}

	kind := string(incoming.Observation.Kind)
	if err := c.resolve(ctx, incoming); err != nil {
		if isPermanent(err) {
			// A rejected observation never gets better on retry; record it
			// and move on.
			log.WithError(err).Warnf("Observation rejected: kind=%s", kind)
			metrics.RecordObservation(kind, "rejected")
			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				log.WithError(err).Error("Failed to commit message")
			}
			return
		}

		// Do NOT commit on transient failure. At-least-once delivery keeps
		// the observation until resolution succeeds.
		log.WithError(err).Errorf("Failed to resolve observation (not committing): kind=%s", kind)
		metrics.RecordObservation(kind, "error")
		return
	}

	metrics.RecordObservation(kind, "success")
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		log.WithError(err).Error("Failed to commit message")
	}
}

func (c *Consumer) resolve(ctx context.Context, incoming *IncomingMessage) error {
	obs := incoming.Observation

	switch obs.Kind {
	case ObservationTenant:
		req, err := obs.DecodeTenant()
		if err != nil {
			return httperror.WrapError(http.StatusBadRequest, err)
		}
		_, err = c.resolver.ObserveTenant(ctx, *req)
		return err

	case ObservationAccount:
		req, err := obs.DecodeAccount()
		if err != nil {
			return httperror.WrapError(http.StatusBadRequest, err)
		}
		if req.TenantID == "" {
			req.TenantID = incoming.GetTenantID()
		}
		_, err = c.resolver.ObserveAccount(ctx, *req)
		return err

	case ObservationChat:
		req, err := obs.DecodeChat()
		if err != nil {
			return httperror.WrapError(http.StatusBadRequest, err)
		}
		if req.TenantID == "" {
			req.TenantID = incoming.GetTenantID()
		}
		_, err = c.resolver.ObserveChat(ctx, *req)
		return err

	case ObservationMessage:
		req, err := obs.DecodeMessage()
		if err != nil {
			return httperror.WrapError(http.StatusBadRequest, err)
		}
		_, err = c.resolver.ObserveMessage(ctx, incoming.GetTenantID(), *req)
		return err
	}

	return httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown observation kind %q", obs.Kind)
}

// isShutdown reports whether a fetch error means the reader is done rather
// than broken. The reader wraps context errors, so sentinel comparison is not
// enough.
func isShutdown(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF)
}

// isPermanent reports whether the resolution error is a rejection rather
// than an outage. Conflicts retry forever server-side already; everything
// else in the 4xx range is the producer's bug.
func isPermanent(err error) bool {
	if !httperror.IsHTTPError(err) {
		return false
	}
	status := httperror.GetStatusCode(err)
	return status >= 400 && status < 500 && status != http.StatusConflict
}

// Health returns the consumer health status
func (c *Consumer) Health() bool {
	return c.reader != nil
}
