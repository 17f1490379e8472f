// Package resolve implements identity resolution: every observation of an
// external tenant, account, chat, or message funnels through GetOrCreate
// keyed on the record's natural key. Callers never write records directly.
package resolve

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/entities"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// DefaultRetryAttempts bounds the insert-conflict retry loop.
const DefaultRetryAttempts = 3

// Resolver is the only mutation path into the identity store. Lookups and
// writes race freely; the unique constraints underneath serialize them, and
// a losing insert is retried as an update.
type Resolver struct {
	tenants  TenantRepo
	accounts AccountRepo
	chats    ChatRepo
	messages MessageRepo
	bus      Publisher
	logger   ectologger.Logger
	attempts int
}

// NewResolver creates a resolver over the four identity repositories
func NewResolver(
	tenants TenantRepo,
	accounts AccountRepo,
	chats ChatRepo,
	messages MessageRepo,
	bus Publisher,
	attempts int,
	logger ectologger.Logger,
) *Resolver {
	if attempts <= 0 {
		attempts = DefaultRetryAttempts
	}
	return &Resolver{
		tenants:  tenants,
		accounts: accounts,
		chats:    chats,
		messages: messages,
		bus:      bus,
		logger:   logger,
		attempts: attempts,
	}
}

// ObserveTenant resolves a tenant by the observed source. The first
// observation through a new source creates the tenant; later observations
// merge into it. Linking a source already owned by another tenant is a
// conflict.
func (r *Resolver) ObserveTenant(ctx context.Context, req models.ObserveTenantRequest) (*models.Tenant, error) {
	ctx, span := tracing.StartSpan(ctx, "resolve.Resolver.ObserveTenant")
	defer span.End()

	if !req.Source.Type.Valid() {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown source type %q", req.Source.Type))
	}

	for attempt := 0; attempt < r.attempts; attempt++ {
		existing, err := r.tenants.GetBySource(ctx, req.Source.ID, req.Source.Type)
		if err != nil {
			return nil, err
		}

		if existing == nil {
			tenant := &models.Tenant{
				Name:    req.Name,
				Sources: models.SourceList{req.Source},
			}
			if req.Entity != nil {
				tenant.Entities = entities.Put(nil, *req.Entity)
			}

			created, err := r.tenants.Create(ctx, tenant)
			if err != nil {
				if isResolutionConflict(err) {
					metrics.RecordConflictRetry(string(events.CategoryTenant))
					continue
				}
				return nil, err
			}

			metrics.RecordResolution(string(events.CategoryTenant), "created")
			r.publish(ctx, events.NewEnvelope(events.CategoryTenant, events.ActionCreate, req.Source.Type, created.ID, created))
			return created, nil
		}

		merged, changed := mergeTenant(existing, req)
		if !changed {
			metrics.RecordResolution(string(events.CategoryTenant), "noop")
			return existing, nil
		}

		updated, err := r.tenants.Update(ctx, merged)
		if err != nil {
			return nil, err
		}

		metrics.RecordResolution(string(events.CategoryTenant), "updated")
		r.publish(ctx, events.NewEnvelope(events.CategoryTenant, events.ActionUpdate, req.Source.Type, updated.ID, updated))
		return updated, nil
	}

	return nil, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("tenant resolution for source %s/%s kept conflicting", req.Source.Type, req.Source.ID))
}

// AddTenantSource links one more source to an existing tenant. Re-linking a
// source the tenant already has is a no-op.
func (r *Resolver) AddTenantSource(ctx context.Context, tenantID string, source models.Source) (*models.Tenant, error) {
	ctx, span := tracing.StartSpan(ctx, "resolve.Resolver.AddTenantSource")
	defer span.End()

	if !source.Type.Valid() {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown source type %q", source.Type))
	}

	inserted, err := r.tenants.AddSource(ctx, tenantID, source)
	if err != nil {
		return nil, err
	}

	tenant, err := r.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if inserted {
		r.publish(ctx, events.NewEnvelope(events.CategoryTenant, events.ActionUpdate, source.Type, tenant.ID, tenant))
	}
	return tenant, nil
}

// ObserveAccount resolves an account by (tenant_id, source_id, source_type).
// The same external user seen through two platforms is two accounts.
func (r *Resolver) ObserveAccount(ctx context.Context, req models.ObserveAccountRequest) (*models.Account, error) {
	ctx, span := tracing.StartSpan(ctx, "resolve.Resolver.ObserveAccount")
	defer span.End()

	if !req.SourceType.Valid() {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown source type %q", req.SourceType))
	}
	if _, err := r.tenants.Get(ctx, req.TenantID); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < r.attempts; attempt++ {
		existing, err := r.accounts.GetByNaturalKey(ctx, req.TenantID, req.SourceID, req.SourceType)
		if err != nil {
			return nil, err
		}

		if existing == nil {
			account := &models.Account{
				TenantID:   req.TenantID,
				SourceID:   req.SourceID,
				SourceType: req.SourceType,
				URL:        req.URL,
				Name:       req.Name,
			}
			if req.Entity != nil {
				account.Entities = entities.Put(nil, *req.Entity)
			}

			created, err := r.accounts.Create(ctx, account)
			if err != nil {
				if database.IsUniqueViolation(err) {
					metrics.RecordConflictRetry(string(events.CategoryAccount))
					continue
				}
				return nil, err
			}

			metrics.RecordResolution(string(events.CategoryAccount), "created")
			r.publish(ctx, events.NewEnvelope(events.CategoryAccount, events.ActionCreate, created.SourceType, created.TenantID, created))
			return created, nil
		}

		merged, changed := mergeAccount(existing, req)
		if !changed {
			metrics.RecordResolution(string(events.CategoryAccount), "noop")
			return existing, nil
		}

		updated, err := r.accounts.Update(ctx, merged)
		if err != nil {
			return nil, err
		}

		metrics.RecordResolution(string(events.CategoryAccount), "updated")
		r.publish(ctx, events.NewEnvelope(events.CategoryAccount, events.ActionUpdate, updated.SourceType, updated.TenantID, updated))
		return updated, nil
	}

	return nil, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("account resolution for %s/%s kept conflicting", req.SourceType, req.SourceID))
}

// ObserveChat resolves a chat by (tenant_id, source_id, source_type)
func (r *Resolver) ObserveChat(ctx context.Context, req models.ObserveChatRequest) (*models.Chat, error) {
	ctx, span := tracing.StartSpan(ctx, "resolve.Resolver.ObserveChat")
	defer span.End()

	if !req.SourceType.Valid() {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown source type %q", req.SourceType))
	}
	if _, err := r.tenants.Get(ctx, req.TenantID); err != nil {
		return nil, err
	}
	if req.ParentID != nil {
		if _, err := r.chats.Get(ctx, req.TenantID, *req.ParentID); err != nil {
			return nil, err
		}
	}

	for attempt := 0; attempt < r.attempts; attempt++ {
		existing, err := r.chats.GetByNaturalKey(ctx, req.TenantID, req.SourceID, req.SourceType)
		if err != nil {
			return nil, err
		}

		if existing == nil {
			chat := &models.Chat{
				TenantID:   req.TenantID,
				ParentID:   req.ParentID,
				SourceID:   req.SourceID,
				SourceType: req.SourceType,
				Type:       req.Type,
				Name:       req.Name,
			}
			if req.Entity != nil {
				chat.Entities = entities.Put(nil, *req.Entity)
			}

			created, err := r.chats.Create(ctx, chat)
			if err != nil {
				if database.IsUniqueViolation(err) {
					metrics.RecordConflictRetry(string(events.CategoryChat))
					continue
				}
				return nil, err
			}

			metrics.RecordResolution(string(events.CategoryChat), "created")
			r.publish(ctx, events.NewEnvelope(events.CategoryChat, events.ActionCreate, created.SourceType, created.TenantID, created))
			return created, nil
		}

		merged, changed := mergeChat(existing, req)
		if !changed {
			metrics.RecordResolution(string(events.CategoryChat), "noop")
			return existing, nil
		}

		updated, err := r.chats.Update(ctx, merged)
		if err != nil {
			return nil, err
		}

		metrics.RecordResolution(string(events.CategoryChat), "updated")
		r.publish(ctx, events.NewEnvelope(events.CategoryChat, events.ActionUpdate, updated.SourceType, updated.TenantID, updated))
		return updated, nil
	}

	return nil, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("chat resolution for %s/%s kept conflicting", req.SourceType, req.SourceID))
}

// ObserveMessage resolves a message by (chat_id, source_id, source_type)
func (r *Resolver) ObserveMessage(ctx context.Context, tenantID string, req models.ObserveMessageRequest) (*models.Message, error) {
	ctx, span := tracing.StartSpan(ctx, "resolve.Resolver.ObserveMessage")
	defer span.End()

	if !req.SourceType.Valid() {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown source type %q", req.SourceType))
	}

	chat, err := r.chats.Get(ctx, tenantID, req.ChatID)
	if err != nil {
		return nil, err
	}
	if req.AccountID != nil {
		if _, err := r.accounts.Get(ctx, chat.TenantID, *req.AccountID); err != nil {
			return nil, err
		}
	}

	for attempt := 0; attempt < r.attempts; attempt++ {
		existing, err := r.messages.GetByNaturalKey(ctx, req.ChatID, req.SourceID, req.SourceType)
		if err != nil {
			return nil, err
		}

		if existing == nil {
			msg := &models.Message{
				ChatID:     req.ChatID,
				AccountID:  req.AccountID,
				ReplyToID:  req.ReplyToID,
				SourceID:   req.SourceID,
				SourceType: req.SourceType,
				Text:       req.Text,
			}
			if req.Entity != nil {
				msg.Entities = entities.Put(nil, *req.Entity)
			}

			created, err := r.messages.Create(ctx, msg)
			if err != nil {
				if database.IsUniqueViolation(err) {
					metrics.RecordConflictRetry(string(events.CategoryMessage))
					continue
				}
				return nil, err
			}

			metrics.RecordResolution(string(events.CategoryMessage), "created")
			r.publish(ctx, events.NewEnvelope(events.CategoryMessage, events.ActionCreate, created.SourceType, chat.TenantID, created))
			return created, nil
		}

		merged, changed := mergeMessage(existing, req)
		if !changed {
			metrics.RecordResolution(string(events.CategoryMessage), "noop")
			return existing, nil
		}

		updated, err := r.messages.Update(ctx, merged)
		if err != nil {
			return nil, err
		}

		metrics.RecordResolution(string(events.CategoryMessage), "updated")
		r.publish(ctx, events.NewEnvelope(events.CategoryMessage, events.ActionUpdate, updated.SourceType, chat.TenantID, updated))
		return updated, nil
	}

	return nil, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("message resolution for %s/%s kept conflicting", req.SourceType, req.SourceID))
}

// publish emits an outbound event. Resolution already committed; a full bus
// is a back-pressure problem, not a reason to fail the caller's write.
func (r *Resolver) publish(ctx context.Context, env events.Envelope) {
	if err := r.bus.Publish(ctx, env); err != nil {
		r.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish event %s", env.Key)
		return
	}
	metrics.RecordEventPublished(string(env.Type), string(env.Action))
}

// isResolutionConflict reports whether an error from a create should be
// retried as a lookup-and-update.
func isResolutionConflict(err error) bool {
	if database.IsUniqueViolation(err) {
		return true
	}
	return httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == http.StatusConflict
}
