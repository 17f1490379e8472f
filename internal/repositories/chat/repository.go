package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/entities"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Repository handles chat persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new chat repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new chat. A unique violation on
// (tenant_id, source_id, source_type) surfaces as-is so resolution can
// retry as an update.
func (r *Repository) Create(ctx context.Context, chat *models.Chat) (*models.Chat, error) {
	ctx, span := tracing.StartSpan(ctx, "chat.Repository.Create")
	defer span.End()

	if chat.ID == "" {
		chat.ID = uuid.New().String()
	}
	chat.CreatedAt = time.Now().UTC()
	chat.UpdatedAt = chat.CreatedAt
	if chat.Entities == nil {
		chat.Entities = entities.List{}
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("chats")
	sb.Cols("id", "tenant_id", "parent_id", "source_id", "source_type", "type", "name", "entities", "created_at", "updated_at")
	sb.Values(chat.ID, chat.TenantID, chat.ParentID, chat.SourceID, chat.SourceType, chat.Type, chat.Name, chat.Entities, chat.CreatedAt, chat.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, err
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create chat")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create chat")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": chat.ID, "tenant_id": chat.TenantID}).Info("Created chat")
	return chat, nil
}

// Get retrieves a chat by ID within a tenant
func (r *Repository) Get(ctx context.Context, tenantID string, id string) (*models.Chat, error) {
	ctx, span := tracing.StartSpan(ctx, "chat.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "parent_id", "source_id", "source_type", "type", "name", "entities", "created_at", "updated_at")
	sb.From("chats")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var chat models.Chat
	if err := r.db.GetContext(ctx, &chat, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("chat %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get chat")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get chat")
	}

	return &chat, nil
}

// GetByID retrieves a chat by ID alone, for callers that scope through the
// chat rather than the tenant (jobs, dispatch)
func (r *Repository) GetByID(ctx context.Context, id string) (*models.Chat, error) {
	ctx, span := tracing.StartSpan(ctx, "chat.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "parent_id", "source_id", "source_type", "type", "name", "entities", "created_at", "updated_at")
	sb.From("chats")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var chat models.Chat
	if err := r.db.GetContext(ctx, &chat, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("chat %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get chat")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get chat")
	}

	return &chat, nil
}

// GetByNaturalKey looks up a chat by (tenant_id, source_id, source_type).
// Returns nil when no chat matches.
func (r *Repository) GetByNaturalKey(ctx context.Context, tenantID, sourceID string, sourceType models.SourceType) (*models.Chat, error) {
	ctx, span := tracing.StartSpan(ctx, "chat.Repository.GetByNaturalKey")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "parent_id", "source_id", "source_type", "type", "name", "entities", "created_at", "updated_at")
	sb.From("chats")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("source_id", sourceID),
		sb.Equal("source_type", sourceType),
	)

	query, args := sb.Build()
	var chat models.Chat
	if err := r.db.GetContext(ctx, &chat, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get chat by natural key")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get chat")
	}

	return &chat, nil
}

// Update updates a chat's mutable fields (parent, type, name, fragments)
func (r *Repository) Update(ctx context.Context, chat *models.Chat) (*models.Chat, error) {
	ctx, span := tracing.StartSpan(ctx, "chat.Repository.Update")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("chats")
	sb.Set(
		sb.Assign("parent_id", chat.ParentID),
		sb.Assign("type", chat.Type),
		sb.Assign("name", chat.Name),
		sb.Assign("entities", chat.Entities),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", chat.ID),
		sb.Equal("tenant_id", chat.TenantID),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update chat")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update chat")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("chat %s not found", chat.ID))
	}

	return r.Get(ctx, chat.TenantID, chat.ID)
}

// ListByTenant retrieves all chats for a tenant
func (r *Repository) ListByTenant(ctx context.Context, tenantID string) ([]models.Chat, error) {
	ctx, span := tracing.StartSpan(ctx, "chat.Repository.ListByTenant")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "parent_id", "source_id", "source_type", "type", "name", "entities", "created_at", "updated_at")
	sb.From("chats")
	sb.Where(sb.Equal("tenant_id", tenantID))
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var chats []models.Chat
	if err := r.db.SelectContext(ctx, &chats, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list chats")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list chats")
	}

	return chats, nil
}
