package message

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

// Repository handles message persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new message repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new message. A unique violation on
// (chat_id, source_id, source_type) surfaces as-is so resolution can
// retry as an update.
func (r *Repository) Create(ctx context.Context, msg *models.Message) (*models.Message, error) {
	ctx, span := tracing.StartSpan(ctx, "message.Repository.Create")
	defer span.End()

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	msg.CreatedAt = time.Now().UTC()
	msg.UpdatedAt = msg.CreatedAt
	if msg.Entities == nil {
		msg.Entities = entities.List{}
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("messages")
	sb.Cols("id", "chat_id", "account_id", "reply_to_id", "source_id", "source_type", "text", "entities", "created_at", "updated_at")
	sb.Values(msg.ID, msg.ChatID, msg.AccountID, msg.ReplyToID, msg.SourceID, msg.SourceType, msg.Text, msg.Entities, msg.CreatedAt, msg.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, err
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create message")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create message")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": msg.ID, "chat_id": msg.ChatID}).Info("Created message")
	return msg, nil
}

// Get retrieves a message by ID within a chat
func (r *Repository) Get(ctx context.Context, chatID string, id string) (*models.Message, error) {
	ctx, span := tracing.StartSpan(ctx, "message.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "chat_id", "account_id", "reply_to_id", "source_id", "source_type", "text", "entities", "created_at", "updated_at")
	sb.From("messages")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("chat_id", chatID),
	)

	query, args := sb.Build()
	var msg models.Message
	if err := r.db.GetContext(ctx, &msg, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("message %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get message")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get message")
	}

	return &msg, nil
}

// GetByNaturalKey looks up a message by (chat_id, source_id, source_type).
// Returns nil when no message matches.
func (r *Repository) GetByNaturalKey(ctx context.Context, chatID, sourceID string, sourceType models.SourceType) (*models.Message, error) {
	ctx, span := tracing.StartSpan(ctx, "message.Repository.GetByNaturalKey")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "chat_id", "account_id", "reply_to_id", "source_id", "source_type", "text", "entities", "created_at", "updated_at")
	sb.From("messages")
	sb.Where(
		sb.Equal("chat_id", chatID),
		sb.Equal("source_id", sourceID),
		sb.Equal("source_type", sourceType),
	)

	query, args := sb.Build()
	var msg models.Message
	if err := r.db.GetContext(ctx, &msg, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get message by natural key")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get message")
	}

	return &msg, nil
}

// Update updates a message's mutable fields (attribution, text, fragments)
func (r *Repository) Update(ctx context.Context, msg *models.Message) (*models.Message, error) {
	ctx, span := tracing.StartSpan(ctx, "message.Repository.Update")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("messages")
	sb.Set(
		sb.Assign("account_id", msg.AccountID),
		sb.Assign("reply_to_id", msg.ReplyToID),
		sb.Assign("text", msg.Text),
		sb.Assign("entities", msg.Entities),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", msg.ID),
		sb.Equal("chat_id", msg.ChatID),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update message")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update message")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("message %s not found", msg.ID))
	}

	return r.Get(ctx, msg.ChatID, msg.ID)
}

// ListByChat retrieves messages for a chat in send order
func (r *Repository) ListByChat(ctx context.Context, chatID string, limit int) ([]models.Message, error) {
	ctx, span := tracing.StartSpan(ctx, "message.Repository.ListByChat")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "chat_id", "account_id", "reply_to_id", "source_id", "source_type", "text", "entities", "created_at", "updated_at")
	sb.From("messages")
	sb.Where(sb.Equal("chat_id", chatID))
	sb.OrderBy("created_at ASC")
	if limit > 0 {
		sb.Limit(limit)
	}

	query, args := sb.Build()
	var messages []models.Message
	if err := r.db.SelectContext(ctx, &messages, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list messages")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list messages")
	}

	return messages, nil
}
