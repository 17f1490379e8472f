package auditlog

import (
	"context"
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

// Repository handles the append-only audit log. Rows are never updated or
// deleted; operators replay lost events from here.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new audit log repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create appends one audit row
func (r *Repository) Create(ctx context.Context, log *models.Log) (*models.Log, error) {
	ctx, span := tracing.StartSpan(ctx, "auditlog.Repository.Create")
	defer span.End()

	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	if log.Level == "" {
		log.Level = models.LogLevelInfo
	}
	log.CreatedAt = time.Now().UTC()
	if log.Entities == nil {
		log.Entities = entities.List{}
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("logs")
	sb.Cols("id", "tenant_id", "level", "type", "type_id", "text", "entities", "created_at")
	sb.Values(log.ID, log.TenantID, log.Level, log.Type, log.TypeID, log.Text, log.Entities, log.CreatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create audit log")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create audit log")
	}

	return log, nil
}

// ListByTenant retrieves a tenant's audit rows, newest first
func (r *Repository) ListByTenant(ctx context.Context, tenantID string, logType string, limit int) ([]models.Log, error) {
	ctx, span := tracing.StartSpan(ctx, "auditlog.Repository.ListByTenant")
	defer span.End()

	if limit <= 0 {
		limit = 100
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "level", "type", "type_id", "text", "entities", "created_at")
	sb.From("logs")
	sb.Where(sb.Equal("tenant_id", tenantID))
	if logType != "" {
		sb.Where(sb.Equal("type", logType))
	}
	sb.OrderBy("created_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var logs []models.Log
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list audit logs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list audit logs")
	}

	return logs, nil
}
