package tenant

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

// Repository handles tenant persistence. Sources live in their own table so
// the (source_id, source_type) -> tenant mapping is enforced by a unique
// constraint rather than application code.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new tenant repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new tenant along with its initial sources
func (r *Repository) Create(ctx context.Context, tenant *models.Tenant) (*models.Tenant, error) {
	ctx, span := tracing.StartSpan(ctx, "tenant.Repository.Create")
	defer span.End()

	if tenant.ID == "" {
		tenant.ID = uuid.New().String()
	}
	tenant.CreatedAt = time.Now().UTC()
	tenant.UpdatedAt = tenant.CreatedAt
	if tenant.Entities == nil {
		tenant.Entities = entities.List{}
	}

	// The tenant row and its source links commit together: a source conflict
	// must not leave behind a sourceless tenant no lookup can reach.
	txCtx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create tenant")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("tenants")
	sb.Cols("id", "name", "entities", "created_at", "updated_at")
	sb.Values(tenant.ID, tenant.Name, tenant.Entities, tenant.CreatedAt, tenant.UpdatedAt)

	query, args := sb.Build()
	if _, err := tx.ExecContext(txCtx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create tenant")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create tenant")
	}

	for _, source := range tenant.Sources {
		if _, err := r.addSource(txCtx, tx, tenant.ID, source); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create tenant")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": tenant.ID}).Info("Created tenant")
	return tenant, nil
}

// Get retrieves a tenant by ID, including its sources
func (r *Repository) Get(ctx context.Context, id string) (*models.Tenant, error) {
	ctx, span := tracing.StartSpan(ctx, "tenant.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "name", "entities", "created_at", "updated_at")
	sb.From("tenants")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var tenant models.Tenant
	if err := r.db.GetContext(ctx, &tenant, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("tenant %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get tenant")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get tenant")
	}

	sources, err := r.getSources(ctx, tenant.ID)
	if err != nil {
		return nil, err
	}
	tenant.Sources = sources

	return &tenant, nil
}

// GetBySource finds the tenant owning a source, or nil when no tenant has
// claimed that (source_id, source_type) yet.
func (r *Repository) GetBySource(ctx context.Context, sourceID string, sourceType models.SourceType) (*models.Tenant, error) {
	ctx, span := tracing.StartSpan(ctx, "tenant.Repository.GetBySource")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("tenants.id", "tenants.name", "tenants.entities", "tenants.created_at", "tenants.updated_at")
	sb.From("tenants")
	sb.Join("tenant_sources", "tenants.id = tenant_sources.tenant_id")
	sb.Where(
		sb.Equal("tenant_sources.source_id", sourceID),
		sb.Equal("tenant_sources.source_type", sourceType),
	)

	query, args := sb.Build()
	var tenant models.Tenant
	if err := r.db.GetContext(ctx, &tenant, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get tenant by source")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get tenant by source")
	}

	sources, err := r.getSources(ctx, tenant.ID)
	if err != nil {
		return nil, err
	}
	tenant.Sources = sources

	return &tenant, nil
}

// Update updates a tenant's name and fragment list
func (r *Repository) Update(ctx context.Context, tenant *models.Tenant) (*models.Tenant, error) {
	ctx, span := tracing.StartSpan(ctx, "tenant.Repository.Update")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("tenants")
	sb.Set(
		sb.Assign("name", tenant.Name),
		sb.Assign("entities", tenant.Entities),
		sb.Assign("updated_at", now),
	)
	sb.Where(sb.Equal("id", tenant.ID))

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update tenant")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update tenant")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("tenant %s not found", tenant.ID))
	}

	return r.Get(ctx, tenant.ID)
}

// AddSource links a source to a tenant. Adding a source the tenant already
// has is a no-op; returns whether a new link was inserted. A unique
// violation means another tenant owns the source.
func (r *Repository) AddSource(ctx context.Context, tenantID string, source models.Source) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "tenant.Repository.AddSource")
	defer span.End()

	return r.addSource(ctx, r.db, tenantID, source)
}

// execer is satisfied by both the pool and an open transaction
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *Repository) addSource(ctx context.Context, exec execer, tenantID string, source models.Source) (bool, error) {
	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("tenant_sources")
	sb.Cols("tenant_id", "source_id", "source_type", "url", "created_at")
	sb.Values(tenantID, source.ID, source.Type, source.URL, now)

	query, args := sb.Build()
	query += " ON CONFLICT (tenant_id, source_id, source_type) DO NOTHING"

	result, err := exec.ExecContext(ctx, query, args...)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return false, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("source %s/%s belongs to another tenant", source.Type, source.ID))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to add tenant source")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to add tenant source")
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		r.logger.WithContext(ctx).WithFields(map[string]any{"tenant_id": tenantID, "source_id": source.ID, "source_type": source.Type}).Info("Linked source to tenant")
	}
	return rows > 0, nil
}

// getSources loads a tenant's sources in link order
func (r *Repository) getSources(ctx context.Context, tenantID string) (models.SourceList, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("source_id", "source_type", "url")
	sb.From("tenant_sources")
	sb.Where(sb.Equal("tenant_id", tenantID))
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var rows []struct {
		SourceID   string            `db:"source_id"`
		SourceType models.SourceType `db:"source_type"`
		URL        string            `db:"url"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get tenant sources")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get tenant sources")
	}

	sources := make(models.SourceList, 0, len(rows))
	for _, row := range rows {
		sources = append(sources, models.Source{ID: row.SourceID, Type: row.SourceType, URL: row.URL})
	}
	return sources, nil
}
