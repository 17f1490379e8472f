package account

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

// Repository handles account persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new account repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new account. A unique violation on
// (tenant_id, source_id, source_type) surfaces as-is so resolution can
// retry as an update.
func (r *Repository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	ctx, span := tracing.StartSpan(ctx, "account.Repository.Create")
	defer span.End()

	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	account.CreatedAt = time.Now().UTC()
	account.UpdatedAt = account.CreatedAt
	if account.Entities == nil {
		account.Entities = entities.List{}
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("accounts")
	sb.Cols("id", "tenant_id", "source_id", "source_type", "url", "name", "entities", "created_at", "updated_at")
	sb.Values(account.ID, account.TenantID, account.SourceID, account.SourceType, account.URL, account.Name, account.Entities, account.CreatedAt, account.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, err
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create account")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create account")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": account.ID, "tenant_id": account.TenantID}).Info("Created account")
	return account, nil
}

// Get retrieves an account by ID within a tenant
func (r *Repository) Get(ctx context.Context, tenantID string, id string) (*models.Account, error) {
	ctx, span := tracing.StartSpan(ctx, "account.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "source_id", "source_type", "url", "name", "entities", "created_at", "updated_at")
	sb.From("accounts")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var account models.Account
	if err := r.db.GetContext(ctx, &account, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("account %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get account")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get account")
	}

	return &account, nil
}

// GetByNaturalKey looks up an account by (tenant_id, source_id, source_type).
// Returns nil when no account matches; resolution uses this as its first step.
func (r *Repository) GetByNaturalKey(ctx context.Context, tenantID, sourceID string, sourceType models.SourceType) (*models.Account, error) {
	ctx, span := tracing.StartSpan(ctx, "account.Repository.GetByNaturalKey")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "source_id", "source_type", "url", "name", "entities", "created_at", "updated_at")
	sb.From("accounts")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("source_id", sourceID),
		sb.Equal("source_type", sourceType),
	)

	query, args := sb.Build()
	var account models.Account
	if err := r.db.GetContext(ctx, &account, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get account by natural key")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get account")
	}

	return &account, nil
}

// Update updates an account's mutable fields (url, name, fragments)
func (r *Repository) Update(ctx context.Context, account *models.Account) (*models.Account, error) {
	ctx, span := tracing.StartSpan(ctx, "account.Repository.Update")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("accounts")
	sb.Set(
		sb.Assign("url", account.URL),
		sb.Assign("name", account.Name),
		sb.Assign("entities", account.Entities),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", account.ID),
		sb.Equal("tenant_id", account.TenantID),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update account")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update account")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("account %s not found", account.ID))
	}

	return r.Get(ctx, account.TenantID, account.ID)
}

// List retrieves all accounts for a tenant
func (r *Repository) List(ctx context.Context, tenantID string) ([]models.Account, error) {
	ctx, span := tracing.StartSpan(ctx, "account.Repository.List")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "source_id", "source_type", "url", "name", "entities", "created_at", "updated_at")
	sb.From("accounts")
	sb.Where(sb.Equal("tenant_id", tenantID))
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var accounts []models.Account
	if err := r.db.SelectContext(ctx, &accounts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list accounts")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list accounts")
	}

	return accounts, nil
}
