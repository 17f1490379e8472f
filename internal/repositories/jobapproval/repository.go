package jobapproval

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Repository handles job approval persistence. Approvals are keyed on
// (job_id, account_id) and transition exactly once out of pending.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new job approval repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create creates a pending approval gate on a job. Creating the same gate
// twice is a no-op.
func (r *Repository) Create(ctx context.Context, approval *models.Approval) (*models.Approval, error) {
	ctx, span := tracing.StartSpan(ctx, "jobapproval.Repository.Create")
	defer span.End()

	approval.Status = models.ApprovalStatusPending
	approval.CreatedAt = time.Now().UTC()
	approval.UpdatedAt = approval.CreatedAt

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("job_approvals")
	sb.Cols("job_id", "account_id", "status", "required", "created_at", "updated_at")
	sb.Values(approval.JobID, approval.AccountID, approval.Status, approval.Required, approval.CreatedAt, approval.UpdatedAt)

	query, args := sb.Build()
	query += " ON CONFLICT (job_id, account_id) DO NOTHING"

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create approval")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create approval")
	}

	return r.Get(ctx, approval.JobID, approval.AccountID)
}

// Get retrieves an approval by its composite key
func (r *Repository) Get(ctx context.Context, jobID, accountID string) (*models.Approval, error) {
	ctx, span := tracing.StartSpan(ctx, "jobapproval.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("job_id", "account_id", "status", "required", "created_at", "updated_at")
	sb.From("job_approvals")
	sb.Where(
		sb.Equal("job_id", jobID),
		sb.Equal("account_id", accountID),
	)

	query, args := sb.Build()
	var approval models.Approval
	if err := r.db.GetContext(ctx, &approval, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("approval for job %s account %s not found", jobID, accountID))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get approval")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get approval")
	}

	return &approval, nil
}

// Decide moves a pending approval to approved or rejected. Deciding an
// already-decided approval is a conflict; the gate never reopens.
func (r *Repository) Decide(ctx context.Context, jobID, accountID string, status models.ApprovalStatus) (*models.Approval, error) {
	ctx, span := tracing.StartSpan(ctx, "jobapproval.Repository.Decide")
	defer span.End()

	if status != models.ApprovalStatusApproved && status != models.ApprovalStatusRejected {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid approval decision %s", status))
	}

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("job_approvals")
	sb.Set(
		sb.Assign("status", status),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("job_id", jobID),
		sb.Equal("account_id", accountID),
		sb.Equal("status", models.ApprovalStatusPending),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to decide approval")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to decide approval")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		existing, getErr := r.Get(ctx, jobID, accountID)
		if getErr != nil {
			return nil, getErr
		}
		return nil, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("approval for job %s account %s already %s", jobID, accountID, existing.Status))
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"job_id": jobID, "account_id": accountID, "status": status}).Info("Decided approval")
	return r.Get(ctx, jobID, accountID)
}

// ListByJob retrieves all approval gates on a job
func (r *Repository) ListByJob(ctx context.Context, jobID string) ([]models.Approval, error) {
	ctx, span := tracing.StartSpan(ctx, "jobapproval.Repository.ListByJob")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("job_id", "account_id", "status", "required", "created_at", "updated_at")
	sb.From("job_approvals")
	sb.Where(sb.Equal("job_id", jobID))
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var approvals []models.Approval
	if err := r.db.SelectContext(ctx, &approvals, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list approvals")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list approvals")
	}

	return approvals, nil
}

// CountBlocking returns how many required approvals on a job are not yet
// approved. A job may only start running when this is zero.
func (r *Repository) CountBlocking(ctx context.Context, jobID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "jobapproval.Repository.CountBlocking")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From("job_approvals")
	sb.Where(
		sb.Equal("job_id", jobID),
		sb.Equal("required", true),
		sb.NotEqual("status", models.ApprovalStatusApproved),
	)

	query, args := sb.Build()
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count blocking approvals")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count approvals")
	}

	return count, nil
}
