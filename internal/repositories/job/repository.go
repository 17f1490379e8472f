package job

import (
	"context"
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

// Repository handles job persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new job repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new job
func (r *Repository) Create(ctx context.Context, job *models.Job) (*models.Job, error) {
	ctx, span := tracing.StartSpan(ctx, "job.Repository.Create")
	defer span.End()

	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	job.CreatedAt = time.Now().UTC()
	job.UpdatedAt = job.CreatedAt
	if job.Entities == nil {
		job.Entities = entities.List{}
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("jobs")
	sb.Cols("id", "parent_id", "chat_id", "message_id", "kind", "name", "title", "description", "last_run_id", "entities", "created_at", "updated_at")
	sb.Values(job.ID, job.ParentID, job.ChatID, job.MessageID, job.Kind, job.Name, job.Title, job.Description, job.LastRunID, job.Entities, job.CreatedAt, job.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create job")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create job")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": job.ID, "name": job.Name}).Info("Created job")
	return job, nil
}

// Get retrieves a job by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.Job, error) {
	ctx, span := tracing.StartSpan(ctx, "job.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "parent_id", "chat_id", "message_id", "kind", "name", "title", "description", "last_run_id", "entities", "created_at", "updated_at")
	sb.From("jobs")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var job models.Job
	if err := r.db.GetContext(ctx, &job, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("job %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get job")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get job")
	}

	return &job, nil
}

// Update updates a job's mutable fields
func (r *Repository) Update(ctx context.Context, job *models.Job) (*models.Job, error) {
	ctx, span := tracing.StartSpan(ctx, "job.Repository.Update")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("jobs")
	sb.Set(
		sb.Assign("title", job.Title),
		sb.Assign("description", job.Description),
		sb.Assign("last_run_id", job.LastRunID),
		sb.Assign("entities", job.Entities),
		sb.Assign("updated_at", now),
	)
	sb.Where(sb.Equal("id", job.ID))

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update job")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update job")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("job %s not found", job.ID))
	}

	return r.Get(ctx, job.ID)
}

// SetLastRun points a job at its most recent run
func (r *Repository) SetLastRun(ctx context.Context, jobID, runID string) error {
	ctx, span := tracing.StartSpan(ctx, "job.Repository.SetLastRun")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("jobs")
	sb.Set(
		sb.Assign("last_run_id", runID),
		sb.Assign("updated_at", now),
	)
	sb.Where(sb.Equal("id", jobID))

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to set last run")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to set last run")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("job %s not found", jobID))
	}

	return nil
}

// ListByChat retrieves jobs attached to a chat
func (r *Repository) ListByChat(ctx context.Context, chatID string) ([]models.Job, error) {
	ctx, span := tracing.StartSpan(ctx, "job.Repository.ListByChat")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "parent_id", "chat_id", "message_id", "kind", "name", "title", "description", "last_run_id", "entities", "created_at", "updated_at")
	sb.From("jobs")
	sb.Where(sb.Equal("chat_id", chatID))
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var jobs []models.Job
	if err := r.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list jobs by chat")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list jobs")
	}

	return jobs, nil
}
