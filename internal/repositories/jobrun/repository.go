package jobrun

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
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Repository handles job run persistence. Runs are append-only history;
// nothing here deletes.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new job run repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new run in the running state
func (r *Repository) Create(ctx context.Context, run *models.Run) (*models.Run, error) {
	ctx, span := tracing.StartSpan(ctx, "jobrun.Repository.Create")
	defer span.End()

	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	run.Status = models.RunStatusRunning
	run.CreatedAt = time.Now().UTC()
	run.UpdatedAt = run.CreatedAt
	if run.StartedAt == nil {
		started := run.CreatedAt
		run.StartedAt = &started
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("job_runs")
	sb.Cols("id", "job_id", "status", "status_message", "started_at", "ended_at", "created_at", "updated_at")
	sb.Values(run.ID, run.JobID, run.Status, run.StatusMessage, run.StartedAt, run.EndedAt, run.CreatedAt, run.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create run")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": run.ID, "job_id": run.JobID}).Info("Created run")
	return run, nil
}

// Get retrieves a run by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.Run, error) {
	ctx, span := tracing.StartSpan(ctx, "jobrun.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "job_id", "status", "status_message", "started_at", "ended_at", "created_at", "updated_at")
	sb.From("job_runs")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var run models.Run
	if err := r.db.GetContext(ctx, &run, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("run %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get run")
	}

	return &run, nil
}

// Finish moves a run from running to a terminal status. Finishing a run
// that is not running is a conflict.
func (r *Repository) Finish(ctx context.Context, id string, status models.RunStatus, statusMessage *string) (*models.Run, error) {
	ctx, span := tracing.StartSpan(ctx, "jobrun.Repository.Finish")
	defer span.End()

	if !status.Terminal() {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("status %s is not terminal", status))
	}

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("job_runs")
	sb.Set(
		sb.Assign("status", status),
		sb.Assign("status_message", statusMessage),
		sb.Assign("ended_at", now),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("status", models.RunStatusRunning),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to finish run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to finish run")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		// Either the run does not exist or it already finished.
		existing, getErr := r.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("run %s already %s", id, existing.Status))
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id, "status": status}).Info("Finished run")
	return r.Get(ctx, id)
}

// ListByJob retrieves a job's runs, oldest first
func (r *Repository) ListByJob(ctx context.Context, jobID string) ([]models.Run, error) {
	ctx, span := tracing.StartSpan(ctx, "jobrun.Repository.ListByJob")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "job_id", "status", "status_message", "started_at", "ended_at", "created_at", "updated_at")
	sb.From("job_runs")
	sb.Where(sb.Equal("job_id", jobID))
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var runs []models.Run
	if err := r.db.SelectContext(ctx, &runs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list runs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list runs")
	}

	return runs, nil
}

// StatusCount is one row of the per-status rollup for a job
type StatusCount struct {
	Status models.RunStatus `db:"status"`
	Count  int              `db:"count"`
}

// CountByStatus returns how many of a job's runs are in each status
func (r *Repository) CountByStatus(ctx context.Context, jobID string) ([]StatusCount, error) {
	ctx, span := tracing.StartSpan(ctx, "jobrun.Repository.CountByStatus")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("status", "COUNT(*) AS count")
	sb.From("job_runs")
	sb.Where(sb.Equal("job_id", jobID))
	sb.GroupBy("status")

	query, args := sb.Build()
	var counts []StatusCount
	if err := r.db.SelectContext(ctx, &counts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count runs by status")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count runs")
	}

	return counts, nil
}
