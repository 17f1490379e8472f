package jobs

import (
	"context"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Progress rolls a job's run history into one displayed status. Precedence:
// any error outranks warnings, warnings outrank successes, successes outrank
// runs still in flight. A job with no runs yet shows as in progress.
func (s *Service) Progress(ctx context.Context, jobID string) (*models.JobProgress, error) {
	ctx, span := tracing.StartSpan(ctx, "jobs.Service.Progress")
	defer span.End()

	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	counts, err := s.runs.CountByStatus(ctx, jobID)
	if err != nil {
		return nil, err
	}

	progress := &models.JobProgress{
		JobID: job.ID,
		Title: job.Title,
	}
	for _, c := range counts {
		switch c.Status {
		case models.RunStatusRunning:
			progress.InProgress += c.Count
		case models.RunStatusSuccess:
			progress.Success += c.Count
		case models.RunStatusWarning:
			progress.Warning += c.Count
		case models.RunStatusError:
			progress.Error += c.Count
		}
	}

	switch {
	case progress.Error > 0:
		progress.Status = models.ProgressStatusError
	case progress.Warning > 0:
		progress.Status = models.ProgressStatusWarning
	case progress.Success > 0:
		progress.Status = models.ProgressStatusSuccess
	default:
		progress.Status = models.ProgressStatusInProgress
	}

	if job.LastRunID != nil {
		lastRun, err := s.runs.Get(ctx, *job.LastRunID)
		if err == nil && lastRun.StatusMessage != nil {
			progress.Message = lastRun.StatusMessage
		}
	}

	return progress, nil
}
