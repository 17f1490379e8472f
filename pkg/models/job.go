package models

import (
	"time"

	"github.com/Ramsey-B/fern/pkg/entities"
)

// JobKind distinguishes work finished inline from work spanning several runs.
type JobKind string

const (
	JobKindSync  JobKind = "sync"
	JobKindAsync JobKind = "async"
)

// RunStatus is the lifecycle of one execution attempt.
// running is the only non-terminal status.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusWarning RunStatus = "warning"
	RunStatusError   RunStatus = "error"
)

// Terminal reports whether the status ends a run.
func (s RunStatus) Terminal() bool {
	return s == RunStatusSuccess || s == RunStatusWarning || s == RunStatusError
}

// ApprovalStatus is the lifecycle of a consent gate. Transitions once:
// pending -> approved|rejected, no re-opening.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

// Job is one unit of asynchronous, possibly multi-step work, tied to the
// chat/message that triggered it.
type Job struct {
	ID          string        `json:"id" db:"id"`
	ParentID    *string       `json:"parent_id,omitempty" db:"parent_id"`
	ChatID      *string       `json:"chat_id,omitempty" db:"chat_id"`
	MessageID   *string       `json:"message_id,omitempty" db:"message_id"`
	Kind        JobKind       `json:"kind" db:"kind"`
	Name        string        `json:"name" db:"name"`
	Title       string        `json:"title" db:"title"`
	Description *string       `json:"description,omitempty" db:"description"`
	LastRunID   *string       `json:"last_run_id,omitempty" db:"last_run_id"`
	Entities    entities.List `json:"entities" db:"entities"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at" db:"updated_at"`
}

// Run is one execution attempt of a job. Historical runs are never deleted.
type Run struct {
	ID            string     `json:"id" db:"id"`
	JobID         string     `json:"job_id" db:"job_id"`
	Status        RunStatus  `json:"status" db:"status"`
	StatusMessage *string    `json:"status_message,omitempty" db:"status_message"`
	StartedAt     *time.Time `json:"started_at,omitempty" db:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// Approval is a consent gate on a job requiring a specific account's
// decision. Composite key (job_id, account_id).
type Approval struct {
	JobID     string         `json:"job_id" db:"job_id"`
	AccountID string         `json:"account_id" db:"account_id"`
	Status    ApprovalStatus `json:"status" db:"status"`
	Required  bool           `json:"required" db:"required"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
}

// CreateJobRequest creates a new job.
type CreateJobRequest struct {
	ParentID    *string          `json:"parent_id,omitempty"`
	ChatID      *string          `json:"chat_id,omitempty"`
	MessageID   *string          `json:"message_id,omitempty"`
	Kind        JobKind          `json:"kind" validate:"required,oneof=sync async"`
	Name        string           `json:"name" validate:"required"`
	Title       string           `json:"title" validate:"required"`
	Description *string          `json:"description,omitempty"`
	Entity      *entities.Entity `json:"entity,omitempty"`
}

// JobProgress summarizes a job's run history for the human-facing surface.
type JobProgress struct {
	JobID      string         `json:"job_id"`
	Title      string         `json:"title"`
	InProgress int            `json:"in_progress"`
	Success    int            `json:"success"`
	Warning    int            `json:"warning"`
	Error      int            `json:"error"`
	Status     ProgressStatus `json:"status"`
	Message    *string        `json:"message,omitempty"`
}

// ProgressStatus is the displayed rollup of a job's run history.
type ProgressStatus string

const (
	ProgressStatusInProgress ProgressStatus = "in_progress"
	ProgressStatusSuccess    ProgressStatus = "success"
	ProgressStatusWarning    ProgressStatus = "warning"
	ProgressStatusError      ProgressStatus = "error"
)
