package models

import (
	"time"

	"github.com/Ramsey-B/fern/pkg/entities"
)

// Account is one external user, scoped to exactly one tenant.
// Unique on (tenant_id, source_id, source_type): the same person seen through
// two platforms is two accounts.
type Account struct {
	ID         string        `json:"id" db:"id"`
	TenantID   string        `json:"tenant_id" db:"tenant_id"`
	SourceID   string        `json:"source_id" db:"source_id"`
	SourceType SourceType    `json:"source_type" db:"source_type"`
	URL        *string       `json:"url,omitempty" db:"url"`
	Name       string        `json:"name,omitempty" db:"name"`
	Entities   entities.List `json:"entities" db:"entities"`
	CreatedAt  time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at" db:"updated_at"`
}

// ObserveAccountRequest records an observation of an external user.
type ObserveAccountRequest struct {
	TenantID   string           `json:"tenant_id" validate:"required"`
	SourceID   string           `json:"source_id" validate:"required"`
	SourceType SourceType       `json:"source_type" validate:"required"`
	URL        *string          `json:"url,omitempty"`
	Name       string           `json:"name,omitempty"`
	Entity     *entities.Entity `json:"entity,omitempty"`
}
