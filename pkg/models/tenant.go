package models

import (
	"time"

	"github.com/Ramsey-B/fern/pkg/entities"
)

// Tenant is one external organization/workspace. A tenant is created on the
// first inbound observation from a new source and never hard-deleted.
type Tenant struct {
	ID        string        `json:"id" db:"id"`
	Name      string        `json:"name,omitempty" db:"name"`
	Sources   SourceList    `json:"sources" db:"sources"`
	Entities  entities.List `json:"entities" db:"entities"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt time.Time     `json:"updated_at" db:"updated_at"`
}

// ObserveTenantRequest records an observation of a tenant through one source.
type ObserveTenantRequest struct {
	Source Source           `json:"source" validate:"required"`
	Name   string           `json:"name,omitempty"`
	Entity *entities.Entity `json:"entity,omitempty"`
}
