package models

import (
	"time"

	"github.com/Ramsey-B/fern/pkg/entities"
)

// Chat is one external conversation or thread, scoped to a tenant. A thread
// inside a channel keeps a pointer to its parent chat.
type Chat struct {
	ID         string        `json:"id" db:"id"`
	TenantID   string        `json:"tenant_id" db:"tenant_id"`
	ParentID   *string       `json:"parent_id,omitempty" db:"parent_id"`
	SourceID   string        `json:"source_id" db:"source_id"`
	SourceType SourceType    `json:"source_type" db:"source_type"`
	Type       *string       `json:"type,omitempty" db:"type"`
	Name       string        `json:"name,omitempty" db:"name"`
	Entities   entities.List `json:"entities" db:"entities"`
	CreatedAt  time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at" db:"updated_at"`
}

// ObserveChatRequest records an observation of a conversation.
type ObserveChatRequest struct {
	TenantID   string           `json:"tenant_id" validate:"required"`
	ParentID   *string          `json:"parent_id,omitempty"`
	SourceID   string           `json:"source_id" validate:"required"`
	SourceType SourceType       `json:"source_type" validate:"required"`
	Type       *string          `json:"type,omitempty"`
	Name       string           `json:"name,omitempty"`
	Entity     *entities.Entity `json:"entity,omitempty"`
}
