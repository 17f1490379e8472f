package models

import (
	"time"

	"github.com/Ramsey-B/fern/pkg/entities"
)

// LogLevel classifies audit log rows.
type LogLevel string

const (
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Log is one append-only audit row: one per dispatched event plus one per
// handler failure. Operators replay lost events from here.
type Log struct {
	ID        string        `json:"id" db:"id"`
	TenantID  string        `json:"tenant_id" db:"tenant_id"`
	Level     LogLevel      `json:"level" db:"level"`
	Type      string        `json:"type" db:"type"`
	TypeID    *string       `json:"type_id,omitempty" db:"type_id"`
	Text      string        `json:"text" db:"text"`
	Entities  entities.List `json:"entities" db:"entities"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
}
