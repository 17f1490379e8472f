package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Category names the kind of record an event is about. Each category has
// its own queue and worker.
type Category string

const (
	CategoryTenant   Category = "tenant"
	CategoryAccount  Category = "account"
	CategoryChat     Category = "chat"
	CategoryMessage  Category = "message"
	CategoryJob      Category = "job"
	CategoryRun      Category = "run"
	CategoryApproval Category = "approval"
	CategoryLog      Category = "log"
)

// Categories returns every event category, in queue-creation order.
func Categories() []Category {
	return []Category{
		CategoryTenant,
		CategoryAccount,
		CategoryChat,
		CategoryMessage,
		CategoryJob,
		CategoryRun,
		CategoryApproval,
		CategoryLog,
	}
}

// Action is what happened to the record.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionResume Action = "resume"
)

// Envelope wraps every outbound event. Key is derived, never set by hand.
type Envelope struct {
	ID         string            `json:"id"`
	Key        string            `json:"key"`
	Type       Category          `json:"type"`
	Action     Action            `json:"action"`
	SourceType models.SourceType `json:"source_type"`
	TenantID   string            `json:"tenant_id"`
	CreatedBy  *string           `json:"created_by,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	Payload    any               `json:"payload"`
}

// NewEnvelope builds an envelope with a fresh id and the derived routing
// key "{source_type}.{type}.{action}".
func NewEnvelope(category Category, action Action, sourceType models.SourceType, tenantID string, payload any) Envelope {
	return Envelope{
		ID:         uuid.New().String(),
		Key:        fmt.Sprintf("%s.%s.%s", sourceType, category, action),
		Type:       category,
		Action:     action,
		SourceType: sourceType,
		TenantID:   tenantID,
		CreatedAt:  time.Now().UTC(),
		Payload:    payload,
	}
}

// WithCreatedBy tags the envelope with the account that caused it.
func (e Envelope) WithCreatedBy(accountID string) Envelope {
	e.CreatedBy = &accountID
	return e
}
