package models

import (
	"time"

	"github.com/Ramsey-B/fern/pkg/entities"
)

// Message is one utterance inside a chat, optionally attributed to an
// account and optionally a reply to another message.
// Unique on (chat_id, source_id, source_type).
type Message struct {
	ID         string        `json:"id" db:"id"`
	ChatID     string        `json:"chat_id" db:"chat_id"`
	AccountID  *string       `json:"account_id,omitempty" db:"account_id"`
	ReplyToID  *string       `json:"reply_to_id,omitempty" db:"reply_to_id"`
	SourceID   string        `json:"source_id" db:"source_id"`
	SourceType SourceType    `json:"source_type" db:"source_type"`
	Text       string        `json:"text" db:"text"`
	Entities   entities.List `json:"entities" db:"entities"`
	CreatedAt  time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at" db:"updated_at"`
}

// ObserveMessageRequest records an observation of an utterance.
type ObserveMessageRequest struct {
	ChatID     string           `json:"chat_id" validate:"required"`
	AccountID  *string          `json:"account_id,omitempty"`
	ReplyToID  *string          `json:"reply_to_id,omitempty"`
	SourceID   string           `json:"source_id" validate:"required"`
	SourceType SourceType       `json:"source_type" validate:"required"`
	Text       string           `json:"text,omitempty"`
	Entity     *entities.Entity `json:"entity,omitempty"`
}
