// Package teams is the Microsoft Teams platform module: its fragment shapes
// and the driver that turns fern events into Teams side effects.
package teams

import (
	"github.com/Ramsey-B/fern/pkg/entities"
)

// Fragment tags contributed by this module
const (
	TagTenant  = "teams.tenant"
	TagAccount = "teams.account"
	TagChat    = "teams.chat"
	TagMessage = "teams.message"
)

// TenantFragment carries the Azure AD identity of a Teams workspace
type TenantFragment struct {
	AadTenantID string `json:"aad_tenant_id"`
	ServiceURL  string `json:"service_url,omitempty"`
}

// AccountFragment carries the Teams identity of a user
type AccountFragment struct {
	AadObjectID string `json:"aad_object_id"`
	UPN         string `json:"upn,omitempty"`
	Name        string `json:"name,omitempty"`
}

// ChatFragment carries Teams conversation details
type ChatFragment struct {
	ConversationType string `json:"conversation_type,omitempty"`
	IsGroup          bool   `json:"is_group,omitempty"`
}

// MessageFragment carries the Teams activity behind a message
type MessageFragment struct {
	ActivityID string `json:"activity_id"`
	Locale     string `json:"locale,omitempty"`
}

// Register binds this module's fragment tags to their shapes. Called once at
// startup before any worker runs.
func Register(reg *entities.Registry) {
	reg.Register(TagTenant, func() any { return &TenantFragment{} })
	reg.Register(TagAccount, func() any { return &AccountFragment{} })
	reg.Register(TagChat, func() any { return &ChatFragment{} })
	reg.Register(TagMessage, func() any { return &MessageFragment{} })
}
