// Package slack is the Slack platform module.
package slack

import (
	"github.com/Ramsey-B/fern/pkg/entities"
)

// Fragment tags contributed by this module
const (
	TagTenant  = "slack.tenant"
	TagAccount = "slack.account"
	TagChat    = "slack.chat"
	TagMessage = "slack.message"
)

// TenantFragment carries the Slack workspace identity
type TenantFragment struct {
	TeamID string `json:"team_id"`
	Domain string `json:"domain,omitempty"`
}

// AccountFragment carries the Slack identity of a user
type AccountFragment struct {
	UserID   string `json:"user_id"`
	IsBot    bool   `json:"is_bot,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// ChatFragment carries Slack channel details
type ChatFragment struct {
	ChannelID string `json:"channel_id"`
	IsPrivate bool   `json:"is_private,omitempty"`
	Topic     string `json:"topic,omitempty"`
}

// MessageFragment carries the Slack timestamps that identify a message
type MessageFragment struct {
	TS       string `json:"ts"`
	ThreadTS string `json:"thread_ts,omitempty"`
}

// Register binds this module's fragment tags to their shapes
func Register(reg *entities.Registry) {
	reg.Register(TagTenant, func() any { return &TenantFragment{} })
	reg.Register(TagAccount, func() any { return &AccountFragment{} })
	reg.Register(TagChat, func() any { return &ChatFragment{} })
	reg.Register(TagMessage, func() any { return &MessageFragment{} })
}
