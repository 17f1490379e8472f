// Package github is the GitHub platform module. Chats map to issue and pull
// request comment threads.
package github

import (
	"github.com/Ramsey-B/fern/pkg/entities"
)

// Fragment tags contributed by this module
const (
	TagTenant  = "github.tenant"
	TagAccount = "github.account"
	TagChat    = "github.chat"
	TagMessage = "github.message"
)

// TenantFragment carries the GitHub org behind an installation
type TenantFragment struct {
	OrgID          int64  `json:"org_id"`
	Login          string `json:"login"`
	InstallationID int64  `json:"installation_id,omitempty"`
}

// AccountFragment carries the GitHub identity of a user
type AccountFragment struct {
	UserID    int64  `json:"user_id"`
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// ChatFragment locates the issue or PR thread behind a chat
type ChatFragment struct {
	RepoFullName  string `json:"repo_full_name"`
	IssueNumber   int    `json:"issue_number"`
	IsPullRequest bool   `json:"is_pull_request,omitempty"`
}

// MessageFragment carries the comment behind a message
type MessageFragment struct {
	CommentID         int64  `json:"comment_id"`
	AuthorAssociation string `json:"author_association,omitempty"`
}

// Register binds this module's fragment tags to their shapes
func Register(reg *entities.Registry) {
	reg.Register(TagTenant, func() any { return &TenantFragment{} })
	reg.Register(TagAccount, func() any { return &AccountFragment{} })
	reg.Register(TagChat, func() any { return &ChatFragment{} })
	reg.Register(TagMessage, func() any { return &MessageFragment{} })
}
