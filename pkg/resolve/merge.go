package resolve

import (
	"bytes"

	"github.com/Ramsey-B/fern/pkg/entities"
	"github.com/Ramsey-B/fern/pkg/models"
)

// Merge folds an observation into an existing record. Incoming values win
// field-by-field, but an absent incoming value never clears a stored one,
// and fragments from other tags (other platforms) are never removed.

func mergeTenant(existing *models.Tenant, req models.ObserveTenantRequest) (*models.Tenant, bool) {
	merged := *existing
	changed := false

	if req.Name != "" && req.Name != merged.Name {
		merged.Name = req.Name
		changed = true
	}
	if putEntity(&merged.Entities, req.Entity) {
		changed = true
	}

	return &merged, changed
}

func mergeAccount(existing *models.Account, req models.ObserveAccountRequest) (*models.Account, bool) {
	merged := *existing
	changed := false

	if req.Name != "" && req.Name != merged.Name {
		merged.Name = req.Name
		changed = true
	}
	if req.URL != nil && (merged.URL == nil || *merged.URL != *req.URL) {
		merged.URL = req.URL
		changed = true
	}
	if putEntity(&merged.Entities, req.Entity) {
		changed = true
	}

	return &merged, changed
}

func mergeChat(existing *models.Chat, req models.ObserveChatRequest) (*models.Chat, bool) {
	merged := *existing
	changed := false

	if req.Name != "" && req.Name != merged.Name {
		merged.Name = req.Name
		changed = true
	}
	if req.Type != nil && (merged.Type == nil || *merged.Type != *req.Type) {
		merged.Type = req.Type
		changed = true
	}
	if req.ParentID != nil && (merged.ParentID == nil || *merged.ParentID != *req.ParentID) {
		merged.ParentID = req.ParentID
		changed = true
	}
	if putEntity(&merged.Entities, req.Entity) {
		changed = true
	}

	return &merged, changed
}

func mergeMessage(existing *models.Message, req models.ObserveMessageRequest) (*models.Message, bool) {
	merged := *existing
	changed := false

	if req.Text != "" && req.Text != merged.Text {
		merged.Text = req.Text
		changed = true
	}
	if req.AccountID != nil && (merged.AccountID == nil || *merged.AccountID != *req.AccountID) {
		merged.AccountID = req.AccountID
		changed = true
	}
	if req.ReplyToID != nil && (merged.ReplyToID == nil || *merged.ReplyToID != *req.ReplyToID) {
		merged.ReplyToID = req.ReplyToID
		changed = true
	}
	if putEntity(&merged.Entities, req.Entity) {
		changed = true
	}

	return &merged, changed
}

// putEntity places the fragment into the list, reporting whether the list
// actually changed. Same-tag same-bytes observations are a no-op.
func putEntity(list *entities.List, e *entities.Entity) bool {
	if e == nil {
		return false
	}
	if current, ok := entities.Get(*list, e.Type); ok && bytes.Equal(current.Data, e.Data) {
		return false
	}
	*list = entities.Put(*list, *e)
	return true
}
