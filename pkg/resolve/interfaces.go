package resolve

import (
	"context"

	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/models"
)

// TenantRepo defines the tenant persistence operations resolution needs
type TenantRepo interface {
	Create(ctx context.Context, tenant *models.Tenant) (*models.Tenant, error)
	Get(ctx context.Context, id string) (*models.Tenant, error)
	GetBySource(ctx context.Context, sourceID string, sourceType models.SourceType) (*models.Tenant, error)
	Update(ctx context.Context, tenant *models.Tenant) (*models.Tenant, error)
	AddSource(ctx context.Context, tenantID string, source models.Source) (bool, error)
}

// AccountRepo defines the account persistence operations resolution needs
type AccountRepo interface {
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	Get(ctx context.Context, tenantID string, id string) (*models.Account, error)
	GetByNaturalKey(ctx context.Context, tenantID, sourceID string, sourceType models.SourceType) (*models.Account, error)
	Update(ctx context.Context, account *models.Account) (*models.Account, error)
}

// ChatRepo defines the chat persistence operations resolution needs
type ChatRepo interface {
	Create(ctx context.Context, chat *models.Chat) (*models.Chat, error)
	Get(ctx context.Context, tenantID string, id string) (*models.Chat, error)
	GetByNaturalKey(ctx context.Context, tenantID, sourceID string, sourceType models.SourceType) (*models.Chat, error)
	Update(ctx context.Context, chat *models.Chat) (*models.Chat, error)
}

// MessageRepo defines the message persistence operations resolution needs
type MessageRepo interface {
	Create(ctx context.Context, msg *models.Message) (*models.Message, error)
	Get(ctx context.Context, chatID string, id string) (*models.Message, error)
	GetByNaturalKey(ctx context.Context, chatID, sourceID string, sourceType models.SourceType) (*models.Message, error)
	Update(ctx context.Context, msg *models.Message) (*models.Message, error)
}

// Publisher is the outbound side of the event bus
type Publisher interface {
	Publish(ctx context.Context, env events.Envelope) error
}
