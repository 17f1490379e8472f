// Package drivers defines the per-platform handler contract and the routing
// table that dispatch selects from by an event's source_type. The table is
// validated exhaustively at startup: a known platform without a driver is a
// configuration bug and refuses to boot, not a runtime surprise.
package drivers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/models"
)

// Result is what a driver hands back after producing its side effect. A
// driver that caused a new platform message (posted a reply, a progress
// card) returns it here so dispatch re-resolves it into the store.
type Result struct {
	TenantID string
	Message  *models.ObserveMessageRequest
}

// Driver produces a platform side effect for one event: send a message,
// prompt sign-in, start a typing indicator.
type Driver interface {
	SourceType() models.SourceType
	Handle(ctx context.Context, env events.Envelope) (*Result, error)
}

// ChatReader re-fetches chats for drivers. Handlers read current state
// rather than trusting event payload freshness.
type ChatReader interface {
	GetByID(ctx context.Context, id string) (*models.Chat, error)
}

// JobReader re-fetches jobs for drivers
type JobReader interface {
	Get(ctx context.Context, id string) (*models.Job, error)
}

// Table routes events to drivers by source_type
type Table struct {
	drivers map[models.SourceType]Driver
}

// NewTable builds the routing table and fails fast when any known platform
// lacks a driver or two drivers claim the same platform.
func NewTable(all ...Driver) (*Table, error) {
	table := &Table{drivers: make(map[models.SourceType]Driver, len(all))}

	for _, d := range all {
		st := d.SourceType()
		if !st.Valid() {
			return nil, fmt.Errorf("driver registered for unknown source type %q", st)
		}
		if _, exists := table.drivers[st]; exists {
			return nil, fmt.Errorf("duplicate driver for source type %q", st)
		}
		table.drivers[st] = d
	}

	for _, st := range models.KnownSourceTypes() {
		if _, ok := table.drivers[st]; !ok {
			return nil, fmt.Errorf("no driver registered for source type %q", st)
		}
	}

	return table, nil
}

// Get returns the driver for a source type. A miss is a routing gap.
func (t *Table) Get(st models.SourceType) (Driver, error) {
	d, ok := t.drivers[st]
	if !ok {
		return nil, fmt.Errorf("routing gap: no driver for source type %q", st)
	}
	return d, nil
}

// DecodePayload re-serializes an envelope payload into its typed form.
// Payloads arrive typed from the in-process bus but as generic maps when an
// event is replayed from the DLQ; the JSON round trip handles both.
func DecodePayload[T any](env events.Envelope) (*T, error) {
	raw, err := json.Marshal(env.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload of %s: %w", env.Key, err)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("payload of %s does not decode as %T: %w", env.Key, out, err)
	}
	return &out, nil
}
