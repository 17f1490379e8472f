// Package entities implements the type-tagged fragment lists that platform
// packages attach to shared records (tenants, accounts, chats, messages,
// jobs). Each fragment carries a string tag like "teams.account"; the list is
// persisted as a single jsonb column on the owning record.
package entities

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/Ramsey-B/fern/pkg/database"
)

// Entity is one type-tagged fragment. Data is kept raw so fragments written
// by a newer module round-trip through an older one untouched.
type Entity struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// New builds an Entity from any serializable value.
func New(tag string, value any) (Entity, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return Entity{}, fmt.Errorf("failed to marshal entity %q: %w", tag, err)
	}
	return Entity{Type: tag, Data: data}, nil
}

// MustNew is New for statically known shapes, used in tests and registrations.
func MustNew(tag string, value any) Entity {
	e, err := New(tag, value)
	if err != nil {
		panic(err)
	}
	return e
}

// List is an ordered fragment list. At most one element per tag.
type List []Entity

// Put returns a copy of the list with e replacing any existing element of the
// same tag, else appended. Value semantics - callers must reassign.
func Put(list List, e Entity) List {
	out := make(List, len(list), len(list)+1)
	copy(out, list)
	for i := range out {
		if out[i].Type == e.Type {
			out[i] = e
			return out
		}
	}
	return append(out, e)
}

// Get returns the first fragment matching tag.
func Get(list List, tag string) (Entity, bool) {
	for _, e := range list {
		if e.Type == tag {
			return e, true
		}
	}
	return Entity{}, false
}

// GetAs decodes the first fragment matching tag as T. A decode mismatch is
// returned as an error; callers treat it as "fragment absent" and log it.
func GetAs[T any](list List, tag string) (T, bool, error) {
	var out T
	e, ok := Get(list, tag)
	if !ok {
		return out, false, nil
	}
	if err := json.Unmarshal(e.Data, &out); err != nil {
		return out, false, fmt.Errorf("entity %q does not decode as %T: %w", tag, out, err)
	}
	return out, true, nil
}

// Tags returns the tags present in the list, in order.
func (l List) Tags() []string {
	tags := make([]string, 0, len(l))
	for _, e := range l {
		tags = append(tags, e.Type)
	}
	return tags
}

func (l *List) Scan(src any) error {
	if src == nil {
		*l = nil
		return nil
	}
	var col database.JSONB[List]
	if err := col.Scan(src); err != nil {
		return fmt.Errorf("entities.List.Scan: %w", err)
	}
	*l = col.Data
	return nil
}

func (l List) Value() (driver.Value, error) {
	if l == nil {
		l = List{}
	}
	return database.JSONB[List]{Data: l}.Value()
}
