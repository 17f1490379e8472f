package models

import (
	"database/sql/driver"

	"github.com/Ramsey-B/fern/pkg/database"
)

// SourceType identifies one external platform kind.
type SourceType string

const (
	SourceTypeTeams  SourceType = "teams"
	SourceTypeSlack  SourceType = "slack"
	SourceTypeGithub SourceType = "github"
)

// KnownSourceTypes lists every platform the process can route events to. The
// dispatcher validates at startup that each one has a registered driver.
func KnownSourceTypes() []SourceType {
	return []SourceType{SourceTypeTeams, SourceTypeSlack, SourceTypeGithub}
}

// Valid reports whether s is a known platform kind.
func (s SourceType) Valid() bool {
	switch s {
	case SourceTypeTeams, SourceTypeSlack, SourceTypeGithub:
		return true
	}
	return false
}

// Source is one connection between a tenant and an external platform
// instance (e.g. one Teams org, one GitHub installation).
type Source struct {
	ID   string     `json:"id"`
	Type SourceType `json:"type"`
	URL  string     `json:"url,omitempty"`
}

// SourceList is the ordered source set on a Tenant. Rows live in the
// tenant_sources table; the list also scans/values as jsonb for callers
// that carry it in a payload column.
// At most one element per (id, type) pair.
type SourceList []Source

// Contains reports whether the list already holds the (id, type) pair.
func (l SourceList) Contains(src Source) bool {
	for _, s := range l {
		if s.ID == src.ID && s.Type == src.Type {
			return true
		}
	}
	return false
}

func (l *SourceList) Scan(src any) error {
	if src == nil {
		*l = nil
		return nil
	}
	var col database.JSONB[SourceList]
	if err := col.Scan(src); err != nil {
		return err
	}
	*l = col.Data
	return nil
}

func (l SourceList) Value() (driver.Value, error) {
	if l == nil {
		l = SourceList{}
	}
	return database.JSONB[SourceList]{Data: l}.Value()
}
