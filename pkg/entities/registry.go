package entities

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/Gobusters/ectologger"
)

// Shape constructs an empty instance of a fragment's concrete type. Platform
// packages register one per tag at startup; there is no runtime scanning.
type Shape func() any

// Registry maps fragment tags to their concrete shapes. It is populated once
// during startup (before any worker runs) and read-only afterwards.
type Registry struct {
	mu     sync.RWMutex
	shapes map[string]Shape
	logger ectologger.Logger
}

func NewRegistry(logger ectologger.Logger) *Registry {
	return &Registry{
		shapes: make(map[string]Shape),
		logger: logger,
	}
}

// Register binds a tag to a shape. Idempotent; the last writer for a tag
// wins. Collisions are logged, not fatal.
func (r *Registry) Register(tag string, shape Shape) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.shapes[tag]; exists {
		r.logger.WithField("tag", tag).Warn("Entity tag registered twice, last registration wins")
	}
	r.shapes[tag] = shape
}

// Lookup returns the shape for a tag.
func (r *Registry) Lookup(tag string) (Shape, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	shape, ok := r.shapes[tag]
	return shape, ok
}

// Decode resolves e's tag to its registered shape and unmarshals into a new
// instance. An unknown tag is not an error: the raw entity is returned as-is
// so fragments from newer modules survive older processes.
func (r *Registry) Decode(e Entity) (any, error) {
	shape, ok := r.Lookup(e.Type)
	if !ok {
		return e, nil
	}

	out := shape()
	if err := unmarshalShape(e, out); err != nil {
		r.logger.WithError(err).WithField("tag", e.Type).Warn("Entity does not match its registered shape")
		return nil, err
	}
	return out, nil
}

func unmarshalShape(e Entity, out any) error {
	if err := json.Unmarshal(e.Data, out); err != nil {
		return fmt.Errorf("entity %q does not decode as %T: %w", e.Type, out, err)
	}
	return nil
}

// Tags returns all registered tags, sorted.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tags := make([]string, 0, len(r.shapes))
	for tag := range r.shapes {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
