package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
)

// ObservationKind names which record kind an inbound observation describes
type ObservationKind string

const (
	ObservationTenant  ObservationKind = "tenant"
	ObservationAccount ObservationKind = "account"
	ObservationChat    ObservationKind = "chat"
	ObservationMessage ObservationKind = "message"
)

// Valid reports whether the kind is one the consumer can resolve
func (k ObservationKind) Valid() bool {
	switch k {
	case ObservationTenant, ObservationAccount, ObservationChat, ObservationMessage:
		return true
	}
	return false
}

// Observation is the wire shape platform connectors publish. The
// payload decodes into the observe request matching Kind; message
// observations also carry the tenant they belong to.
type Observation struct {
	Kind     ObservationKind `json:"kind"`
	TenantID string          `json:"tenant_id,omitempty"`
	Payload  json.RawMessage `json:"payload"`
}

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	Observation *Observation
}

// ParseObservation parses the message value as an observation
func (m *IncomingMessage) ParseObservation() error {
	var obs Observation
	if err := json.Unmarshal(m.Value, &obs); err != nil {
		return err
	}
	if !obs.Kind.Valid() {
		return fmt.Errorf("unknown observation kind %q", obs.Kind)
	}
	m.Observation = &obs
	return nil
}

// GetTenantID returns the tenant the observation belongs to, falling back to
// the tenant_id header for connectors that set it there.
func (m *IncomingMessage) GetTenantID() string {
	if m.Observation != nil && m.Observation.TenantID != "" {
		return m.Observation.TenantID
	}
	return m.Headers["tenant_id"]
}

// DecodeTenant decodes the payload as a tenant observation
func (m *Observation) DecodeTenant() (*models.ObserveTenantRequest, error) {
	var req models.ObserveTenantRequest
	if err := json.Unmarshal(m.Payload, &req); err != nil {
		return nil, fmt.Errorf("tenant observation payload: %w", err)
	}
	return &req, nil
}

// DecodeAccount decodes the payload as an account observation
func (m *Observation) DecodeAccount() (*models.ObserveAccountRequest, error) {
	var req models.ObserveAccountRequest
	if err := json.Unmarshal(m.Payload, &req); err != nil {
		return nil, fmt.Errorf("account observation payload: %w", err)
	}
	return &req, nil
}

// DecodeChat decodes the payload as a chat observation
func (m *Observation) DecodeChat() (*models.ObserveChatRequest, error) {
	var req models.ObserveChatRequest
	if err := json.Unmarshal(m.Payload, &req); err != nil {
		return nil, fmt.Errorf("chat observation payload: %w", err)
	}
	return &req, nil
}

// DecodeMessage decodes the payload as a message observation
func (m *Observation) DecodeMessage() (*models.ObserveMessageRequest, error) {
	var req models.ObserveMessageRequest
	if err := json.Unmarshal(m.Payload, &req); err != nil {
		return nil, fmt.Errorf("message observation payload: %w", err)
	}
	return &req, nil
}
