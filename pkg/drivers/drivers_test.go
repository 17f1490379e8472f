package drivers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/models"
)

type stubDriver struct {
	sourceType models.SourceType
}

func (d *stubDriver) SourceType() models.SourceType { return d.sourceType }

func (d *stubDriver) Handle(_ context.Context, _ events.Envelope) (*Result, error) {
	return nil, nil
}

func allStubDrivers() []Driver {
	var out []Driver
	for _, st := range models.KnownSourceTypes() {
		out = append(out, &stubDriver{sourceType: st})
	}
	return out
}

func TestNewTable_CompleteSetValidates(t *testing.T) {
	table, err := NewTable(allStubDrivers()...)
	require.NoError(t, err)

	for _, st := range models.KnownSourceTypes() {
		d, err := table.Get(st)
		require.NoError(t, err)
		assert.Equal(t, st, d.SourceType())
	}
}

func TestNewTable_MissingDriverFailsFast(t *testing.T) {
	_, err := NewTable(&stubDriver{sourceType: models.SourceTypeTeams})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no driver registered")
}

func TestNewTable_DuplicateDriver(t *testing.T) {
	drivers := append(allStubDrivers(), &stubDriver{sourceType: models.SourceTypeTeams})
	_, err := NewTable(drivers...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate driver")
}

func TestNewTable_UnknownSourceType(t *testing.T) {
	_, err := NewTable(&stubDriver{sourceType: models.SourceType("discord")})
	assert.Error(t, err)
}

func TestTable_GetRoutingGap(t *testing.T) {
	table := &Table{drivers: map[models.SourceType]Driver{}}
	_, err := table.Get(models.SourceTypeSlack)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "routing gap")
}

func TestDecodePayload_TypedAndGeneric(t *testing.T) {
	msg := models.Message{ID: "m1", ChatID: "c1", Text: "hello"}

	env := events.NewEnvelope(events.CategoryMessage, events.ActionCreate, models.SourceTypeTeams, "t1", msg)
	decoded, err := DecodePayload[models.Message](env)
	require.NoError(t, err)
	assert.Equal(t, "hello", decoded.Text)

	// Replayed envelopes carry generic maps instead of typed payloads.
	env.Payload = map[string]any{"id": "m1", "chat_id": "c1", "text": "hello"}
	decoded, err = DecodePayload[models.Message](env)
	require.NoError(t, err)
	assert.Equal(t, "hello", decoded.Text)
}
