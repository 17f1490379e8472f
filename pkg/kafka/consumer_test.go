package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

type fakeResolver struct {
	tenants  []models.ObserveTenantRequest
	accounts []models.ObserveAccountRequest
	chats    []models.ObserveChatRequest
	messages []models.ObserveMessageRequest
	msgTenants []string
	err      error
}

func (f *fakeResolver) ObserveTenant(_ context.Context, req models.ObserveTenantRequest) (*models.Tenant, error) {
	f.tenants = append(f.tenants, req)
	return &models.Tenant{ID: "tenant-1"}, f.err
}

func (f *fakeResolver) ObserveAccount(_ context.Context, req models.ObserveAccountRequest) (*models.Account, error) {
	f.accounts = append(f.accounts, req)
	return &models.Account{ID: "acct-1"}, f.err
}

func (f *fakeResolver) ObserveChat(_ context.Context, req models.ObserveChatRequest) (*models.Chat, error) {
	f.chats = append(f.chats, req)
	return &models.Chat{ID: "chat-1"}, f.err
}

func (f *fakeResolver) ObserveMessage(_ context.Context, tenantID string, req models.ObserveMessageRequest) (*models.Message, error) {
	f.messages = append(f.messages, req)
	f.msgTenants = append(f.msgTenants, tenantID)
	return &models.Message{ID: "msg-1"}, f.err
}

func newTestConsumer(resolver Resolver) *Consumer {
	return &Consumer{
		resolver: resolver,
		logger:   ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}),
	}
}

func observation(t *testing.T, kind ObservationKind, tenantID string, payload any) *IncomingMessage {
	t.Helper()

	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	value, err := json.Marshal(Observation{Kind: kind, TenantID: tenantID, Payload: raw})
	require.NoError(t, err)

	incoming := &IncomingMessage{Value: value, Headers: map[string]string{}}
	require.NoError(t, incoming.ParseObservation())
	return incoming
}

func TestResolveTenantObservation(t *testing.T) {
	resolver := &fakeResolver{}
	consumer := newTestConsumer(resolver)

	incoming := observation(t, ObservationTenant, "", models.ObserveTenantRequest{
		Source: models.Source{ID: "aad-1", Type: models.SourceTypeTeams},
		Name:   "Contoso",
	})

	require.NoError(t, consumer.resolve(context.Background(), incoming))
	require.Len(t, resolver.tenants, 1)
	assert.Equal(t, "aad-1", resolver.tenants[0].Source.ID)
	assert.Equal(t, "Contoso", resolver.tenants[0].Name)
}

func TestResolveAccountObservationFillsTenantFromEnvelope(t *testing.T) {
	resolver := &fakeResolver{}
	consumer := newTestConsumer(resolver)

	incoming := observation(t, ObservationAccount, "tenant-1", models.ObserveAccountRequest{
		SourceID:   "user-9",
		SourceType: models.SourceTypeSlack,
		Name:       "Dana",
	})

	require.NoError(t, consumer.resolve(context.Background(), incoming))
	require.Len(t, resolver.accounts, 1)
	assert.Equal(t, "tenant-1", resolver.accounts[0].TenantID)
}

func TestResolveMessageObservationUsesEnvelopeTenant(t *testing.T) {
	resolver := &fakeResolver{}
	consumer := newTestConsumer(resolver)

	incoming := observation(t, ObservationMessage, "tenant-1", models.ObserveMessageRequest{
		ChatID:     "chat-1",
		SourceID:   "ts-1",
		SourceType: models.SourceTypeSlack,
		Text:       "hello",
	})

	require.NoError(t, consumer.resolve(context.Background(), incoming))
	require.Len(t, resolver.messages, 1)
	assert.Equal(t, []string{"tenant-1"}, resolver.msgTenants)
}

func TestParseObservationRejectsUnknownKind(t *testing.T) {
	incoming := &IncomingMessage{Value: []byte(`{"kind":"webhook","payload":{}}`)}
	assert.Error(t, incoming.ParseObservation())
}

func TestParseObservationRejectsGarbage(t *testing.T) {
	incoming := &IncomingMessage{Value: []byte(`not json`)}
	assert.Error(t, incoming.ParseObservation())
}

func TestTenantIDFallsBackToHeader(t *testing.T) {
	incoming := &IncomingMessage{
		Value:   []byte(`{"kind":"chat","payload":{}}`),
		Headers: map[string]string{"tenant_id": "tenant-7"},
	}
	require.NoError(t, incoming.ParseObservation())
	assert.Equal(t, "tenant-7", incoming.GetTenantID())
}

func TestIsShutdown(t *testing.T) {
	assert.True(t, isShutdown(context.Canceled))
	assert.True(t, isShutdown(context.DeadlineExceeded))
	assert.True(t, isShutdown(io.EOF))

	// The reader wraps the context error; the check must still see it.
	assert.True(t, isShutdown(fmt.Errorf("fetching message: %w", context.Canceled)))
	assert.True(t, isShutdown(fmt.Errorf("fetching message: %w", context.DeadlineExceeded)))

	assert.False(t, isShutdown(assert.AnError))
	assert.False(t, isShutdown(io.ErrUnexpectedEOF))
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, isPermanent(httperror.NewHTTPError(http.StatusNotFound, "no such tenant")))
	assert.True(t, isPermanent(httperror.NewHTTPError(http.StatusBadRequest, "bad source type")))
	assert.False(t, isPermanent(httperror.NewHTTPError(http.StatusConflict, "lost the race")))
	assert.False(t, isPermanent(httperror.NewHTTPError(http.StatusInternalServerError, "db down")))
	assert.False(t, isPermanent(assert.AnError))
}
