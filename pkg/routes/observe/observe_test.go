package observe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/models"
)

type fakeResolver struct {
	tenantReqs  []models.ObserveTenantRequest
	accountReqs []models.ObserveAccountRequest
	chatReqs    []models.ObserveChatRequest
	messageReqs []models.ObserveMessageRequest
	msgTenants  []string
	sources     []models.Source
	sourceErr   error
}

func (f *fakeResolver) ObserveTenant(_ context.Context, req models.ObserveTenantRequest) (*models.Tenant, error) {
	f.tenantReqs = append(f.tenantReqs, req)
	return &models.Tenant{ID: "tenant-1", Name: req.Name}, nil
}

func (f *fakeResolver) AddTenantSource(_ context.Context, tenantID string, source models.Source) (*models.Tenant, error) {
	if f.sourceErr != nil {
		return nil, f.sourceErr
	}
	f.sources = append(f.sources, source)
	return &models.Tenant{ID: tenantID}, nil
}

func (f *fakeResolver) ObserveAccount(_ context.Context, req models.ObserveAccountRequest) (*models.Account, error) {
	f.accountReqs = append(f.accountReqs, req)
	return &models.Account{ID: "acct-1", TenantID: req.TenantID}, nil
}

func (f *fakeResolver) ObserveChat(_ context.Context, req models.ObserveChatRequest) (*models.Chat, error) {
	f.chatReqs = append(f.chatReqs, req)
	return &models.Chat{ID: "chat-1", TenantID: req.TenantID}, nil
}

func (f *fakeResolver) ObserveMessage(_ context.Context, tenantID string, req models.ObserveMessageRequest) (*models.Message, error) {
	f.messageReqs = append(f.messageReqs, req)
	f.msgTenants = append(f.msgTenants, tenantID)
	return &models.Message{ID: "msg-1", ChatID: req.ChatID}, nil
}

type fakeTenants struct{}

func (f *fakeTenants) Get(_ context.Context, id string) (*models.Tenant, error) {
	if id != "tenant-1" {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "tenant not found")
	}
	return &models.Tenant{ID: id, Name: "Acme"}, nil
}

type fakeAccounts struct{}

func (f *fakeAccounts) Get(_ context.Context, tenantID, id string) (*models.Account, error) {
	return &models.Account{ID: id, TenantID: tenantID}, nil
}

func (f *fakeAccounts) List(_ context.Context, tenantID string) ([]models.Account, error) {
	return []models.Account{{ID: "acct-1", TenantID: tenantID}}, nil
}

type fakeChats struct{}

func (f *fakeChats) Get(_ context.Context, tenantID, id string) (*models.Chat, error) {
	return &models.Chat{ID: id, TenantID: tenantID}, nil
}

func (f *fakeChats) ListByTenant(_ context.Context, tenantID string) ([]models.Chat, error) {
	return []models.Chat{{ID: "chat-1", TenantID: tenantID}}, nil
}

type fakeMessages struct {
	limits []int
}

func (f *fakeMessages) ListByChat(_ context.Context, chatID string, limit int) ([]models.Message, error) {
	f.limits = append(f.limits, limit)
	return []models.Message{{ID: "msg-1", ChatID: chatID}}, nil
}

func newHarness() (*echo.Echo, *fakeResolver, *fakeMessages) {
	resolver := &fakeResolver{}
	messages := &fakeMessages{}

	e := echo.New()
	e.Use(middleware.Context())
	e.HTTPErrorHandler = middleware.Error(ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
	NewHandler(resolver, &fakeTenants{}, &fakeAccounts{}, &fakeChats{}, messages).Register(e.Group("/api/v1"))
	return e, resolver, messages
}

func do(e *echo.Echo, method, path, tenantID, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if tenantID != "" {
		req.Header.Set(middleware.HeaderTenantID, tenantID)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestObserveTenant(t *testing.T) {
	e, resolver, _ := newHarness()

	rec := do(e, http.MethodPost, "/api/v1/observations/tenant", "", `{"source":{"id":"team-9","type":"teams"},"name":"Acme"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, resolver.tenantReqs, 1)
	assert.Equal(t, "team-9", resolver.tenantReqs[0].Source.ID)
	assert.Equal(t, models.SourceTypeTeams, resolver.tenantReqs[0].Source.Type)
}

func TestObserveAccountFillsTenantFromHeader(t *testing.T) {
	e, resolver, _ := newHarness()

	rec := do(e, http.MethodPost, "/api/v1/observations/account", "tenant-1", `{"source_id":"U123","source_type":"slack","name":"Pat"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, resolver.accountReqs, 1)
	assert.Equal(t, "tenant-1", resolver.accountReqs[0].TenantID)
}

func TestObserveAccountWithoutTenantFailsValidation(t *testing.T) {
	e, resolver, _ := newHarness()

	rec := do(e, http.MethodPost, "/api/v1/observations/account", "", `{"source_id":"U123","source_type":"slack"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, resolver.accountReqs)
}

func TestObserveChat(t *testing.T) {
	e, resolver, _ := newHarness()

	rec := do(e, http.MethodPost, "/api/v1/observations/chat", "tenant-1", `{"source_id":"C42","source_type":"slack","name":"general"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, resolver.chatReqs, 1)
	assert.Equal(t, "tenant-1", resolver.chatReqs[0].TenantID)
}

func TestObserveMessageRequiresTenantHeader(t *testing.T) {
	e, resolver, _ := newHarness()

	rec := do(e, http.MethodPost, "/api/v1/observations/message", "", `{"chat_id":"chat-1","source_id":"m1","source_type":"slack"}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, resolver.messageReqs)
}

func TestObserveMessage(t *testing.T) {
	e, resolver, _ := newHarness()

	rec := do(e, http.MethodPost, "/api/v1/observations/message", "tenant-1", `{"chat_id":"chat-1","source_id":"m1","source_type":"slack","text":"hi"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, resolver.messageReqs, 1)
	assert.Equal(t, []string{"tenant-1"}, resolver.msgTenants)
}

func TestObserveMessageMissingChatFailsValidation(t *testing.T) {
	e, resolver, _ := newHarness()

	rec := do(e, http.MethodPost, "/api/v1/observations/message", "tenant-1", `{"source_id":"m1","source_type":"slack"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, resolver.messageReqs)
}

func TestAddTenantSource(t *testing.T) {
	e, resolver, _ := newHarness()

	rec := do(e, http.MethodPost, "/api/v1/tenants/tenant-1/sources", "", `{"id":"T99","type":"slack"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, resolver.sources, 1)
	assert.Equal(t, "T99", resolver.sources[0].ID)
}

func TestAddTenantSourceRejectsEmptySource(t *testing.T) {
	e, resolver, _ := newHarness()

	rec := do(e, http.MethodPost, "/api/v1/tenants/tenant-1/sources", "", `{"id":"","type":""}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, resolver.sources)
}

func TestAddTenantSourceConflict(t *testing.T) {
	e, resolver, _ := newHarness()
	resolver.sourceErr = httperror.NewHTTPError(http.StatusConflict, "source already linked to another tenant")

	rec := do(e, http.MethodPost, "/api/v1/tenants/tenant-1/sources", "", `{"id":"T99","type":"slack"}`)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetTenant(t *testing.T) {
	e, _, _ := newHarness()

	rec := do(e, http.MethodGet, "/api/v1/tenants/tenant-1", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var tenant models.Tenant
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tenant))
	assert.Equal(t, "Acme", tenant.Name)

	rec = do(e, http.MethodGet, "/api/v1/tenants/missing", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAccountsRequiresTenant(t *testing.T) {
	e, _, _ := newHarness()

	rec := do(e, http.MethodGet, "/api/v1/accounts", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(e, http.MethodGet, "/api/v1/accounts", "tenant-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var accounts []models.Account
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accounts))
	require.Len(t, accounts, 1)
	assert.Equal(t, "tenant-1", accounts[0].TenantID)
}

func TestListChatMessagesPassesLimit(t *testing.T) {
	e, _, messages := newHarness()

	rec := do(e, http.MethodGet, "/api/v1/chats/chat-1/messages?limit=25", "tenant-1", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int{25}, messages.limits)
}
