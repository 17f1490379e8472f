// Package observe exposes the observation ingest and read surface for the
// identity store.
package observe

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/appctx"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var validate = validator.New()

// Resolver folds observations into the store
type Resolver interface {
	ObserveTenant(ctx context.Context, req models.ObserveTenantRequest) (*models.Tenant, error)
	AddTenantSource(ctx context.Context, tenantID string, source models.Source) (*models.Tenant, error)
	ObserveAccount(ctx context.Context, req models.ObserveAccountRequest) (*models.Account, error)
	ObserveChat(ctx context.Context, req models.ObserveChatRequest) (*models.Chat, error)
	ObserveMessage(ctx context.Context, tenantID string, req models.ObserveMessageRequest) (*models.Message, error)
}

// TenantReader reads tenants for the GET surface
type TenantReader interface {
	Get(ctx context.Context, id string) (*models.Tenant, error)
}

// AccountReader reads accounts for the GET surface
type AccountReader interface {
	Get(ctx context.Context, tenantID string, id string) (*models.Account, error)
	List(ctx context.Context, tenantID string) ([]models.Account, error)
}

// ChatReader reads chats for the GET surface
type ChatReader interface {
	Get(ctx context.Context, tenantID string, id string) (*models.Chat, error)
	ListByTenant(ctx context.Context, tenantID string) ([]models.Chat, error)
}

// MessageReader reads messages for the GET surface
type MessageReader interface {
	ListByChat(ctx context.Context, chatID string, limit int) ([]models.Message, error)
}

// Handler serves observation routes
type Handler struct {
	resolver Resolver
	tenants  TenantReader
	accounts AccountReader
	chats    ChatReader
	messages MessageReader
}

// NewHandler creates the observation handler
func NewHandler(resolver Resolver, tenants TenantReader, accounts AccountReader, chats ChatReader, messages MessageReader) *Handler {
	return &Handler{
		resolver: resolver,
		tenants:  tenants,
		accounts: accounts,
		chats:    chats,
		messages: messages,
	}
}

// Register registers observation routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("/observations/tenant", h.ObserveTenant)
	g.POST("/observations/account", h.ObserveAccount)
	g.POST("/observations/chat", h.ObserveChat)
	g.POST("/observations/message", h.ObserveMessage)

	g.GET("/tenants/:id", h.GetTenant)
	g.POST("/tenants/:id/sources", h.AddTenantSource)

	g.GET("/accounts", h.ListAccounts)
	g.GET("/accounts/:id", h.GetAccount)

	g.GET("/chats", h.ListChats)
	g.GET("/chats/:id", h.GetChat)
	g.GET("/chats/:id/messages", h.ListMessages)
}

// ObserveTenant records a tenant observation
func (h *Handler) ObserveTenant(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "observe_handler.ObserveTenant")
	defer span.End()

	var req models.ObserveTenantRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	tenant, err := h.resolver.ObserveTenant(ctx, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, tenant)
}

// AddTenantSource attaches another platform source to an existing tenant
func (h *Handler) AddTenantSource(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "observe_handler.AddTenantSource")
	defer span.End()

	var source models.Source
	if err := c.Bind(&source); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if source.ID == "" || source.Type == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "source id and type are required")
	}

	tenant, err := h.resolver.AddTenantSource(ctx, c.Param("id"), source)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, tenant)
}

// GetTenant retrieves one tenant
func (h *Handler) GetTenant(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "observe_handler.GetTenant")
	defer span.End()

	tenant, err := h.tenants.Get(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, tenant)
}

// ObserveAccount records an account observation
func (h *Handler) ObserveAccount(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "observe_handler.ObserveAccount")
	defer span.End()

	var req models.ObserveAccountRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.TenantID == "" {
		req.TenantID = appctx.GetTenantID(ctx)
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	account, err := h.resolver.ObserveAccount(ctx, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, account)
}

// ListAccounts lists the tenant's accounts
func (h *Handler) ListAccounts(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "observe_handler.ListAccounts")
	defer span.End()

	tenantID := appctx.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	accounts, err := h.accounts.List(ctx, tenantID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, accounts)
}

// GetAccount retrieves one account in the tenant
func (h *Handler) GetAccount(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "observe_handler.GetAccount")
	defer span.End()

	tenantID := appctx.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	account, err := h.accounts.Get(ctx, tenantID, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, account)
}

// ObserveChat records a chat observation
func (h *Handler) ObserveChat(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "observe_handler.ObserveChat")
	defer span.End()

	var req models.ObserveChatRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.TenantID == "" {
		req.TenantID = appctx.GetTenantID(ctx)
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	chat, err := h.resolver.ObserveChat(ctx, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, chat)
}

// ListChats lists the tenant's chats
func (h *Handler) ListChats(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "observe_handler.ListChats")
	defer span.End()

	tenantID := appctx.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	chats, err := h.chats.ListByTenant(ctx, tenantID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, chats)
}

// GetChat retrieves one chat in the tenant
func (h *Handler) GetChat(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "observe_handler.GetChat")
	defer span.End()

	tenantID := appctx.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	chat, err := h.chats.Get(ctx, tenantID, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, chat)
}

// ObserveMessage records a message observation
func (h *Handler) ObserveMessage(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "observe_handler.ObserveMessage")
	defer span.End()

	tenantID := appctx.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	var req models.ObserveMessageRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	msg, err := h.resolver.ObserveMessage(ctx, tenantID, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, msg)
}

// ListMessages lists a chat's messages, newest first
func (h *Handler) ListMessages(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "observe_handler.ListMessages")
	defer span.End()

	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	messages, err := h.messages.ListByChat(ctx, c.Param("id"), limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, messages)
}
