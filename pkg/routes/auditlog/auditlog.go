// Package auditlog exposes the per-tenant audit trail.
package auditlog

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/appctx"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Reader lists audit rows
type Reader interface {
	ListByTenant(ctx context.Context, tenantID string, logType string, limit int) ([]models.Log, error)
}

// Handler serves audit log routes
type Handler struct {
	logs Reader
}

// NewHandler creates the audit log handler
func NewHandler(logs Reader) *Handler {
	return &Handler{logs: logs}
}

// Register registers audit log routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("/logs", h.List)
}

// List returns the tenant's audit rows, newest first. Filter with ?type=job.
func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "auditlog_handler.List")
	defer span.End()

	tenantID := appctx.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	logs, err := h.logs.ListByTenant(ctx, tenantID, c.QueryParam("type"), limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, logs)
}
