// Package dlq exposes the dead letter stream to operators: inspect what
// failed, replay it, or drop it.
package dlq

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/appctx"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Queue is the dead letter stream surface the routes need
type Queue interface {
	List(ctx context.Context, count int64) ([]redis.DLQEntry, error)
	ListByTenant(ctx context.Context, tenantID string, count int64) ([]redis.DLQEntry, error)
	Get(ctx context.Context, messageID string) (*redis.DLQEntry, error)
	Delete(ctx context.Context, messageID string) error
	Count(ctx context.Context) (int64, error)
}

// Replayer re-publishes a dead-lettered event
type Replayer interface {
	Replay(ctx context.Context, messageID string) error
}

// Handler serves DLQ routes
type Handler struct {
	queue    Queue
	replayer Replayer
}

// NewHandler creates the DLQ handler
func NewHandler(queue Queue, replayer Replayer) *Handler {
	return &Handler{
		queue:    queue,
		replayer: replayer,
	}
}

// Register registers DLQ routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("/dlq", h.List)
	g.GET("/dlq/count", h.Count)
	g.GET("/dlq/:id", h.Get)
	g.POST("/dlq/:id/replay", h.Replay)
	g.DELETE("/dlq/:id", h.Delete)
}

// List returns the newest dead-lettered events. Scoped to the calling
// tenant when the tenant header is set.
func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "dlq_handler.List")
	defer span.End()

	count, _ := strconv.ParseInt(c.QueryParam("count"), 10, 64)

	tenantID := appctx.GetTenantID(ctx)
	if tenantID != "" {
		entries, err := h.queue.ListByTenant(ctx, tenantID, count)
		if err != nil {
			return httperror.WrapError(http.StatusInternalServerError, err)
		}
		return c.JSON(http.StatusOK, entries)
	}

	entries, err := h.queue.List(ctx, count)
	if err != nil {
		return httperror.WrapError(http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, entries)
}

// Count returns the stream length
func (h *Handler) Count(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "dlq_handler.Count")
	defer span.End()

	count, err := h.queue.Count(ctx)
	if err != nil {
		return httperror.WrapError(http.StatusInternalServerError, err)
	}

	return c.JSON(http.StatusOK, map[string]int64{"count": count})
}

// Get retrieves one dead-lettered event by stream id
func (h *Handler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "dlq_handler.Get")
	defer span.End()

	entry, err := h.queue.Get(ctx, c.Param("id"))
	if err != nil {
		return httperror.WrapError(http.StatusInternalServerError, err)
	}
	if entry == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "dlq entry not found")
	}

	return c.JSON(http.StatusOK, entry)
}

// Replay re-publishes the event behind the entry and removes it
func (h *Handler) Replay(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "dlq_handler.Replay")
	defer span.End()

	if err := h.replayer.Replay(ctx, c.Param("id")); err != nil {
		return httperror.WrapError(http.StatusInternalServerError, err)
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "replayed"})
}

// Delete drops the entry without replaying it
func (h *Handler) Delete(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "dlq_handler.Delete")
	defer span.End()

	if err := h.queue.Delete(ctx, c.Param("id")); err != nil {
		return httperror.WrapError(http.StatusInternalServerError, err)
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "deleted"})
}
