package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/reqtrace/internal/api/middleware"
	"github.com/GriffinCanCode/reqtrace/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/reqtrace/internal/infrastructure/tracing"
)

// Version is reported by Root and Health.
const Version = "0.1.0"

// ErrItemNotFound is returned for unknown item ids.
var ErrItemNotFound = errors.New("item not found")

// Item is a demo resource.
type Item struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// NameRequest is the body of POST /name.
type NameRequest struct {
	Name string `json:"name" binding:"required"`
}

// Handlers serves the demo API that exercises the tracing pipeline.
type Handlers struct {
	service string
	logger  *zap.Logger
	metrics *monitoring.Metrics
	items   map[string]Item
	started time.Time
}

// NewHandlers creates the demo handlers.
func NewHandlers(service string, logger *zap.Logger, metrics *monitoring.Metrics) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		service: service,
		logger:  logger,
		metrics: metrics,
		items: map[string]Item{
			"1": {ID: "1", Name: "alpha"},
			"2": {ID: "2", Name: "beta"},
			"3": {ID: "3", Name: "gamma"},
		},
		started: time.Now(),
	}
}

// Register mounts every route on r.
func (h *Handlers) Register(r gin.IRoutes, metricsPath string) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/items/:id", h.GetItem)
	r.POST("/name", h.SetName)
	r.GET("/fail", h.Fail)
	if h.metrics != nil && metricsPath != "" {
		r.GET(metricsPath, gin.WrapH(h.metrics.Handler()))
		r.GET(metricsPath+"/json", h.MetricsJSON)
	}
}

// Root handles the root endpoint
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "online",
		"service":  h.service,
		"version":  Version,
		"trace_id": tracing.GetTraceID(c.Request.Context()),
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": h.service,
		"version": Version,
		"uptime":  time.Since(h.started).Round(time.Second).String(),
	})
}

// MetricsJSON reports pipeline totals as JSON.
func (h *Handlers) MetricsJSON(c *gin.Context) {
	c.JSON(http.StatusOK, h.metrics.Snapshot())
}

// GetItem looks an item up inside a nested span.
func (h *Handlers) GetItem(c *gin.Context) {
	id := c.Param("id")
	middleware.AddAttribute(c, "item.id", id)

	item, err := h.lookup(c, id)
	if err != nil {
		h.logger.Debug("item lookup failed",
			append(tracing.LogFields(c.Request.Context()), zap.String("id", id), zap.Error(err))...)
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handlers) lookup(c *gin.Context, id string) (Item, error) {
	if t := tracing.FromContext(c.Request.Context()); t != nil {
		span := t.StartSpan("items.lookup", tracing.SpanKindUnspecified)
		span.SetAttribute("item.id", id)
		defer t.EndSpan()
	}

	item, ok := h.items[id]
	if !ok {
		return Item{}, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	return item, nil
}

// SetName greets the name posted in the body.
func (h *Handlers) SetName(c *gin.Context) {
	var req NameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	name := strings.TrimSpace(req.Name)
	middleware.AddAttribute(c, "greeting.name_length", len(name))
	c.JSON(http.StatusOK, gin.H{"message": "hello, " + name})
}

// Fail always fails. The error is attached to the context so it ends up on
// the request span.
func (h *Handlers) Fail(c *gin.Context) {
	err := errors.New("deliberate failure")
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
