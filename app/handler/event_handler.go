package handler

import (
	"errors"
	"net/http"
	"time"

	"chatplane/internal/model"
	"chatplane/pkg/events"
	"chatplane/pkg/logger"

	"github.com/gin-gonic/gin"
)

// EventHandler handles event publishing and queue inspection
type EventHandler struct {
	router *events.Router
}

// NewEventHandler creates event handler
func NewEventHandler(router *events.Router) *EventHandler {
	return &EventHandler{router: router}
}

type publishRequest struct {
	TenantID      string                 `json:"tenant_id" binding:"required"`
	Kind          string                 `json:"kind" binding:"required"`
	Payload       map[string]interface{} `json:"payload"`
	CorrelationID string                 `json:"correlation_id"`
}

// Publish classifies an event and enqueues it on its priority lane
// @Summary Publish event
// @Tags Event
// @Param event body publishRequest true "Event"
// @Produce json
// @Success 202 {object} map[string]string
// @Router /api/v1/events [post]
func (h *EventHandler) Publish(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	id, err := h.router.Publish(c.Request.Context(), &model.Event{
		Kind:          model.EventKind(req.Kind),
		TenantID:      req.TenantID,
		Payload:       req.Payload,
		CorrelationID: req.CorrelationID,
	})
	if err != nil {
		switch {
		case errors.Is(err, model.ErrRateLimitExceeded):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
		case errors.Is(err, model.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
		default:
			logger.ErrorCtx(c.Request.Context(), "publish failed, tenant: %s, kind: %s, err: %v",
				req.TenantID, req.Kind, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"id": id})
}

type scheduleRequest struct {
	TenantID string                 `json:"tenant_id" binding:"required"`
	Kind     string                 `json:"kind"`
	Payload  map[string]interface{} `json:"payload"`
	SendAt   time.Time              `json:"send_at"`
}

// Schedule enqueues a message for future delivery
// @Summary Schedule message
// @Tags Event
// @Param message body scheduleRequest true "Message"
// @Produce json
// @Success 202 {object} map[string]string
// @Router /api/v1/events/schedule [post]
func (h *EventHandler) Schedule(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	id, err := h.router.ScheduleMessage(c.Request.Context(), &model.Event{
		Kind:     model.EventKind(req.Kind),
		TenantID: req.TenantID,
		Payload:  req.Payload,
	}, req.SendAt)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrRateLimitExceeded):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
		case errors.Is(err, model.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
		default:
			logger.ErrorCtx(c.Request.Context(), "schedule failed, tenant: %s, err: %v", req.TenantID, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"id": id, "send_at": req.SendAt})
}

// Lanes returns per-lane queue statistics
// @Summary Get lane statistics
// @Tags Event
// @Produce json
// @Success 200 {array} events.LaneStats
// @Router /api/v1/events/lanes [get]
func (h *EventHandler) Lanes(c *gin.Context) {
	stats, err := h.router.LaneStats(c.Request.Context())
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to inspect lanes: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// Counters returns the router's throughput counters
// @Summary Get event counters
// @Tags Event
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/events/counters [get]
func (h *EventHandler) Counters(c *gin.Context) {
	total, processed, failed := h.router.Counters().Totals()
	c.JSON(http.StatusOK, gin.H{
		"published":         total,
		"processed":         processed,
		"failed":            failed,
		"events_per_second": h.router.EventsPerSecond(),
	})
}
