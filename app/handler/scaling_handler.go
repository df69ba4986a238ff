package handler

import (
	"net/http"
	"strconv"

	"chatplane/pkg/allocator"
	"chatplane/pkg/logger"
	mysqlstore "chatplane/pkg/store/mysql"

	"github.com/gin-gonic/gin"
)

// ScalingHandler handles autoscaler operations
type ScalingHandler struct {
	autoscaler *allocator.AutoScaler
	metrics    *allocator.MetricsCollector
	decisions  *mysqlstore.ScalingDecisionRepository
}

// NewScalingHandler creates scaling handler
func NewScalingHandler(as *allocator.AutoScaler, metrics *allocator.MetricsCollector, decisions *mysqlstore.ScalingDecisionRepository) *ScalingHandler {
	return &ScalingHandler{
		autoscaler: as,
		metrics:    metrics,
		decisions:  decisions,
	}
}

// GetStatus returns the autoscaler state and the latest metrics snapshot
// @Summary Get autoscaler status
// @Tags Scaling
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/scaling/status [get]
func (h *ScalingHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"enabled":     h.autoscaler.IsEnabled(),
		"running":     h.autoscaler.IsRunning(),
		"lastRunTime": h.autoscaler.LastRunTime(),
		"metrics":     h.metrics.Last(),
	})
}

// GetMetrics collects and returns a fresh global metrics snapshot
// @Summary Collect global metrics
// @Tags Scaling
// @Produce json
// @Success 200 {object} model.GlobalMetrics
// @Router /api/v1/scaling/metrics [get]
func (h *ScalingHandler) GetMetrics(c *gin.Context) {
	m, err := h.metrics.Collect(c.Request.Context())
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to collect metrics: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, m)
}

// Enable enables the autoscaling loop
// @Summary Enable autoscaler
// @Tags Scaling
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/v1/scaling/enable [post]
func (h *ScalingHandler) Enable(c *gin.Context) {
	h.autoscaler.Enable()
	logger.InfoCtx(c.Request.Context(), "autoscaler enabled")
	c.JSON(http.StatusOK, gin.H{"status": "enabled"})
}

// Disable disables the autoscaling loop
// @Summary Disable autoscaler
// @Tags Scaling
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/v1/scaling/disable [post]
func (h *ScalingHandler) Disable(c *gin.Context) {
	h.autoscaler.Disable()
	logger.InfoCtx(c.Request.Context(), "autoscaler disabled")
	c.JSON(http.StatusOK, gin.H{"status": "disabled"})
}

// Trigger runs one scaling pass immediately, bypassing the enabled flag
// @Summary Force a scaling check
// @Tags Scaling
// @Produce json
// @Success 200 {object} model.ScalingDecision
// @Router /api/v1/scaling/trigger [post]
func (h *ScalingHandler) Trigger(c *gin.Context) {
	decision, err := h.autoscaler.RunOnce(c.Request.Context())
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "manual scaling pass failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if decision == nil {
		// Another instance held the lock.
		c.JSON(http.StatusOK, gin.H{"status": "skipped"})
		return
	}

	c.JSON(http.StatusOK, decision)
}

// GetHistory returns recent scaling decisions
// @Summary Get scaling history
// @Tags Scaling
// @Param limit query int false "Limit (default 20)"
// @Param source query string false "ring (in-memory) or store (persisted, default)"
// @Produce json
// @Success 200 {array} model.ScalingDecision
// @Router /api/v1/scaling/history [get]
func (h *ScalingHandler) GetHistory(c *gin.Context) {
	limit := 20
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	// The in-memory ring includes no-action passes; the store holds only
	// executed decisions.
	if c.Query("source") == "ring" {
		c.JSON(http.StatusOK, h.autoscaler.History(limit))
		return
	}

	decisions, err := h.decisions.ListRecent(c.Request.Context(), limit)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to list scaling history: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, decisions)
}
