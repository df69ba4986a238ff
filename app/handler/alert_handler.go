package handler

import (
	"errors"
	"net/http"

	"chatplane/internal/model"
	"chatplane/pkg/logger"
	"chatplane/pkg/monitoring"
	mysqlstore "chatplane/pkg/store/mysql"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AlertHandler handles alert rule management and evaluation
type AlertHandler struct {
	rules     *mysqlstore.AlertRuleRepository
	evaluator *monitoring.Evaluator
}

// NewAlertHandler creates alert handler
func NewAlertHandler(rules *mysqlstore.AlertRuleRepository, evaluator *monitoring.Evaluator) *AlertHandler {
	return &AlertHandler{
		rules:     rules,
		evaluator: evaluator,
	}
}

type createRuleRequest struct {
	Name            string   `json:"name" binding:"required"`
	MetricPath      string   `json:"metric_path" binding:"required"`
	Operator        string   `json:"operator" binding:"required"`
	Threshold       float64  `json:"threshold"`
	WindowSeconds   int      `json:"window_seconds"`
	Actions         []string `json:"actions"`
	Severity        string   `json:"severity"`
	CooldownSeconds int      `json:"cooldown_seconds"`
	Enabled         *bool    `json:"enabled"`
}

// Create stores a new alert rule
// @Summary Create alert rule
// @Tags Alert
// @Param rule body createRuleRequest true "Rule"
// @Produce json
// @Success 201 {object} model.AlertRule
// @Router /api/v1/alerts/rules [post]
func (h *AlertHandler) Create(c *gin.Context) {
	var req createRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	op := model.AlertOperator(req.Operator)
	switch op {
	case model.OpGreaterThan, model.OpLessThan, model.OpGreaterEq, model.OpLessEq:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown operator"})
		return
	}

	severity := model.AlertSeverity(req.Severity)
	if severity == "" {
		severity = model.SeverityWarning
	}
	actions := req.Actions
	if len(actions) == 0 {
		actions = []string{"log"}
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	rule := &model.AlertRule{
		ID:              uuid.New().String(),
		Name:            req.Name,
		MetricPath:      req.MetricPath,
		Operator:        op,
		Threshold:       req.Threshold,
		WindowSeconds:   req.WindowSeconds,
		Actions:         actions,
		Severity:        severity,
		CooldownSeconds: req.CooldownSeconds,
		Enabled:         enabled,
	}
	if err := h.rules.Create(c.Request.Context(), rule); err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to create alert rule: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, rule)
}

// List returns all alert rules
// @Summary List alert rules
// @Tags Alert
// @Produce json
// @Success 200 {array} model.AlertRule
// @Router /api/v1/alerts/rules [get]
func (h *AlertHandler) List(c *gin.Context) {
	rules, err := h.rules.List(c.Request.Context())
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to list alert rules: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, rules)
}

// Get returns one alert rule
// @Summary Get alert rule
// @Tags Alert
// @Param id path string true "Rule ID"
// @Produce json
// @Success 200 {object} model.AlertRule
// @Router /api/v1/alerts/rules/{id} [get]
func (h *AlertHandler) Get(c *gin.Context) {
	rule, err := h.rules.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
			return
		}
		logger.ErrorCtx(c.Request.Context(), "failed to get alert rule: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, rule)
}

// Delete removes an alert rule
// @Summary Delete alert rule
// @Tags Alert
// @Param id path string true "Rule ID"
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/v1/alerts/rules/{id} [delete]
func (h *AlertHandler) Delete(c *gin.Context) {
	if err := h.rules.Delete(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
			return
		}
		logger.ErrorCtx(c.Request.Context(), "failed to delete alert rule: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// Evaluate runs one evaluation pass immediately
// @Summary Force alert evaluation
// @Tags Alert
// @Produce json
// @Success 200 {array} monitoring.Alert
// @Router /api/v1/alerts/evaluate [post]
func (h *AlertHandler) Evaluate(c *gin.Context) {
	fired, err := h.evaluator.EvaluateOnce(c.Request.Context())
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "alert evaluation failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, fired)
}

// Recent returns recently fired alerts, newest first
// @Summary Get recent alerts
// @Tags Alert
// @Produce json
// @Success 200 {array} monitoring.Alert
// @Router /api/v1/alerts/recent [get]
func (h *AlertHandler) Recent(c *gin.Context) {
	c.JSON(http.StatusOK, h.evaluator.Recent())
}
