package handler

import (
	"errors"
	"net/http"

	"chatplane/internal/model"
	"chatplane/pkg/costopt"
	"chatplane/pkg/logger"
	mysqlstore "chatplane/pkg/store/mysql"

	"github.com/gin-gonic/gin"
)

// CostHandler handles cost analysis and optimization operations
type CostHandler struct {
	optimizer *costopt.CostOptimizer
	analyses  *mysqlstore.CostAnalysisRepository
}

// NewCostHandler creates cost handler
func NewCostHandler(opt *costopt.CostOptimizer, analyses *mysqlstore.CostAnalysisRepository) *CostHandler {
	return &CostHandler{
		optimizer: opt,
		analyses:  analyses,
	}
}

// Analyze recomputes a tenant's cost analysis
// @Summary Analyze tenant cost
// @Tags Cost
// @Param id path string true "Tenant ID"
// @Produce json
// @Success 200 {object} model.CostAnalysis
// @Router /api/v1/tenants/{id}/cost/analyze [post]
func (h *CostHandler) Analyze(c *gin.Context) {
	tenantID := c.Param("id")

	analysis, err := h.optimizer.AnalyzeTenant(c.Request.Context(), tenantID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no allocation for tenant"})
			return
		}
		logger.ErrorCtx(c.Request.Context(), "cost analysis failed, tenant: %s, err: %v", tenantID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, analysis)
}

// GetAnalysis returns the cached analysis without recomputing
// @Summary Get cached cost analysis
// @Tags Cost
// @Param id path string true "Tenant ID"
// @Produce json
// @Success 200 {object} model.CostAnalysis
// @Router /api/v1/tenants/{id}/cost [get]
func (h *CostHandler) GetAnalysis(c *gin.Context) {
	tenantID := c.Param("id")

	analysis, err := h.analyses.Get(c.Request.Context(), tenantID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no analysis for tenant"})
			return
		}
		logger.ErrorCtx(c.Request.Context(), "failed to load cost analysis: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, analysis)
}

// Optimize analyzes one tenant and auto-executes eligible recommendations
// @Summary Optimize tenant cost
// @Tags Cost
// @Param id path string true "Tenant ID"
// @Produce json
// @Success 200 {object} costopt.OptimizationResult
// @Router /api/v1/tenants/{id}/cost/optimize [post]
func (h *CostHandler) Optimize(c *gin.Context) {
	tenantID := c.Param("id")

	result, err := h.optimizer.OptimizeTenant(c.Request.Context(), tenantID)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "no allocation for tenant"})
		case errors.Is(err, model.ErrRecommendationExecutionFailed):
			// Partial result: the analysis ran, the move did not.
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "result": result})
		default:
			logger.ErrorCtx(c.Request.Context(), "optimization failed, tenant: %s, err: %v", tenantID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

// OptimizeAll runs an optimization pass over every allocated tenant
// @Summary Optimize all tenants
// @Tags Cost
// @Produce json
// @Success 200 {object} costopt.GlobalOptimizationResult
// @Router /api/v1/cost/optimize [post]
func (h *CostHandler) OptimizeAll(c *gin.Context) {
	result, err := h.optimizer.OptimizeAll(c.Request.Context())
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "global optimization failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// Global returns the system-wide cost picture
// @Summary Get global cost analysis
// @Tags Cost
// @Produce json
// @Success 200 {object} model.GlobalCostAnalysis
// @Router /api/v1/cost/global [get]
func (h *CostHandler) Global(c *gin.Context) {
	global, err := h.optimizer.AnalyzeGlobalCosts(c.Request.Context())
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "global cost analysis failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, global)
}
