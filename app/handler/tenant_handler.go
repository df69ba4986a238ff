package handler

import (
	"errors"
	"net/http"
	"time"

	"chatplane/internal/model"
	"chatplane/pkg/allocator"
	"chatplane/pkg/logger"
	mysqlstore "chatplane/pkg/store/mysql"

	"github.com/gin-gonic/gin"
)

// TenantHandler handles tenant management operations
type TenantHandler struct {
	tenants   *mysqlstore.TenantRepository
	allocator *allocator.Allocator
}

// NewTenantHandler creates tenant handler
func NewTenantHandler(tenants *mysqlstore.TenantRepository, alloc *allocator.Allocator) *TenantHandler {
	return &TenantHandler{
		tenants:   tenants,
		allocator: alloc,
	}
}

type upsertTenantRequest struct {
	ID     string `json:"id" binding:"required"`
	Name   string `json:"name"`
	Tier   string `json:"tier" binding:"required"`
	Active *bool  `json:"active"`
}

// Upsert creates or updates a tenant
// @Summary Create or update tenant
// @Tags Tenant
// @Param tenant body upsertTenantRequest true "Tenant"
// @Produce json
// @Success 200 {object} model.Tenant
// @Router /api/v1/tenants [post]
func (h *TenantHandler) Upsert(c *gin.Context) {
	var req upsertTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	tier := model.SubscriptionTier(req.Tier)
	if !tier.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown subscription tier"})
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	tenant := &model.Tenant{
		ID:        req.ID,
		Name:      req.Name,
		Tier:      tier,
		Active:    active,
		UpdatedAt: time.Now().UTC(),
	}
	if err := h.tenants.Upsert(c.Request.Context(), tenant); err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to upsert tenant: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, tenant)
}

// Get retrieves one tenant
// @Summary Get tenant
// @Tags Tenant
// @Param id path string true "Tenant ID"
// @Produce json
// @Success 200 {object} model.Tenant
// @Router /api/v1/tenants/{id} [get]
func (h *TenantHandler) Get(c *gin.Context) {
	tenant, err := h.tenants.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
			return
		}
		logger.ErrorCtx(c.Request.Context(), "failed to get tenant: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, tenant)
}

// List lists active tenants
// @Summary List active tenants
// @Tags Tenant
// @Produce json
// @Success 200 {array} model.Tenant
// @Router /api/v1/tenants [get]
func (h *TenantHandler) List(c *gin.Context) {
	tenants, err := h.tenants.ListActive(c.Request.Context())
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to list tenants: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, tenants)
}

type tierChangeRequest struct {
	Tier string `json:"tier" binding:"required"`
}

// ChangeTier migrates a tenant to a new subscription tier. The tenant's
// worker is deallocated and reallocated on the new tier's pool.
// @Summary Change tenant subscription tier
// @Tags Tenant
// @Param id path string true "Tenant ID"
// @Param body body tierChangeRequest true "New tier"
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/v1/tenants/{id}/tier [put]
func (h *TenantHandler) ChangeTier(c *gin.Context) {
	var req tierChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	tenantID := c.Param("id")
	err := h.allocator.HandleTierChange(c.Request.Context(), tenantID, model.SubscriptionTier(req.Tier))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
			return
		}
		logger.ErrorCtx(c.Request.Context(), "tier change failed, tenant: %s, err: %v", tenantID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	logger.InfoCtx(c.Request.Context(), "tier changed, tenant: %s, tier: %s", tenantID, req.Tier)
	c.JSON(http.StatusOK, gin.H{"status": "migrated", "tier": req.Tier})
}
