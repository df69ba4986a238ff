package handler

import (
	"errors"
	"net/http"

	"chatplane/internal/model"
	"chatplane/pkg/allocator"
	"chatplane/pkg/logger"
	"chatplane/pkg/supervisor"

	"github.com/gin-gonic/gin"
)

// WorkerHandler handles worker allocation and supervision operations
type WorkerHandler struct {
	supervisor *supervisor.Supervisor
	allocator  *allocator.Allocator
}

// NewWorkerHandler creates worker handler
func NewWorkerHandler(sup *supervisor.Supervisor, alloc *allocator.Allocator) *WorkerHandler {
	return &WorkerHandler{
		supervisor: sup,
		allocator:  alloc,
	}
}

type allocateRequest struct {
	Pool  string `json:"pool"`  // optional pool override
	Force bool   `json:"force"` // tear down a running worker and start fresh
}

// Allocate assigns a worker process to a tenant
// @Summary Allocate worker for tenant
// @Tags Worker
// @Param id path string true "Tenant ID"
// @Param body body allocateRequest false "Options"
// @Produce json
// @Success 200 {object} model.ResourceAllocation
// @Router /api/v1/tenants/{id}/worker [post]
func (h *WorkerHandler) Allocate(c *gin.Context) {
	tenantID := c.Param("id")

	var req allocateRequest
	_ = c.ShouldBindJSON(&req) // body optional

	var (
		allocation *model.ResourceAllocation
		err        error
	)
	if req.Force {
		allocation, err = h.allocator.Reallocate(c.Request.Context(), tenantID, model.PoolTier(req.Pool))
	} else {
		allocation, err = h.allocator.AllocateResources(c.Request.Context(), tenantID, model.PoolTier(req.Pool))
	}
	if err != nil {
		switch {
		case errors.Is(err, model.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
		case errors.Is(err, model.ErrAlreadyConnecting):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, model.ErrStartupFailed):
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		default:
			logger.ErrorCtx(c.Request.Context(), "allocation failed, tenant: %s, err: %v", tenantID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, allocation)
}

// Deallocate tears down a tenant's worker
// @Summary Deallocate tenant worker
// @Tags Worker
// @Param id path string true "Tenant ID"
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/v1/tenants/{id}/worker [delete]
func (h *WorkerHandler) Deallocate(c *gin.Context) {
	tenantID := c.Param("id")

	if err := h.allocator.DeallocateResources(c.Request.Context(), tenantID); err != nil {
		logger.ErrorCtx(c.Request.Context(), "deallocation failed, tenant: %s, err: %v", tenantID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deallocated"})
}

// Status returns the live status of a tenant's worker
// @Summary Get worker status
// @Tags Worker
// @Param id path string true "Tenant ID"
// @Produce json
// @Success 200 {object} model.WorkerInfo
// @Router /api/v1/tenants/{id}/worker [get]
func (h *WorkerHandler) Status(c *gin.Context) {
	info, err := h.supervisor.Info(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no worker for tenant"})
		return
	}

	c.JSON(http.StatusOK, info)
}

// List lists all supervised workers
// @Summary List workers
// @Tags Worker
// @Produce json
// @Success 200 {array} model.WorkerInfo
// @Router /api/v1/workers [get]
func (h *WorkerHandler) List(c *gin.Context) {
	live, connected := h.supervisor.ActiveCount()
	c.JSON(http.StatusOK, gin.H{
		"live":      live,
		"connected": connected,
		"workers":   h.supervisor.List(),
	})
}

type commandRequest struct {
	Command string                 `json:"command" binding:"required"`
	Args    map[string]interface{} `json:"args"`
}

// Command sends an IPC command to a tenant's worker and waits for the reply
// @Summary Send command to worker
// @Tags Worker
// @Param id path string true "Tenant ID"
// @Param body body commandRequest true "Command"
// @Produce json
// @Success 200 {object} ipc.Message
// @Router /api/v1/tenants/{id}/worker/command [post]
func (h *WorkerHandler) Command(c *gin.Context) {
	tenantID := c.Param("id")

	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	reply, err := h.supervisor.SendCommand(c.Request.Context(), tenantID, req.Command, req.Args)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "no worker for tenant"})
		case errors.Is(err, model.ErrCommandTimeout):
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
		default:
			logger.ErrorCtx(c.Request.Context(), "command failed, tenant: %s, command: %s, err: %v", tenantID, req.Command, err)
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, reply)
}
