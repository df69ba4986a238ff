package router

import (
	"chatplane/app/handler"
	"chatplane/app/middleware"
	"chatplane/pkg/supervisor"

	"github.com/gin-gonic/gin"
)

// Router Router
type Router struct {
	tenantHandler  *handler.TenantHandler
	workerHandler  *handler.WorkerHandler
	eventHandler   *handler.EventHandler
	scalingHandler *handler.ScalingHandler
	costHandler    *handler.CostHandler
	alertHandler   *handler.AlertHandler
	supervisor     *supervisor.Supervisor
}

// NewRouter creates a new Router
func NewRouter(tenantHandler *handler.TenantHandler, workerHandler *handler.WorkerHandler, eventHandler *handler.EventHandler, scalingHandler *handler.ScalingHandler, costHandler *handler.CostHandler, alertHandler *handler.AlertHandler, sup *supervisor.Supervisor) *Router {
	return &Router{
		tenantHandler:  tenantHandler,
		workerHandler:  workerHandler,
		eventHandler:   eventHandler,
		scalingHandler: scalingHandler,
		costHandler:    costHandler,
		alertHandler:   alertHandler,
		supervisor:     sup,
	}
}

// Setup sets up routes
func (r *Router) Setup(engine *gin.Engine) {
	engine.Use(middleware.Recovery())
	engine.Use(middleware.Logger())

	// Worker IPC channel (WebSocket). Workers connect back here after spawn;
	// the listener binds to loopback so no auth on this route.
	engine.GET("/ipc/worker", r.supervisor.HandleWorkerIPC)

	// Management API
	api := engine.Group("/api/v1")
	api.Use(middleware.AuthMiddleware())
	{
		tenants := api.Group("/tenants")
		{
			tenants.POST("", r.tenantHandler.Upsert)
			tenants.GET("", r.tenantHandler.List)
			tenants.GET("/:id", r.tenantHandler.Get)
			tenants.PUT("/:id/tier", r.tenantHandler.ChangeTier)

			// Worker lifecycle per tenant
			tenants.POST("/:id/worker", r.workerHandler.Allocate)
			tenants.GET("/:id/worker", r.workerHandler.Status)
			tenants.DELETE("/:id/worker", r.workerHandler.Deallocate)
			tenants.POST("/:id/worker/command", r.workerHandler.Command)

			// Per-tenant cost analysis
			if r.costHandler != nil {
				tenants.GET("/:id/cost", r.costHandler.GetAnalysis)
				tenants.POST("/:id/cost/analyze", r.costHandler.Analyze)
				tenants.POST("/:id/cost/optimize", r.costHandler.Optimize)
			}
		}

		api.GET("/workers", r.workerHandler.List)

		events := api.Group("/events")
		{
			events.POST("", r.eventHandler.Publish)
			events.POST("/schedule", r.eventHandler.Schedule)
			events.GET("/lanes", r.eventHandler.Lanes)
			events.GET("/counters", r.eventHandler.Counters)
		}

		if r.scalingHandler != nil {
			scaling := api.Group("/scaling")
			{
				scaling.GET("/status", r.scalingHandler.GetStatus)
				scaling.GET("/metrics", r.scalingHandler.GetMetrics)
				scaling.GET("/history", r.scalingHandler.GetHistory)
				scaling.POST("/enable", r.scalingHandler.Enable)
				scaling.POST("/disable", r.scalingHandler.Disable)
				scaling.POST("/trigger", r.scalingHandler.Trigger)
			}
		}

		if r.costHandler != nil {
			cost := api.Group("/cost")
			{
				cost.GET("/global", r.costHandler.Global)
				cost.POST("/optimize", r.costHandler.OptimizeAll)
			}
		}

		if r.alertHandler != nil {
			alerts := api.Group("/alerts")
			{
				alerts.POST("/rules", r.alertHandler.Create)
				alerts.GET("/rules", r.alertHandler.List)
				alerts.GET("/rules/:id", r.alertHandler.Get)
				alerts.DELETE("/rules/:id", r.alertHandler.Delete)
				alerts.POST("/evaluate", r.alertHandler.Evaluate)
				alerts.GET("/recent", r.alertHandler.Recent)
			}
		}
	}

	// Health check
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
}
