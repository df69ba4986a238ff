package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"chatplane/app/handler"
	approuter "chatplane/app/router"
	"chatplane/internal/jobs"
	"chatplane/pkg/allocator"
	"chatplane/pkg/config"
	"chatplane/pkg/costopt"
	"chatplane/pkg/events"
	"chatplane/pkg/logger"
	"chatplane/pkg/monitoring"
	mysqlstore "chatplane/pkg/store/mysql"
	redisstore "chatplane/pkg/store/redis"
	"chatplane/pkg/supervisor"

	"github.com/gin-gonic/gin"
)

// Application manages the lifecycle of the entire control plane
type Application struct {
	// Infrastructure components
	config      *config.Config
	mysqlRepo   *mysqlstore.Repository
	redisClient *redisstore.RedisClient
	rateLimiter *redisstore.RateLimiter

	// Core components
	eventRouter    *events.Router
	dispatcher     *events.Dispatcher
	supervisor     *supervisor.Supervisor
	allocator      *allocator.Allocator
	metrics        *allocator.MetricsCollector
	autoscaler     *allocator.AutoScaler
	costOptimizer  *costopt.CostOptimizer
	alertEvaluator *monitoring.Evaluator

	// Handler layer
	tenantHandler  *handler.TenantHandler
	workerHandler  *handler.WorkerHandler
	eventHandler   *handler.EventHandler
	scalingHandler *handler.ScalingHandler
	costHandler    *handler.CostHandler
	alertHandler   *handler.AlertHandler

	// HTTP server
	httpServer *http.Server
	ginEngine  *gin.Engine

	// Background tasks
	jobsManager *jobs.Manager

	// Context management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Cleanup functions, run in reverse registration order on shutdown
	cleanupFuncs []func()
}

// NewApplication creates a new Application instance
func NewApplication() *Application {
	ctx, cancel := context.WithCancel(context.Background())
	return &Application{
		ctx:          ctx,
		cancel:       cancel,
		cleanupFuncs: make([]func(), 0),
	}
}

// Initialize initializes all application components
func (app *Application) Initialize() error {
	var err error

	// Initialize components in order
	steps := []struct {
		name string
		fn   func() error
	}{
		{"Configuration", app.initConfig},
		{"Logging", app.initLogger},
		{"MySQL", app.initMySQL},
		{"Redis", app.initRedis},
		{"Event Router", app.initEventRouter},
		{"Worker Supervisor", app.initSupervisor},
		{"Event Dispatcher", app.initDispatcher},
		{"Resource Allocator", app.initAllocator},
		{"Cost Optimizer", app.initCostOptimizer},
		{"Auto-scaler", app.initAutoScaler},
		{"Alert Evaluator", app.initAlertEvaluator},
		{"Background Tasks", app.initJobs},
		{"Handler Layer", app.initHandlers},
		{"HTTP Server", app.initHTTPServer},
	}

	for _, step := range steps {
		logger.InfoCtx(app.ctx, "Initializing %s...", step.name)
		if err = step.fn(); err != nil {
			return fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
		logger.InfoCtx(app.ctx, "%s initialized successfully", step.name)
	}

	logger.InfoCtx(app.ctx, "Application initialization completed")
	return nil
}

// Start starts all application components
func (app *Application) Start() error {
	logger.InfoCtx(app.ctx, "Starting application components...")

	// 1. Reconcile persisted worker state against reality before anything
	// else touches it.
	if err := app.supervisor.Reconcile(app.ctx); err != nil {
		logger.WarnCtx(app.ctx, "Worker state reconciliation failed: %v", err)
	}

	// 2. Start the event dispatcher (asynq consumer)
	if err := app.dispatcher.Start(); err != nil {
		return fmt.Errorf("failed to start event dispatcher: %w", err)
	}

	// 3. Start background tasks
	if app.jobsManager != nil {
		logger.InfoCtx(app.ctx, "Starting background task manager")
		app.jobsManager.Start()
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			app.jobsManager.Wait()
		}()
	}

	// 4. Start AutoScaler control loop
	if app.autoscaler != nil {
		if err := app.autoscaler.Start(app.ctx); err != nil {
			logger.ErrorCtx(app.ctx, "Failed to start autoscaler: %v", err)
		} else {
			logger.InfoCtx(app.ctx, "Autoscaler started successfully")
		}
	}

	// 5. Start alert evaluation loop
	if app.alertEvaluator != nil {
		app.alertEvaluator.Start()
	}

	// 6. Start HTTP server
	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		addr := fmt.Sprintf(":%d", app.config.Server.Port)
		logger.InfoCtx(app.ctx, "HTTP server listening on: %s", addr)
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.FatalCtx(app.ctx, "HTTP server error: %v", err)
		}
	}()

	logger.InfoCtx(app.ctx, "All components started successfully")
	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown(timeout time.Duration) error {
	logger.InfoCtx(app.ctx, "Starting graceful shutdown (timeout: %v)...", timeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// 1. Stop control loops first so nothing reallocates during teardown
	if app.alertEvaluator != nil {
		app.alertEvaluator.Stop()
	}
	if app.autoscaler != nil {
		if err := app.autoscaler.Stop(); err != nil {
			logger.WarnCtx(app.ctx, "Autoscaler stop: %v", err)
		}
	}

	// 2. Cancel background tasks
	logger.InfoCtx(app.ctx, "Canceling background tasks...")
	app.cancel()
	if app.jobsManager != nil {
		app.jobsManager.Stop()
	}

	// 3. Stop HTTP server (stop accepting new requests)
	logger.InfoCtx(app.ctx, "Shutting down HTTP server...")
	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.ErrorCtx(app.ctx, "HTTP server shutdown error: %v", err)
	}

	// 4. Drain the event dispatcher
	logger.InfoCtx(app.ctx, "Stopping event dispatcher...")
	app.dispatcher.Stop()

	// 5. Tear down all supervised workers
	logger.InfoCtx(app.ctx, "Tearing down tenant workers...")
	for _, info := range app.supervisor.List() {
		app.supervisor.Deallocate(shutdownCtx, info.TenantID)
	}

	// 6. Wait for background tasks to complete
	logger.InfoCtx(app.ctx, "Waiting for background tasks to complete...")
	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.InfoCtx(app.ctx, "All background tasks completed")
	case <-shutdownCtx.Done():
		logger.WarnCtx(app.ctx, "Shutdown timeout, some tasks may not have completed")
	}

	// 7. Execute all cleanup functions (in reverse registration order)
	logger.InfoCtx(app.ctx, "Executing cleanup functions...")
	for i := len(app.cleanupFuncs) - 1; i >= 0; i-- {
		app.cleanupFuncs[i]()
	}

	// 8. Sync logs
	logger.Sync()

	logger.InfoCtx(app.ctx, "Graceful shutdown completed")
	return nil
}

// registerCleanup registers cleanup function
func (app *Application) registerCleanup(cleanup func()) {
	app.cleanupFuncs = append(app.cleanupFuncs, cleanup)
}

// buildRouter wires handlers into the gin engine.
func (app *Application) buildRouter() *approuter.Router {
	return approuter.NewRouter(
		app.tenantHandler,
		app.workerHandler,
		app.eventHandler,
		app.scalingHandler,
		app.costHandler,
		app.alertHandler,
		app.supervisor,
	)
}
