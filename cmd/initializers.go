package main

import (
	"fmt"
	"net/http"

	"chatplane/app/handler"
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

// initConfig initializes configuration
func (app *Application) initConfig() error {
	if err := config.Init(); err != nil {
		return err
	}
	app.config = config.GlobalConfig
	return nil
}

// initLogger initializes logging
func (app *Application) initLogger() error {
	if err := logger.Init(); err != nil {
		return err
	}
	app.registerCleanup(func() {
		logger.Sync()
		logger.InfoCtx(app.ctx, "Logging system has been closed")
	})
	return nil
}

// initMySQL initializes MySQL
func (app *Application) initMySQL() error {
	repo, err := mysqlstore.NewRepository(app.config.MySQL.DSN())
	if err != nil {
		return err
	}

	app.mysqlRepo = repo
	app.registerCleanup(func() {
		repo.Close()
		logger.InfoCtx(app.ctx, "MySQL connection has been closed")
	})

	return nil
}

// initRedis initializes Redis
func (app *Application) initRedis() error {
	client, err := redisstore.NewRedisClient(app.config)
	if err != nil {
		return err
	}

	app.redisClient = client
	app.rateLimiter = redisstore.NewRateLimiter(client, app.config.Queue.RateLimits)
	app.registerCleanup(func() {
		client.Close()
		logger.InfoCtx(app.ctx, "Redis connection has been closed")
	})

	return nil
}

// initEventRouter initializes the publish side of the priority event router
func (app *Application) initEventRouter() error {
	app.eventRouter = events.NewRouter(app.config, app.mysqlRepo.Tenant, app.rateLimiter)
	app.registerCleanup(func() {
		app.eventRouter.Close()
		logger.InfoCtx(app.ctx, "Event router has been closed")
	})
	return nil
}

// initSupervisor initializes the worker supervisor
func (app *Application) initSupervisor() error {
	if app.config.Worker.Command == "" {
		return fmt.Errorf("worker.command is not configured")
	}
	app.supervisor = supervisor.NewSupervisor(app.config, app.mysqlRepo.WorkerStatus, app.eventRouter)
	return nil
}

// initDispatcher initializes the consume side of the event router. The
// dispatcher shares the router's counters so events-per-second covers the
// whole pipeline.
func (app *Application) initDispatcher() error {
	app.dispatcher = events.NewDispatcher(
		app.config,
		app.supervisor,
		app.mysqlRepo.Usage,
		app.eventRouter.Counters(),
	)
	return nil
}

// initAllocator initializes the resource allocator and metrics collector
func (app *Application) initAllocator() error {
	app.allocator = allocator.NewAllocator(
		app.config,
		app.supervisor,
		app.mysqlRepo.Tenant,
		app.mysqlRepo.Allocation,
		app.eventRouter,
	)
	app.metrics = allocator.NewMetricsCollector(
		app.supervisor,
		app.mysqlRepo.Allocation,
		app.mysqlRepo.Usage,
		app.eventRouter,
	)
	return nil
}

// initCostOptimizer initializes the cost optimizer
func (app *Application) initCostOptimizer() error {
	app.costOptimizer = costopt.NewCostOptimizer(
		app.config,
		app.mysqlRepo.Allocation,
		app.mysqlRepo.Usage,
		app.mysqlRepo.CostAnalysis,
		app.allocator,
	)
	return nil
}

// initAutoScaler initializes the autoscaling loop. The distributed lock
// keeps concurrent replicas from running passes simultaneously; with Redis
// unavailable it degrades to single-instance mode.
func (app *Application) initAutoScaler() error {
	lock := allocator.NewRedisDistributedLock(app.redisClient.GetClient(), "autoscaler:leader-lock")

	app.autoscaler = allocator.NewAutoScaler(
		app.config,
		app.allocator,
		app.metrics,
		app.mysqlRepo.Usage,
		app.costOptimizer,
		app.mysqlRepo.ScalingDecision,
		lock,
	)
	return nil
}

// initAlertEvaluator initializes the alert evaluation loop
func (app *Application) initAlertEvaluator() error {
	app.alertEvaluator = monitoring.NewEvaluator(
		app.config,
		app.mysqlRepo.AlertRule,
		app.metrics,
		app.eventRouter,
	)
	return nil
}

// initHandlers initializes handler layer
func (app *Application) initHandlers() error {
	app.tenantHandler = handler.NewTenantHandler(app.mysqlRepo.Tenant, app.allocator)
	app.workerHandler = handler.NewWorkerHandler(app.supervisor, app.allocator)
	app.eventHandler = handler.NewEventHandler(app.eventRouter)
	app.scalingHandler = handler.NewScalingHandler(app.autoscaler, app.metrics, app.mysqlRepo.ScalingDecision)
	app.costHandler = handler.NewCostHandler(app.costOptimizer, app.mysqlRepo.CostAnalysis)
	app.alertHandler = handler.NewAlertHandler(app.mysqlRepo.AlertRule, app.alertEvaluator)
	return nil
}

// initHTTPServer initializes HTTP server
func (app *Application) initHTTPServer() error {
	mode := app.config.Server.Mode
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)
	app.ginEngine = gin.New()

	app.buildRouter().Setup(app.ginEngine)

	app.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", app.config.Server.Port),
		Handler: app.ginEngine,
	}
	return nil
}
