package main

import (
	"context"
	"fmt"
	"time"

	"chatplane/internal/jobs"
	"chatplane/pkg/allocator"
	"chatplane/pkg/costopt"
	"chatplane/pkg/logger"
	mysqlstore "chatplane/pkg/store/mysql"
	"chatplane/pkg/supervisor"
)

const (
	decisionRetentionDays = 30
	usageRetentionDays    = 90
)

func (app *Application) initJobs() error {
	manager := jobs.NewManager(app.ctx)

	sweepInterval := time.Duration(app.config.Worker.InactivityEvictMin) * time.Minute / 2
	if sweepInterval < time.Minute {
		sweepInterval = time.Minute
	}

	// Sweep and reconcile act on this instance's own worker handles, so
	// they run unlocked. Cross-instance jobs take a Redis lock; with Redis
	// down the lock degrades to single-instance mode.
	manager.Register(newWorkerSweepJob(sweepInterval, app.supervisor))
	manager.Register(newStateReconcileJob(5*time.Minute, app.supervisor))

	redisClient := app.redisClient.GetClient()

	optimizerLock := allocator.NewRedisDistributedLock(redisClient, "optimizer:pass-lock")
	manager.Register(newOptimizationPassJob(6*time.Hour, app.costOptimizer, optimizerLock))

	retentionLock := allocator.NewRedisDistributedLock(redisClient, "cleanup:data-retention-lock")
	manager.Register(newDataRetentionJob(24*time.Hour, app.mysqlRepo, retentionLock))

	app.jobsManager = manager
	return nil
}

// workerSweepJob deallocates workers idle past the eviction threshold.
type workerSweepJob struct {
	interval   time.Duration
	supervisor *supervisor.Supervisor
}

func newWorkerSweepJob(interval time.Duration, sup *supervisor.Supervisor) jobs.Job {
	return &workerSweepJob{interval: interval, supervisor: sup}
}

func (j *workerSweepJob) Name() string { return "worker-inactivity-sweep" }

func (j *workerSweepJob) Interval() time.Duration { return j.interval }

func (j *workerSweepJob) Run(ctx context.Context) error {
	if j.supervisor == nil {
		return fmt.Errorf("supervisor not configured")
	}
	logger.DebugCtx(ctx, "running worker inactivity sweep")
	return j.supervisor.SweepInactive(ctx)
}

// stateReconcileJob re-syncs persisted worker state with live handles.
// Catches rows left behind by crashes of previous control-plane instances.
type stateReconcileJob struct {
	interval   time.Duration
	supervisor *supervisor.Supervisor
}

func newStateReconcileJob(interval time.Duration, sup *supervisor.Supervisor) jobs.Job {
	return &stateReconcileJob{interval: interval, supervisor: sup}
}

func (j *stateReconcileJob) Name() string { return "worker-state-reconcile" }

func (j *stateReconcileJob) Interval() time.Duration { return j.interval }

func (j *stateReconcileJob) Run(ctx context.Context) error {
	if j.supervisor == nil {
		return fmt.Errorf("supervisor not configured")
	}
	logger.DebugCtx(ctx, "running worker state reconciliation")
	return j.supervisor.Reconcile(ctx)
}

// optimizationPassJob runs a full cost-optimization pass over all tenants.
type optimizationPassJob struct {
	interval        time.Duration
	optimizer       *costopt.CostOptimizer
	distributedLock allocator.DistributedLock
}

func newOptimizationPassJob(interval time.Duration, opt *costopt.CostOptimizer, lock allocator.DistributedLock) jobs.Job {
	return &optimizationPassJob{interval: interval, optimizer: opt, distributedLock: lock}
}

func (j *optimizationPassJob) Name() string { return "cost-optimization-pass" }

func (j *optimizationPassJob) Interval() time.Duration { return j.interval }

func (j *optimizationPassJob) AlignToInterval() bool { return true }

func (j *optimizationPassJob) Run(ctx context.Context) error {
	if j.optimizer == nil {
		return fmt.Errorf("cost optimizer not configured")
	}
	if j.distributedLock != nil {
		acquired, err := j.distributedLock.TryLock(ctx)
		if err != nil || !acquired {
			logger.DebugCtx(ctx, "another instance is running the optimization pass, skipping this cycle")
			return nil
		}
		defer j.distributedLock.Unlock(ctx)
	}

	result, err := j.optimizer.OptimizeAll(ctx)
	if err != nil {
		return err
	}
	logger.InfoCtx(ctx, "scheduled optimization pass: analyzed %d tenants, moved %d, savings %.2f",
		result.TenantsAnalyzed, result.TenantsMoved, result.RealizedSavings)
	return nil
}

// dataRetentionJob prunes old scaling decisions and usage rows daily.
type dataRetentionJob struct {
	interval        time.Duration
	repo            *mysqlstore.Repository
	distributedLock allocator.DistributedLock
}

func newDataRetentionJob(interval time.Duration, repo *mysqlstore.Repository, lock allocator.DistributedLock) jobs.Job {
	return &dataRetentionJob{interval: interval, repo: repo, distributedLock: lock}
}

func (j *dataRetentionJob) Name() string { return "data-retention-cleanup" }

func (j *dataRetentionJob) Interval() time.Duration { return j.interval }

func (j *dataRetentionJob) AlignToInterval() bool { return true }

func (j *dataRetentionJob) Run(ctx context.Context) error {
	if j.repo == nil {
		return nil
	}
	if j.distributedLock != nil {
		acquired, err := j.distributedLock.TryLock(ctx)
		if err != nil || !acquired {
			return nil
		}
		defer j.distributedLock.Unlock(ctx)
	}

	decisionCutoff := time.Now().AddDate(0, 0, -decisionRetentionDays)
	decisionRows, err := j.repo.ScalingDecision.DeleteOlderThan(ctx, decisionCutoff)
	if err != nil {
		logger.WarnCtx(ctx, "failed to prune scaling decisions: %v", err)
	} else if decisionRows > 0 {
		logger.InfoCtx(ctx, "cleaned up %d old scaling decisions (older than %d days)", decisionRows, decisionRetentionDays)
	}

	usageCutoff := time.Now().AddDate(0, 0, -usageRetentionDays)
	usageRows, err := j.repo.Usage.DeleteOlderThan(ctx, usageCutoff)
	if err != nil {
		logger.WarnCtx(ctx, "failed to prune usage rows: %v", err)
	} else if usageRows > 0 {
		logger.InfoCtx(ctx, "cleaned up %d old usage rows (older than %d days)", usageRows, usageRetentionDays)
	}

	return nil
}
