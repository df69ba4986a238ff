package allocator

import (
	"context"
	"sync"
	"time"

	"chatplane/internal/model"
	"chatplane/pkg/logger"
)

// MetricsCollector aggregates the global view the autoscaling loop and
// alert evaluator consume: allocation spread, worker health, lane depths
// and cost position.
type MetricsCollector struct {
	workers     WorkerSupervisor
	allocations AllocationStore
	usage       UsageSource
	queue       QueueStats

	mu   sync.Mutex
	last *model.GlobalMetrics
}

// NewMetricsCollector creates a global metrics collector
func NewMetricsCollector(workers WorkerSupervisor, allocations AllocationStore, usage UsageSource, queue QueueStats) *MetricsCollector {
	return &MetricsCollector{
		workers:     workers,
		allocations: allocations,
		usage:       usage,
		queue:       queue,
	}
}

// Collect recomputes global metrics. Partial failures degrade the view
// instead of failing it; the loop must keep running.
func (c *MetricsCollector) Collect(ctx context.Context) (*model.GlobalMetrics, error) {
	m := &model.GlobalMetrics{
		TenantsByPool:    make(map[model.PoolTier]int),
		QueueDepthByLane: make(map[string]int),
		CollectedAt:      time.Now().UTC(),
	}

	allocations, err := c.allocations.List(ctx)
	if err != nil {
		return nil, err
	}

	m.ActiveTenants = len(allocations)
	for _, a := range allocations {
		m.TenantsByPool[a.Pool]++
		m.TotalHourlyCost += a.HourlyCost
	}
	m.BaselineHourly = BaselineHourlyCost() * float64(len(allocations))
	if m.BaselineHourly > 0 {
		m.CostEfficiency = 1 - m.TotalHourlyCost/m.BaselineHourly
	}

	_, m.ConnectedWorkers = c.workers.ActiveCount()

	if c.queue != nil {
		m.QueueDepth, m.QueueDepthByLane = c.queue.QueueDepth(ctx)
		m.EventsPerSecond = c.queue.EventsPerSecond()
	}

	c.fillUsage(ctx, m, allocations)

	c.mu.Lock()
	c.last = m
	c.mu.Unlock()
	return m, nil
}

// fillUsage averages the tenants' daily stats into the response-time,
// error-rate and utilization aggregates.
func (c *MetricsCollector) fillUsage(ctx context.Context, m *model.GlobalMetrics, allocations []*model.ResourceAllocation) {
	if c.usage == nil || len(allocations) == 0 {
		return
	}

	var responseSum, errorSum, utilizationSum float64
	sampled := 0
	for _, a := range allocations {
		stats, err := c.usage.GetWindow(ctx, a.TenantID, 1)
		if err != nil {
			logger.DebugCtx(ctx, "usage read failed, tenant: %s, err: %v", a.TenantID, err)
			continue
		}
		responseSum += stats.AvgResponseTimeMs
		errorSum += stats.ErrorRate

		limit := a.Limits.MaxConcurrentMessages
		if limit > 0 {
			utilizationSum += clampPct(float64(stats.ConcurrentConnections) / float64(limit) * 100)
		}
		sampled++
	}

	if sampled > 0 {
		m.AvgResponseTimeMs = responseSum / float64(sampled)
		m.ErrorRate = errorSum / float64(sampled)
		m.UtilizationPct = utilizationSum / float64(sampled)
	}
}

// Last returns the most recently collected metrics, nil before the first
// pass.
func (c *MetricsCollector) Last() *model.GlobalMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

func clampPct(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
