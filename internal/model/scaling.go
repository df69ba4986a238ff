package model

import "time"

// ScalingAction is the single action an autoscaling pass settles on.
type ScalingAction string

const (
	ActionScaleUp   ScalingAction = "scale-up"
	ActionScaleDown ScalingAction = "scale-down"
	ActionRebalance ScalingAction = "rebalance"
	ActionNoAction  ScalingAction = "no-action"
)

// ScalingDecision records one autoscaling pass. The history is append-only
// and capped; cooldown checks read it newest-first.
type ScalingDecision struct {
	ID                 string        `json:"id"`
	Action             ScalingAction `json:"action"`
	Reason             string        `json:"reason"`
	AffectedTenants    []string      `json:"affected_tenants,omitempty"`
	EstimatedCostDelta float64       `json:"estimated_cost_delta"`
	ExecutedAt         time.Time     `json:"executed_at"`
	Success            bool          `json:"success"`
}

// GlobalMetrics is the aggregate view the autoscaling loop and the alert
// evaluator work from. Percentages are 0-100.
type GlobalMetrics struct {
	ActiveTenants     int                `json:"active_tenants"`
	ConnectedWorkers  int                `json:"connected_workers"`
	TenantsByPool     map[PoolTier]int   `json:"tenants_by_pool"`
	QueueDepth        int                `json:"queue_depth"`
	QueueDepthByLane  map[string]int     `json:"queue_depth_by_lane"`
	EventsPerSecond   float64            `json:"events_per_second"`
	AvgResponseTimeMs float64            `json:"avg_response_time_ms"`
	ErrorRate         float64            `json:"error_rate"`
	UtilizationPct    float64            `json:"utilization_pct"`
	TotalHourlyCost   float64            `json:"total_hourly_cost"`
	BaselineHourly    float64            `json:"baseline_hourly_cost"`
	CostEfficiency    float64            `json:"cost_efficiency"` // 1 - total/baseline, 0 when baseline is 0
	CollectedAt       time.Time          `json:"collected_at"`
}
