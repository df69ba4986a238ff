package model

import "time"

// RecommendationType classifies a cost recommendation.
type RecommendationType string

const (
	RecommendationTierChange       RecommendationType = "tier-change"
	RecommendationUnderUtilization RecommendationType = "under-utilization"
	RecommendationOverUtilization  RecommendationType = "over-utilization"
	RecommendationUsagePattern     RecommendationType = "usage-pattern"
)

// Level grades a recommendation's implementation complexity or risk.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Recommendation is one action the cost optimizer proposes for a tenant.
// Only low-risk, low-complexity recommendations above the savings floor are
// auto-executed.
type Recommendation struct {
	Type             RecommendationType `json:"type"`
	Description      string             `json:"description"`
	TargetPool       PoolTier           `json:"target_pool,omitempty"`
	EstimatedSavings float64            `json:"estimated_savings"` // monthly, USD
	Complexity       Level              `json:"complexity"`
	Risk             Level              `json:"risk"`
}

// TierCostView is the cost/utilization/efficiency triple for one pool tier.
// Utilization and efficiency are percentages clamped to 0-100.
type TierCostView struct {
	Pool        PoolTier `json:"pool"`
	MonthlyCost float64  `json:"monthly_cost"`
	Utilization float64  `json:"utilization"`
	Efficiency  float64  `json:"efficiency"`
}

// CostAnalysis is a tenant's periodic cost picture. Each recomputation
// supersedes the previous one; analyses are never merged.
type CostAnalysis struct {
	TenantID        string           `json:"tenant_id"`
	Current         TierCostView     `json:"current"`
	Recommended     TierCostView     `json:"recommended"`
	Recommendations []Recommendation `json:"recommendations"`
	AnalyzedAt      time.Time        `json:"analyzed_at"`
}

// PoolStats aggregates one capacity pool for global cost analysis.
type PoolStats struct {
	Pool        PoolTier `json:"pool"`
	Tenants     int      `json:"tenants"`
	Slots       int      `json:"slots"`
	Utilization float64  `json:"utilization"`
	MonthlyCost float64  `json:"monthly_cost"`
}

// GlobalCostAnalysis is the system-wide cost picture.
type GlobalCostAnalysis struct {
	Pools                map[PoolTier]PoolStats `json:"pools"`
	TotalMonthlyCost     float64                `json:"total_monthly_cost"`
	AvgCostPerTenant     float64                `json:"avg_cost_per_tenant"`
	BaselineMonthlyCost  float64                `json:"baseline_monthly_cost"`
	CostReductionRatio   float64                `json:"cost_reduction_ratio"`   // (baseline-actual)/baseline
	CostEfficiencyScore  float64                `json:"cost_efficiency_score"`  // min(100, reduction/target*100)
	AnalyzedAt           time.Time              `json:"analyzed_at"`
}

// UsageStats is one tenant's rolling usage window read by the optimizer.
type UsageStats struct {
	TenantID              string    `json:"tenant_id"`
	WindowDays            int       `json:"window_days"`
	MessageVolume         int64     `json:"message_volume"` // total over the window
	DailyMessageAvg       float64   `json:"daily_message_avg"`
	PeakHours             []int     `json:"peak_hours,omitempty"`
	AvgResponseTimeMs     float64   `json:"avg_response_time_ms"`
	ErrorRate             float64   `json:"error_rate"` // 0-100
	ConcurrentConnections int       `json:"concurrent_connections"`
	UpdatedAt             time.Time `json:"updated_at"`
}
