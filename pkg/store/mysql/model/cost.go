package model

import "time"

// CostAnalysis stores the latest cost analysis per tenant. Recomputation
// replaces the row (superseded, never merged).
type CostAnalysis struct {
	ID              int64     `gorm:"column:id;primaryKey;autoIncrement"`
	TenantID        string    `gorm:"column:tenant_id;type:varchar(64);not null;uniqueIndex"`
	CurrentPool     string    `gorm:"column:current_pool;type:varchar(32);not null"`
	CurrentCost     float64   `gorm:"column:current_cost;type:decimal(12,4);not null"`
	CurrentUtil     float64   `gorm:"column:current_util;type:decimal(6,2);not null"`
	CurrentEff      float64   `gorm:"column:current_eff;type:decimal(6,2);not null"`
	RecommendedPool string    `gorm:"column:recommended_pool;type:varchar(32);not null"`
	RecommendedCost float64   `gorm:"column:recommended_cost;type:decimal(12,4);not null"`
	RecommendedUtil float64   `gorm:"column:recommended_util;type:decimal(6,2);not null"`
	RecommendedEff  float64   `gorm:"column:recommended_eff;type:decimal(6,2);not null"`
	Recommendations JSONMap   `gorm:"column:recommendations;type:json"`
	AnalyzedAt      time.Time `gorm:"column:analyzed_at;type:datetime(3);not null"`
}

func (CostAnalysis) TableName() string {
	return "cost_analyses"
}

// UsageStat is one tenant's daily usage row. The optimizer aggregates the
// trailing window (30 days by default).
type UsageStat struct {
	ID                    int64        `gorm:"column:id;primaryKey;autoIncrement"`
	TenantID              string       `gorm:"column:tenant_id;type:varchar(64);not null;index:idx_tenant_day,priority:1"`
	Day                   time.Time    `gorm:"column:day;type:date;not null;index:idx_tenant_day,priority:2"`
	MessageVolume         int64        `gorm:"column:message_volume;not null;default:0"`
	AvgResponseTimeMs     float64      `gorm:"column:avg_response_time_ms;type:decimal(10,2);not null;default:0"`
	ErrorCount            int64        `gorm:"column:error_count;not null;default:0"`
	PeakHours             JSONIntArray `gorm:"column:peak_hours;type:json"`
	ConcurrentConnections int          `gorm:"column:concurrent_connections;not null;default:0"`
	UpdatedAt             time.Time    `gorm:"column:updated_at;not null"`
}

func (UsageStat) TableName() string {
	return "usage_stats"
}
