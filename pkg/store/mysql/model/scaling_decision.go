package model

import "time"

// ScalingDecision MySQL model for scaling_decisions table
type ScalingDecision struct {
	ID                 int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	DecisionID         string          `gorm:"column:decision_id;type:varchar(64);not null;uniqueIndex:idx_decision_id_unique" json:"decision_id"`
	Action             string          `gorm:"column:action;type:varchar(32);not null;index:idx_action" json:"action"`
	Reason             string          `gorm:"column:reason;type:text;not null" json:"reason"`
	AffectedTenants    JSONStringArray `gorm:"column:affected_tenants;type:json" json:"affected_tenants"`
	EstimatedCostDelta float64         `gorm:"column:estimated_cost_delta;type:decimal(12,4);not null;default:0" json:"estimated_cost_delta"`
	Success            bool            `gorm:"column:success;not null;default:true" json:"success"`
	ExecutedAt         time.Time       `gorm:"column:executed_at;type:datetime(3);not null;index:idx_executed_at" json:"executed_at"`
}

func (ScalingDecision) TableName() string {
	return "scaling_decisions"
}
