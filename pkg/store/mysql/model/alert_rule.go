package model

import "time"

// AlertRule MySQL model for alert_rules table
type AlertRule struct {
	ID              int64           `gorm:"column:id;primaryKey;autoIncrement"`
	RuleID          string          `gorm:"column:rule_id;type:varchar(64);not null;uniqueIndex"`
	Name            string          `gorm:"column:name;type:varchar(255);not null"`
	MetricPath      string          `gorm:"column:metric_path;type:varchar(128);not null"`
	Operator        string          `gorm:"column:operator;type:varchar(4);not null"`
	Threshold       float64         `gorm:"column:threshold;type:decimal(14,4);not null"`
	WindowSeconds   int             `gorm:"column:window_seconds;not null;default:60"`
	Actions         JSONStringArray `gorm:"column:actions;type:json"`
	Severity        string          `gorm:"column:severity;type:varchar(16);not null;default:warning"`
	CooldownSeconds int             `gorm:"column:cooldown_seconds;not null;default:300"`
	Enabled         bool            `gorm:"column:enabled;not null;default:true"`
	LastTriggeredAt *time.Time      `gorm:"column:last_triggered_at"`
	CreatedAt       time.Time       `gorm:"column:created_at;not null"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;not null"`
}

func (AlertRule) TableName() string {
	return "alert_rules"
}
