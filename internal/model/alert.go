package model

import "time"

// AlertSeverity grades an alert rule.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// AlertOperator compares a metric value against a rule threshold.
type AlertOperator string

const (
	OpGreaterThan AlertOperator = ">"
	OpLessThan    AlertOperator = "<"
	OpGreaterEq   AlertOperator = ">="
	OpLessEq      AlertOperator = "<="
)

// AlertRule is long-lived monitoring configuration. The evaluation loop
// only mutates LastTriggeredAt.
type AlertRule struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	MetricPath      string        `json:"metric_path"` // e.g. "queue_depth", "error_rate"
	Operator        AlertOperator `json:"operator"`
	Threshold       float64       `json:"threshold"`
	WindowSeconds   int           `json:"window_seconds"`
	Actions         []string      `json:"actions"` // e.g. "notify", "log"
	Severity        AlertSeverity `json:"severity"`
	CooldownSeconds int           `json:"cooldown_seconds"`
	Enabled         bool          `json:"enabled"`
	LastTriggeredAt *time.Time    `json:"last_triggered_at,omitempty"`
}

// Compare applies the rule's operator to a metric value.
func (r *AlertRule) Compare(value float64) bool {
	switch r.Operator {
	case OpGreaterThan:
		return value > r.Threshold
	case OpLessThan:
		return value < r.Threshold
	case OpGreaterEq:
		return value >= r.Threshold
	case OpLessEq:
		return value <= r.Threshold
	}
	return false
}

// InCooldown reports whether the rule fired within its cooldown window.
func (r *AlertRule) InCooldown(now time.Time) bool {
	if r.LastTriggeredAt == nil || r.CooldownSeconds <= 0 {
		return false
	}
	return now.Sub(*r.LastTriggeredAt) < time.Duration(r.CooldownSeconds)*time.Second
}
