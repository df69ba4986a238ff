// Package monitoring evaluates stored alert rules against the collected
// global metrics and emits system notifications when rules fire.
package monitoring

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"chatplane/internal/model"
	"chatplane/pkg/config"
	"chatplane/pkg/logger"
)

// RuleStore is the slice of alert rule persistence the evaluator needs.
type RuleStore interface {
	ListEnabled(ctx context.Context) ([]*model.AlertRule, error)
	Touch(ctx context.Context, ruleID string, at time.Time) error
}

// MetricsSource supplies the aggregate metrics snapshot rules run against.
type MetricsSource interface {
	Collect(ctx context.Context) (*model.GlobalMetrics, error)
}

// Notifier publishes the alert as a system-notification event.
type Notifier interface {
	Publish(ctx context.Context, event *model.Event) (string, error)
}

// Alert is one fired rule: the rule, the observed value and when it fired.
type Alert struct {
	RuleID     string              `json:"rule_id"`
	RuleName   string              `json:"rule_name"`
	MetricPath string              `json:"metric_path"`
	Value      float64             `json:"value"`
	Threshold  float64             `json:"threshold"`
	Operator   model.AlertOperator `json:"operator"`
	Severity   model.AlertSeverity `json:"severity"`
	FiredAt    time.Time           `json:"fired_at"`
}

// Evaluator runs the alert evaluation loop.
type Evaluator struct {
	cfg      *config.Config
	rules    RuleStore
	metrics  MetricsSource
	notifier Notifier

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	recent  []Alert
}

const recentAlertCap = 100

// NewEvaluator creates an alert evaluator
func NewEvaluator(cfg *config.Config, rules RuleStore, metrics MetricsSource, notifier Notifier) *Evaluator {
	return &Evaluator{
		cfg:      cfg,
		rules:    rules,
		metrics:  metrics,
		notifier: notifier,
	}
}

// Start launches the evaluation loop. No-op when already running or when
// alerting is disabled in config.
func (e *Evaluator) Start() {
	if !e.cfg.Alerting.Enabled {
		logger.Info("alert evaluation disabled by config")
		return
	}

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.stopCh = make(chan struct{})
	stopCh := e.stopCh
	e.mu.Unlock()

	interval := time.Duration(e.cfg.Alerting.IntervalSec) * time.Second
	logger.Infof("alert evaluator started, interval: %s", interval)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				if _, err := e.EvaluateOnce(context.Background()); err != nil {
					logger.Errorf("alert evaluation failed: %v", err)
				}
			}
		}
	}()
}

// Stop halts the evaluation loop.
func (e *Evaluator) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	close(e.stopCh)
	e.running = false
	logger.Info("alert evaluator stopped")
}

// EvaluateOnce loads the enabled rules, resolves each rule's metric against
// a fresh snapshot and fires the ones whose comparison holds and whose
// cooldown has lapsed. Returns the alerts fired this pass.
func (e *Evaluator) EvaluateOnce(ctx context.Context) ([]Alert, error) {
	rules, err := e.rules.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load alert rules: %w", err)
	}
	if len(rules) == 0 {
		return nil, nil
	}

	metrics, err := e.metrics.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to collect metrics: %w", err)
	}

	now := time.Now().UTC()
	var fired []Alert
	for _, rule := range rules {
		value, ok := resolveMetric(metrics, rule.MetricPath)
		if !ok {
			logger.WarnCtx(ctx, "alert rule references unknown metric, rule: %s, path: %s", rule.ID, rule.MetricPath)
			continue
		}
		if !rule.Compare(value) || rule.InCooldown(now) {
			continue
		}

		alert := Alert{
			RuleID:     rule.ID,
			RuleName:   rule.Name,
			MetricPath: rule.MetricPath,
			Value:      value,
			Threshold:  rule.Threshold,
			Operator:   rule.Operator,
			Severity:   rule.Severity,
			FiredAt:    now,
		}
		e.fire(ctx, rule, alert)
		fired = append(fired, alert)
	}
	return fired, nil
}

// fire runs the rule's actions and stamps its cooldown.
func (e *Evaluator) fire(ctx context.Context, rule *model.AlertRule, alert Alert) {
	logger.WarnCtx(ctx, "alert fired, rule: %s, metric: %s, value: %.2f, threshold: %s %.2f, severity: %s",
		rule.Name, rule.MetricPath, alert.Value, rule.Operator, rule.Threshold, rule.Severity)

	for _, action := range rule.Actions {
		switch action {
		case "notify":
			e.notify(ctx, alert)
		case "log":
			// Already logged above.
		default:
			logger.WarnCtx(ctx, "unknown alert action, rule: %s, action: %s", rule.ID, action)
		}
	}

	if err := e.rules.Touch(ctx, rule.ID, alert.FiredAt); err != nil {
		logger.ErrorCtx(ctx, "failed to stamp alert cooldown, rule: %s, err: %v", rule.ID, err)
	}
	e.remember(alert)
}

func (e *Evaluator) notify(ctx context.Context, alert Alert) {
	if e.notifier == nil {
		return
	}
	_, err := e.notifier.Publish(ctx, &model.Event{
		Kind:     model.EventSystemNotification,
		TenantID: "system",
		Payload: map[string]interface{}{
			"alert":       alert.RuleName,
			"rule_id":     alert.RuleID,
			"metric_path": alert.MetricPath,
			"value":       alert.Value,
			"threshold":   alert.Threshold,
			"operator":    string(alert.Operator),
			"severity":    string(alert.Severity),
		},
	})
	if err != nil {
		logger.ErrorCtx(ctx, "failed to publish alert notification, rule: %s, err: %v", alert.RuleID, err)
	}
}

func (e *Evaluator) remember(alert Alert) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recent = append(e.recent, alert)
	if len(e.recent) > recentAlertCap {
		e.recent = e.recent[len(e.recent)-recentAlertCap:]
	}
}

// Recent returns fired alerts, newest first.
func (e *Evaluator) Recent() []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Alert, len(e.recent))
	for i, a := range e.recent {
		out[len(e.recent)-1-i] = a
	}
	return out
}

// IsRunning reports whether the loop is active.
func (e *Evaluator) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// resolveMetric maps a rule's metric path onto the snapshot. Lane depth is
// addressable as queue_depth.<lane>.
func resolveMetric(m *model.GlobalMetrics, path string) (float64, bool) {
	switch path {
	case "queue_depth":
		return float64(m.QueueDepth), true
	case "events_per_second":
		return m.EventsPerSecond, true
	case "error_rate":
		return m.ErrorRate, true
	case "avg_response_time_ms":
		return m.AvgResponseTimeMs, true
	case "utilization_pct":
		return m.UtilizationPct, true
	case "cost_efficiency":
		return m.CostEfficiency, true
	case "total_hourly_cost":
		return m.TotalHourlyCost, true
	case "active_tenants":
		return float64(m.ActiveTenants), true
	case "connected_workers":
		return float64(m.ConnectedWorkers), true
	}
	if lane, ok := strings.CutPrefix(path, "queue_depth."); ok && lane != "" {
		depth, exists := m.QueueDepthByLane[lane]
		return float64(depth), exists
	}
	return 0, false
}
