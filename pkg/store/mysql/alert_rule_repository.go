package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "chatplane/internal/model"
	"chatplane/pkg/store/mysql/model"

	"gorm.io/gorm"
)

// AlertRuleRepository handles alert rule persistence in MySQL
type AlertRuleRepository struct {
	ds *Datastore
}

// NewAlertRuleRepository creates a new alert rule repository
func NewAlertRuleRepository(ds *Datastore) *AlertRuleRepository {
	return &AlertRuleRepository{ds: ds}
}

// Create stores a new alert rule
func (r *AlertRuleRepository) Create(ctx context.Context, rule *domain.AlertRule) error {
	now := time.Now()
	row := &model.AlertRule{
		RuleID:          rule.ID,
		Name:            rule.Name,
		MetricPath:      rule.MetricPath,
		Operator:        string(rule.Operator),
		Threshold:       rule.Threshold,
		WindowSeconds:   rule.WindowSeconds,
		Actions:         model.JSONStringArray(rule.Actions),
		Severity:        string(rule.Severity),
		CooldownSeconds: rule.CooldownSeconds,
		Enabled:         rule.Enabled,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return r.ds.DB(ctx).Create(row).Error
}

// Delete removes an alert rule
func (r *AlertRuleRepository) Delete(ctx context.Context, ruleID string) error {
	result := r.ds.DB(ctx).Where("rule_id = ?", ruleID).Delete(&model.AlertRule{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete alert rule: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("alert rule %s: %w", ruleID, domain.ErrNotFound)
	}
	return nil
}

// ListEnabled retrieves all enabled alert rules
func (r *AlertRuleRepository) ListEnabled(ctx context.Context) ([]*domain.AlertRule, error) {
	var rows []*model.AlertRule
	err := r.ds.DB(ctx).Where("enabled = ?", true).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list alert rules: %w", err)
	}
	rules := make([]*domain.AlertRule, 0, len(rows))
	for _, row := range rows {
		rules = append(rules, alertRuleToDomain(row))
	}
	return rules, nil
}

// List retrieves all alert rules
func (r *AlertRuleRepository) List(ctx context.Context) ([]*domain.AlertRule, error) {
	var rows []*model.AlertRule
	err := r.ds.DB(ctx).Order("created_at").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list alert rules: %w", err)
	}
	rules := make([]*domain.AlertRule, 0, len(rows))
	for _, row := range rows {
		rules = append(rules, alertRuleToDomain(row))
	}
	return rules, nil
}

// Touch updates a rule's last-triggered timestamp
func (r *AlertRuleRepository) Touch(ctx context.Context, ruleID string, at time.Time) error {
	return r.ds.DB(ctx).Model(&model.AlertRule{}).
		Where("rule_id = ?", ruleID).
		Updates(map[string]interface{}{"last_triggered_at": at, "updated_at": time.Now()}).Error
}

// Get retrieves one alert rule
func (r *AlertRuleRepository) Get(ctx context.Context, ruleID string) (*domain.AlertRule, error) {
	var row model.AlertRule
	err := r.ds.DB(ctx).Where("rule_id = ?", ruleID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("alert rule %s: %w", ruleID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get alert rule: %w", err)
	}
	return alertRuleToDomain(&row), nil
}

func alertRuleToDomain(row *model.AlertRule) *domain.AlertRule {
	return &domain.AlertRule{
		ID:              row.RuleID,
		Name:            row.Name,
		MetricPath:      row.MetricPath,
		Operator:        domain.AlertOperator(row.Operator),
		Threshold:       row.Threshold,
		WindowSeconds:   row.WindowSeconds,
		Actions:         []string(row.Actions),
		Severity:        domain.AlertSeverity(row.Severity),
		CooldownSeconds: row.CooldownSeconds,
		Enabled:         row.Enabled,
		LastTriggeredAt: row.LastTriggeredAt,
	}
}
