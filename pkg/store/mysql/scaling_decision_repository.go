package mysql

import (
	"context"
	"fmt"
	"time"

	domain "chatplane/internal/model"
	"chatplane/pkg/store/mysql/model"
)

// ScalingDecisionRepository handles scaling decision persistence in MySQL
type ScalingDecisionRepository struct {
	ds *Datastore
}

// NewScalingDecisionRepository creates a new scaling decision repository
func NewScalingDecisionRepository(ds *Datastore) *ScalingDecisionRepository {
	return &ScalingDecisionRepository{ds: ds}
}

// Create appends a scaling decision
func (r *ScalingDecisionRepository) Create(ctx context.Context, d *domain.ScalingDecision) error {
	row := &model.ScalingDecision{
		DecisionID:         d.ID,
		Action:             string(d.Action),
		Reason:             d.Reason,
		AffectedTenants:    model.JSONStringArray(d.AffectedTenants),
		EstimatedCostDelta: d.EstimatedCostDelta,
		Success:            d.Success,
		ExecutedAt:         d.ExecutedAt,
	}
	return r.ds.DB(ctx).Create(row).Error
}

// ListRecent retrieves the most recent scaling decisions
func (r *ScalingDecisionRepository) ListRecent(ctx context.Context, limit int) ([]*domain.ScalingDecision, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []*model.ScalingDecision
	err := r.ds.DB(ctx).
		Order("executed_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list recent scaling decisions: %w", err)
	}

	decisions := make([]*domain.ScalingDecision, 0, len(rows))
	for _, row := range rows {
		decisions = append(decisions, decisionToDomain(row))
	}
	return decisions, nil
}

// LatestByAction retrieves the most recent decision of one action type
func (r *ScalingDecisionRepository) LatestByAction(ctx context.Context, action domain.ScalingAction) (*domain.ScalingDecision, error) {
	var row model.ScalingDecision
	err := r.ds.DB(ctx).
		Where("action = ?", string(action)).
		Order("executed_at DESC").
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return decisionToDomain(&row), nil
}

// DeleteOlderThan prunes decisions outside the retention window
func (r *ScalingDecisionRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.ds.DB(ctx).Where("executed_at < ?", cutoff).Delete(&model.ScalingDecision{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to prune scaling decisions: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func decisionToDomain(row *model.ScalingDecision) *domain.ScalingDecision {
	return &domain.ScalingDecision{
		ID:                 row.DecisionID,
		Action:             domain.ScalingAction(row.Action),
		Reason:             row.Reason,
		AffectedTenants:    []string(row.AffectedTenants),
		EstimatedCostDelta: row.EstimatedCostDelta,
		ExecutedAt:         row.ExecutedAt,
		Success:            row.Success,
	}
}
