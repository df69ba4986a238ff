package mysql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	domain "chatplane/internal/model"
	"chatplane/pkg/store/mysql/model"

	"gorm.io/gorm"
)

// CostAnalysisRepository stores the latest cost analysis per tenant
type CostAnalysisRepository struct {
	ds *Datastore
}

// NewCostAnalysisRepository creates a new cost analysis repository
func NewCostAnalysisRepository(ds *Datastore) *CostAnalysisRepository {
	return &CostAnalysisRepository{ds: ds}
}

// Upsert replaces the stored analysis for a tenant
func (r *CostAnalysisRepository) Upsert(ctx context.Context, a *domain.CostAnalysis) error {
	recs, err := json.Marshal(a.Recommendations)
	if err != nil {
		return fmt.Errorf("failed to marshal recommendations: %w", err)
	}
	var recsMap model.JSONMap
	if err := json.Unmarshal([]byte(fmt.Sprintf(`{"items":%s}`, recs)), &recsMap); err != nil {
		return fmt.Errorf("failed to wrap recommendations: %w", err)
	}

	var row model.CostAnalysis
	err = r.ds.DB(ctx).Where("tenant_id = ?", a.TenantID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = model.CostAnalysis{TenantID: a.TenantID}
	} else if err != nil {
		return fmt.Errorf("failed to load cost analysis: %w", err)
	}

	row.CurrentPool = string(a.Current.Pool)
	row.CurrentCost = a.Current.MonthlyCost
	row.CurrentUtil = a.Current.Utilization
	row.CurrentEff = a.Current.Efficiency
	row.RecommendedPool = string(a.Recommended.Pool)
	row.RecommendedCost = a.Recommended.MonthlyCost
	row.RecommendedUtil = a.Recommended.Utilization
	row.RecommendedEff = a.Recommended.Efficiency
	row.Recommendations = recsMap
	row.AnalyzedAt = a.AnalyzedAt

	return r.ds.DB(ctx).Save(&row).Error
}

// Get retrieves the stored analysis for a tenant
func (r *CostAnalysisRepository) Get(ctx context.Context, tenantID string) (*domain.CostAnalysis, error) {
	var row model.CostAnalysis
	err := r.ds.DB(ctx).Where("tenant_id = ?", tenantID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("cost analysis for tenant %s: %w", tenantID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get cost analysis: %w", err)
	}

	analysis := &domain.CostAnalysis{
		TenantID: row.TenantID,
		Current: domain.TierCostView{
			Pool:        domain.PoolTier(row.CurrentPool),
			MonthlyCost: row.CurrentCost,
			Utilization: row.CurrentUtil,
			Efficiency:  row.CurrentEff,
		},
		Recommended: domain.TierCostView{
			Pool:        domain.PoolTier(row.RecommendedPool),
			MonthlyCost: row.RecommendedCost,
			Utilization: row.RecommendedUtil,
			Efficiency:  row.RecommendedEff,
		},
		AnalyzedAt: row.AnalyzedAt,
	}

	if items, ok := row.Recommendations["items"]; ok {
		raw, err := json.Marshal(items)
		if err == nil {
			_ = json.Unmarshal(raw, &analysis.Recommendations)
		}
	}

	return analysis, nil
}
