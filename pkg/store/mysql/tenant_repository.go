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

// TenantRepository handles tenant persistence in MySQL
type TenantRepository struct {
	ds *Datastore
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(ds *Datastore) *TenantRepository {
	return &TenantRepository{ds: ds}
}

// Get retrieves a tenant by id
func (r *TenantRepository) Get(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	var row model.Tenant
	err := r.ds.DB(ctx).Where("tenant_id = ?", tenantID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("tenant %s: %w", tenantID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return tenantToDomain(&row), nil
}

// ListActive retrieves all active tenants
func (r *TenantRepository) ListActive(ctx context.Context) ([]*domain.Tenant, error) {
	var rows []*model.Tenant
	err := r.ds.DB(ctx).Where("active = ?", true).Order("tenant_id").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	tenants := make([]*domain.Tenant, 0, len(rows))
	for _, row := range rows {
		tenants = append(tenants, tenantToDomain(row))
	}
	return tenants, nil
}

// Upsert creates or updates a tenant record
func (r *TenantRepository) Upsert(ctx context.Context, t *domain.Tenant) error {
	now := time.Now()
	var row model.Tenant
	err := r.ds.DB(ctx).Where("tenant_id = ?", t.ID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = model.Tenant{
			TenantID:  t.ID,
			Name:      t.Name,
			Tier:      string(t.Tier),
			Active:    t.Active,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return r.ds.DB(ctx).Create(&row).Error
	}
	if err != nil {
		return fmt.Errorf("failed to load tenant for upsert: %w", err)
	}

	row.Name = t.Name
	row.Tier = string(t.Tier)
	row.Active = t.Active
	row.UpdatedAt = now
	return r.ds.DB(ctx).Save(&row).Error
}

// UpdateTier changes a tenant's subscription tier
func (r *TenantRepository) UpdateTier(ctx context.Context, tenantID string, tier domain.SubscriptionTier) error {
	result := r.ds.DB(ctx).Model(&model.Tenant{}).
		Where("tenant_id = ?", tenantID).
		Updates(map[string]interface{}{"tier": string(tier), "updated_at": time.Now()})
	if result.Error != nil {
		return fmt.Errorf("failed to update tenant tier: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("tenant %s: %w", tenantID, domain.ErrNotFound)
	}
	return nil
}

func tenantToDomain(row *model.Tenant) *domain.Tenant {
	return &domain.Tenant{
		ID:        row.TenantID,
		Name:      row.Name,
		Tier:      domain.SubscriptionTier(row.Tier),
		Active:    row.Active,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}
