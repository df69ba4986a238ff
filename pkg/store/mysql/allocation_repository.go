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

// AllocationRepository handles resource allocation persistence in MySQL
type AllocationRepository struct {
	ds *Datastore
}

// NewAllocationRepository creates a new allocation repository
func NewAllocationRepository(ds *Datastore) *AllocationRepository {
	return &AllocationRepository{ds: ds}
}

// Get retrieves a tenant's allocation
func (r *AllocationRepository) Get(ctx context.Context, tenantID string) (*domain.ResourceAllocation, error) {
	var row model.Allocation
	err := r.ds.DB(ctx).Where("tenant_id = ?", tenantID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("allocation for tenant %s: %w", tenantID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get allocation: %w", err)
	}
	return allocationToDomain(&row), nil
}

// Upsert persists an allocation, replacing any previous row for the tenant
func (r *AllocationRepository) Upsert(ctx context.Context, a *domain.ResourceAllocation) error {
	now := time.Now()
	var row model.Allocation
	err := r.ds.DB(ctx).Where("tenant_id = ?", a.TenantID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = model.Allocation{TenantID: a.TenantID, CreatedAt: now}
	} else if err != nil {
		return fmt.Errorf("failed to load allocation for upsert: %w", err)
	}

	row.Pool = string(a.Pool)
	row.HourlyCost = a.HourlyCost
	row.MemoryMB = a.Limits.MemoryMB
	row.CPUPercent = a.Limits.CPUPercent
	row.MaxConcurrentMessages = a.Limits.MaxConcurrentMessages
	row.WorkerID = a.WorkerID
	row.AllocatedAt = a.AllocatedAt
	row.UpdatedAt = now

	return r.ds.DB(ctx).Save(&row).Error
}

// Delete removes a tenant's allocation (idempotent)
func (r *AllocationRepository) Delete(ctx context.Context, tenantID string) error {
	return r.ds.DB(ctx).Where("tenant_id = ?", tenantID).Delete(&model.Allocation{}).Error
}

// List retrieves all active allocations
func (r *AllocationRepository) List(ctx context.Context) ([]*domain.ResourceAllocation, error) {
	var rows []*model.Allocation
	err := r.ds.DB(ctx).Order("tenant_id").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list allocations: %w", err)
	}
	allocations := make([]*domain.ResourceAllocation, 0, len(rows))
	for _, row := range rows {
		allocations = append(allocations, allocationToDomain(row))
	}
	return allocations, nil
}

// ListByPool retrieves allocations in one capacity pool
func (r *AllocationRepository) ListByPool(ctx context.Context, pool domain.PoolTier) ([]*domain.ResourceAllocation, error) {
	var rows []*model.Allocation
	err := r.ds.DB(ctx).Where("pool = ?", string(pool)).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list allocations by pool: %w", err)
	}
	allocations := make([]*domain.ResourceAllocation, 0, len(rows))
	for _, row := range rows {
		allocations = append(allocations, allocationToDomain(row))
	}
	return allocations, nil
}

func allocationToDomain(row *model.Allocation) *domain.ResourceAllocation {
	return &domain.ResourceAllocation{
		TenantID:   row.TenantID,
		Pool:       domain.PoolTier(row.Pool),
		HourlyCost: row.HourlyCost,
		Limits: domain.ResourceLimits{
			MemoryMB:              row.MemoryMB,
			CPUPercent:            row.CPUPercent,
			MaxConcurrentMessages: row.MaxConcurrentMessages,
		},
		WorkerID:    row.WorkerID,
		AllocatedAt: row.AllocatedAt,
	}
}
