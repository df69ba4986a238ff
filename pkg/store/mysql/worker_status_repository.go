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

// WorkerStatusRepository persists tenant worker lifecycle state so the
// supervisor can reconcile after a control-plane restart.
type WorkerStatusRepository struct {
	ds *Datastore
}

// NewWorkerStatusRepository creates a new worker status repository
func NewWorkerStatusRepository(ds *Datastore) *WorkerStatusRepository {
	return &WorkerStatusRepository{ds: ds}
}

// StatusUpdate is the mutable subset written on a state transition.
type StatusUpdate struct {
	State        domain.WorkerState
	Pool         domain.PoolTier
	PID          int
	RestartCount int
	LastError    string
	LastActivity *time.Time
	StartedAt    *time.Time
}

// SetState upserts the persisted state for a tenant worker.
func (r *WorkerStatusRepository) SetState(ctx context.Context, tenantID string, upd StatusUpdate) error {
	now := time.Now()
	var row model.WorkerStatus
	err := r.ds.DB(ctx).Where("tenant_id = ?", tenantID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = model.WorkerStatus{TenantID: tenantID, CreatedAt: now}
	} else if err != nil {
		return fmt.Errorf("failed to load worker status: %w", err)
	}

	row.State = string(upd.State)
	if upd.Pool != "" {
		row.Pool = string(upd.Pool)
	}
	row.PID = upd.PID
	if upd.RestartCount > 0 {
		row.RestartCount = upd.RestartCount
	}
	row.LastError = upd.LastError
	if upd.LastActivity != nil {
		row.LastActivity = upd.LastActivity
	}
	if upd.StartedAt != nil {
		row.StartedAt = upd.StartedAt
	}
	row.UpdatedAt = now

	return r.ds.DB(ctx).Save(&row).Error
}

// GetState returns the persisted state for a tenant, none when absent.
func (r *WorkerStatusRepository) GetState(ctx context.Context, tenantID string) (domain.WorkerState, error) {
	var row model.WorkerStatus
	err := r.ds.DB(ctx).Where("tenant_id = ?", tenantID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.WorkerStateNone, nil
	}
	if err != nil {
		return domain.WorkerStateNone, fmt.Errorf("failed to get worker status: %w", err)
	}
	return domain.WorkerState(row.State), nil
}

// ListByStates retrieves tenant ids whose persisted state is in the set.
func (r *WorkerStatusRepository) ListByStates(ctx context.Context, states ...domain.WorkerState) ([]string, error) {
	values := make([]string, 0, len(states))
	for _, s := range states {
		values = append(values, string(s))
	}

	var tenantIDs []string
	err := r.ds.DB(ctx).Model(&model.WorkerStatus{}).
		Where("state IN ?", values).
		Pluck("tenant_id", &tenantIDs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list worker statuses: %w", err)
	}
	return tenantIDs, nil
}
