package allocator

import (
	"context"

	"chatplane/internal/model"
	"chatplane/pkg/supervisor"
)

// WorkerSupervisor is the slice of the supervisor the allocator drives.
type WorkerSupervisor interface {
	Allocate(ctx context.Context, tenantID string, pool model.PoolTier, forceRestart bool) (*supervisor.WorkerHandle, error)
	Deallocate(ctx context.Context, tenantID string) bool
	ActiveCount() (live, connected int)
}

// TenantDirectory resolves tenants and applies tier changes.
type TenantDirectory interface {
	Get(ctx context.Context, tenantID string) (*model.Tenant, error)
	ListActive(ctx context.Context) ([]*model.Tenant, error)
	UpdateTier(ctx context.Context, tenantID string, tier model.SubscriptionTier) error
}

// AllocationStore persists resource allocations.
type AllocationStore interface {
	Get(ctx context.Context, tenantID string) (*model.ResourceAllocation, error)
	Upsert(ctx context.Context, a *model.ResourceAllocation) error
	Delete(ctx context.Context, tenantID string) error
	List(ctx context.Context) ([]*model.ResourceAllocation, error)
	ListByPool(ctx context.Context, pool model.PoolTier) ([]*model.ResourceAllocation, error)
}

// DecisionStore persists scaling decisions beyond the in-memory ring.
type DecisionStore interface {
	Create(ctx context.Context, d *model.ScalingDecision) error
}

// UsageSource reads per-tenant usage windows for scaling decisions.
type UsageSource interface {
	GetWindow(ctx context.Context, tenantID string, days int) (*model.UsageStats, error)
}

// QueueStats exposes the router's lane view for global metrics.
type QueueStats interface {
	QueueDepth(ctx context.Context) (int, map[string]int)
	EventsPerSecond() float64
}

// TenantSavings is one rebalance candidate ranked by estimated savings.
type TenantSavings struct {
	TenantID         string
	TargetPool       model.PoolTier
	EstimatedSavings float64 // monthly, USD
}

// SavingsSource asks the cost optimizer for rebalance candidates.
type SavingsSource interface {
	TopSavings(ctx context.Context, limit int) ([]TenantSavings, error)
}

// EventPublisher emits allocator events (tier changes, scaling outcomes).
type EventPublisher interface {
	Publish(ctx context.Context, event *model.Event) (string, error)
}
