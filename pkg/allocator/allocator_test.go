package allocator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"chatplane/internal/model"
	"chatplane/pkg/config"
	"chatplane/pkg/supervisor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSupervisor struct {
	mu          sync.Mutex
	allocated   map[string]model.PoolTier
	allocateErr error
	deallocated []string
}

func newFakeSupervisor() *fakeSupervisor {
	return &fakeSupervisor{allocated: make(map[string]model.PoolTier)}
}

func (f *fakeSupervisor) Allocate(ctx context.Context, tenantID string, pool model.PoolTier, forceRestart bool) (*supervisor.WorkerHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.allocateErr != nil {
		return nil, f.allocateErr
	}
	// Mirror the real supervisor: a live worker is reused on its original
	// pool unless the caller forces a restart.
	if running, ok := f.allocated[tenantID]; ok && !forceRestart {
		return &supervisor.WorkerHandle{TenantID: tenantID, Pool: running}, nil
	}
	f.allocated[tenantID] = pool
	return &supervisor.WorkerHandle{TenantID: tenantID, Pool: pool}, nil
}

func (f *fakeSupervisor) Deallocate(ctx context.Context, tenantID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deallocated = append(f.deallocated, tenantID)
	_, had := f.allocated[tenantID]
	delete(f.allocated, tenantID)
	return had
}

func (f *fakeSupervisor) ActiveCount() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.allocated), len(f.allocated)
}

type fakeTenants struct {
	mu      sync.Mutex
	tenants map[string]*model.Tenant
}

func newFakeTenants(tenants ...*model.Tenant) *fakeTenants {
	f := &fakeTenants{tenants: make(map[string]*model.Tenant)}
	for _, t := range tenants {
		f.tenants[t.ID] = t
	}
	return f
}

func (f *fakeTenants) Get(ctx context.Context, tenantID string) (*model.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.tenants[tenantID]; ok {
		return t, nil
	}
	return nil, model.ErrNotFound
}

func (f *fakeTenants) ListActive(ctx context.Context) ([]*model.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*model.Tenant, 0, len(f.tenants))
	for _, t := range f.tenants {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeTenants) UpdateTier(ctx context.Context, tenantID string, tier model.SubscriptionTier) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tenants[tenantID]
	if !ok {
		return model.ErrNotFound
	}
	t.Tier = tier
	return nil
}

type fakeAllocations struct {
	mu        sync.Mutex
	records   map[string]*model.ResourceAllocation
	upsertErr error
}

func newFakeAllocations() *fakeAllocations {
	return &fakeAllocations{records: make(map[string]*model.ResourceAllocation)}
}

func (f *fakeAllocations) Get(ctx context.Context, tenantID string) (*model.ResourceAllocation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.records[tenantID]; ok {
		return a, nil
	}
	return nil, model.ErrNotFound
}

func (f *fakeAllocations) Upsert(ctx context.Context, a *model.ResourceAllocation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.records[a.TenantID] = a
	return nil
}

func (f *fakeAllocations) Delete(ctx context.Context, tenantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, tenantID)
	return nil
}

func (f *fakeAllocations) List(ctx context.Context) ([]*model.ResourceAllocation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*model.ResourceAllocation, 0, len(f.records))
	for _, a := range f.records {
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeAllocations) ListByPool(ctx context.Context, pool model.PoolTier) ([]*model.ResourceAllocation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.ResourceAllocation
	for _, a := range f.records {
		if a.Pool == pool {
			out = append(out, a)
		}
	}
	return out, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*model.Event
}

func (r *recordingPublisher) Publish(ctx context.Context, event *model.Event) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return "evt", nil
}

func allocatorConfig() *config.Config {
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.AutoScaler.SettleDelaySec = 1
	return cfg
}

func TestAllocateResources_DefaultPoolByTier(t *testing.T) {
	tests := []struct {
		tier model.SubscriptionTier
		want model.PoolTier
	}{
		{model.TierStandard, model.PoolShared},
		{model.TierProfessional, model.PoolSemiDedicated},
		{model.TierEnterprise, model.PoolDedicated},
	}

	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			workers := newFakeSupervisor()
			allocations := newFakeAllocations()
			tenants := newFakeTenants(&model.Tenant{ID: "t1", Tier: tt.tier, Active: true})
			a := NewAllocator(allocatorConfig(), workers, tenants, allocations, nil)

			alloc, err := a.AllocateResources(context.Background(), "t1", "")
			require.NoError(t, err)

			assert.Equal(t, tt.want, alloc.Pool)
			assert.Equal(t, SpecFor(tt.want).HourlyCost(), alloc.HourlyCost)
			assert.Equal(t, SpecFor(tt.want).Limits, alloc.Limits)
			// Allocation pool matches the worker handle's tier
			assert.Equal(t, tt.want, workers.allocated["t1"])

			stored, err := allocations.Get(context.Background(), "t1")
			require.NoError(t, err)
			assert.Equal(t, alloc, stored)
		})
	}
}

func TestAllocateResources_OverridePool(t *testing.T) {
	workers := newFakeSupervisor()
	tenants := newFakeTenants(&model.Tenant{ID: "t1", Tier: model.TierStandard})
	a := NewAllocator(allocatorConfig(), workers, tenants, newFakeAllocations(), nil)

	alloc, err := a.AllocateResources(context.Background(), "t1", model.PoolDedicated)
	require.NoError(t, err)
	assert.Equal(t, model.PoolDedicated, alloc.Pool)

	_, err = a.AllocateResources(context.Background(), "t1", model.PoolTier("bogus"))
	assert.Error(t, err)
}

func TestAllocateResources_ReusedWorkerKeepsRunningPool(t *testing.T) {
	workers := newFakeSupervisor()
	allocations := newFakeAllocations()
	tenants := newFakeTenants(&model.Tenant{ID: "t1", Tier: model.TierStandard})
	a := NewAllocator(allocatorConfig(), workers, tenants, allocations, nil)

	_, err := a.AllocateResources(context.Background(), "t1", "")
	require.NoError(t, err)

	// An override without force reuses the connected worker, so the record
	// must keep describing the pool that is actually running.
	alloc, err := a.AllocateResources(context.Background(), "t1", model.PoolDedicated)
	require.NoError(t, err)
	assert.Equal(t, model.PoolShared, alloc.Pool)
	assert.Equal(t, workers.allocated["t1"], alloc.Pool)
	assert.Equal(t, SpecFor(model.PoolShared).HourlyCost(), alloc.HourlyCost)

	stored, err := allocations.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, model.PoolShared, stored.Pool)
}

func TestAllocateResources_UnknownTenant(t *testing.T) {
	a := NewAllocator(allocatorConfig(), newFakeSupervisor(), newFakeTenants(), newFakeAllocations(), nil)

	_, err := a.AllocateResources(context.Background(), "nope", "")
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestAllocateResources_PersistFailureTearsWorkerDown(t *testing.T) {
	workers := newFakeSupervisor()
	allocations := newFakeAllocations()
	allocations.upsertErr = errors.New("mysql down")
	tenants := newFakeTenants(&model.Tenant{ID: "t1", Tier: model.TierStandard})
	a := NewAllocator(allocatorConfig(), workers, tenants, allocations, nil)

	_, err := a.AllocateResources(context.Background(), "t1", "")
	require.Error(t, err)

	// No half-allocated state: worker torn down, no record
	assert.NotContains(t, workers.allocated, "t1")
	assert.Contains(t, workers.deallocated, "t1")
}

func TestDeallocateResources(t *testing.T) {
	workers := newFakeSupervisor()
	allocations := newFakeAllocations()
	tenants := newFakeTenants(&model.Tenant{ID: "t1", Tier: model.TierStandard})
	a := NewAllocator(allocatorConfig(), workers, tenants, allocations, nil)

	_, err := a.AllocateResources(context.Background(), "t1", "")
	require.NoError(t, err)

	require.NoError(t, a.DeallocateResources(context.Background(), "t1"))
	_, err = allocations.Get(context.Background(), "t1")
	assert.True(t, errors.Is(err, model.ErrNotFound))

	// Idempotent
	assert.NoError(t, a.DeallocateResources(context.Background(), "t1"))
}

func TestHandleTierChange(t *testing.T) {
	workers := newFakeSupervisor()
	allocations := newFakeAllocations()
	tenants := newFakeTenants(&model.Tenant{ID: "t1", Tier: model.TierStandard})
	pub := &recordingPublisher{}
	a := NewAllocator(allocatorConfig(), workers, tenants, allocations, pub)

	_, err := a.AllocateResources(context.Background(), "t1", "")
	require.NoError(t, err)

	require.NoError(t, a.HandleTierChange(context.Background(), "t1", model.TierEnterprise))

	alloc, err := allocations.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, model.PoolDedicated, alloc.Pool)

	tenant, _ := tenants.Get(context.Background(), "t1")
	assert.Equal(t, model.TierEnterprise, tenant.Tier)

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.NotEmpty(t, pub.events)
	last := pub.events[len(pub.events)-1]
	assert.Equal(t, model.EventSystemNotification, last.Kind)
	assert.Equal(t, string(model.TierEnterprise), last.Payload["tierChange"])
	assert.Equal(t, string(model.PoolShared), last.Payload["fromPool"])
	assert.Equal(t, string(model.PoolDedicated), last.Payload["toPool"])
}

func TestHandleTierChange_UnknownTier(t *testing.T) {
	a := NewAllocator(allocatorConfig(), newFakeSupervisor(), newFakeTenants(), newFakeAllocations(), nil)
	assert.Error(t, a.HandleTierChange(context.Background(), "t1", model.SubscriptionTier("platinum")))
}
