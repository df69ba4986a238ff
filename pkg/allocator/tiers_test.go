package allocator

import (
	"testing"

	"chatplane/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestSharedTierCostScenario(t *testing.T) {
	spec := SpecFor(model.PoolShared)

	// $0.02/hr slot shared by 10 users
	assert.InDelta(t, 0.002, spec.HourlyCost(), 1e-9)
	// 30 days at that rate
	assert.InDelta(t, 1.44, spec.MonthlyCost(), 1e-9)
}

func TestTierTableOrdering(t *testing.T) {
	shared := SpecFor(model.PoolShared)
	semi := SpecFor(model.PoolSemiDedicated)
	dedicated := SpecFor(model.PoolDedicated)

	assert.Less(t, shared.HourlyCost(), semi.HourlyCost())
	assert.Less(t, semi.HourlyCost(), dedicated.HourlyCost())

	assert.Less(t, shared.Limits.MemoryMB, semi.Limits.MemoryMB)
	assert.Less(t, semi.Limits.MemoryMB, dedicated.Limits.MemoryMB)

	assert.Equal(t, 1, dedicated.UsersPerSlot)
}

func TestSpecForUnknownPoolFallsBackToShared(t *testing.T) {
	spec := SpecFor(model.PoolTier("gpu-cluster"))
	assert.Equal(t, model.PoolShared, spec.Pool)
}

func TestBaselineIsDedicatedRate(t *testing.T) {
	assert.Equal(t, SpecFor(model.PoolDedicated).HourlyCost(), BaselineHourlyCost())
}

func TestPromoteDemote(t *testing.T) {
	assert.Equal(t, model.PoolSemiDedicated, PromotePool(model.PoolShared))
	assert.Equal(t, model.PoolDedicated, PromotePool(model.PoolSemiDedicated))
	assert.Equal(t, model.PoolDedicated, PromotePool(model.PoolDedicated))

	assert.Equal(t, model.PoolSemiDedicated, DemotePool(model.PoolDedicated))
	assert.Equal(t, model.PoolShared, DemotePool(model.PoolSemiDedicated))
	assert.Equal(t, model.PoolShared, DemotePool(model.PoolShared))
}
