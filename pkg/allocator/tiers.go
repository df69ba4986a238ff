package allocator

import "chatplane/internal/model"

// TierSpec is the fixed cost/capacity profile of one pool tier. The table
// is a closed enum keyed by pool; there is no string comparison anywhere
// downstream.
type TierSpec struct {
	Pool         model.PoolTier
	HourlyRate   float64 // per slot, USD
	UsersPerSlot int
	Limits       model.ResourceLimits
}

// tierTable: shared slots amortize one worker host across ten tenants at
// $0.02/hr, so a shared tenant costs $0.002/hr ($1.44/month). Dedicated is
// the all-in baseline rate.
var tierTable = map[model.PoolTier]TierSpec{
	model.PoolShared: {
		Pool:         model.PoolShared,
		HourlyRate:   0.02,
		UsersPerSlot: 10,
		Limits: model.ResourceLimits{
			MemoryMB:              256,
			CPUPercent:            25,
			MaxConcurrentMessages: 5,
		},
	},
	model.PoolSemiDedicated: {
		Pool:         model.PoolSemiDedicated,
		HourlyRate:   0.08,
		UsersPerSlot: 4,
		Limits: model.ResourceLimits{
			MemoryMB:              512,
			CPUPercent:            50,
			MaxConcurrentMessages: 15,
		},
	},
	model.PoolDedicated: {
		Pool:         model.PoolDedicated,
		HourlyRate:   0.25,
		UsersPerSlot: 1,
		Limits: model.ResourceLimits{
			MemoryMB:              1024,
			CPUPercent:            100,
			MaxConcurrentMessages: 50,
		},
	},
}

// SpecFor returns the tier profile for a pool, falling back to shared for
// anything unknown.
func SpecFor(pool model.PoolTier) TierSpec {
	if spec, ok := tierTable[pool]; ok {
		return spec
	}
	return tierTable[model.PoolShared]
}

// HourlyCost is the per-tenant hourly rate: the slot rate amortized over
// the tenants sharing the slot.
func (s TierSpec) HourlyCost() float64 {
	if s.UsersPerSlot <= 0 {
		return s.HourlyRate
	}
	return s.HourlyRate / float64(s.UsersPerSlot)
}

// MonthlyCost scales the per-tenant hourly rate by the fixed multipliers.
func (s TierSpec) MonthlyCost() float64 {
	return s.HourlyCost() * 24 * 30
}

// BaselineHourlyCost is the per-tenant cost if every tenant ran dedicated.
// The cost-reduction target is measured against this.
func BaselineHourlyCost() float64 {
	return tierTable[model.PoolDedicated].HourlyCost()
}

// PromotePool returns the next tier up; dedicated stays dedicated.
func PromotePool(pool model.PoolTier) model.PoolTier {
	switch pool {
	case model.PoolShared:
		return model.PoolSemiDedicated
	default:
		return model.PoolDedicated
	}
}

// DemotePool returns the next tier down; shared stays shared.
func DemotePool(pool model.PoolTier) model.PoolTier {
	switch pool {
	case model.PoolDedicated:
		return model.PoolSemiDedicated
	default:
		return model.PoolShared
	}
}
