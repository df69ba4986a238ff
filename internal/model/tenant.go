package model

import "time"

// SubscriptionTier is a tenant's subscription level. It determines resource
// pool eligibility and event priority.
type SubscriptionTier string

const (
	TierStandard     SubscriptionTier = "standard"
	TierProfessional SubscriptionTier = "professional"
	TierEnterprise   SubscriptionTier = "enterprise"
)

// Valid reports whether the tier is a known subscription level.
func (t SubscriptionTier) Valid() bool {
	switch t {
	case TierStandard, TierProfessional, TierEnterprise:
		return true
	}
	return false
}

// PoolTier is a capacity pool class with a fixed cost/isolation trade-off.
type PoolTier string

const (
	PoolShared        PoolTier = "shared"
	PoolSemiDedicated PoolTier = "semi-dedicated"
	PoolDedicated     PoolTier = "dedicated"
)

// Valid reports whether the pool tier is a known capacity class.
func (p PoolTier) Valid() bool {
	switch p {
	case PoolShared, PoolSemiDedicated, PoolDedicated:
		return true
	}
	return false
}

// DefaultPool maps a subscription tier to the pool it is served from when
// no override is in effect.
func (t SubscriptionTier) DefaultPool() PoolTier {
	switch t {
	case TierEnterprise:
		return PoolDedicated
	case TierProfessional:
		return PoolSemiDedicated
	default:
		return PoolShared
	}
}

// Tenant is a single end-customer account. The subscription tier is
// immutable for the lifetime of an allocation; tier changes go through
// deallocate/reallocate.
type Tenant struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Tier      SubscriptionTier `json:"tier"`
	Active    bool             `json:"active"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// ResourceLimits are the per-worker resource caps attached to an allocation.
type ResourceLimits struct {
	MemoryMB              int `json:"memory_mb"`
	CPUPercent            int `json:"cpu_percent"`
	MaxConcurrentMessages int `json:"max_concurrent_messages"`
}

// ResourceAllocation records a tenant's capacity assignment. At most one
// exists per tenant at any time, and its pool always equals the worker
// handle's tier.
type ResourceAllocation struct {
	TenantID    string         `json:"tenant_id"`
	Pool        PoolTier       `json:"pool"`
	HourlyCost  float64        `json:"hourly_cost"`
	Limits      ResourceLimits `json:"limits"`
	WorkerID    string         `json:"worker_id,omitempty"`
	AllocatedAt time.Time      `json:"allocated_at"`
}
