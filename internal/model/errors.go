package model

import "errors"

// Error taxonomy shared across the control plane. Callers distinguish
// categories with errors.Is; components wrap these with context via %w.
var (
	// ErrAlreadyConnecting guards concurrent allocation for one tenant.
	ErrAlreadyConnecting = errors.New("allocation already in progress for tenant")

	// ErrStartupFailed means the worker process exited before reaching a
	// connected state.
	ErrStartupFailed = errors.New("worker failed during startup")

	// ErrNotFound means the tenant, handle or record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrRateLimitExceeded means the tenant exhausted its tier's event budget.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrCommandTimeout means an IPC round-trip exceeded its deadline.
	ErrCommandTimeout = errors.New("command timed out")

	// ErrRecommendationExecutionFailed means a cost-optimizer action could
	// not be applied.
	ErrRecommendationExecutionFailed = errors.New("recommendation execution failed")
)
