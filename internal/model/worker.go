package model

import "time"

// WorkerState is the lifecycle state of a tenant's worker process.
//
// Transitions: none → starting → {connecting → connected} | error →
// disconnected → none. The supervisor never restarts a crashed worker on
// its own; it marks error and lets the resource allocator decide.
type WorkerState string

const (
	WorkerStateNone         WorkerState = "none"
	WorkerStateStarting     WorkerState = "starting"
	WorkerStateConnecting   WorkerState = "connecting"
	WorkerStateConnected    WorkerState = "connected"
	WorkerStateError        WorkerState = "error"
	WorkerStateDisconnected WorkerState = "disconnected"
)

// Live reports whether the state counts as an active worker for the
// one-handle-per-tenant invariant.
func (s WorkerState) Live() bool {
	switch s {
	case WorkerStateStarting, WorkerStateConnecting, WorkerStateConnected:
		return true
	}
	return false
}

// WorkerInfo is the externally visible view of a worker handle.
type WorkerInfo struct {
	TenantID     string      `json:"tenant_id"`
	Pool         PoolTier    `json:"pool"`
	State        WorkerState `json:"state"`
	PID          int         `json:"pid,omitempty"`
	RestartCount int         `json:"restart_count"`
	LastActivity time.Time   `json:"last_activity"`
	StartedAt    time.Time   `json:"started_at"`
}
