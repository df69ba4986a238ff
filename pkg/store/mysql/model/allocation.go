package model

import "time"

// Allocation represents a tenant's resource allocation record. One row per
// tenant; deallocation deletes the row.
type Allocation struct {
	ID                    int64     `gorm:"column:id;primaryKey;autoIncrement"`
	TenantID              string    `gorm:"column:tenant_id;type:varchar(64);not null;uniqueIndex"`
	Pool                  string    `gorm:"column:pool;type:varchar(32);not null;index"`
	HourlyCost            float64   `gorm:"column:hourly_cost;type:decimal(10,6);not null"`
	MemoryMB              int       `gorm:"column:memory_mb;not null;default:0"`
	CPUPercent            int       `gorm:"column:cpu_percent;not null;default:0"`
	MaxConcurrentMessages int       `gorm:"column:max_concurrent_messages;not null;default:0"`
	WorkerID              string    `gorm:"column:worker_id;type:varchar(64)"`
	AllocatedAt           time.Time `gorm:"column:allocated_at;not null"`
	CreatedAt             time.Time `gorm:"column:created_at;not null"`
	UpdatedAt             time.Time `gorm:"column:updated_at;not null"`
}

func (Allocation) TableName() string {
	return "allocations"
}

// WorkerStatus represents the persisted lifecycle state of a tenant worker.
// One row per tenant, upserted on every transition so the control plane can
// reconcile after restart.
type WorkerStatus struct {
	ID           int64      `gorm:"column:id;primaryKey;autoIncrement"`
	TenantID     string     `gorm:"column:tenant_id;type:varchar(64);not null;uniqueIndex"`
	State        string     `gorm:"column:state;type:varchar(32);not null;default:none"`
	Pool         string     `gorm:"column:pool;type:varchar(32)"`
	PID          int        `gorm:"column:pid;default:0"`
	RestartCount int        `gorm:"column:restart_count;not null;default:0"`
	LastError    string     `gorm:"column:last_error;type:text"`
	LastActivity *time.Time `gorm:"column:last_activity"`
	StartedAt    *time.Time `gorm:"column:started_at"`
	CreatedAt    time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;not null"`
}

func (WorkerStatus) TableName() string {
	return "worker_statuses"
}
