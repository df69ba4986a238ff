package model

import "time"

// Tenant represents a tenant record in database
type Tenant struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	TenantID  string    `gorm:"column:tenant_id;type:varchar(64);not null;uniqueIndex"`
	Name      string    `gorm:"column:name;type:varchar(255);not null"`
	Tier      string    `gorm:"column:tier;type:varchar(32);not null;default:standard"`
	Active    bool      `gorm:"column:active;not null;default:true"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (Tenant) TableName() string {
	return "tenants"
}
