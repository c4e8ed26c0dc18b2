package model

import "time"

// Vehicle is the local read model of the external vehicle registry.
type Vehicle struct {
	ID        int64     `gorm:"primaryKey" json:"id"` // Upstream ID
	Plate     string    `gorm:"column:placa;uniqueIndex;size:16;not null" json:"placa"`
	Color     string    `gorm:"size:32" json:"color"`
	Model     string    `gorm:"column:modelo;size:64" json:"modelo"`
	Brand     string    `gorm:"column:marca;size:64" json:"marca"`
	Type      string    `gorm:"column:tipo;size:32" json:"tipo"`
	OwnerID   *int64    `gorm:"column:usuario_id" json:"usuario_id"`
	SyncedAt  time.Time `gorm:"not null" json:"synced_at"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}
