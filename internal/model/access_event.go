package model

import "time"

// Movement is the kind of an access event.
type Movement string

const (
	MovementEntry Movement = "Entrada"
	MovementExit  Movement = "Salida"
)

// Valid reports whether m is one of the accepted movements.
func (m Movement) Valid() bool {
	return m == MovementEntry || m == MovementExit
}

// Movements lists the accepted movements in display order.
func Movements() []Movement {
	return []Movement{MovementEntry, MovementExit}
}

// AccessEvent is one row of the entry/exit ledger.
type AccessEvent struct {
	ID           int64     `gorm:"primaryKey" json:"id"`
	Movement     Movement  `gorm:"column:movimiento;size:16;not null;index:idx_access_events_vehicle_movement,priority:2" json:"movimiento"`
	Timestamp    time.Time `gorm:"column:fecha_hora;not null;index:idx_access_events_vehicle_time,priority:2" json:"fecha_hora"`
	Door         *string   `gorm:"column:puerta;size:64" json:"puerta"`
	StayDuration *int64    `gorm:"column:tiempo_estadia" json:"tiempo_estadia"` // seconds
	VehicleID    int64     `gorm:"column:vehiculo_id;not null;index:idx_access_events_vehicle_time,priority:1;index:idx_access_events_vehicle_movement,priority:1" json:"vehiculo_id"`
}

// TableName pins the table name independent of the struct name.
func (AccessEvent) TableName() string {
	return "access_events"
}

// EventFilter narrows administrative listings. Zero values mean "any".
type EventFilter struct {
	VehicleID int64
	Movement  Movement
	From      *time.Time
	To        *time.Time
}
