package ledger

import (
	"context"
	"time"

	"parking-access-backend/internal/model"
)

// Reader is the side-effect-free half of the event store.
type Reader interface {
	// LatestEvent returns the most recent event of the vehicle ordered by
	// timestamp desc then id desc, or nil when the vehicle has no events.
	LatestEvent(ctx context.Context, vehicleID int64) (*model.AccessEvent, error)
	// LatestEntry is LatestEvent restricted to Entrada rows.
	LatestEntry(ctx context.Context, vehicleID int64) (*model.AccessEvent, error)
	// EventsByVehicle returns the vehicle's events most-recent-first. A
	// non-positive limit returns all of them.
	EventsByVehicle(ctx context.Context, vehicleID int64, limit int) ([]model.AccessEvent, error)
}

// Tx is the view of the store available inside a vehicle-scoped transaction.
type Tx interface {
	LatestEvent(ctx context.Context, vehicleID int64) (*model.AccessEvent, error)
	LatestEntry(ctx context.Context, vehicleID int64) (*model.AccessEvent, error)
	InsertEvent(ctx context.Context, event *model.AccessEvent) error
}

// Store is the persistence port of the ledger.
type Store interface {
	Reader
	// WithVehicleLock runs fn in one transaction that excludes every other
	// WithVehicleLock call for the same vehicle until it commits or rolls
	// back. A non-nil error from fn rolls the transaction back.
	WithVehicleLock(ctx context.Context, vehicleID int64, fn func(Tx) error) error
}

// EventPatch holds the fields of an administrative update. Nil fields are
// left untouched.
type EventPatch struct {
	Movement     *model.Movement
	Timestamp    *time.Time
	Door         *string
	StayDuration *int64
	VehicleID    *int64
}

// Empty reports whether the patch changes nothing.
func (p EventPatch) Empty() bool {
	return p.Movement == nil && p.Timestamp == nil && p.Door == nil && p.StayDuration == nil && p.VehicleID == nil
}

// AdminStore is the raw CRUD port used by Admin. Absent rows are reported as
// a nil event or false, not as an error.
type AdminStore interface {
	GetEvent(ctx context.Context, id int64) (*model.AccessEvent, error)
	ListEvents(ctx context.Context, filter model.EventFilter) ([]model.AccessEvent, error)
	UpdateEvent(ctx context.Context, id int64, patch EventPatch) (*model.AccessEvent, error)
	DeleteEvent(ctx context.Context, id int64) (bool, error)
}

// VehicleRegistry answers whether a vehicle id is known.
type VehicleRegistry interface {
	Exists(ctx context.Context, vehicleID int64) (bool, error)
}

// Notifier receives every committed event. Dispatch must not block.
type Notifier interface {
	Dispatch(event model.AccessEvent)
}
