package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parking-access-backend/internal/ledger"
	"parking-access-backend/internal/model"
)

const vehicleBatchSize = 100

// Store defines the interface for all database operations.
type Store interface {
	ledger.Store
	ledger.AdminStore

	VehicleExists(ctx context.Context, id int64) (bool, error)
	GetVehicle(ctx context.Context, id int64) (*model.Vehicle, error)
	UpsertVehicles(ctx context.Context, vehicles []model.Vehicle) (int, error)

	SubscriptionStore
	Ping(ctx context.Context) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// gormTx is the ledger.Tx handed to WithVehicleLock callbacks.
type gormTx struct {
	tx *gorm.DB
}

// WithVehicleLock runs fn inside one transaction. On PostgreSQL the first
// statement takes a transaction-scoped advisory lock keyed by the vehicle
// id, so concurrent appends for one vehicle run one after another. SQLite
// serializes writers on its own.
func (s *gormStore) WithVehicleLock(ctx context.Context, vehicleID int64, fn func(ledger.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if tx.Dialector.Name() == "postgres" {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", vehicleID).Error; err != nil {
				return fmt.Errorf("lock vehicle %d: %w", vehicleID, err)
			}
		}
		return fn(&gormTx{tx: tx})
	})
}

func (t *gormTx) LatestEvent(ctx context.Context, vehicleID int64) (*model.AccessEvent, error) {
	return latestEvent(t.tx.WithContext(ctx), vehicleID, "")
}

func (t *gormTx) LatestEntry(ctx context.Context, vehicleID int64) (*model.AccessEvent, error) {
	return latestEvent(t.tx.WithContext(ctx), vehicleID, model.MovementEntry)
}

func (t *gormTx) InsertEvent(ctx context.Context, event *model.AccessEvent) error {
	return t.tx.WithContext(ctx).Create(event).Error
}

func (s *gormStore) LatestEvent(ctx context.Context, vehicleID int64) (*model.AccessEvent, error) {
	return latestEvent(s.db.WithContext(ctx), vehicleID, "")
}

func (s *gormStore) LatestEntry(ctx context.Context, vehicleID int64) (*model.AccessEvent, error) {
	return latestEvent(s.db.WithContext(ctx), vehicleID, model.MovementEntry)
}

func (s *gormStore) EventsByVehicle(ctx context.Context, vehicleID int64, limit int) ([]model.AccessEvent, error) {
	q := recentFirst(s.db.WithContext(ctx).Where("vehiculo_id = ?", vehicleID))
	if limit > 0 {
		q = q.Limit(limit)
	}
	events := []model.AccessEvent{}
	if err := q.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// latestEvent returns the newest event of the vehicle, optionally of one
// movement only. Missing rows are reported as nil.
func latestEvent(db *gorm.DB, vehicleID int64, movement model.Movement) (*model.AccessEvent, error) {
	q := db.Where("vehiculo_id = ?", vehicleID)
	if movement != "" {
		q = q.Where("movimiento = ?", movement)
	}
	var events []model.AccessEvent
	if err := recentFirst(q).Limit(1).Find(&events).Error; err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

func recentFirst(q *gorm.DB) *gorm.DB {
	return q.Order("fecha_hora DESC").Order("id DESC")
}

// --- Administrative access ---

func (s *gormStore) GetEvent(ctx context.Context, id int64) (*model.AccessEvent, error) {
	var event model.AccessEvent
	if err := s.db.WithContext(ctx).First(&event, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

func (s *gormStore) ListEvents(ctx context.Context, filter model.EventFilter) ([]model.AccessEvent, error) {
	q := s.db.WithContext(ctx).Model(&model.AccessEvent{})
	if filter.VehicleID > 0 {
		q = q.Where("vehiculo_id = ?", filter.VehicleID)
	}
	if filter.Movement != "" {
		q = q.Where("movimiento = ?", filter.Movement)
	}
	if filter.From != nil {
		q = q.Where("fecha_hora >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		q = q.Where("fecha_hora <= ?", filter.To.UTC())
	}

	events := []model.AccessEvent{}
	if err := recentFirst(q).Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (s *gormStore) UpdateEvent(ctx context.Context, id int64, patch ledger.EventPatch) (*model.AccessEvent, error) {
	var event model.AccessEvent
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&event, id).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{}
		if patch.Movement != nil {
			updates["movimiento"] = *patch.Movement
			event.Movement = *patch.Movement
		}
		if patch.Timestamp != nil {
			updates["fecha_hora"] = *patch.Timestamp
			event.Timestamp = *patch.Timestamp
		}
		if patch.Door != nil {
			updates["puerta"] = *patch.Door
			event.Door = patch.Door
		}
		if patch.StayDuration != nil {
			updates["tiempo_estadia"] = *patch.StayDuration
			event.StayDuration = patch.StayDuration
		}
		if patch.VehicleID != nil {
			updates["vehiculo_id"] = *patch.VehicleID
			event.VehicleID = *patch.VehicleID
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.Model(&model.AccessEvent{}).Where("id = ?", id).Updates(updates).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

func (s *gormStore) DeleteEvent(ctx context.Context, id int64) (bool, error) {
	res := s.db.WithContext(ctx).Delete(&model.AccessEvent{}, id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// --- Vehicle read model ---

func (s *gormStore) VehicleExists(ctx context.Context, id int64) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.Vehicle{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *gormStore) GetVehicle(ctx context.Context, id int64) (*model.Vehicle, error) {
	var vehicle model.Vehicle
	if err := s.db.WithContext(ctx).First(&vehicle, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &vehicle, nil
}

// UpsertVehicles inserts or refreshes vehicles keyed by their upstream id
// and returns how many rows were written.
func (s *gormStore) UpsertVehicles(ctx context.Context, vehicles []model.Vehicle) (int, error) {
	if len(vehicles) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	for i := range vehicles {
		if vehicles[i].SyncedAt.IsZero() {
			vehicles[i].SyncedAt = now
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"placa", "color", "modelo", "marca", "tipo", "usuario_id", "synced_at", "updated_at"}),
		}).CreateInBatches(&vehicles, vehicleBatchSize).Error
	})
	if err != nil {
		return 0, fmt.Errorf("batch upsert vehicles failed: %w", err)
	}
	return len(vehicles), nil
}

func (s *gormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
