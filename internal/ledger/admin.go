package ledger

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"parking-access-backend/internal/logger"
	"parking-access-backend/internal/model"
)

// Admin exposes raw CRUD over the event store for operator corrections.
// None of its operations check that entries and exits still alternate.
type Admin struct {
	store AdminStore
}

// NewAdmin creates an Admin over store.
func NewAdmin(store AdminStore) *Admin {
	return &Admin{store: store}
}

// Get returns the event with the given id or ErrNotFound.
func (a *Admin) Get(ctx context.Context, id int64) (*model.AccessEvent, error) {
	if id <= 0 {
		return nil, invalid("id", "must be a positive integer")
	}
	event, err := a.store.GetEvent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get event %d: %w", id, err)
	}
	if event == nil {
		return nil, ErrNotFound
	}
	return event, nil
}

// List returns the events matching filter, most recent first.
func (a *Admin) List(ctx context.Context, filter model.EventFilter) ([]model.AccessEvent, error) {
	if filter.Movement != "" && !filter.Movement.Valid() {
		return nil, invalid("movimiento", "must be %q or %q", model.MovementEntry, model.MovementExit)
	}
	if filter.VehicleID < 0 {
		return nil, invalid("vehiculo_id", "must be a positive integer")
	}
	if filter.From != nil {
		from := Instant(*filter.From)
		filter.From = &from
	}
	if filter.To != nil {
		to := Instant(*filter.To)
		filter.To = &to
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, invalid("hasta", "must not precede desde")
	}
	events, err := a.store.ListEvents(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	SortRecentFirst(events)
	return events, nil
}

// UpdateRaw overwrites the fields set in patch.
func (a *Admin) UpdateRaw(ctx context.Context, id int64, patch EventPatch) (*model.AccessEvent, error) {
	if id <= 0 {
		return nil, invalid("id", "must be a positive integer")
	}
	if patch.Empty() {
		return nil, invalid("body", "no fields to update")
	}
	if patch.Movement != nil && !patch.Movement.Valid() {
		return nil, invalid("movimiento", "must be %q or %q", model.MovementEntry, model.MovementExit)
	}
	if patch.VehicleID != nil && *patch.VehicleID <= 0 {
		return nil, invalid("vehiculo_id", "must be a positive integer")
	}
	if patch.StayDuration != nil && *patch.StayDuration < 0 {
		return nil, invalid("tiempo_estadia", "must be a non-negative integer")
	}
	if patch.Timestamp != nil {
		ts := Instant(*patch.Timestamp)
		patch.Timestamp = &ts
	}

	event, err := a.store.UpdateEvent(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("update event %d: %w", id, err)
	}
	if event == nil {
		return nil, ErrNotFound
	}
	logger.FromContext(ctx).Warn("admin: access event updated without ledger validation",
		zap.Int64("event_id", id), zap.Int64("vehicle_id", event.VehicleID))
	return event, nil
}

// Delete removes the event with the given id.
func (a *Admin) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return invalid("id", "must be a positive integer")
	}
	deleted, err := a.store.DeleteEvent(ctx, id)
	if err != nil {
		return fmt.Errorf("delete event %d: %w", id, err)
	}
	if !deleted {
		return ErrNotFound
	}
	logger.FromContext(ctx).Warn("admin: access event deleted without ledger validation", zap.Int64("event_id", id))
	return nil
}
