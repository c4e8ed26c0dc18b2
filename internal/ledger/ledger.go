// Package ledger keeps the per-vehicle sequence of Entrada/Salida events
// and enforces that entries and exits alternate.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"parking-access-backend/internal/logger"
	"parking-access-backend/internal/metrics"
	"parking-access-backend/internal/model"
)

const defaultHistorySize = 5

// Ledger appends access events and answers state queries over them.
type Ledger struct {
	store       Store
	registry    VehicleRegistry
	notifier    Notifier
	now         func() time.Time
	historySize int
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithRegistry makes appends for vehicles unknown to r fail with ErrUnknownVehicle.
func WithRegistry(r VehicleRegistry) Option {
	return func(l *Ledger) { l.registry = r }
}

// WithNotifier hands every committed event to n.
func WithNotifier(n Notifier) Option {
	return func(l *Ledger) { l.notifier = n }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithHistorySize sets how many events CurrentStatus returns.
func WithHistorySize(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.historySize = n
		}
	}
}

// New creates a Ledger over store.
func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:       store,
		now:         time.Now,
		historySize: defaultHistorySize,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AppendRequest is a movement-agnostic append. StayDuration is only kept
// for Entrada; exits always get the computed stay.
type AppendRequest struct {
	Movement     model.Movement
	VehicleID    int64
	Timestamp    *time.Time
	Door         *string
	StayDuration *int64
}

// Receipt is the result of a successful append. Stay is set for exits.
type Receipt struct {
	Event model.AccessEvent
	Stay  *Stay
}

// Status is the derived presence of a vehicle.
type Status struct {
	VehicleID int64
	Presence  Presence
	// OpenEntry and Elapsed are set only while the vehicle is inside.
	OpenEntry *model.AccessEvent
	Elapsed   *Stay
	Recent    []model.AccessEvent
}

// IsOpen reports whether the vehicle's latest event is an Entrada.
func (l *Ledger) IsOpen(ctx context.Context, vehicleID int64) (bool, error) {
	if err := validVehicle(vehicleID); err != nil {
		return false, err
	}
	latest, err := l.store.LatestEvent(ctx, vehicleID)
	if err != nil {
		return false, fmt.Errorf("read latest event of vehicle %d: %w", vehicleID, err)
	}
	return isOpen(latest), nil
}

// LatestEntry returns the vehicle's most recent Entrada, or nil.
func (l *Ledger) LatestEntry(ctx context.Context, vehicleID int64) (*model.AccessEvent, error) {
	if err := validVehicle(vehicleID); err != nil {
		return nil, err
	}
	entry, err := l.store.LatestEntry(ctx, vehicleID)
	if err != nil {
		return nil, fmt.Errorf("read latest entry of vehicle %d: %w", vehicleID, err)
	}
	return entry, nil
}

// Append dispatches on req.Movement.
func (l *Ledger) Append(ctx context.Context, req AppendRequest) (*Receipt, error) {
	switch req.Movement {
	case model.MovementEntry:
		event, err := l.AppendEntry(ctx, req.VehicleID, req.Timestamp, req.Door, req.StayDuration)
		if err != nil {
			return nil, err
		}
		return &Receipt{Event: *event}, nil
	case model.MovementExit:
		event, stay, err := l.AppendExit(ctx, req.VehicleID, req.Timestamp, req.Door)
		if err != nil {
			return nil, err
		}
		return &Receipt{Event: *event, Stay: &stay}, nil
	default:
		err := invalid("movimiento", "must be %q or %q", model.MovementEntry, model.MovementExit)
		l.reject(err)
		return nil, err
	}
}

// AppendEntry records that the vehicle entered. It fails with
// ErrDuplicateEntry while the vehicle is inside.
func (l *Ledger) AppendEntry(ctx context.Context, vehicleID int64, ts *time.Time, door *string, stay *int64) (*model.AccessEvent, error) {
	event, err := l.appendEntry(ctx, vehicleID, ts, door, stay)
	if err != nil {
		l.reject(err)
		return nil, err
	}
	l.committed(ctx, *event)
	return event, nil
}

func (l *Ledger) appendEntry(ctx context.Context, vehicleID int64, ts *time.Time, door *string, stay *int64) (*model.AccessEvent, error) {
	if err := validVehicle(vehicleID); err != nil {
		return nil, err
	}
	if stay != nil && *stay < 0 {
		return nil, invalid("tiempo_estadia", "must be a non-negative integer")
	}
	if err := l.checkVehicle(ctx, vehicleID); err != nil {
		return nil, err
	}

	event := &model.AccessEvent{
		Movement:     model.MovementEntry,
		Timestamp:    l.effective(ts),
		Door:         door,
		StayDuration: stay,
		VehicleID:    vehicleID,
	}
	err := l.store.WithVehicleLock(ctx, vehicleID, func(tx Tx) error {
		latest, err := tx.LatestEvent(ctx, vehicleID)
		if err != nil {
			return fmt.Errorf("read latest event of vehicle %d: %w", vehicleID, err)
		}
		if isOpen(latest) {
			return ErrDuplicateEntry
		}
		if err := notBefore(latest, event.Timestamp); err != nil {
			return err
		}
		if err := tx.InsertEvent(ctx, event); err != nil {
			return fmt.Errorf("insert entry of vehicle %d: %w", vehicleID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

// AppendExit records that the vehicle left and returns the stay measured
// from its latest Entrada.
func (l *Ledger) AppendExit(ctx context.Context, vehicleID int64, ts *time.Time, door *string) (*model.AccessEvent, Stay, error) {
	event, err := l.appendExit(ctx, vehicleID, ts, door)
	if err != nil {
		if errors.Is(err, ErrLedgerInconsistency) {
			metrics.LedgerInconsistencyTotal.Inc()
			logger.FromContext(ctx).Error("ledger inconsistency on exit",
				zap.Int64("vehicle_id", vehicleID), zap.Error(err))
		}
		l.reject(err)
		return nil, Stay{}, err
	}
	stay := NewStay(*event.StayDuration)
	metrics.StayDurationSeconds.Observe(float64(stay.Seconds))
	l.committed(ctx, *event)
	return event, stay, nil
}

func (l *Ledger) appendExit(ctx context.Context, vehicleID int64, ts *time.Time, door *string) (*model.AccessEvent, error) {
	if err := validVehicle(vehicleID); err != nil {
		return nil, err
	}
	if err := l.checkVehicle(ctx, vehicleID); err != nil {
		return nil, err
	}

	event := &model.AccessEvent{
		Movement:  model.MovementExit,
		Timestamp: l.effective(ts),
		Door:      door,
		VehicleID: vehicleID,
	}
	err := l.store.WithVehicleLock(ctx, vehicleID, func(tx Tx) error {
		latest, err := tx.LatestEvent(ctx, vehicleID)
		if err != nil {
			return fmt.Errorf("read latest event of vehicle %d: %w", vehicleID, err)
		}
		if !isOpen(latest) {
			return ErrNoOpenEntry
		}
		entry, err := tx.LatestEntry(ctx, vehicleID)
		if err != nil {
			return fmt.Errorf("read latest entry of vehicle %d: %w", vehicleID, err)
		}
		if entry == nil {
			return fmt.Errorf("vehicle %d: %w", vehicleID, ErrLedgerInconsistency)
		}

		secs := FloorSeconds(event.Timestamp.Sub(entry.Timestamp))
		if secs < 0 {
			return ErrNegativeDuration
		}
		if err := notBefore(latest, event.Timestamp); err != nil {
			return err
		}
		event.StayDuration = &secs
		if err := tx.InsertEvent(ctx, event); err != nil {
			return fmt.Errorf("insert exit of vehicle %d: %w", vehicleID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

// History returns every event of the vehicle, most recent first.
func (l *Ledger) History(ctx context.Context, vehicleID int64) ([]model.AccessEvent, error) {
	if err := validVehicle(vehicleID); err != nil {
		return nil, err
	}
	events, err := l.store.EventsByVehicle(ctx, vehicleID, 0)
	if err != nil {
		return nil, fmt.Errorf("read history of vehicle %d: %w", vehicleID, err)
	}
	SortRecentFirst(events)
	return events, nil
}

// CurrentStatus reports whether the vehicle is inside, how long it has
// been inside and its most recent events.
func (l *Ledger) CurrentStatus(ctx context.Context, vehicleID int64) (*Status, error) {
	if err := validVehicle(vehicleID); err != nil {
		return nil, err
	}
	recent, err := l.store.EventsByVehicle(ctx, vehicleID, l.historySize)
	if err != nil {
		return nil, fmt.Errorf("read recent events of vehicle %d: %w", vehicleID, err)
	}
	SortRecentFirst(recent)

	status := &Status{VehicleID: vehicleID, Presence: Outside, Recent: recent}
	if !OpenAfter(recent) {
		return status, nil
	}

	entry, err := l.store.LatestEntry(ctx, vehicleID)
	if err != nil {
		return nil, fmt.Errorf("read latest entry of vehicle %d: %w", vehicleID, err)
	}
	if entry == nil {
		metrics.LedgerInconsistencyTotal.Inc()
		logger.FromContext(ctx).Error("ledger inconsistency on status", zap.Int64("vehicle_id", vehicleID))
		return nil, fmt.Errorf("vehicle %d: %w", vehicleID, ErrLedgerInconsistency)
	}

	elapsed := FloorSeconds(l.now().Sub(entry.Timestamp))
	if elapsed < 0 {
		elapsed = 0
	}
	stay := NewStay(elapsed)
	status.Presence = Inside
	status.OpenEntry = entry
	status.Elapsed = &stay
	return status, nil
}

func (l *Ledger) checkVehicle(ctx context.Context, vehicleID int64) error {
	if l.registry == nil {
		return nil
	}
	ok, err := l.registry.Exists(ctx, vehicleID)
	if err != nil {
		return fmt.Errorf("look up vehicle %d: %w", vehicleID, err)
	}
	if !ok {
		return ErrUnknownVehicle
	}
	return nil
}

func (l *Ledger) effective(ts *time.Time) time.Time {
	if ts != nil {
		return Instant(*ts)
	}
	return Instant(l.now())
}

// notBefore rejects an event that would sort below the vehicle's latest
// event, which would break the alternation of its history.
func notBefore(latest *model.AccessEvent, ts time.Time) error {
	if latest != nil && ts.Before(latest.Timestamp) {
		return invalid("fecha_hora", "must not precede the latest event of the vehicle (%s)",
			latest.Timestamp.Format(time.RFC3339Nano))
	}
	return nil
}

func (l *Ledger) committed(ctx context.Context, event model.AccessEvent) {
	metrics.EventsAppendedTotal.WithLabelValues(string(event.Movement)).Inc()
	logger.FromContext(ctx).Info("access event appended",
		zap.Int64("event_id", event.ID),
		zap.Int64("vehicle_id", event.VehicleID),
		zap.String("movement", string(event.Movement)),
		zap.Time("fecha_hora", event.Timestamp),
	)
	if l.notifier != nil {
		l.notifier.Dispatch(event)
	}
}

func (l *Ledger) reject(err error) {
	metrics.AppendRejectedTotal.WithLabelValues(Code(err)).Inc()
}

func validVehicle(id int64) error {
	if id <= 0 {
		return invalid("vehiculo_id", "must be a positive integer")
	}
	return nil
}
